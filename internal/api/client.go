// Package api is the typed HTTP client for the transcription backend. It
// covers the job endpoints and the strategy-selecting uploader.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client talks to the transcription backend.
type Client struct {
	baseURL string
	// retry is used for idempotent requests; plain for job-creating POSTs
	// and uploads, where a blind retry could duplicate work.
	retry  *http.Client
	plain  *http.Client
	logger *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = leveledLogger{logger: logger}

	return &Client{
		baseURL: baseURL,
		retry:   rc.StandardClient(),
		plain:   &http.Client{Timeout: 30 * time.Minute},
		logger:  logger,
	}
}

// leveledLogger adapts slog to retryablehttp's LeveledLogger interface.
type leveledLogger struct {
	logger *slog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.logger.Error(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.logger.Warn(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.logger.Debug(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.logger.Debug(msg, kv...) }

// Health checks backend reachability.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, "/", &resp)
}

// GetUploadOptions asks the backend which upload mechanism to use for this
// file.
func (c *Client) GetUploadOptions(ctx context.Context, filename string, size int64, contentType string, resumable bool) (*UploadOptionsResponse, error) {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("file_size", strconv.FormatInt(size, 10))
	q.Set("content_type", contentType)
	q.Set("resumable", strconv.FormatBool(resumable))

	var resp UploadOptionsResponse
	if err := c.getJSON(ctx, "/api/v1/signed-url?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartTranscription submits a transcription job for an uploaded file.
func (c *Client) StartTranscription(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &StartError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, &StartError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp TranscriptionResponse
	if err := c.do(c.plain, httpReq, &resp); err != nil {
		return nil, &StartError{Err: err}
	}
	return &resp, nil
}

// GetStatus fetches the full status object for a job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/api/v1/transcription/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, &StatusError{JobID: jobID, Err: err}
	}
	return &resp, nil
}

// DeleteJob removes a transcription job and its artifacts.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/transcription/"+url.PathEscape(jobID), nil)
	if err != nil {
		return err
	}
	return c.do(c.retry, req, nil)
}

// CreateRecognizer creates or fetches a speech recognizer.
func (c *Client) CreateRecognizer(ctx context.Context, req RecognizerRequest) (*RecognizerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/recognizer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp RecognizerResponse
	if err := c.do(c.plain, httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(c.retry, req, result)
}

func (c *Client) do(client *http.Client, req *http.Request, result any) error {
	c.logger.Debug("api request", "method", req.Method, "url", req.URL.String())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	detail := e.Body
	// FastAPI wraps error messages in a detail field.
	var wrapped struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal([]byte(e.Body), &wrapped) == nil && wrapped.Detail != "" {
		detail = wrapped.Detail
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, detail)
}
