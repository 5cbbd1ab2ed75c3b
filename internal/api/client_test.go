package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/transcription/job-42", r.URL.Path)

		progress := 55
		json.NewEncoder(w).Encode(StatusResponse{
			JobID:    "job-42",
			Status:   "transcribing",
			Progress: &progress,
			GCSURI:   "gs://bucket/file.mp3",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	status, err := c.GetStatus(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, "job-42", status.JobID)
	assert.Equal(t, "transcribing", status.Status)
	require.NotNil(t, status.Progress)
	assert.Equal(t, 55, *status.Progress)

	u := status.Update()
	assert.Equal(t, "gs://bucket/file.mp3", u.GCSURI)
}

func TestGetStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"job not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	_, err := c.GetStatus(context.Background(), "missing")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "missing", statusErr.JobID)
	assert.Contains(t, err.Error(), "job not found")
}

func TestStartTranscription(t *testing.T) {
	var got TranscriptionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/transcribe", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(TranscriptionResponse{
			JobID:   "job-7",
			Status:  "pending",
			Message: "queued",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	resp, err := c.StartTranscription(context.Background(), TranscriptionRequest{
		GCSURI:            "gs://bucket/file.mp3",
		LanguageCode:      "nl-NL",
		EnablePunctuation: true,
		MinSpeakerCount:   2,
		MaxSpeakerCount:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-7", resp.JobID)
	assert.Equal(t, "gs://bucket/file.mp3", got.GCSURI)
	assert.Equal(t, "nl-NL", got.LanguageCode)
}

func TestStartTranscriptionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid gcs uri"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	_, err := c.StartTranscription(context.Background(), TranscriptionRequest{})
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
}

func TestDeleteJob(t *testing.T) {
	deleted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/v1/transcription/job-9", r.URL.Path)
		deleted = true
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	require.NoError(t, c.DeleteJob(context.Background(), "job-9"))
	assert.True(t, deleted)
}

func TestGetUploadOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "video.mp4", q.Get("filename"))
		require.Equal(t, "209715200", q.Get("file_size"))
		require.Equal(t, "true", q.Get("resumable"))

		json.NewEncoder(w).Encode(UploadOptionsResponse{
			RecommendedMethod: "resumable_upload",
			GCSURI:            "gs://bucket/video.mp4",
			Filename:          "video.mp4",
			UploadOptions: UploadOptions{
				ResumableUpload: &ResumableUploadOption{
					ResumableURL: "https://storage.example/session",
					ChunkSize:    8 * 1024 * 1024,
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	opts, err := c.GetUploadOptions(context.Background(), "video.mp4", 200*1024*1024, "video/mp4", true)
	require.NoError(t, err)
	assert.Equal(t, "resumable_upload", opts.RecommendedMethod)
	require.NotNil(t, opts.UploadOptions.ResumableUpload)
	assert.EqualValues(t, 8*1024*1024, opts.UploadOptions.ResumableUpload.ChunkSize)
}

func TestUploadErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   UploadErrorCode
	}{
		{"payload too large", 413, UploadTooLarge},
		{"bad request treated as too large", 400, UploadTooLarge},
		{"unsupported media type", 415, UploadUnsupportedType},
		{"rate limited", 429, UploadRateLimited},
		{"internal error", 500, UploadServerError},
		{"bad gateway", 502, UploadServerError},
		{"teapot", 418, UploadUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uploadCodeForStatus(tt.status); got != tt.want {
				t.Errorf("uploadCodeForStatus(%d) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestUploadErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := uploadFailure(UploadServerError, inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "server_error")
}
