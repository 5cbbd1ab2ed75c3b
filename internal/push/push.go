// Package push maintains the per-job websocket channel delivering
// asynchronous status updates, with bounded reconnection on failure.
package push

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mwinckel/scribe/internal/job"
)

// Message is one inbound push update.
type Message struct {
	Type     string       `json:"type"`
	JobID    string       `json:"job_id,omitempty"`
	Status   string       `json:"status,omitempty"`
	Progress *int         `json:"progress,omitempty"`
	Message  string       `json:"message,omitempty"`
	Data     *MessageData `json:"data,omitempty"`
}

// MessageData carries the transcript payload fields a push update may
// include. Completed jobs may carry only a segments preview; the final
// fetch reconciles the rest.
type MessageData struct {
	Transcript         string                  `json:"transcript,omitempty"`
	TranscriptSegments []job.TranscriptSegment `json:"transcript_segments,omitempty"`
	SegmentsPreview    []job.TranscriptSegment `json:"segments_preview,omitempty"`
	SpeakerTranscript  string                  `json:"speaker_identified_transcript,omitempty"`
	SpeakerSummary     *job.SpeakerSummary     `json:"speaker_identification_summary,omitempty"`
	RefinedTranscript  string                  `json:"refined_transcript,omitempty"`
}

// Update converts the message into a mergeable job update.
func (m Message) Update() job.Update {
	u := job.Update{
		JobID:    m.JobID,
		Status:   job.Stage(m.Status),
		Progress: m.Progress,
		Message:  m.Message,
	}
	if m.Data != nil {
		u.Transcript = m.Data.Transcript
		u.TranscriptSegments = m.Data.TranscriptSegments
		if len(u.TranscriptSegments) == 0 {
			u.TranscriptSegments = m.Data.SegmentsPreview
		}
		u.SpeakerTranscript = m.Data.SpeakerTranscript
		u.SpeakerSummary = m.Data.SpeakerSummary
		u.RefinedTranscript = m.Data.RefinedTranscript
	}
	return u
}

const (
	maxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
)

// Client is a reconnecting websocket connection scoped to one job id.
type Client struct {
	url       string
	onMessage func(Message)
	logger    *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	suppress bool
	attempts int
	retry    *time.Timer
}

// New creates a push client for the job. wsBase is the websocket base URL
// (e.g. ws://localhost:8000); use DeriveWSURL to obtain it from an HTTP
// server URL.
func New(wsBase, jobID string, onMessage func(Message), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       strings.TrimRight(wsBase, "/") + "/ws/" + jobID,
		onMessage: onMessage,
		logger:    logger,
	}
}

// DeriveWSURL converts an HTTP server URL into a websocket base URL.
func DeriveWSURL(serverURL string) string {
	ws := strings.Replace(serverURL, "https://", "wss://", 1)
	return strings.Replace(ws, "http://", "ws://", 1)
}

// Connect dials the channel and starts the read loop. On involuntary close
// the client reconnects with linearly growing delay, up to the attempt
// limit; past it, it gives up and leaves the caller to its poll fallback.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.suppress {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Warn("push channel dial failed", "url", c.url, "error", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.suppress {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Debug("push channel connected", "url", c.url)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			suppressed := c.suppress
			c.mu.Unlock()

			if !suppressed {
				c.logger.Debug("push channel closed", "error", err)
				c.scheduleReconnect()
			}
			return
		}
		c.onMessage(msg)
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.suppress {
		return
	}
	if c.attempts >= maxReconnectAttempts {
		// Give up; polling still covers the job.
		c.logger.Warn("push channel gave up reconnecting, live updates degraded to polling",
			"attempts", c.attempts)
		return
	}

	c.attempts++
	delay := time.Duration(c.attempts) * baseReconnectDelay
	c.logger.Debug("push channel reconnecting", "attempt", c.attempts, "delay", delay)
	c.retry = time.AfterFunc(delay, c.Connect)
}

// MarkComplete suppresses reconnection once the job has finished; the
// server closing the connection afterwards is expected.
func (c *Client) MarkComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppress = true
	if c.retry != nil {
		c.retry.Stop()
	}
}

// Disconnect closes the channel and suppresses reconnection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.suppress = true
	if c.retry != nil {
		c.retry.Stop()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
