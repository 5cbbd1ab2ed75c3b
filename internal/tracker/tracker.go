// Package tracker orchestrates one transcription job end to end: upload,
// job start, live status merging from push and poll, progress synthesis,
// and crash-safe persistence.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwinckel/scribe/internal/api"
	"github.com/mwinckel/scribe/internal/eta"
	"github.com/mwinckel/scribe/internal/job"
	"github.com/mwinckel/scribe/internal/push"
	"github.com/mwinckel/scribe/internal/record"
)

// Transport is the backend surface the tracker needs. *api.Client
// implements it.
type Transport interface {
	UploadFile(ctx context.Context, path string, onProgress func(api.UploadProgress)) (*api.UploadedFile, error)
	StartTranscription(ctx context.Context, req api.TranscriptionRequest) (*api.TranscriptionResponse, error)
	GetStatus(ctx context.Context, jobID string) (*api.StatusResponse, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// PushChannel is the live-update side channel for one job. *push.Client
// implements it.
type PushChannel interface {
	Connect()
	MarkComplete()
	Disconnect()
}

// PushDialer builds a push channel for a job. Injected so tests can run
// without a websocket server.
type PushDialer func(jobID string, onMessage func(push.Message)) PushChannel

// Event is one published tracker state change. Upload and Estimate
// accompany their respective tick sources; an abandoned upload carries
// only Err.
type Event struct {
	Snapshot job.Snapshot
	Upload   *eta.UploadStats
	Estimate *eta.StageEstimate
	Err      error
}

// Options configures a Tracker. Transport, Dial and Records are required.
type Options struct {
	Transport Transport
	Dial      PushDialer
	Records   *record.Manager
	Logger    *slog.Logger

	// PollInterval is the status poll cadence. Defaults to 2s.
	PollInterval time.Duration
	// StageTick is the transcription estimate cadence. Defaults to 1s.
	StageTick time.Duration
	// UploadTuning overrides the upload smoothing parameters, mainly
	// for tests.
	UploadTuning *eta.UploadTuning
}

// Tracker drives a single job. All state transitions funnel through its
// mutex; timers and the push read loop call back into it.
type Tracker struct {
	transport Transport
	dial      PushDialer
	records   *record.Manager
	logger    *slog.Logger

	pollInterval time.Duration
	stageTick    time.Duration
	tuning       eta.UploadTuning

	events chan Event

	mu           sync.Mutex
	rec          *record.Record
	snap         job.Snapshot
	smoother     *eta.UploadSmoother
	estimator    *eta.StageEstimator
	lastEstimate eta.StageEstimate
	pushc        PushChannel
	pollStop     chan struct{}
	channelsUp   bool
	finalFetched bool
	closed       bool
}

// New creates a tracker. It starts with no job; call Upload or Attach.
func New(opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StageTick <= 0 {
		opts.StageTick = time.Second
	}
	tuning := eta.DefaultUploadTuning()
	if opts.UploadTuning != nil {
		tuning = *opts.UploadTuning
	}
	return &Tracker{
		transport:    opts.Transport,
		dial:         opts.Dial,
		records:      opts.Records,
		logger:       opts.Logger.With("component", "tracker"),
		pollInterval: opts.PollInterval,
		stageTick:    opts.StageTick,
		tuning:       tuning,
		events:       make(chan Event, 128),
	}
}

// Events returns the tracker's event stream. Slow consumers lose
// intermediate samples, never the latest state: Snapshot() always reflects
// it.
func (t *Tracker) Events() <-chan Event { return t.events }

// Snapshot returns a copy of the current job state.
func (t *Tracker) Snapshot() job.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Estimate returns the most recent transcription progress estimate.
func (t *Tracker) Estimate() eta.StageEstimate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEstimate
}

// Upload transfers the file at path and records the resulting GCS object
// on the tracked job. It blocks until the upload finishes; a ticker
// publishes smoothed progress while it runs.
func (t *Tracker) Upload(ctx context.Context, path string) (*api.UploadedFile, error) {
	t.mu.Lock()
	jobKey := uuid.New().String()[:8] // Short key for convenience
	t.rec = &record.Record{
		JobKey:      jobKey,
		State:       job.Snapshot{JobKey: jobKey, Status: job.StagePending},
		IsUploading: true,
	}
	t.snap = t.rec.State
	t.records.Save(t.rec, true)
	t.records.SetActive(jobKey)
	t.mu.Unlock()

	tickStop := make(chan struct{})
	defer close(tickStop)
	go t.uploadTickLoop(tickStop)

	uploaded, err := t.transport.UploadFile(ctx, path, t.observeUpload)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		// A failed upload never becomes a job: drop the provisional
		// record and pointer so the session reads as idle again.
		t.records.Delete(t.rec.Key())
		t.rec = nil
		t.snap = job.Snapshot{}
		t.smoother = nil
		t.publishLocked(Event{Err: err})
		return nil, err
	}

	if t.smoother != nil {
		// Drive the catch-up ticks to the end so the last published
		// sample reads exactly 100.
		t.smoother.MarkComplete()
		for {
			stats := t.smoother.Tick(time.Now())
			t.publishLocked(Event{Snapshot: t.snap, Upload: &stats})
			if stats.Percent >= 100 {
				break
			}
		}
	}

	t.rec.IsUploading = false
	t.rec.FileName = uploaded.FileName
	t.rec.FileSizeBytes = uploaded.Size
	t.snap.GCSURI = uploaded.GCSURI
	t.snap.FileName = uploaded.FileName
	t.snap.FileSizeBytes = uploaded.Size
	t.rec.State = t.snap
	t.records.Save(t.rec, true)
	return uploaded, nil
}

func (t *Tracker) observeUpload(p api.UploadProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.Stage != api.UploadStageUploading || p.BytesTotal <= 0 {
		return
	}
	if t.smoother == nil {
		t.smoother = eta.NewUploadSmoother(t.tuning, p.BytesTotal, time.Now())
	}
	t.smoother.Observe(p.BytesLoaded, time.Now())
}

func (t *Tracker) uploadTickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(t.tuning.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			if t.smoother != nil {
				stats := t.smoother.Tick(now)
				t.publishLocked(Event{Snapshot: t.snap, Upload: &stats})
				t.rec.State = t.snap
				t.records.Save(t.rec, false)
			}
			t.mu.Unlock()
		}
	}
}

// Start submits the transcription request for the uploaded file, re-keys
// the persisted record to the backend job id and arms the push and poll
// channels.
func (t *Tracker) Start(ctx context.Context, req api.TranscriptionRequest) error {
	t.mu.Lock()
	if req.GCSURI == "" {
		req.GCSURI = t.snap.GCSURI
	}
	t.mu.Unlock()

	resp, err := t.transport.StartTranscription(ctx, req)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records.Rekey(t.rec, resp.JobID)
	t.rec.IsTranscribing = true
	t.snap = t.rec.State

	t.estimator = eta.NewStageEstimator(t.rec.FileSizeBytes)
	stage := job.Stage(resp.Status)
	if !stage.Known() {
		stage = job.StagePending
	}
	if stage != t.snap.Status {
		t.snap.Status = stage
		t.rec.State = t.snap
	}
	t.estimator.EnterStage(stage, time.Now())
	t.records.Save(t.rec, true)

	t.armChannelsLocked(resp.JobID)
	t.publishLocked(Event{Snapshot: t.snap})
	return nil
}

// Attach resumes the session's active job from disk, if one survives.
// Expired records were already discarded by the record layer. A resumed
// in-flight job re-arms both channels and fetches status immediately so
// stale state never shows for a full poll interval.
func (t *Tracker) Attach() bool {
	rec, ok := t.records.LoadActive()
	if !ok {
		return false
	}

	t.mu.Lock()
	t.rec = rec
	t.snap = rec.State
	t.estimator = eta.NewStageEstimator(rec.FileSizeBytes)
	if rec.ETA != nil {
		adjusted := record.AdjustETA(rec.ETA, time.Now())
		t.estimator.Resume(adjusted.Stage, adjusted.StageStartedAt(), adjusted.Expected())
	} else if t.snap.Status != "" {
		t.estimator.EnterStage(t.snap.Status, time.Now())
	}

	resume := rec.IsTranscribing && !t.snap.Status.Terminal() && rec.JobID != ""
	if resume {
		t.armChannelsLocked(rec.JobID)
	}
	t.publishLocked(Event{Snapshot: t.snap})
	t.mu.Unlock()

	if resume {
		go t.fetchStatus()
	}
	return true
}

// Follow tracks an existing backend job by id, persisting it like a
// locally started one so later sessions can re-attach.
func (t *Tracker) Follow(jobID string) {
	t.mu.Lock()
	rec, ok := t.records.Load(jobID)
	if !ok {
		rec = &record.Record{
			JobKey:         jobID,
			JobID:          jobID,
			State:          job.Snapshot{JobKey: jobID, JobID: jobID},
			IsTranscribing: true,
		}
	}
	t.rec = rec
	t.snap = rec.State
	t.estimator = eta.NewStageEstimator(rec.FileSizeBytes)
	if t.snap.Status != "" {
		t.estimator.EnterStage(t.snap.Status, time.Now())
	}
	t.records.Save(rec, true)
	t.records.SetActive(jobID)

	resume := !t.snap.Status.Terminal()
	if resume {
		t.armChannelsLocked(jobID)
	}
	t.publishLocked(Event{Snapshot: t.snap})
	t.mu.Unlock()

	if resume {
		go t.fetchStatus()
	}
}

// armChannelsLocked connects the push channel and starts the poll and
// stage-tick loops. Caller holds the mutex.
func (t *Tracker) armChannelsLocked(jobID string) {
	if t.channelsUp {
		return
	}
	t.channelsUp = true

	// Poll first, then dial: the fallback must be live even when the
	// websocket endpoint hangs, and the dial itself must never hold the
	// mutex hostage.
	t.pollStop = make(chan struct{})
	go t.pollLoop(jobID, t.pollStop)
	go t.stageTickLoop(t.pollStop)

	if t.dial != nil {
		t.pushc = t.dial(jobID, t.onPushMessage)
		go t.pushc.Connect()
	}
}

func (t *Tracker) pollLoop(jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.fetchStatus()
		}
	}
}

func (t *Tracker) stageTickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(t.stageTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			if t.estimator != nil && !t.snap.Status.Terminal() {
				est := t.estimator.Tick(now, t.snap.Progress)
				t.lastEstimate = est
				t.rec.ETA = &record.ETASnapshot{
					RemainingSeconds: est.RemainingSeconds,
					ProgressHint:     est.Hint,
					Stage:            est.Stage,
					ExpectedSeconds:  int(est.Expected.Seconds()),
					StageStartedAtMs: est.StartedAt.UnixMilli(),
					SavedAtMs:        now.UnixMilli(),
				}
				t.records.Save(t.rec, false)
				t.publishLocked(Event{Snapshot: t.snap, Estimate: &est})
			}
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) fetchStatus() {
	t.mu.Lock()
	if t.rec == nil {
		t.mu.Unlock()
		return
	}
	jobID := t.rec.Key()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := t.transport.GetStatus(ctx, jobID)
	if err != nil {
		t.logger.Warn("status poll failed", "jobId", jobID, "error", err)
		return
	}
	t.applyUpdate(resp.Update(), "poll")
}

func (t *Tracker) onPushMessage(msg push.Message) {
	t.applyUpdate(msg.Update(), "push")
}

// applyUpdate merges one update from either channel into the snapshot.
// Merge order is arrival order; per-field last-known-good semantics make
// the two channels safe to interleave.
func (t *Tracker) applyUpdate(u job.Update, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rec == nil {
		return
	}

	stageChanged := t.snap.Merge(u)
	if stageChanged {
		t.logger.Info("job stage changed", "jobId", t.snap.JobID, "stage", t.snap.Status, "source", source)
		if t.estimator != nil {
			t.estimator.EnterStage(t.snap.Status, time.Now())
		}
	}

	terminal := t.snap.Status.Terminal()
	if terminal {
		t.rec.IsTranscribing = false
	}
	t.rec.State = t.snap
	t.records.Save(t.rec, stageChanged || terminal)
	t.publishLocked(Event{Snapshot: t.snap})

	if terminal {
		t.finishLocked(source)
	}
}

// finishLocked reacts to the first terminal update: the push channel is
// told not to reconnect, polling stops, and exactly one reconciliation
// fetch runs so a terminal push message still ends with the poll channel's
// full payload (transcript URIs arrive there). Caller holds the mutex.
func (t *Tracker) finishLocked(source string) {
	t.stopChannelsLocked(false)

	if t.finalFetched {
		return
	}
	t.finalFetched = true

	if source == "push" {
		go t.reconcileFinal()
	}
}

func (t *Tracker) reconcileFinal() {
	t.mu.Lock()
	if t.rec == nil {
		t.mu.Unlock()
		return
	}
	jobID := t.rec.Key()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := t.transport.GetStatus(ctx, jobID)
	if err != nil {
		t.logger.Warn("final status fetch failed", "jobId", jobID, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec == nil {
		return
	}
	// The snapshot is terminal, so Merge discards everything; fill the
	// fields the push payload may have lacked directly.
	u := resp.Update()
	if t.snap.Transcript == "" {
		t.snap.Transcript = u.Transcript
	}
	if t.snap.TranscriptURI == "" {
		t.snap.TranscriptURI = u.TranscriptURI
	}
	if len(t.snap.TranscriptSegments) == 0 {
		t.snap.TranscriptSegments = u.TranscriptSegments
	}
	if t.snap.SpeakerTranscript == "" {
		t.snap.SpeakerTranscript = u.SpeakerTranscript
	}
	if t.snap.SpeakerSummary == nil {
		t.snap.SpeakerSummary = u.SpeakerSummary
	}
	if t.snap.RefinedTranscript == "" {
		t.snap.RefinedTranscript = u.RefinedTranscript
	}
	if t.snap.Error == "" {
		t.snap.Error = u.Error
	}
	if t.snap.Message == "" {
		t.snap.Message = u.Message
	}
	if t.snap.StartedAt == "" {
		t.snap.StartedAt = u.StartedAt
	}
	if t.snap.CompletedAt == "" {
		t.snap.CompletedAt = u.CompletedAt
	}
	t.rec.State = t.snap
	t.records.Save(t.rec, true)
	t.publishLocked(Event{Snapshot: t.snap})
}

// Delete removes the tracked job on the backend and locally.
func (t *Tracker) Delete(ctx context.Context) error {
	t.mu.Lock()
	if t.rec == nil {
		t.mu.Unlock()
		return nil
	}
	key := t.rec.Key()
	jobID := t.rec.JobID
	t.stopChannelsLocked(true)
	t.mu.Unlock()

	if jobID != "" {
		if err := t.transport.DeleteJob(ctx, jobID); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records.Delete(key)
	t.rec = nil
	t.snap = job.Snapshot{}
	return nil
}

// Reset abandons the tracked job locally without touching the backend.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec == nil {
		return
	}
	t.stopChannelsLocked(true)
	t.records.Delete(t.rec.Key())
	t.rec = nil
	t.snap = job.Snapshot{}
	t.smoother = nil
	t.estimator = nil
}

// Close tears the tracker down: channels stop, the record gets a final
// forced save. Safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.stopChannelsLocked(true)
	if t.rec != nil {
		t.rec.State = t.snap
		t.records.Save(t.rec, true)
	}
}

// stopChannelsLocked stops the poll and stage loops and quiets the push
// channel. disconnect additionally closes the websocket; a terminal update
// keeps it open so trailing refinement messages still arrive. Caller holds
// the mutex.
func (t *Tracker) stopChannelsLocked(disconnect bool) {
	if t.pollStop != nil {
		close(t.pollStop)
		t.pollStop = nil
	}
	if t.pushc != nil {
		if disconnect {
			t.pushc.Disconnect()
		} else {
			t.pushc.MarkComplete()
		}
	}
	t.channelsUp = false
}

// publishLocked emits e without blocking. When the buffer is full the
// oldest event is dropped; consumers catch up from Snapshot().
func (t *Tracker) publishLocked(e Event) {
	if t.closed {
		return
	}
	select {
	case t.events <- e:
	default:
		select {
		case <-t.events:
		default:
		}
		select {
		case t.events <- e:
		default:
		}
	}
}
