// Package record persists transcription job state so a job can be
// re-attached after the process exits mid-flight.
package record

import (
	"log/slog"
	"time"

	"github.com/mwinckel/scribe/internal/job"
	"github.com/mwinckel/scribe/internal/storage"
)

const (
	// Version is bumped when the persisted shape changes incompatibly.
	// Records with an unknown version are discarded rather than migrated.
	Version = 1

	// TTL is how long a persisted job stays resumable. Backend jobs are
	// long gone after two days, so a stale record only produces 404 noise.
	TTL = 48 * time.Hour

	// saveInterval debounces progress-driven saves. Lifecycle changes
	// bypass it via force.
	saveInterval = time.Second

	keyPrefix    = "job-"
	activePtrKey = "activeJobKey"
)

// ETASnapshot freezes the stage estimator so a reloaded job resumes its
// progress hint instead of restarting from zero.
type ETASnapshot struct {
	RemainingSeconds int       `json:"remainingSeconds"`
	ProgressHint     int       `json:"progressHint"`
	Stage            job.Stage `json:"stage"`
	ExpectedSeconds  int       `json:"expectedSeconds"`
	StageStartedAtMs int64     `json:"stageStartedAtMs"`
	SavedAtMs        int64     `json:"savedAtMs"`
}

// StageStartedAt returns the persisted stage start as a time.
func (e ETASnapshot) StageStartedAt() time.Time {
	return time.UnixMilli(e.StageStartedAtMs)
}

// Expected returns the persisted expected stage duration.
func (e ETASnapshot) Expected() time.Duration {
	return time.Duration(e.ExpectedSeconds) * time.Second
}

// Record is the persisted form of one tracked job.
type Record struct {
	Version        int          `json:"version"`
	JobKey         string       `json:"jobKey"`
	JobID          string       `json:"jobId,omitempty"`
	State          job.Snapshot `json:"state"`
	IsUploading    bool         `json:"isUploading"`
	IsTranscribing bool         `json:"isTranscribing"`
	FileName       string       `json:"fileName,omitempty"`
	FileSizeBytes  int64        `json:"fileSizeBytes,omitempty"`
	ETA            *ETASnapshot `json:"eta,omitempty"`
	CreatedAtMs    int64        `json:"createdAtMs"`
	UpdatedAtMs    int64        `json:"updatedAtMs"`
}

// Key returns the identifier the record is stored under: the backend job
// id once known, the locally generated job key before that.
func (r *Record) Key() string {
	if r.JobID != "" {
		return r.JobID
	}
	return r.JobKey
}

// Expired reports whether the record is past its TTL at time now.
func (r *Record) Expired(now time.Time) bool {
	updated := time.UnixMilli(r.UpdatedAtMs)
	return now.Sub(updated) > TTL
}

// Manager reads and writes job records in the durable store and keeps the
// active-job pointer in the session store.
type Manager struct {
	durable *storage.Store
	session *storage.Store
	logger  *slog.Logger

	lastSave map[string]time.Time
}

// NewManager creates a record manager over the two storage scopes.
func NewManager(durable, session *storage.Store, logger *slog.Logger) *Manager {
	return &Manager{
		durable:  durable,
		session:  session,
		logger:   logger.With("component", "record"),
		lastSave: make(map[string]time.Time),
	}
}

// Save persists rec. Progress-driven saves are debounced to one write per
// second per job; pass force for lifecycle transitions that must not be
// lost (creation, re-keying, terminal states, teardown).
func (m *Manager) Save(rec *Record, force bool) {
	key := rec.Key()
	now := time.Now()
	if !force && now.Sub(m.lastSave[key]) < saveInterval {
		return
	}
	m.lastSave[key] = now

	rec.Version = Version
	rec.UpdatedAtMs = now.UnixMilli()
	if rec.CreatedAtMs == 0 {
		rec.CreatedAtMs = rec.UpdatedAtMs
	}
	m.durable.Set(keyPrefix+key, rec)
}

// Load returns the record stored under key. Expired or unreadable records
// are deleted and treated as missing; stale state is worth less than a
// clean start.
func (m *Manager) Load(key string) (*Record, bool) {
	var rec Record
	if !m.durable.Get(keyPrefix+key, &rec) {
		return nil, false
	}
	if rec.Version != Version {
		m.logger.Warn("discarding job record with unknown version", "key", key, "version", rec.Version)
		m.Delete(key)
		return nil, false
	}
	if rec.Expired(time.Now()) {
		m.logger.Info("discarding expired job record", "key", key, "updatedAt", time.UnixMilli(rec.UpdatedAtMs))
		m.Delete(key)
		return nil, false
	}
	return &rec, true
}

// Delete removes the record stored under key and clears the active pointer
// if it referenced that key.
func (m *Manager) Delete(key string) {
	m.durable.Remove(keyPrefix + key)
	delete(m.lastSave, key)
	if active, ok := m.ActiveKey(); ok && active == key {
		m.ClearActive()
	}
}

// Rekey moves a record from the provisional job key to the backend job id,
// leaving exactly one stored entry. The active pointer follows.
func (m *Manager) Rekey(rec *Record, jobID string) {
	oldKey := rec.Key()
	rec.JobID = jobID
	rec.State.JobID = jobID
	if oldKey == jobID {
		m.Save(rec, true)
		return
	}

	m.durable.Rename(keyPrefix+oldKey, keyPrefix+jobID)
	delete(m.lastSave, oldKey)
	m.Save(rec, true)

	if active, ok := m.ActiveKey(); ok && active == oldKey {
		m.SetActive(jobID)
	}
}

// SetActive marks key as the session's active job.
func (m *Manager) SetActive(key string) {
	m.session.Set(activePtrKey, key)
}

// ActiveKey returns the session's active job key, if any.
func (m *Manager) ActiveKey() (string, bool) {
	var key string
	if !m.session.Get(activePtrKey, &key) || key == "" {
		return "", false
	}
	return key, true
}

// ClearActive drops the session's active job pointer.
func (m *Manager) ClearActive() {
	m.session.Remove(activePtrKey)
}

// LoadActive resolves the active pointer to its record. A dangling pointer
// (record missing or expired) is cleared.
func (m *Manager) LoadActive() (*Record, bool) {
	key, ok := m.ActiveKey()
	if !ok {
		return nil, false
	}
	rec, ok := m.Load(key)
	if !ok {
		m.ClearActive()
		return nil, false
	}
	return rec, true
}

// AdjustETA ages the persisted ETA snapshot by the wall time elapsed since
// it was saved, flooring at zero.
func AdjustETA(e *ETASnapshot, now time.Time) *ETASnapshot {
	if e == nil {
		return nil
	}
	adjusted := *e
	elapsed := int(now.Sub(time.UnixMilli(e.SavedAtMs)).Seconds())
	if elapsed > 0 {
		adjusted.RemainingSeconds -= elapsed
	}
	if adjusted.RemainingSeconds < 0 {
		adjusted.RemainingSeconds = 0
	}
	return &adjusted
}
