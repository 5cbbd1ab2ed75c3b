package eta

import (
	"time"

	"github.com/mwinckel/scribe/internal/job"
)

// ExpectedStageDuration estimates how long a backend stage takes for a file
// of the given size. The backend reports no numeric progress for long
// stretches, so these heuristics drive the synthetic progress hint.
func ExpectedStageDuration(stage job.Stage, fileSizeBytes int64) time.Duration {
	sizeMB := float64(fileSizeBytes) / 1_000_000

	switch stage {
	case job.StagePending:
		return 20 * time.Second
	case job.StageProcessing:
		return 30 * time.Second
	case job.StageExtractingAudio:
		return clampSeconds(sizeMB*0.2, 30, 600)
	case job.StageTranscribing:
		// Roughly linear in file size, floored at 15 minutes, capped at an
		// hour.
		return clampSeconds(sizeMB*1.1, 900, 3600)
	case job.StageIdentifyingSpeakers:
		return clampSeconds(sizeMB*0.3, 120, 900)
	default:
		return time.Minute
	}
}

func clampSeconds(secs, min, max float64) time.Duration {
	if secs < min {
		secs = min
	}
	if secs > max {
		secs = max
	}
	return time.Duration(secs * float64(time.Second))
}

// StageEstimate is one published transcription-progress sample.
type StageEstimate struct {
	// Hint is the synthetic progress percentage, used when the backend
	// supplies none.
	Hint int
	// RemainingSeconds is the ETA for the current stage.
	RemainingSeconds int
	// Stage is the stage the estimate applies to.
	Stage job.Stage
	// Expected is the heuristic expected duration of the current stage.
	Expected time.Duration
	// StartedAt is when the current stage began.
	StartedAt time.Time
}

// StageEstimator tracks the current backend stage and synthesizes progress
// hints and ETAs from elapsed time versus the expected stage duration.
type StageEstimator struct {
	fileSize int64

	stage    job.Stage
	started  time.Time
	expected time.Duration
	lastHint int
}

// NewStageEstimator creates an estimator for a job over a file of the
// given size.
func NewStageEstimator(fileSizeBytes int64) *StageEstimator {
	return &StageEstimator{fileSize: fileSizeBytes}
}

// EnterStage restarts the stage timer for a newly observed stage.
func (e *StageEstimator) EnterStage(stage job.Stage, now time.Time) {
	e.stage = stage
	e.started = now
	e.expected = ExpectedStageDuration(stage, e.fileSize)
	e.lastHint = 0
}

// Resume continues a stage restored from a persisted snapshot, keeping the
// original stage start so the hint does not restart from zero after a
// reload.
func (e *StageEstimator) Resume(stage job.Stage, startedAt time.Time, expected time.Duration) {
	e.stage = stage
	e.started = startedAt
	if expected <= 0 {
		expected = ExpectedStageDuration(stage, e.fileSize)
	}
	e.expected = expected
	e.lastHint = 0
}

// Tick computes the estimate for time now. backendProgress, when present,
// is authoritative and replaces the synthetic hint. The hint is strictly
// increasing tick over tick until it saturates at 99; only a terminal or
// explicit-progress signal moves it past that.
func (e *StageEstimator) Tick(now time.Time, backendProgress *int) StageEstimate {
	if e.stage == job.StageCompleted {
		return StageEstimate{Hint: 100, RemainingSeconds: 0, Stage: e.stage, Expected: e.expected, StartedAt: e.started}
	}

	elapsed := now.Sub(e.started)
	remaining := e.expected - elapsed
	if remaining < 0 {
		remaining = 0
	}

	hint := e.lastHint
	if backendProgress != nil {
		if *backendProgress > hint {
			hint = *backendProgress
		}
	} else if e.expected > 0 {
		synthetic := int(elapsed.Seconds() / e.expected.Seconds() * 100)
		if synthetic <= e.lastHint {
			synthetic = e.lastHint + 1
		}
		if synthetic > 99 {
			synthetic = 99
		}
		hint = synthetic
	}
	e.lastHint = hint

	return StageEstimate{
		Hint:             hint,
		RemainingSeconds: int(remaining.Seconds()),
		Stage:            e.stage,
		Expected:         e.expected,
		StartedAt:        e.started,
	}
}

// Stage returns the stage currently being timed.
func (e *StageEstimator) Stage() job.Stage { return e.stage }
