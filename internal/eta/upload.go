// Package eta synthesizes smooth monotonic progress and ETA numbers from
// bursty byte counters and coarse backend stage tags.
package eta

import (
	"math"
	"time"
)

// UploadTuning holds the empirically tuned smoothing constants. Treat them
// as configuration: DefaultUploadTuning matches measured behavior, but they
// can be recalibrated against real transfers.
type UploadTuning struct {
	// Alpha is the EMA smoothing factor for instantaneous speed.
	Alpha float64
	// SafetyFactor inflates the baseline duration estimate.
	SafetyFactor float64
	// MinExpected floors the baseline duration.
	MinExpected time.Duration
	// TimeCap bounds the time-driven projection before completion.
	TimeCap float64
	// ByteCap bounds the byte-ratio percentage before completion.
	ByteCap float64
	// Step is the maximum display-percent advance per tick.
	Step float64
	// CatchUpStep replaces Step once the transfer is marked complete.
	CatchUpStep float64
	// TickInterval is the republish cadence.
	TickInterval time.Duration
}

// DefaultUploadTuning returns the tuned constants.
func DefaultUploadTuning() UploadTuning {
	return UploadTuning{
		Alpha:        0.25,
		SafetyFactor: 1.35,
		MinExpected:  60 * time.Second,
		TimeCap:      92,
		ByteCap:      98,
		Step:         1.5,
		CatchUpStep:  10,
		TickInterval: 400 * time.Millisecond,
	}
}

// baselineBytesPerSec returns the assumed throughput for a file of the
// given size. Larger files are assumed slower end to end.
func baselineBytesPerSec(size int64) float64 {
	const (
		gib = 1024 * 1024 * 1024
		mbs = 1_000_000
	)
	switch {
	case size >= 8*gib:
		return 0.35 * mbs
	case size >= 4*gib:
		return 0.5 * mbs
	case size >= 2*gib:
		return 0.7 * mbs
	case size >= 1*gib:
		return 0.9 * mbs
	default:
		return 1.1 * mbs
	}
}

// UploadStats is one published progress sample.
type UploadStats struct {
	Percent          int
	BytesLoaded      int64
	BytesTotal       int64
	SpeedBytesPerSec float64
	ETASeconds       int
}

// UploadSmoother converts raw upload byte samples into a monotonically
// non-decreasing display percentage and a non-increasing ETA.
type UploadSmoother struct {
	tuning UploadTuning

	total    int64
	expected time.Duration

	started    time.Time
	loaded     int64
	lastLoaded int64
	lastSample time.Time
	emaBps     float64

	displayed float64
	lastETA   float64
	complete  bool
}

// NewUploadSmoother creates a smoother for a transfer of total bytes
// starting at now.
func NewUploadSmoother(tuning UploadTuning, total int64, now time.Time) *UploadSmoother {
	expected := time.Duration(float64(total) / baselineBytesPerSec(total) * tuning.SafetyFactor * float64(time.Second))
	if expected < tuning.MinExpected {
		expected = tuning.MinExpected
	}
	return &UploadSmoother{
		tuning:   tuning,
		total:    total,
		expected: expected,
		started:  now,
		lastETA:  math.MaxFloat64,
	}
}

// Observe records a byte-counter sample from the uploading stage. Samples
// feed the smoothed speed estimate; they never move the display backward.
func (s *UploadSmoother) Observe(loaded int64, now time.Time) {
	if loaded < s.loaded {
		// Raw counters can rewind on chunk retry; keep the high-water mark.
		return
	}

	if !s.lastSample.IsZero() {
		dt := now.Sub(s.lastSample).Seconds()
		if dt > 0 {
			inst := float64(loaded-s.lastLoaded) / dt
			if s.emaBps == 0 {
				s.emaBps = inst
			} else {
				s.emaBps = s.tuning.Alpha*inst + (1-s.tuning.Alpha)*s.emaBps
			}
		}
	}
	s.lastSample = now
	s.lastLoaded = loaded
	s.loaded = loaded
}

// MarkComplete switches the smoother to catch-up mode so the display
// converges to 100 promptly.
func (s *UploadSmoother) MarkComplete() {
	s.complete = true
	s.loaded = s.total
}

// Tick recomputes and returns the publishable stats for time now.
func (s *UploadSmoother) Tick(now time.Time) UploadStats {
	target := s.target(now)

	step := s.tuning.Step
	if s.complete {
		step = s.tuning.CatchUpStep
	}
	if s.displayed < target {
		s.displayed = math.Min(s.displayed+step, target)
	}

	return UploadStats{
		Percent:          int(s.displayed),
		BytesLoaded:      s.loaded,
		BytesTotal:       s.total,
		SpeedBytesPerSec: s.emaBps,
		ETASeconds:       s.eta(now),
	}
}

// target is the lesser of the time-driven projection and the byte ratio,
// each with its pre-completion cap; 100 once complete.
func (s *UploadSmoother) target(now time.Time) float64 {
	if s.complete {
		return 100
	}

	timePct := now.Sub(s.started).Seconds() / s.expected.Seconds() * 100
	if timePct > s.tuning.TimeCap {
		timePct = s.tuning.TimeCap
	}

	bytePct := 0.0
	if s.total > 0 {
		bytePct = float64(s.loaded) / float64(s.total) * 100
	}
	if bytePct > s.tuning.ByteCap {
		bytePct = s.tuning.ByteCap
	}

	return math.Min(timePct, bytePct)
}

// eta reconciles the speed-derived estimate against the baseline
// projection so the displayed ETA never increases and never turns more
// optimistic than the tiered baseline allows early on.
func (s *UploadSmoother) eta(now time.Time) int {
	if s.complete {
		s.lastETA = 0
		return 0
	}

	elapsed := now.Sub(s.started).Seconds()
	timeETA := math.Max(s.expected.Seconds()-elapsed, 0)

	candidate := timeETA
	if s.emaBps > 0 {
		remaining := float64(s.total - s.loaded)
		// Cap the effective speed at the baseline assumption: early EMA
		// spikes must not produce a wildly optimistic ETA.
		speed := math.Min(s.emaBps, float64(s.total)/s.expected.Seconds())
		candidate = remaining / speed
	}

	eta := math.Min(candidate, s.lastETA)
	s.lastETA = eta
	return int(math.Round(eta))
}
