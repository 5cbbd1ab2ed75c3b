package eta

import (
	"testing"
	"time"
)

func TestBaselineBytesPerSecTiers(t *testing.T) {
	const gib = int64(1024 * 1024 * 1024)

	tests := []struct {
		name string
		size int64
		want float64
	}{
		{"tiny file", 50 * 1024 * 1024, 1.1e6},
		{"just under 1 GiB", gib - 1, 1.1e6},
		{"1 GiB", gib, 0.9e6},
		{"2 GiB", 2 * gib, 0.7e6},
		{"4 GiB", 4 * gib, 0.5e6},
		{"8 GiB", 8 * gib, 0.35e6},
		{"huge", 20 * gib, 0.35e6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := baselineBytesPerSec(tt.size); got != tt.want {
				t.Errorf("baselineBytesPerSec(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestExpectedDurationFloor(t *testing.T) {
	start := time.Now()
	// A tiny file still gets the 60 second floor.
	s := NewUploadSmoother(DefaultUploadTuning(), 1024, start)
	if s.expected != 60*time.Second {
		t.Fatalf("expected = %v, want 60s floor", s.expected)
	}
}

func TestDisplayedPercentMonotonic(t *testing.T) {
	start := time.Now()
	total := int64(10_000_000)
	s := NewUploadSmoother(DefaultUploadTuning(), total, start)

	// Bursty byte counters: fast, stall, fast.
	samples := []struct {
		at     time.Duration
		loaded int64
	}{
		{400 * time.Millisecond, 4_000_000},
		{800 * time.Millisecond, 4_000_000},
		{1200 * time.Millisecond, 4_100_000},
		{1600 * time.Millisecond, 9_000_000},
		{2000 * time.Millisecond, 10_000_000},
	}

	prev := -1
	for _, smp := range samples {
		now := start.Add(smp.at)
		s.Observe(smp.loaded, now)
		stats := s.Tick(now)

		if stats.Percent < prev {
			t.Fatalf("percent regressed: %d -> %d", prev, stats.Percent)
		}
		prev = stats.Percent
	}
}

func TestDisplayedPercentConvergesOnCompletion(t *testing.T) {
	start := time.Now()
	total := int64(1_000_000)
	s := NewUploadSmoother(DefaultUploadTuning(), total, start)

	s.Observe(total, start.Add(time.Second))
	s.MarkComplete()

	var pct int
	now := start.Add(time.Second)
	for i := 0; i < 30; i++ {
		now = now.Add(400 * time.Millisecond)
		pct = s.Tick(now).Percent
	}
	if pct != 100 {
		t.Fatalf("percent = %d after completion catch-up, want 100", pct)
	}
}

func TestPercentCapsBeforeCompletion(t *testing.T) {
	start := time.Now()
	total := int64(1_000_000)
	tuning := DefaultUploadTuning()
	s := NewUploadSmoother(tuning, total, start)

	// All bytes sent but not yet marked complete; run well past the
	// expected duration so both projections saturate.
	now := start
	s.Observe(total, now.Add(time.Second))
	for i := 0; i < 1000; i++ {
		now = now.Add(400 * time.Millisecond)
		s.Tick(now)
	}
	pct := s.Tick(now.Add(400 * time.Millisecond)).Percent

	if pct > int(tuning.TimeCap) {
		t.Fatalf("percent = %d exceeds pre-completion cap %v", pct, tuning.TimeCap)
	}
}

func TestETANeverIncreases(t *testing.T) {
	start := time.Now()
	total := int64(500_000_000)
	s := NewUploadSmoother(DefaultUploadTuning(), total, start)

	prev := int(^uint(0) >> 1)
	now := start
	loaded := int64(0)
	for i := 0; i < 50; i++ {
		now = now.Add(400 * time.Millisecond)
		loaded += 3_000_000
		s.Observe(loaded, now)
		eta := s.Tick(now).ETASeconds

		if eta > prev {
			t.Fatalf("ETA increased: %d -> %d at sample %d", prev, eta, i)
		}
		prev = eta
	}
}

func TestETAZeroOnCompletion(t *testing.T) {
	start := time.Now()
	s := NewUploadSmoother(DefaultUploadTuning(), 1_000_000, start)
	s.MarkComplete()
	if eta := s.Tick(start.Add(time.Second)).ETASeconds; eta != 0 {
		t.Fatalf("ETA = %d after completion, want 0", eta)
	}
}

func TestObserveIgnoresRewindingCounter(t *testing.T) {
	start := time.Now()
	s := NewUploadSmoother(DefaultUploadTuning(), 1_000_000, start)

	s.Observe(500_000, start.Add(time.Second))
	// Chunk retry rewinds the raw counter; the high-water mark holds.
	s.Observe(400_000, start.Add(2*time.Second))

	if s.loaded != 500_000 {
		t.Fatalf("loaded = %d, want high-water 500000", s.loaded)
	}
}
