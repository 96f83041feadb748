package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tsungho/knowsync/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner records trigger calls
type fakeRunner struct {
	mu     sync.Mutex
	report *engine.Report
	err    error
	calls  int
}

func (f *fakeRunner) RunSync(ctx context.Context) (*engine.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink records stored reports
type fakeSink struct {
	mu      sync.Mutex
	reports []*engine.Report
}

func (f *fakeSink) Set(report *engine.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
}

func (f *fakeSink) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

// TestNextOccurrence covers the next-tick computation.
func TestNextOccurrence(t *testing.T) {
	utc := time.UTC

	cases := []struct {
		name  string
		after time.Time
		hour  int
		min   int
		want  time.Time
	}{
		{
			name:  "later today",
			after: time.Date(2024, 3, 1, 2, 0, 0, 0, utc),
			hour:  4, min: 0,
			want: time.Date(2024, 3, 1, 4, 0, 0, 0, utc),
		},
		{
			name:  "already passed today",
			after: time.Date(2024, 3, 1, 5, 0, 0, 0, utc),
			hour:  4, min: 0,
			want: time.Date(2024, 3, 2, 4, 0, 0, 0, utc),
		},
		{
			name:  "exactly at the scheduled time rolls to tomorrow",
			after: time.Date(2024, 3, 1, 4, 0, 0, 0, utc),
			hour:  4, min: 0,
			want: time.Date(2024, 3, 2, 4, 0, 0, 0, utc),
		},
		{
			name:  "one second before still fires today",
			after: time.Date(2024, 3, 1, 3, 59, 59, 0, utc),
			hour:  4, min: 0,
			want: time.Date(2024, 3, 1, 4, 0, 0, 0, utc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := nextOccurrence(tc.after, tc.hour, tc.min, utc)
			if !got.Equal(tc.want) {
				t.Errorf("nextOccurrence(%v) = %v, want %v", tc.after, got, tc.want)
			}
		})
	}
}

// TestNextOccurrence_Timezone verifies the schedule is evaluated in the
// configured zone, not the zone of the input time.
func TestNextOccurrence_Timezone(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	// 21:00 UTC on March 1 is 05:00 March 2 in Shanghai (+08:00), so a
	// 04:00 Shanghai schedule has already passed that day
	after := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	got := nextOccurrence(after, 4, 0, shanghai)

	want := time.Date(2024, 3, 3, 4, 0, 0, 0, shanghai)
	if !got.Equal(want) {
		t.Errorf("nextOccurrence = %v, want %v", got, want)
	}
}

// TestScheduler_New validates construction arguments.
func TestScheduler_New(t *testing.T) {
	runner := &fakeRunner{report: &engine.Report{Status: engine.StatusSuccess}}

	if _, err := New(4, 0, "Asia/Shanghai", runner, nil, testLogger()); err != nil {
		t.Errorf("valid arguments rejected: %v", err)
	}
	if _, err := New(24, 0, "UTC", runner, nil, testLogger()); err == nil {
		t.Error("expected an error for hour 24")
	}
	if _, err := New(4, 60, "UTC", runner, nil, testLogger()); err == nil {
		t.Error("expected an error for minute 60")
	}
	if _, err := New(4, 0, "Mars/Olympus", runner, nil, testLogger()); err == nil {
		t.Error("expected an error for an unknown timezone")
	}
}

// TestScheduler_TriggerStoresReport verifies a tick runs the sync and
// records its report.
func TestScheduler_TriggerStoresReport(t *testing.T) {
	runner := &fakeRunner{report: &engine.Report{Status: engine.StatusSuccess, Synced: 1, Total: 1}}
	sink := &fakeSink{}

	s, err := New(4, 0, "UTC", runner, sink, testLogger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	s.trigger()

	if runner.Calls() != 1 {
		t.Errorf("expected one run, got %d", runner.Calls())
	}
	if sink.Count() != 1 {
		t.Errorf("expected one stored report, got %d", sink.Count())
	}
}

// TestScheduler_TriggerSkipsInFlight verifies an overlapping tick is
// skipped rather than queued.
func TestScheduler_TriggerSkipsInFlight(t *testing.T) {
	runner := &fakeRunner{err: engine.ErrRunInFlight}
	sink := &fakeSink{}

	s, err := New(4, 0, "UTC", runner, sink, testLogger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	s.trigger()

	if sink.Count() != 0 {
		t.Errorf("expected no stored report for a skipped tick, got %d", sink.Count())
	}
}

// TestScheduler_StartStop verifies clean shutdown with a pending timer.
func TestScheduler_StartStop(t *testing.T) {
	runner := &fakeRunner{report: &engine.Report{Status: engine.StatusSuccess}}

	s, err := New(4, 0, "UTC", runner, nil, testLogger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
