package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsungho/knowsync/internal/engine"
)

// Runner is the slice of the engine the scheduler needs
type Runner interface {
	RunSync(ctx context.Context) (*engine.Report, error)
}

// ReportSink receives the report of every scheduled run
type ReportSink interface {
	Set(report *engine.Report)
}

// Scheduler triggers one sync run per day at a fixed hour:minute in a
// configured timezone. There is no overlap: if the previous run is
// somehow still in flight at the next tick, the tick is skipped and
// logged.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	runner Runner
	sink   ReportSink
	logger *slog.Logger

	// Control
	shutdown chan struct{}
	wg       sync.WaitGroup

	// Injectable clock for tests
	now func() time.Time
}

// New creates a scheduler for the given daily time
func New(hour, minute int, timezone string, runner Runner, sink ReportSink, logger *slog.Logger) (*Scheduler, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("schedule hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("schedule minute out of range: %d", minute)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", timezone, err)
	}

	return &Scheduler{
		hour:     hour,
		minute:   minute,
		loc:      loc,
		runner:   runner,
		sink:     sink,
		logger:   logger,
		shutdown: make(chan struct{}),
		now:      time.Now,
	}, nil
}

// nextOccurrence returns the first hour:minute in loc strictly after
// 'after'. A tick exactly at the scheduled time is not included.
func nextOccurrence(after time.Time, hour, minute int, loc *time.Location) time.Time {
	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the scheduling goroutine
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		"schedule", fmt.Sprintf("%02d:%02d", s.hour, s.minute),
		"timezone", s.loc.String())

	s.wg.Add(1)
	go s.run()
}

// Stop signals the scheduler and waits for the goroutine to exit
func (s *Scheduler) Stop() {
	close(s.shutdown)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		next := nextOccurrence(s.now(), s.hour, s.minute, s.loc)
		s.logger.Info("next scheduled sync", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.shutdown:
			timer.Stop()
			return
		case <-timer.C:
			s.trigger()
		}
	}
}

// trigger runs one scheduled sync and records its report
func (s *Scheduler) trigger() {
	s.logger.Info("scheduled sync triggered")

	report, err := s.runner.RunSync(context.Background())
	if err != nil {
		if errors.Is(err, engine.ErrRunInFlight) {
			s.logger.Warn("previous sync still in flight, skipping this tick")
			return
		}
		s.logger.Error("scheduled sync failed to start", "error", err)
		return
	}

	if s.sink != nil {
		s.sink.Set(report)
	}

	s.logger.Info("scheduled sync finished",
		"status", report.Status,
		"synced", report.Synced,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"total", report.Total)
}
