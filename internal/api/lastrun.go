package api

import (
	"sync"
	"time"

	"github.com/tsungho/knowsync/internal/engine"
)

// LastRun is a single-slot holder for the most recent run report,
// shared between background runs and the status endpoint. Reports are
// swapped whole under the lock; a reader never observes a partial
// write.
type LastRun struct {
	mu        sync.RWMutex
	report    *engine.Report
	updatedAt time.Time
}

// NewLastRun creates an empty holder
func NewLastRun() *LastRun {
	return &LastRun{}
}

// Set replaces the held report
func (l *LastRun) Set(report *engine.Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.report = report
	l.updatedAt = time.Now()
}

// Get returns the held report and when it was stored, or nil if no run
// has completed yet
func (l *LastRun) Get() (*engine.Report, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.report, l.updatedAt
}
