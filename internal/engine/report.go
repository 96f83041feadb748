package engine

import (
	"fmt"
	"time"
)

// Run report statuses. A run with item-level failures is still a
// success; error is reserved for runs that aborted before producing
// per-item counts.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Report is the aggregate result of one sync run. It is the only
// contract the trigger surfaces expose; internal error types never
// leave the engine.
type Report struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Synced      int       `json:"synced"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Message     string    `json:"message"`
	ErrorDetail string    `json:"error,omitempty"`
}

// summarize fills the human-readable message from the final counts
func (r *Report) summarize() {
	r.Message = fmt.Sprintf("sync complete: %d synced, %d skipped, %d failed", r.Synced, r.Skipped, r.Failed)
}

// fail marks the report as aborted, preserving the original error text
func (r *Report) fail(message string, err error) {
	r.Status = StatusError
	r.Message = message
	if err != nil {
		r.ErrorDetail = err.Error()
	}
}
