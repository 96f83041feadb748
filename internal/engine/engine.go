package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsungho/knowsync/internal/config"
	"github.com/tsungho/knowsync/internal/db"
	"github.com/tsungho/knowsync/internal/publisher"
	"github.com/tsungho/knowsync/internal/source"
)

// ErrRunInFlight is returned when RunSync is invoked while another run
// is still executing. Runs are never queued or overlapped.
var ErrRunInFlight = errors.New("engine: a sync run is already in flight")

// TrackerStore is the durable per-item sync state the engine reads and
// writes. Get returns db.ErrNotFound (or a wrapped sql.ErrNoRows) for
// an absent record.
type TrackerStore interface {
	GetTrackerRecord(sourceID string) (*db.TrackerRecord, error)
	UpsertTrackerRecord(rec db.TrackerRecord) error
}

// Engine drives one reconciliation pass: fetch candidate items from all
// sources, decide per item whether to republish, publish, record the
// outcome, and aggregate a Report.
type Engine struct {
	cfg       *config.Config
	store     TrackerStore
	sources   []source.Source
	publisher publisher.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates an engine
func New(cfg *config.Config, store TrackerStore, sources []source.Source, pub publisher.Publisher, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		sources:   sources,
		publisher: pub,
		logger:    logger,
	}
}

// InFlight reports whether a run is currently executing
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) tryAcquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// RunSync executes one full synchronization run and returns its report.
// The run is single-threaded and blocking; items are processed in fetch
// order. A second concurrent call fails with ErrRunInFlight; every
// other failure is folded into the report, never returned as an error.
func (e *Engine) RunSync(ctx context.Context) (*Report, error) {
	if !e.tryAcquire() {
		return nil, ErrRunInFlight
	}
	defer e.release()

	report := &Report{
		RunID:     uuid.NewString(),
		Status:    StatusSuccess,
		StartTime: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			report.fail("sync aborted by unexpected error", fmt.Errorf("%v", r))
		}
		report.EndTime = time.Now()
	}()

	logger := e.logger.With("run_id", report.RunID)
	logger.Info("starting sync run")

	// Fail fast on configuration problems before any network call
	if err := e.cfg.ValidateRequired(); err != nil {
		logger.Error("configuration invalid, aborting run", "error", err)
		report.fail("configuration invalid", err)
		return report, nil
	}

	items := e.fetchAll(ctx, logger)

	if len(items) == 0 {
		logger.Info("no data to sync")
		report.Message = "no data to sync"
		return report, nil
	}

	logger.Info("fetched candidate items", "count", len(items))

	for i, item := range items {
		logger.Debug("processing item",
			"position", fmt.Sprintf("%d/%d", i+1, len(items)),
			"source_type", item.Type,
			"source_id", item.ID)
		e.reconcileItem(ctx, item, report, logger)
	}

	report.Total = len(items)
	report.summarize()

	logger.Info("sync run complete",
		"synced", report.Synced,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"total", report.Total)

	return report, nil
}

// fetchAll collects candidate items from every source. A source that
// fails degrades to zero items for this run; it never aborts the run.
func (e *Engine) fetchAll(ctx context.Context, logger *slog.Logger) []source.Item {
	var items []source.Item
	for _, src := range e.sources {
		fetched, err := src.Fetch(ctx)
		if err != nil {
			logger.Error("source fetch failed, continuing without it", "source", src.Name(), "error", err)
			continue
		}
		items = append(items, fetched...)
	}
	return items
}

// reconcileItem runs the detect → publish → record step for one item.
// Failures are counted, logged, and contained; the loop always moves on.
func (e *Engine) reconcileItem(ctx context.Context, item source.Item, report *Report, logger *slog.Logger) {
	tracked, err := e.store.GetTrackerRecord(item.ID)
	if err != nil {
		if !db.IsNotFound(err) {
			// Fail open: a broken read forces a resync instead of
			// poisoning the whole batch
			logger.Warn("tracker read failed, forcing resync", "source_id", item.ID, "error", err)
		}
		tracked = nil
	}

	if !ShouldSync(item, tracked) {
		logger.Debug("item unchanged, skipping", "source_id", item.ID)
		report.Skipped++
		return
	}

	docID, err := e.publisher.Publish(ctx, item.ID, item.Content)
	if err != nil {
		logger.Error("publish failed", "source_id", item.ID, "error", err)
		report.Failed++
		e.recordFailure(item, tracked, logger)
		return
	}

	rec := db.TrackerRecord{
		SourceID:             item.ID,
		SourceType:           item.Type,
		LastSyncedUpdateTime: item.UpdatedAt,
		DifyDocumentID:       docID,
		LastSyncStatus:       db.StatusSuccess,
	}
	if err := e.store.UpsertTrackerRecord(rec); err != nil {
		logger.Error("tracker write failed after publish", "source_id", item.ID, "error", err)
		report.Failed++
		return
	}

	logger.Info("item synced", "source_id", item.ID, "document_id", docID)
	report.Synced++
}

// recordFailure writes a FAILED tracker row without advancing the
// stored remote timestamp, so the item is retried on every run until it
// succeeds or its remote timestamp moves again. First-seen items get an
// empty timestamp, which the detector treats as always-resync.
func (e *Engine) recordFailure(item source.Item, tracked *db.TrackerRecord, logger *slog.Logger) {
	lastSynced := ""
	if tracked != nil {
		lastSynced = tracked.LastSyncedUpdateTime
	}

	rec := db.TrackerRecord{
		SourceID:             item.ID,
		SourceType:           item.Type,
		LastSyncedUpdateTime: lastSynced,
		DifyDocumentID:       "",
		LastSyncStatus:       db.StatusFailed,
	}
	if err := e.store.UpsertTrackerRecord(rec); err != nil {
		logger.Error("tracker write failed for failed item", "source_id", item.ID, "error", err)
	}
}
