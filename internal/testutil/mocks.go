package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tsungho/knowsync/internal/db"
	"github.com/tsungho/knowsync/internal/source"
)

// MemoryTrackerStore is an in-memory engine.TrackerStore with settable
// failures for exercising the engine's error policies
type MemoryTrackerStore struct {
	mu       sync.Mutex
	records  map[string]db.TrackerRecord
	readErr  error
	writeErr error
	upserts  []db.TrackerRecord
}

func NewMemoryTrackerStore() *MemoryTrackerStore {
	return &MemoryTrackerStore{
		records: make(map[string]db.TrackerRecord),
	}
}

func (m *MemoryTrackerStore) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

func (m *MemoryTrackerStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Seed installs a record directly, bypassing error injection
func (m *MemoryTrackerStore) Seed(rec db.TrackerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SourceID] = rec
}

func (m *MemoryTrackerStore) GetTrackerRecord(sourceID string) (*db.TrackerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readErr != nil {
		return nil, m.readErr
	}

	rec, ok := m.records[sourceID]
	if !ok {
		return nil, db.ErrNotFound
	}

	copied := rec
	return &copied, nil
}

func (m *MemoryTrackerStore) UpsertTrackerRecord(rec db.TrackerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}

	rec.LastSyncedAt = time.Now()
	m.records[rec.SourceID] = rec
	m.upserts = append(m.upserts, rec)
	return nil
}

// Record returns the stored record for a source id, or nil
func (m *MemoryTrackerStore) Record(sourceID string) *db.TrackerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sourceID]
	if !ok {
		return nil
	}
	copied := rec
	return &copied
}

// UpsertCount returns how many writes the store accepted
func (m *MemoryTrackerStore) UpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

// StaticSource returns a fixed set of items, or a fixed error. It
// counts fetches so tests can assert a run aborted before fetching.
type StaticSource struct {
	mu      sync.Mutex
	name    string
	items   []source.Item
	err     error
	fetches int
}

func NewStaticSource(name string, items []source.Item) *StaticSource {
	return &StaticSource{name: name, items: items}
}

func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) SetItems(items []source.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *StaticSource) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *StaticSource) Name() string {
	return s.name
}

func (s *StaticSource) Fetch(ctx context.Context) ([]source.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return append([]source.Item(nil), s.items...), nil
}

// ScriptedPublisher succeeds with a deterministic doc id unless a name
// is marked to fail. An optional delay makes in-flight runs observable.
type ScriptedPublisher struct {
	mu        sync.Mutex
	failNames map[string]bool
	delay     time.Duration
	published []string
}

func NewScriptedPublisher() *ScriptedPublisher {
	return &ScriptedPublisher{
		failNames: make(map[string]bool),
	}
}

func (p *ScriptedPublisher) FailFor(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNames[name] = true
}

func (p *ScriptedPublisher) SetDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
}

func (p *ScriptedPublisher) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func (p *ScriptedPublisher) Publish(ctx context.Context, name, content string) (string, error) {
	p.mu.Lock()
	delay := p.delay
	fail := p.failNames[name]
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail {
		return "", fmt.Errorf("publish rejected for %s", name)
	}

	p.mu.Lock()
	p.published = append(p.published, name)
	p.mu.Unlock()

	return "doc-" + name, nil
}

// NewTestLogger returns a logger that discards output
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
