package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Sync status values recorded per tracker row
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// TrackerRecord is the durable sync state for one source item.
// LastSyncedUpdateTime keeps the remote timestamp as the source reported
// it (string, possibly without a timezone offset); the change detector
// owns parsing it.
type TrackerRecord struct {
	SourceID             string
	SourceType           string
	LastSyncedUpdateTime string
	DifyDocumentID       string
	LastSyncStatus       string
	LastSyncedAt         time.Time
}

const createTrackerTable = `
	CREATE TABLE IF NOT EXISTS sync_tracker (
		source_id VARCHAR(255) PRIMARY KEY,
		source_type VARCHAR(50) NOT NULL,
		last_synced_update_time VARCHAR(64) NOT NULL,
		dify_document_id VARCHAR(255),
		last_sync_status VARCHAR(50),
		last_synced_at TIMESTAMP
	)
`

// EnsureSchema creates the sync_tracker table if it does not exist.
// Safe to call on every startup. Adding new source types never requires
// a migration since source_type is an unconstrained column.
func (db *DB) EnsureSchema() error {
	if _, err := db.Exec(createTrackerTable); err != nil {
		return fmt.Errorf("failed to create sync_tracker table: %w", err)
	}
	return nil
}

// GetTrackerRecord retrieves the tracker row for a source id.
// Returns ErrNotFound when no row exists; absence is not a failure.
func (db *DB) GetTrackerRecord(sourceID string) (*TrackerRecord, error) {
	rec := &TrackerRecord{}

	query := `
		SELECT source_id, source_type, last_synced_update_time, dify_document_id, last_sync_status, last_synced_at
		FROM sync_tracker
		WHERE source_id = ` + db.placeholder(1)

	var docID, status sql.NullString
	var syncedAt sql.NullTime

	err := db.QueryRow(query, sourceID).Scan(
		&rec.SourceID,
		&rec.SourceType,
		&rec.LastSyncedUpdateTime,
		&docID,
		&status,
		&syncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	rec.DifyDocumentID = docID.String
	rec.LastSyncStatus = status.String
	rec.LastSyncedAt = syncedAt.Time

	return rec, nil
}

// UpsertTrackerRecord inserts or overwrites the tracker row for
// rec.SourceID. At most one row per source id is ever kept; no history.
// last_synced_at is always set by the store, never by the caller.
func (db *DB) UpsertTrackerRecord(rec TrackerRecord) error {
	var query string

	switch db.driver {
	case DriverPostgres:
		query = `
			INSERT INTO sync_tracker (source_id, source_type, last_synced_update_time, dify_document_id, last_sync_status, last_synced_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (source_id) DO UPDATE SET
				source_type = EXCLUDED.source_type,
				last_synced_update_time = EXCLUDED.last_synced_update_time,
				dify_document_id = EXCLUDED.dify_document_id,
				last_sync_status = EXCLUDED.last_sync_status,
				last_synced_at = EXCLUDED.last_synced_at
		`
	default:
		query = `
			INSERT OR REPLACE INTO sync_tracker (source_id, source_type, last_synced_update_time, dify_document_id, last_sync_status, last_synced_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
	}

	return db.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(query,
			rec.SourceID,
			rec.SourceType,
			rec.LastSyncedUpdateTime,
			rec.DifyDocumentID,
			rec.LastSyncStatus,
			time.Now(),
		)
		return err
	})
}

// placeholder returns the positional parameter marker for the driver
func (db *DB) placeholder(n int) string {
	if db.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
