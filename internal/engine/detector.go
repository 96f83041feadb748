package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/tsungho/knowsync/internal/db"
	"github.com/tsungho/knowsync/internal/source"
)

// offsetPattern matches a trailing timezone offset (Z, +08:00, -0500)
var offsetPattern = regexp.MustCompile(`(Z|[+-]\d{2}:?\d{2})$`)

// ShouldSync decides whether a remote item must be (re)published.
//
// Rules:
//   - no tracker record: sync (first-seen item)
//   - either timestamp unparsable: sync (fail open; a resync is cheap,
//     silently skipping forever is not)
//   - sync iff the remote timestamp is strictly newer than the stored
//     one; equal is not newer
//
// Sources disagree on whether timestamps carry a timezone offset. When
// exactly one side has an offset it is stripped and both are compared
// as naive wall-clock times; when both or neither have one they are
// compared directly.
//
// Pure function: no I/O, no clock.
func ShouldSync(remote source.Item, tracked *db.TrackerRecord) bool {
	if tracked == nil {
		return true
	}

	remoteTime, err := parseTimestamp(remote.UpdatedAt)
	if err != nil {
		return true
	}

	trackedTime, err := parseTimestamp(tracked.LastSyncedUpdateTime)
	if err != nil {
		return true
	}

	remoteAware := hasOffset(remote.UpdatedAt)
	trackedAware := hasOffset(tracked.LastSyncedUpdateTime)

	switch {
	case remoteAware && !trackedAware:
		return stripOffset(remoteTime).After(trackedTime)
	case !remoteAware && trackedAware:
		return remoteTime.After(stripOffset(trackedTime))
	default:
		return remoteTime.After(trackedTime)
	}
}

// parseTimestamp parses a source timestamp in whatever format it
// arrived in. Naive timestamps come back with their wall clock in UTC.
func parseTimestamp(value string) (time.Time, error) {
	return dateparse.ParseAny(strings.TrimSpace(value))
}

// hasOffset reports whether the raw timestamp string carries an
// explicit timezone offset
func hasOffset(value string) bool {
	return offsetPattern.MatchString(strings.TrimSpace(value))
}

// stripOffset discards a time's zone, keeping its wall clock. The
// result compares against naive timestamps on equal footing.
func stripOffset(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
