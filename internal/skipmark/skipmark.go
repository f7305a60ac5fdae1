// Package skipmark records which content records a backfill must not
// revisit.
//
// A marker is a metadata row on the record under a fixed key whose value is
// a reason code. Markers are written once and survive until cleared out of
// band.
package skipmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bylines/internal/ir"
)

// DefaultKey is the metadata key markers are stored under unless configured
// otherwise.
const DefaultKey = "_bylines_skip_backfill"

// Reason codes. The value stored on a marker is always one of these.
const (
	ReasonAuthorNotFound = "author_not_found"
)

// KnownReason reports whether reason is in the reason namespace.
func KnownReason(reason string) bool {
	switch reason {
	case ReasonAuthorNotFound:
		return true
	}
	return false
}

// MetaStore is the metadata surface markers are kept in.
type MetaStore interface {
	AddMeta(ctx context.Context, recordID ir.RecordID, key, value string, createdAt time.Time) (bool, error)
	HasMeta(ctx context.Context, recordID ir.RecordID, key string) (bool, error)
	DeleteMeta(ctx context.Context, key string, ids ...ir.RecordID) (int64, error)
	RecordsWithMeta(ctx context.Context, key string) ([]ir.SkipMarker, error)
}

// Clock supplies marker timestamps.
type Clock func() time.Time

// Markers reads and writes skip markers under one metadata key.
type Markers struct {
	store MetaStore
	key   string
	now   Clock
}

// New returns Markers stored under key. A nil clock uses time.Now.
func New(store MetaStore, key string, now Clock) (*Markers, error) {
	if key == "" {
		return nil, errors.New("skip marker key is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Markers{store: store, key: key, now: now}, nil
}

// Key returns the metadata key markers live under.
func (m *Markers) Key() string {
	return m.key
}

// Mark records that recordID must be skipped. Marking an already marked
// record keeps the first marker; created reports whether this call wrote it.
func (m *Markers) Mark(ctx context.Context, recordID ir.RecordID, reason string) (created bool, err error) {
	if !KnownReason(reason) {
		return false, fmt.Errorf("mark record %d: unknown reason %q", recordID, reason)
	}

	created, err = m.store.AddMeta(ctx, recordID, m.key, reason, m.now())
	if err != nil {
		return false, fmt.Errorf("mark record %d: %w", recordID, err)
	}
	return created, nil
}

// IsSkipped reports whether recordID carries a marker.
func (m *Markers) IsSkipped(ctx context.Context, recordID ir.RecordID) (bool, error) {
	skipped, err := m.store.HasMeta(ctx, recordID, m.key)
	if err != nil {
		return false, fmt.Errorf("check marker on record %d: %w", recordID, err)
	}
	return skipped, nil
}

// Clear deletes the markers of ids, or every marker when ids is empty.
// Returns how many markers were removed.
func (m *Markers) Clear(ctx context.Context, ids ...ir.RecordID) (int64, error) {
	n, err := m.store.DeleteMeta(ctx, m.key, ids...)
	if err != nil {
		return 0, fmt.Errorf("clear markers: %w", err)
	}
	return n, nil
}

// List returns every marker ordered by record id.
func (m *Markers) List(ctx context.Context) ([]ir.SkipMarker, error) {
	markers, err := m.store.RecordsWithMeta(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	return markers, nil
}
