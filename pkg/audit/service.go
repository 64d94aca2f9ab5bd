package audit

import (
	"context"
	"fmt"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Recorder appends and reads the immutable audit trail. Balance-affecting
// writers append their entries inside the owning store transaction; Record
// exists for standalone entries such as externally authorized transitions.
type Recorder struct {
	store Store
	nowFn func() int64
}

// NewRecorder wires a Recorder.
func NewRecorder(store Store, now func() int64) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidRecorderSetup)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidRecorderSetup)
	}
	return &Recorder{store: store, nowFn: now}, nil
}

// Record appends a single entry. Prior entries are never rewritten.
func (recorder *Recorder) Record(ctx context.Context, entry Entry) error {
	if _, err := ParseKind(entry.Kind.String()); err != nil {
		return err
	}
	metadata, err := NewMetadataJSON(entry.MetadataJSON)
	if err != nil {
		return err
	}
	entry.MetadataJSON = metadata
	if entry.CreatedUnixUTC == 0 {
		entry.CreatedUnixUTC = recorder.nowFn()
	}
	return recorder.store.AppendEntry(ctx, entry)
}

// ListForUser returns a user's entries in insertion order, oldest first,
// restricted to entries created at or after sinceUnixUTC when nonzero.
func (recorder *Recorder) ListForUser(ctx context.Context, userID string, sinceUnixUTC int64, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidListLimit, limit)
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return recorder.store.ListForUser(ctx, userID, sinceUnixUTC, limit)
}
