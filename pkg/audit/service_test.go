package audit

import (
	"context"
	"errors"
	"testing"
)

type stubStore struct {
	entries []Entry
}

func (store *stubStore) AppendEntry(_ context.Context, entry Entry) error {
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListForUser(_ context.Context, userID string, sinceUnixUTC int64, limit int) ([]Entry, error) {
	matched := make([]Entry, 0, limit)
	for _, entry := range store.entries {
		if entry.UserID != userID {
			continue
		}
		if sinceUnixUTC != 0 && entry.CreatedUnixUTC < sinceUnixUTC {
			continue
		}
		if len(matched) == limit {
			break
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

func mustRecorder(test *testing.T, store Store) *Recorder {
	test.Helper()
	recorder, err := NewRecorder(store, func() int64 { return 1700000000 })
	if err != nil {
		test.Fatalf("recorder init: %v", err)
	}
	return recorder
}

func TestRecordStampsTimeAndDefaultsMetadata(test *testing.T) {
	test.Parallel()
	store := &stubStore{}
	recorder := mustRecorder(test, store)

	err := recorder.Record(context.Background(), Entry{
		UserID:      "user-1",
		Kind:        KindDeposit,
		AmountCents: 500,
	})
	if err != nil {
		test.Fatalf("record: %v", err)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected one entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.CreatedUnixUTC != 1700000000 {
		test.Fatalf("expected stamped time, got %d", entry.CreatedUnixUTC)
	}
	if entry.MetadataJSON != "{}" {
		test.Fatalf("expected defaulted metadata, got %q", entry.MetadataJSON)
	}
}

func TestRecordRejectsUnknownKind(test *testing.T) {
	test.Parallel()
	recorder := mustRecorder(test, &stubStore{})

	err := recorder.Record(context.Background(), Entry{UserID: "user-1", Kind: Kind("refund")})
	if !errors.Is(err, ErrInvalidKind) {
		test.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestRecordRejectsInvalidMetadata(test *testing.T) {
	test.Parallel()
	recorder := mustRecorder(test, &stubStore{})

	err := recorder.Record(context.Background(), Entry{
		UserID:       "user-1",
		Kind:         KindDeposit,
		MetadataJSON: "{not json",
	})
	if !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestListForUserAppliesLimitBounds(test *testing.T) {
	test.Parallel()
	store := &stubStore{}
	recorder := mustRecorder(test, store)
	for index := 0; index < 300; index++ {
		if err := recorder.Record(context.Background(), Entry{UserID: "busy-user", Kind: KindDeposit, AmountCents: 1}); err != nil {
			test.Fatalf("record %d: %v", index, err)
		}
	}

	defaulted, err := recorder.ListForUser(context.Background(), "busy-user", 0, 0)
	if err != nil {
		test.Fatalf("list default: %v", err)
	}
	if len(defaulted) != 50 {
		test.Fatalf("expected default limit 50, got %d", len(defaulted))
	}
	capped, err := recorder.ListForUser(context.Background(), "busy-user", 0, 1000)
	if err != nil {
		test.Fatalf("list capped: %v", err)
	}
	if len(capped) != 200 {
		test.Fatalf("expected cap 200, got %d", len(capped))
	}
	if _, err := recorder.ListForUser(context.Background(), "busy-user", 0, -1); !errors.Is(err, ErrInvalidListLimit) {
		test.Fatalf("expected ErrInvalidListLimit, got %v", err)
	}
}

func TestMarshalMetadataHandlesEmptyMap(test *testing.T) {
	test.Parallel()
	if MarshalMetadata(nil) != "{}" {
		test.Fatalf("nil map must marshal to empty object")
	}
	raw := MarshalMetadata(map[string]any{"reason": "payout"})
	if raw != `{"reason":"payout"}` {
		test.Fatalf("unexpected metadata: %s", raw)
	}
}

func TestParseKindCoversLifecycle(test *testing.T) {
	test.Parallel()
	for _, kind := range []Kind{
		KindPurchase, KindDeposit, KindWithdrawalRequest, KindWithdrawalProcess,
		KindWithdrawalComplete, KindWithdrawalFailed, KindWithdrawalCancelled,
	} {
		parsed, err := ParseKind(kind.String())
		if err != nil {
			test.Fatalf("parse %s: %v", kind, err)
		}
		if parsed != kind {
			test.Fatalf("round trip mismatch for %s", kind)
		}
	}
}
