package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags an audit entry with the balance-affecting action it describes.
type Kind string

const (
	KindPurchase            Kind = "purchase"
	KindDeposit             Kind = "deposit"
	KindWithdrawalRequest   Kind = "withdrawal_request"
	KindWithdrawalProcess   Kind = "withdrawal_processing"
	KindWithdrawalComplete  Kind = "withdrawal_completed"
	KindWithdrawalFailed    Kind = "withdrawal_failed"
	KindWithdrawalCancelled Kind = "withdrawal_cancelled"
)

// String returns the stable kind value.
func (kind Kind) String() string {
	return string(kind)
}

// ParseKind validates a raw kind value.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPurchase, KindDeposit, KindWithdrawalRequest, KindWithdrawalProcess,
		KindWithdrawalComplete, KindWithdrawalFailed, KindWithdrawalCancelled:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}

// Entry is a single immutable line in the audit log. Amounts are signed:
// money leaving a balance is negative, money entering it is positive.
type Entry struct {
	EntryID        string
	UserID         string
	Kind           Kind
	AmountCents    int64
	ReferenceID    string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (string, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return "", fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return normalized, nil
}

// MarshalMetadata renders a metadata map as a JSON blob for an entry.
func MarshalMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Store is the persistence contract for the append-only audit log.
type Store interface {
	AppendEntry(ctx context.Context, entry Entry) error
	ListForUser(ctx context.Context, userID string, sinceUnixUTC int64, limit int) ([]Entry, error)
}
