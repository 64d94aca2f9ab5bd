package credits

import (
	"context"
	"fmt"
	"strings"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// UserID identifies a balance owner. Identity is established by an external
// provider; the engine only requires a stable, non-empty value.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// PurchaseToken is the provider-issued idempotency key for one confirmed
// payment event.
type PurchaseToken struct {
	value string
}

// NewPurchaseToken validates and normalizes a purchase token.
func NewPurchaseToken(raw string) (PurchaseToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PurchaseToken{}, fmt.Errorf("%w: empty value", ErrInvalidPurchaseToken)
	}
	return PurchaseToken{value: trimmed}, nil
}

// String returns the normalized token.
func (token PurchaseToken) String() string {
	return token.value
}

// ProductID identifies a catalog pack.
type ProductID struct {
	value string
}

// NewProductID validates and normalizes a product id.
func NewProductID(raw string) (ProductID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProductID{}, fmt.Errorf("%w: empty value", ErrInvalidProductID)
	}
	return ProductID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProductID) String() string {
	return id.value
}

// Credits is a strictly positive number of consumable like credits.
type Credits int64

// NewCredits validates an amount and ensures it is strictly positive.
func NewCredits(raw int64) (Credits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidCreditsAmount)
	}
	return Credits(raw), nil
}

// Int64 returns the raw amount.
func (amount Credits) Int64() int64 {
	return int64(amount)
}

// UsageType distinguishes user-initiated debits from automated ones.
type UsageType string

const (
	UsageManual    UsageType = "manual"
	UsageAutomatic UsageType = "automatic"
)

// String returns the stable usage type value.
func (usageType UsageType) String() string {
	return string(usageType)
}

// ParseUsageType validates a raw usage type, defaulting empty input to manual.
func ParseUsageType(raw string) (UsageType, error) {
	switch UsageType(raw) {
	case UsageManual, UsageAutomatic:
		return UsageType(raw), nil
	}
	if strings.TrimSpace(raw) == "" {
		return UsageManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUsageType, raw)
}

// CreditSource tags what produced a credit grant.
type CreditSource string

const (
	SourcePurchase  CreditSource = "purchase"
	SourcePromotion CreditSource = "promotion"
)

// String returns the stable source value.
func (source CreditSource) String() string {
	return string(source)
}

// ParseCreditSource validates a raw credit source.
func ParseCreditSource(raw string) (CreditSource, error) {
	switch CreditSource(raw) {
	case SourcePurchase, SourcePromotion:
		return CreditSource(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCreditSource, raw)
}

// PurchaseStatus defines the purchase record lifecycle.
type PurchaseStatus string

const (
	PurchasePending  PurchaseStatus = "pending"
	PurchaseVerified PurchaseStatus = "verified"
	PurchaseFailed   PurchaseStatus = "failed"
)

// String returns the stable status value.
func (status PurchaseStatus) String() string {
	return string(status)
}

// ParsePurchaseStatus validates a raw purchase status.
func ParsePurchaseStatus(raw string) (PurchaseStatus, error) {
	switch PurchaseStatus(raw) {
	case PurchasePending, PurchaseVerified, PurchaseFailed:
		return PurchaseStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPurchaseStatus, raw)
}

// CreditBalance is the per-user consumable balance row.
// Invariant: Balance = TotalPurchased + free grants - TotalUsed, never negative.
type CreditBalance struct {
	UserID         string
	Balance        int64
	TotalPurchased int64
	TotalUsed      int64
}

// UsageContext describes what a debit paid for.
type UsageContext struct {
	TargetPostID string
	TargetUserID string
	UsageType    UsageType
}

// UsageRecord is an append-only log entry for one debit.
type UsageRecord struct {
	UsageID        string
	UserID         string
	TargetPostID   string
	TargetUserID   string
	CreditsUsed    int64
	UsageType      UsageType
	CreatedUnixUTC int64
}

// PurchaseRecord is one external payment confirmation, immutable once verified.
type PurchaseRecord struct {
	PurchaseID       string
	UserID           string
	PurchaseToken    string
	ProductID        string
	PackName         string
	CreditsAmount    int64
	PriceAmountCents int64
	Status           PurchaseStatus
	VerifiedUnixUTC  int64
	CreatedUnixUTC   int64
}

// DebitResult reports the outcome of a successful debit.
type DebitResult struct {
	RemainingBalance int64
	Usage            UsageRecord
}

// PurchaseResult reports the outcome of a purchase verification. Replays of
// an already-verified token return the stored record with AlreadyProcessed set.
type PurchaseResult struct {
	Purchase         PurchaseRecord
	CreditsAdded     int64
	NewBalance       int64
	AlreadyProcessed bool
}

// Store is the persistence contract used by Service and Verifier.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// GetOrCreateBalance returns the existing row or atomically creates one
	// seeded with freeGrant. At most one row per user under concurrent first
	// access (insert-or-fetch over a unique key, not read-then-write).
	GetOrCreateBalance(ctx context.Context, userID UserID, freeGrant int64) (CreditBalance, error)
	// ApplyDebit conditionally decrements balance and increments total_used.
	// Returns ErrInsufficientCredits when the guard balance >= amount fails.
	ApplyDebit(ctx context.Context, userID UserID, amount Credits) (CreditBalance, error)
	// ApplyCredit increments balance and, for purchase-sourced credits,
	// total_purchased.
	ApplyCredit(ctx context.Context, userID UserID, amount Credits, source CreditSource) (CreditBalance, error)
	// InsertUsage appends the record and returns it with its assigned id.
	InsertUsage(ctx context.Context, record UsageRecord) (UsageRecord, error)
	ListUsage(ctx context.Context, userID UserID, limit int) ([]UsageRecord, error)
	// GetPurchase returns ErrPurchaseNotFound when no record matches.
	GetPurchase(ctx context.Context, userID UserID, token PurchaseToken) (PurchaseRecord, error)
	// InsertPurchase returns ErrDuplicatePurchase on a (user_id, purchase_token)
	// unique violation; that violation is the canonical already-processed signal.
	InsertPurchase(ctx context.Context, record PurchaseRecord) (PurchaseRecord, error)
	// MarkPurchaseVerified transitions pending -> verified; returns
	// ErrPurchaseAlreadyApplied when the record is no longer pending.
	MarkPurchaseVerified(ctx context.Context, userID UserID, token PurchaseToken, verifiedUnixUTC int64) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}
