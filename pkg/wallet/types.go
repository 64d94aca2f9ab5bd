package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// UserID identifies a cash balance owner.
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

// RequestID identifies a withdrawal request.
type RequestID struct {
	value string
}

// NewRequestID validates and normalizes a request id.
func NewRequestID(raw string) (RequestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestID{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	return RequestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RequestID) String() string {
	return id.value
}

// AmountCents is a strictly positive integer currency amount in cents.
type AmountCents int64

// NewAmountCents validates an amount and ensures it is strictly positive.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Int64 returns the raw amount.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// MethodType classifies payout methods for fee purposes.
type MethodType string

const (
	MethodBank        MethodType = "bank"
	MethodMobileMoney MethodType = "mobile_money"
)

// String returns the stable method type value.
func (methodType MethodType) String() string {
	return string(methodType)
}

// ParseMethodType validates a raw method type.
func ParseMethodType(raw string) (MethodType, error) {
	switch MethodType(raw) {
	case MethodBank, MethodMobileMoney:
		return MethodType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethodType, raw)
}

// Status defines the withdrawal request lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// String returns the stable status value.
func (status Status) String() string {
	return string(status)
}

// ParseStatus validates a raw withdrawal status.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
}

// Terminal reports whether the status permits no further transitions.
func (status Status) Terminal() bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces pending -> processing -> {completed|failed} and
// pending/processing -> {cancelled|failed}. Terminal states are final.
func (status Status) CanTransitionTo(to Status) bool {
	switch status {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// CashBalance is the per-user cash ledger row. Transitions move fixed
// amounts between available, pending, and external paid-out; value is never
// created or destroyed except via deposit and withdrawal completion.
type CashBalance struct {
	UserID         string
	AvailableCents int64
	PendingCents   int64
}

// PayoutMethod is a user-owned destination for withdrawals.
type PayoutMethod struct {
	MethodID       string
	UserID         string
	MethodType     MethodType
	Provider       string
	Label          string
	CreatedUnixUTC int64
}

// WithdrawalRequest is one withdrawal attempt with its computed fees.
type WithdrawalRequest struct {
	RequestID      string
	UserID         string
	MethodID       string
	AmountCents    int64
	FeeRateBps     int64
	FeeCents       int64
	NetAmountCents int64
	Status         Status
	Reason         string
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// Store is the persistence contract used by Coordinator.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateBalance(ctx context.Context, userID UserID) (CashBalance, error)
	// MoveAvailableToPending atomically reserves amount; the guard
	// available >= amount failing yields ErrInsufficientBalance.
	MoveAvailableToPending(ctx context.Context, userID UserID, amount AmountCents) (CashBalance, error)
	// SettlePending removes reserved funds that have left the system.
	SettlePending(ctx context.Context, userID UserID, amount AmountCents) (CashBalance, error)
	// ReturnPendingToAvailable releases reserved funds back to the user.
	ReturnPendingToAvailable(ctx context.Context, userID UserID, amount AmountCents) (CashBalance, error)
	AddAvailable(ctx context.Context, userID UserID, amount AmountCents) (CashBalance, error)
	InsertPayoutMethod(ctx context.Context, method PayoutMethod) (PayoutMethod, error)
	GetPayoutMethod(ctx context.Context, userID UserID, methodID string) (PayoutMethod, error)
	ListPayoutMethods(ctx context.Context, userID UserID) ([]PayoutMethod, error)
	InsertWithdrawal(ctx context.Context, request WithdrawalRequest) (WithdrawalRequest, error)
	// GetWithdrawal locks the row for the duration of the transaction.
	GetWithdrawal(ctx context.Context, requestID RequestID) (WithdrawalRequest, error)
	// UpdateWithdrawalStatus guards on the current status; a stale `from`
	// yields ErrInvalidTransition.
	UpdateWithdrawalStatus(ctx context.Context, requestID RequestID, from Status, to Status, reason string) error
	ListWithdrawals(ctx context.Context, userID UserID, limit int) ([]WithdrawalRequest, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}
