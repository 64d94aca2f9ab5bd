package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the cash balance coordinator.
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnknownPayoutMethod     = errors.New("unknown payout method")
	ErrUnknownWithdrawal       = errors.New("unknown withdrawal request")
	ErrInvalidTransition       = errors.New("invalid withdrawal transition")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidRequestID        = errors.New("invalid request id")
	ErrInvalidAmountCents      = errors.New("invalid amount cents")
	ErrInvalidMethodType       = errors.New("invalid payout method type")
	ErrInvalidWithdrawalStatus = errors.New("invalid withdrawal status")
	ErrInvalidFeeSchedule      = errors.New("invalid fee schedule")
	ErrInvalidCoordinatorSetup = errors.New("invalid coordinator setup")
	ErrInvalidBalance          = errors.New("invalid balance")
)

// InsufficientBalanceError reports the exact shortfall so callers can render
// a precise message. It unwraps to ErrInsufficientBalance.
type InsufficientBalanceError struct {
	AvailableCents int64
	NeededCents    int64
}

// Error returns the formatted error message.
func (insufficientError *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", insufficientError.AvailableCents, insufficientError.NeededCents)
}

// Unwrap returns the sentinel for errors.Is checks.
func (insufficientError *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
