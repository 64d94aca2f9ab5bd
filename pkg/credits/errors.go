package credits

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the credit accounting engine and the
// purchase verification service.
var (
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrUnknownProduct         = errors.New("unknown product")
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrDuplicatePurchase      = errors.New("duplicate purchase token")
	ErrPaymentNotConfirmed    = errors.New("payment not confirmed")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidCreditsAmount   = errors.New("invalid credits amount")
	ErrInvalidPurchaseToken   = errors.New("invalid purchase token")
	ErrInvalidProductID       = errors.New("invalid product id")
	ErrInvalidUsageType       = errors.New("invalid usage type")
	ErrInvalidCreditSource    = errors.New("invalid credit source")
	ErrInvalidPurchaseStatus  = errors.New("invalid purchase status")
	ErrInvalidCatalog         = errors.New("invalid catalog")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrInvalidBalance         = errors.New("invalid balance")
	ErrPurchaseAlreadyApplied = errors.New("purchase already applied")
)

// InsufficientCreditsError reports the exact shortfall so callers can render
// a precise message. It unwraps to ErrInsufficientCredits.
type InsufficientCreditsError struct {
	CurrentBalance int64
	Needed         int64
}

// Error returns the formatted error message.
func (insufficientError *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", insufficientError.CurrentBalance, insufficientError.Needed)
}

// Unwrap returns the sentinel for errors.Is checks.
func (insufficientError *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
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
