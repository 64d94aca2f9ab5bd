package wallet

import "context"

// CoordinatorOption configures a Coordinator instance.
type CoordinatorOption func(*Coordinator)

// OperationLogger records domain-level events emitted by coordinator operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing cash balance operation.
type OperationLog struct {
	Operation   string
	UserID      UserID
	RequestID   RequestID
	MethodID    string
	AmountCents int64
	FeeCents    int64
	Status      string
	Error       error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.logger = logger
	}
}
