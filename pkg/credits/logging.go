package credits

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by engine operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing credit operation.
type OperationLog struct {
	Operation     string
	UserID        UserID
	Amount        int64
	ProductID     ProductID
	PurchaseToken PurchaseToken
	UsageType     UsageType
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithFreeGrant overrides the credits seeded on first balance access.
func WithFreeGrant(freeGrant int64) ServiceOption {
	return func(service *Service) {
		if freeGrant >= 0 {
			service.freeGrant = freeGrant
		}
	}
}
