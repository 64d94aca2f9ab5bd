package credits

import (
	"context"
	"errors"
	"fmt"
)

// Service owns the balance invariants for consumable like credits:
// lazy initialization, debit-on-use, credit-on-verified-purchase.
type Service struct {
	store     Store
	nowFn     func() int64
	freeGrant int64
	logger    OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, freeGrant: defaultFreeGrant}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetOrCreateBalance returns the user's balance, creating it with the free
// grant on first access.
func (service *Service) GetOrCreateBalance(ctx context.Context, userID UserID) (CreditBalance, error) {
	balance, err := service.store.GetOrCreateBalance(ctx, userID, service.freeGrant)
	service.logOperation(ctx, OperationLog{
		Operation: operationGetOrCreate,
		UserID:    userID,
		Amount:    balance.Balance,
		Error:     err,
	})
	return balance, err
}

// Debit atomically decrements the balance by amount, increments total_used,
// and appends a UsageRecord; the two writes commit together or not at all.
// A shortfall is reported via InsufficientCreditsError and never partially
// fulfilled.
func (service *Service) Debit(ctx context.Context, userID UserID, amount Credits, usage UsageContext) (DebitResult, error) {
	usageType := usage.UsageType
	if usageType == "" {
		usageType = UsageManual
	}
	var result DebitResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		balance, err := transactionStore.GetOrCreateBalance(ctx, userID, service.freeGrant)
		if err != nil {
			return err
		}
		if balance.Balance < amount.Int64() {
			return &InsufficientCreditsError{CurrentBalance: balance.Balance, Needed: amount.Int64()}
		}
		updated, err := transactionStore.ApplyDebit(ctx, userID, amount)
		if err != nil {
			if errors.Is(err, ErrInsufficientCredits) {
				return &InsufficientCreditsError{CurrentBalance: balance.Balance, Needed: amount.Int64()}
			}
			return err
		}
		record := UsageRecord{
			UserID:         userID.String(),
			TargetPostID:   usage.TargetPostID,
			TargetUserID:   usage.TargetUserID,
			CreditsUsed:    amount.Int64(),
			UsageType:      usageType,
			CreatedUnixUTC: service.nowFn(),
		}
		inserted, err := transactionStore.InsertUsage(ctx, record)
		if err != nil {
			return err
		}
		result = DebitResult{RemainingBalance: updated.Balance, Usage: inserted}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		UserID:    userID,
		Amount:    amount.Int64(),
		UsageType: usageType,
		Error:     operationError,
	})
	return result, operationError
}

// Credit atomically increments the balance, tracking purchase-sourced grants
// in total_purchased. It is reserved for the purchase verification service
// and administrative grants; client-facing endpoints never call it directly.
func (service *Service) Credit(ctx context.Context, userID UserID, amount Credits, source CreditSource) (CreditBalance, error) {
	var updated CreditBalance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		updated, err = service.creditTx(ctx, transactionStore, userID, amount, source)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		UserID:    userID,
		Amount:    amount.Int64(),
		Error:     operationError,
	})
	return updated, operationError
}

// creditTx applies a credit inside an already-open transaction. The verifier
// uses it so the purchase record and the grant commit as one unit.
func (service *Service) creditTx(ctx context.Context, transactionStore Store, userID UserID, amount Credits, source CreditSource) (CreditBalance, error) {
	if _, err := ParseCreditSource(source.String()); err != nil {
		return CreditBalance{}, err
	}
	if _, err := transactionStore.GetOrCreateBalance(ctx, userID, service.freeGrant); err != nil {
		return CreditBalance{}, err
	}
	return transactionStore.ApplyCredit(ctx, userID, amount, source)
}

// ListUsage returns recent usage records for reconciliation tooling.
func (service *Service) ListUsage(ctx context.Context, userID UserID, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = defaultUsageListLimit
	}
	if limit > maxUsageListLimit {
		limit = maxUsageListLimit
	}
	return service.store.ListUsage(ctx, userID, limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
