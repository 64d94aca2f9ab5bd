package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// Coordinator owns the cash balance invariants: available/pending transitions,
// fee computation, and the withdrawal request lifecycle. Every balance
// mutation and its audit entry commit in one store transaction.
type Coordinator struct {
	store  Store
	fees   FeeSchedule
	nowFn  func() int64
	logger OperationLogger
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(store Store, fees FeeSchedule, now func() int64, options ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidCoordinatorSetup)
	}
	if len(fees.ratesBps) == 0 {
		return nil, fmt.Errorf("%w: empty fee schedule", ErrInvalidCoordinatorSetup)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidCoordinatorSetup)
	}
	coordinator := &Coordinator{store: store, fees: fees, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(coordinator)
		}
	}
	return coordinator, nil
}

// Balance returns the user's cash balance, creating an empty row on first access.
func (coordinator *Coordinator) Balance(ctx context.Context, userID UserID) (CashBalance, error) {
	return coordinator.store.GetOrCreateBalance(ctx, userID)
}

// Deposit credits available funds. The caller is an externally authorized
// collaborator (earnings settlement, payout-processor callback); the
// coordinator only applies the transition and its audit entry.
func (coordinator *Coordinator) Deposit(ctx context.Context, userID UserID, amount AmountCents, metadataJSON string) (CashBalance, error) {
	var updated CashBalance
	operationError := coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetOrCreateBalance(ctx, userID); err != nil {
			return err
		}
		var err error
		updated, err = transactionStore.AddAvailable(ctx, userID, amount)
		if err != nil {
			return err
		}
		metadata, err := audit.NewMetadataJSON(metadataJSON)
		if err != nil {
			return err
		}
		return transactionStore.AppendAudit(ctx, audit.Entry{
			UserID:         userID.String(),
			Kind:           audit.KindDeposit,
			AmountCents:    amount.Int64(),
			MetadataJSON:   metadata,
			CreatedUnixUTC: coordinator.nowFn(),
		})
	})
	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationDeposit,
		UserID:      userID,
		AmountCents: amount.Int64(),
		Error:       operationError,
	})
	return updated, operationError
}

// RegisterPayoutMethod stores a withdrawal destination owned by the user.
func (coordinator *Coordinator) RegisterPayoutMethod(ctx context.Context, userID UserID, methodType MethodType, provider string, label string) (PayoutMethod, error) {
	if _, err := ParseMethodType(methodType.String()); err != nil {
		return PayoutMethod{}, err
	}
	if _, err := coordinator.fees.RateBps(methodType); err != nil {
		return PayoutMethod{}, err
	}
	method, operationError := coordinator.store.InsertPayoutMethod(ctx, PayoutMethod{
		UserID:         userID.String(),
		MethodType:     methodType,
		Provider:       provider,
		Label:          label,
		CreatedUnixUTC: coordinator.nowFn(),
	})
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationRegisterMethod,
		UserID:    userID,
		MethodID:  method.MethodID,
		Error:     operationError,
	})
	return method, operationError
}

// ListPayoutMethods returns the user's registered destinations.
func (coordinator *Coordinator) ListPayoutMethods(ctx context.Context, userID UserID) ([]PayoutMethod, error) {
	return coordinator.store.ListPayoutMethods(ctx, userID)
}

// RequestWithdrawal reserves amount from available funds, computes fees from
// the method's configured rate, and opens a pending request. The reserve is a
// compare-and-decrement: of two concurrent requests exceeding available,
// exactly one wins and the other observes the reduced balance.
func (coordinator *Coordinator) RequestWithdrawal(ctx context.Context, userID UserID, amount AmountCents, methodID string) (WithdrawalRequest, error) {
	var request WithdrawalRequest
	operationError := coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		method, err := transactionStore.GetPayoutMethod(ctx, userID, methodID)
		if err != nil {
			return err
		}
		rateBps, err := coordinator.fees.RateBps(method.MethodType)
		if err != nil {
			return err
		}
		balance, err := transactionStore.GetOrCreateBalance(ctx, userID)
		if err != nil {
			return err
		}
		if balance.AvailableCents < amount.Int64() {
			return &InsufficientBalanceError{AvailableCents: balance.AvailableCents, NeededCents: amount.Int64()}
		}
		if _, err := transactionStore.MoveAvailableToPending(ctx, userID, amount); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return &InsufficientBalanceError{AvailableCents: balance.AvailableCents, NeededCents: amount.Int64()}
			}
			return err
		}
		feeCents := ComputeFee(amount, rateBps)
		nowUnixUTC := coordinator.nowFn()
		request, err = transactionStore.InsertWithdrawal(ctx, WithdrawalRequest{
			UserID:         userID.String(),
			MethodID:       method.MethodID,
			AmountCents:    amount.Int64(),
			FeeRateBps:     rateBps,
			FeeCents:       feeCents,
			NetAmountCents: amount.Int64() - feeCents,
			Status:         StatusPending,
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return err
		}
		return transactionStore.AppendAudit(ctx, audit.Entry{
			UserID:      userID.String(),
			Kind:        audit.KindWithdrawalRequest,
			AmountCents: -amount.Int64(),
			ReferenceID: request.RequestID,
			MetadataJSON: audit.MarshalMetadata(map[string]any{
				"method_type": method.MethodType.String(),
				"provider":    method.Provider,
				"fee_cents":   feeCents,
			}),
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationRequest,
		UserID:      userID,
		RequestID:   RequestID{value: request.RequestID},
		MethodID:    methodID,
		AmountCents: amount.Int64(),
		FeeCents:    request.FeeCents,
		Error:       operationError,
	})
	return request, operationError
}

// GetWithdrawal returns one request.
func (coordinator *Coordinator) GetWithdrawal(ctx context.Context, requestID RequestID) (WithdrawalRequest, error) {
	return coordinator.store.GetWithdrawal(ctx, requestID)
}

// ListWithdrawals returns the user's requests, newest first.
func (coordinator *Coordinator) ListWithdrawals(ctx context.Context, userID UserID, limit int) ([]WithdrawalRequest, error) {
	if limit <= 0 {
		limit = defaultWithdrawalListLimit
	}
	if limit > maxWithdrawalListLimit {
		limit = maxWithdrawalListLimit
	}
	return coordinator.store.ListWithdrawals(ctx, userID, limit)
}

// BeginProcessing moves a pending request to processing.
func (coordinator *Coordinator) BeginProcessing(ctx context.Context, requestID RequestID) (WithdrawalRequest, error) {
	request, operationError := coordinator.transition(ctx, requestID, StatusProcessing, "", audit.KindWithdrawalProcess)
	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationProcess,
		RequestID:   requestID,
		AmountCents: request.AmountCents,
		Error:       operationError,
	})
	return request, operationError
}

// Complete finalizes a processing request: reserved funds leave the system.
func (coordinator *Coordinator) Complete(ctx context.Context, requestID RequestID) (WithdrawalRequest, error) {
	request, operationError := coordinator.transition(ctx, requestID, StatusCompleted, "", audit.KindWithdrawalComplete)
	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationComplete,
		RequestID:   requestID,
		AmountCents: request.AmountCents,
		Error:       operationError,
	})
	return request, operationError
}

// CancelOrFail terminates a pending or processing request and returns the
// reserved funds to available. Terminal must be cancelled or failed.
func (coordinator *Coordinator) CancelOrFail(ctx context.Context, requestID RequestID, terminal Status, reason string) (WithdrawalRequest, error) {
	if terminal != StatusCancelled && terminal != StatusFailed {
		return WithdrawalRequest{}, fmt.Errorf("%w: %s is not a cancel/fail target", ErrInvalidTransition, terminal)
	}
	kind := audit.KindWithdrawalCancelled
	if terminal == StatusFailed {
		kind = audit.KindWithdrawalFailed
	}
	request, operationError := coordinator.transition(ctx, requestID, terminal, reason, kind)
	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationCancelOrFail,
		RequestID:   requestID,
		AmountCents: request.AmountCents,
		Status:      terminal.String(),
		Error:       operationError,
	})
	return request, operationError
}

// transition applies one state-machine step with its balance effect and audit
// entry in a single transaction.
func (coordinator *Coordinator) transition(ctx context.Context, requestID RequestID, to Status, reason string, kind audit.Kind) (WithdrawalRequest, error) {
	var request WithdrawalRequest
	operationError := coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		if err := transactionStore.UpdateWithdrawalStatus(ctx, requestID, current.Status, to, reason); err != nil {
			return err
		}
		userID, err := NewUserID(current.UserID)
		if err != nil {
			return err
		}
		amount, err := NewAmountCents(current.AmountCents)
		if err != nil {
			return err
		}
		auditAmount := int64(0)
		switch to {
		case StatusCompleted:
			if _, err := transactionStore.SettlePending(ctx, userID, amount); err != nil {
				return err
			}
		case StatusCancelled, StatusFailed:
			if _, err := transactionStore.ReturnPendingToAvailable(ctx, userID, amount); err != nil {
				return err
			}
			auditAmount = current.AmountCents
		}
		metadata := map[string]any{"from": current.Status.String(), "to": to.String()}
		if reason != "" {
			metadata["reason"] = reason
		}
		if err := transactionStore.AppendAudit(ctx, audit.Entry{
			UserID:         current.UserID,
			Kind:           kind,
			AmountCents:    auditAmount,
			ReferenceID:    current.RequestID,
			MetadataJSON:   audit.MarshalMetadata(metadata),
			CreatedUnixUTC: coordinator.nowFn(),
		}); err != nil {
			return err
		}
		request = current
		request.Status = to
		request.Reason = reason
		request.UpdatedUnixUTC = coordinator.nowFn()
		return nil
	})
	return request, operationError
}

func (coordinator *Coordinator) logOperation(ctx context.Context, entry OperationLog) {
	if coordinator.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	coordinator.logger.LogOperation(ctx, entry)
}
