package wallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// stubStore is an in-memory Store with the same guard semantics as the real
// one: conditional balance moves and status-guarded withdrawal updates.
type stubStore struct {
	balances     map[string]*CashBalance
	methods      map[string]PayoutMethod
	withdrawals  map[string]WithdrawalRequest
	auditEntries []audit.Entry
	nextID       int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		balances:    map[string]*CashBalance{},
		methods:     map[string]PayoutMethod{},
		withdrawals: map[string]WithdrawalRequest{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateBalance(_ context.Context, userID UserID) (CashBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists {
		balance = &CashBalance{UserID: userID.String()}
		store.balances[userID.String()] = balance
	}
	return *balance, nil
}

func (store *stubStore) MoveAvailableToPending(_ context.Context, userID UserID, amount AmountCents) (CashBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists || balance.AvailableCents < amount.Int64() {
		return CashBalance{}, ErrInsufficientBalance
	}
	balance.AvailableCents -= amount.Int64()
	balance.PendingCents += amount.Int64()
	return *balance, nil
}

func (store *stubStore) SettlePending(_ context.Context, userID UserID, amount AmountCents) (CashBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists || balance.PendingCents < amount.Int64() {
		return CashBalance{}, ErrInvalidBalance
	}
	balance.PendingCents -= amount.Int64()
	return *balance, nil
}

func (store *stubStore) ReturnPendingToAvailable(_ context.Context, userID UserID, amount AmountCents) (CashBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists || balance.PendingCents < amount.Int64() {
		return CashBalance{}, ErrInvalidBalance
	}
	balance.PendingCents -= amount.Int64()
	balance.AvailableCents += amount.Int64()
	return *balance, nil
}

func (store *stubStore) AddAvailable(_ context.Context, userID UserID, amount AmountCents) (CashBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists {
		return CashBalance{}, ErrInvalidBalance
	}
	balance.AvailableCents += amount.Int64()
	return *balance, nil
}

func (store *stubStore) InsertPayoutMethod(_ context.Context, method PayoutMethod) (PayoutMethod, error) {
	store.nextID++
	method.MethodID = fmt.Sprintf("method-%d", store.nextID)
	store.methods[method.MethodID] = method
	return method, nil
}

func (store *stubStore) GetPayoutMethod(_ context.Context, userID UserID, methodID string) (PayoutMethod, error) {
	method, exists := store.methods[methodID]
	if !exists || method.UserID != userID.String() {
		return PayoutMethod{}, ErrUnknownPayoutMethod
	}
	return method, nil
}

func (store *stubStore) ListPayoutMethods(_ context.Context, userID UserID) ([]PayoutMethod, error) {
	methods := make([]PayoutMethod, 0)
	for _, method := range store.methods {
		if method.UserID == userID.String() {
			methods = append(methods, method)
		}
	}
	return methods, nil
}

func (store *stubStore) InsertWithdrawal(_ context.Context, request WithdrawalRequest) (WithdrawalRequest, error) {
	store.nextID++
	request.RequestID = fmt.Sprintf("withdrawal-%d", store.nextID)
	store.withdrawals[request.RequestID] = request
	return request, nil
}

func (store *stubStore) GetWithdrawal(_ context.Context, requestID RequestID) (WithdrawalRequest, error) {
	request, exists := store.withdrawals[requestID.String()]
	if !exists {
		return WithdrawalRequest{}, ErrUnknownWithdrawal
	}
	return request, nil
}

func (store *stubStore) UpdateWithdrawalStatus(_ context.Context, requestID RequestID, from Status, to Status, reason string) error {
	request, exists := store.withdrawals[requestID.String()]
	if !exists || request.Status != from {
		return ErrInvalidTransition
	}
	request.Status = to
	if reason != "" {
		request.Reason = reason
	}
	store.withdrawals[requestID.String()] = request
	return nil
}

func (store *stubStore) ListWithdrawals(_ context.Context, userID UserID, limit int) ([]WithdrawalRequest, error) {
	requests := make([]WithdrawalRequest, 0)
	for _, request := range store.withdrawals {
		if request.UserID == userID.String() && len(requests) < limit {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (store *stubStore) AppendAudit(_ context.Context, entry audit.Entry) error {
	store.auditEntries = append(store.auditEntries, entry)
	return nil
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustAmountCents(test *testing.T, raw int64) AmountCents {
	test.Helper()
	amount, err := NewAmountCents(raw)
	if err != nil {
		test.Fatalf("amount %d: %v", raw, err)
	}
	return amount
}

func mustRequestID(test *testing.T, raw string) RequestID {
	test.Helper()
	requestID, err := NewRequestID(raw)
	if err != nil {
		test.Fatalf("request id %q: %v", raw, err)
	}
	return requestID
}

func testFeeSchedule(test *testing.T) FeeSchedule {
	test.Helper()
	schedule, err := NewFeeSchedule(map[MethodType]int64{
		MethodBank:        200,
		MethodMobileMoney: 100,
	})
	if err != nil {
		test.Fatalf("fee schedule init: %v", err)
	}
	return schedule
}

func mustNewCoordinator(test *testing.T, store Store, options ...CoordinatorOption) *Coordinator {
	test.Helper()
	coordinator, err := NewCoordinator(store, testFeeSchedule(test), func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("coordinator init: %v", err)
	}
	return coordinator
}
