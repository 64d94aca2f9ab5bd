package credits

import (
	"context"
	"fmt"
	"testing"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// stubStore is an in-memory Store with the same guard semantics as the real
// one: conditional debits, unique (user, token) purchases, pending-only
// verification marks.
type stubStore struct {
	balances     map[string]*CreditBalance
	usage        []UsageRecord
	purchases    map[string]PurchaseRecord
	auditEntries []audit.Entry
	nextID       int

	failGetOrCreate error
	failApplyDebit  error
	failInsertUsage error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		balances:  map[string]*CreditBalance{},
		purchases: map[string]PurchaseRecord{},
	}
}

func purchaseKey(userID string, token string) string {
	return userID + "\x00" + token
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateBalance(_ context.Context, userID UserID, freeGrant int64) (CreditBalance, error) {
	if store.failGetOrCreate != nil {
		return CreditBalance{}, store.failGetOrCreate
	}
	balance, exists := store.balances[userID.String()]
	if !exists {
		balance = &CreditBalance{UserID: userID.String(), Balance: freeGrant}
		store.balances[userID.String()] = balance
	}
	return *balance, nil
}

func (store *stubStore) ApplyDebit(_ context.Context, userID UserID, amount Credits) (CreditBalance, error) {
	if store.failApplyDebit != nil {
		return CreditBalance{}, store.failApplyDebit
	}
	balance, exists := store.balances[userID.String()]
	if !exists || balance.Balance < amount.Int64() {
		return CreditBalance{}, ErrInsufficientCredits
	}
	balance.Balance -= amount.Int64()
	balance.TotalUsed += amount.Int64()
	return *balance, nil
}

func (store *stubStore) ApplyCredit(_ context.Context, userID UserID, amount Credits, source CreditSource) (CreditBalance, error) {
	balance, exists := store.balances[userID.String()]
	if !exists {
		return CreditBalance{}, ErrInvalidBalance
	}
	balance.Balance += amount.Int64()
	if source == SourcePurchase {
		balance.TotalPurchased += amount.Int64()
	}
	return *balance, nil
}

func (store *stubStore) InsertUsage(_ context.Context, record UsageRecord) (UsageRecord, error) {
	if store.failInsertUsage != nil {
		return UsageRecord{}, store.failInsertUsage
	}
	store.nextID++
	record.UsageID = fmt.Sprintf("usage-%d", store.nextID)
	store.usage = append(store.usage, record)
	return record, nil
}

func (store *stubStore) ListUsage(_ context.Context, userID UserID, limit int) ([]UsageRecord, error) {
	records := make([]UsageRecord, 0, limit)
	for index := len(store.usage) - 1; index >= 0 && len(records) < limit; index-- {
		if store.usage[index].UserID == userID.String() {
			records = append(records, store.usage[index])
		}
	}
	return records, nil
}

func (store *stubStore) GetPurchase(_ context.Context, userID UserID, token PurchaseToken) (PurchaseRecord, error) {
	record, exists := store.purchases[purchaseKey(userID.String(), token.String())]
	if !exists {
		return PurchaseRecord{}, ErrPurchaseNotFound
	}
	return record, nil
}

func (store *stubStore) InsertPurchase(_ context.Context, record PurchaseRecord) (PurchaseRecord, error) {
	key := purchaseKey(record.UserID, record.PurchaseToken)
	if _, exists := store.purchases[key]; exists {
		return PurchaseRecord{}, ErrDuplicatePurchase
	}
	store.nextID++
	record.PurchaseID = fmt.Sprintf("purchase-%d", store.nextID)
	store.purchases[key] = record
	return record, nil
}

func (store *stubStore) MarkPurchaseVerified(_ context.Context, userID UserID, token PurchaseToken, verifiedUnixUTC int64) error {
	key := purchaseKey(userID.String(), token.String())
	record, exists := store.purchases[key]
	if !exists || record.Status != PurchasePending {
		return ErrPurchaseAlreadyApplied
	}
	record.Status = PurchaseVerified
	record.VerifiedUnixUTC = verifiedUnixUTC
	store.purchases[key] = record
	return nil
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

func mustCredits(test *testing.T, raw int64) Credits {
	test.Helper()
	amount, err := NewCredits(raw)
	if err != nil {
		test.Fatalf("credits %d: %v", raw, err)
	}
	return amount
}

func mustToken(test *testing.T, raw string) PurchaseToken {
	test.Helper()
	token, err := NewPurchaseToken(raw)
	if err != nil {
		test.Fatalf("token %q: %v", raw, err)
	}
	return token
}

func mustProductID(test *testing.T, raw string) ProductID {
	test.Helper()
	productID, err := NewProductID(raw)
	if err != nil {
		test.Fatalf("product id %q: %v", raw, err)
	}
	return productID
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func testCatalog(test *testing.T) Catalog {
	test.Helper()
	catalog, err := NewCatalog([]Pack{
		{ProductID: "com.afrikoin.likes_1000", Name: "Pack Starter", Credits: 1000, PriceCents: 999},
		{ProductID: "com.afrikoin.likes_5000", Name: "Pack Pro", Credits: 5000, PriceCents: 3999},
	})
	if err != nil {
		test.Fatalf("catalog init: %v", err)
	}
	return catalog
}
