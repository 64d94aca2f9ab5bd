package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// PaymentConfirmation is the provider's view of one checkout session.
type PaymentConfirmation struct {
	Paid        bool
	AmountCents int64
	Currency    string
}

// PaymentProvider validates a purchase token against the payment provider's
// confirmed-session semantics.
type PaymentProvider interface {
	ConfirmSession(ctx context.Context, token string) (PaymentConfirmation, error)
}

// VerifierOption configures a Verifier instance.
type VerifierOption func(*Verifier)

// WithVerifierLogger wires a logger for verification operations.
func WithVerifierLogger(logger OperationLogger) VerifierOption {
	return func(verifier *Verifier) {
		verifier.logger = logger
	}
}

// WithCurrency sets the currency the provider confirmation must match.
func WithCurrency(currency string) VerifierOption {
	return func(verifier *Verifier) {
		verifier.currency = strings.ToLower(strings.TrimSpace(currency))
	}
}

// Verifier converts an external payment confirmation into a credit grant
// exactly once per purchase token.
type Verifier struct {
	engine   *Service
	catalog  Catalog
	provider PaymentProvider
	currency string
	logger   OperationLogger
}

// NewVerifier wires a Verifier over the accounting engine's store.
func NewVerifier(engine *Service, catalog Catalog, provider PaymentProvider, options ...VerifierOption) (*Verifier, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine dependency is nil", ErrInvalidServiceConfig)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: payment provider dependency is nil", ErrInvalidServiceConfig)
	}
	if len(catalog.packs) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrInvalidServiceConfig)
	}
	verifier := &Verifier{engine: engine, catalog: catalog, provider: provider}
	for _, option := range options {
		if option != nil {
			option(verifier)
		}
	}
	return verifier, nil
}

// VerifyAndApply validates the purchase token and grants the pack's credits.
// A replayed token returns the stored result unchanged without touching the
// ledger; the (user, token) unique constraint makes the guarantee hold under
// concurrent deliveries.
func (verifier *Verifier) VerifyAndApply(ctx context.Context, userID UserID, token PurchaseToken, productID ProductID) (PurchaseResult, error) {
	result, err := verifier.verifyAndApply(ctx, userID, token, productID)
	status := ""
	if err == nil && result.AlreadyProcessed {
		status = operationStatusReplay
	}
	verifier.logOperation(ctx, OperationLog{
		Operation:     operationVerifyApply,
		UserID:        userID,
		Amount:        result.CreditsAdded,
		ProductID:     productID,
		PurchaseToken: token,
		Status:        status,
		Error:         err,
	})
	return result, err
}

func (verifier *Verifier) verifyAndApply(ctx context.Context, userID UserID, token PurchaseToken, productID ProductID) (PurchaseResult, error) {
	existing, err := verifier.engine.store.GetPurchase(ctx, userID, token)
	hasPending := false
	if err == nil {
		switch existing.Status {
		case PurchaseVerified:
			return verifier.replayResult(ctx, userID, token)
		case PurchasePending:
			hasPending = true
		case PurchaseFailed:
			return PurchaseResult{}, fmt.Errorf("%w: token previously failed", ErrPaymentNotConfirmed)
		}
	} else if !errors.Is(err, ErrPurchaseNotFound) {
		return PurchaseResult{}, err
	}

	pack, err := verifier.catalog.Resolve(productID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := verifier.confirmPayment(ctx, token, pack); err != nil {
		return PurchaseResult{}, err
	}

	nowUnixUTC := verifier.engine.nowFn()
	record := PurchaseRecord{
		UserID:           userID.String(),
		PurchaseToken:    token.String(),
		ProductID:        productID.String(),
		PackName:         pack.Name,
		CreditsAmount:    pack.Credits,
		PriceAmountCents: pack.PriceCents,
		Status:           PurchaseVerified,
		VerifiedUnixUTC:  nowUnixUTC,
		CreatedUnixUTC:   nowUnixUTC,
	}
	if hasPending {
		record = existing
		record.Status = PurchaseVerified
		record.VerifiedUnixUTC = nowUnixUTC
		if record.CreditsAmount == 0 {
			record.CreditsAmount = pack.Credits
			record.PriceAmountCents = pack.PriceCents
		}
	}

	replayed := false
	var newBalance int64
	transactionError := verifier.engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if hasPending {
			err := transactionStore.MarkPurchaseVerified(ctx, userID, token, nowUnixUTC)
			if errors.Is(err, ErrPurchaseAlreadyApplied) {
				replayed = true
				return nil
			}
			if err != nil {
				return err
			}
		} else {
			inserted, err := transactionStore.InsertPurchase(ctx, record)
			if errors.Is(err, ErrDuplicatePurchase) {
				replayed = true
				return nil
			}
			if err != nil {
				return err
			}
			record = inserted
		}
		creditsAmount, err := NewCredits(record.CreditsAmount)
		if err != nil {
			return err
		}
		updated, err := verifier.engine.creditTx(ctx, transactionStore, userID, creditsAmount, SourcePurchase)
		if err != nil {
			return err
		}
		newBalance = updated.Balance
		return transactionStore.AppendAudit(ctx, audit.Entry{
			UserID:      userID.String(),
			Kind:        audit.KindPurchase,
			AmountCents: record.PriceAmountCents,
			ReferenceID: record.PurchaseID,
			MetadataJSON: audit.MarshalMetadata(map[string]any{
				"purchase_token": record.PurchaseToken,
				"product_id":     record.ProductID,
				"pack_name":      record.PackName,
				"credits_added":  record.CreditsAmount,
			}),
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	if transactionError != nil {
		return PurchaseResult{}, transactionError
	}
	if replayed {
		return verifier.replayResult(ctx, userID, token)
	}
	return PurchaseResult{
		Purchase:     record,
		CreditsAdded: record.CreditsAmount,
		NewBalance:   newBalance,
	}, nil
}

func (verifier *Verifier) confirmPayment(ctx context.Context, token PurchaseToken, pack Pack) error {
	confirmation, err := verifier.provider.ConfirmSession(ctx, token.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentNotConfirmed, err)
	}
	if !confirmation.Paid {
		return fmt.Errorf("%w: session not paid", ErrPaymentNotConfirmed)
	}
	if confirmation.AmountCents != 0 && confirmation.AmountCents != pack.PriceCents {
		return fmt.Errorf("%w: amount mismatch, confirmed %d expected %d", ErrPaymentNotConfirmed, confirmation.AmountCents, pack.PriceCents)
	}
	if verifier.currency != "" && confirmation.Currency != "" && !strings.EqualFold(confirmation.Currency, verifier.currency) {
		return fmt.Errorf("%w: currency mismatch, confirmed %s expected %s", ErrPaymentNotConfirmed, confirmation.Currency, verifier.currency)
	}
	return nil
}

// replayResult rereads the durably stored outcome of an already-verified
// token. If a concurrent verification has not committed yet the caller gets
// ErrDuplicatePurchase, which is safe to retry.
func (verifier *Verifier) replayResult(ctx context.Context, userID UserID, token PurchaseToken) (PurchaseResult, error) {
	stored, err := verifier.engine.store.GetPurchase(ctx, userID, token)
	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			return PurchaseResult{}, ErrDuplicatePurchase
		}
		return PurchaseResult{}, err
	}
	if stored.Status != PurchaseVerified {
		return PurchaseResult{}, ErrDuplicatePurchase
	}
	balance, err := verifier.engine.store.GetOrCreateBalance(ctx, userID, verifier.engine.freeGrant)
	if err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{
		Purchase:         stored,
		CreditsAdded:     stored.CreditsAmount,
		NewBalance:       balance.Balance,
		AlreadyProcessed: true,
	}, nil
}

func (verifier *Verifier) logOperation(ctx context.Context, entry OperationLog) {
	if verifier.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	verifier.logger.LogOperation(ctx, entry)
}
