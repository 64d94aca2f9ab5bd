package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

const (
	errorSubjectCash       = "cash_balance"
	errorSubjectMethod     = "payout_method"
	errorSubjectWithdrawal = "withdrawal"
)

// Wallet implements wallet.Store using GORM.
type Wallet struct {
	db *gorm.DB
}

// NewWallet returns a wallet store backed by gorm.DB.
func NewWallet(db *gorm.DB) *Wallet {
	return &Wallet{db: db}
}

// WithTx executes fn within a transaction.
func (store *Wallet) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Wallet{db: transaction})
	})
}

// GetOrCreateBalance performs insert-or-fetch over the user_id primary key.
func (store *Wallet) GetOrCreateBalance(ctx context.Context, userID wallet.UserID) (wallet.CashBalance, error) {
	seed := CashBalance{UserID: userID.String()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&seed).Error
	if err != nil && !isUniqueViolation(err, "") {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeCreate, err)
	}
	return store.readBalance(ctx, userID)
}

// MoveAvailableToPending reserves amount behind the available >= amount guard.
func (store *Wallet) MoveAvailableToPending(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	result := store.db.WithContext(ctx).
		Model(&CashBalance{}).
		Where("user_id = ? AND available_cents >= ?", userID.String(), amount.Int64()).
		Updates(map[string]interface{}{
			"available_cents": gorm.Expr("available_cents - ?", amount.Int64()),
			"pending_cents":   gorm.Expr("pending_cents + ?", amount.Int64()),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInsufficientBalance)
	}
	return store.readBalance(ctx, userID)
}

// SettlePending removes reserved funds behind the pending >= amount guard.
func (store *Wallet) SettlePending(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	result := store.db.WithContext(ctx).
		Model(&CashBalance{}).
		Where("user_id = ? AND pending_cents >= ?", userID.String(), amount.Int64()).
		Updates(map[string]interface{}{
			"pending_cents": gorm.Expr("pending_cents - ?", amount.Int64()),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInvalidBalance)
	}
	return store.readBalance(ctx, userID)
}

// ReturnPendingToAvailable releases reserved funds back to the user.
func (store *Wallet) ReturnPendingToAvailable(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	result := store.db.WithContext(ctx).
		Model(&CashBalance{}).
		Where("user_id = ? AND pending_cents >= ?", userID.String(), amount.Int64()).
		Updates(map[string]interface{}{
			"available_cents": gorm.Expr("available_cents + ?", amount.Int64()),
			"pending_cents":   gorm.Expr("pending_cents - ?", amount.Int64()),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInvalidBalance)
	}
	return store.readBalance(ctx, userID)
}

// AddAvailable credits deposited funds.
func (store *Wallet) AddAvailable(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	result := store.db.WithContext(ctx).
		Model(&CashBalance{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]interface{}{
			"available_cents": gorm.Expr("available_cents + ?", amount.Int64()),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, wallet.ErrInvalidBalance)
	}
	return store.readBalance(ctx, userID)
}

func (store *Wallet) InsertPayoutMethod(ctx context.Context, method wallet.PayoutMethod) (wallet.PayoutMethod, error) {
	model := PayoutMethod{
		MethodID:   method.MethodID,
		UserID:     method.UserID,
		MethodType: method.MethodType.String(),
		Provider:   method.Provider,
		Label:      method.Label,
		CreatedAt:  time.Unix(method.CreatedUnixUTC, 0).UTC(),
	}
	if method.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeInsert, err)
	}
	return mapPayoutMethod(model)
}

func (store *Wallet) GetPayoutMethod(ctx context.Context, userID wallet.UserID, methodID string) (wallet.PayoutMethod, error) {
	var model PayoutMethod
	err := store.db.WithContext(ctx).
		Where("method_id = ? AND user_id = ?", methodID, userID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeGet, wallet.ErrUnknownPayoutMethod)
		}
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeGet, err)
	}
	return mapPayoutMethod(model)
}

func (store *Wallet) ListPayoutMethods(ctx context.Context, userID wallet.UserID) ([]wallet.PayoutMethod, error) {
	var rows []PayoutMethod
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapWalletError(errorSubjectMethod, errorCodeList, err)
	}
	methods := make([]wallet.PayoutMethod, 0, len(rows))
	for _, row := range rows {
		method, mapErr := mapPayoutMethod(row)
		if mapErr != nil {
			return nil, mapErr
		}
		methods = append(methods, method)
	}
	return methods, nil
}

func (store *Wallet) InsertWithdrawal(ctx context.Context, request wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	model := Withdrawal{
		WithdrawalID:   request.RequestID,
		UserID:         request.UserID,
		MethodID:       request.MethodID,
		AmountCents:    request.AmountCents,
		FeeRateBps:     request.FeeRateBps,
		FeeCents:       request.FeeCents,
		NetAmountCents: request.NetAmountCents,
		Status:         request.Status.String(),
		Reason:         optionalString(request.Reason),
		CreatedAt:      time.Unix(request.CreatedUnixUTC, 0).UTC(),
		UpdatedAt:      time.Unix(request.UpdatedUnixUTC, 0).UTC(),
	}
	if request.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	if request.UpdatedUnixUTC == 0 {
		model.UpdatedAt = model.CreatedAt
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeInsert, err)
	}
	return mapWithdrawal(model)
}

// GetWithdrawal locks the row on drivers that support FOR UPDATE.
func (store *Wallet) GetWithdrawal(ctx context.Context, requestID wallet.RequestID) (wallet.WithdrawalRequest, error) {
	var model Withdrawal
	err := withRowLock(store.db.WithContext(ctx)).
		Where("withdrawal_id = ?", requestID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeGet, wallet.ErrUnknownWithdrawal)
		}
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	return mapWithdrawal(model)
}

// UpdateWithdrawalStatus guards on the current status; a concurrent
// transition that raced ahead leaves zero rows affected.
func (store *Wallet) UpdateWithdrawalStatus(ctx context.Context, requestID wallet.RequestID, from wallet.Status, to wallet.Status, reason string) error {
	updates := map[string]interface{}{
		"status":     to.String(),
		"updated_at": time.Now().UTC(),
	}
	if reason != "" {
		updates["reason"] = reason
	}
	result := store.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where("withdrawal_id = ? AND status = ?", requestID.String(), from.String()).
		Updates(updates)
	if result.Error != nil {
		return wrapWalletError(errorSubjectWithdrawal, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapWalletError(errorSubjectWithdrawal, errorCodeConditionFail, wallet.ErrInvalidTransition)
	}
	return nil
}

func (store *Wallet) ListWithdrawals(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.WithdrawalRequest, error) {
	var rows []Withdrawal
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapWalletError(errorSubjectWithdrawal, errorCodeList, err)
	}
	requests := make([]wallet.WithdrawalRequest, 0, len(rows))
	for _, row := range rows {
		request, mapErr := mapWithdrawal(row)
		if mapErr != nil {
			return nil, mapErr
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (store *Wallet) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if err := appendAuditEntry(store.db.WithContext(ctx), entry); err != nil {
		return wrapWalletError(errorSubjectAudit, errorCodeAppend, err)
	}
	return nil
}

func (store *Wallet) readBalance(ctx context.Context, userID wallet.UserID) (wallet.CashBalance, error) {
	var model CashBalance
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error; err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeGet, err)
	}
	return wallet.CashBalance{
		UserID:         model.UserID,
		AvailableCents: model.AvailableCents,
		PendingCents:   model.PendingCents,
	}, nil
}

func wrapWalletError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func mapPayoutMethod(model PayoutMethod) (wallet.PayoutMethod, error) {
	methodType, err := wallet.ParseMethodType(model.MethodType)
	if err != nil {
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeInvalid, err)
	}
	return wallet.PayoutMethod{
		MethodID:       model.MethodID,
		UserID:         model.UserID,
		MethodType:     methodType,
		Provider:       model.Provider,
		Label:          model.Label,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapWithdrawal(model Withdrawal) (wallet.WithdrawalRequest, error) {
	status, err := wallet.ParseStatus(model.Status)
	if err != nil {
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return wallet.WithdrawalRequest{
		RequestID:      model.WithdrawalID,
		UserID:         model.UserID,
		MethodID:       model.MethodID,
		AmountCents:    model.AmountCents,
		FeeRateBps:     model.FeeRateBps,
		FeeCents:       model.FeeCents,
		NetAmountCents: model.NetAmountCents,
		Status:         status,
		Reason:         stringOrEmpty(model.Reason),
		CreatedUnixUTC: model.CreatedAt.Unix(),
		UpdatedUnixUTC: model.UpdatedAt.Unix(),
	}, nil
}
