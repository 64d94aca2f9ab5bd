package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/credits"
)

const (
	errorOperationStore    = "store"
	errorSubjectBalance    = "balance"
	errorSubjectPurchase   = "purchase"
	errorSubjectUsage      = "usage"
	errorSubjectAudit      = "audit"
	errorCodeCreate        = "create"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeDuplicate     = "duplicate"
	errorCodeUpdate        = "update"
	errorCodeConditionFail = "condition_failed"
	errorCodeMarkVerified  = "mark_verified"
	errorCodeAppend        = "append"
)

// Credits implements credits.Store using GORM.
type Credits struct {
	db *gorm.DB
}

// NewCredits returns a credits store backed by gorm.DB.
func NewCredits(db *gorm.DB) *Credits {
	return &Credits{db: db}
}

// WithTx executes fn within a transaction.
func (store *Credits) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credits.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Credits{db: transaction})
	})
}

// GetOrCreateBalance performs insert-or-fetch over the user_id primary key so
// at most one row is created under concurrent first access.
func (store *Credits) GetOrCreateBalance(ctx context.Context, userID credits.UserID, freeGrant int64) (credits.CreditBalance, error) {
	seed := CreditBalance{UserID: userID.String(), Balance: freeGrant}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&seed).Error
	if err != nil && !isUniqueViolation(err, "") {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeCreate, err)
	}
	var model CreditBalance
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error; err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeGet, err)
	}
	return mapCreditBalance(model), nil
}

// ApplyDebit decrements balance and increments total_used behind the
// balance >= amount guard; zero rows affected means insufficient credits.
func (store *Credits) ApplyDebit(ctx context.Context, userID credits.UserID, amount credits.Credits) (credits.CreditBalance, error) {
	result := store.db.WithContext(ctx).
		Model(&CreditBalance{}).
		Where("user_id = ? AND balance >= ?", userID.String(), amount.Int64()).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount.Int64()),
			"total_used": gorm.Expr("total_used + ?", amount.Int64()),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeConditionFail, credits.ErrInsufficientCredits)
	}
	return store.readBalance(ctx, userID)
}

// ApplyCredit increments balance, tracking purchase-sourced credits in
// total_purchased.
func (store *Credits) ApplyCredit(ctx context.Context, userID credits.UserID, amount credits.Credits, source credits.CreditSource) (credits.CreditBalance, error) {
	updates := map[string]interface{}{
		"balance":    gorm.Expr("balance + ?", amount.Int64()),
		"updated_at": time.Now().UTC(),
	}
	if source == credits.SourcePurchase {
		updates["total_purchased"] = gorm.Expr("total_purchased + ?", amount.Int64())
	}
	result := store.db.WithContext(ctx).
		Model(&CreditBalance{}).
		Where("user_id = ?", userID.String()).
		Updates(updates)
	if result.Error != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, credits.ErrInvalidBalance)
	}
	return store.readBalance(ctx, userID)
}

func (store *Credits) InsertUsage(ctx context.Context, record credits.UsageRecord) (credits.UsageRecord, error) {
	model := Usage{
		UsageID:      record.UsageID,
		UserID:       record.UserID,
		TargetPostID: optionalString(record.TargetPostID),
		TargetUserID: optionalString(record.TargetUserID),
		CreditsUsed:  record.CreditsUsed,
		UsageType:    record.UsageType.String(),
		CreatedAt:    time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if record.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return credits.UsageRecord{}, wrapCreditsError(errorSubjectUsage, errorCodeInsert, err)
	}
	return mapUsage(model), nil
}

func (store *Credits) ListUsage(ctx context.Context, userID credits.UserID, limit int) ([]credits.UsageRecord, error) {
	var rows []Usage
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapCreditsError(errorSubjectUsage, errorCodeList, err)
	}
	records := make([]credits.UsageRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapUsage(row))
	}
	return records, nil
}

func (store *Credits) GetPurchase(ctx context.Context, userID credits.UserID, token credits.PurchaseToken) (credits.PurchaseRecord, error) {
	var model Purchase
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND purchase_token = ?", userID.String(), token.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeGet, credits.ErrPurchaseNotFound)
		}
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeGet, err)
	}
	return mapPurchase(model)
}

func (store *Credits) InsertPurchase(ctx context.Context, record credits.PurchaseRecord) (credits.PurchaseRecord, error) {
	var verifiedAt *time.Time
	if record.VerifiedUnixUTC != 0 {
		value := time.Unix(record.VerifiedUnixUTC, 0).UTC()
		verifiedAt = &value
	}
	model := Purchase{
		PurchaseID:       record.PurchaseID,
		UserID:           record.UserID,
		PurchaseToken:    record.PurchaseToken,
		ProductID:        record.ProductID,
		PackName:         record.PackName,
		CreditsAmount:    record.CreditsAmount,
		PriceAmountCents: record.PriceAmountCents,
		Status:           record.Status.String(),
		VerifiedAt:       verifiedAt,
		CreatedAt:        time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if record.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintPurchaseUserToken) {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeDuplicate, credits.ErrDuplicatePurchase)
	}
	if err != nil {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeInsert, err)
	}
	return mapPurchase(model)
}

// MarkPurchaseVerified guards on status=pending so concurrent verifications
// of the same token resolve to a single application.
func (store *Credits) MarkPurchaseVerified(ctx context.Context, userID credits.UserID, token credits.PurchaseToken, verifiedUnixUTC int64) error {
	verifiedAt := time.Unix(verifiedUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Purchase{}).
		Where("user_id = ? AND purchase_token = ? AND status = ?", userID.String(), token.String(), credits.PurchasePending.String()).
		Updates(map[string]interface{}{
			"status":      credits.PurchaseVerified.String(),
			"verified_at": verifiedAt,
		})
	if result.Error != nil {
		return wrapCreditsError(errorSubjectPurchase, errorCodeMarkVerified, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapCreditsError(errorSubjectPurchase, errorCodeMarkVerified, credits.ErrPurchaseAlreadyApplied)
	}
	return nil
}

func (store *Credits) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if err := appendAuditEntry(store.db.WithContext(ctx), entry); err != nil {
		return wrapCreditsError(errorSubjectAudit, errorCodeAppend, err)
	}
	return nil
}

func (store *Credits) readBalance(ctx context.Context, userID credits.UserID) (credits.CreditBalance, error) {
	var model CreditBalance
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error; err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeGet, err)
	}
	return mapCreditBalance(model), nil
}

func wrapCreditsError(subject string, code string, err error) error {
	return credits.WrapError(errorOperationStore, subject, code, err)
}

func mapCreditBalance(model CreditBalance) credits.CreditBalance {
	return credits.CreditBalance{
		UserID:         model.UserID,
		Balance:        model.Balance,
		TotalPurchased: model.TotalPurchased,
		TotalUsed:      model.TotalUsed,
	}
}

func mapUsage(model Usage) credits.UsageRecord {
	return credits.UsageRecord{
		UsageID:        model.UsageID,
		UserID:         model.UserID,
		TargetPostID:   stringOrEmpty(model.TargetPostID),
		TargetUserID:   stringOrEmpty(model.TargetUserID),
		CreditsUsed:    model.CreditsUsed,
		UsageType:      credits.UsageType(model.UsageType),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapPurchase(model Purchase) (credits.PurchaseRecord, error) {
	status, err := credits.ParsePurchaseStatus(model.Status)
	if err != nil {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeInvalid, err)
	}
	return credits.PurchaseRecord{
		PurchaseID:       model.PurchaseID,
		UserID:           model.UserID,
		PurchaseToken:    model.PurchaseToken,
		ProductID:        model.ProductID,
		PackName:         model.PackName,
		CreditsAmount:    model.CreditsAmount,
		PriceAmountCents: model.PriceAmountCents,
		Status:           status,
		VerifiedUnixUTC:  timeOrZero(model.VerifiedAt),
		CreatedUnixUTC:   model.CreatedAt.Unix(),
	}, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}
