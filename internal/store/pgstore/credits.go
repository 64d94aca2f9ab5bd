package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/credits"
)

const (
	sqlInsertBalanceIfAbsent = `
		insert into like_credits(user_id, balance, total_purchased, total_used)
		values ($1, $2, 0, 0)
		on conflict (user_id) do nothing
	`

	sqlSelectBalance = `
		select user_id, balance, total_purchased, total_used
		from like_credits
		where user_id = $1
	`

	sqlApplyDebit = `
		update like_credits
		set balance = balance - $2, total_used = total_used + $2, updated_at = now()
		where user_id = $1 and balance >= $2
		returning user_id, balance, total_purchased, total_used
	`

	sqlApplyCredit = `
		update like_credits
		set balance = balance + $2, updated_at = now()
		where user_id = $1
		returning user_id, balance, total_purchased, total_used
	`

	sqlApplyPurchaseCredit = `
		update like_credits
		set balance = balance + $2, total_purchased = total_purchased + $2, updated_at = now()
		where user_id = $1
		returning user_id, balance, total_purchased, total_used
	`

	sqlInsertUsage = `
		insert into like_usage(usage_id, user_id, target_post_id, target_user_id, credits_used, usage_type, created_at)
		values ($1, $2, nullif($3,''), nullif($4,''), $5, $6, to_timestamp($7))
	`

	sqlListUsage = `
		select
			usage_id::text,
			user_id,
			coalesce(target_post_id,''),
			coalesce(target_user_id,''),
			credits_used,
			usage_type,
			extract(epoch from created_at)::bigint
		from like_usage
		where user_id = $1
		order by created_at desc
		limit $2
	`

	sqlInsertPurchase = `
		insert into like_purchases(
			purchase_id, user_id, purchase_token, product_id, pack_name,
			credits_amount, price_amount_cents, status, verified_at, created_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp(nullif($9,0)), to_timestamp($10))
	`

	sqlSelectPurchase = `
		select
			purchase_id::text,
			user_id,
			purchase_token,
			product_id,
			pack_name,
			credits_amount,
			price_amount_cents,
			status,
			coalesce(extract(epoch from verified_at)::bigint, 0),
			extract(epoch from created_at)::bigint
		from like_purchases
		where user_id = $1 and purchase_token = $2
	`

	sqlMarkPurchaseVerified = `
		update like_purchases
		set status = $3, verified_at = to_timestamp($4)
		where user_id = $1 and purchase_token = $2 and status = $5
	`
)

// Credits implements credits.Store on PostgreSQL.
type Credits struct {
	db   querier
	pool *pgxpool.Pool
}

// NewCredits returns a credits store backed by a pgx pool.
func NewCredits(pool *pgxpool.Pool) *Credits {
	return &Credits{db: pool, pool: pool}
}

// WithTx runs fn inside one database transaction. A Credits that is already
// transactional reuses its transaction.
func (store *Credits) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credits.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapCreditsError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(ctx, &Credits{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapCreditsError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

// GetOrCreateBalance inserts a row seeded with freeGrant when the user has
// none, then reads whichever row won.
func (store *Credits) GetOrCreateBalance(ctx context.Context, userID credits.UserID, freeGrant int64) (credits.CreditBalance, error) {
	if _, err := store.db.Exec(ctx, sqlInsertBalanceIfAbsent, userID.String(), freeGrant); err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeInsert, err)
	}
	return store.readBalance(ctx, userID)
}

// ApplyDebit performs the compare-and-decrement; zero rows means the guard
// balance >= amount failed.
func (store *Credits) ApplyDebit(ctx context.Context, userID credits.UserID, amount credits.Credits) (credits.CreditBalance, error) {
	balance, err := scanBalance(store.db.QueryRow(ctx, sqlApplyDebit, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeConditionFail, credits.ErrInsufficientCredits)
	}
	if err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, err)
	}
	return balance, nil
}

// ApplyCredit increments balance, tracking purchase-sourced credits in
// total_purchased.
func (store *Credits) ApplyCredit(ctx context.Context, userID credits.UserID, amount credits.Credits, source credits.CreditSource) (credits.CreditBalance, error) {
	statement := sqlApplyCredit
	if source == credits.SourcePurchase {
		statement = sqlApplyPurchaseCredit
	}
	balance, err := scanBalance(store.db.QueryRow(ctx, statement, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, credits.ErrInvalidBalance)
	}
	if err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeUpdate, err)
	}
	return balance, nil
}

func (store *Credits) InsertUsage(ctx context.Context, record credits.UsageRecord) (credits.UsageRecord, error) {
	if record.UsageID == "" {
		record.UsageID = newID()
	}
	record.CreatedUnixUTC = stampUnix(record.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertUsage,
		record.UsageID,
		record.UserID,
		record.TargetPostID,
		record.TargetUserID,
		record.CreditsUsed,
		record.UsageType.String(),
		record.CreatedUnixUTC,
	)
	if err != nil {
		return credits.UsageRecord{}, wrapCreditsError(errorSubjectUsage, errorCodeInsert, err)
	}
	return record, nil
}

func (store *Credits) ListUsage(ctx context.Context, userID credits.UserID, limit int) ([]credits.UsageRecord, error) {
	rows, err := store.db.Query(ctx, sqlListUsage, userID.String(), limit)
	if err != nil {
		return nil, wrapCreditsError(errorSubjectUsage, errorCodeList, err)
	}
	defer rows.Close()
	records := make([]credits.UsageRecord, 0, 32)
	for rows.Next() {
		var record credits.UsageRecord
		var usageTypeValue string
		if err := rows.Scan(
			&record.UsageID,
			&record.UserID,
			&record.TargetPostID,
			&record.TargetUserID,
			&record.CreditsUsed,
			&usageTypeValue,
			&record.CreatedUnixUTC,
		); err != nil {
			return nil, wrapCreditsError(errorSubjectUsage, errorCodeInvalid, err)
		}
		usageType, parseErr := credits.ParseUsageType(usageTypeValue)
		if parseErr != nil {
			return nil, wrapCreditsError(errorSubjectUsage, errorCodeInvalid, parseErr)
		}
		record.UsageType = usageType
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapCreditsError(errorSubjectUsage, errorCodeList, err)
	}
	return records, nil
}

func (store *Credits) GetPurchase(ctx context.Context, userID credits.UserID, token credits.PurchaseToken) (credits.PurchaseRecord, error) {
	record, err := scanPurchase(store.db.QueryRow(ctx, sqlSelectPurchase, userID.String(), token.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeGet, credits.ErrPurchaseNotFound)
	}
	if err != nil {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeGet, err)
	}
	return record, nil
}

// InsertPurchase surfaces the (user_id, purchase_token) unique violation as
// ErrDuplicatePurchase; callers treat it as the already-processed signal.
func (store *Credits) InsertPurchase(ctx context.Context, record credits.PurchaseRecord) (credits.PurchaseRecord, error) {
	if record.PurchaseID == "" {
		record.PurchaseID = newID()
	}
	record.CreatedUnixUTC = stampUnix(record.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertPurchase,
		record.PurchaseID,
		record.UserID,
		record.PurchaseToken,
		record.ProductID,
		record.PackName,
		record.CreditsAmount,
		record.PriceAmountCents,
		record.Status.String(),
		record.VerifiedUnixUTC,
		record.CreatedUnixUTC,
	)
	if isUniqueViolation(err, constraintPurchaseUserToken) {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeDuplicate, credits.ErrDuplicatePurchase)
	}
	if err != nil {
		return credits.PurchaseRecord{}, wrapCreditsError(errorSubjectPurchase, errorCodeInsert, err)
	}
	return record, nil
}

// MarkPurchaseVerified transitions pending -> verified; a record that is no
// longer pending leaves zero rows affected.
func (store *Credits) MarkPurchaseVerified(ctx context.Context, userID credits.UserID, token credits.PurchaseToken, verifiedUnixUTC int64) error {
	tag, err := store.db.Exec(ctx, sqlMarkPurchaseVerified,
		userID.String(),
		token.String(),
		credits.PurchaseVerified.String(),
		stampUnix(verifiedUnixUTC),
		credits.PurchasePending.String(),
	)
	if err != nil {
		return wrapCreditsError(errorSubjectPurchase, errorCodeMarkVerified, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapCreditsError(errorSubjectPurchase, errorCodeMarkVerified, credits.ErrPurchaseAlreadyApplied)
	}
	return nil
}

func (store *Credits) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if err := appendAuditEntry(ctx, store.db, entry); err != nil {
		return wrapCreditsError(errorSubjectBalance, errorCodeAppend, err)
	}
	return nil
}

func (store *Credits) readBalance(ctx context.Context, userID credits.UserID) (credits.CreditBalance, error) {
	balance, err := scanBalance(store.db.QueryRow(ctx, sqlSelectBalance, userID.String()))
	if err != nil {
		return credits.CreditBalance{}, wrapCreditsError(errorSubjectBalance, errorCodeGet, err)
	}
	return balance, nil
}

func scanBalance(row pgx.Row) (credits.CreditBalance, error) {
	var balance credits.CreditBalance
	err := row.Scan(&balance.UserID, &balance.Balance, &balance.TotalPurchased, &balance.TotalUsed)
	if err != nil {
		return credits.CreditBalance{}, err
	}
	return balance, nil
}

func scanPurchase(row pgx.Row) (credits.PurchaseRecord, error) {
	var record credits.PurchaseRecord
	var statusValue string
	err := row.Scan(
		&record.PurchaseID,
		&record.UserID,
		&record.PurchaseToken,
		&record.ProductID,
		&record.PackName,
		&record.CreditsAmount,
		&record.PriceAmountCents,
		&statusValue,
		&record.VerifiedUnixUTC,
		&record.CreatedUnixUTC,
	)
	if err != nil {
		return credits.PurchaseRecord{}, err
	}
	status, parseErr := credits.ParsePurchaseStatus(statusValue)
	if parseErr != nil {
		return credits.PurchaseRecord{}, parseErr
	}
	record.Status = status
	return record, nil
}

func wrapCreditsError(subject string, code string, err error) error {
	return credits.WrapError(errorOperationStore, subject, code, err)
}
