package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

const (
	sqlInsertCashBalanceIfAbsent = `
		insert into user_balances(user_id, available_cents, pending_cents)
		values ($1, 0, 0)
		on conflict (user_id) do nothing
	`

	sqlSelectCashBalance = `
		select user_id, available_cents, pending_cents
		from user_balances
		where user_id = $1
	`

	sqlMoveAvailableToPending = `
		update user_balances
		set available_cents = available_cents - $2, pending_cents = pending_cents + $2, updated_at = now()
		where user_id = $1 and available_cents >= $2
		returning user_id, available_cents, pending_cents
	`

	sqlSettlePending = `
		update user_balances
		set pending_cents = pending_cents - $2, updated_at = now()
		where user_id = $1 and pending_cents >= $2
		returning user_id, available_cents, pending_cents
	`

	sqlReturnPendingToAvailable = `
		update user_balances
		set available_cents = available_cents + $2, pending_cents = pending_cents - $2, updated_at = now()
		where user_id = $1 and pending_cents >= $2
		returning user_id, available_cents, pending_cents
	`

	sqlAddAvailable = `
		update user_balances
		set available_cents = available_cents + $2, updated_at = now()
		where user_id = $1
		returning user_id, available_cents, pending_cents
	`

	sqlInsertPayoutMethod = `
		insert into payout_methods(method_id, user_id, method_type, provider, label, created_at)
		values ($1, $2, $3, $4, $5, to_timestamp($6))
	`

	sqlSelectPayoutMethod = `
		select method_id::text, user_id, method_type, provider, label, extract(epoch from created_at)::bigint
		from payout_methods
		where method_id = $1 and user_id = $2
	`

	sqlListPayoutMethods = `
		select method_id::text, user_id, method_type, provider, label, extract(epoch from created_at)::bigint
		from payout_methods
		where user_id = $1
		order by created_at asc
	`

	sqlInsertWithdrawal = `
		insert into withdrawal_requests(
			withdrawal_id, user_id, method_id, amount_cents, fee_rate_bps,
			fee_cents, net_amount_cents, status, reason, created_at, updated_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, nullif($9,''), to_timestamp($10), to_timestamp($11))
	`

	sqlSelectWithdrawal = `
		select
			withdrawal_id::text,
			user_id,
			method_id::text,
			amount_cents,
			fee_rate_bps,
			fee_cents,
			net_amount_cents,
			status,
			coalesce(reason,''),
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from withdrawal_requests
		where withdrawal_id = $1
		for update
	`

	sqlUpdateWithdrawalStatus = `
		update withdrawal_requests
		set status = $3, reason = coalesce(nullif($4,''), reason), updated_at = now()
		where withdrawal_id = $1 and status = $2
	`

	sqlListWithdrawals = `
		select
			withdrawal_id::text,
			user_id,
			method_id::text,
			amount_cents,
			fee_rate_bps,
			fee_cents,
			net_amount_cents,
			status,
			coalesce(reason,''),
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from withdrawal_requests
		where user_id = $1
		order by created_at desc
		limit $2
	`
)

// Wallet implements wallet.Store on PostgreSQL.
type Wallet struct {
	db   querier
	pool *pgxpool.Pool
}

// NewWallet returns a wallet store backed by a pgx pool.
func NewWallet(pool *pgxpool.Pool) *Wallet {
	return &Wallet{db: pool, pool: pool}
}

func (store *Wallet) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapWalletError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(ctx, &Wallet{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapWalletError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

func (store *Wallet) GetOrCreateBalance(ctx context.Context, userID wallet.UserID) (wallet.CashBalance, error) {
	if _, err := store.db.Exec(ctx, sqlInsertCashBalanceIfAbsent, userID.String()); err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeInsert, err)
	}
	balance, err := scanCashBalance(store.db.QueryRow(ctx, sqlSelectCashBalance, userID.String()))
	if err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeGet, err)
	}
	return balance, nil
}

// MoveAvailableToPending is the compare-and-decrement reserve; zero rows
// means the guard available >= amount failed.
func (store *Wallet) MoveAvailableToPending(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	balance, err := scanCashBalance(store.db.QueryRow(ctx, sqlMoveAvailableToPending, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInsufficientBalance)
	}
	if err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, err)
	}
	return balance, nil
}

func (store *Wallet) SettlePending(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	balance, err := scanCashBalance(store.db.QueryRow(ctx, sqlSettlePending, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInvalidBalance)
	}
	if err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, err)
	}
	return balance, nil
}

func (store *Wallet) ReturnPendingToAvailable(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	balance, err := scanCashBalance(store.db.QueryRow(ctx, sqlReturnPendingToAvailable, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeConditionFail, wallet.ErrInvalidBalance)
	}
	if err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, err)
	}
	return balance, nil
}

func (store *Wallet) AddAvailable(ctx context.Context, userID wallet.UserID, amount wallet.AmountCents) (wallet.CashBalance, error) {
	balance, err := scanCashBalance(store.db.QueryRow(ctx, sqlAddAvailable, userID.String(), amount.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, wallet.ErrInvalidBalance)
	}
	if err != nil {
		return wallet.CashBalance{}, wrapWalletError(errorSubjectCash, errorCodeUpdate, err)
	}
	return balance, nil
}

func (store *Wallet) InsertPayoutMethod(ctx context.Context, method wallet.PayoutMethod) (wallet.PayoutMethod, error) {
	if method.MethodID == "" {
		method.MethodID = newID()
	}
	method.CreatedUnixUTC = stampUnix(method.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertPayoutMethod,
		method.MethodID,
		method.UserID,
		method.MethodType.String(),
		method.Provider,
		method.Label,
		method.CreatedUnixUTC,
	)
	if err != nil {
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeInsert, err)
	}
	return method, nil
}

func (store *Wallet) GetPayoutMethod(ctx context.Context, userID wallet.UserID, methodID string) (wallet.PayoutMethod, error) {
	method, err := scanPayoutMethod(store.db.QueryRow(ctx, sqlSelectPayoutMethod, methodID, userID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeGet, wallet.ErrUnknownPayoutMethod)
	}
	if err != nil {
		return wallet.PayoutMethod{}, wrapWalletError(errorSubjectMethod, errorCodeGet, err)
	}
	return method, nil
}

func (store *Wallet) ListPayoutMethods(ctx context.Context, userID wallet.UserID) ([]wallet.PayoutMethod, error) {
	rows, err := store.db.Query(ctx, sqlListPayoutMethods, userID.String())
	if err != nil {
		return nil, wrapWalletError(errorSubjectMethod, errorCodeList, err)
	}
	defer rows.Close()
	methods := make([]wallet.PayoutMethod, 0, 8)
	for rows.Next() {
		method, scanErr := scanPayoutMethod(rows)
		if scanErr != nil {
			return nil, wrapWalletError(errorSubjectMethod, errorCodeInvalid, scanErr)
		}
		methods = append(methods, method)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapWalletError(errorSubjectMethod, errorCodeList, err)
	}
	return methods, nil
}

func (store *Wallet) InsertWithdrawal(ctx context.Context, request wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	if request.RequestID == "" {
		request.RequestID = newID()
	}
	request.CreatedUnixUTC = stampUnix(request.CreatedUnixUTC)
	if request.UpdatedUnixUTC == 0 {
		request.UpdatedUnixUTC = request.CreatedUnixUTC
	}
	_, err := store.db.Exec(ctx, sqlInsertWithdrawal,
		request.RequestID,
		request.UserID,
		request.MethodID,
		request.AmountCents,
		request.FeeRateBps,
		request.FeeCents,
		request.NetAmountCents,
		request.Status.String(),
		request.Reason,
		request.CreatedUnixUTC,
		request.UpdatedUnixUTC,
	)
	if err != nil {
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeInsert, err)
	}
	return request, nil
}

// GetWithdrawal locks the row for the rest of the enclosing transaction.
func (store *Wallet) GetWithdrawal(ctx context.Context, requestID wallet.RequestID) (wallet.WithdrawalRequest, error) {
	request, err := scanWithdrawal(store.db.QueryRow(ctx, sqlSelectWithdrawal, requestID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeGet, wallet.ErrUnknownWithdrawal)
	}
	if err != nil {
		return wallet.WithdrawalRequest{}, wrapWalletError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	return request, nil
}

// UpdateWithdrawalStatus guards on the current status; a concurrent
// transition that raced ahead leaves zero rows affected.
func (store *Wallet) UpdateWithdrawalStatus(ctx context.Context, requestID wallet.RequestID, from wallet.Status, to wallet.Status, reason string) error {
	tag, err := store.db.Exec(ctx, sqlUpdateWithdrawalStatus, requestID.String(), from.String(), to.String(), reason)
	if err != nil {
		return wrapWalletError(errorSubjectWithdrawal, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapWalletError(errorSubjectWithdrawal, errorCodeConditionFail, wallet.ErrInvalidTransition)
	}
	return nil
}

func (store *Wallet) ListWithdrawals(ctx context.Context, userID wallet.UserID, limit int) ([]wallet.WithdrawalRequest, error) {
	rows, err := store.db.Query(ctx, sqlListWithdrawals, userID.String(), limit)
	if err != nil {
		return nil, wrapWalletError(errorSubjectWithdrawal, errorCodeList, err)
	}
	defer rows.Close()
	requests := make([]wallet.WithdrawalRequest, 0, 16)
	for rows.Next() {
		request, scanErr := scanWithdrawal(rows)
		if scanErr != nil {
			return nil, wrapWalletError(errorSubjectWithdrawal, errorCodeInvalid, scanErr)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapWalletError(errorSubjectWithdrawal, errorCodeList, err)
	}
	return requests, nil
}

func (store *Wallet) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if err := appendAuditEntry(ctx, store.db, entry); err != nil {
		return wrapWalletError(errorSubjectCash, errorCodeAppend, err)
	}
	return nil
}

func scanCashBalance(row pgx.Row) (wallet.CashBalance, error) {
	var balance wallet.CashBalance
	err := row.Scan(&balance.UserID, &balance.AvailableCents, &balance.PendingCents)
	if err != nil {
		return wallet.CashBalance{}, err
	}
	return balance, nil
}

func scanPayoutMethod(row pgx.Row) (wallet.PayoutMethod, error) {
	var method wallet.PayoutMethod
	var methodTypeValue string
	err := row.Scan(
		&method.MethodID,
		&method.UserID,
		&methodTypeValue,
		&method.Provider,
		&method.Label,
		&method.CreatedUnixUTC,
	)
	if err != nil {
		return wallet.PayoutMethod{}, err
	}
	methodType, parseErr := wallet.ParseMethodType(methodTypeValue)
	if parseErr != nil {
		return wallet.PayoutMethod{}, parseErr
	}
	method.MethodType = methodType
	return method, nil
}

func scanWithdrawal(row pgx.Row) (wallet.WithdrawalRequest, error) {
	var request wallet.WithdrawalRequest
	var statusValue string
	err := row.Scan(
		&request.RequestID,
		&request.UserID,
		&request.MethodID,
		&request.AmountCents,
		&request.FeeRateBps,
		&request.FeeCents,
		&request.NetAmountCents,
		&statusValue,
		&request.Reason,
		&request.CreatedUnixUTC,
		&request.UpdatedUnixUTC,
	)
	if err != nil {
		return wallet.WithdrawalRequest{}, err
	}
	status, parseErr := wallet.ParseStatus(statusValue)
	if parseErr != nil {
		return wallet.WithdrawalRequest{}, parseErr
	}
	request.Status = status
	return request, nil
}

func wrapWalletError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}
