// Package pgstore implements the credits, wallet, and audit store contracts
// directly on a pgx connection pool. It is the production alternative to
// gormstore when the database is PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrikoin/likeledger/pkg/audit"
)

const (
	constraintPurchaseUserToken = "uniq_purchase_user_token"
	pgUniqueViolationCode       = "23505"

	errorOperationStore    = "store"
	errorSubjectBalance    = "balance"
	errorSubjectPurchase   = "purchase"
	errorSubjectUsage      = "usage"
	errorSubjectCash       = "cash_balance"
	errorSubjectMethod     = "payout_method"
	errorSubjectWithdrawal = "withdrawal"
	errorSubjectTx         = "transaction"
	errorCodeBegin         = "begin"
	errorCodeCommit        = "commit"
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

const sqlSchema = `
	create table if not exists like_credits (
		user_id text primary key,
		balance bigint not null default 0,
		total_purchased bigint not null default 0,
		total_used bigint not null default 0,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	);

	create table if not exists like_purchases (
		purchase_id uuid primary key,
		user_id text not null,
		purchase_token text not null,
		product_id text not null,
		pack_name text not null,
		credits_amount bigint not null,
		price_amount_cents bigint not null,
		status text not null,
		verified_at timestamptz,
		created_at timestamptz not null default now(),
		constraint uniq_purchase_user_token unique (user_id, purchase_token)
	);

	create table if not exists like_usage (
		usage_id uuid primary key,
		user_id text not null,
		target_post_id text,
		target_user_id text,
		credits_used bigint not null,
		usage_type text not null,
		created_at timestamptz not null default now()
	);
	create index if not exists idx_usage_user_created on like_usage(user_id, created_at);

	create table if not exists user_balances (
		user_id text primary key,
		available_cents bigint not null default 0,
		pending_cents bigint not null default 0,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	);

	create table if not exists payout_methods (
		method_id uuid primary key,
		user_id text not null,
		method_type text not null,
		provider text not null,
		label text not null,
		created_at timestamptz not null default now()
	);
	create index if not exists idx_payout_methods_user on payout_methods(user_id);

	create table if not exists withdrawal_requests (
		withdrawal_id uuid primary key,
		user_id text not null,
		method_id uuid not null,
		amount_cents bigint not null,
		fee_rate_bps bigint not null,
		fee_cents bigint not null,
		net_amount_cents bigint not null,
		status text not null,
		reason text,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	);
	create index if not exists idx_withdrawal_user_created on withdrawal_requests(user_id, created_at);

	create table if not exists transactions (
		entry_id uuid primary key,
		user_id text not null,
		kind text not null,
		amount_cents bigint not null,
		reference_id text,
		metadata jsonb not null default '{}'::jsonb,
		created_at timestamptz not null default now()
	);
	create index if not exists idx_tx_user_created on transactions(user_id, created_at);
`

const (
	sqlInsertAuditEntry = `
		insert into transactions(entry_id, user_id, kind, amount_cents, reference_id, metadata, created_at)
		values ($1, $2, $3, $4, nullif($5,''), coalesce(nullif($6,''),'{}')::jsonb, to_timestamp($7))
	`

	sqlListAuditEntries = `
		select
			entry_id::text,
			user_id,
			kind,
			amount_cents,
			coalesce(reference_id,''),
			metadata::text,
			extract(epoch from created_at)::bigint
		from transactions
		where user_id = $1 and ($2 = 0 or created_at >= to_timestamp($2))
		order by created_at asc, entry_id asc
		limit $3
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every statement
// runs unchanged inside or outside an explicit transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate creates the schema when it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, sqlSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func isUniqueViolation(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	return false
}

func stampUnix(unixUTC int64) int64 {
	if unixUTC == 0 {
		return time.Now().UTC().Unix()
	}
	return unixUTC
}

func appendAuditEntry(ctx context.Context, db querier, entry audit.Entry) error {
	entryID := entry.EntryID
	if entryID == "" {
		entryID = newID()
	}
	_, err := db.Exec(ctx, sqlInsertAuditEntry,
		entryID,
		entry.UserID,
		entry.Kind.String(),
		entry.AmountCents,
		entry.ReferenceID,
		entry.MetadataJSON,
		stampUnix(entry.CreatedUnixUTC),
	)
	return err
}

func scanAuditEntries(rows pgx.Rows) ([]audit.Entry, error) {
	entries := make([]audit.Entry, 0, 32)
	for rows.Next() {
		var entry audit.Entry
		var kindValue string
		if err := rows.Scan(
			&entry.EntryID,
			&entry.UserID,
			&kindValue,
			&entry.AmountCents,
			&entry.ReferenceID,
			&entry.MetadataJSON,
			&entry.CreatedUnixUTC,
		); err != nil {
			return nil, err
		}
		entry.Kind = audit.Kind(kindValue)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
