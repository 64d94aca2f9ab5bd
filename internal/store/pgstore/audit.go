package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// Audit implements audit.Store over the transactions table.
type Audit struct {
	pool *pgxpool.Pool
}

// NewAudit returns an audit store backed by a pgx pool.
func NewAudit(pool *pgxpool.Pool) *Audit {
	return &Audit{pool: pool}
}

// AppendEntry writes one immutable row.
func (store *Audit) AppendEntry(ctx context.Context, entry audit.Entry) error {
	return appendAuditEntry(ctx, store.pool, entry)
}

// ListForUser returns entries in insertion order, oldest first.
func (store *Audit) ListForUser(ctx context.Context, userID string, sinceUnixUTC int64, limit int) ([]audit.Entry, error) {
	rows, err := store.pool.Query(ctx, sqlListAuditEntries, userID, sinceUnixUTC, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}
