package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/afrikoin/likeledger/pkg/audit"
)

// Audit implements audit.Store over the transactions table.
type Audit struct {
	db *gorm.DB
}

// NewAudit returns an audit store backed by gorm.DB.
func NewAudit(db *gorm.DB) *Audit {
	return &Audit{db: db}
}

// AppendEntry writes one immutable row.
func (store *Audit) AppendEntry(ctx context.Context, entry audit.Entry) error {
	return appendAuditEntry(store.db.WithContext(ctx), entry)
}

// ListForUser returns entries in insertion order, oldest first.
func (store *Audit) ListForUser(ctx context.Context, userID string, sinceUnixUTC int64, limit int) ([]audit.Entry, error) {
	query := store.db.WithContext(ctx).Where("user_id = ?", userID)
	if sinceUnixUTC != 0 {
		query = query.Where("created_at >= ?", time.Unix(sinceUnixUTC, 0).UTC())
	}
	var rows []Transaction
	err := query.Order("created_at ASC, entry_id ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapAuditEntry(row))
	}
	return entries, nil
}
