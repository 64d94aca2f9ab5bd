package gormstore

import (
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/afrikoin/likeledger/pkg/audit"
)

const (
	constraintPurchaseUserToken = "uniq_purchase_user_token"
	defaultMetadataJSON         = "{}"
	pgUniqueViolationCode       = "23505"
	sqliteConstraintCode        = 19
	dialectorPostgres           = "postgres"
)

// Migrate creates the schema for drivers without external migrations (sqlite).
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CreditBalance{},
		&Purchase{},
		&Usage{},
		&CashBalance{},
		&PayoutMethod{},
		&Withdrawal{},
		&Transaction{},
	)
}

// withRowLock adds SELECT ... FOR UPDATE on drivers that support it. SQLite
// serializes writers on its own and rejects the clause.
func withRowLock(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == dialectorPostgres {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func appendAuditEntry(db *gorm.DB, entry audit.Entry) error {
	var referenceID *string
	if entry.ReferenceID != "" {
		value := entry.ReferenceID
		referenceID = &value
	}
	model := Transaction{
		EntryID:     entry.EntryID,
		UserID:      entry.UserID,
		Kind:        entry.Kind.String(),
		AmountCents: entry.AmountCents,
		ReferenceID: referenceID,
		Metadata:    datatypesJSON(entry.MetadataJSON),
		CreatedAt:   time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if entry.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	return db.Create(&model).Error
}

func mapAuditEntry(row Transaction) audit.Entry {
	referenceID := ""
	if row.ReferenceID != nil {
		referenceID = *row.ReferenceID
	}
	return audit.Entry{
		EntryID:        row.EntryID,
		UserID:         row.UserID,
		Kind:           audit.Kind(row.Kind),
		AmountCents:    row.AmountCents,
		ReferenceID:    referenceID,
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}
}
