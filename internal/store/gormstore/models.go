package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreditBalance mirrors the like_credits table, one row per user.
type CreditBalance struct {
	UserID         string    `gorm:"primaryKey"`
	Balance        int64     `gorm:"not null"`
	TotalPurchased int64     `gorm:"not null"`
	TotalUsed      int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (CreditBalance) TableName() string { return "like_credits" }

// Purchase mirrors the like_purchases table. The (user_id, purchase_token)
// unique index backs purchase idempotency.
type Purchase struct {
	PurchaseID       string     `gorm:"type:uuid;primaryKey"`
	UserID           string     `gorm:"not null;index:uniq_purchase_user_token,unique,priority:1"`
	PurchaseToken    string     `gorm:"not null;index:uniq_purchase_user_token,unique,priority:2"`
	ProductID        string     `gorm:"not null"`
	PackName         string     `gorm:"not null"`
	CreditsAmount    int64      `gorm:"not null"`
	PriceAmountCents int64      `gorm:"not null"`
	Status           string     `gorm:"not null"`
	VerifiedAt       *time.Time `gorm:""`
	CreatedAt        time.Time  `gorm:"not null"`
}

func (Purchase) TableName() string { return "like_purchases" }

func (purchase *Purchase) BeforeCreate(tx *gorm.DB) error {
	if purchase.PurchaseID == "" {
		purchase.PurchaseID = uuid.NewString()
	}
	return nil
}

// Usage mirrors the append-only like_usage table.
type Usage struct {
	UsageID      string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index:idx_usage_user_created,priority:1"`
	TargetPostID *string   `gorm:""`
	TargetUserID *string   `gorm:""`
	CreditsUsed  int64     `gorm:"not null"`
	UsageType    string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_usage_user_created,priority:2"`
}

func (Usage) TableName() string { return "like_usage" }

func (usage *Usage) BeforeCreate(tx *gorm.DB) error {
	if usage.UsageID == "" {
		usage.UsageID = uuid.NewString()
	}
	return nil
}

// CashBalance mirrors the user_balances table, one row per user.
type CashBalance struct {
	UserID         string    `gorm:"primaryKey"`
	AvailableCents int64     `gorm:"not null"`
	PendingCents   int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (CashBalance) TableName() string { return "user_balances" }

// PayoutMethod mirrors the payout_methods table.
type PayoutMethod struct {
	MethodID   string    `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"not null;index"`
	MethodType string    `gorm:"not null"`
	Provider   string    `gorm:"not null"`
	Label      string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (PayoutMethod) TableName() string { return "payout_methods" }

func (method *PayoutMethod) BeforeCreate(tx *gorm.DB) error {
	if method.MethodID == "" {
		method.MethodID = uuid.NewString()
	}
	return nil
}

// Withdrawal mirrors the withdrawal_requests table.
type Withdrawal struct {
	WithdrawalID   string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"not null;index:idx_withdrawal_user_created,priority:1"`
	MethodID       string    `gorm:"not null"`
	AmountCents    int64     `gorm:"not null"`
	FeeRateBps     int64     `gorm:"not null"`
	FeeCents       int64     `gorm:"not null"`
	NetAmountCents int64     `gorm:"not null"`
	Status         string    `gorm:"not null"`
	Reason         *string   `gorm:""`
	CreatedAt      time.Time `gorm:"not null;index:idx_withdrawal_user_created,priority:2"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Withdrawal) TableName() string { return "withdrawal_requests" }

func (withdrawal *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if withdrawal.WithdrawalID == "" {
		withdrawal.WithdrawalID = uuid.NewString()
	}
	return nil
}

// Transaction mirrors the append-only transactions audit table.
type Transaction struct {
	EntryID     string         `gorm:"type:uuid;primaryKey"`
	UserID      string         `gorm:"not null;index:idx_tx_user_created,priority:1"`
	Kind        string         `gorm:"not null"`
	AmountCents int64          `gorm:"not null"`
	ReferenceID *string        `gorm:""`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_tx_user_created,priority:2"`
}

func (Transaction) TableName() string { return "transactions" }

func (entry *Transaction) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}
