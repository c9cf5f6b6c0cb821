package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents the users table. Balances live here; only the ledger path
// writes them.
type User struct {
	UserID       string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Phone        string    `gorm:""`
	BalanceNgwee int64     `gorm:"not null"`
	BalanceWh    int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Cluster represents the clusters table.
type Cluster struct {
	ClusterID        string    `gorm:"primaryKey"`
	Name             string    `gorm:"not null"`
	CapacityWh       int64     `gorm:"not null"`
	AvailableWh      int64     `gorm:"not null"`
	PriceNgweePerKWh int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Cluster) TableName() string { return "clusters" }

// Transaction mirrors the append-only transactions table.
type Transaction struct {
	TransactionID    string    `gorm:"type:uuid;primaryKey"`
	Type             string    `gorm:"not null"`
	BuyerID          *string   `gorm:"index"`
	SellerID         *string   `gorm:"index"`
	UserID           *string   `gorm:"index"`
	ClusterID        *string   `gorm:"index"`
	EnergyWh         int64     `gorm:"not null"`
	CurrencyNgwee    int64     `gorm:"not null"`
	CarbonSavedGrams int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// Offer represents the offers table.
type Offer struct {
	OfferID          string    `gorm:"type:uuid;primaryKey"`
	FromUserID       string    `gorm:"not null;index"`
	ToUserID         *string   `gorm:""`
	EnergyWh         int64     `gorm:"not null"`
	PriceNgweePerKWh int64     `gorm:"not null"`
	TotalNgwee       int64     `gorm:"not null"`
	TradeType        string    `gorm:"not null"`
	Status           string    `gorm:"not null;index:idx_offers_status_expiry,priority:1"`
	ExpiresAt        time.Time `gorm:"not null;index:idx_offers_status_expiry,priority:2"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Offer) TableName() string { return "offers" }

func (offer *Offer) BeforeCreate(tx *gorm.DB) error {
	if offer.OfferID == "" {
		offer.OfferID = uuid.NewString()
	}
	return nil
}

// ScheduledTransaction represents the scheduled_transactions table. The
// sweep query leans on the status+scheduled_at index.
type ScheduledTransaction struct {
	ScheduleID     string     `gorm:"type:uuid;primaryKey"`
	Type           string     `gorm:"not null"`
	BuyerID        *string    `gorm:"index"`
	SellerID       *string    `gorm:"index"`
	ClusterID      *string    `gorm:""`
	EnergyWh       int64      `gorm:"not null"`
	EstimatedNgwee int64      `gorm:"not null"`
	ScheduledAt    time.Time  `gorm:"not null;index:idx_schedules_status_due,priority:2"`
	Status         string     `gorm:"not null;index:idx_schedules_status_due,priority:1"`
	ExecutedAt     *time.Time `gorm:""`
	FailureReason  string     `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (ScheduledTransaction) TableName() string { return "scheduled_transactions" }

func (schedule *ScheduledTransaction) BeforeCreate(tx *gorm.DB) error {
	if schedule.ScheduleID == "" {
		schedule.ScheduleID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the append-only ledger_entries table.
type LedgerEntry struct {
	EntryID             string         `gorm:"type:uuid;primaryKey"`
	UserID              string         `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	Type                string         `gorm:"not null"`
	CurrencyDeltaNgwee  int64          `gorm:"not null"`
	EnergyDeltaWh       int64          `gorm:"not null"`
	CurrencyBeforeNgwee int64          `gorm:"not null"`
	CurrencyAfterNgwee  int64          `gorm:"not null"`
	EnergyBeforeWh      int64          `gorm:"not null"`
	EnergyAfterWh       int64          `gorm:"not null"`
	Reference           string         `gorm:"not null;index"`
	Metadata            datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt           time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// MobileMoneyTransaction represents the mobile_money_transactions table.
// The unique indexes turn idempotency-key and webhook-id dedup into an
// atomic insert-or-reject.
type MobileMoneyTransaction struct {
	Reference      string     `gorm:"primaryKey"`
	IdempotencyKey string     `gorm:"not null;index:uniq_momo_idempotency_key,unique"`
	WebhookID      *string    `gorm:"index:uniq_momo_webhook_id,unique"`
	UserID         string     `gorm:"not null;index"`
	Type           string     `gorm:"not null"`
	AmountNgwee    int64      `gorm:"not null"`
	Phone          string     `gorm:""`
	Status         string     `gorm:"not null"`
	ConfirmedAt    *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (MobileMoneyTransaction) TableName() string { return "mobile_money_transactions" }
