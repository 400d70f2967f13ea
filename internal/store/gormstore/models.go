package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Balance represents the balances table.
type Balance struct {
	UserID    string    `gorm:"primaryKey"`
	Points    int64     `gorm:"not null;default:0;check:chk_balances_points,points >= 0"`
	Keys      int64     `gorm:"not null;default:0;check:chk_balances_keys,keys >= 0"`
	Gems      int64     `gorm:"not null;default:0;check:chk_balances_gems,gems >= 0"`
	Gold      int64     `gorm:"not null;default:0;check:chk_balances_gold,gold >= 0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Balance) TableName() string { return "balances" }

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID        string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index:idx_ledger_user_created,priority:1;uniqueIndex:ledger_entries_user_idempotency_key,priority:1"`
	Type           string         `gorm:"not null;index:idx_ledger_type_created,priority:1"`
	PointsDelta    int64          `gorm:"not null;default:0"`
	KeysDelta      int64          `gorm:"not null;default:0"`
	GemsDelta      int64          `gorm:"not null;default:0"`
	GoldDelta      int64          `gorm:"not null;default:0"`
	Reference      datatypes.JSON `gorm:"type:jsonb;not null"`
	IdempotencyKey *string        `gorm:"uniqueIndex:ledger_entries_user_idempotency_key,priority:2"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2;index:idx_ledger_type_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// User mirrors the users table.
type User struct {
	UserID          string    `gorm:"primaryKey"`
	ProviderSubject string    `gorm:"not null;uniqueIndex:users_provider_subject_key"`
	Email           string    `gorm:"not null;default:''"`
	DisplayName     string    `gorm:"not null;default:''"`
	AvatarURL       string    `gorm:"not null;default:''"`
	Tier            string    `gorm:"not null;default:'free'"`
	Role            string    `gorm:"not null;default:'user'"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

func (user *User) BeforeCreate(tx *gorm.DB) error {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	return nil
}

// Content mirrors the contents table.
type Content struct {
	ContentID   string    `gorm:"primaryKey"`
	CreatorID   string    `gorm:"not null;index"`
	Title       string    `gorm:"not null"`
	Platform    string    `gorm:"not null"`
	URL         string    `gorm:"not null;default:''"`
	Description string    `gorm:"not null;default:''"`
	TotalShares int64     `gorm:"not null"`
	SharesSold  int64     `gorm:"not null;default:0"`
	SharePrice  int64     `gorm:"not null"`
	Status      string    `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Content) TableName() string { return "contents" }

// SharePurchase mirrors the share_purchases table.
type SharePurchase struct {
	PurchaseID string    `gorm:"primaryKey"`
	ContentID  string    `gorm:"not null;index"`
	BuyerID    string    `gorm:"not null;index"`
	Shares     int64     `gorm:"not null"`
	TotalCost  int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (SharePurchase) TableName() string { return "share_purchases" }

// Drop mirrors the drops table.
type Drop struct {
	DropID          string    `gorm:"primaryKey"`
	CreatorID       string    `gorm:"not null;index"`
	Title           string    `gorm:"not null"`
	Description     string    `gorm:"not null;default:''"`
	Status          string    `gorm:"not null;index"`
	RewardCurrency  string    `gorm:"not null"`
	RewardAmount    int64     `gorm:"not null"`
	MaxParticipants int64     `gorm:"not null;default:0"`
	DeadlineAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
}

func (Drop) TableName() string { return "drops" }

// DropApplication mirrors the drop_applications table.
type DropApplication struct {
	ApplicationID string    `gorm:"primaryKey"`
	DropID        string    `gorm:"not null;uniqueIndex:drop_applications_drop_user_key,priority:1"`
	UserID        string    `gorm:"not null;uniqueIndex:drop_applications_drop_user_key,priority:2;index"`
	Status        string    `gorm:"not null"`
	SubmissionURL string    `gorm:"not null;default:''"`
	CreatedAt     time.Time `gorm:"not null"`
	ReviewedAt    *time.Time
}

func (DropApplication) TableName() string { return "drop_applications" }

// Stake mirrors the stakes table.
type Stake struct {
	StakeID     string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;index"`
	Channel     string    `gorm:"not null"`
	Amount      int64     `gorm:"not null"`
	Multiplier  string    `gorm:"not null"`
	Status      string    `gorm:"not null;index:idx_stakes_status_expires,priority:1"`
	Payout      int64     `gorm:"not null;default:0"`
	StartedAt   time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null;index:idx_stakes_status_expires,priority:2"`
	CompletedAt *time.Time
}

func (Stake) TableName() string { return "stakes" }

// FundingProject mirrors the funding_projects table.
type FundingProject struct {
	ProjectID    string    `gorm:"primaryKey"`
	CreatorID    string    `gorm:"not null;index"`
	Title        string    `gorm:"not null"`
	Description  string    `gorm:"not null;default:''"`
	GoalAmount   int64     `gorm:"not null"`
	FundedAmount int64     `gorm:"not null;default:0"`
	Status       string    `gorm:"not null"`
	DeadlineAt   *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

func (FundingProject) TableName() string { return "funding_projects" }

// Payment mirrors the payments table.
type Payment struct {
	PaymentID         string    `gorm:"primaryKey"`
	UserID            string    `gorm:"not null;index"`
	Kind              string    `gorm:"not null"`
	Provider          string    `gorm:"not null;uniqueIndex:payments_provider_session_key,priority:1"`
	ProviderSessionID *string   `gorm:"uniqueIndex:payments_provider_session_key,priority:2"`
	Gems              int64     `gorm:"not null"`
	Status            string    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// AdminLog mirrors the admin_logs table.
type AdminLog struct {
	LogID      string         `gorm:"primaryKey"`
	AdminID    string         `gorm:"not null;index"`
	Action     string         `gorm:"not null;index"`
	TargetType string         `gorm:"not null"`
	TargetID   string         `gorm:"not null"`
	Details    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

func (AdminLog) TableName() string { return "admin_logs" }

func (log *AdminLog) BeforeCreate(tx *gorm.DB) error {
	if log.LogID == "" {
		log.LogID = uuid.NewString()
	}
	return nil
}

// PartnerApp mirrors the partner_apps table.
type PartnerApp struct {
	AppID      string    `gorm:"primaryKey"`
	OwnerID    string    `gorm:"not null;index"`
	Name       string    `gorm:"not null"`
	WebhookURL string    `gorm:"not null;default:''"`
	KeyPrefix  string    `gorm:"not null;uniqueIndex:partner_apps_key_prefix_key"`
	KeyHash    string    `gorm:"not null"`
	Status     string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (PartnerApp) TableName() string { return "partner_apps" }

// PartnerUsage mirrors the partner_usage table.
type PartnerUsage struct {
	UsageID   string    `gorm:"primaryKey"`
	AppID     string    `gorm:"not null;index:idx_partner_usage_app_created,priority:1"`
	Endpoint  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_partner_usage_app_created,priority:2"`
}

func (PartnerUsage) TableName() string { return "partner_usage" }

func (usage *PartnerUsage) BeforeCreate(tx *gorm.DB) error {
	if usage.UsageID == "" {
		usage.UsageID = uuid.NewString()
	}
	return nil
}

// PartnerWebhookEvent mirrors the partner_webhook_events table.
type PartnerWebhookEvent struct {
	EventID     string         `gorm:"primaryKey"`
	AppID       string         `gorm:"not null;index"`
	EventType   string         `gorm:"not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status      string         `gorm:"not null;index:idx_partner_events_status_created,priority:1"`
	Attempts    int            `gorm:"not null;default:0"`
	LastError   string         `gorm:"not null;default:''"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_partner_events_status_created,priority:2"`
	DeliveredAt *time.Time
}

func (PartnerWebhookEvent) TableName() string { return "partner_webhook_events" }

// CronJob mirrors the cron_jobs table.
type CronJob struct {
	JobName        string `gorm:"primaryKey"`
	Status         string `gorm:"not null"`
	LastRunAt      *time.Time
	LastDurationMS int64     `gorm:"not null;default:0"`
	LastError      string    `gorm:"not null;default:''"`
	RunCount       int64     `gorm:"not null;default:0"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (CronJob) TableName() string { return "cron_jobs" }

// AnalyticsSnapshot mirrors the analytics_snapshots table, written by internal/reporting.
type AnalyticsSnapshot struct {
	SnapshotID         string    `gorm:"primaryKey"`
	TakenAt            time.Time `gorm:"not null;index"`
	DAU                int64     `gorm:"column:dau;not null"`
	WAU                int64     `gorm:"column:wau;not null"`
	MAU                int64     `gorm:"column:mau;not null"`
	TotalUsers         int64     `gorm:"not null"`
	ARPU               string    `gorm:"column:arpu;not null"`
	GemsPurchased      int64     `gorm:"not null"`
	TaskCompletionRate string    `gorm:"not null"`
}

func (AnalyticsSnapshot) TableName() string { return "analytics_snapshots" }

// Models lists every table for AutoMigrate on SQLite; Postgres uses internal/store/migrations.
func Models() []any {
	return []any{
		&Balance{},
		&LedgerEntry{},
		&User{},
		&Content{},
		&SharePurchase{},
		&Drop{},
		&DropApplication{},
		&Stake{},
		&FundingProject{},
		&Payment{},
		&AdminLog{},
		&PartnerApp{},
		&PartnerUsage{},
		&PartnerWebhookEvent{},
		&CronJob{},
		&AnalyticsSnapshot{},
	}
}
