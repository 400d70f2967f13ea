package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintEntryIdempotencyKey = "ledger_entries_user_idempotency_key"
	constraintDropApplicationUser = "drop_applications_drop_user_key"
	constraintPaymentSession      = "payments_provider_session_key"
	constraintPartnerKeyPrefix    = "partner_apps_key_prefix_key"
	defaultReferenceJSON          = "{}"
	pgUniqueViolationCode         = "23505"
	sqliteConstraintCode          = 19
	errorOperationStore           = "store"
	errorSubjectApplication       = "application"
	errorSubjectAdminLog          = "admin_log"
	errorSubjectBalance           = "balance"
	errorSubjectContent           = "content"
	errorSubjectDrop              = "drop"
	errorSubjectEntry             = "entry"
	errorSubjectJob               = "job"
	errorSubjectPartnerApp        = "partner_app"
	errorSubjectPartnerEvent      = "partner_event"
	errorSubjectPartnerUsage      = "partner_usage"
	errorSubjectPayment           = "payment"
	errorSubjectProject           = "project"
	errorSubjectPurchase          = "purchase"
	errorSubjectStake             = "stake"
	errorSubjectUser              = "user"
	errorCodeApply                = "apply"
	errorCodeCount                = "count"
	errorCodeCreate               = "create"
	errorCodeDuplicate            = "duplicate"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeList                 = "list"
	errorCodeLock                 = "lock"
	errorCodeLookup               = "lookup"
	errorCodeSum                  = "sum"
	errorCodeUpdate               = "update"
	errorCodeUpdateStatus         = "update_status"
	errorCodeUpsert               = "upsert"
)

// Store implements the economy, catalog, admin, partners and automation stores using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore economy.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) conn(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx)
}

func wrapStoreError(subject string, code string, err error) error {
	return economy.WrapError(errorOperationStore, subject, code, err)
}

func unixTime(unixUTC int64) time.Time {
	return time.Unix(unixUTC, 0).UTC()
}

// optionalTime maps zero to NULL.
func optionalTime(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := unixTime(unixUTC)
	return &value
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
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

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultReferenceJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueConflict reports a unique violation; Postgres errors must also name the constraint.
func isUniqueConflict(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
