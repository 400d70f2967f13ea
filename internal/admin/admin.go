package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"go.uber.org/zap"
)

// Action types recorded in admin_logs.
const (
	ActionContentModerate = "content_moderate"
	ActionDropReview      = "drop_review"
	ActionRewardAudit     = "reward_audit"
	ActionAdminRefill     = "admin_refill"

	targetContent     = "content"
	targetApplication = "drop_application"
	targetEntry       = "ledger_entry"
	targetUser        = "user"

	defaultLogsLimit = 50
	maxLogsLimit     = 200
)

var (
	ErrInvalidAction        = errors.New("invalid admin action")
	ErrInvalidServiceConfig = errors.New("invalid admin service config")
)

// Log is one admin_logs row.
type Log struct {
	LogID          string `json:"id"`
	AdminID        string `json:"admin_id"`
	Action         string `json:"action"`
	TargetType     string `json:"target_type"`
	TargetID       string `json:"target_id"`
	Details        string `json:"details"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

// Store persists moderation state and the admin audit trail.
type Store interface {
	UpdateContentStatus(ctx context.Context, contentID string, status economy.ContentStatus) (economy.Content, error)
	InsertAdminLog(ctx context.Context, log Log) error
	ListAdminLogs(ctx context.Context, action string, limit int) ([]Log, error)
}

// Economy is the subset of economy.Service used by admins.
type Economy interface {
	Entry(ctx context.Context, entryID string) (economy.Entry, error)
	ReverseEntry(ctx context.Context, request economy.ReversalRequest) (economy.Entry, error)
	AdminRefill(ctx context.Context, request economy.RefillRequest) (economy.Entry, error)
	ReviewDropApplication(ctx context.Context, request economy.ReviewRequest) (economy.ReviewResult, error)
}

// Service runs admin actions and records each one in admin_logs.
type Service struct {
	store   Store
	economy Economy
	nowFn   func() int64
	logger  *zap.Logger
}

// NewService wires a Service.
func NewService(store Store, economyService Economy, now func() int64, logger *zap.Logger) (*Service, error) {
	if store == nil || economyService == nil {
		return nil, fmt.Errorf("%w: store and economy are required", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, economy: economyService, nowFn: now, logger: logger}, nil
}

// ModerationResult reports the content after moderation.
type ModerationResult struct {
	Content economy.Content `json:"content"`
	Action  string          `json:"action"`
}

// ModerateContent approves, rejects or flags a content listing.
func (service *Service) ModerateContent(ctx context.Context, adminID economy.UserID, contentID string, action string, reason string) (ModerationResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(action))
	var status economy.ContentStatus
	switch normalized {
	case "approve":
		status = economy.ContentStatusActive
	case "reject":
		status = economy.ContentStatusRejected
	case "flag":
		status = economy.ContentStatusFlagged
	default:
		return ModerationResult{}, fmt.Errorf("%w: %q, expected approve, reject or flag", ErrInvalidAction, action)
	}
	content, err := service.store.UpdateContentStatus(ctx, strings.TrimSpace(contentID), status)
	if err != nil {
		return ModerationResult{}, err
	}
	service.audit(ctx, adminID, ActionContentModerate, targetContent, content.ContentID, map[string]any{
		"action":     normalized,
		"reason":     strings.TrimSpace(reason),
		"new_status": status,
	})
	return ModerationResult{Content: content, Action: normalized}, nil
}

// ReviewApplication approves or rejects a pending drop application.
func (service *Service) ReviewApplication(ctx context.Context, adminID economy.UserID, applicationID string, action string) (economy.ReviewResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(action))
	if normalized != "approve" && normalized != "reject" {
		return economy.ReviewResult{}, fmt.Errorf("%w: %q, expected approve or reject", ErrInvalidAction, action)
	}
	result, err := service.economy.ReviewDropApplication(ctx, economy.ReviewRequest{
		ApplicationID: strings.TrimSpace(applicationID),
		ReviewerID:    adminID,
		Approve:       normalized == "approve",
	})
	if err != nil {
		return economy.ReviewResult{}, err
	}
	service.audit(ctx, adminID, ActionDropReview, targetApplication, result.Application.ApplicationID, map[string]any{
		"action":   normalized,
		"drop_id":  result.Application.DropID,
		"reward":   result.Reward,
		"currency": result.Currency,
	})
	return result, nil
}

// AuditResult reports an audited entry and, for reversals, the compensating entry.
type AuditResult struct {
	Entry    economy.Entry  `json:"entry"`
	Action   string         `json:"action"`
	Reversal *economy.Entry `json:"reversal,omitempty"`
}

// AuditEntry verifies, flags or reverses a ledger entry.
func (service *Service) AuditEntry(ctx context.Context, adminID economy.UserID, entryID string, action string, notes string) (AuditResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(action))
	if normalized != "verify" && normalized != "flag" && normalized != "reverse" {
		return AuditResult{}, fmt.Errorf("%w: %q, expected verify, flag or reverse", ErrInvalidAction, action)
	}
	entry, err := service.economy.Entry(ctx, entryID)
	if err != nil {
		return AuditResult{}, err
	}
	result := AuditResult{Entry: entry, Action: normalized}
	details := map[string]any{"action": normalized, "notes": strings.TrimSpace(notes), "user_id": entry.UserID}
	if normalized == "reverse" {
		reversal, err := service.economy.ReverseEntry(ctx, economy.ReversalRequest{AdminID: adminID, EntryID: entry.EntryID, Reason: notes})
		if err != nil {
			return AuditResult{}, err
		}
		result.Reversal = &reversal
		details["reversal_entry_id"] = reversal.EntryID
	}
	service.audit(ctx, adminID, ActionRewardAudit, targetEntry, entry.EntryID, details)
	return result, nil
}

// Refill credits a user and records who did it.
func (service *Service) Refill(ctx context.Context, request economy.RefillRequest) (economy.Entry, error) {
	entry, err := service.economy.AdminRefill(ctx, request)
	if err != nil {
		return economy.Entry{}, err
	}
	service.audit(ctx, request.AdminID, ActionAdminRefill, targetUser, request.UserID.String(), map[string]any{
		"entry_id": entry.EntryID,
		"deltas":   entry.Deltas,
		"reason":   strings.TrimSpace(request.Reason),
	})
	return entry, nil
}

// ListLogs returns recent admin actions, optionally filtered by action type.
func (service *Service) ListLogs(ctx context.Context, action string, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = defaultLogsLimit
	}
	if limit > maxLogsLimit {
		limit = maxLogsLimit
	}
	return service.store.ListAdminLogs(ctx, strings.TrimSpace(action), limit)
}

// audit writes the admin_logs row after the action committed; a failed write is logged, not returned.
func (service *Service) audit(ctx context.Context, adminID economy.UserID, action string, targetType string, targetID string, details map[string]any) {
	log := Log{
		AdminID:        adminID.String(),
		Action:         action,
		TargetType:     targetType,
		TargetID:       targetID,
		Details:        economy.ReferenceOf(details).String(),
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.InsertAdminLog(ctx, log); err != nil {
		service.logger.Error("admin log write failed",
			zap.String("action", action),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}
