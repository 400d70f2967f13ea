package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStore struct {
	contents map[string]economy.Content
	logs     []Log
	logErr   error
}

func (s *stubStore) UpdateContentStatus(ctx context.Context, contentID string, status economy.ContentStatus) (economy.Content, error) {
	content, ok := s.contents[contentID]
	if !ok {
		return economy.Content{}, economy.ErrContentNotFound
	}
	content.Status = status
	s.contents[contentID] = content
	return content, nil
}

func (s *stubStore) InsertAdminLog(ctx context.Context, log Log) error {
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *stubStore) ListAdminLogs(ctx context.Context, action string, limit int) ([]Log, error) {
	filtered := make([]Log, 0)
	for _, log := range s.logs {
		if action == "" || log.Action == action {
			filtered = append(filtered, log)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

type stubEconomy struct {
	entries   map[string]economy.Entry
	reversed  map[string]bool
	refills   []economy.RefillRequest
	reviewErr error
}

func (s *stubEconomy) Entry(ctx context.Context, entryID string) (economy.Entry, error) {
	entry, ok := s.entries[entryID]
	if !ok {
		return economy.Entry{}, economy.ErrEntryNotFound
	}
	return entry, nil
}

func (s *stubEconomy) ReverseEntry(ctx context.Context, request economy.ReversalRequest) (economy.Entry, error) {
	if s.reversed[request.EntryID] {
		return economy.Entry{}, economy.ErrDuplicateIdempotencyKey
	}
	s.reversed[request.EntryID] = true
	target := s.entries[request.EntryID]
	return economy.Entry{EntryID: "rev-" + request.EntryID, UserID: target.UserID, Type: economy.EntryReversal, Deltas: target.Deltas.Negated()}, nil
}

func (s *stubEconomy) AdminRefill(ctx context.Context, request economy.RefillRequest) (economy.Entry, error) {
	s.refills = append(s.refills, request)
	return economy.Entry{EntryID: "refill-1", UserID: request.UserID.String(), Type: economy.EntryAdminRefill, Deltas: request.Deltas}, nil
}

func (s *stubEconomy) ReviewDropApplication(ctx context.Context, request economy.ReviewRequest) (economy.ReviewResult, error) {
	if s.reviewErr != nil {
		return economy.ReviewResult{}, s.reviewErr
	}
	status := economy.ApplicationStatusRejected
	if request.Approve {
		status = economy.ApplicationStatusApproved
	}
	return economy.ReviewResult{Application: economy.DropApplication{ApplicationID: request.ApplicationID, DropID: "drop-1", Status: status}}, nil
}

func newTestService(t *testing.T) (*Service, *stubStore, *stubEconomy) {
	t.Helper()
	store := &stubStore{contents: map[string]economy.Content{
		"content-1": {ContentID: "content-1", Status: economy.ContentStatusActive},
	}}
	economyStub := &stubEconomy{
		entries: map[string]economy.Entry{
			"entry-1": {EntryID: "entry-1", UserID: "user-1", Type: economy.EntryEarn, Deltas: economy.Deltas{Points: 25}},
		},
		reversed: map[string]bool{},
	}
	service, err := NewService(store, economyStub, func() int64 { return 1_700_000_000 }, zap.NewNop())
	require.NoError(t, err)
	return service, store, economyStub
}

func mustAdminID(t *testing.T) economy.UserID {
	t.Helper()
	adminID, err := economy.NewUserID("admin-1")
	require.NoError(t, err)
	return adminID
}

func TestModerateContentMapsActionsToStatus(t *testing.T) {
	service, store, _ := newTestService(t)
	adminID := mustAdminID(t)

	result, err := service.ModerateContent(context.Background(), adminID, "content-1", "Flag", "spam")
	require.NoError(t, err)
	assert.Equal(t, economy.ContentStatusFlagged, result.Content.Status)

	result, err = service.ModerateContent(context.Background(), adminID, "content-1", "reject", "")
	require.NoError(t, err)
	assert.Equal(t, economy.ContentStatusRejected, result.Content.Status)

	_, err = service.ModerateContent(context.Background(), adminID, "content-1", "delete", "")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = service.ModerateContent(context.Background(), adminID, "missing", "approve", "")
	assert.ErrorIs(t, err, economy.ErrContentNotFound)

	require.Len(t, store.logs, 2)
	assert.Equal(t, ActionContentModerate, store.logs[0].Action)
	assert.JSONEq(t, `{"action":"flag","reason":"spam","new_status":"flagged"}`, store.logs[0].Details)
}

func TestAuditEntryReverseOnlyOnce(t *testing.T) {
	service, store, _ := newTestService(t)
	adminID := mustAdminID(t)

	verified, err := service.AuditEntry(context.Background(), adminID, "entry-1", "verify", "looks fine")
	require.NoError(t, err)
	assert.Nil(t, verified.Reversal)

	reversed, err := service.AuditEntry(context.Background(), adminID, "entry-1", "reverse", "fraud")
	require.NoError(t, err)
	require.NotNil(t, reversed.Reversal)
	assert.Equal(t, economy.Deltas{Points: -25}, reversed.Reversal.Deltas)

	_, err = service.AuditEntry(context.Background(), adminID, "entry-1", "reverse", "again")
	assert.ErrorIs(t, err, economy.ErrDuplicateIdempotencyKey)

	_, err = service.AuditEntry(context.Background(), adminID, "missing", "flag", "")
	assert.ErrorIs(t, err, economy.ErrEntryNotFound)

	logs, err := service.ListLogs(context.Background(), ActionRewardAudit, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Len(t, store.logs, 2)
}

func TestReviewApplicationValidatesAction(t *testing.T) {
	service, store, economyStub := newTestService(t)
	adminID := mustAdminID(t)

	_, err := service.ReviewApplication(context.Background(), adminID, "app-1", "maybe")
	assert.ErrorIs(t, err, ErrInvalidAction)

	result, err := service.ReviewApplication(context.Background(), adminID, "app-1", "approve")
	require.NoError(t, err)
	assert.Equal(t, economy.ApplicationStatusApproved, result.Application.Status)

	economyStub.reviewErr = economy.ErrApplicationClosed
	_, err = service.ReviewApplication(context.Background(), adminID, "app-1", "approve")
	assert.ErrorIs(t, err, economy.ErrApplicationClosed)
	assert.Len(t, store.logs, 1)
}

func TestRefillSurvivesAuditWriteFailure(t *testing.T) {
	service, store, economyStub := newTestService(t)
	store.logErr = errors.New("admin_logs unavailable")
	userID, err := economy.NewUserID("user-1")
	require.NoError(t, err)

	entry, err := service.Refill(context.Background(), economy.RefillRequest{AdminID: mustAdminID(t), UserID: userID, Deltas: economy.Deltas{Gems: 10}, Reason: "support"})
	require.NoError(t, err)
	assert.Equal(t, economy.EntryAdminRefill, entry.Type)
	assert.Len(t, economyStub.refills, 1)
	assert.Empty(t, store.logs)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &stubEconomy{}, func() int64 { return 0 }, nil)
	assert.ErrorIs(t, err, ErrInvalidServiceConfig)
	_, err = NewService(&stubStore{}, &stubEconomy{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidServiceConfig)
}
