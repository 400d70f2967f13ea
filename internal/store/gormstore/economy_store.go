package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockBalance creates a zero balance row when absent and locks it for the transaction.
func (store *Store) LockBalance(ctx context.Context, userID economy.UserID) (economy.Balance, error) {
	if err := store.ensureBalance(ctx, userID); err != nil {
		return economy.Balance{}, err
	}
	var model Balance
	err := store.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID.String()).
		Take(&model).Error
	if err != nil {
		return economy.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeLock, err)
	}
	return mapBalance(model), nil
}

func (store *Store) ensureBalance(ctx context.Context, userID economy.UserID) error {
	now := time.Now().UTC()
	model := Balance{UserID: userID.String(), CreatedAt: now, UpdatedAt: now}
	err := store.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeCreate, err)
	}
	return nil
}

// ApplyDeltas updates the balance only when every resulting column stays non-negative.
func (store *Store) ApplyDeltas(ctx context.Context, userID economy.UserID, deltas economy.Deltas) (economy.Balance, error) {
	if err := store.ensureBalance(ctx, userID); err != nil {
		return economy.Balance{}, err
	}
	result := store.conn(ctx).
		Model(&Balance{}).
		Where("user_id = ?", userID.String()).
		Where("points + ? >= 0 AND keys + ? >= 0 AND gems + ? >= 0 AND gold + ? >= 0", deltas.Points, deltas.Keys, deltas.Gems, deltas.Gold).
		Updates(map[string]any{
			"points":     gorm.Expr("points + ?", deltas.Points),
			"keys":       gorm.Expr("keys + ?", deltas.Keys),
			"gems":       gorm.Expr("gems + ?", deltas.Gems),
			"gold":       gorm.Expr("gold + ?", deltas.Gold),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return economy.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeApply, result.Error)
	}
	if result.RowsAffected == 0 {
		return economy.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeApply, economy.ErrInsufficientFunds)
	}
	var model Balance
	if err := store.conn(ctx).Where("user_id = ?", userID.String()).Take(&model).Error; err != nil {
		return economy.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return mapBalance(model), nil
}

func (store *Store) InsertEntry(ctx context.Context, entry economy.Entry) error {
	model := LedgerEntry{
		EntryID:        entry.EntryID,
		UserID:         entry.UserID,
		Type:           entry.Type.String(),
		PointsDelta:    entry.Deltas.Points,
		KeysDelta:      entry.Deltas.Keys,
		GemsDelta:      entry.Deltas.Gems,
		GoldDelta:      entry.Deltas.Gold,
		Reference:      datatypesJSON(entry.Reference),
		IdempotencyKey: optionalString(entry.IdempotencyKey),
		CreatedAt:      unixTime(entry.CreatedUnixUTC),
	}
	if entry.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.conn(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintEntryIdempotencyKey) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, economy.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetEntry(ctx context.Context, entryID string) (economy.Entry, error) {
	var model LedgerEntry
	err := store.conn(ctx).Where("entry_id = ?", entryID).Take(&model).Error
	if isNotFound(err) {
		return economy.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, economy.ErrEntryNotFound)
	}
	if err != nil {
		return economy.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return mapEntry(model), nil
}

func (store *Store) FindEntryByIdempotencyKey(ctx context.Context, userID economy.UserID, idempotencyKey economy.IdempotencyKey) (economy.Entry, error) {
	var model LedgerEntry
	err := store.conn(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID.String(), idempotencyKey.String()).
		Take(&model).Error
	if isNotFound(err) {
		return economy.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, economy.ErrEntryNotFound)
	}
	if err != nil {
		return economy.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	return mapEntry(model), nil
}

// ListEntries returns the newest entries first.
func (store *Store) ListEntries(ctx context.Context, userID economy.UserID, limit int, offset int) ([]economy.Entry, error) {
	var rows []LedgerEntry
	err := store.conn(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("entry_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapEntries(rows), nil
}

func (store *Store) ListAllEntries(ctx context.Context, userID economy.UserID) ([]economy.Entry, error) {
	var rows []LedgerEntry
	err := store.conn(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at ASC").
		Order("entry_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapEntries(rows), nil
}

func (store *Store) SumDeltas(ctx context.Context, userID economy.UserID, entryType economy.EntryType, sinceUnixUTC int64) (economy.Deltas, error) {
	var sum sqlDeltas
	err := store.conn(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(points_delta),0) as points, coalesce(sum(keys_delta),0) as keys, coalesce(sum(gems_delta),0) as gems, coalesce(sum(gold_delta),0) as gold").
		Where("user_id = ? AND type = ? AND created_at >= ?", userID.String(), entryType.String(), unixTime(sinceUnixUTC)).
		Scan(&sum).Error
	if err != nil {
		return economy.Deltas{}, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	return economy.Deltas{Points: sum.Points, Keys: sum.Keys, Gems: sum.Gems, Gold: sum.Gold}, nil
}

// UpsertUser inserts a user or refreshes the profile of the user with the same provider subject.
// An existing admin keeps the admin role.
func (store *Store) UpsertUser(ctx context.Context, user economy.User) (economy.User, error) {
	model := User{
		UserID:          user.UserID,
		ProviderSubject: user.ProviderSubject,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		AvatarURL:       user.AvatarURL,
		Tier:            string(user.Tier),
		Role:            string(user.Role),
		CreatedAt:       unixTime(user.CreatedUnixUTC),
	}
	if model.Tier == "" {
		model.Tier = string(economy.TierFree)
	}
	if model.Role == "" {
		model.Role = string(economy.RoleUser)
	}
	err := store.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_subject"}},
			DoUpdates: clause.Assignments(map[string]any{
				"email":        clause.Expr{SQL: "excluded.email"},
				"display_name": clause.Expr{SQL: "excluded.display_name"},
				"avatar_url":   clause.Expr{SQL: "excluded.avatar_url"},
				"role":         clause.Expr{SQL: "CASE WHEN excluded.role = ? THEN excluded.role ELSE users.role END", Vars: []any{string(economy.RoleAdmin)}},
			}),
		}).
		Create(&model).Error
	if err != nil {
		return economy.User{}, wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
	}
	var stored User
	if err := store.conn(ctx).Where("provider_subject = ?", user.ProviderSubject).Take(&stored).Error; err != nil {
		return economy.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return mapUser(stored), nil
}

func (store *Store) GetUser(ctx context.Context, userID economy.UserID) (economy.User, error) {
	var model User
	err := store.conn(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if isNotFound(err) {
		return economy.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, economy.ErrUserNotFound)
	}
	if err != nil {
		return economy.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return mapUser(model), nil
}

func (store *Store) GetContent(ctx context.Context, contentID string) (economy.Content, error) {
	var model Content
	err := store.conn(ctx).Where("content_id = ?", contentID).Take(&model).Error
	if isNotFound(err) {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeGet, economy.ErrContentNotFound)
	}
	if err != nil {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeGet, err)
	}
	return mapContent(model), nil
}

// AddSharesSold increments shares_sold while it stays within total_shares.
func (store *Store) AddSharesSold(ctx context.Context, contentID string, shares int64) (economy.Content, error) {
	result := store.conn(ctx).
		Model(&Content{}).
		Where("content_id = ? AND shares_sold + ? <= total_shares", contentID, shares).
		Update("shares_sold", gorm.Expr("shares_sold + ?", shares))
	if result.Error != nil {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeUpdate, result.Error)
	}
	content, err := store.GetContent(ctx, contentID)
	if err != nil {
		return economy.Content{}, err
	}
	if result.RowsAffected == 0 {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeUpdate, economy.ErrResourceExhausted)
	}
	return content, nil
}

func (store *Store) InsertSharePurchase(ctx context.Context, purchase economy.SharePurchase) error {
	model := SharePurchase{
		PurchaseID: purchase.PurchaseID,
		ContentID:  purchase.ContentID,
		BuyerID:    purchase.BuyerID,
		Shares:     purchase.Shares,
		TotalCost:  purchase.TotalCost,
		CreatedAt:  unixTime(purchase.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPurchase, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetProject(ctx context.Context, projectID string) (economy.FundingProject, error) {
	var model FundingProject
	err := store.conn(ctx).Where("project_id = ?", projectID).Take(&model).Error
	if isNotFound(err) {
		return economy.FundingProject{}, wrapStoreError(errorSubjectProject, errorCodeGet, economy.ErrProjectNotFound)
	}
	if err != nil {
		return economy.FundingProject{}, wrapStoreError(errorSubjectProject, errorCodeGet, err)
	}
	return mapProject(model), nil
}

// AddFunding increments funded_amount while it stays within goal_amount and marks the project funded at the goal.
func (store *Store) AddFunding(ctx context.Context, projectID string, amount int64) (economy.FundingProject, error) {
	result := store.conn(ctx).
		Model(&FundingProject{}).
		Where("project_id = ? AND funded_amount + ? <= goal_amount", projectID, amount).
		Updates(map[string]any{
			"funded_amount": gorm.Expr("funded_amount + ?", amount),
			"status": gorm.Expr("CASE WHEN funded_amount + ? >= goal_amount THEN ? ELSE status END",
				amount, string(economy.ProjectStatusFunded)),
		})
	if result.Error != nil {
		return economy.FundingProject{}, wrapStoreError(errorSubjectProject, errorCodeUpdate, result.Error)
	}
	project, err := store.GetProject(ctx, projectID)
	if err != nil {
		return economy.FundingProject{}, err
	}
	if result.RowsAffected == 0 {
		return economy.FundingProject{}, wrapStoreError(errorSubjectProject, errorCodeUpdate, economy.ErrResourceExhausted)
	}
	return project, nil
}

func (store *Store) GetDrop(ctx context.Context, dropID string) (economy.Drop, error) {
	var model Drop
	err := store.conn(ctx).Where("drop_id = ?", dropID).Take(&model).Error
	if isNotFound(err) {
		return economy.Drop{}, wrapStoreError(errorSubjectDrop, errorCodeGet, economy.ErrDropNotFound)
	}
	if err != nil {
		return economy.Drop{}, wrapStoreError(errorSubjectDrop, errorCodeGet, err)
	}
	return mapDrop(model), nil
}

func (store *Store) LockDrop(ctx context.Context, dropID string) (economy.Drop, error) {
	var model Drop
	err := store.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("drop_id = ?", dropID).
		Take(&model).Error
	if isNotFound(err) {
		return economy.Drop{}, wrapStoreError(errorSubjectDrop, errorCodeLock, economy.ErrDropNotFound)
	}
	if err != nil {
		return economy.Drop{}, wrapStoreError(errorSubjectDrop, errorCodeLock, err)
	}
	return mapDrop(model), nil
}

func (store *Store) CountDropApplications(ctx context.Context, dropID string) (int64, error) {
	var count int64
	if err := store.conn(ctx).Model(&DropApplication{}).Where("drop_id = ?", dropID).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectApplication, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) FindDropApplication(ctx context.Context, dropID string, userID economy.UserID) (economy.DropApplication, error) {
	var model DropApplication
	err := store.conn(ctx).Where("drop_id = ? AND user_id = ?", dropID, userID.String()).Take(&model).Error
	if isNotFound(err) {
		return economy.DropApplication{}, wrapStoreError(errorSubjectApplication, errorCodeLookup, economy.ErrApplicationNotFound)
	}
	if err != nil {
		return economy.DropApplication{}, wrapStoreError(errorSubjectApplication, errorCodeLookup, err)
	}
	return mapApplication(model), nil
}

func (store *Store) InsertDropApplication(ctx context.Context, application economy.DropApplication) error {
	model := DropApplication{
		ApplicationID: application.ApplicationID,
		DropID:        application.DropID,
		UserID:        application.UserID,
		Status:        string(application.Status),
		SubmissionURL: application.SubmissionURL,
		CreatedAt:     unixTime(application.CreatedUnixUTC),
		ReviewedAt:    optionalTime(application.ReviewedUnixUTC),
	}
	err := store.conn(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintDropApplicationUser) {
		return wrapStoreError(errorSubjectApplication, errorCodeDuplicate, economy.ErrAlreadyApplied)
	}
	if err != nil {
		return wrapStoreError(errorSubjectApplication, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetDropApplication(ctx context.Context, applicationID string) (economy.DropApplication, error) {
	var model DropApplication
	err := store.conn(ctx).Where("application_id = ?", applicationID).Take(&model).Error
	if isNotFound(err) {
		return economy.DropApplication{}, wrapStoreError(errorSubjectApplication, errorCodeGet, economy.ErrApplicationNotFound)
	}
	if err != nil {
		return economy.DropApplication{}, wrapStoreError(errorSubjectApplication, errorCodeGet, err)
	}
	return mapApplication(model), nil
}

func (store *Store) UpdateDropApplicationStatus(ctx context.Context, applicationID string, from economy.ApplicationStatus, to economy.ApplicationStatus, reviewedUnixUTC int64) error {
	result := store.conn(ctx).
		Model(&DropApplication{}).
		Where("application_id = ? AND status = ?", applicationID, string(from)).
		Updates(map[string]any{"status": string(to), "reviewed_at": unixTime(reviewedUnixUTC)})
	if result.Error != nil {
		return wrapStoreError(errorSubjectApplication, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectApplication, errorCodeUpdateStatus, economy.ErrApplicationClosed)
	}
	return nil
}

func (store *Store) InsertStake(ctx context.Context, stake economy.Stake) error {
	model := Stake{
		StakeID:     stake.StakeID,
		UserID:      stake.UserID,
		Channel:     stake.Channel,
		Amount:      stake.Amount,
		Multiplier:  stake.Multiplier,
		Status:      string(stake.Status),
		Payout:      stake.Payout,
		StartedAt:   unixTime(stake.StartedUnixUTC),
		ExpiresAt:   unixTime(stake.ExpiresUnixUTC),
		CompletedAt: optionalTime(stake.CompletedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectStake, errorCodeInsert, err)
	}
	return nil
}

// ListMaturedStakes returns active stakes expiring at or before atUnixUTC, oldest expiry first.
func (store *Store) ListMaturedStakes(ctx context.Context, atUnixUTC int64, limit int) ([]economy.Stake, error) {
	query := store.conn(ctx).
		Where("status = ? AND expires_at <= ?", string(economy.StakeStatusActive), unixTime(atUnixUTC)).
		Order("expires_at ASC").
		Order("stake_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Stake
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectStake, errorCodeList, err)
	}
	return mapStakes(rows), nil
}

func (store *Store) CompleteStake(ctx context.Context, stakeID string, payout int64, completedUnixUTC int64) error {
	result := store.conn(ctx).
		Model(&Stake{}).
		Where("stake_id = ? AND status = ?", stakeID, string(economy.StakeStatusActive)).
		Updates(map[string]any{
			"status":       string(economy.StakeStatusCompleted),
			"payout":       payout,
			"completed_at": unixTime(completedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectStake, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectStake, errorCodeUpdateStatus, economy.ErrStakeClosed)
	}
	return nil
}

func (store *Store) InsertPayment(ctx context.Context, payment economy.Payment) error {
	createdAt := unixTime(payment.CreatedUnixUTC)
	model := Payment{
		PaymentID:         payment.PaymentID,
		UserID:            payment.UserID,
		Kind:              string(payment.Kind),
		Provider:          payment.Provider,
		ProviderSessionID: optionalString(payment.ProviderSessionID),
		Gems:              payment.Gems,
		Status:            string(payment.Status),
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	err := store.conn(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintPaymentSession) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, economy.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetPaymentBySession(ctx context.Context, provider string, providerSessionID string) (economy.Payment, error) {
	var model Payment
	err := store.conn(ctx).
		Where("provider = ? AND provider_session_id = ?", provider, providerSessionID).
		Take(&model).Error
	if isNotFound(err) {
		return economy.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, economy.ErrPaymentNotFound)
	}
	if err != nil {
		return economy.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	return mapPayment(model), nil
}

func (store *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, from economy.PaymentStatus, to economy.PaymentStatus) error {
	result := store.conn(ctx).
		Model(&Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, economy.ErrPaymentClosed)
	}
	return nil
}

type sqlDeltas struct {
	Points int64
	Keys   int64
	Gems   int64
	Gold   int64
}
