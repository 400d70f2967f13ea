package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
)

func (store *Store) InsertContent(ctx context.Context, content economy.Content) error {
	model := Content{
		ContentID:   content.ContentID,
		CreatorID:   content.CreatorID,
		Title:       content.Title,
		Platform:    content.Platform,
		URL:         content.URL,
		Description: content.Description,
		TotalShares: content.TotalShares,
		SharesSold:  content.SharesSold,
		SharePrice:  content.SharePrice,
		Status:      string(content.Status),
		CreatedAt:   unixTime(content.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectContent, errorCodeInsert, err)
	}
	return nil
}

// ListContent pages active content, newest first.
func (store *Store) ListContent(ctx context.Context, limit int, offset int) ([]economy.Content, error) {
	var rows []Content
	err := store.conn(ctx).
		Where("status = ?", string(economy.ContentStatusActive)).
		Order("created_at DESC").
		Order("content_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectContent, errorCodeList, err)
	}
	contents := make([]economy.Content, 0, len(rows))
	for _, row := range rows {
		contents = append(contents, mapContent(row))
	}
	return contents, nil
}

func (store *Store) InsertDrop(ctx context.Context, drop economy.Drop) error {
	model := Drop{
		DropID:          drop.DropID,
		CreatorID:       drop.CreatorID,
		Title:           drop.Title,
		Description:     drop.Description,
		Status:          string(drop.Status),
		RewardCurrency:  drop.RewardCurrency.String(),
		RewardAmount:    drop.RewardAmount,
		MaxParticipants: drop.MaxParticipants,
		DeadlineAt:      optionalTime(drop.DeadlineUnixUTC),
		CreatedAt:       unixTime(drop.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectDrop, errorCodeInsert, err)
	}
	return nil
}

// ListActiveDrops pages active drops whose deadline is unset or still ahead of nowUnixUTC.
func (store *Store) ListActiveDrops(ctx context.Context, nowUnixUTC int64, limit int, offset int) ([]economy.Drop, error) {
	var rows []Drop
	err := store.conn(ctx).
		Where("status = ?", string(economy.DropStatusActive)).
		Where("(deadline_at IS NULL OR deadline_at > ?)", unixTime(nowUnixUTC)).
		Order("created_at DESC").
		Order("drop_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectDrop, errorCodeList, err)
	}
	drops := make([]economy.Drop, 0, len(rows))
	for _, row := range rows {
		drops = append(drops, mapDrop(row))
	}
	return drops, nil
}

func (store *Store) ListUserApplications(ctx context.Context, userID economy.UserID) ([]economy.DropApplication, error) {
	var rows []DropApplication
	err := store.conn(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectApplication, errorCodeList, err)
	}
	return mapApplications(rows), nil
}

func (store *Store) InsertProject(ctx context.Context, project economy.FundingProject) error {
	model := FundingProject{
		ProjectID:    project.ProjectID,
		CreatorID:    project.CreatorID,
		Title:        project.Title,
		Description:  project.Description,
		GoalAmount:   project.GoalAmount,
		FundedAmount: project.FundedAmount,
		Status:       string(project.Status),
		DeadlineAt:   optionalTime(project.DeadlineUnixUTC),
		CreatedAt:    unixTime(project.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectProject, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListProjects(ctx context.Context, limit int, offset int) ([]economy.FundingProject, error) {
	var rows []FundingProject
	err := store.conn(ctx).
		Order("created_at DESC").
		Order("project_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProject, errorCodeList, err)
	}
	projects := make([]economy.FundingProject, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, mapProject(row))
	}
	return projects, nil
}

func (store *Store) ListUserStakes(ctx context.Context, userID economy.UserID) ([]economy.Stake, error) {
	var rows []Stake
	err := store.conn(ctx).
		Where("user_id = ?", userID.String()).
		Order("started_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStake, errorCodeList, err)
	}
	return mapStakes(rows), nil
}
