package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/google/uuid"
)

const (
	defaultTotalShares     int64 = 100
	maxTotalShares         int64 = 10000
	defaultSharePrice      int64 = 1
	maxSharePrice          int64 = 1000
	defaultProjectDays           = 30
	maxProjectDays               = 90
	defaultListLimit             = 20
	maxListLimit                 = 100
	maxTitleLength               = 200
	secondsPerDay          int64 = 24 * 60 * 60
)

// Service creates and lists content, drops, funding projects and stakes.
type Service struct {
	store Store
	rules economy.Rules
	nowFn func() int64
	newID func() string
}

// NewService wires a Service.
func NewService(store Store, rules economy.Rules, now func() int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, rules: rules, nowFn: now, newID: uuid.NewString}, nil
}

// NewContent is the input for CreateContent. Zero shares and price take the defaults.
type NewContent struct {
	CreatorID   economy.UserID
	Title       string
	Platform    string
	URL         string
	Description string
	TotalShares int64
	SharePrice  int64
}

// CreateContent validates and stores a new active content listing.
func (s *Service) CreateContent(ctx context.Context, input NewContent) (economy.Content, error) {
	title, err := requiredText(input.Title, "title", ErrInvalidContent)
	if err != nil {
		return economy.Content{}, err
	}
	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	if platform == "" {
		return economy.Content{}, fmt.Errorf("%w: platform is required", ErrInvalidContent)
	}
	totalShares := input.TotalShares
	if totalShares == 0 {
		totalShares = defaultTotalShares
	}
	if totalShares < 1 || totalShares > maxTotalShares {
		return economy.Content{}, fmt.Errorf("%w: total_shares must be between 1 and %d", ErrInvalidContent, maxTotalShares)
	}
	sharePrice := input.SharePrice
	if sharePrice == 0 {
		sharePrice = defaultSharePrice
	}
	if sharePrice < 1 || sharePrice > maxSharePrice {
		return economy.Content{}, fmt.Errorf("%w: share_price must be between 1 and %d", ErrInvalidContent, maxSharePrice)
	}
	content := economy.Content{
		ContentID:      s.newID(),
		CreatorID:      input.CreatorID.String(),
		Title:          title,
		Platform:       platform,
		URL:            strings.TrimSpace(input.URL),
		Description:    strings.TrimSpace(input.Description),
		TotalShares:    totalShares,
		SharePrice:     sharePrice,
		Status:         economy.ContentStatusActive,
		CreatedUnixUTC: s.nowFn(),
	}
	if err := s.store.InsertContent(ctx, content); err != nil {
		return economy.Content{}, err
	}
	return content, nil
}

// GetContent returns one listing.
func (s *Service) GetContent(ctx context.Context, contentID string) (economy.Content, error) {
	return s.store.GetContent(ctx, strings.TrimSpace(contentID))
}

// ListContent pages active content newest first.
func (s *Service) ListContent(ctx context.Context, limit int, offset int) ([]economy.Content, error) {
	return s.store.ListContent(ctx, NormalizeLimit(limit), normalizeOffset(offset))
}

// NewDrop is the input for CreateDrop.
type NewDrop struct {
	CreatorID       economy.UserID
	Title           string
	Description     string
	RewardCurrency  string
	RewardAmount    int64
	MaxParticipants int64
	DeadlineUnixUTC int64
}

// CreateDrop validates and stores an active drop. MaxParticipants 0 means unlimited.
func (s *Service) CreateDrop(ctx context.Context, input NewDrop) (economy.Drop, error) {
	title, err := requiredText(input.Title, "title", ErrInvalidDrop)
	if err != nil {
		return economy.Drop{}, err
	}
	rewardCurrency := economy.CurrencyPoints
	if strings.TrimSpace(input.RewardCurrency) != "" {
		rewardCurrency, err = economy.ParseCurrency(input.RewardCurrency)
		if err != nil {
			return economy.Drop{}, fmt.Errorf("%w: %v", ErrInvalidDrop, err)
		}
	}
	if input.RewardAmount <= 0 {
		return economy.Drop{}, fmt.Errorf("%w: reward_amount must be greater than zero", ErrInvalidDrop)
	}
	if input.MaxParticipants < 0 {
		return economy.Drop{}, fmt.Errorf("%w: max_participants must not be negative", ErrInvalidDrop)
	}
	nowUnixUTC := s.nowFn()
	if input.DeadlineUnixUTC != 0 && input.DeadlineUnixUTC <= nowUnixUTC {
		return economy.Drop{}, fmt.Errorf("%w: deadline must be in the future", ErrInvalidDrop)
	}
	drop := economy.Drop{
		DropID:          s.newID(),
		CreatorID:       input.CreatorID.String(),
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Status:          economy.DropStatusActive,
		RewardCurrency:  rewardCurrency,
		RewardAmount:    input.RewardAmount,
		MaxParticipants: input.MaxParticipants,
		DeadlineUnixUTC: input.DeadlineUnixUTC,
		CreatedUnixUTC:  nowUnixUTC,
	}
	if err := s.store.InsertDrop(ctx, drop); err != nil {
		return economy.Drop{}, err
	}
	return drop, nil
}

// ListActiveDrops pages drops still accepting applications.
func (s *Service) ListActiveDrops(ctx context.Context, limit int, offset int) ([]economy.Drop, error) {
	return s.store.ListActiveDrops(ctx, s.nowFn(), NormalizeLimit(limit), normalizeOffset(offset))
}

// ListUserApplications returns the caller's drop applications.
func (s *Service) ListUserApplications(ctx context.Context, userID economy.UserID) ([]economy.DropApplication, error) {
	return s.store.ListUserApplications(ctx, userID)
}

// NewProject is the input for CreateProject. DurationDays 0 takes the default.
type NewProject struct {
	CreatorID    economy.UserID
	Title        string
	Description  string
	GoalAmount   int64
	DurationDays int
}

// CreateProject validates and stores an active funding project.
func (s *Service) CreateProject(ctx context.Context, input NewProject) (economy.FundingProject, error) {
	title, err := requiredText(input.Title, "title", ErrInvalidProject)
	if err != nil {
		return economy.FundingProject{}, err
	}
	if input.GoalAmount <= 0 {
		return economy.FundingProject{}, fmt.Errorf("%w: goal_amount must be greater than zero", ErrInvalidProject)
	}
	durationDays := input.DurationDays
	if durationDays == 0 {
		durationDays = defaultProjectDays
	}
	if durationDays < 1 || durationDays > maxProjectDays {
		return economy.FundingProject{}, fmt.Errorf("%w: duration_days must be between 1 and %d", ErrInvalidProject, maxProjectDays)
	}
	nowUnixUTC := s.nowFn()
	project := economy.FundingProject{
		ProjectID:       s.newID(),
		CreatorID:       input.CreatorID.String(),
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		GoalAmount:      input.GoalAmount,
		Status:          economy.ProjectStatusActive,
		DeadlineUnixUTC: nowUnixUTC + int64(durationDays)*secondsPerDay,
		CreatedUnixUTC:  nowUnixUTC,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return economy.FundingProject{}, err
	}
	return project, nil
}

// ListProjects pages funding projects newest first.
func (s *Service) ListProjects(ctx context.Context, limit int, offset int) ([]economy.FundingProject, error) {
	return s.store.ListProjects(ctx, NormalizeLimit(limit), normalizeOffset(offset))
}

// ListStakes returns the caller's stakes.
func (s *Service) ListStakes(ctx context.Context, userID economy.UserID) ([]economy.Stake, error) {
	return s.store.ListUserStakes(ctx, userID)
}

// Channel is the public view of a staking channel.
type Channel struct {
	Name       string `json:"name"`
	LockDays   int    `json:"lock_days"`
	Multiplier string `json:"multiplier"`
}

// Channels lists the staking channels from the rules table.
func (s *Service) Channels() []Channel {
	channels := make([]Channel, 0, len(s.rules.StakeChannels))
	for _, channel := range s.rules.StakeChannels {
		channels = append(channels, Channel{Name: channel.Name, LockDays: channel.LockDays, Multiplier: channel.Multiplier.String()})
	}
	return channels
}

// NormalizeLimit clamps a page size to the supported range.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func requiredText(raw string, field string, kind error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", kind, field)
	}
	if len(trimmed) > maxTitleLength {
		return "", fmt.Errorf("%w: %s is longer than %d characters", kind, field, maxTitleLength)
	}
	return trimmed, nil
}
