package catalog

import (
	"context"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
)

// Store persists catalog records. Balances are never touched here.
type Store interface {
	InsertContent(ctx context.Context, content economy.Content) error
	GetContent(ctx context.Context, contentID string) (economy.Content, error)
	ListContent(ctx context.Context, limit int, offset int) ([]economy.Content, error)

	InsertDrop(ctx context.Context, drop economy.Drop) error
	// ListActiveDrops returns active drops whose deadline is unset or after nowUnixUTC.
	ListActiveDrops(ctx context.Context, nowUnixUTC int64, limit int, offset int) ([]economy.Drop, error)
	ListUserApplications(ctx context.Context, userID economy.UserID) ([]economy.DropApplication, error)

	InsertProject(ctx context.Context, project economy.FundingProject) error
	ListProjects(ctx context.Context, limit int, offset int) ([]economy.FundingProject, error)

	ListUserStakes(ctx context.Context, userID economy.UserID) ([]economy.Stake, error)
}
