package economy

import "context"

// Store is the persistence contract used by Service.
// Methods called on the txStore passed to WithTx run inside that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// LockBalance returns the user's balance, creating a zero row when absent, and holds a row lock until commit.
	LockBalance(ctx context.Context, userID UserID) (Balance, error)
	// ApplyDeltas changes the balance only if no field would become negative, else returns ErrInsufficientFunds.
	ApplyDeltas(ctx context.Context, userID UserID, deltas Deltas) (Balance, error)
	InsertEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, entryID string) (Entry, error)
	FindEntryByIdempotencyKey(ctx context.Context, userID UserID, idempotencyKey IdempotencyKey) (Entry, error)
	ListEntries(ctx context.Context, userID UserID, limit int, offset int) ([]Entry, error)
	ListAllEntries(ctx context.Context, userID UserID) ([]Entry, error)
	// SumDeltas totals entries of entryType created at or after sinceUnixUTC.
	SumDeltas(ctx context.Context, userID UserID, entryType EntryType, sinceUnixUTC int64) (Deltas, error)

	UpsertUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, userID UserID) (User, error)

	GetContent(ctx context.Context, contentID string) (Content, error)
	// AddSharesSold increments shares_sold only while it stays within total_shares, else ErrResourceExhausted.
	AddSharesSold(ctx context.Context, contentID string, shares int64) (Content, error)
	InsertSharePurchase(ctx context.Context, purchase SharePurchase) error

	GetProject(ctx context.Context, projectID string) (FundingProject, error)
	// AddFunding increments funded_amount only while it stays within goal_amount, else ErrResourceExhausted.
	AddFunding(ctx context.Context, projectID string, amount int64) (FundingProject, error)

	GetDrop(ctx context.Context, dropID string) (Drop, error)
	// LockDrop reads the drop under a row lock held until the transaction ends.
	LockDrop(ctx context.Context, dropID string) (Drop, error)
	CountDropApplications(ctx context.Context, dropID string) (int64, error)
	FindDropApplication(ctx context.Context, dropID string, userID UserID) (DropApplication, error)
	InsertDropApplication(ctx context.Context, application DropApplication) error
	GetDropApplication(ctx context.Context, applicationID string) (DropApplication, error)
	UpdateDropApplicationStatus(ctx context.Context, applicationID string, from ApplicationStatus, to ApplicationStatus, reviewedUnixUTC int64) error

	InsertStake(ctx context.Context, stake Stake) error
	ListMaturedStakes(ctx context.Context, atUnixUTC int64, limit int) ([]Stake, error)
	CompleteStake(ctx context.Context, stakeID string, payout int64, completedUnixUTC int64) error

	InsertPayment(ctx context.Context, payment Payment) error
	GetPaymentBySession(ctx context.Context, provider string, providerSessionID string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, from PaymentStatus, to PaymentStatus) error
}
