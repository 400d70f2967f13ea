package economy

// ContentStatus tracks moderation state.
type ContentStatus string

const (
	ContentStatusActive   ContentStatus = "active"
	ContentStatusRejected ContentStatus = "rejected"
	ContentStatusFlagged  ContentStatus = "flagged"
)

// Content is a piece of creator content whose shares are sold for gems.
type Content struct {
	ContentID      string        `json:"id"`
	CreatorID      string        `json:"creator_id"`
	Title          string        `json:"title"`
	Platform       string        `json:"platform"`
	URL            string        `json:"url,omitempty"`
	Description    string        `json:"description,omitempty"`
	TotalShares    int64         `json:"total_shares"`
	SharesSold     int64         `json:"shares_sold"`
	SharePrice     int64         `json:"share_price"`
	Status         ContentStatus `json:"status"`
	CreatedUnixUTC int64         `json:"created_unix_utc"`
}

// AvailableShares returns the shares still for sale.
func (content Content) AvailableShares() int64 {
	available := content.TotalShares - content.SharesSold
	if available < 0 {
		return 0
	}
	return available
}

// SharePurchase records a completed shares purchase.
type SharePurchase struct {
	PurchaseID     string `json:"id"`
	ContentID      string `json:"content_id"`
	BuyerID        string `json:"buyer_id"`
	Shares         int64  `json:"shares"`
	TotalCost      int64  `json:"total_cost"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

// DropStatus tracks whether a drop accepts applications.
type DropStatus string

const (
	DropStatusActive DropStatus = "active"
	DropStatusClosed DropStatus = "closed"
)

// Drop is a task users apply to for a reward.
type Drop struct {
	DropID          string     `json:"id"`
	CreatorID       string     `json:"creator_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          DropStatus `json:"status"`
	RewardCurrency  Currency   `json:"reward_currency"`
	RewardAmount    int64      `json:"reward_amount"`
	MaxParticipants int64      `json:"max_participants"`
	DeadlineUnixUTC int64      `json:"deadline_unix_utc"`
	CreatedUnixUTC  int64      `json:"created_unix_utc"`
}

// ApplicationStatus tracks the review state of a drop application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// DropApplication is one user's application to a drop.
type DropApplication struct {
	ApplicationID   string            `json:"id"`
	DropID          string            `json:"drop_id"`
	UserID          string            `json:"user_id"`
	Status          ApplicationStatus `json:"status"`
	SubmissionURL   string            `json:"submission_url,omitempty"`
	CreatedUnixUTC  int64             `json:"created_unix_utc"`
	ReviewedUnixUTC int64             `json:"reviewed_unix_utc,omitempty"`
}

// StakeStatus tracks the stake lifecycle.
type StakeStatus string

const (
	StakeStatusActive    StakeStatus = "active"
	StakeStatusCompleted StakeStatus = "completed"
)

// Stake is gems locked in a growth channel.
type Stake struct {
	StakeID          string      `json:"id"`
	UserID           string      `json:"user_id"`
	Channel          string      `json:"channel"`
	Amount           int64       `json:"amount"`
	Multiplier       string      `json:"multiplier"`
	Status           StakeStatus `json:"status"`
	Payout           int64       `json:"payout"`
	StartedUnixUTC   int64       `json:"started_unix_utc"`
	ExpiresUnixUTC   int64       `json:"expires_unix_utc"`
	CompletedUnixUTC int64       `json:"completed_unix_utc,omitempty"`
}

// ProjectStatus tracks whether a project accepts funding.
type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "active"
	ProjectStatusFunded ProjectStatus = "funded"
)

// FundingProject is a creator project backed with gems.
type FundingProject struct {
	ProjectID       string        `json:"id"`
	CreatorID       string        `json:"creator_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	GoalAmount      int64         `json:"goal_amount"`
	FundedAmount    int64         `json:"funded_amount"`
	Status          ProjectStatus `json:"status"`
	DeadlineUnixUTC int64         `json:"deadline_unix_utc"`
	CreatedUnixUTC  int64         `json:"created_unix_utc"`
}

// PaymentKind distinguishes money in from money out.
type PaymentKind string

const (
	PaymentKindDeposit    PaymentKind = "deposit"
	PaymentKindWithdrawal PaymentKind = "withdrawal"
)

// PaymentStatus tracks provider settlement.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is a deposit through the payment processor or a withdrawal request.
type Payment struct {
	PaymentID         string        `json:"id"`
	UserID            string        `json:"user_id"`
	Kind              PaymentKind   `json:"kind"`
	Provider          string        `json:"provider"`
	ProviderSessionID string        `json:"provider_session_id,omitempty"`
	Gems              int64         `json:"gems"`
	Status            PaymentStatus `json:"status"`
	CreatedUnixUTC    int64         `json:"created_unix_utc"`
}
