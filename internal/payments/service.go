package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"go.uber.org/zap"
)

// Ledger is the part of the economy service that books deposits.
type Ledger interface {
	RecordCheckout(ctx context.Context, record economy.CheckoutRecord) (economy.Payment, error)
	CompleteDeposit(ctx context.Context, completion economy.DepositCompletion) (economy.Payment, error)
}

// Service connects Stripe checkout to the ledger.
type Service struct {
	client *Client
	ledger Ledger
	logger *zap.Logger
}

// NewService wires client and ledger.
func NewService(client *Client, ledger Ledger, logger *zap.Logger) (*Service, error) {
	if client == nil || ledger == nil {
		return nil, fmt.Errorf("%w: client and ledger are required", ErrNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, ledger: ledger, logger: logger}, nil
}

// Packages lists purchasable gem bundles.
func (service *Service) Packages() []Package {
	return service.client.Packages()
}

// Checkout opens a Stripe session and records the pending deposit.
// The Stripe call happens outside any database transaction.
func (service *Service) Checkout(ctx context.Context, userID economy.UserID, email string, gems int64, idempotencyKey string) (CheckoutSession, error) {
	amount, err := economy.NewPositiveAmount(gems)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := service.client.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:         userID.String(),
		Email:          email,
		Gems:           gems,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	if _, err := service.ledger.RecordCheckout(ctx, economy.CheckoutRecord{UserID: userID, Gems: amount, SessionID: session.SessionID}); err != nil {
		return CheckoutSession{}, err
	}
	return session, nil
}

// WebhookOutcome reports what a webhook delivery did.
type WebhookOutcome struct {
	EventType string `json:"event_type"`
	Credited  bool   `json:"credited"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Gems      int64  `json:"gems,omitempty"`
}

// HandleWebhook verifies a delivery and credits completed checkouts exactly once.
// Other event types are acknowledged without effect.
func (service *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (WebhookOutcome, error) {
	event, err := service.client.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return WebhookOutcome{}, err
	}
	outcome := WebhookOutcome{EventType: event.Type}
	if event.Type != EventCheckoutCompleted || (event.PaymentStatus != "" && event.PaymentStatus != "paid") {
		return outcome, nil
	}
	completion := economy.DepositCompletion{SessionID: event.SessionID, Gems: event.Gems}
	if userID, err := economy.NewUserID(event.UserID); err == nil {
		completion.UserID = userID
	}
	payment, err := service.ledger.CompleteDeposit(ctx, completion)
	switch {
	case errors.Is(err, economy.ErrPaymentClosed), errors.Is(err, economy.ErrDuplicateIdempotencyKey):
		service.logger.Info("stripe webhook replayed", zap.String("session_id", event.SessionID), zap.String("event_id", event.EventID))
		outcome.Duplicate = true
		return outcome, nil
	case err != nil:
		return WebhookOutcome{}, err
	}
	outcome.Credited = true
	outcome.Gems = payment.Gems
	return outcome, nil
}
