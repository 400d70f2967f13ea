package economy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// WithdrawalRequest asks to cash out gems.
type WithdrawalRequest struct {
	UserID         UserID
	Amount         PositiveAmount
	IdempotencyKey IdempotencyKey
}

// Withdraw debits gems and records a pending withdrawal for manual payout.
func (service *Service) Withdraw(ctx context.Context, request WithdrawalRequest) (Payment, error) {
	var payment Payment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if request.Amount.Int64() < service.rules.MinimumWithdrawalGems {
			return fmt.Errorf("%w: minimum is %d gems", ErrBelowMinimumWithdrawal, service.rules.MinimumWithdrawalGems)
		}
		if err := ensureFreshKey(ctx, transactionStore, request.UserID, request.IdempotencyKey); err != nil {
			return err
		}
		balance, err := transactionStore.LockBalance(ctx, request.UserID)
		if err != nil {
			return err
		}
		if balance.Gems < request.Amount.Int64() {
			return fmt.Errorf("%w: have %d gems, need %d", ErrInsufficientFunds, balance.Gems, request.Amount.Int64())
		}
		candidate := Payment{
			PaymentID:      service.newID(),
			UserID:         request.UserID.String(),
			Kind:           PaymentKindWithdrawal,
			Provider:       providerManual,
			Gems:           request.Amount.Int64(),
			Status:         PaymentStatusPending,
			CreatedUnixUTC: service.nowFn(),
		}
		reference := ReferenceOf(map[string]any{"kind": "withdrawal", "payment_id": candidate.PaymentID})
		if _, _, err := service.record(ctx, transactionStore, request.UserID, EntrySpend, DeltaOf(CurrencyGems, -candidate.Gems), reference, request.IdempotencyKey); err != nil {
			return err
		}
		if err := transactionStore.InsertPayment(ctx, candidate); err != nil {
			return err
		}
		payment = candidate
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationWithdraw,
		UserID:         request.UserID,
		Currency:       CurrencyGems,
		Amount:         request.Amount.Int64(),
		IdempotencyKey: request.IdempotencyKey,
		Error:          operationError,
	})
	if operationError != nil {
		return Payment{}, operationError
	}
	return payment, nil
}

// CheckoutRecord describes a checkout session opened with the payment processor.
type CheckoutRecord struct {
	UserID    UserID
	Gems      PositiveAmount
	SessionID string
}

// RecordCheckout stores a pending deposit for a checkout session.
func (service *Service) RecordCheckout(ctx context.Context, record CheckoutRecord) (Payment, error) {
	sessionID := strings.TrimSpace(record.SessionID)
	if sessionID == "" {
		return Payment{}, fmt.Errorf("%w: checkout session id is required", ErrInvalidReference)
	}
	payment := Payment{
		PaymentID:         service.newID(),
		UserID:            record.UserID.String(),
		Kind:              PaymentKindDeposit,
		Provider:          providerStripe,
		ProviderSessionID: sessionID,
		Gems:              record.Gems.Int64(),
		Status:            PaymentStatusPending,
		CreatedUnixUTC:    service.nowFn(),
	}
	if err := service.store.InsertPayment(ctx, payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// DepositCompletion is the processor's confirmation that a checkout was paid.
// UserID and Gems come from the session metadata and are used only when no pending deposit was recorded.
type DepositCompletion struct {
	SessionID string
	UserID    UserID
	Gems      int64
}

// CompleteDeposit credits the purchased gems exactly once per checkout session.
// A repeat confirmation returns ErrPaymentClosed without crediting again.
func (service *Service) CompleteDeposit(ctx context.Context, completion DepositCompletion) (Payment, error) {
	var payment Payment
	sessionID := strings.TrimSpace(completion.SessionID)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if sessionID == "" {
			return fmt.Errorf("%w: checkout session id is required", ErrInvalidReference)
		}
		stored, err := transactionStore.GetPaymentBySession(ctx, providerStripe, sessionID)
		if errors.Is(err, ErrPaymentNotFound) {
			if completion.UserID.IsZero() || completion.Gems <= 0 {
				return err
			}
			stored = Payment{
				PaymentID:         service.newID(),
				UserID:            completion.UserID.String(),
				Kind:              PaymentKindDeposit,
				Provider:          providerStripe,
				ProviderSessionID: sessionID,
				Gems:              completion.Gems,
				Status:            PaymentStatusPending,
				CreatedUnixUTC:    service.nowFn(),
			}
			err = transactionStore.InsertPayment(ctx, stored)
		}
		if err != nil {
			return err
		}
		if stored.Kind != PaymentKindDeposit {
			return fmt.Errorf("%w: payment %s is a %s", ErrPaymentClosed, stored.PaymentID, stored.Kind)
		}
		if err := transactionStore.UpdatePaymentStatus(ctx, stored.PaymentID, PaymentStatusPending, PaymentStatusCompleted); err != nil {
			return err
		}
		userID, err := NewUserID(stored.UserID)
		if err != nil {
			return err
		}
		if _, err := transactionStore.LockBalance(ctx, userID); err != nil {
			return err
		}
		reference := ReferenceOf(map[string]any{
			"kind":       "deposit",
			"payment_id": stored.PaymentID,
			"provider":   stored.Provider,
			"session_id": sessionID,
		})
		idempotencyKey := deriveIdempotencyKey(idempotencyPrefixPayment, sessionID)
		if _, _, err := service.record(ctx, transactionStore, userID, EntryPurchase, DeltaOf(CurrencyGems, stored.Gems), reference, idempotencyKey); err != nil {
			return err
		}
		stored.Status = PaymentStatusCompleted
		payment = stored
		return nil
	})
	loggedUserID, _ := NewUserID(payment.UserID)
	service.logOperation(ctx, OperationLog{
		Operation: operationDeposit,
		UserID:    loggedUserID,
		Currency:  CurrencyGems,
		Amount:    payment.Gems,
		Reference: ReferenceOf(map[string]any{"session_id": sessionID}),
		Error:     operationError,
	})
	if operationError != nil {
		return Payment{}, operationError
	}
	return payment, nil
}
