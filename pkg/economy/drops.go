package economy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DropApplicationRequest asks to join a drop.
type DropApplicationRequest struct {
	UserID        UserID
	DropID        string
	SubmissionURL string
}

// ApplyToDrop records a pending application; a second application by the same user is a conflict.
// The drop row stays locked from the participant count to the insert.
func (service *Service) ApplyToDrop(ctx context.Context, request DropApplicationRequest) (DropApplication, error) {
	var application DropApplication
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		drop, err := transactionStore.LockDrop(ctx, request.DropID)
		if err != nil {
			return err
		}
		if drop.Status != DropStatusActive {
			return fmt.Errorf("%w: drop is %s", ErrDropClosed, drop.Status)
		}
		nowUnixUTC := service.nowFn()
		if drop.DeadlineUnixUTC != 0 && drop.DeadlineUnixUTC <= nowUnixUTC {
			return fmt.Errorf("%w: deadline passed", ErrDropClosed)
		}
		_, err = transactionStore.FindDropApplication(ctx, drop.DropID, request.UserID)
		if err == nil {
			return ErrAlreadyApplied
		}
		if !errors.Is(err, ErrApplicationNotFound) {
			return err
		}
		if drop.MaxParticipants > 0 {
			participants, err := transactionStore.CountDropApplications(ctx, drop.DropID)
			if err != nil {
				return err
			}
			if participants >= drop.MaxParticipants {
				return fmt.Errorf("%w: drop is full with %d participants", ErrResourceExhausted, participants)
			}
		}
		candidate := DropApplication{
			ApplicationID:  service.newID(),
			DropID:         drop.DropID,
			UserID:         request.UserID.String(),
			Status:         ApplicationStatusPending,
			SubmissionURL:  strings.TrimSpace(request.SubmissionURL),
			CreatedUnixUTC: nowUnixUTC,
		}
		if err := transactionStore.InsertDropApplication(ctx, candidate); err != nil {
			return err
		}
		application = candidate
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationApplyToDrop,
		UserID:    request.UserID,
		Reference: ReferenceOf(map[string]any{"drop_id": request.DropID}),
		Error:     operationError,
	})
	if operationError != nil {
		return DropApplication{}, operationError
	}
	return application, nil
}

// ReviewRequest approves or rejects a pending drop application.
type ReviewRequest struct {
	ApplicationID string
	ReviewerID    UserID
	Approve       bool
}

// ReviewResult reports the reviewed application and the reward minted for it.
type ReviewResult struct {
	Application DropApplication `json:"application"`
	Reward      int64           `json:"reward"`
	Currency    Currency        `json:"currency,omitempty"`
}

// ReviewDropApplication settles a pending application; approval mints the drop reward scaled by the applicant's tier.
func (service *Service) ReviewDropApplication(ctx context.Context, request ReviewRequest) (ReviewResult, error) {
	var result ReviewResult
	var applicantID UserID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		application, err := transactionStore.GetDropApplication(ctx, request.ApplicationID)
		if err != nil {
			return err
		}
		if application.Status != ApplicationStatusPending {
			return fmt.Errorf("%w: application is %s", ErrApplicationClosed, application.Status)
		}
		applicantID, err = NewUserID(application.UserID)
		if err != nil {
			return err
		}
		nextStatus := ApplicationStatusRejected
		if request.Approve {
			nextStatus = ApplicationStatusApproved
		}
		nowUnixUTC := service.nowFn()
		if err := transactionStore.UpdateDropApplicationStatus(ctx, application.ApplicationID, ApplicationStatusPending, nextStatus, nowUnixUTC); err != nil {
			return err
		}
		application.Status = nextStatus
		application.ReviewedUnixUTC = nowUnixUTC
		result = ReviewResult{Application: application}
		if !request.Approve {
			return nil
		}
		drop, err := transactionStore.GetDrop(ctx, application.DropID)
		if err != nil {
			return err
		}
		tier, err := service.tierOf(ctx, transactionStore, applicantID)
		if err != nil {
			return err
		}
		multiplier := service.rules.TierMultiplier(tier)
		reward := multiplier.Mul(decimal.NewFromInt(drop.RewardAmount)).Floor().IntPart()
		if reward <= 0 {
			return nil
		}
		if _, err := transactionStore.LockBalance(ctx, applicantID); err != nil {
			return err
		}
		reference := ReferenceOf(map[string]any{
			"kind":           "drop_reward",
			"drop_id":        drop.DropID,
			"application_id": application.ApplicationID,
			"tier":           tier,
			"multiplier":     multiplier.String(),
			"reviewer_id":    request.ReviewerID.String(),
		})
		idempotencyKey := deriveIdempotencyKey(idempotencyPrefixDrop, application.ApplicationID)
		if _, _, err := service.record(ctx, transactionStore, applicantID, EntryEarn, DeltaOf(drop.RewardCurrency, reward), reference, idempotencyKey); err != nil {
			return err
		}
		result.Reward = reward
		result.Currency = drop.RewardCurrency
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReviewDrop,
		UserID:    applicantID,
		Currency:  result.Currency,
		Amount:    result.Reward,
		Reference: ReferenceOf(map[string]any{"application_id": request.ApplicationID, "approve": request.Approve}),
		Error:     operationError,
	})
	if operationError != nil {
		return ReviewResult{}, operationError
	}
	return result, nil
}
