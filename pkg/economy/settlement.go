package economy

import (
	"context"
	"fmt"
)

type settlement struct {
	buyer          UserID
	seller         UserID
	currency       Currency
	amount         int64
	reference      Reference
	idempotencyKey IdempotencyKey
}

type settlementResult struct {
	buyerBalance  Balance
	sellerBalance Balance
}

// settle moves amount of one currency from buyer to seller inside the caller's transaction.
// Both balance rows are locked in user id order so concurrent opposite settlements cannot deadlock.
func (service *Service) settle(ctx context.Context, transactionStore Store, request settlement) (settlementResult, error) {
	if request.amount <= 0 {
		return settlementResult{}, fmt.Errorf("%w: settlement amount must be greater than zero", ErrInvalidAmount)
	}
	if request.buyer == request.seller {
		return settlementResult{}, ErrSelfSettlement
	}
	first, second := request.buyer, request.seller
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[UserID]Balance, 2)
	for _, userID := range []UserID{first, second} {
		balance, err := transactionStore.LockBalance(ctx, userID)
		if err != nil {
			return settlementResult{}, err
		}
		locked[userID] = balance
	}
	buyerBalance := locked[request.buyer]
	if buyerBalance.Amount(request.currency) < request.amount {
		return settlementResult{}, fmt.Errorf("%w: have %d %s, need %d", ErrInsufficientFunds, buyerBalance.Amount(request.currency), request.currency, request.amount)
	}
	_, buyerAfter, err := service.record(ctx, transactionStore, request.buyer, EntryTransfer, DeltaOf(request.currency, -request.amount), request.reference, request.idempotencyKey)
	if err != nil {
		return settlementResult{}, err
	}
	sellerKey := IdempotencyKey{}
	if !request.idempotencyKey.IsZero() {
		sellerKey = deriveIdempotencyKey(request.idempotencyKey.String(), idempotencySuffixSeller)
	}
	_, sellerAfter, err := service.record(ctx, transactionStore, request.seller, EntryTransfer, DeltaOf(request.currency, request.amount), request.reference, sellerKey)
	if err != nil {
		return settlementResult{}, err
	}
	return settlementResult{buyerBalance: buyerAfter, sellerBalance: sellerAfter}, nil
}

// SharePurchaseRequest asks to buy shares of a piece of content.
type SharePurchaseRequest struct {
	BuyerID        UserID
	ContentID      string
	Shares         PositiveAmount
	IdempotencyKey IdempotencyKey
}

// SharePurchaseResult reports a completed purchase.
type SharePurchaseResult struct {
	SharesPurchased int64   `json:"shares_purchased"`
	TotalCost       int64   `json:"total_cost"`
	RemainingShares int64   `json:"remaining_shares"`
	Balance         Balance `json:"balance"`
}

// BuyShares pays the content creator in gems and decrements the shares still for sale.
func (service *Service) BuyShares(ctx context.Context, request SharePurchaseRequest) (SharePurchaseResult, error) {
	var result SharePurchaseResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := ensureFreshKey(ctx, transactionStore, request.BuyerID, request.IdempotencyKey); err != nil {
			return err
		}
		content, err := transactionStore.GetContent(ctx, request.ContentID)
		if err != nil {
			return err
		}
		if content.Status != ContentStatusActive {
			return fmt.Errorf("%w: content is %s", ErrContentUnavailable, content.Status)
		}
		shares := request.Shares.Int64()
		if shares > content.AvailableShares() {
			return fmt.Errorf("%w: only %d shares available", ErrResourceExhausted, content.AvailableShares())
		}
		creatorID, err := NewUserID(content.CreatorID)
		if err != nil {
			return err
		}
		totalCost := content.SharePrice * shares
		purchaseID := service.newID()
		settled, err := service.settle(ctx, transactionStore, settlement{
			buyer:    request.BuyerID,
			seller:   creatorID,
			currency: CurrencyGems,
			amount:   totalCost,
			reference: ReferenceOf(map[string]any{
				"kind":        "share_purchase",
				"purchase_id": purchaseID,
				"content_id":  content.ContentID,
				"shares":      shares,
				"buyer_id":    request.BuyerID.String(),
				"seller_id":   creatorID.String(),
			}),
			idempotencyKey: request.IdempotencyKey,
		})
		if err != nil {
			return err
		}
		updatedContent, err := transactionStore.AddSharesSold(ctx, content.ContentID, shares)
		if err != nil {
			return err
		}
		if err := transactionStore.InsertSharePurchase(ctx, SharePurchase{
			PurchaseID:     purchaseID,
			ContentID:      content.ContentID,
			BuyerID:        request.BuyerID.String(),
			Shares:         shares,
			TotalCost:      totalCost,
			CreatedUnixUTC: service.nowFn(),
		}); err != nil {
			return err
		}
		result = SharePurchaseResult{
			SharesPurchased: shares,
			TotalCost:       totalCost,
			RemainingShares: updatedContent.AvailableShares(),
			Balance:         settled.buyerBalance,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationBuyShares,
		UserID:         request.BuyerID,
		Currency:       CurrencyGems,
		Amount:         result.TotalCost,
		IdempotencyKey: request.IdempotencyKey,
		Reference:      ReferenceOf(map[string]any{"content_id": request.ContentID, "shares": request.Shares.Int64()}),
		Error:          operationError,
	})
	if operationError != nil {
		return SharePurchaseResult{}, operationError
	}
	return result, nil
}

// FundingRequest asks to back a funding project with gems.
type FundingRequest struct {
	BackerID       UserID
	ProjectID      string
	Amount         PositiveAmount
	IdempotencyKey IdempotencyKey
}

// FundingResult reports the project after funding.
type FundingResult struct {
	Project FundingProject `json:"project"`
	Balance Balance        `json:"balance"`
}

// FundProject pays the project creator and raises the funded amount up to the goal.
func (service *Service) FundProject(ctx context.Context, request FundingRequest) (FundingResult, error) {
	var result FundingResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := ensureFreshKey(ctx, transactionStore, request.BackerID, request.IdempotencyKey); err != nil {
			return err
		}
		project, err := transactionStore.GetProject(ctx, request.ProjectID)
		if err != nil {
			return err
		}
		if project.Status != ProjectStatusActive {
			return fmt.Errorf("%w: project is %s", ErrProjectClosed, project.Status)
		}
		if project.DeadlineUnixUTC != 0 && project.DeadlineUnixUTC <= service.nowFn() {
			return fmt.Errorf("%w: deadline passed", ErrProjectClosed)
		}
		remaining := project.GoalAmount - project.FundedAmount
		if request.Amount.Int64() > remaining {
			return fmt.Errorf("%w: only %d gems left to fund", ErrResourceExhausted, remaining)
		}
		creatorID, err := NewUserID(project.CreatorID)
		if err != nil {
			return err
		}
		settled, err := service.settle(ctx, transactionStore, settlement{
			buyer:    request.BackerID,
			seller:   creatorID,
			currency: CurrencyGems,
			amount:   request.Amount.Int64(),
			reference: ReferenceOf(map[string]any{
				"kind":       "project_funding",
				"project_id": project.ProjectID,
				"backer_id":  request.BackerID.String(),
				"creator_id": creatorID.String(),
			}),
			idempotencyKey: request.IdempotencyKey,
		})
		if err != nil {
			return err
		}
		updatedProject, err := transactionStore.AddFunding(ctx, project.ProjectID, request.Amount.Int64())
		if err != nil {
			return err
		}
		result = FundingResult{Project: updatedProject, Balance: settled.buyerBalance}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationFundProject,
		UserID:         request.BackerID,
		Currency:       CurrencyGems,
		Amount:         request.Amount.Int64(),
		IdempotencyKey: request.IdempotencyKey,
		Reference:      ReferenceOf(map[string]any{"project_id": request.ProjectID}),
		Error:          operationError,
	})
	if operationError != nil {
		return FundingResult{}, operationError
	}
	return result, nil
}
