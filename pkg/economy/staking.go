package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// StakeRequest asks to lock gems in a growth channel.
type StakeRequest struct {
	UserID         UserID
	Channel        string
	Amount         PositiveAmount
	IdempotencyKey IdempotencyKey
}

// Stake debits gems and opens a stake that pays out when the channel's lock period ends.
func (service *Service) Stake(ctx context.Context, request StakeRequest) (Stake, error) {
	var stake Stake
	channel, err := service.rules.StakeChannel(request.Channel)
	if err != nil {
		service.logOperation(ctx, OperationLog{
			Operation:      operationStake,
			UserID:         request.UserID,
			Currency:       CurrencyGems,
			Amount:         request.Amount.Int64(),
			IdempotencyKey: request.IdempotencyKey,
			Error:          err,
		})
		return Stake{}, err
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
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
		nowUnixUTC := service.nowFn()
		candidate := Stake{
			StakeID:        service.newID(),
			UserID:         request.UserID.String(),
			Channel:        channel.Name,
			Amount:         request.Amount.Int64(),
			Multiplier:     channel.Multiplier.String(),
			Status:         StakeStatusActive,
			StartedUnixUTC: nowUnixUTC,
			ExpiresUnixUTC: nowUnixUTC + int64(channel.LockDays)*secondsPerDay,
		}
		reference := ReferenceOf(map[string]any{
			"kind":     "stake",
			"stake_id": candidate.StakeID,
			"channel":  channel.Name,
		})
		if _, _, err := service.record(ctx, transactionStore, request.UserID, EntrySpend, DeltaOf(CurrencyGems, -candidate.Amount), reference, request.IdempotencyKey); err != nil {
			return err
		}
		if err := transactionStore.InsertStake(ctx, candidate); err != nil {
			return err
		}
		stake = candidate
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationStake,
		UserID:         request.UserID,
		Currency:       CurrencyGems,
		Amount:         request.Amount.Int64(),
		IdempotencyKey: request.IdempotencyKey,
		Reference:      ReferenceOf(map[string]any{"channel": channel.Name}),
		Error:          operationError,
	})
	if operationError != nil {
		return Stake{}, operationError
	}
	return stake, nil
}

// DistributionSummary reports one staking payout run.
type DistributionSummary struct {
	Processed int   `json:"processed"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	Minted    int64 `json:"minted"`
}

// DistributeStakingRewards pays every matured stake, each in its own transaction.
// Payouts are minted as earn entries; a stake completes at most once.
func (service *Service) DistributeStakingRewards(ctx context.Context, limit int) (DistributionSummary, error) {
	var summary DistributionSummary
	nowUnixUTC := service.nowFn()
	stakes, err := service.store.ListMaturedStakes(ctx, nowUnixUTC, limit)
	if err != nil {
		return summary, err
	}
	var firstErr error
	for _, stake := range stakes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		payout, err := stakePayout(stake)
		if err == nil {
			err = service.payStake(ctx, stake, payout, nowUnixUTC)
		}
		switch {
		case err == nil:
			summary.Processed++
			summary.Minted += payout
		case errors.Is(err, ErrStakeClosed), errors.Is(err, ErrDuplicateIdempotencyKey):
			summary.Skipped++
		default:
			summary.Failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return summary, firstErr
}

func (service *Service) payStake(ctx context.Context, stake Stake, payout int64, nowUnixUTC int64) error {
	userID, err := NewUserID(stake.UserID)
	if err != nil {
		return err
	}
	idempotencyKey := deriveIdempotencyKey(idempotencyPrefixStake, stake.StakeID)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.CompleteStake(ctx, stake.StakeID, payout, nowUnixUTC); err != nil {
			return err
		}
		if _, err := transactionStore.LockBalance(ctx, userID); err != nil {
			return err
		}
		reference := ReferenceOf(map[string]any{
			"kind":       "stake_payout",
			"stake_id":   stake.StakeID,
			"channel":    stake.Channel,
			"principal":  stake.Amount,
			"multiplier": stake.Multiplier,
		})
		_, _, err := service.record(ctx, transactionStore, userID, EntryEarn, DeltaOf(CurrencyGems, payout), reference, idempotencyKey)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationStakePayout,
		UserID:         userID,
		Currency:       CurrencyGems,
		Amount:         payout,
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	return operationError
}

func stakePayout(stake Stake) (int64, error) {
	multiplier, err := decimal.NewFromString(stake.Multiplier)
	if err != nil {
		return 0, fmt.Errorf("%w: stake %s multiplier %q", ErrInvalidAmount, stake.StakeID, stake.Multiplier)
	}
	payout := decimal.NewFromInt(stake.Amount).Mul(multiplier).Floor().IntPart()
	if payout <= 0 {
		return 0, fmt.Errorf("%w: stake %s pays nothing", ErrInvalidAmount, stake.StakeID)
	}
	return payout, nil
}
