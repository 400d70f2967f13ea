package economy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

const (
	lifecycleNow int64 = 1_700_000_000
	testDropID         = "drop-1"
)

func seedRewardDrop(store *memoryStore, maxParticipants int64, deadline int64) {
	store.seedDrop(Drop{
		DropID:          testDropID,
		CreatorID:       creatorCarol,
		Title:           "share the trailer",
		Status:          DropStatusActive,
		RewardCurrency:  CurrencyPoints,
		RewardAmount:    25,
		MaxParticipants: maxParticipants,
		DeadlineUnixUTC: deadline,
	})
}

func TestApplyToDropRejectsSecondApplication(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	seedRewardDrop(store, 0, 0)
	request := DropApplicationRequest{UserID: mustUserID(test, userAlice), DropID: testDropID, SubmissionURL: " https://example.com/post "}

	application, err := service.ApplyToDrop(context.Background(), request)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Status != ApplicationStatusPending || application.SubmissionURL != "https://example.com/post" {
		test.Fatalf("unexpected application %+v", application)
	}
	_, err = service.ApplyToDrop(context.Background(), request)
	if !errors.Is(err, ErrAlreadyApplied) {
		test.Fatalf(errorMismatch, ErrAlreadyApplied, err)
	}
	if count := len(store.snapshot().applications); count != 1 {
		test.Fatalf("expected exactly one application, got %d", count)
	}
}

func TestApplyToDropRejections(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		seed     func(store *memoryStore)
		dropID   string
		wantErr  error
		existing int
	}{
		{
			name:    "unknown drop",
			seed:    func(store *memoryStore) {},
			dropID:  "missing",
			wantErr: ErrDropNotFound,
		},
		{
			name:    "deadline passed",
			seed:    func(store *memoryStore) { seedRewardDrop(store, 0, lifecycleNow-1) },
			dropID:  testDropID,
			wantErr: ErrDropClosed,
		},
		{
			name: "drop closed",
			seed: func(store *memoryStore) {
				store.seedDrop(Drop{DropID: testDropID, CreatorID: creatorCarol, Status: DropStatusClosed, RewardCurrency: CurrencyPoints, RewardAmount: 1})
			},
			dropID:  testDropID,
			wantErr: ErrDropClosed,
		},
		{
			name: "participants full",
			seed: func(store *memoryStore) {
				seedRewardDrop(store, 1, 0)
				store.shared.state.applications["app-existing"] = DropApplication{ApplicationID: "app-existing", DropID: testDropID, UserID: userBob, Status: ApplicationStatusPending}
			},
			dropID:   testDropID,
			wantErr:  ErrResourceExhausted,
			existing: 1,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newMemoryStore(test)
			service := mustNewService(test, store, lifecycleNow)
			testCase.seed(store)

			_, err := service.ApplyToDrop(context.Background(), DropApplicationRequest{UserID: mustUserID(test, userAlice), DropID: testCase.dropID})
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatch, testCase.wantErr, err)
			}
			if count := len(store.snapshot().applications); count != testCase.existing {
				test.Fatalf("expected %d applications, got %d", testCase.existing, count)
			}
		})
	}
}

func TestReviewDropApplicationAppliesTierMultiplier(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	seedRewardDrop(store, 0, 0)
	store.seedUser(User{UserID: userAlice, ProviderSubject: "google-alice", Tier: TierPremium, Role: RoleUser})
	application, err := service.ApplyToDrop(context.Background(), DropApplicationRequest{UserID: mustUserID(test, userAlice), DropID: testDropID})
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	review := ReviewRequest{ApplicationID: application.ApplicationID, ReviewerID: mustUserID(test, "admin"), Approve: true}

	result, err := service.ReviewDropApplication(context.Background(), review)
	if err != nil {
		test.Fatalf("review: %v", err)
	}
	if result.Reward != 37 || result.Currency != CurrencyPoints {
		test.Fatalf("expected floor(25 x 1.5) = 37 points, got %+v", result)
	}
	if result.Application.Status != ApplicationStatusApproved || result.Application.ReviewedUnixUTC != lifecycleNow {
		test.Fatalf("unexpected application %+v", result.Application)
	}
	_, err = service.ReviewDropApplication(context.Background(), review)
	if !errors.Is(err, ErrApplicationClosed) {
		test.Fatalf(errorMismatch, ErrApplicationClosed, err)
	}
	if points := store.snapshot().balances[userAlice].Points; points != 37 {
		test.Fatalf("expected reward once, got %d points", points)
	}
	assertReconciled(test, store, userAlice)
}

func TestReviewDropApplicationRejectionMintsNothing(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	seedRewardDrop(store, 0, 0)
	application, err := service.ApplyToDrop(context.Background(), DropApplicationRequest{UserID: mustUserID(test, userAlice), DropID: testDropID})
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	result, err := service.ReviewDropApplication(context.Background(), ReviewRequest{ApplicationID: application.ApplicationID, ReviewerID: mustUserID(test, "admin")})
	if err != nil {
		test.Fatalf("review: %v", err)
	}
	if result.Reward != 0 || result.Application.Status != ApplicationStatusRejected {
		test.Fatalf("unexpected review result %+v", result)
	}
	if len(store.snapshot().entries) != 0 {
		test.Fatalf("rejection wrote ledger entries")
	}
}

func TestStakeAndDistributePaysOnce(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	fund(test, service, userAlice, Deltas{Gems: 100})

	stake, err := service.Stake(context.Background(), StakeRequest{UserID: mustUserID(test, userAlice), Channel: "mediumrisk", Amount: mustAmount(test, 75)})
	if err != nil {
		test.Fatalf("stake: %v", err)
	}
	if stake.Channel != "MediumRisk" || stake.ExpiresUnixUTC != lifecycleNow+14*secondsPerDay {
		test.Fatalf("unexpected stake %+v", stake)
	}
	if gems := store.snapshot().balances[userAlice].Gems; gems != 25 {
		test.Fatalf("expected 25 gems after staking, got %d", gems)
	}

	early, err := service.DistributeStakingRewards(context.Background(), 10)
	if err != nil || early.Processed != 0 {
		test.Fatalf("expected nothing to mature yet, got %+v %v", early, err)
	}

	later := mustNewService(test, store, stake.ExpiresUnixUTC)
	summary, err := later.DistributeStakingRewards(context.Background(), 10)
	if err != nil {
		test.Fatalf("distribute: %v", err)
	}
	if summary.Processed != 1 || summary.Minted != 112 {
		test.Fatalf("expected floor(75 x 1.5) = 112 minted once, got %+v", summary)
	}
	again, err := later.DistributeStakingRewards(context.Background(), 10)
	if err != nil || again.Processed != 0 {
		test.Fatalf("expected no second payout, got %+v %v", again, err)
	}
	state := store.snapshot()
	if state.balances[userAlice].Gems != 137 {
		test.Fatalf("expected 137 gems, got %d", state.balances[userAlice].Gems)
	}
	if state.stakes[stake.StakeID].Status != StakeStatusCompleted || state.stakes[stake.StakeID].Payout != 112 {
		test.Fatalf("unexpected stake after payout %+v", state.stakes[stake.StakeID])
	}
	assertReconciled(test, store, userAlice)
}

func TestStakeRejectsUnknownChannelAndOverdraft(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	fund(test, service, userAlice, Deltas{Gems: 10})
	user := mustUserID(test, userAlice)

	_, err := service.Stake(context.Background(), StakeRequest{UserID: user, Channel: "moon", Amount: mustAmount(test, 5)})
	if !errors.Is(err, ErrUnknownStakeChannel) {
		test.Fatalf(errorMismatch, ErrUnknownStakeChannel, err)
	}
	_, err = service.Stake(context.Background(), StakeRequest{UserID: user, Channel: "LowRisk", Amount: mustAmount(test, 11)})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf(errorMismatch, ErrInsufficientFunds, err)
	}
	if len(store.snapshot().stakes) != 0 {
		test.Fatalf("stake recorded on failure")
	}
}

func TestWithdrawEnforcesMinimumAndDebits(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	fund(test, service, userAlice, Deltas{Gems: 80})
	user := mustUserID(test, userAlice)

	_, err := service.Withdraw(context.Background(), WithdrawalRequest{UserID: user, Amount: mustAmount(test, 49)})
	if !errors.Is(err, ErrBelowMinimumWithdrawal) {
		test.Fatalf(errorMismatch, ErrBelowMinimumWithdrawal, err)
	}
	_, err = service.Withdraw(context.Background(), WithdrawalRequest{UserID: user, Amount: mustAmount(test, 81)})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf(errorMismatch, ErrInsufficientFunds, err)
	}
	payment, err := service.Withdraw(context.Background(), WithdrawalRequest{UserID: user, Amount: mustAmount(test, 50)})
	if err != nil {
		test.Fatalf("withdraw: %v", err)
	}
	if payment.Kind != PaymentKindWithdrawal || payment.Status != PaymentStatusPending || payment.Gems != 50 {
		test.Fatalf("unexpected payment %+v", payment)
	}
	if gems := store.snapshot().balances[userAlice].Gems; gems != 30 {
		test.Fatalf("expected 30 gems left, got %d", gems)
	}
	assertReconciled(test, store, userAlice)
}

func TestCompleteDepositCreditsOnce(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	user := mustUserID(test, userAlice)
	if _, err := service.RecordCheckout(context.Background(), CheckoutRecord{UserID: user, Gems: mustAmount(test, 120), SessionID: "cs_test_1"}); err != nil {
		test.Fatalf("record checkout: %v", err)
	}

	payment, err := service.CompleteDeposit(context.Background(), DepositCompletion{SessionID: "cs_test_1"})
	if err != nil {
		test.Fatalf("complete deposit: %v", err)
	}
	if payment.Status != PaymentStatusCompleted || payment.Gems != 120 {
		test.Fatalf("unexpected payment %+v", payment)
	}
	_, err = service.CompleteDeposit(context.Background(), DepositCompletion{SessionID: "cs_test_1"})
	if !errors.Is(err, ErrPaymentClosed) {
		test.Fatalf(errorMismatch, ErrPaymentClosed, err)
	}
	if gems := store.snapshot().balances[userAlice].Gems; gems != 120 {
		test.Fatalf("expected a single credit of 120 gems, got %d", gems)
	}
	assertReconciled(test, store, userAlice)
}

func TestCompleteDepositFromSessionMetadata(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)

	_, err := service.CompleteDeposit(context.Background(), DepositCompletion{SessionID: "cs_unknown"})
	if !errors.Is(err, ErrPaymentNotFound) {
		test.Fatalf(errorMismatch, ErrPaymentNotFound, err)
	}
	payment, err := service.CompleteDeposit(context.Background(), DepositCompletion{SessionID: "cs_unknown", UserID: mustUserID(test, userBob), Gems: 40})
	if err != nil {
		test.Fatalf("complete deposit: %v", err)
	}
	if payment.UserID != userBob || store.snapshot().balances[userBob].Gems != 40 {
		test.Fatalf("unexpected deposit %+v", payment)
	}
}

func TestAdminRefillAcceptsCreditsOnly(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	request := RefillRequest{AdminID: mustUserID(test, "admin"), UserID: mustUserID(test, userAlice), Deltas: Deltas{Points: 10, Gems: -1}}

	_, err := service.AdminRefill(context.Background(), request)
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatch, ErrInvalidAmount, err)
	}
	request.Deltas = Deltas{}
	_, err = service.AdminRefill(context.Background(), request)
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatch, ErrInvalidAmount, err)
	}
	request.Deltas = Deltas{Points: 10, Gold: 2}
	entry, err := service.AdminRefill(context.Background(), request)
	if err != nil {
		test.Fatalf("refill: %v", err)
	}
	if entry.Type != EntryAdminRefill || entry.Deltas != request.Deltas {
		test.Fatalf("unexpected entry %+v", entry)
	}
}

func TestReverseEntryOnlyOnce(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	refill, err := service.AdminRefill(context.Background(), RefillRequest{AdminID: mustUserID(test, "admin"), UserID: mustUserID(test, userAlice), Deltas: Deltas{Keys: 4}})
	if err != nil {
		test.Fatalf("refill: %v", err)
	}
	request := ReversalRequest{AdminID: mustUserID(test, "admin"), EntryID: refill.EntryID, Reason: "granted by mistake"}

	reversal, err := service.ReverseEntry(context.Background(), request)
	if err != nil {
		test.Fatalf("reverse: %v", err)
	}
	if reversal.Type != EntryReversal || reversal.Deltas != (Deltas{Keys: -4}) {
		test.Fatalf("unexpected reversal %+v", reversal)
	}
	_, err = service.ReverseEntry(context.Background(), request)
	if !errors.Is(err, ErrDuplicateIdempotencyKey) {
		test.Fatalf(errorMismatch, ErrDuplicateIdempotencyKey, err)
	}
	_, err = service.ReverseEntry(context.Background(), ReversalRequest{AdminID: mustUserID(test, "admin"), EntryID: reversal.EntryID})
	if !errors.Is(err, ErrEntryNotReversible) {
		test.Fatalf(errorMismatch, ErrEntryNotReversible, err)
	}
	if keys := store.snapshot().balances[userAlice].Keys; keys != 0 {
		test.Fatalf("expected keys back to zero, got %d", keys)
	}
	assertReconciled(test, store, userAlice)
}

func TestReverseEntryRefusesOverdraft(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	refill, err := service.AdminRefill(context.Background(), RefillRequest{AdminID: mustUserID(test, "admin"), UserID: mustUserID(test, userAlice), Deltas: Deltas{Points: 600}})
	if err != nil {
		test.Fatalf("refill: %v", err)
	}
	if _, err := service.Convert(context.Background(), ConversionRequest{UserID: mustUserID(test, userAlice), From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 500)}); err != nil {
		test.Fatalf("convert: %v", err)
	}
	_, err = service.ReverseEntry(context.Background(), ReversalRequest{AdminID: mustUserID(test, "admin"), EntryID: refill.EntryID})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf(errorMismatch, ErrInsufficientFunds, err)
	}
	assertReconciled(test, store, userAlice)
}

func TestEnsureUserCreatesBalanceAndKeepsID(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	identity := Identity{Subject: "google-123", Email: "a@example.com", DisplayName: "Alice"}

	first, err := service.EnsureUser(context.Background(), identity)
	if err != nil {
		test.Fatalf("ensure user: %v", err)
	}
	identity.DisplayName = "Alice B."
	second, err := service.EnsureUser(context.Background(), identity)
	if err != nil {
		test.Fatalf("ensure user again: %v", err)
	}
	if first.UserID != second.UserID || second.DisplayName != "Alice B." || second.Tier != TierFree {
		test.Fatalf("unexpected users %+v %+v", first, second)
	}
	if _, exists := store.snapshot().balances[first.UserID]; !exists {
		test.Fatalf("expected balance row for new user")
	}
	_, err = service.EnsureUser(context.Background(), Identity{Subject: "  "})
	if !errors.Is(err, ErrInvalidIdentity) {
		test.Fatalf(errorMismatch, ErrInvalidIdentity, err)
	}
}

func TestReverseEntryIgnoresLookalikeClientKey(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	refill, err := service.AdminRefill(context.Background(), RefillRequest{AdminID: mustUserID(test, "admin"), UserID: mustUserID(test, userAlice), Deltas: Deltas{Keys: 3}})
	if err != nil {
		test.Fatalf("refill: %v", err)
	}
	fund(test, service, userAlice, Deltas{Points: 500})
	derived := idempotencyPrefixReverse + idempotencyKeyDelimiter + refill.EntryID
	if _, err := OptionalIdempotencyKey(derived); !errors.Is(err, ErrInvalidIdempotencyKey) {
		test.Fatalf(errorMismatch, ErrInvalidIdempotencyKey, err)
	}
	if _, err := service.Convert(context.Background(), ConversionRequest{
		UserID:         mustUserID(test, userAlice),
		From:           CurrencyPoints,
		To:             CurrencyKeys,
		Amount:         mustAmount(test, 500),
		IdempotencyKey: mustIdempotencyKey(test, "reversal-"+refill.EntryID),
	}); err != nil {
		test.Fatalf("convert: %v", err)
	}

	reversal, err := service.ReverseEntry(context.Background(), ReversalRequest{AdminID: mustUserID(test, "admin"), EntryID: refill.EntryID})
	if err != nil {
		test.Fatalf("reverse: %v", err)
	}
	if reversal.IdempotencyKey != derived {
		test.Fatalf("expected key %q, got %q", derived, reversal.IdempotencyKey)
	}
	assertReconciled(test, store, userAlice)
}

func TestReverseEntryRejectsLinkedEntries(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	seedShareContent(store, 100, 0, 3, ContentStatusActive)
	fund(test, service, userAlice, Deltas{Gems: 200})
	user := mustUserID(test, userAlice)

	if _, err := service.BuyShares(context.Background(), SharePurchaseRequest{BuyerID: user, ContentID: testContentID, Shares: mustAmount(test, 10)}); err != nil {
		test.Fatalf("buy shares: %v", err)
	}
	if _, err := service.Stake(context.Background(), StakeRequest{UserID: user, Channel: "LowRisk", Amount: mustAmount(test, 40)}); err != nil {
		test.Fatalf("stake: %v", err)
	}
	if _, err := service.Withdraw(context.Background(), WithdrawalRequest{UserID: user, Amount: mustAmount(test, 50)}); err != nil {
		test.Fatalf("withdraw: %v", err)
	}

	before := store.snapshot()
	rejected := 0
	for _, entry := range before.entries {
		if entry.Type != EntryTransfer && entry.Type != EntrySpend {
			continue
		}
		rejected++
		_, err := service.ReverseEntry(context.Background(), ReversalRequest{AdminID: mustUserID(test, "admin"), EntryID: entry.EntryID})
		if !errors.Is(err, ErrEntryNotReversible) {
			test.Fatalf("entry %s (%s): "+errorMismatch, entry.EntryID, entry.Type, ErrEntryNotReversible, err)
		}
	}
	if rejected != 4 {
		test.Fatalf("expected two transfer legs, a stake and a withdrawal, got %d entries", rejected)
	}
	after := store.snapshot()
	if len(after.entries) != len(before.entries) || after.balances[userAlice] != before.balances[userAlice] {
		test.Fatalf("rejected reversals changed the ledger")
	}
	total := after.balances[userAlice].Gems + after.balances[creatorCarol].Gems
	if total != 200-40-50 {
		test.Fatalf("expected conserved gems, got %d", total)
	}
}

func TestApplyToDropLocksDropAndHoldsLimit(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, lifecycleNow)
	seedRewardDrop(store, 3, 0)

	applicants := make([]UserID, 0, 8)
	for index := 0; index < 8; index++ {
		applicants = append(applicants, mustUserID(test, fmt.Sprintf("applicant-%d", index)))
	}
	var waitGroup sync.WaitGroup
	results := make(chan error, len(applicants))
	for _, applicant := range applicants {
		waitGroup.Add(1)
		go func(userID UserID) {
			defer waitGroup.Done()
			_, err := service.ApplyToDrop(context.Background(), DropApplicationRequest{UserID: userID, DropID: testDropID})
			results <- err
		}(applicant)
	}
	waitGroup.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrResourceExhausted) {
			test.Fatalf(errorMismatch, ErrResourceExhausted, err)
		}
	}
	if successes != 3 || len(store.snapshot().applications) != 3 {
		test.Fatalf("expected exactly 3 applications, got %d successes and %d rows", successes, len(store.snapshot().applications))
	}

	lockFailure := errors.New("lock timeout")
	locked := newMemoryStore(test)
	seedRewardDrop(locked, 0, 0)
	locked.failOn("LockDrop", lockFailure)
	_, err := mustNewService(test, locked, lifecycleNow).ApplyToDrop(context.Background(), DropApplicationRequest{UserID: mustUserID(test, userAlice), DropID: testDropID})
	if !errors.Is(err, lockFailure) {
		test.Fatalf(errorMismatch, lockFailure, err)
	}
}
