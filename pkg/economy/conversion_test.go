package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const (
	conversionTestNow int64 = 1_700_000_000
	userAlice               = "user-alice"
	userBob                 = "user-bob"
	errorMismatch           = "expected error %v, got %v"
)

func fund(test *testing.T, service *Service, userID string, deltas Deltas) {
	test.Helper()
	_, err := service.AdminRefill(context.Background(), RefillRequest{
		AdminID: mustUserID(test, "admin"),
		UserID:  mustUserID(test, userID),
		Deltas:  deltas,
		Reason:  "test funding",
	})
	if err != nil {
		test.Fatalf("fund %s: %v", userID, err)
	}
}

func TestConvertChargesExactMultipleOfRate(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 2000})

	result, err := service.Convert(context.Background(), ConversionRequest{
		UserID: mustUserID(test, userAlice),
		From:   CurrencyPoints,
		To:     CurrencyKeys,
		Amount: mustAmount(test, 1999),
	})
	if err != nil {
		test.Fatalf("convert: %v", err)
	}
	if result.Converted != 3 || result.Cost != 1500 {
		test.Fatalf("expected 3 keys for 1500 points, got %+v", result)
	}
	if result.Balance.Points != 500 || result.Balance.Keys != 3 {
		test.Fatalf("unexpected balance %+v", result.Balance)
	}
	if result.RemainingDaily == nil || *result.RemainingDaily != 0 {
		test.Fatalf("expected remaining daily 0, got %v", result.RemainingDaily)
	}
	state := store.snapshot()
	convertEntries := 0
	for _, entry := range state.entries {
		if entry.Type == EntryConvert {
			convertEntries++
			if entry.Deltas != (Deltas{Points: -1500, Keys: 3}) {
				test.Fatalf("unexpected convert deltas %+v", entry.Deltas)
			}
		}
	}
	if convertEntries != 1 {
		test.Fatalf("expected one combined convert entry, got %d", convertEntries)
	}
	assertReconciled(test, store, userAlice)
}

func TestConvertRejections(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		funding Deltas
		from    Currency
		to      Currency
		amount  int64
		wantErr error
	}{
		{name: "below one exchange unit", funding: Deltas{Points: 1000}, from: CurrencyPoints, to: CurrencyKeys, amount: 499, wantErr: ErrBelowMinimum},
		{name: "unsupported pair", funding: Deltas{Gems: 1000}, from: CurrencyGems, to: CurrencyGold, amount: 500, wantErr: ErrUnsupportedPair},
		{name: "reverse pair", funding: Deltas{Keys: 10}, from: CurrencyKeys, to: CurrencyPoints, amount: 1, wantErr: ErrUnsupportedPair},
		{name: "insufficient points", funding: Deltas{Points: 400}, from: CurrencyPoints, to: CurrencyKeys, amount: 500, wantErr: ErrInsufficientFunds},
		{name: "above daily limit", funding: Deltas{Points: 5000}, from: CurrencyPoints, to: CurrencyKeys, amount: 2000, wantErr: ErrDailyLimitExceeded},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newMemoryStore(test)
			service := mustNewService(test, store, conversionTestNow)
			fund(test, service, userAlice, testCase.funding)
			before := store.snapshot()

			_, err := service.Convert(context.Background(), ConversionRequest{
				UserID: mustUserID(test, userAlice),
				From:   testCase.from,
				To:     testCase.to,
				Amount: mustAmount(test, testCase.amount),
			})
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatch, testCase.wantErr, err)
			}
			after := store.snapshot()
			if after.balances[userAlice] != before.balances[userAlice] {
				test.Fatalf("balance changed on failure: %+v -> %+v", before.balances[userAlice], after.balances[userAlice])
			}
			if len(after.entries) != len(before.entries) {
				test.Fatalf("ledger grew on failure")
			}
		})
	}
}

func TestConvertDailyLimitAccumulatesAcrossCalls(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 5000})
	user := mustUserID(test, userAlice)

	first, err := service.Convert(context.Background(), ConversionRequest{UserID: user, From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 1000)})
	if err != nil {
		test.Fatalf("first convert: %v", err)
	}
	if *first.RemainingDaily != 1 {
		test.Fatalf("expected 1 key remaining today, got %d", *first.RemainingDaily)
	}
	_, err = service.Convert(context.Background(), ConversionRequest{UserID: user, From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 1000)})
	if !errors.Is(err, ErrDailyLimitExceeded) {
		test.Fatalf(errorMismatch, ErrDailyLimitExceeded, err)
	}
	last, err := service.Convert(context.Background(), ConversionRequest{UserID: user, From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 500)})
	if err != nil {
		test.Fatalf("last convert: %v", err)
	}
	if *last.RemainingDaily != 0 || last.Balance.Keys != 3 || last.Balance.Points != 3500 {
		test.Fatalf("unexpected final conversion %+v", last)
	}
	assertReconciled(test, store, userAlice)
}

func TestConvertIdempotencyKeyRejectsRepeat(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 1000})
	request := ConversionRequest{
		UserID:         mustUserID(test, userAlice),
		From:           CurrencyPoints,
		To:             CurrencyKeys,
		Amount:         mustAmount(test, 500),
		IdempotencyKey: mustIdempotencyKey(test, "convert-1"),
	}
	if _, err := service.Convert(context.Background(), request); err != nil {
		test.Fatalf("first convert: %v", err)
	}
	_, err := service.Convert(context.Background(), request)
	if !errors.Is(err, ErrDuplicateIdempotencyKey) {
		test.Fatalf(errorMismatch, ErrDuplicateIdempotencyKey, err)
	}
	balance := store.snapshot().balances[userAlice]
	if balance.Points != 500 || balance.Keys != 1 {
		test.Fatalf("repeat mutated balance: %+v", balance)
	}
}

func TestConcurrentConversionsNeverOverdraw(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 600})
	user := mustUserID(test, userAlice)
	amount := mustAmount(test, 500)

	var waitGroup sync.WaitGroup
	results := make(chan error, 2)
	for attempt := 0; attempt < 2; attempt++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.Convert(context.Background(), ConversionRequest{UserID: user, From: CurrencyPoints, To: CurrencyKeys, Amount: amount})
			results <- err
		}()
	}
	waitGroup.Wait()
	close(results)

	successes, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			test.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || insufficient != 1 {
		test.Fatalf("expected one success and one insufficient funds, got %d and %d", successes, insufficient)
	}
	balance := store.snapshot().balances[userAlice]
	if balance.Points != 100 || balance.Keys != 1 {
		test.Fatalf("unexpected balance %+v", balance)
	}
	assertReconciled(test, store, userAlice)
}

func TestConvertStorageFailureRollsBack(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 1000})
	storageErr := errors.New("disk full")
	store.failOn("ApplyDeltas", storageErr)

	_, err := service.Convert(context.Background(), ConversionRequest{
		UserID: mustUserID(test, userAlice),
		From:   CurrencyPoints,
		To:     CurrencyKeys,
		Amount: mustAmount(test, 500),
	})
	if !errors.Is(err, storageErr) {
		test.Fatalf(errorMismatch, storageErr, err)
	}
	state := store.snapshot()
	for _, entry := range state.entries {
		if entry.Type == EntryConvert {
			test.Fatalf("convert entry persisted despite failure")
		}
	}
	if state.balances[userAlice].Points != 1000 {
		test.Fatalf("balance changed despite failure: %+v", state.balances[userAlice])
	}
}

func TestReconcileReportsConsistentLedger(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow)
	fund(test, service, userAlice, Deltas{Points: 1200, Gems: 7})
	user := mustUserID(test, userAlice)
	if _, err := service.Convert(context.Background(), ConversionRequest{UserID: user, From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 1200)}); err != nil {
		test.Fatalf("convert: %v", err)
	}
	reconciliation, err := service.Reconcile(context.Background(), user)
	if err != nil {
		test.Fatalf("reconcile: %v", err)
	}
	if !reconciliation.Consistent || reconciliation.EntryCount != 2 {
		test.Fatalf("unexpected reconciliation %+v", reconciliation)
	}
	if reconciliation.Replayed != (Deltas{Points: 200, Keys: 2, Gems: 7}) {
		test.Fatalf("unexpected replay %+v", reconciliation.Replayed)
	}

	store.seedBalance(Balance{UserID: userAlice, Points: 999})
	drifted, err := service.Reconcile(context.Background(), user)
	if err != nil {
		test.Fatalf("reconcile drifted: %v", err)
	}
	if drifted.Consistent {
		test.Fatalf("expected drift to be detected")
	}
}
