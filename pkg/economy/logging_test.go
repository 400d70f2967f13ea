package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(ctx context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) last(test *testing.T) OperationLog {
	test.Helper()
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	if len(logger.entries) == 0 {
		test.Fatalf("no operations logged")
	}
	return logger.entries[len(logger.entries)-1]
}

func TestOperationLoggerReceivesOutcome(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	store := newMemoryStore(test)
	service := mustNewService(test, store, conversionTestNow, WithOperationLogger(logger))
	fund(test, service, userAlice, Deltas{Points: 700})

	if _, err := service.Convert(context.Background(), ConversionRequest{UserID: mustUserID(test, userAlice), From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 650)}); err != nil {
		test.Fatalf("convert: %v", err)
	}
	success := logger.last(test)
	if success.Operation != operationConvert || success.Status != operationStatusOK || success.Amount != 500 || success.Currency != CurrencyPoints {
		test.Fatalf("unexpected success log %+v", success)
	}

	_, err := service.Convert(context.Background(), ConversionRequest{UserID: mustUserID(test, userAlice), From: CurrencyPoints, To: CurrencyKeys, Amount: mustAmount(test, 10)})
	failure := logger.last(test)
	if failure.Status != operationStatusError || !errors.Is(failure.Error, ErrBelowMinimum) || !errors.Is(err, ErrBelowMinimum) {
		test.Fatalf("unexpected failure log %+v", failure)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	now := func() int64 { return conversionTestNow }
	testCases := []struct {
		name  string
		store Store
		rules Rules
		now   func() int64
	}{
		{name: "nil store", rules: DefaultRules(), now: now},
		{name: "nil clock", store: store, rules: DefaultRules()},
		{name: "empty rules", store: store, now: now},
	}
	for _, testCase := range testCases {
		if _, err := NewService(testCase.store, testCase.rules, testCase.now); !errors.Is(err, ErrInvalidServiceConfig) {
			test.Fatalf("%s: "+errorMismatch, testCase.name, ErrInvalidServiceConfig, err)
		}
	}
}

func TestWrapErrorKeepsCause(test *testing.T) {
	test.Parallel()
	if WrapError("store", "balance", "lock", nil) != nil {
		test.Fatalf("wrapping nil must return nil")
	}
	wrapped := WrapError("store", "balance", "lock", ErrInsufficientFunds)
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Code() != "lock" || operationError.Subject() != "balance" || operationError.Operation() != "store" {
		test.Fatalf("unexpected metadata %q", wrapped.Error())
	}
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		test.Fatalf("expected wrapped cause to be preserved")
	}
}
