package economy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service contains the economy rules over a Store.
type Service struct {
	store  Store
	rules  Rules
	nowFn  func() int64
	newID  func() string
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, rules Rules, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if rules.Version == "" {
		return nil, fmt.Errorf("%w: rules table is empty", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, rules: rules, nowFn: now, newID: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Rules returns the rules table the service was built with.
func (service *Service) Rules() Rules {
	return service.rules
}

// Balance returns the user's balance, creating a zero balance on first reference.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	var balance Balance
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		lockedBalance, err := transactionStore.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		balance = lockedBalance
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// Profile returns the balance together with the user's tier and reward multiplier.
func (service *Service) Profile(ctx context.Context, userID UserID) (Profile, error) {
	balance, err := service.Balance(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	tier, err := service.tierOf(ctx, service.store, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Balance:    balance,
		Tier:       tier,
		Multiplier: service.rules.TierMultiplier(tier).StringFixed(2),
	}, nil
}

// User returns a registered user.
func (service *Service) User(ctx context.Context, userID UserID) (User, error) {
	return service.store.GetUser(ctx, userID)
}

// EnsureUser registers or refreshes the user behind a verified identity and creates their balance.
func (service *Service) EnsureUser(ctx context.Context, identity Identity) (User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return User{}, fmt.Errorf("%w: subject is required", ErrInvalidIdentity)
	}
	role := RoleUser
	if identity.Admin {
		role = RoleAdmin
	}
	var user User
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		storedUser, err := transactionStore.UpsertUser(ctx, User{
			UserID:          service.newID(),
			ProviderSubject: subject,
			Email:           strings.TrimSpace(identity.Email),
			DisplayName:     strings.TrimSpace(identity.DisplayName),
			AvatarURL:       strings.TrimSpace(identity.AvatarURL),
			Tier:            TierFree,
			Role:            role,
			CreatedUnixUTC:  service.nowFn(),
		})
		if err != nil {
			return err
		}
		userID, err := NewUserID(storedUser.UserID)
		if err != nil {
			return err
		}
		if _, err := transactionStore.LockBalance(ctx, userID); err != nil {
			return err
		}
		user = storedUser
		return nil
	})
	loggedUserID, _ := NewUserID(user.UserID)
	service.logOperation(ctx, OperationLog{
		Operation: operationEnsureUser,
		UserID:    loggedUserID,
		Error:     operationError,
	})
	if operationError != nil {
		return User{}, operationError
	}
	return user, nil
}

// Entry returns one ledger entry.
func (service *Service) Entry(ctx context.Context, entryID string) (Entry, error) {
	return service.store.GetEntry(ctx, strings.TrimSpace(entryID))
}

// ListEntries pages a user's ledger newest first.
func (service *Service) ListEntries(ctx context.Context, userID UserID, limit int, offset int) ([]Entry, error) {
	return service.store.ListEntries(ctx, userID, NormalizeEntriesLimit(limit), normalizeOffset(offset))
}

// Reconciliation compares the stored balance with a replay of the ledger.
type Reconciliation struct {
	Balance    Balance `json:"balance"`
	Replayed   Deltas  `json:"replayed"`
	EntryCount int     `json:"entry_count"`
	Consistent bool    `json:"consistent"`
}

// Reconcile replays every entry of a user from zero and compares with the balance.
func (service *Service) Reconcile(ctx context.Context, userID UserID) (Reconciliation, error) {
	var reconciliation Reconciliation
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		balance, err := transactionStore.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		entries, err := transactionStore.ListAllEntries(ctx, userID)
		if err != nil {
			return err
		}
		replayed := ReplayEntries(entries)
		reconciliation = Reconciliation{
			Balance:    balance,
			Replayed:   replayed,
			EntryCount: len(entries),
			Consistent: replayed == balance.Deltas(),
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return reconciliation, nil
}

// ConversionRequest asks to move value between two currencies of one balance.
type ConversionRequest struct {
	UserID         UserID
	From           Currency
	To             Currency
	Amount         PositiveAmount
	IdempotencyKey IdempotencyKey
}

// ConversionResult reports what a conversion consumed and produced.
type ConversionResult struct {
	Converted      int64   `json:"converted"`
	Cost           int64   `json:"cost"`
	RemainingDaily *int64  `json:"remaining_daily"`
	Balance        Balance `json:"balance"`
}

// Convert applies the enabled conversion rule, charging exactly units × rate of the source currency.
func (service *Service) Convert(ctx context.Context, request ConversionRequest) (ConversionResult, error) {
	var result ConversionResult
	rule, err := service.rules.ConversionRule(request.From, request.To)
	var units, cost int64
	if err == nil {
		units, cost, err = rule.Quote(request.Amount)
	}
	if err != nil {
		service.logOperation(ctx, OperationLog{
			Operation:      operationConvert,
			UserID:         request.UserID,
			Currency:       request.From,
			Amount:         request.Amount.Int64(),
			IdempotencyKey: request.IdempotencyKey,
			Error:          err,
		})
		return ConversionResult{}, err
	}
	reference := ReferenceOf(map[string]any{
		"rule_version": service.rules.Version,
		"from":         rule.From,
		"to":           rule.To,
		"rate":         rule.Rate,
		"requested":    request.Amount.Int64(),
	})
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := ensureFreshKey(ctx, transactionStore, request.UserID, request.IdempotencyKey); err != nil {
			return err
		}
		balance, err := transactionStore.LockBalance(ctx, request.UserID)
		if err != nil {
			return err
		}
		if balance.Amount(rule.From) < request.Amount.Int64() {
			return fmt.Errorf("%w: have %d %s, requested %d", ErrInsufficientFunds, balance.Amount(rule.From), rule.From, request.Amount.Int64())
		}
		var remainingDaily *int64
		if rule.DailyLimit > 0 {
			convertedToday, err := transactionStore.SumDeltas(ctx, request.UserID, EntryConvert, startOfDayUnixUTC(service.nowFn()))
			if err != nil {
				return err
			}
			used := convertedToday.Get(rule.To)
			if used+units > rule.DailyLimit {
				return fmt.Errorf("%w: %d of %d %s already converted today", ErrDailyLimitExceeded, used, rule.DailyLimit, rule.To)
			}
			remaining := rule.DailyLimit - used - units
			remainingDaily = &remaining
		}
		deltas := DeltaOf(rule.From, -cost).Add(DeltaOf(rule.To, units))
		_, updatedBalance, err := service.record(ctx, transactionStore, request.UserID, EntryConvert, deltas, reference, request.IdempotencyKey)
		if err != nil {
			return err
		}
		result = ConversionResult{
			Converted:      units,
			Cost:           cost,
			RemainingDaily: remainingDaily,
			Balance:        updatedBalance,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationConvert,
		UserID:         request.UserID,
		Currency:       rule.From,
		Amount:         cost,
		IdempotencyKey: request.IdempotencyKey,
		Reference:      reference,
		Error:          operationError,
	})
	if operationError != nil {
		return ConversionResult{}, operationError
	}
	return result, nil
}

// record inserts a ledger entry and applies its deltas to the balance in the caller's transaction.
func (service *Service) record(ctx context.Context, transactionStore Store, userID UserID, entryType EntryType, deltas Deltas, reference Reference, idempotencyKey IdempotencyKey) (Entry, Balance, error) {
	if deltas.IsZero() {
		return Entry{}, Balance{}, fmt.Errorf("%w: entry changes nothing", ErrInvalidAmount)
	}
	entry := Entry{
		EntryID:        service.newID(),
		UserID:         userID.String(),
		Type:           entryType,
		Deltas:         deltas,
		Reference:      reference.String(),
		IdempotencyKey: idempotencyKey.String(),
		CreatedUnixUTC: service.nowFn(),
	}
	if err := transactionStore.InsertEntry(ctx, entry); err != nil {
		return Entry{}, Balance{}, err
	}
	balance, err := transactionStore.ApplyDeltas(ctx, userID, deltas)
	if err != nil {
		return Entry{}, Balance{}, err
	}
	return entry, balance, nil
}

func (service *Service) tierOf(ctx context.Context, store Store, userID UserID) (Tier, error) {
	user, err := store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return TierFree, nil
	}
	if err != nil {
		return "", err
	}
	if user.Tier == "" {
		return TierFree, nil
	}
	return user.Tier, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func ensureFreshKey(ctx context.Context, transactionStore Store, userID UserID, idempotencyKey IdempotencyKey) error {
	if idempotencyKey.IsZero() {
		return nil
	}
	_, err := transactionStore.FindEntryByIdempotencyKey(ctx, userID, idempotencyKey)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, idempotencyKey.String())
	}
	if errors.Is(err, ErrEntryNotFound) {
		return nil
	}
	return err
}

func deriveIdempotencyKey(parts ...string) IdempotencyKey {
	return IdempotencyKey{value: strings.Join(parts, idempotencyKeyDelimiter)}
}

func startOfDayUnixUTC(nowUnixUTC int64) int64 {
	return nowUnixUTC - nowUnixUTC%secondsPerDay
}

// NormalizeEntriesLimit clamps a page size to the supported range.
func NormalizeEntriesLimit(limit int) int {
	if limit <= 0 {
		return defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		return maxEntriesLimit
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
