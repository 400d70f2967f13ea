package economy

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// RefillRequest credits a user on an admin's behalf.
type RefillRequest struct {
	AdminID        UserID
	UserID         UserID
	Deltas         Deltas
	Reason         string
	IdempotencyKey IdempotencyKey
}

// AdminRefill appends an admin_refill entry; only credits are accepted.
func (service *Service) AdminRefill(ctx context.Context, request RefillRequest) (Entry, error) {
	var entry Entry
	reference := ReferenceOf(map[string]any{
		"kind":     "admin_refill",
		"admin_id": request.AdminID.String(),
		"reason":   strings.TrimSpace(request.Reason),
	})
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if !request.Deltas.IsCredit() {
			return fmt.Errorf("%w: refill must credit at least one currency and debit none", ErrInvalidAmount)
		}
		if err := ensureFreshKey(ctx, transactionStore, request.UserID, request.IdempotencyKey); err != nil {
			return err
		}
		if _, err := transactionStore.LockBalance(ctx, request.UserID); err != nil {
			return err
		}
		recorded, _, err := service.record(ctx, transactionStore, request.UserID, EntryAdminRefill, request.Deltas, reference, request.IdempotencyKey)
		if err != nil {
			return err
		}
		entry = recorded
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationAdminRefill,
		UserID:         request.UserID,
		IdempotencyKey: request.IdempotencyKey,
		Reference:      reference,
		Error:          operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// ReversalRequest asks to compensate a ledger entry.
type ReversalRequest struct {
	AdminID UserID
	EntryID string
	Reason  string
}

// Spends backed by a stake or payment record; negating only the ledger line
// would refund gems the record still holds.
var linkedSpendKinds = map[string]bool{
	"stake":      true,
	"withdrawal": true,
}

// reversible rejects entries whose negation alone would not conserve value.
// Transfers have a counterparty leg and move a resource counter.
func reversible(target Entry) error {
	switch target.Type {
	case EntryReversal:
		return fmt.Errorf("%w: entry %s is a reversal", ErrEntryNotReversible, target.EntryID)
	case EntryTransfer:
		return fmt.Errorf("%w: entry %s is one leg of a settlement", ErrEntryNotReversible, target.EntryID)
	case EntrySpend:
		if kind := gjson.Get(target.Reference, "kind").String(); linkedSpendKinds[kind] {
			return fmt.Errorf("%w: entry %s funds a %s", ErrEntryNotReversible, target.EntryID, kind)
		}
	}
	return nil
}

// ReverseEntry appends a reversal entry carrying the negated deltas of the target.
// An entry can be reversed once. Reversals, settlement legs and spends tied to a
// stake or withdrawal are not reversible.
func (service *Service) ReverseEntry(ctx context.Context, request ReversalRequest) (Entry, error) {
	var entry Entry
	var ownerID UserID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		target, err := transactionStore.GetEntry(ctx, request.EntryID)
		if err != nil {
			return err
		}
		if err := reversible(target); err != nil {
			return err
		}
		ownerID, err = NewUserID(target.UserID)
		if err != nil {
			return err
		}
		idempotencyKey := deriveIdempotencyKey(idempotencyPrefixReverse, target.EntryID)
		if err := ensureFreshKey(ctx, transactionStore, ownerID, idempotencyKey); err != nil {
			return err
		}
		if _, err := transactionStore.LockBalance(ctx, ownerID); err != nil {
			return err
		}
		reference := ReferenceOf(map[string]any{
			"kind":     "reversal",
			"entry_id": target.EntryID,
			"type":     target.Type,
			"admin_id": request.AdminID.String(),
			"reason":   strings.TrimSpace(request.Reason),
		})
		recorded, _, err := service.record(ctx, transactionStore, ownerID, EntryReversal, target.Deltas.Negated(), reference, idempotencyKey)
		if err != nil {
			return err
		}
		entry = recorded
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReverseEntry,
		UserID:    ownerID,
		Reference: ReferenceOf(map[string]any{"entry_id": request.EntryID}),
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}
