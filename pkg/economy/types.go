package economy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Currency names one of the four balance columns.
type Currency string

const (
	CurrencyPoints Currency = "points"
	CurrencyKeys   Currency = "keys"
	CurrencyGems   Currency = "gems"
	CurrencyGold   Currency = "gold"
)

// Currencies lists every supported currency in balance column order.
func Currencies() []Currency {
	return []Currency{CurrencyPoints, CurrencyKeys, CurrencyGems, CurrencyGold}
}

// ParseCurrency validates a currency name.
func ParseCurrency(raw string) (Currency, error) {
	normalized := Currency(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case CurrencyPoints, CurrencyKeys, CurrencyGems, CurrencyGold:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, raw)
	}
}

// String returns the currency name.
func (currency Currency) String() string {
	return string(currency)
}

// UserID identifies a balance owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// IdempotencyKey is a caller-supplied token that makes a mutation apply at most once per user.
// The zero value means "no key".
type IdempotencyKey struct {
	value string
}

const maxIdempotencyKeyLength = 128

// NewIdempotencyKey validates and normalizes a caller-supplied idempotency key.
// Keys derived by the service contain the delimiter, so callers may not use it.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	if len(trimmed) > maxIdempotencyKeyLength {
		return IdempotencyKey{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, maxIdempotencyKeyLength)
	}
	if strings.Contains(trimmed, idempotencyKeyDelimiter) {
		return IdempotencyKey{}, fmt.Errorf("%w: %q is reserved", ErrInvalidIdempotencyKey, idempotencyKeyDelimiter)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// OptionalIdempotencyKey returns the zero key for blank input.
func OptionalIdempotencyKey(raw string) (IdempotencyKey, error) {
	if strings.TrimSpace(raw) == "" {
		return IdempotencyKey{}, nil
	}
	return NewIdempotencyKey(raw)
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// IsZero reports whether no key was supplied.
func (key IdempotencyKey) IsZero() bool {
	return key.value == ""
}

// Reference is the structured JSON attached to a ledger entry.
type Reference struct {
	value string
}

// NewReference validates a JSON reference (defaulting to "{}" for empty inputs).
func NewReference(raw string) (Reference, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return Reference{}, fmt.Errorf("%w: must be valid json", ErrInvalidReference)
	}
	return Reference{value: normalized}, nil
}

// ReferenceOf encodes fields as a reference object.
func ReferenceOf(fields map[string]any) Reference {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return Reference{value: "{}"}
	}
	return Reference{value: string(encoded)}
}

// String returns the JSON text.
func (reference Reference) String() string {
	if reference.value == "" {
		return "{}"
	}
	return reference.value
}

// PositiveAmount is a strictly positive quantity of one currency.
type PositiveAmount int64

// NewPositiveAmount validates an amount and ensures it is strictly positive.
func NewPositiveAmount(raw int64) (PositiveAmount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmount(raw), nil
}

// Int64 returns the raw amount.
func (amount PositiveAmount) Int64() int64 {
	return int64(amount)
}

// Deltas is a signed change for each currency.
type Deltas struct {
	Points int64 `json:"points"`
	Keys   int64 `json:"keys"`
	Gems   int64 `json:"gems"`
	Gold   int64 `json:"gold"`
}

// DeltaOf returns a change touching a single currency.
func DeltaOf(currency Currency, amount int64) Deltas {
	var deltas Deltas
	switch currency {
	case CurrencyPoints:
		deltas.Points = amount
	case CurrencyKeys:
		deltas.Keys = amount
	case CurrencyGems:
		deltas.Gems = amount
	case CurrencyGold:
		deltas.Gold = amount
	}
	return deltas
}

// Get returns the delta for one currency.
func (deltas Deltas) Get(currency Currency) int64 {
	switch currency {
	case CurrencyPoints:
		return deltas.Points
	case CurrencyKeys:
		return deltas.Keys
	case CurrencyGems:
		return deltas.Gems
	case CurrencyGold:
		return deltas.Gold
	default:
		return 0
	}
}

// Add sums two changes.
func (deltas Deltas) Add(other Deltas) Deltas {
	return Deltas{
		Points: deltas.Points + other.Points,
		Keys:   deltas.Keys + other.Keys,
		Gems:   deltas.Gems + other.Gems,
		Gold:   deltas.Gold + other.Gold,
	}
}

// Negated flips the sign of every field.
func (deltas Deltas) Negated() Deltas {
	return Deltas{Points: -deltas.Points, Keys: -deltas.Keys, Gems: -deltas.Gems, Gold: -deltas.Gold}
}

// IsZero reports whether the change touches nothing.
func (deltas Deltas) IsZero() bool {
	return deltas == Deltas{}
}

// IsCredit reports whether no field is negative and at least one is positive.
func (deltas Deltas) IsCredit() bool {
	if deltas.IsZero() {
		return false
	}
	return deltas.Points >= 0 && deltas.Keys >= 0 && deltas.Gems >= 0 && deltas.Gold >= 0
}

// Balance is one user's holdings.
type Balance struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Keys   int64  `json:"keys"`
	Gems   int64  `json:"gems"`
	Gold   int64  `json:"gold"`
}

// Amount returns the holding for one currency.
func (balance Balance) Amount(currency Currency) int64 {
	return balance.Deltas().Get(currency)
}

// Deltas returns the balance as a change from zero.
func (balance Balance) Deltas() Deltas {
	return Deltas{Points: balance.Points, Keys: balance.Keys, Gems: balance.Gems, Gold: balance.Gold}
}

// Apply returns the balance after deltas, rejecting any negative result.
func (balance Balance) Apply(deltas Deltas) (Balance, error) {
	next := Balance{
		UserID: balance.UserID,
		Points: balance.Points + deltas.Points,
		Keys:   balance.Keys + deltas.Keys,
		Gems:   balance.Gems + deltas.Gems,
		Gold:   balance.Gold + deltas.Gold,
	}
	if next.Points < 0 || next.Keys < 0 || next.Gems < 0 || next.Gold < 0 {
		return balance, ErrInsufficientFunds
	}
	return next, nil
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryConvert     EntryType = "convert"
	EntryTransfer    EntryType = "transfer"
	EntryEarn        EntryType = "earn"
	EntrySpend       EntryType = "spend"
	EntryPurchase    EntryType = "purchase"
	EntryAdminRefill EntryType = "admin_refill"
	EntryReversal    EntryType = "reversal"
)

// ParseEntryType validates an entry type.
func ParseEntryType(raw string) (EntryType, error) {
	entryType := EntryType(strings.TrimSpace(raw))
	switch entryType {
	case EntryConvert, EntryTransfer, EntryEarn, EntrySpend, EntryPurchase, EntryAdminRefill, EntryReversal:
		return entryType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the entry type name.
func (entryType EntryType) String() string {
	return string(entryType)
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryID        string    `json:"id"`
	UserID         string    `json:"user_id"`
	Type           EntryType `json:"type"`
	Deltas         Deltas    `json:"deltas"`
	Reference      string    `json:"reference"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedUnixUTC int64     `json:"created_unix_utc"`
}

// ReplayEntries sums entries from a zero balance.
func ReplayEntries(entries []Entry) Deltas {
	var total Deltas
	for _, entry := range entries {
		total = total.Add(entry.Deltas)
	}
	return total
}

// Tier classifies users for reward multipliers.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierSuper   Tier = "super"
)

// ParseTier validates a tier name.
func ParseTier(raw string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	switch tier {
	case TierFree, TierPremium, TierSuper:
		return tier, nil
	case "":
		return TierFree, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
	}
}

// Role gates admin routes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered account.
type User struct {
	UserID          string `json:"id"`
	ProviderSubject string `json:"-"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	AvatarURL       string `json:"avatar_url"`
	Tier            Tier   `json:"tier"`
	Role            Role   `json:"role"`
	CreatedUnixUTC  int64  `json:"created_unix_utc"`
}

// IsAdmin reports whether the user may call admin routes.
func (user User) IsAdmin() bool {
	return user.Role == RoleAdmin
}

// Identity is a verified login from the identity provider.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
	Admin       bool
}

// Profile is the economy view of a user.
type Profile struct {
	Balance    Balance `json:"balance"`
	Tier       Tier    `json:"tier"`
	Multiplier string  `json:"multiplier"`
}
