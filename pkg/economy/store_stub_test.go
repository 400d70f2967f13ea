package economy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

type memoryState struct {
	balances     map[string]Balance
	entries      []Entry
	users        map[string]User
	contents     map[string]Content
	purchases    []SharePurchase
	projects     map[string]FundingProject
	drops        map[string]Drop
	applications map[string]DropApplication
	stakes       map[string]Stake
	payments     map[string]Payment
}

func newMemoryState() *memoryState {
	return &memoryState{
		balances:     make(map[string]Balance),
		users:        make(map[string]User),
		contents:     make(map[string]Content),
		projects:     make(map[string]FundingProject),
		drops:        make(map[string]Drop),
		applications: make(map[string]DropApplication),
		stakes:       make(map[string]Stake),
		payments:     make(map[string]Payment),
	}
}

func (state *memoryState) clone() *memoryState {
	copied := newMemoryState()
	for key, value := range state.balances {
		copied.balances[key] = value
	}
	copied.entries = append([]Entry(nil), state.entries...)
	for key, value := range state.users {
		copied.users[key] = value
	}
	for key, value := range state.contents {
		copied.contents[key] = value
	}
	copied.purchases = append([]SharePurchase(nil), state.purchases...)
	for key, value := range state.projects {
		copied.projects[key] = value
	}
	for key, value := range state.drops {
		copied.drops[key] = value
	}
	for key, value := range state.applications {
		copied.applications[key] = value
	}
	for key, value := range state.stakes {
		copied.stakes[key] = value
	}
	for key, value := range state.payments {
		copied.payments[key] = value
	}
	return copied
}

type memoryShared struct {
	mutex sync.Mutex
	state *memoryState
}

// memoryStore serializes transactions with one mutex and commits a copy of the state only when fn succeeds.
type memoryStore struct {
	shared   *memoryShared
	working  *memoryState
	failures map[string]error
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		shared:   &memoryShared{state: newMemoryState()},
		failures: make(map[string]error),
	}
}

func (store *memoryStore) failOn(method string, err error) {
	store.failures[method] = err
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.failures["WithTx"]; err != nil {
		return err
	}
	if store.working != nil {
		return fn(ctx, store)
	}
	store.shared.mutex.Lock()
	defer store.shared.mutex.Unlock()
	working := store.shared.state.clone()
	transactionStore := &memoryStore{shared: store.shared, working: working, failures: store.failures}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	store.shared.state = working
	return nil
}

func (store *memoryStore) view() (*memoryState, func()) {
	if store.working != nil {
		return store.working, func() {}
	}
	store.shared.mutex.Lock()
	return store.shared.state, store.shared.mutex.Unlock
}

func (store *memoryStore) snapshot() *memoryState {
	state, release := store.view()
	defer release()
	return state.clone()
}

func (store *memoryStore) seedBalance(balance Balance) {
	state, release := store.view()
	defer release()
	state.balances[balance.UserID] = balance
}

func (store *memoryStore) seedUser(user User) {
	state, release := store.view()
	defer release()
	state.users[user.UserID] = user
}

func (store *memoryStore) seedContent(content Content) {
	state, release := store.view()
	defer release()
	state.contents[content.ContentID] = content
}

func (store *memoryStore) seedProject(project FundingProject) {
	state, release := store.view()
	defer release()
	state.projects[project.ProjectID] = project
}

func (store *memoryStore) seedDrop(drop Drop) {
	state, release := store.view()
	defer release()
	state.drops[drop.DropID] = drop
}

func (store *memoryStore) seedStake(stake Stake) {
	state, release := store.view()
	defer release()
	state.stakes[stake.StakeID] = stake
}

func (store *memoryStore) LockBalance(ctx context.Context, userID UserID) (Balance, error) {
	if err := store.failures["LockBalance"]; err != nil {
		return Balance{}, err
	}
	state, release := store.view()
	defer release()
	balance, exists := state.balances[userID.String()]
	if !exists {
		balance = Balance{UserID: userID.String()}
		state.balances[userID.String()] = balance
	}
	return balance, nil
}

func (store *memoryStore) ApplyDeltas(ctx context.Context, userID UserID, deltas Deltas) (Balance, error) {
	if err := store.failures["ApplyDeltas"]; err != nil {
		return Balance{}, err
	}
	state, release := store.view()
	defer release()
	balance, exists := state.balances[userID.String()]
	if !exists {
		balance = Balance{UserID: userID.String()}
	}
	updated, err := balance.Apply(deltas)
	if err != nil {
		return Balance{}, err
	}
	state.balances[userID.String()] = updated
	return updated, nil
}

func (store *memoryStore) InsertEntry(ctx context.Context, entry Entry) error {
	if err := store.failures["InsertEntry"]; err != nil {
		return err
	}
	state, release := store.view()
	defer release()
	if entry.IdempotencyKey != "" {
		for _, existing := range state.entries {
			if existing.UserID == entry.UserID && existing.IdempotencyKey == entry.IdempotencyKey {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	state.entries = append(state.entries, entry)
	return nil
}

func (store *memoryStore) GetEntry(ctx context.Context, entryID string) (Entry, error) {
	state, release := store.view()
	defer release()
	for _, entry := range state.entries {
		if entry.EntryID == entryID {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (store *memoryStore) FindEntryByIdempotencyKey(ctx context.Context, userID UserID, idempotencyKey IdempotencyKey) (Entry, error) {
	state, release := store.view()
	defer release()
	for _, entry := range state.entries {
		if entry.UserID == userID.String() && entry.IdempotencyKey == idempotencyKey.String() {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (store *memoryStore) ListEntries(ctx context.Context, userID UserID, limit int, offset int) ([]Entry, error) {
	if err := store.failures["ListEntries"]; err != nil {
		return nil, err
	}
	all, err := store.ListAllEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(left, right int) bool { return all[left].CreatedUnixUTC > all[right].CreatedUnixUTC })
	if offset >= len(all) {
		return []Entry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (store *memoryStore) ListAllEntries(ctx context.Context, userID UserID) ([]Entry, error) {
	state, release := store.view()
	defer release()
	entries := make([]Entry, 0)
	for _, entry := range state.entries {
		if entry.UserID == userID.String() {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (store *memoryStore) SumDeltas(ctx context.Context, userID UserID, entryType EntryType, sinceUnixUTC int64) (Deltas, error) {
	state, release := store.view()
	defer release()
	var total Deltas
	for _, entry := range state.entries {
		if entry.UserID == userID.String() && entry.Type == entryType && entry.CreatedUnixUTC >= sinceUnixUTC {
			total = total.Add(entry.Deltas)
		}
	}
	return total, nil
}

func (store *memoryStore) UpsertUser(ctx context.Context, user User) (User, error) {
	state, release := store.view()
	defer release()
	for _, existing := range state.users {
		if existing.ProviderSubject == user.ProviderSubject {
			existing.Email = user.Email
			existing.DisplayName = user.DisplayName
			existing.AvatarURL = user.AvatarURL
			if user.Role == RoleAdmin {
				existing.Role = RoleAdmin
			}
			state.users[existing.UserID] = existing
			return existing, nil
		}
	}
	state.users[user.UserID] = user
	return user, nil
}

func (store *memoryStore) GetUser(ctx context.Context, userID UserID) (User, error) {
	state, release := store.view()
	defer release()
	user, exists := state.users[userID.String()]
	if !exists {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (store *memoryStore) GetContent(ctx context.Context, contentID string) (Content, error) {
	state, release := store.view()
	defer release()
	content, exists := state.contents[contentID]
	if !exists {
		return Content{}, ErrContentNotFound
	}
	return content, nil
}

func (store *memoryStore) AddSharesSold(ctx context.Context, contentID string, shares int64) (Content, error) {
	state, release := store.view()
	defer release()
	content, exists := state.contents[contentID]
	if !exists {
		return Content{}, ErrContentNotFound
	}
	if content.SharesSold+shares > content.TotalShares {
		return Content{}, ErrResourceExhausted
	}
	content.SharesSold += shares
	state.contents[contentID] = content
	return content, nil
}

func (store *memoryStore) InsertSharePurchase(ctx context.Context, purchase SharePurchase) error {
	if err := store.failures["InsertSharePurchase"]; err != nil {
		return err
	}
	state, release := store.view()
	defer release()
	state.purchases = append(state.purchases, purchase)
	return nil
}

func (store *memoryStore) GetProject(ctx context.Context, projectID string) (FundingProject, error) {
	state, release := store.view()
	defer release()
	project, exists := state.projects[projectID]
	if !exists {
		return FundingProject{}, ErrProjectNotFound
	}
	return project, nil
}

func (store *memoryStore) AddFunding(ctx context.Context, projectID string, amount int64) (FundingProject, error) {
	state, release := store.view()
	defer release()
	project, exists := state.projects[projectID]
	if !exists {
		return FundingProject{}, ErrProjectNotFound
	}
	if project.FundedAmount+amount > project.GoalAmount {
		return FundingProject{}, ErrResourceExhausted
	}
	project.FundedAmount += amount
	if project.FundedAmount == project.GoalAmount {
		project.Status = ProjectStatusFunded
	}
	state.projects[projectID] = project
	return project, nil
}

func (store *memoryStore) GetDrop(ctx context.Context, dropID string) (Drop, error) {
	state, release := store.view()
	defer release()
	drop, exists := state.drops[dropID]
	if !exists {
		return Drop{}, ErrDropNotFound
	}
	return drop, nil
}

func (store *memoryStore) LockDrop(ctx context.Context, dropID string) (Drop, error) {
	if err := store.failures["LockDrop"]; err != nil {
		return Drop{}, err
	}
	return store.GetDrop(ctx, dropID)
}

func (store *memoryStore) CountDropApplications(ctx context.Context, dropID string) (int64, error) {
	state, release := store.view()
	defer release()
	var count int64
	for _, application := range state.applications {
		if application.DropID == dropID {
			count++
		}
	}
	return count, nil
}

func (store *memoryStore) FindDropApplication(ctx context.Context, dropID string, userID UserID) (DropApplication, error) {
	state, release := store.view()
	defer release()
	for _, application := range state.applications {
		if application.DropID == dropID && application.UserID == userID.String() {
			return application, nil
		}
	}
	return DropApplication{}, ErrApplicationNotFound
}

func (store *memoryStore) InsertDropApplication(ctx context.Context, application DropApplication) error {
	state, release := store.view()
	defer release()
	for _, existing := range state.applications {
		if existing.DropID == application.DropID && existing.UserID == application.UserID {
			return ErrAlreadyApplied
		}
	}
	state.applications[application.ApplicationID] = application
	return nil
}

func (store *memoryStore) GetDropApplication(ctx context.Context, applicationID string) (DropApplication, error) {
	state, release := store.view()
	defer release()
	application, exists := state.applications[applicationID]
	if !exists {
		return DropApplication{}, ErrApplicationNotFound
	}
	return application, nil
}

func (store *memoryStore) UpdateDropApplicationStatus(ctx context.Context, applicationID string, from ApplicationStatus, to ApplicationStatus, reviewedUnixUTC int64) error {
	state, release := store.view()
	defer release()
	application, exists := state.applications[applicationID]
	if !exists || application.Status != from {
		return ErrApplicationClosed
	}
	application.Status = to
	application.ReviewedUnixUTC = reviewedUnixUTC
	state.applications[applicationID] = application
	return nil
}

func (store *memoryStore) InsertStake(ctx context.Context, stake Stake) error {
	state, release := store.view()
	defer release()
	state.stakes[stake.StakeID] = stake
	return nil
}

func (store *memoryStore) ListMaturedStakes(ctx context.Context, atUnixUTC int64, limit int) ([]Stake, error) {
	state, release := store.view()
	defer release()
	matured := make([]Stake, 0)
	for _, stake := range state.stakes {
		if stake.Status == StakeStatusActive && stake.ExpiresUnixUTC <= atUnixUTC {
			matured = append(matured, stake)
		}
	}
	sort.Slice(matured, func(left, right int) bool { return matured[left].StakeID < matured[right].StakeID })
	if limit > 0 && len(matured) > limit {
		matured = matured[:limit]
	}
	return matured, nil
}

func (store *memoryStore) CompleteStake(ctx context.Context, stakeID string, payout int64, completedUnixUTC int64) error {
	state, release := store.view()
	defer release()
	stake, exists := state.stakes[stakeID]
	if !exists || stake.Status != StakeStatusActive {
		return ErrStakeClosed
	}
	stake.Status = StakeStatusCompleted
	stake.Payout = payout
	stake.CompletedUnixUTC = completedUnixUTC
	state.stakes[stakeID] = stake
	return nil
}

func (store *memoryStore) InsertPayment(ctx context.Context, payment Payment) error {
	state, release := store.view()
	defer release()
	for _, existing := range state.payments {
		if payment.ProviderSessionID != "" && existing.Provider == payment.Provider && existing.ProviderSessionID == payment.ProviderSessionID {
			return fmt.Errorf("payment session %s: %w", payment.ProviderSessionID, ErrDuplicateIdempotencyKey)
		}
	}
	state.payments[payment.PaymentID] = payment
	return nil
}

func (store *memoryStore) GetPaymentBySession(ctx context.Context, provider string, providerSessionID string) (Payment, error) {
	state, release := store.view()
	defer release()
	for _, payment := range state.payments {
		if payment.Provider == provider && payment.ProviderSessionID == providerSessionID {
			return payment, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (store *memoryStore) UpdatePaymentStatus(ctx context.Context, paymentID string, from PaymentStatus, to PaymentStatus) error {
	state, release := store.view()
	defer release()
	payment, exists := state.payments[paymentID]
	if !exists || payment.Status != from {
		return ErrPaymentClosed
	}
	payment.Status = to
	state.payments[paymentID] = payment
	return nil
}

func mustNewService(test *testing.T, store Store, now int64, options ...ServiceOption) *Service {
	test.Helper()
	var counter atomic.Int64
	idOptions := append([]ServiceOption{WithIDGenerator(func() string {
		return fmt.Sprintf("id-%04d", counter.Add(1))
	})}, options...)
	service, err := NewService(store, DefaultRules(), func() int64 { return now }, idOptions...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw int64) PositiveAmount {
	test.Helper()
	value, err := NewPositiveAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func assertReconciled(test *testing.T, store *memoryStore, userIDs ...string) {
	test.Helper()
	state := store.snapshot()
	for _, userID := range userIDs {
		var replayed Deltas
		for _, entry := range state.entries {
			if entry.UserID == userID {
				replayed = replayed.Add(entry.Deltas)
			}
		}
		balance := state.balances[userID]
		if replayed != balance.Deltas() {
			test.Fatalf("ledger replay %+v does not match balance %+v for %s", replayed, balance, userID)
		}
		if balance.Points < 0 || balance.Keys < 0 || balance.Gems < 0 || balance.Gold < 0 {
			test.Fatalf("negative balance for %s: %+v", userID, balance)
		}
	}
}
