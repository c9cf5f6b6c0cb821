package settlement

import (
	"context"
	"testing"
)

// stubStore is an in-memory Store for service tests. WithTx runs the
// closure against the same state with no rollback, which is enough to
// exercise the domain logic paths.
type stubStore struct {
	users        map[UserID]User
	clusters     map[ClusterID]Cluster
	entries      []LedgerEntry
	transactions []Transaction
	offers       map[OfferID]Offer
	schedules    map[ScheduleID]ScheduledTransaction
	mobileMoney  map[Reference]MobileMoneyTransaction
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		users:       make(map[UserID]User),
		clusters:    make(map[ClusterID]Cluster),
		offers:      make(map[OfferID]Offer),
		schedules:   make(map[ScheduleID]ScheduledTransaction),
		mobileMoney: make(map[Reference]MobileMoneyTransaction),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateUser(_ context.Context, user User) error {
	store.users[user.UserID] = user
	return nil
}

func (store *stubStore) GetUser(_ context.Context, userID UserID) (User, error) {
	user, ok := store.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (store *stubStore) GetUserForUpdate(ctx context.Context, userID UserID) (User, error) {
	return store.GetUser(ctx, userID)
}

func (store *stubStore) UpdateUserBalances(_ context.Context, userID UserID, currency CurrencyNgwee, energy EnergyWattHours) error {
	user, ok := store.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.BalanceNgwee = currency
	user.BalanceEnergy = energy
	store.users[userID] = user
	return nil
}

func (store *stubStore) CreateCluster(_ context.Context, cluster Cluster) error {
	store.clusters[cluster.ClusterID] = cluster
	return nil
}

func (store *stubStore) GetCluster(_ context.Context, clusterID ClusterID) (Cluster, error) {
	cluster, ok := store.clusters[clusterID]
	if !ok {
		return Cluster{}, ErrClusterNotFound
	}
	return cluster, nil
}

func (store *stubStore) GetClusterForUpdate(ctx context.Context, clusterID ClusterID) (Cluster, error) {
	return store.GetCluster(ctx, clusterID)
}

func (store *stubStore) UpdateClusterAvailability(_ context.Context, clusterID ClusterID, availableWh EnergyWattHours) error {
	cluster, ok := store.clusters[clusterID]
	if !ok {
		return ErrClusterNotFound
	}
	cluster.AvailableWh = availableWh
	store.clusters[clusterID] = cluster
	return nil
}

func (store *stubStore) ListClusters(_ context.Context) ([]Cluster, error) {
	clusters := make([]Cluster, 0, len(store.clusters))
	for _, cluster := range store.clusters {
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

func (store *stubStore) AppendLedgerEntry(_ context.Context, entry LedgerEntry) error {
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListLedgerEntries(_ context.Context, userID UserID, limit int) ([]LedgerEntry, error) {
	entries := make([]LedgerEntry, 0)
	for _, entry := range store.entries {
		if entry.UserID != userID {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction Transaction) error {
	store.transactions = append(store.transactions, transaction)
	return nil
}

func (store *stubStore) ListTransactionsForUser(_ context.Context, userID UserID, limit int) ([]Transaction, error) {
	transactions := make([]Transaction, 0)
	for _, transaction := range store.transactions {
		if !transactionTouchesUser(transaction, userID) {
			continue
		}
		transactions = append(transactions, transaction)
		if limit > 0 && len(transactions) == limit {
			break
		}
	}
	return transactions, nil
}

func transactionTouchesUser(transaction Transaction, userID UserID) bool {
	if transaction.BuyerID != nil && *transaction.BuyerID == userID {
		return true
	}
	if transaction.SellerID != nil && *transaction.SellerID == userID {
		return true
	}
	return transaction.UserID != nil && *transaction.UserID == userID
}

func (store *stubStore) InsertOffer(_ context.Context, offer Offer) error {
	store.offers[offer.OfferID] = offer
	return nil
}

func (store *stubStore) GetOffer(_ context.Context, offerID OfferID) (Offer, error) {
	offer, ok := store.offers[offerID]
	if !ok {
		return Offer{}, ErrOfferNotFound
	}
	return offer, nil
}

func (store *stubStore) GetOfferForUpdate(ctx context.Context, offerID OfferID) (Offer, error) {
	return store.GetOffer(ctx, offerID)
}

func (store *stubStore) MarkOfferAccepted(_ context.Context, offerID OfferID, acceptingUserID UserID) error {
	offer, ok := store.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Status != OfferStatusPending {
		return ErrOfferNotPending
	}
	offer.Status = OfferStatusAccepted
	offer.ToUserID = &acceptingUserID
	store.offers[offerID] = offer
	return nil
}

func (store *stubStore) UpdateOfferStatus(_ context.Context, offerID OfferID, from, to OfferStatus) error {
	offer, ok := store.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Status != from {
		return ErrOfferNotPending
	}
	offer.Status = to
	store.offers[offerID] = offer
	return nil
}

func (store *stubStore) ListOffersByStatus(_ context.Context, status OfferStatus) ([]Offer, error) {
	offers := make([]Offer, 0)
	for _, offer := range store.offers {
		if offer.Status == status {
			offers = append(offers, offer)
		}
	}
	return offers, nil
}

func (store *stubStore) InsertSchedule(_ context.Context, schedule ScheduledTransaction) error {
	store.schedules[schedule.ScheduleID] = schedule
	return nil
}

func (store *stubStore) GetSchedule(_ context.Context, scheduleID ScheduleID) (ScheduledTransaction, error) {
	schedule, ok := store.schedules[scheduleID]
	if !ok {
		return ScheduledTransaction{}, ErrScheduleNotFound
	}
	return schedule, nil
}

func (store *stubStore) GetScheduleForUpdate(ctx context.Context, scheduleID ScheduleID) (ScheduledTransaction, error) {
	return store.GetSchedule(ctx, scheduleID)
}

func (store *stubStore) UpdateScheduleStatus(_ context.Context, scheduleID ScheduleID, from, to ScheduleStatus, executedAtUnixUTC int64, failureReason string) error {
	schedule, ok := store.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	if schedule.Status != from {
		return ErrScheduleNotPending
	}
	schedule.Status = to
	schedule.ExecutedAtUnixUTC = executedAtUnixUTC
	schedule.FailureReason = failureReason
	store.schedules[scheduleID] = schedule
	return nil
}

func (store *stubStore) ListDueSchedules(_ context.Context, dueAtUnixUTC int64) ([]ScheduledTransaction, error) {
	due := make([]ScheduledTransaction, 0)
	for _, schedule := range store.schedules {
		if schedule.Status == ScheduleStatusPending && schedule.ScheduledAtUnixUTC <= dueAtUnixUTC {
			due = append(due, schedule)
		}
	}
	return due, nil
}

func (store *stubStore) InsertMobileMoney(_ context.Context, row MobileMoneyTransaction) error {
	for _, existing := range store.mobileMoney {
		if existing.IdempotencyKey == row.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	store.mobileMoney[row.Reference] = row
	return nil
}

func (store *stubStore) FindMobileMoneyByIdempotencyKey(_ context.Context, key IdempotencyKey) (MobileMoneyTransaction, error) {
	for _, row := range store.mobileMoney {
		if row.IdempotencyKey == key {
			return row, nil
		}
	}
	return MobileMoneyTransaction{}, ErrMobileMoneyNotFound
}

func (store *stubStore) FindMobileMoneyByWebhookID(_ context.Context, webhookID WebhookID) (MobileMoneyTransaction, error) {
	for _, row := range store.mobileMoney {
		if row.WebhookID != nil && *row.WebhookID == webhookID {
			return row, nil
		}
	}
	return MobileMoneyTransaction{}, ErrMobileMoneyNotFound
}

func (store *stubStore) GetMobileMoneyForUpdate(_ context.Context, reference Reference) (MobileMoneyTransaction, error) {
	row, ok := store.mobileMoney[reference]
	if !ok {
		return MobileMoneyTransaction{}, ErrMobileMoneyNotFound
	}
	return row, nil
}

func (store *stubStore) ConfirmMobileMoney(_ context.Context, reference Reference, webhookID WebhookID, from, to MobileMoneyStatus, confirmedAtUnixUTC int64) error {
	for _, existing := range store.mobileMoney {
		if existing.WebhookID != nil && *existing.WebhookID == webhookID {
			return ErrWebhookAlreadyProcessed
		}
	}
	row, ok := store.mobileMoney[reference]
	if !ok {
		return ErrMobileMoneyNotFound
	}
	if row.Status != from {
		return ErrMobileMoneyNotPending
	}
	row.Status = to
	row.WebhookID = &webhookID
	row.ConfirmedAtUnixUTC = confirmedAtUnixUTC
	store.mobileMoney[reference] = row
	return nil
}

func (store *stubStore) mustUser(test *testing.T, userID UserID) User {
	test.Helper()
	user, ok := store.users[userID]
	if !ok {
		test.Fatalf("user %s not in stub store", userID.String())
	}
	return user
}

func (store *stubStore) mustCluster(test *testing.T, clusterID ClusterID) Cluster {
	test.Helper()
	cluster, ok := store.clusters[clusterID]
	if !ok {
		test.Fatalf("cluster %s not in stub store", clusterID.String())
	}
	return cluster
}

func (store *stubStore) mustOffer(test *testing.T, offerID OfferID) Offer {
	test.Helper()
	offer, ok := store.offers[offerID]
	if !ok {
		test.Fatalf("offer %s not in stub store", offerID.String())
	}
	return offer
}

func (store *stubStore) mustSchedule(test *testing.T, scheduleID ScheduleID) ScheduledTransaction {
	test.Helper()
	schedule, ok := store.schedules[scheduleID]
	if !ok {
		test.Fatalf("schedule %s not in stub store", scheduleID.String())
	}
	return schedule
}

func (store *stubStore) mustMobileMoney(test *testing.T, reference Reference) MobileMoneyTransaction {
	test.Helper()
	row, ok := store.mobileMoney[reference]
	if !ok {
		test.Fatalf("mobile money row %s not in stub store", reference.String())
	}
	return row
}

// fakeClock advances under test control; the service reads it through nowFn.
type fakeClock struct {
	now int64
}

func (clock *fakeClock) fn() int64 {
	return clock.now
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	return mustNewServiceWithClock(test, store, func() int64 { return 100 })
}

func mustNewServiceWithClock(test *testing.T, store Store, now func() int64) *Service {
	test.Helper()
	service, err := NewService(store, now)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func seedUser(test *testing.T, store *stubStore, raw string, ngwee int64, wattHours int64) UserID {
	test.Helper()
	userID := mustUserID(test, raw)
	store.users[userID] = User{
		UserID:        userID,
		Name:          raw,
		BalanceNgwee:  CurrencyNgwee(ngwee),
		BalanceEnergy: EnergyWattHours(wattHours),
	}
	return userID
}

func seedCluster(test *testing.T, store *stubStore, raw string, availableWh int64, priceNgweePerKWh int64) ClusterID {
	test.Helper()
	clusterID := mustClusterID(test, raw)
	store.clusters[clusterID] = Cluster{
		ClusterID:   clusterID,
		Name:        raw,
		CapacityWh:  EnergyWattHours(availableWh),
		AvailableWh: EnergyWattHours(availableWh),
		PricePerKWh: UnitPriceNgweePerKWh(priceNgweePerKWh),
	}
	return clusterID
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustClusterID(test *testing.T, raw string) ClusterID {
	test.Helper()
	clusterID, err := NewClusterID(raw)
	if err != nil {
		test.Fatalf("cluster id %q: %v", raw, err)
	}
	return clusterID
}

func mustOfferID(test *testing.T, raw string) OfferID {
	test.Helper()
	offerID, err := NewOfferID(raw)
	if err != nil {
		test.Fatalf("offer id %q: %v", raw, err)
	}
	return offerID
}

func mustScheduleID(test *testing.T, raw string) ScheduleID {
	test.Helper()
	scheduleID, err := NewScheduleID(raw)
	if err != nil {
		test.Fatalf("schedule id %q: %v", raw, err)
	}
	return scheduleID
}

func mustReference(test *testing.T, raw string) Reference {
	test.Helper()
	reference, err := NewReference(raw)
	if err != nil {
		test.Fatalf("reference %q: %v", raw, err)
	}
	return reference
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key %q: %v", raw, err)
	}
	return key
}

func mustWebhookID(test *testing.T, raw string) WebhookID {
	test.Helper()
	webhookID, err := NewWebhookID(raw)
	if err != nil {
		test.Fatalf("webhook id %q: %v", raw, err)
	}
	return webhookID
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}

func mustPositiveCurrency(test *testing.T, raw int64) CurrencyNgwee {
	test.Helper()
	amount, err := NewPositiveCurrencyNgwee(raw)
	if err != nil {
		test.Fatalf("currency %d: %v", raw, err)
	}
	return amount
}

func mustPositiveEnergy(test *testing.T, raw int64) EnergyWattHours {
	test.Helper()
	amount, err := NewPositiveEnergyWattHours(raw)
	if err != nil {
		test.Fatalf("energy %d: %v", raw, err)
	}
	return amount
}

func mustUnitPrice(test *testing.T, raw int64) UnitPriceNgweePerKWh {
	test.Helper()
	price, err := NewUnitPrice(raw)
	if err != nil {
		test.Fatalf("unit price %d: %v", raw, err)
	}
	return price
}
