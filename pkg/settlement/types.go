package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CurrencyNgwee is an integer ZMW amount in ngwee (1 ZMW = 100 ngwee).
// Balances are non-negative; deltas carry a sign.
type CurrencyNgwee int64

// EnergyWattHours is an integer energy amount in watt-hours (1 kWh = 1000 Wh).
type EnergyWattHours int64

// UnitPriceNgweePerKWh is a trade price expressed in ngwee per kWh.
type UnitPriceNgweePerKWh int64

// UserID identifies a registered participant.
type UserID struct {
	value string
}

// ClusterID identifies a shared energy cluster.
type ClusterID struct {
	value string
}

// OfferID identifies a standing trade offer.
type OfferID struct {
	value string
}

// ScheduleID identifies a scheduled transaction.
type ScheduleID struct {
	value string
}

// TransactionID identifies a settled transaction record.
type TransactionID struct {
	value string
}

// Reference links ledger entries and mobile-money rows to their origin.
type Reference struct {
	value string
}

// IdempotencyKey scopes duplicate detection for caller-initiated actions.
type IdempotencyKey struct {
	value string
}

// WebhookID scopes duplicate detection for provider-delivered confirmations.
type WebhookID struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
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

// NewClusterID validates and normalizes a cluster id.
func NewClusterID(raw string) (ClusterID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ClusterID{}, fmt.Errorf("%w: empty value", ErrInvalidClusterID)
	}
	return ClusterID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ClusterID) String() string {
	return id.value
}

// NewOfferID validates and normalizes an offer id.
func NewOfferID(raw string) (OfferID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OfferID{}, fmt.Errorf("%w: empty value", ErrInvalidOfferID)
	}
	return OfferID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id OfferID) String() string {
	return id.value
}

// NewScheduleID validates and normalizes a schedule id.
func NewScheduleID(raw string) (ScheduleID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ScheduleID{}, fmt.Errorf("%w: empty value", ErrInvalidScheduleID)
	}
	return ScheduleID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ScheduleID) String() string {
	return id.value
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// NewReference validates and normalizes a reference.
func NewReference(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	return Reference{value: trimmed}, nil
}

// String returns the normalized reference.
func (reference Reference) String() string {
	return reference.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewWebhookID validates and normalizes a webhook id.
func NewWebhookID(raw string) (WebhookID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WebhookID{}, fmt.Errorf("%w: empty value", ErrInvalidWebhookID)
	}
	return WebhookID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id WebhookID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// NewPositiveCurrencyNgwee validates a strictly positive currency amount.
func NewPositiveCurrencyNgwee(raw int64) (CurrencyNgwee, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: currency must be greater than zero", ErrInvalidAmount)
	}
	return CurrencyNgwee(raw), nil
}

// Int64 returns the raw ngwee value.
func (amount CurrencyNgwee) Int64() int64 {
	return int64(amount)
}

// NewPositiveEnergyWattHours validates a strictly positive energy amount.
func NewPositiveEnergyWattHours(raw int64) (EnergyWattHours, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: energy must be greater than zero", ErrInvalidAmount)
	}
	return EnergyWattHours(raw), nil
}

// Int64 returns the raw watt-hour value.
func (amount EnergyWattHours) Int64() int64 {
	return int64(amount)
}

// NewUnitPrice validates a strictly positive unit price.
func NewUnitPrice(raw int64) (UnitPriceNgweePerKWh, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: unit price must be greater than zero", ErrInvalidAmount)
	}
	return UnitPriceNgweePerKWh(raw), nil
}

// Int64 returns the raw price value.
func (price UnitPriceNgweePerKWh) Int64() int64 {
	return int64(price)
}

// TransactionType enumerates settled transaction kinds.
type TransactionType string

const (
	TransactionTrade              TransactionType = "trade"
	TransactionLease              TransactionType = "lease"
	TransactionPurchase           TransactionType = "purchase"
	TransactionBlockchainTransfer TransactionType = "blockchain_transfer"
)

// String returns the wire representation.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseTransactionType maps a stored value back to a TransactionType.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionTrade, TransactionLease, TransactionPurchase, TransactionBlockchainTransfer:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// TradeType distinguishes sell offers from buy offers.
type TradeType string

const (
	TradeTypeSell TradeType = "sell"
	TradeTypeBuy  TradeType = "buy"
)

// String returns the wire representation.
func (tradeType TradeType) String() string {
	return string(tradeType)
}

// ParseTradeType maps a stored value back to a TradeType.
func ParseTradeType(raw string) (TradeType, error) {
	switch TradeType(raw) {
	case TradeTypeSell, TradeTypeBuy:
		return TradeType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTradeType, raw)
}

// OfferStatus defines the offer lifecycle.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// String returns the wire representation.
func (status OfferStatus) String() string {
	return string(status)
}

// ParseOfferStatus maps a stored value back to an OfferStatus.
func ParseOfferStatus(raw string) (OfferStatus, error) {
	switch OfferStatus(raw) {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusExpired, OfferStatusCancelled:
		return OfferStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOfferStatus, raw)
}

// ScheduleStatus defines the scheduled-transaction lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusExecuted  ScheduleStatus = "executed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
)

// String returns the wire representation.
func (status ScheduleStatus) String() string {
	return string(status)
}

// ParseScheduleStatus maps a stored value back to a ScheduleStatus.
func ParseScheduleStatus(raw string) (ScheduleStatus, error) {
	switch ScheduleStatus(raw) {
	case ScheduleStatusPending, ScheduleStatusExecuted, ScheduleStatusCancelled, ScheduleStatusFailed:
		return ScheduleStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScheduleStatus, raw)
}

// EntryType classifies a ledger entry by the sign of its primary delta.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// String returns the wire representation.
func (entryType EntryType) String() string {
	return string(entryType)
}

// ParseEntryType maps a stored value back to an EntryType.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(raw) {
	case EntryCredit, EntryDebit:
		return EntryType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
}

// MobileMoneyType enumerates mobile-money transaction kinds.
type MobileMoneyType string

const (
	MobileMoneyDeposit    MobileMoneyType = "deposit"
	MobileMoneyWithdrawal MobileMoneyType = "withdrawal"
	MobileMoneyPayment    MobileMoneyType = "payment"
)

// String returns the wire representation.
func (mobileMoneyType MobileMoneyType) String() string {
	return string(mobileMoneyType)
}

// ParseMobileMoneyType maps a stored value back to a MobileMoneyType.
func ParseMobileMoneyType(raw string) (MobileMoneyType, error) {
	switch MobileMoneyType(raw) {
	case MobileMoneyDeposit, MobileMoneyWithdrawal, MobileMoneyPayment:
		return MobileMoneyType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMobileMoneyType, raw)
}

// MobileMoneyStatus defines the mobile-money confirmation lifecycle.
type MobileMoneyStatus string

const (
	MobileMoneyStatusPending   MobileMoneyStatus = "pending"
	MobileMoneyStatusCompleted MobileMoneyStatus = "completed"
	MobileMoneyStatusFailed    MobileMoneyStatus = "failed"
)

// String returns the wire representation.
func (status MobileMoneyStatus) String() string {
	return string(status)
}

// ParseMobileMoneyStatus maps a stored value back to a MobileMoneyStatus.
func ParseMobileMoneyStatus(raw string) (MobileMoneyStatus, error) {
	switch MobileMoneyStatus(raw) {
	case MobileMoneyStatusPending, MobileMoneyStatusCompleted, MobileMoneyStatusFailed:
		return MobileMoneyStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMobileMoneyStatus, raw)
}

// User is a registered participant with a currency and an energy balance.
type User struct {
	UserID        UserID
	Name          string
	Phone         string
	BalanceNgwee  CurrencyNgwee
	BalanceEnergy EnergyWattHours
}

// Cluster is a shared energy pool participants lease from.
type Cluster struct {
	ClusterID      ClusterID
	Name           string
	CapacityWh     EnergyWattHours
	AvailableWh    EnergyWattHours
	PricePerKWh    UnitPriceNgweePerKWh
	CreatedUnixUTC int64
}

// Transaction is the immutable record of one committed settlement.
type Transaction struct {
	TransactionID    TransactionID
	Type             TransactionType
	BuyerID          *UserID
	SellerID         *UserID
	UserID           *UserID
	ClusterID        *ClusterID
	EnergyWh         EnergyWattHours
	CurrencyNgwee    CurrencyNgwee
	CarbonSavedGrams int64
	CreatedUnixUTC   int64
}

// Offer is a standing proposal to trade energy at a stated price.
type Offer struct {
	OfferID          OfferID
	FromUserID       UserID
	ToUserID         *UserID
	EnergyWh         EnergyWattHours
	PricePerKWh      UnitPriceNgweePerKWh
	TotalNgwee       CurrencyNgwee
	TradeType        TradeType
	Status           OfferStatus
	CreatedUnixUTC   int64
	ExpiresAtUnixUTC int64
}

// ScheduledTransaction is a future-dated trade or purchase awaiting the sweep.
type ScheduledTransaction struct {
	ScheduleID         ScheduleID
	Type               TransactionType
	BuyerID            *UserID
	SellerID           *UserID
	ClusterID          *ClusterID
	EnergyWh           EnergyWattHours
	EstimatedNgwee     CurrencyNgwee
	ScheduledAtUnixUTC int64
	Status             ScheduleStatus
	ExecutedAtUnixUTC  int64
	FailureReason      string
	CreatedUnixUTC     int64
}

// LedgerEntry is a single immutable line in a user's audit ledger.
// Before/after figures are derived inside the ledger, never supplied.
type LedgerEntry struct {
	EntryID             string
	UserID              UserID
	Type                EntryType
	CurrencyDeltaNgwee  CurrencyNgwee
	EnergyDeltaWh       EnergyWattHours
	CurrencyBeforeNgwee CurrencyNgwee
	CurrencyAfterNgwee  CurrencyNgwee
	EnergyBeforeWh      EnergyWattHours
	EnergyAfterWh       EnergyWattHours
	Reference           Reference
	MetadataJSON        MetadataJSON
	CreatedUnixUTC      int64
}

// MobileMoneyTransaction tracks one externally confirmed top-up or payout.
type MobileMoneyTransaction struct {
	Reference          Reference
	IdempotencyKey     IdempotencyKey
	WebhookID          *WebhookID
	UserID             UserID
	Type               MobileMoneyType
	AmountNgwee        CurrencyNgwee
	Phone              string
	Status             MobileMoneyStatus
	CreatedUnixUTC     int64
	ConfirmedAtUnixUTC int64
}

// Store is the persistence contract used by Service. Implementations must
// make WithTx a real transaction boundary: everything a settlement touches
// commits together or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID UserID) (User, error)
	GetUserForUpdate(ctx context.Context, userID UserID) (User, error)
	UpdateUserBalances(ctx context.Context, userID UserID, currency CurrencyNgwee, energy EnergyWattHours) error

	CreateCluster(ctx context.Context, cluster Cluster) error
	GetCluster(ctx context.Context, clusterID ClusterID) (Cluster, error)
	GetClusterForUpdate(ctx context.Context, clusterID ClusterID) (Cluster, error)
	UpdateClusterAvailability(ctx context.Context, clusterID ClusterID, availableWh EnergyWattHours) error
	ListClusters(ctx context.Context) ([]Cluster, error)

	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID UserID, limit int) ([]LedgerEntry, error)

	InsertTransaction(ctx context.Context, transaction Transaction) error
	ListTransactionsForUser(ctx context.Context, userID UserID, limit int) ([]Transaction, error)

	InsertOffer(ctx context.Context, offer Offer) error
	GetOffer(ctx context.Context, offerID OfferID) (Offer, error)
	GetOfferForUpdate(ctx context.Context, offerID OfferID) (Offer, error)
	MarkOfferAccepted(ctx context.Context, offerID OfferID, acceptingUserID UserID) error
	UpdateOfferStatus(ctx context.Context, offerID OfferID, from, to OfferStatus) error
	ListOffersByStatus(ctx context.Context, status OfferStatus) ([]Offer, error)

	InsertSchedule(ctx context.Context, schedule ScheduledTransaction) error
	GetSchedule(ctx context.Context, scheduleID ScheduleID) (ScheduledTransaction, error)
	GetScheduleForUpdate(ctx context.Context, scheduleID ScheduleID) (ScheduledTransaction, error)
	UpdateScheduleStatus(ctx context.Context, scheduleID ScheduleID, from, to ScheduleStatus, executedAtUnixUTC int64, failureReason string) error
	ListDueSchedules(ctx context.Context, dueAtUnixUTC int64) ([]ScheduledTransaction, error)

	InsertMobileMoney(ctx context.Context, row MobileMoneyTransaction) error
	FindMobileMoneyByIdempotencyKey(ctx context.Context, key IdempotencyKey) (MobileMoneyTransaction, error)
	FindMobileMoneyByWebhookID(ctx context.Context, webhookID WebhookID) (MobileMoneyTransaction, error)
	GetMobileMoneyForUpdate(ctx context.Context, reference Reference) (MobileMoneyTransaction, error)
	ConfirmMobileMoney(ctx context.Context, reference Reference, webhookID WebhookID, from, to MobileMoneyStatus, confirmedAtUnixUTC int64) error
}
