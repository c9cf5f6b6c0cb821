package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintMomoIdempotencyKey = "uniq_momo_idempotency_key"
	constraintMomoWebhookID      = "uniq_momo_webhook_id"
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	sqliteConstraintCode         = 19
	errorOperationStore          = "store"
	errorSubjectUser             = "user"
	errorSubjectCluster          = "cluster"
	errorSubjectEntry            = "entry"
	errorSubjectTransaction      = "transaction"
	errorSubjectOffer            = "offer"
	errorSubjectSchedule         = "schedule"
	errorSubjectMobileMoney      = "mobile_money"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeUpdate              = "update"
	errorCodeUpdateStatus        = "update_status"
)

// Store implements settlement.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by the supplied gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Cluster{},
		&Transaction{},
		&Offer{},
		&ScheduledTransaction{},
		&LedgerEntry{},
		&MobileMoneyTransaction{},
	}
}

// WithTx executes fn inside a database transaction. Nested calls ride the
// outer transaction because the inner Store wraps the same handle.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore settlement.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateUser(ctx context.Context, user settlement.User) error {
	model := User{
		UserID:       user.UserID.String(),
		Name:         user.Name,
		Phone:        user.Phone,
		BalanceNgwee: user.BalanceNgwee.Int64(),
		BalanceWh:    user.BalanceEnergy.Int64(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetUser(ctx context.Context, userID settlement.UserID) (settlement.User, error) {
	return store.getUser(ctx, userID, false)
}

func (store *Store) GetUserForUpdate(ctx context.Context, userID settlement.UserID) (settlement.User, error) {
	return store.getUser(ctx, userID, true)
}

func (store *Store) getUser(ctx context.Context, userID settlement.UserID, forUpdate bool) (settlement.User, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model User
	err := query.Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, settlement.ErrUserNotFound)
		}
		return settlement.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	user, err := mapUser(model)
	if err != nil {
		return settlement.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return user, nil
}

func (store *Store) UpdateUserBalances(ctx context.Context, userID settlement.UserID, currency settlement.CurrencyNgwee, energy settlement.EnergyWattHours) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]interface{}{
			"balance_ngwee": currency.Int64(),
			"balance_wh":    energy.Int64(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, settlement.ErrUserNotFound)
	}
	return nil
}

func (store *Store) CreateCluster(ctx context.Context, cluster settlement.Cluster) error {
	model := Cluster{
		ClusterID:        cluster.ClusterID.String(),
		Name:             cluster.Name,
		CapacityWh:       cluster.CapacityWh.Int64(),
		AvailableWh:      cluster.AvailableWh.Int64(),
		PriceNgweePerKWh: cluster.PricePerKWh.Int64(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectCluster, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCluster(ctx context.Context, clusterID settlement.ClusterID) (settlement.Cluster, error) {
	return store.getCluster(ctx, clusterID, false)
}

func (store *Store) GetClusterForUpdate(ctx context.Context, clusterID settlement.ClusterID) (settlement.Cluster, error) {
	return store.getCluster(ctx, clusterID, true)
}

func (store *Store) getCluster(ctx context.Context, clusterID settlement.ClusterID, forUpdate bool) (settlement.Cluster, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model Cluster
	err := query.Where("cluster_id = ?", clusterID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.Cluster{}, wrapStoreError(errorSubjectCluster, errorCodeGet, settlement.ErrClusterNotFound)
		}
		return settlement.Cluster{}, wrapStoreError(errorSubjectCluster, errorCodeGet, err)
	}
	cluster, err := mapCluster(model)
	if err != nil {
		return settlement.Cluster{}, wrapStoreError(errorSubjectCluster, errorCodeInvalid, err)
	}
	return cluster, nil
}

func (store *Store) UpdateClusterAvailability(ctx context.Context, clusterID settlement.ClusterID, availableWh settlement.EnergyWattHours) error {
	result := store.db.WithContext(ctx).
		Model(&Cluster{}).
		Where("cluster_id = ?", clusterID.String()).
		Update("available_wh", availableWh.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectCluster, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCluster, errorCodeUpdate, settlement.ErrClusterNotFound)
	}
	return nil
}

func (store *Store) ListClusters(ctx context.Context) ([]settlement.Cluster, error) {
	var rows []Cluster
	if err := store.db.WithContext(ctx).Order("cluster_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCluster, errorCodeList, err)
	}
	clusters := make([]settlement.Cluster, 0, len(rows))
	for _, row := range rows {
		cluster, err := mapCluster(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCluster, errorCodeInvalid, err)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

func (store *Store) AppendLedgerEntry(ctx context.Context, entry settlement.LedgerEntry) error {
	model := LedgerEntry{
		EntryID:             entry.EntryID,
		UserID:              entry.UserID.String(),
		Type:                entry.Type.String(),
		CurrencyDeltaNgwee:  entry.CurrencyDeltaNgwee.Int64(),
		EnergyDeltaWh:       entry.EnergyDeltaWh.Int64(),
		CurrencyBeforeNgwee: entry.CurrencyBeforeNgwee.Int64(),
		CurrencyAfterNgwee:  entry.CurrencyAfterNgwee.Int64(),
		EnergyBeforeWh:      entry.EnergyBeforeWh.Int64(),
		EnergyAfterWh:       entry.EnergyAfterWh.Int64(),
		Reference:           entry.Reference.String(),
		Metadata:            metadataColumn(entry.MetadataJSON.String()),
		CreatedAt:           time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, userID settlement.UserID, limit int) ([]settlement.LedgerEntry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]settlement.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction settlement.Transaction) error {
	model := Transaction{
		TransactionID:    transaction.TransactionID.String(),
		Type:             transaction.Type.String(),
		BuyerID:          optionalUserID(transaction.BuyerID),
		SellerID:         optionalUserID(transaction.SellerID),
		UserID:           optionalUserID(transaction.UserID),
		ClusterID:        optionalClusterID(transaction.ClusterID),
		EnergyWh:         transaction.EnergyWh.Int64(),
		CurrencyNgwee:    transaction.CurrencyNgwee.Int64(),
		CarbonSavedGrams: transaction.CarbonSavedGrams,
		CreatedAt:        time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactionsForUser(ctx context.Context, userID settlement.UserID, limit int) ([]settlement.Transaction, error) {
	var rows []Transaction
	id := userID.String()
	err := store.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ? OR user_id = ?", id, id, id).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]settlement.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) InsertOffer(ctx context.Context, offer settlement.Offer) error {
	model := Offer{
		OfferID:          offer.OfferID.String(),
		FromUserID:       offer.FromUserID.String(),
		ToUserID:         optionalUserID(offer.ToUserID),
		EnergyWh:         offer.EnergyWh.Int64(),
		PriceNgweePerKWh: offer.PricePerKWh.Int64(),
		TotalNgwee:       offer.TotalNgwee.Int64(),
		TradeType:        offer.TradeType.String(),
		Status:           offer.Status.String(),
		ExpiresAt:        time.Unix(offer.ExpiresAtUnixUTC, 0).UTC(),
		CreatedAt:        time.Unix(offer.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetOffer(ctx context.Context, offerID settlement.OfferID) (settlement.Offer, error) {
	return store.getOffer(ctx, offerID, false)
}

func (store *Store) GetOfferForUpdate(ctx context.Context, offerID settlement.OfferID) (settlement.Offer, error) {
	return store.getOffer(ctx, offerID, true)
}

func (store *Store) getOffer(ctx context.Context, offerID settlement.OfferID, forUpdate bool) (settlement.Offer, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model Offer
	err := query.Where("offer_id = ?", offerID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.Offer{}, wrapStoreError(errorSubjectOffer, errorCodeGet, settlement.ErrOfferNotFound)
		}
		return settlement.Offer{}, wrapStoreError(errorSubjectOffer, errorCodeGet, err)
	}
	offer, err := mapOffer(model)
	if err != nil {
		return settlement.Offer{}, wrapStoreError(errorSubjectOffer, errorCodeInvalid, err)
	}
	return offer, nil
}

// MarkOfferAccepted transitions pending to accepted and records the taker.
// The status guard in the WHERE clause makes concurrent accepts lose cleanly.
func (store *Store) MarkOfferAccepted(ctx context.Context, offerID settlement.OfferID, acceptingUserID settlement.UserID) error {
	result := store.db.WithContext(ctx).
		Model(&Offer{}).
		Where("offer_id = ? AND status = ?", offerID.String(), settlement.OfferStatusPending.String()).
		Updates(map[string]interface{}{
			"status":     settlement.OfferStatusAccepted.String(),
			"to_user_id": acceptingUserID.String(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdateStatus, settlement.ErrOfferNotPending)
	}
	return nil
}

func (store *Store) UpdateOfferStatus(ctx context.Context, offerID settlement.OfferID, from, to settlement.OfferStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Offer{}).
		Where("offer_id = ? AND status = ?", offerID.String(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdateStatus, settlement.ErrOfferNotPending)
	}
	return nil
}

func (store *Store) ListOffersByStatus(ctx context.Context, status settlement.OfferStatus) ([]settlement.Offer, error) {
	var rows []Offer
	err := store.db.WithContext(ctx).
		Where("status = ?", status.String()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOffer, errorCodeList, err)
	}
	offers := make([]settlement.Offer, 0, len(rows))
	for _, row := range rows {
		offer, err := mapOffer(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectOffer, errorCodeInvalid, err)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (store *Store) InsertSchedule(ctx context.Context, schedule settlement.ScheduledTransaction) error {
	model := ScheduledTransaction{
		ScheduleID:     schedule.ScheduleID.String(),
		Type:           schedule.Type.String(),
		BuyerID:        optionalUserID(schedule.BuyerID),
		SellerID:       optionalUserID(schedule.SellerID),
		ClusterID:      optionalClusterID(schedule.ClusterID),
		EnergyWh:       schedule.EnergyWh.Int64(),
		EstimatedNgwee: schedule.EstimatedNgwee.Int64(),
		ScheduledAt:    time.Unix(schedule.ScheduledAtUnixUTC, 0).UTC(),
		Status:         schedule.Status.String(),
		FailureReason:  schedule.FailureReason,
		CreatedAt:      time.Unix(schedule.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectSchedule, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetSchedule(ctx context.Context, scheduleID settlement.ScheduleID) (settlement.ScheduledTransaction, error) {
	return store.getSchedule(ctx, scheduleID, false)
}

func (store *Store) GetScheduleForUpdate(ctx context.Context, scheduleID settlement.ScheduleID) (settlement.ScheduledTransaction, error) {
	return store.getSchedule(ctx, scheduleID, true)
}

func (store *Store) getSchedule(ctx context.Context, scheduleID settlement.ScheduleID, forUpdate bool) (settlement.ScheduledTransaction, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model ScheduledTransaction
	err := query.Where("schedule_id = ?", scheduleID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.ScheduledTransaction{}, wrapStoreError(errorSubjectSchedule, errorCodeGet, settlement.ErrScheduleNotFound)
		}
		return settlement.ScheduledTransaction{}, wrapStoreError(errorSubjectSchedule, errorCodeGet, err)
	}
	schedule, err := mapSchedule(model)
	if err != nil {
		return settlement.ScheduledTransaction{}, wrapStoreError(errorSubjectSchedule, errorCodeInvalid, err)
	}
	return schedule, nil
}

func (store *Store) UpdateScheduleStatus(ctx context.Context, scheduleID settlement.ScheduleID, from, to settlement.ScheduleStatus, executedAtUnixUTC int64, failureReason string) error {
	assignments := map[string]interface{}{
		"status":         to.String(),
		"failure_reason": failureReason,
	}
	if executedAtUnixUTC != 0 {
		executedAt := time.Unix(executedAtUnixUTC, 0).UTC()
		assignments["executed_at"] = &executedAt
	}
	result := store.db.WithContext(ctx).
		Model(&ScheduledTransaction{}).
		Where("schedule_id = ? AND status = ?", scheduleID.String(), from.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSchedule, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSchedule, errorCodeUpdateStatus, settlement.ErrScheduleNotPending)
	}
	return nil
}

func (store *Store) ListDueSchedules(ctx context.Context, dueAtUnixUTC int64) ([]settlement.ScheduledTransaction, error) {
	var rows []ScheduledTransaction
	err := store.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", settlement.ScheduleStatusPending.String(), time.Unix(dueAtUnixUTC, 0).UTC()).
		Order("scheduled_at").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSchedule, errorCodeList, err)
	}
	schedules := make([]settlement.ScheduledTransaction, 0, len(rows))
	for _, row := range rows {
		schedule, err := mapSchedule(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSchedule, errorCodeInvalid, err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

func (store *Store) InsertMobileMoney(ctx context.Context, row settlement.MobileMoneyTransaction) error {
	model := MobileMoneyTransaction{
		Reference:      row.Reference.String(),
		IdempotencyKey: row.IdempotencyKey.String(),
		WebhookID:      optionalWebhookID(row.WebhookID),
		UserID:         row.UserID.String(),
		Type:           row.Type.String(),
		AmountNgwee:    row.AmountNgwee.Int64(),
		Phone:          row.Phone,
		Status:         row.Status.String(),
		CreatedAt:      time.Unix(row.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintMomoIdempotencyKey) {
		return wrapStoreError(errorSubjectMobileMoney, errorCodeDuplicate, settlement.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectMobileMoney, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) FindMobileMoneyByIdempotencyKey(ctx context.Context, key settlement.IdempotencyKey) (settlement.MobileMoneyTransaction, error) {
	return store.findMobileMoney(ctx, "idempotency_key = ?", key.String())
}

func (store *Store) FindMobileMoneyByWebhookID(ctx context.Context, webhookID settlement.WebhookID) (settlement.MobileMoneyTransaction, error) {
	return store.findMobileMoney(ctx, "webhook_id = ?", webhookID.String())
}

func (store *Store) findMobileMoney(ctx context.Context, condition string, value string) (settlement.MobileMoneyTransaction, error) {
	var model MobileMoneyTransaction
	err := store.db.WithContext(ctx).Where(condition, value).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeGet, settlement.ErrMobileMoneyNotFound)
		}
		return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeGet, err)
	}
	row, err := mapMobileMoney(model)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeInvalid, err)
	}
	return row, nil
}

func (store *Store) GetMobileMoneyForUpdate(ctx context.Context, reference settlement.Reference) (settlement.MobileMoneyTransaction, error) {
	var model MobileMoneyTransaction
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeGet, settlement.ErrMobileMoneyNotFound)
		}
		return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeGet, err)
	}
	row, err := mapMobileMoney(model)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, wrapStoreError(errorSubjectMobileMoney, errorCodeInvalid, err)
	}
	return row, nil
}

// ConfirmMobileMoney stamps the winning webhook delivery. A duplicate
// webhook id trips the unique index; a non-pending row affects zero rows.
func (store *Store) ConfirmMobileMoney(ctx context.Context, reference settlement.Reference, webhookID settlement.WebhookID, from, to settlement.MobileMoneyStatus, confirmedAtUnixUTC int64) error {
	confirmedAt := time.Unix(confirmedAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&MobileMoneyTransaction{}).
		Where("reference = ? AND status = ?", reference.String(), from.String()).
		Updates(map[string]interface{}{
			"status":       to.String(),
			"webhook_id":   webhookID.String(),
			"confirmed_at": &confirmedAt,
		})
	if isUniqueViolation(result.Error, constraintMomoWebhookID) {
		return wrapStoreError(errorSubjectMobileMoney, errorCodeDuplicate, settlement.ErrWebhookAlreadyProcessed)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectMobileMoney, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMobileMoney, errorCodeUpdateStatus, settlement.ErrMobileMoneyNotPending)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return settlement.WrapError(errorOperationStore, subject, code, err)
}

func mapUser(model User) (settlement.User, error) {
	userID, err := settlement.NewUserID(model.UserID)
	if err != nil {
		return settlement.User{}, err
	}
	return settlement.User{
		UserID:        userID,
		Name:          model.Name,
		Phone:         model.Phone,
		BalanceNgwee:  settlement.CurrencyNgwee(model.BalanceNgwee),
		BalanceEnergy: settlement.EnergyWattHours(model.BalanceWh),
	}, nil
}

func mapCluster(model Cluster) (settlement.Cluster, error) {
	clusterID, err := settlement.NewClusterID(model.ClusterID)
	if err != nil {
		return settlement.Cluster{}, err
	}
	return settlement.Cluster{
		ClusterID:      clusterID,
		Name:           model.Name,
		CapacityWh:     settlement.EnergyWattHours(model.CapacityWh),
		AvailableWh:    settlement.EnergyWattHours(model.AvailableWh),
		PricePerKWh:    settlement.UnitPriceNgweePerKWh(model.PriceNgweePerKWh),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapTransaction(model Transaction) (settlement.Transaction, error) {
	transactionID, err := settlement.NewTransactionID(model.TransactionID)
	if err != nil {
		return settlement.Transaction{}, err
	}
	transactionType, err := settlement.ParseTransactionType(model.Type)
	if err != nil {
		return settlement.Transaction{}, err
	}
	buyerID, err := parseOptionalUserID(model.BuyerID)
	if err != nil {
		return settlement.Transaction{}, err
	}
	sellerID, err := parseOptionalUserID(model.SellerID)
	if err != nil {
		return settlement.Transaction{}, err
	}
	userID, err := parseOptionalUserID(model.UserID)
	if err != nil {
		return settlement.Transaction{}, err
	}
	clusterID, err := parseOptionalClusterID(model.ClusterID)
	if err != nil {
		return settlement.Transaction{}, err
	}
	return settlement.Transaction{
		TransactionID:    transactionID,
		Type:             transactionType,
		BuyerID:          buyerID,
		SellerID:         sellerID,
		UserID:           userID,
		ClusterID:        clusterID,
		EnergyWh:         settlement.EnergyWattHours(model.EnergyWh),
		CurrencyNgwee:    settlement.CurrencyNgwee(model.CurrencyNgwee),
		CarbonSavedGrams: model.CarbonSavedGrams,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
	}, nil
}

func mapOffer(model Offer) (settlement.Offer, error) {
	offerID, err := settlement.NewOfferID(model.OfferID)
	if err != nil {
		return settlement.Offer{}, err
	}
	fromUserID, err := settlement.NewUserID(model.FromUserID)
	if err != nil {
		return settlement.Offer{}, err
	}
	toUserID, err := parseOptionalUserID(model.ToUserID)
	if err != nil {
		return settlement.Offer{}, err
	}
	tradeType, err := settlement.ParseTradeType(model.TradeType)
	if err != nil {
		return settlement.Offer{}, err
	}
	status, err := settlement.ParseOfferStatus(model.Status)
	if err != nil {
		return settlement.Offer{}, err
	}
	return settlement.Offer{
		OfferID:          offerID,
		FromUserID:       fromUserID,
		ToUserID:         toUserID,
		EnergyWh:         settlement.EnergyWattHours(model.EnergyWh),
		PricePerKWh:      settlement.UnitPriceNgweePerKWh(model.PriceNgweePerKWh),
		TotalNgwee:       settlement.CurrencyNgwee(model.TotalNgwee),
		TradeType:        tradeType,
		Status:           status,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
		ExpiresAtUnixUTC: model.ExpiresAt.Unix(),
	}, nil
}

func mapSchedule(model ScheduledTransaction) (settlement.ScheduledTransaction, error) {
	scheduleID, err := settlement.NewScheduleID(model.ScheduleID)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	transactionType, err := settlement.ParseTransactionType(model.Type)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	buyerID, err := parseOptionalUserID(model.BuyerID)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	sellerID, err := parseOptionalUserID(model.SellerID)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	clusterID, err := parseOptionalClusterID(model.ClusterID)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	status, err := settlement.ParseScheduleStatus(model.Status)
	if err != nil {
		return settlement.ScheduledTransaction{}, err
	}
	return settlement.ScheduledTransaction{
		ScheduleID:         scheduleID,
		Type:               transactionType,
		BuyerID:            buyerID,
		SellerID:           sellerID,
		ClusterID:          clusterID,
		EnergyWh:           settlement.EnergyWattHours(model.EnergyWh),
		EstimatedNgwee:     settlement.CurrencyNgwee(model.EstimatedNgwee),
		ScheduledAtUnixUTC: model.ScheduledAt.Unix(),
		Status:             status,
		ExecutedAtUnixUTC:  timeOrZero(model.ExecutedAt),
		FailureReason:      model.FailureReason,
		CreatedUnixUTC:     model.CreatedAt.Unix(),
	}, nil
}

func mapLedgerEntry(model LedgerEntry) (settlement.LedgerEntry, error) {
	userID, err := settlement.NewUserID(model.UserID)
	if err != nil {
		return settlement.LedgerEntry{}, err
	}
	entryType, err := settlement.ParseEntryType(model.Type)
	if err != nil {
		return settlement.LedgerEntry{}, err
	}
	reference, err := settlement.NewReference(model.Reference)
	if err != nil {
		return settlement.LedgerEntry{}, err
	}
	metadata, err := settlement.NewMetadataJSON(string(model.Metadata))
	if err != nil {
		return settlement.LedgerEntry{}, err
	}
	return settlement.LedgerEntry{
		EntryID:             model.EntryID,
		UserID:              userID,
		Type:                entryType,
		CurrencyDeltaNgwee:  settlement.CurrencyNgwee(model.CurrencyDeltaNgwee),
		EnergyDeltaWh:       settlement.EnergyWattHours(model.EnergyDeltaWh),
		CurrencyBeforeNgwee: settlement.CurrencyNgwee(model.CurrencyBeforeNgwee),
		CurrencyAfterNgwee:  settlement.CurrencyNgwee(model.CurrencyAfterNgwee),
		EnergyBeforeWh:      settlement.EnergyWattHours(model.EnergyBeforeWh),
		EnergyAfterWh:       settlement.EnergyWattHours(model.EnergyAfterWh),
		Reference:           reference,
		MetadataJSON:        metadata,
		CreatedUnixUTC:      model.CreatedAt.Unix(),
	}, nil
}

func mapMobileMoney(model MobileMoneyTransaction) (settlement.MobileMoneyTransaction, error) {
	reference, err := settlement.NewReference(model.Reference)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, err
	}
	idempotencyKey, err := settlement.NewIdempotencyKey(model.IdempotencyKey)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, err
	}
	userID, err := settlement.NewUserID(model.UserID)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, err
	}
	mobileMoneyType, err := settlement.ParseMobileMoneyType(model.Type)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, err
	}
	status, err := settlement.ParseMobileMoneyStatus(model.Status)
	if err != nil {
		return settlement.MobileMoneyTransaction{}, err
	}
	var webhookID *settlement.WebhookID
	if model.WebhookID != nil {
		parsed, parseErr := settlement.NewWebhookID(*model.WebhookID)
		if parseErr != nil {
			return settlement.MobileMoneyTransaction{}, parseErr
		}
		webhookID = &parsed
	}
	return settlement.MobileMoneyTransaction{
		Reference:          reference,
		IdempotencyKey:     idempotencyKey,
		WebhookID:          webhookID,
		UserID:             userID,
		Type:               mobileMoneyType,
		AmountNgwee:        settlement.CurrencyNgwee(model.AmountNgwee),
		Phone:              model.Phone,
		Status:             status,
		CreatedUnixUTC:     model.CreatedAt.Unix(),
		ConfirmedAtUnixUTC: timeOrZero(model.ConfirmedAt),
	}, nil
}

func optionalUserID(userID *settlement.UserID) *string {
	if userID == nil {
		return nil
	}
	value := userID.String()
	return &value
}

func optionalClusterID(clusterID *settlement.ClusterID) *string {
	if clusterID == nil {
		return nil
	}
	value := clusterID.String()
	return &value
}

func optionalWebhookID(webhookID *settlement.WebhookID) *string {
	if webhookID == nil {
		return nil
	}
	value := webhookID.String()
	return &value
}

func parseOptionalUserID(raw *string) (*settlement.UserID, error) {
	if raw == nil {
		return nil, nil
	}
	parsed, err := settlement.NewUserID(*raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalClusterID(raw *string) (*settlement.ClusterID, error) {
	if raw == nil {
		return nil, nil
	}
	parsed, err := settlement.NewClusterID(*raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func metadataColumn(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
