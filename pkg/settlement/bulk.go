package settlement

import (
	"context"
	"fmt"
)

// BulkTradeItem is one trade request inside a bulk batch.
type BulkTradeItem struct {
	BuyerID   UserID
	SellerID  UserID
	EnergyWh  EnergyWattHours
	UnitPrice UnitPriceNgweePerKWh
}

// BulkPurchaseItem is one cluster purchase request inside a bulk batch. The
// charge is computed from the live cluster rate at execution.
type BulkPurchaseItem struct {
	UserID    UserID
	ClusterID ClusterID
	EnergyWh  EnergyWattHours
}

// BulkItemResult pairs a settled transaction with its batch index.
type BulkItemResult struct {
	Index       int
	Transaction Transaction
}

// BulkItemError reports one rejected or failed item by batch index.
type BulkItemError struct {
	Index  int
	Reason string
}

// BulkReport summarizes a two-phase bulk execution.
type BulkReport struct {
	Total      int
	Successful int
	Failed     int
	Results    []BulkItemResult
	Errors     []BulkItemError
}

// ExecuteBulkTrades runs the two-phase batch algorithm over up to 50 trades.
// Phase 1 validates every item against the pre-batch snapshot; items failing
// there are reported by index and skipped. Phase 2 settles the rest
// sequentially against live state, so a later item sees earlier items'
// balance changes; per-item settlement failures are recorded, never allowed
// to abort the remaining batch.
func (service *Service) ExecuteBulkTrades(ctx context.Context, items []BulkTradeItem) (BulkReport, error) {
	if len(items) > maxBulkTrades {
		return BulkReport{}, fmt.Errorf("%w: %d trades, limit %d", ErrBatchTooLarge, len(items), maxBulkTrades)
	}
	report := BulkReport{Total: len(items)}
	snapshot := newBatchSnapshot(service.store)

	rejected := make(map[int]bool, len(items))
	for index, item := range items {
		if reason := service.validateBulkTrade(ctx, snapshot, item); reason != "" {
			rejected[index] = true
			report.Errors = append(report.Errors, BulkItemError{Index: index, Reason: reason})
		}
	}

	for index, item := range items {
		if rejected[index] {
			continue
		}
		var transaction Transaction
		err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			settled, settleErr := service.settleTradeTx(ctx, transactionStore, item.BuyerID, item.SellerID, item.EnergyWh, item.UnitPrice)
			if settleErr != nil {
				return settleErr
			}
			transaction = settled
			return nil
		})
		if err != nil {
			report.Errors = append(report.Errors, BulkItemError{Index: index, Reason: err.Error()})
			continue
		}
		report.Results = append(report.Results, BulkItemResult{Index: index, Transaction: transaction})
	}

	report.Successful = len(report.Results)
	report.Failed = len(report.Errors)
	service.logOperation(ctx, OperationLog{
		Operation: operationBulkTrades,
		Reference: fmt.Sprintf("total=%d ok=%d failed=%d", report.Total, report.Successful, report.Failed),
	})
	return report, nil
}

// ExecuteBulkPurchases runs the same two-phase algorithm over up to 30
// cluster purchases.
func (service *Service) ExecuteBulkPurchases(ctx context.Context, items []BulkPurchaseItem) (BulkReport, error) {
	if len(items) > maxBulkPurchases {
		return BulkReport{}, fmt.Errorf("%w: %d purchases, limit %d", ErrBatchTooLarge, len(items), maxBulkPurchases)
	}
	report := BulkReport{Total: len(items)}
	snapshot := newBatchSnapshot(service.store)

	rejected := make(map[int]bool, len(items))
	for index, item := range items {
		if reason := service.validateBulkPurchase(ctx, snapshot, item); reason != "" {
			rejected[index] = true
			report.Errors = append(report.Errors, BulkItemError{Index: index, Reason: reason})
		}
	}

	for index, item := range items {
		if rejected[index] {
			continue
		}
		var transaction Transaction
		err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			cluster, clusterErr := transactionStore.GetClusterForUpdate(ctx, item.ClusterID)
			if clusterErr != nil {
				return clusterErr
			}
			settled, settleErr := service.settleLeaseTx(ctx, transactionStore, item.UserID, item.ClusterID, item.EnergyWh, leaseCost(item.EnergyWh, cluster.PricePerKWh), TransactionPurchase)
			if settleErr != nil {
				return settleErr
			}
			transaction = settled
			return nil
		})
		if err != nil {
			report.Errors = append(report.Errors, BulkItemError{Index: index, Reason: err.Error()})
			continue
		}
		report.Results = append(report.Results, BulkItemResult{Index: index, Transaction: transaction})
	}

	report.Successful = len(report.Results)
	report.Failed = len(report.Errors)
	service.logOperation(ctx, OperationLog{
		Operation: operationBulkPurchases,
		Reference: fmt.Sprintf("total=%d ok=%d failed=%d", report.Total, report.Successful, report.Failed),
	})
	return report, nil
}

func (service *Service) validateBulkTrade(ctx context.Context, snapshot *batchSnapshot, item BulkTradeItem) string {
	if item.BuyerID == item.SellerID {
		return ErrSelfTrade.Error()
	}
	if _, err := NewPositiveEnergyWattHours(item.EnergyWh.Int64()); err != nil {
		return err.Error()
	}
	cost, err := tradeCost(item.EnergyWh, item.UnitPrice)
	if err != nil {
		return err.Error()
	}
	buyer, err := snapshot.user(ctx, item.BuyerID)
	if err != nil {
		return fmt.Sprintf("buyer %s: %v", item.BuyerID.String(), err)
	}
	seller, err := snapshot.user(ctx, item.SellerID)
	if err != nil {
		return fmt.Sprintf("seller %s: %v", item.SellerID.String(), err)
	}
	if buyer.BalanceNgwee < cost {
		return ShortfallError{Dimension: DimensionCurrency, Required: cost.Int64(), Available: buyer.BalanceNgwee.Int64()}.Error()
	}
	if seller.BalanceEnergy < item.EnergyWh {
		return ShortfallError{Dimension: DimensionEnergy, Required: item.EnergyWh.Int64(), Available: seller.BalanceEnergy.Int64()}.Error()
	}
	return ""
}

func (service *Service) validateBulkPurchase(ctx context.Context, snapshot *batchSnapshot, item BulkPurchaseItem) string {
	if _, err := NewPositiveEnergyWattHours(item.EnergyWh.Int64()); err != nil {
		return err.Error()
	}
	user, err := snapshot.user(ctx, item.UserID)
	if err != nil {
		return fmt.Sprintf("user %s: %v", item.UserID.String(), err)
	}
	cluster, err := snapshot.cluster(ctx, item.ClusterID)
	if err != nil {
		return fmt.Sprintf("cluster %s: %v", item.ClusterID.String(), err)
	}
	if cluster.AvailableWh < item.EnergyWh {
		return fmt.Sprintf("insufficient cluster availability: required %d Wh, available %d Wh", item.EnergyWh.Int64(), cluster.AvailableWh.Int64())
	}
	cost := leaseCost(item.EnergyWh, cluster.PricePerKWh)
	if user.BalanceNgwee < cost {
		return ShortfallError{Dimension: DimensionCurrency, Required: cost.Int64(), Available: user.BalanceNgwee.Int64()}.Error()
	}
	return ""
}

// batchSnapshot caches pre-batch reads so phase-1 validation of every item
// sees the same state, with no partial credit from other items in the batch.
type batchSnapshot struct {
	store    Store
	users    map[UserID]User
	clusters map[ClusterID]Cluster
}

func newBatchSnapshot(store Store) *batchSnapshot {
	return &batchSnapshot{
		store:    store,
		users:    make(map[UserID]User),
		clusters: make(map[ClusterID]Cluster),
	}
}

func (snapshot *batchSnapshot) user(ctx context.Context, userID UserID) (User, error) {
	if cached, ok := snapshot.users[userID]; ok {
		return cached, nil
	}
	user, err := snapshot.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	snapshot.users[userID] = user
	return user, nil
}

func (snapshot *batchSnapshot) cluster(ctx context.Context, clusterID ClusterID) (Cluster, error) {
	if cached, ok := snapshot.clusters[clusterID]; ok {
		return cached, nil
	}
	cluster, err := snapshot.store.GetCluster(ctx, clusterID)
	if err != nil {
		return Cluster{}, err
	}
	snapshot.clusters[clusterID] = cluster
	return cluster, nil
}
