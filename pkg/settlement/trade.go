package settlement

import (
	"context"
	"fmt"
)

// SettleTrade validates and executes an immediate two-party trade: buyer
// currency against seller energy. Both ledger applications and the
// transaction record commit together or not at all.
func (service *Service) SettleTrade(ctx context.Context, buyerID UserID, sellerID UserID, energy EnergyWattHours, unitPrice UnitPriceNgweePerKWh) (Transaction, error) {
	var transaction Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		settled, err := service.settleTradeTx(ctx, transactionStore, buyerID, sellerID, energy, unitPrice)
		if err != nil {
			return err
		}
		transaction = settled
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationSettleTrade,
		UserID:         buyerID,
		CounterpartyID: &sellerID,
		Reference:      transaction.TransactionID.String(),
		EnergyWh:       energy,
		CurrencyNgwee:  transaction.CurrencyNgwee,
		Error:          operationError,
	})
	return transaction, operationError
}

// SettleLease leases energy from a shared cluster. The client-stated cost
// must match the cluster rate within leasePriceToleranceNgwee; a larger gap
// is treated as price tampering and rejected.
func (service *Service) SettleLease(ctx context.Context, userID UserID, clusterID ClusterID, energy EnergyWattHours, paid CurrencyNgwee) (Transaction, error) {
	var transaction Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		settled, err := service.settleLeaseTx(ctx, transactionStore, userID, clusterID, energy, paid, TransactionLease)
		if err != nil {
			return err
		}
		transaction = settled
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationSettleLease,
		UserID:        userID,
		ClusterID:     &clusterID,
		Reference:     transaction.TransactionID.String(),
		EnergyWh:      energy,
		CurrencyNgwee: paid,
		Error:         operationError,
	})
	return transaction, operationError
}

// settleTradeTx runs the precondition chain and settlement inside an
// existing transaction. First failing precondition wins: self-trade, buyer
// exists, seller exists, buyer currency, seller energy.
func (service *Service) settleTradeTx(ctx context.Context, transactionStore Store, buyerID UserID, sellerID UserID, energy EnergyWattHours, unitPrice UnitPriceNgweePerKWh) (Transaction, error) {
	if buyerID == sellerID {
		return Transaction{}, ErrSelfTrade
	}
	if _, err := NewPositiveEnergyWattHours(energy.Int64()); err != nil {
		return Transaction{}, err
	}
	cost, err := tradeCost(energy, unitPrice)
	if err != nil {
		return Transaction{}, err
	}

	// Lock both parties in id order so concurrent trades over the same pair
	// cannot deadlock, then re-check balances under the locks.
	buyer, seller, err := lockTradingPair(ctx, transactionStore, buyerID, sellerID)
	if err != nil {
		return Transaction{}, err
	}
	if buyer.BalanceNgwee < cost {
		return Transaction{}, ShortfallError{
			Dimension: DimensionCurrency,
			Required:  cost.Int64(),
			Available: buyer.BalanceNgwee.Int64(),
		}
	}
	if seller.BalanceEnergy < energy {
		return Transaction{}, ShortfallError{
			Dimension: DimensionEnergy,
			Required:  energy.Int64(),
			Available: seller.BalanceEnergy.Int64(),
		}
	}

	transaction := Transaction{
		TransactionID:    newTransactionID(),
		Type:             TransactionTrade,
		BuyerID:          &buyerID,
		SellerID:         &sellerID,
		EnergyWh:         energy,
		CurrencyNgwee:    cost,
		CarbonSavedGrams: carbonSavedGrams(energy),
		CreatedUnixUTC:   service.nowFn(),
	}
	reference, err := NewReference(transaction.TransactionID.String())
	if err != nil {
		return Transaction{}, err
	}

	buyerMetadata, err := NewMetadataJSON(fmt.Sprintf(`{"role":"buyer","counterparty":%q}`, sellerID.String()))
	if err != nil {
		return Transaction{}, err
	}
	if _, err := service.applyDelta(ctx, transactionStore, buyerID, -cost, energy, reference, buyerMetadata); err != nil {
		return Transaction{}, err
	}
	sellerMetadata, err := NewMetadataJSON(fmt.Sprintf(`{"role":"seller","counterparty":%q}`, buyerID.String()))
	if err != nil {
		return Transaction{}, err
	}
	if _, err := service.applyDelta(ctx, transactionStore, sellerID, cost, -energy, reference, sellerMetadata); err != nil {
		return Transaction{}, err
	}

	if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// settleLeaseTx executes a cluster lease or purchase inside an existing
// transaction, decrementing the cluster's available energy.
func (service *Service) settleLeaseTx(ctx context.Context, transactionStore Store, userID UserID, clusterID ClusterID, energy EnergyWattHours, paid CurrencyNgwee, transactionType TransactionType) (Transaction, error) {
	if _, err := NewPositiveEnergyWattHours(energy.Int64()); err != nil {
		return Transaction{}, err
	}
	if _, err := NewPositiveCurrencyNgwee(paid.Int64()); err != nil {
		return Transaction{}, err
	}

	user, err := transactionStore.GetUserForUpdate(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	cluster, err := transactionStore.GetClusterForUpdate(ctx, clusterID)
	if err != nil {
		return Transaction{}, err
	}
	if cluster.AvailableWh < energy {
		return Transaction{}, fmt.Errorf("%w: required %d Wh, available %d Wh", ErrInsufficientAvailability, energy.Int64(), cluster.AvailableWh.Int64())
	}

	// Compare in price-grain units so the tolerance check never divides.
	expectedGrain := energy.Int64() * cluster.PricePerKWh.Int64()
	paidGrain := paid.Int64() * wattHoursPerKWh
	gap := paidGrain - expectedGrain
	if gap < 0 {
		gap = -gap
	}
	if gap > leasePriceToleranceNgwee*wattHoursPerKWh {
		return Transaction{}, fmt.Errorf("%w: stated %d ngwee, cluster rate implies %d ngwee", ErrPriceMismatch, paid.Int64(), leaseCost(energy, cluster.PricePerKWh).Int64())
	}
	if user.BalanceNgwee < paid {
		return Transaction{}, ShortfallError{
			Dimension: DimensionCurrency,
			Required:  paid.Int64(),
			Available: user.BalanceNgwee.Int64(),
		}
	}

	transaction := Transaction{
		TransactionID:    newTransactionID(),
		Type:             transactionType,
		UserID:           &userID,
		ClusterID:        &clusterID,
		EnergyWh:         energy,
		CurrencyNgwee:    paid,
		CarbonSavedGrams: carbonSavedGrams(energy),
		CreatedUnixUTC:   service.nowFn(),
	}
	reference, err := NewReference(transaction.TransactionID.String())
	if err != nil {
		return Transaction{}, err
	}
	metadata, err := NewMetadataJSON(fmt.Sprintf(`{"cluster":%q}`, clusterID.String()))
	if err != nil {
		return Transaction{}, err
	}
	if _, err := service.applyDelta(ctx, transactionStore, userID, -paid, energy, reference, metadata); err != nil {
		return Transaction{}, err
	}
	if err := transactionStore.UpdateClusterAvailability(ctx, clusterID, cluster.AvailableWh-energy); err != nil {
		return Transaction{}, err
	}
	if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// lockTradingPair acquires row locks on both parties in lexicographic id
// order and returns the locked snapshots keyed back to buyer and seller.
func lockTradingPair(ctx context.Context, transactionStore Store, buyerID UserID, sellerID UserID) (User, User, error) {
	firstID, secondID := buyerID, sellerID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}
	first, err := transactionStore.GetUserForUpdate(ctx, firstID)
	if err != nil {
		return User{}, User{}, lockErrorForParty(err, firstID, buyerID)
	}
	second, err := transactionStore.GetUserForUpdate(ctx, secondID)
	if err != nil {
		return User{}, User{}, lockErrorForParty(err, secondID, buyerID)
	}
	if firstID == buyerID {
		return first, second, nil
	}
	return second, first, nil
}

func lockErrorForParty(err error, failedID UserID, buyerID UserID) error {
	role := "seller"
	if failedID == buyerID {
		role = "buyer"
	}
	return fmt.Errorf("%s %s: %w", role, failedID.String(), err)
}
