package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the settlement domain logic over a Store. Every balance
// mutation in the system flows through its ledger methods.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// ListClusters returns the current cluster state.
func (service *Service) ListClusters(ctx context.Context) ([]Cluster, error) {
	return service.store.ListClusters(ctx)
}

// Wallet returns a user's balances together with recent ledger entries.
func (service *Service) Wallet(ctx context.Context, userID UserID, entryLimit int) (User, []LedgerEntry, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, nil, err
	}
	entries, err := service.store.ListLedgerEntries(ctx, userID, entryLimit)
	if err != nil {
		return User{}, nil, err
	}
	return user, entries, nil
}

// ListTransactions returns a user's settled transactions, newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	return service.store.ListTransactionsForUser(ctx, userID, limit)
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

// tradeCost converts energy at a per-kWh price into ngwee. The product must
// land on a whole ngwee; sub-ngwee remainders are rejected rather than
// rounded so no value appears or vanishes in conversion.
func tradeCost(energy EnergyWattHours, price UnitPriceNgweePerKWh) (CurrencyNgwee, error) {
	product := energy.Int64() * price.Int64()
	if product%wattHoursPerKWh != 0 {
		return 0, fmt.Errorf("%w: %d Wh at %d ngwee/kWh is not a whole ngwee", ErrInvalidAmount, energy.Int64(), price.Int64())
	}
	return CurrencyNgwee(product / wattHoursPerKWh), nil
}

// leaseCost is tradeCost rounded half-up, used where the sweep computes a
// cluster charge itself instead of validating a client-stated one.
func leaseCost(energy EnergyWattHours, price UnitPriceNgweePerKWh) CurrencyNgwee {
	product := energy.Int64() * price.Int64()
	return CurrencyNgwee((product + wattHoursPerKWh/2) / wattHoursPerKWh)
}

func carbonSavedGrams(energy EnergyWattHours) int64 {
	return energy.Int64() * carbonFactorGramsPerKWh / wattHoursPerKWh
}

func newTransactionID() TransactionID {
	id, _ := NewTransactionID(uuid.NewString())
	return id
}

func newReference(prefix string) Reference {
	reference, _ := NewReference(prefix + "-" + uuid.NewString())
	return reference
}
