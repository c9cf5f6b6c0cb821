package settlement

import (
	"context"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsSettledTrade(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service, err := NewService(store, func() int64 { return 42 }, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	buyerID := seedUser(test, store, "buyer", 5000, 0)
	sellerID := seedUser(test, store, "seller", 0, 30000)

	if _, err := service.SettleTrade(context.Background(), buyerID, sellerID, mustPositiveEnergy(test, 10000), mustUnitPrice(test, 120)); err != nil {
		test.Fatalf("settle trade: %v", err)
	}

	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationSettleTrade || entry.UserID != buyerID {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.CounterpartyID == nil || *entry.CounterpartyID != sellerID {
		test.Fatalf("log entry must name the counterparty")
	}
	if entry.CurrencyNgwee != 1200 || entry.EnergyWh != 10000 {
		test.Fatalf("unexpected log figures: %d ngwee, %d Wh", entry.CurrencyNgwee, entry.EnergyWh)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service, err := NewService(store, func() int64 { return 42 }, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	userID := seedUser(test, store, "solo", 5000, 5000)

	if _, err := service.SettleTrade(context.Background(), userID, userID, mustPositiveEnergy(test, 1000), mustUnitPrice(test, 100)); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}
