package settlement

import (
	"context"
	"errors"
	"testing"
)

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 1 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}

func TestTradeCostConvertsWholeNgwee(test *testing.T) {
	test.Parallel()
	cost, err := tradeCost(mustPositiveEnergy(test, 10000), mustUnitPrice(test, 120))
	if err != nil {
		test.Fatalf("trade cost: %v", err)
	}
	if cost != 1200 {
		test.Fatalf("expected 1200 ngwee for 10 kWh at 120 ngwee/kWh, got %d", cost)
	}
}

func TestTradeCostRejectsSubNgweeRemainder(test *testing.T) {
	test.Parallel()
	_, err := tradeCost(mustPositiveEnergy(test, 1), mustUnitPrice(test, 150))
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for sub-ngwee product, got %v", err)
	}
}

func TestLeaseCostRoundsHalfUp(test *testing.T) {
	test.Parallel()
	cases := []struct {
		energy EnergyWattHours
		price  UnitPriceNgweePerKWh
		want   CurrencyNgwee
	}{
		{energy: 10000, price: 150, want: 1500},
		{energy: 3333, price: 150, want: 500},
		{energy: 3, price: 150, want: 0},
		{energy: 7, price: 150, want: 1},
	}
	for _, testCase := range cases {
		got := leaseCost(testCase.energy, testCase.price)
		if got != testCase.want {
			test.Fatalf("lease cost of %d Wh at %d: expected %d, got %d", testCase.energy, testCase.price, testCase.want, got)
		}
	}
}

func TestCarbonSavedGrams(test *testing.T) {
	test.Parallel()
	if got := carbonSavedGrams(10000); got != 8000 {
		test.Fatalf("expected 8000 g for 10 kWh, got %d", got)
	}
	if got := carbonSavedGrams(500); got != 400 {
		test.Fatalf("expected 400 g for 500 Wh, got %d", got)
	}
}

func TestWalletReturnsBalancesAndEntries(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := seedUser(test, store, "wallet-user", 2500, 12000)

	if _, err := service.ApplyBalanceDelta(context.Background(), userID, 500, 0, mustReference(test, "topup-1"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("apply delta: %v", err)
	}

	user, entries, err := service.Wallet(context.Background(), userID, 10)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	if user.BalanceNgwee != 3000 || user.BalanceEnergy != 12000 {
		test.Fatalf("unexpected balances: %d ngwee, %d Wh", user.BalanceNgwee, user.BalanceEnergy)
	}
	if len(entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
}

func TestWalletUnknownUser(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	_, _, err := service.Wallet(context.Background(), mustUserID(test, "nobody"), 10)
	if !errors.Is(err, ErrUserNotFound) {
		test.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListTransactionsFiltersByParticipant(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	buyerID := seedUser(test, store, "buyer", 5000, 0)
	sellerID := seedUser(test, store, "seller", 0, 30000)
	bystanderID := seedUser(test, store, "bystander", 0, 0)

	if _, err := service.SettleTrade(context.Background(), buyerID, sellerID, mustPositiveEnergy(test, 10000), mustUnitPrice(test, 120)); err != nil {
		test.Fatalf("settle trade: %v", err)
	}

	forBuyer, err := service.ListTransactions(context.Background(), buyerID, 50)
	if err != nil {
		test.Fatalf("list transactions: %v", err)
	}
	if len(forBuyer) != 1 {
		test.Fatalf("expected 1 transaction for buyer, got %d", len(forBuyer))
	}
	forBystander, err := service.ListTransactions(context.Background(), bystanderID, 50)
	if err != nil {
		test.Fatalf("list transactions: %v", err)
	}
	if len(forBystander) != 0 {
		test.Fatalf("expected no transactions for bystander, got %d", len(forBystander))
	}
}
