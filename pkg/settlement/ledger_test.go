package settlement

import (
	"context"
	"errors"
	"testing"
)

func TestApplyBalanceDeltaRecordsExactFigures(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := seedUser(test, store, "delta-user", 100, 200)

	entry, err := service.ApplyBalanceDelta(context.Background(), userID, 500, 2000, mustReference(test, "grant-1"), mustMetadata(test, `{"action":"grant"}`))
	if err != nil {
		test.Fatalf("apply delta: %v", err)
	}

	if entry.Type != EntryCredit {
		test.Fatalf("expected credit entry, got %s", entry.Type)
	}
	if entry.CurrencyBeforeNgwee != 100 || entry.CurrencyAfterNgwee != 600 {
		test.Fatalf("unexpected currency figures: before %d, after %d", entry.CurrencyBeforeNgwee, entry.CurrencyAfterNgwee)
	}
	if entry.EnergyBeforeWh != 200 || entry.EnergyAfterWh != 2200 {
		test.Fatalf("unexpected energy figures: before %d, after %d", entry.EnergyBeforeWh, entry.EnergyAfterWh)
	}
	if entry.CreatedUnixUTC != 100 {
		test.Fatalf("expected entry stamped at clock time 100, got %d", entry.CreatedUnixUTC)
	}

	user := store.mustUser(test, userID)
	if user.BalanceNgwee != 600 || user.BalanceEnergy != 2200 {
		test.Fatalf("balances not updated: %d ngwee, %d Wh", user.BalanceNgwee, user.BalanceEnergy)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(store.entries))
	}
}

func TestApplyBalanceDeltaClassification(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := seedUser(test, store, "classify-user", 1000, 1000)
	reference := mustReference(test, "classify")
	metadata := mustMetadata(test, "{}")

	debit, err := service.ApplyBalanceDelta(context.Background(), userID, -100, 500, reference, metadata)
	if err != nil {
		test.Fatalf("apply delta: %v", err)
	}
	if debit.Type != EntryDebit {
		test.Fatalf("negative currency delta should classify as debit, got %s", debit.Type)
	}

	energyDebit, err := service.ApplyBalanceDelta(context.Background(), userID, 0, -500, reference, metadata)
	if err != nil {
		test.Fatalf("apply delta: %v", err)
	}
	if energyDebit.Type != EntryDebit {
		test.Fatalf("energy-only negative delta should classify as debit, got %s", energyDebit.Type)
	}
}

func TestApplyBalanceDeltaCurrencyShortfall(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := seedUser(test, store, "short-user", 40, 0)

	_, err := service.ApplyBalanceDelta(context.Background(), userID, -120, 0, mustReference(test, "short"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	var shortfall ShortfallError
	if !errors.As(err, &shortfall) {
		test.Fatalf("expected ShortfallError, got %T", err)
	}
	if shortfall.Dimension != DimensionCurrency || shortfall.Required != 120 || shortfall.Available != 40 {
		test.Fatalf("unexpected shortfall figures: %+v", shortfall)
	}

	if len(store.entries) != 0 {
		test.Fatalf("no entry may be appended on a rejected debit, got %d", len(store.entries))
	}
	if user := store.mustUser(test, userID); user.BalanceNgwee != 40 {
		test.Fatalf("balance must be untouched, got %d", user.BalanceNgwee)
	}
}

func TestApplyBalanceDeltaEnergyShortfall(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := seedUser(test, store, "energy-short", 0, 3000)

	_, err := service.ApplyBalanceDelta(context.Background(), userID, 0, -5000, mustReference(test, "short"), mustMetadata(test, "{}"))
	var shortfall ShortfallError
	if !errors.As(err, &shortfall) {
		test.Fatalf("expected ShortfallError, got %v", err)
	}
	if shortfall.Dimension != DimensionEnergy || shortfall.Required != 5000 || shortfall.Available != 3000 {
		test.Fatalf("unexpected shortfall figures: %+v", shortfall)
	}
}
