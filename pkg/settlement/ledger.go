package settlement

import "context"

// ApplyBalanceDelta applies a signed currency and energy delta to one user
// and appends exactly one audit entry. This is the narrow waist every
// balance mutation passes through; callers pre-validate, the ledger
// re-checks as a last guard. Nothing is appended on failure.
func (service *Service) ApplyBalanceDelta(ctx context.Context, userID UserID, currencyDelta CurrencyNgwee, energyDelta EnergyWattHours, reference Reference, metadata MetadataJSON) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		appended, err := service.applyDelta(ctx, transactionStore, userID, currencyDelta, energyDelta, reference, metadata)
		if err != nil {
			return err
		}
		entry = appended
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationApplyDelta,
		UserID:        userID,
		Reference:     reference.String(),
		EnergyWh:      energyDelta,
		CurrencyNgwee: currencyDelta,
		Error:         operationError,
	})
	return entry, operationError
}

// applyDelta is the in-transaction form used by every settlement path. The
// user row is locked for the duration of the enclosing transaction, so the
// before/after figures on the entry are exact.
func (service *Service) applyDelta(ctx context.Context, transactionStore Store, userID UserID, currencyDelta CurrencyNgwee, energyDelta EnergyWattHours, reference Reference, metadata MetadataJSON) (LedgerEntry, error) {
	user, err := transactionStore.GetUserForUpdate(ctx, userID)
	if err != nil {
		return LedgerEntry{}, err
	}

	currencyAfter := user.BalanceNgwee + currencyDelta
	if currencyAfter < 0 {
		return LedgerEntry{}, ShortfallError{
			Dimension: DimensionCurrency,
			Required:  -currencyDelta.Int64(),
			Available: user.BalanceNgwee.Int64(),
		}
	}
	energyAfter := user.BalanceEnergy + energyDelta
	if energyAfter < 0 {
		return LedgerEntry{}, ShortfallError{
			Dimension: DimensionEnergy,
			Required:  -energyDelta.Int64(),
			Available: user.BalanceEnergy.Int64(),
		}
	}

	entry := LedgerEntry{
		UserID:              userID,
		Type:                classifyDelta(currencyDelta, energyDelta),
		CurrencyDeltaNgwee:  currencyDelta,
		EnergyDeltaWh:       energyDelta,
		CurrencyBeforeNgwee: user.BalanceNgwee,
		CurrencyAfterNgwee:  currencyAfter,
		EnergyBeforeWh:      user.BalanceEnergy,
		EnergyAfterWh:       energyAfter,
		Reference:           reference,
		MetadataJSON:        metadata,
		CreatedUnixUTC:      service.nowFn(),
	}

	if err := transactionStore.UpdateUserBalances(ctx, userID, currencyAfter, energyAfter); err != nil {
		return LedgerEntry{}, err
	}
	if err := transactionStore.AppendLedgerEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// classifyDelta derives the entry type from the currency delta, falling back
// to the energy delta for energy-only movements.
func classifyDelta(currencyDelta CurrencyNgwee, energyDelta EnergyWattHours) EntryType {
	if currencyDelta != 0 {
		if currencyDelta > 0 {
			return EntryCredit
		}
		return EntryDebit
	}
	if energyDelta >= 0 {
		return EntryCredit
	}
	return EntryDebit
}
