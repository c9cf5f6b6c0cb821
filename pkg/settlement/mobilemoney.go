package settlement

import (
	"context"
	"errors"
	"fmt"
)

// WebhookDecision is the idempotency guard's verdict on one delivery.
type WebhookDecision struct {
	Admitted          bool
	ExistingReference Reference
	Transaction       MobileMoneyTransaction
	LedgerEntry       *LedgerEntry
}

// InitiateDeposit opens a pending mobile-money deposit. The insert is an
// atomic insert-or-reject on the idempotency key: a retried initiation gets
// the existing row back untouched instead of a second pending deposit.
func (service *Service) InitiateDeposit(ctx context.Context, userID UserID, amount CurrencyNgwee, phone string, idempotencyKey IdempotencyKey) (MobileMoneyTransaction, error) {
	row, operationError := service.initiateMobileMoney(ctx, userID, MobileMoneyDeposit, amount, phone, idempotencyKey)
	service.logOperation(ctx, OperationLog{
		Operation:     operationInitiateDeposit,
		UserID:        userID,
		Reference:     row.Reference.String(),
		CurrencyNgwee: amount,
		Error:         operationError,
	})
	return row, operationError
}

// InitiateWithdrawal opens a pending mobile-money withdrawal and debits the
// user's currency balance provisionally in the same transaction. A failed
// confirmation later refunds the debit exactly once.
func (service *Service) InitiateWithdrawal(ctx context.Context, userID UserID, amount CurrencyNgwee, phone string, idempotencyKey IdempotencyKey) (MobileMoneyTransaction, error) {
	row, operationError := service.initiateMobileMoney(ctx, userID, MobileMoneyWithdrawal, amount, phone, idempotencyKey)
	service.logOperation(ctx, OperationLog{
		Operation:     operationInitiateWithdrawal,
		UserID:        userID,
		Reference:     row.Reference.String(),
		CurrencyNgwee: amount,
		Error:         operationError,
	})
	return row, operationError
}

func (service *Service) initiateMobileMoney(ctx context.Context, userID UserID, mobileMoneyType MobileMoneyType, amount CurrencyNgwee, phone string, idempotencyKey IdempotencyKey) (MobileMoneyTransaction, error) {
	var row MobileMoneyTransaction
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := NewPositiveCurrencyNgwee(amount.Int64()); err != nil {
			return err
		}
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		row = MobileMoneyTransaction{
			Reference:      newReference("momo"),
			IdempotencyKey: idempotencyKey,
			UserID:         userID,
			Type:           mobileMoneyType,
			AmountNgwee:    amount,
			Phone:          phone,
			Status:         MobileMoneyStatusPending,
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertMobileMoney(ctx, row); err != nil {
			return err
		}
		if mobileMoneyType == MobileMoneyWithdrawal {
			metadata, err := NewMetadataJSON(`{"action":"withdrawal_hold"}`)
			if err != nil {
				return err
			}
			if _, err := service.applyDelta(ctx, transactionStore, userID, -amount, 0, row.Reference, metadata); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		existing, lookupErr := service.store.FindMobileMoneyByIdempotencyKey(ctx, idempotencyKey)
		if lookupErr != nil {
			return MobileMoneyTransaction{}, lookupErr
		}
		return existing, nil
	}
	if err != nil {
		return MobileMoneyTransaction{}, err
	}
	return row, nil
}

// ConfirmMobileMoney is the webhook idempotency guard. A webhook id already
// on record means the provider is retrying delivery: the guard reports
// admit=false and nothing touches the ledger. Only the first admission
// transitions the row and applies the ledger effect, exactly once.
//
// Callers must verify the delivery's signature before invoking the guard.
func (service *Service) ConfirmMobileMoney(ctx context.Context, webhookID WebhookID, reference Reference, outcome MobileMoneyStatus, amount CurrencyNgwee) (WebhookDecision, error) {
	var decision WebhookDecision
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if outcome != MobileMoneyStatusCompleted && outcome != MobileMoneyStatusFailed {
			return fmt.Errorf("%w: confirmation outcome %q", ErrInvalidMobileMoneyStatus, outcome)
		}

		if existing, err := transactionStore.FindMobileMoneyByWebhookID(ctx, webhookID); err == nil {
			decision = WebhookDecision{Admitted: false, ExistingReference: existing.Reference, Transaction: existing}
			return nil
		} else if !errors.Is(err, ErrMobileMoneyNotFound) {
			return err
		}

		row, err := transactionStore.GetMobileMoneyForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if row.Status != MobileMoneyStatusPending {
			return fmt.Errorf("%w: status %s", ErrMobileMoneyNotPending, row.Status)
		}
		if outcome == MobileMoneyStatusCompleted && amount != row.AmountNgwee {
			return fmt.Errorf("%w: confirmed %d ngwee, initiated %d ngwee", ErrAmountMismatch, amount.Int64(), row.AmountNgwee.Int64())
		}

		confirmedAtUnixUTC := service.nowFn()
		if err := transactionStore.ConfirmMobileMoney(ctx, reference, webhookID, MobileMoneyStatusPending, outcome, confirmedAtUnixUTC); err != nil {
			// A concurrent delivery of the same webhook id hit the unique
			// index first; treat this delivery as the retry it is.
			if errors.Is(err, ErrWebhookAlreadyProcessed) {
				decision = WebhookDecision{Admitted: false, ExistingReference: reference, Transaction: row}
				return nil
			}
			return err
		}

		entry, err := service.applyConfirmationEffect(ctx, transactionStore, row, outcome)
		if err != nil {
			return err
		}
		row.Status = outcome
		row.WebhookID = &webhookID
		row.ConfirmedAtUnixUTC = confirmedAtUnixUTC
		decision = WebhookDecision{Admitted: true, ExistingReference: reference, Transaction: row, LedgerEntry: entry}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationConfirmMobileMoney,
		UserID:        decision.Transaction.UserID,
		Reference:     reference.String(),
		CurrencyNgwee: amount,
		Error:         operationError,
	})
	return decision, operationError
}

// applyConfirmationEffect maps a first-admission confirmation to its single
// ledger effect: completed deposits credit, failed withdrawals refund the
// provisional hold, everything else is a pure status change.
func (service *Service) applyConfirmationEffect(ctx context.Context, transactionStore Store, row MobileMoneyTransaction, outcome MobileMoneyStatus) (*LedgerEntry, error) {
	switch {
	case row.Type == MobileMoneyDeposit && outcome == MobileMoneyStatusCompleted:
		metadata, err := NewMetadataJSON(`{"action":"deposit_confirmed"}`)
		if err != nil {
			return nil, err
		}
		entry, err := service.applyDelta(ctx, transactionStore, row.UserID, row.AmountNgwee, 0, row.Reference, metadata)
		if err != nil {
			return nil, err
		}
		return &entry, nil
	case row.Type == MobileMoneyWithdrawal && outcome == MobileMoneyStatusFailed:
		metadata, err := NewMetadataJSON(`{"action":"withdrawal_refund"}`)
		if err != nil {
			return nil, err
		}
		entry, err := service.applyDelta(ctx, transactionStore, row.UserID, row.AmountNgwee, 0, row.Reference, metadata)
		if err != nil {
			return nil, err
		}
		return &entry, nil
	}
	return nil, nil
}
