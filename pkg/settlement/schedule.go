package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SweepItemResult records what one sweep pass did with one due schedule.
type SweepItemResult struct {
	ScheduleID  ScheduleID
	Status      ScheduleStatus
	Reason      string
	Transaction *Transaction
}

// SweepReport summarizes one ExecuteDueSweep invocation.
type SweepReport struct {
	Due      int
	Executed int
	Failed   int
	Skipped  int
	Results  []SweepItemResult
}

// ScheduleTrade persists a future-dated two-party trade. The stored cost is
// an estimate from the stated price; execution re-validates everything and
// never trusts it.
func (service *Service) ScheduleTrade(ctx context.Context, buyerID UserID, sellerID UserID, energy EnergyWattHours, unitPrice UnitPriceNgweePerKWh, scheduledAtUnixUTC int64) (ScheduledTransaction, error) {
	var schedule ScheduledTransaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if buyerID == sellerID {
			return ErrSelfTrade
		}
		if err := service.checkScheduleTime(scheduledAtUnixUTC); err != nil {
			return err
		}
		if _, err := NewPositiveEnergyWattHours(energy.Int64()); err != nil {
			return err
		}
		estimated, err := tradeCost(energy, unitPrice)
		if err != nil {
			return err
		}
		if _, err := transactionStore.GetUser(ctx, buyerID); err != nil {
			return fmt.Errorf("buyer %s: %w", buyerID.String(), err)
		}
		if _, err := transactionStore.GetUser(ctx, sellerID); err != nil {
			return fmt.Errorf("seller %s: %w", sellerID.String(), err)
		}
		built, err := service.buildSchedule(TransactionTrade, &buyerID, &sellerID, nil, energy, estimated, scheduledAtUnixUTC)
		if err != nil {
			return err
		}
		schedule = built
		return transactionStore.InsertSchedule(ctx, schedule)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationScheduleTrade,
		UserID:         buyerID,
		CounterpartyID: &sellerID,
		Reference:      schedule.ScheduleID.String(),
		EnergyWh:       energy,
		CurrencyNgwee:  schedule.EstimatedNgwee,
		Error:          operationError,
	})
	return schedule, operationError
}

// SchedulePurchase persists a future-dated cluster purchase, estimating the
// cost from the current cluster rate.
func (service *Service) SchedulePurchase(ctx context.Context, buyerID UserID, clusterID ClusterID, energy EnergyWattHours, scheduledAtUnixUTC int64) (ScheduledTransaction, error) {
	var schedule ScheduledTransaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := service.checkScheduleTime(scheduledAtUnixUTC); err != nil {
			return err
		}
		if _, err := NewPositiveEnergyWattHours(energy.Int64()); err != nil {
			return err
		}
		if _, err := transactionStore.GetUser(ctx, buyerID); err != nil {
			return err
		}
		cluster, err := transactionStore.GetCluster(ctx, clusterID)
		if err != nil {
			return err
		}
		built, err := service.buildSchedule(TransactionPurchase, &buyerID, nil, &clusterID, energy, leaseCost(energy, cluster.PricePerKWh), scheduledAtUnixUTC)
		if err != nil {
			return err
		}
		schedule = built
		return transactionStore.InsertSchedule(ctx, schedule)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationSchedulePurchase,
		UserID:        buyerID,
		ClusterID:     &clusterID,
		Reference:     schedule.ScheduleID.String(),
		EnergyWh:      energy,
		CurrencyNgwee: schedule.EstimatedNgwee,
		Error:         operationError,
	})
	return schedule, operationError
}

// CancelSchedule cancels a pending schedule on behalf of one of its
// participants.
func (service *Service) CancelSchedule(ctx context.Context, scheduleID ScheduleID, requesterID UserID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		schedule, err := transactionStore.GetScheduleForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if !scheduleParticipant(schedule, requesterID) {
			return ErrForbidden
		}
		if schedule.Status != ScheduleStatusPending {
			return fmt.Errorf("%w: status %s", ErrScheduleNotPending, schedule.Status)
		}
		return transactionStore.UpdateScheduleStatus(ctx, scheduleID, ScheduleStatusPending, ScheduleStatusCancelled, 0, "")
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelSchedule,
		UserID:    requesterID,
		Reference: scheduleID.String(),
		Error:     operationError,
	})
	return operationError
}

// ExecuteDueSweep settles every pending schedule whose time has passed,
// re-validating against live state. Each item transitions exactly once:
// executed on success, failed with a reason otherwise. A repeat sweep with
// no new due items processes zero, because the due query filters strictly
// on pending status and terminal items never come back.
func (service *Service) ExecuteDueSweep(ctx context.Context) (SweepReport, error) {
	due, err := service.store.ListDueSchedules(ctx, service.nowFn())
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{Due: len(due)}

	for _, schedule := range due {
		result := service.executeDueSchedule(ctx, schedule)
		switch result.Status {
		case ScheduleStatusExecuted:
			report.Executed++
		case ScheduleStatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
		report.Results = append(report.Results, result)
	}

	service.logOperation(ctx, OperationLog{
		Operation: operationExecuteSweep,
		Reference: fmt.Sprintf("due=%d executed=%d failed=%d skipped=%d", report.Due, report.Executed, report.Failed, report.Skipped),
	})
	return report, nil
}

// executeDueSchedule settles one due item in its own transaction. The
// pending→executed transition commits atomically with the settlement; a
// domain failure is stamped failed in a follow-up transaction so the reason
// survives even though the settlement rolled back.
func (service *Service) executeDueSchedule(ctx context.Context, schedule ScheduledTransaction) SweepItemResult {
	result := SweepItemResult{ScheduleID: schedule.ScheduleID}

	settleErr := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetScheduleForUpdate(ctx, schedule.ScheduleID)
		if err != nil {
			return err
		}
		if current.Status != ScheduleStatusPending {
			// Another sweep got here first.
			result.Reason = "already processed"
			return nil
		}

		transaction, err := service.settleScheduleTx(ctx, transactionStore, current)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateScheduleStatus(ctx, schedule.ScheduleID, ScheduleStatusPending, ScheduleStatusExecuted, service.nowFn(), ""); err != nil {
			return err
		}
		result.Status = ScheduleStatusExecuted
		result.Transaction = &transaction
		return nil
	})
	if settleErr == nil {
		return result
	}

	result.Status = ScheduleStatusFailed
	result.Reason = settleErr.Error()
	markErr := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.UpdateScheduleStatus(ctx, schedule.ScheduleID, ScheduleStatusPending, ScheduleStatusFailed, service.nowFn(), settleErr.Error())
	})
	if markErr != nil {
		// Lost the race to another sweep; the item is terminal either way.
		result.Status = ""
		result.Reason = markErr.Error()
	}
	return result
}

func (service *Service) settleScheduleTx(ctx context.Context, transactionStore Store, schedule ScheduledTransaction) (Transaction, error) {
	switch schedule.Type {
	case TransactionTrade:
		if schedule.BuyerID == nil || schedule.SellerID == nil {
			return Transaction{}, fmt.Errorf("%w: trade schedule missing participants", ErrInvalidTransactionType)
		}
		unitPrice, err := scheduleUnitPrice(schedule)
		if err != nil {
			return Transaction{}, err
		}
		return service.settleTradeTx(ctx, transactionStore, *schedule.BuyerID, *schedule.SellerID, schedule.EnergyWh, unitPrice)
	case TransactionPurchase:
		if schedule.BuyerID == nil || schedule.ClusterID == nil {
			return Transaction{}, fmt.Errorf("%w: purchase schedule missing participants", ErrInvalidTransactionType)
		}
		cluster, err := transactionStore.GetClusterForUpdate(ctx, *schedule.ClusterID)
		if err != nil {
			return Transaction{}, err
		}
		return service.settleLeaseTx(ctx, transactionStore, *schedule.BuyerID, *schedule.ClusterID, schedule.EnergyWh, leaseCost(schedule.EnergyWh, cluster.PricePerKWh), TransactionPurchase)
	}
	return Transaction{}, fmt.Errorf("%w: %s", ErrInvalidTransactionType, schedule.Type)
}

// scheduleUnitPrice recovers the agreed per-kWh price from the estimate
// stored at scheduling time.
func scheduleUnitPrice(schedule ScheduledTransaction) (UnitPriceNgweePerKWh, error) {
	if schedule.EnergyWh == 0 {
		return 0, fmt.Errorf("%w: zero energy", ErrInvalidAmount)
	}
	product := schedule.EstimatedNgwee.Int64() * wattHoursPerKWh
	if product%schedule.EnergyWh.Int64() != 0 {
		return 0, fmt.Errorf("%w: estimate %d ngwee does not divide over %d Wh", ErrInvalidAmount, schedule.EstimatedNgwee.Int64(), schedule.EnergyWh.Int64())
	}
	return NewUnitPrice(product / schedule.EnergyWh.Int64())
}

func (service *Service) checkScheduleTime(scheduledAtUnixUTC int64) error {
	nowUnixUTC := service.nowFn()
	if scheduledAtUnixUTC <= nowUnixUTC {
		return fmt.Errorf("%w: %d is not in the future", ErrInvalidScheduleTime, scheduledAtUnixUTC)
	}
	if scheduledAtUnixUTC > nowUnixUTC+int64(scheduleHorizon.Seconds()) {
		return fmt.Errorf("%w: %d is more than 30 days ahead", ErrInvalidScheduleTime, scheduledAtUnixUTC)
	}
	return nil
}

func (service *Service) buildSchedule(transactionType TransactionType, buyerID *UserID, sellerID *UserID, clusterID *ClusterID, energy EnergyWattHours, estimated CurrencyNgwee, scheduledAtUnixUTC int64) (ScheduledTransaction, error) {
	scheduleID, err := NewScheduleID(uuid.NewString())
	if err != nil {
		return ScheduledTransaction{}, err
	}
	return ScheduledTransaction{
		ScheduleID:         scheduleID,
		Type:               transactionType,
		BuyerID:            buyerID,
		SellerID:           sellerID,
		ClusterID:          clusterID,
		EnergyWh:           energy,
		EstimatedNgwee:     estimated,
		ScheduledAtUnixUTC: scheduledAtUnixUTC,
		Status:             ScheduleStatusPending,
		CreatedUnixUTC:     service.nowFn(),
	}, nil
}

func scheduleParticipant(schedule ScheduledTransaction, userID UserID) bool {
	if schedule.BuyerID != nil && *schedule.BuyerID == userID {
		return true
	}
	if schedule.SellerID != nil && *schedule.SellerID == userID {
		return true
	}
	return false
}
