package settlement

import "time"

const (
	// Conversion grain between watt-hours and the per-kWh price unit.
	wattHoursPerKWh = 1000

	// carbonFactorGramsPerKWh is the grid displacement factor used for the
	// carbon_saved figure on every settled transaction.
	carbonFactorGramsPerKWh = 800

	// offerTTL is how long a created offer stays acceptable.
	offerTTL = 24 * time.Hour

	// scheduleHorizon bounds how far ahead a transaction may be scheduled.
	scheduleHorizon = 30 * 24 * time.Hour

	// Batch caps bound the cost of one bulk request.
	maxBulkTrades    = 50
	maxBulkPurchases = 30

	// leasePriceToleranceNgwee absorbs sub-ngwee rounding between a client's
	// stated lease cost and the cluster rate; anything larger is rejected.
	leasePriceToleranceNgwee = 1

	operationApplyDelta         = "apply_delta"
	operationSettleTrade        = "settle_trade"
	operationSettleLease        = "settle_lease"
	operationCreateOffer        = "create_offer"
	operationAcceptOffer        = "accept_offer"
	operationCancelOffer        = "cancel_offer"
	operationBulkTrades         = "bulk_trades"
	operationBulkPurchases      = "bulk_purchases"
	operationScheduleTrade      = "schedule_trade"
	operationSchedulePurchase   = "schedule_purchase"
	operationCancelSchedule     = "cancel_schedule"
	operationExecuteSweep       = "execute_sweep"
	operationInitiateDeposit    = "initiate_deposit"
	operationInitiateWithdrawal = "initiate_withdrawal"
	operationConfirmMobileMoney = "confirm_mobile_money"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
