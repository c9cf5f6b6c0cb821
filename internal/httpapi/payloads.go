package httpapi

import (
	"encoding/json"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
)

type walletResponse struct {
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	BalanceNgwee int64          `json:"balance_ngwee"`
	BalanceWh    int64          `json:"balance_wh"`
	Entries      []entryPayload `json:"entries"`
}

type entryPayload struct {
	EntryID             string          `json:"entry_id"`
	Type                string          `json:"type"`
	CurrencyDeltaNgwee  int64           `json:"currency_delta_ngwee"`
	EnergyDeltaWh       int64           `json:"energy_delta_wh"`
	CurrencyBeforeNgwee int64           `json:"currency_before_ngwee"`
	CurrencyAfterNgwee  int64           `json:"currency_after_ngwee"`
	EnergyBeforeWh      int64           `json:"energy_before_wh"`
	EnergyAfterWh       int64           `json:"energy_after_wh"`
	Reference           string          `json:"reference"`
	Metadata            json.RawMessage `json:"metadata"`
	CreatedUnixUTC      int64           `json:"created_unix_utc"`
}

type clusterPayload struct {
	ClusterID        string `json:"cluster_id"`
	Name             string `json:"name"`
	CapacityWh       int64  `json:"capacity_wh"`
	AvailableWh      int64  `json:"available_wh"`
	PriceNgweePerKWh int64  `json:"price_ngwee_per_kwh"`
}

type transactionPayload struct {
	TransactionID    string  `json:"transaction_id"`
	Type             string  `json:"type"`
	BuyerID          *string `json:"buyer_id,omitempty"`
	SellerID         *string `json:"seller_id,omitempty"`
	UserID           *string `json:"user_id,omitempty"`
	ClusterID        *string `json:"cluster_id,omitempty"`
	EnergyWh         int64   `json:"energy_wh"`
	CurrencyNgwee    int64   `json:"currency_ngwee"`
	CarbonSavedGrams int64   `json:"carbon_saved_grams"`
	CreatedUnixUTC   int64   `json:"created_unix_utc"`
}

type offerPayload struct {
	OfferID          string  `json:"offer_id"`
	FromUserID       string  `json:"from_user_id"`
	ToUserID         *string `json:"to_user_id,omitempty"`
	EnergyWh         int64   `json:"energy_wh"`
	PriceNgweePerKWh int64   `json:"price_ngwee_per_kwh"`
	TotalNgwee       int64   `json:"total_ngwee"`
	TradeType        string  `json:"trade_type"`
	Status           string  `json:"status"`
	CreatedUnixUTC   int64   `json:"created_unix_utc"`
	ExpiresUnixUTC   int64   `json:"expires_at_unix_utc"`
}

type schedulePayload struct {
	ScheduleID       string  `json:"schedule_id"`
	Type             string  `json:"type"`
	BuyerID          *string `json:"buyer_id,omitempty"`
	SellerID         *string `json:"seller_id,omitempty"`
	ClusterID        *string `json:"cluster_id,omitempty"`
	EnergyWh         int64   `json:"energy_wh"`
	EstimatedNgwee   int64   `json:"estimated_ngwee"`
	ScheduledUnixUTC int64   `json:"scheduled_at_unix_utc"`
	Status           string  `json:"status"`
	FailureReason    string  `json:"failure_reason,omitempty"`
}

type mobileMoneyPayload struct {
	Reference      string `json:"reference"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	AmountNgwee    int64  `json:"amount_ngwee"`
	Phone          string `json:"phone"`
	Status         string `json:"status"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type bulkReportPayload struct {
	Total      int                      `json:"total"`
	Successful int                      `json:"successful"`
	Failed     int                      `json:"failed"`
	Results    []bulkItemResultPayload  `json:"results"`
	Errors     []bulkItemFailurePayload `json:"errors"`
}

type bulkItemResultPayload struct {
	Index       int                `json:"index"`
	Transaction transactionPayload `json:"transaction"`
}

type bulkItemFailurePayload struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type sweepReportPayload struct {
	Due      int                      `json:"due"`
	Executed int                      `json:"executed"`
	Failed   int                      `json:"failed"`
	Skipped  int                      `json:"skipped"`
	Results  []sweepItemResultPayload `json:"results"`
}

type sweepItemResultPayload struct {
	ScheduleID  string              `json:"schedule_id"`
	Status      string              `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	Transaction *transactionPayload `json:"transaction,omitempty"`
}

func toClusterPayload(cluster settlement.Cluster) clusterPayload {
	return clusterPayload{
		ClusterID:        cluster.ClusterID.String(),
		Name:             cluster.Name,
		CapacityWh:       cluster.CapacityWh.Int64(),
		AvailableWh:      cluster.AvailableWh.Int64(),
		PriceNgweePerKWh: cluster.PricePerKWh.Int64(),
	}
}

func toEntryPayload(entry settlement.LedgerEntry) entryPayload {
	return entryPayload{
		EntryID:             entry.EntryID,
		Type:                entry.Type.String(),
		CurrencyDeltaNgwee:  entry.CurrencyDeltaNgwee.Int64(),
		EnergyDeltaWh:       entry.EnergyDeltaWh.Int64(),
		CurrencyBeforeNgwee: entry.CurrencyBeforeNgwee.Int64(),
		CurrencyAfterNgwee:  entry.CurrencyAfterNgwee.Int64(),
		EnergyBeforeWh:      entry.EnergyBeforeWh.Int64(),
		EnergyAfterWh:       entry.EnergyAfterWh.Int64(),
		Reference:           entry.Reference.String(),
		Metadata:            json.RawMessage(entry.MetadataJSON.String()),
		CreatedUnixUTC:      entry.CreatedUnixUTC,
	}
}

func toTransactionPayload(transaction settlement.Transaction) transactionPayload {
	return transactionPayload{
		TransactionID:    transaction.TransactionID.String(),
		Type:             transaction.Type.String(),
		BuyerID:          optionalUserIDString(transaction.BuyerID),
		SellerID:         optionalUserIDString(transaction.SellerID),
		UserID:           optionalUserIDString(transaction.UserID),
		ClusterID:        optionalClusterIDString(transaction.ClusterID),
		EnergyWh:         transaction.EnergyWh.Int64(),
		CurrencyNgwee:    transaction.CurrencyNgwee.Int64(),
		CarbonSavedGrams: transaction.CarbonSavedGrams,
		CreatedUnixUTC:   transaction.CreatedUnixUTC,
	}
}

func toOfferPayload(offer settlement.Offer) offerPayload {
	return offerPayload{
		OfferID:          offer.OfferID.String(),
		FromUserID:       offer.FromUserID.String(),
		ToUserID:         optionalUserIDString(offer.ToUserID),
		EnergyWh:         offer.EnergyWh.Int64(),
		PriceNgweePerKWh: offer.PricePerKWh.Int64(),
		TotalNgwee:       offer.TotalNgwee.Int64(),
		TradeType:        offer.TradeType.String(),
		Status:           offer.Status.String(),
		CreatedUnixUTC:   offer.CreatedUnixUTC,
		ExpiresUnixUTC:   offer.ExpiresAtUnixUTC,
	}
}

func toSchedulePayload(schedule settlement.ScheduledTransaction) schedulePayload {
	return schedulePayload{
		ScheduleID:       schedule.ScheduleID.String(),
		Type:             schedule.Type.String(),
		BuyerID:          optionalUserIDString(schedule.BuyerID),
		SellerID:         optionalUserIDString(schedule.SellerID),
		ClusterID:        optionalClusterIDString(schedule.ClusterID),
		EnergyWh:         schedule.EnergyWh.Int64(),
		EstimatedNgwee:   schedule.EstimatedNgwee.Int64(),
		ScheduledUnixUTC: schedule.ScheduledAtUnixUTC,
		Status:           schedule.Status.String(),
		FailureReason:    schedule.FailureReason,
	}
}

func toMobileMoneyPayload(row settlement.MobileMoneyTransaction) mobileMoneyPayload {
	return mobileMoneyPayload{
		Reference:      row.Reference.String(),
		UserID:         row.UserID.String(),
		Type:           row.Type.String(),
		AmountNgwee:    row.AmountNgwee.Int64(),
		Phone:          row.Phone,
		Status:         row.Status.String(),
		CreatedUnixUTC: row.CreatedUnixUTC,
	}
}

func toBulkReportPayload(report settlement.BulkReport) bulkReportPayload {
	results := make([]bulkItemResultPayload, 0, len(report.Results))
	for _, result := range report.Results {
		results = append(results, bulkItemResultPayload{
			Index:       result.Index,
			Transaction: toTransactionPayload(result.Transaction),
		})
	}
	failures := make([]bulkItemFailurePayload, 0, len(report.Errors))
	for _, failure := range report.Errors {
		failures = append(failures, bulkItemFailurePayload{
			Index:  failure.Index,
			Reason: failure.Reason,
		})
	}
	return bulkReportPayload{
		Total:      report.Total,
		Successful: report.Successful,
		Failed:     report.Failed,
		Results:    results,
		Errors:     failures,
	}
}

func toSweepReportPayload(report settlement.SweepReport) sweepReportPayload {
	results := make([]sweepItemResultPayload, 0, len(report.Results))
	for _, result := range report.Results {
		var transaction *transactionPayload
		if result.Transaction != nil {
			payload := toTransactionPayload(*result.Transaction)
			transaction = &payload
		}
		results = append(results, sweepItemResultPayload{
			ScheduleID:  result.ScheduleID.String(),
			Status:      result.Status.String(),
			Reason:      result.Reason,
			Transaction: transaction,
		})
	}
	return sweepReportPayload{
		Due:      report.Due,
		Executed: report.Executed,
		Failed:   report.Failed,
		Skipped:  report.Skipped,
		Results:  results,
	}
}

func optionalUserIDString(userID *settlement.UserID) *string {
	if userID == nil {
		return nil
	}
	value := userID.String()
	return &value
}

func optionalClusterIDString(clusterID *settlement.ClusterID) *string {
	if clusterID == nil {
		return nil
	}
	value := clusterID.String()
	return &value
}
