package httpapi

import (
	"context"
	"net/http"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
	"github.com/gin-gonic/gin"
)

type tradeRequest struct {
	SellerID         string `json:"seller_id"`
	EnergyWh         int64  `json:"energy_wh"`
	PriceNgweePerKWh int64  `json:"price_ngwee_per_kwh"`
}

type leaseRequest struct {
	ClusterID   string `json:"cluster_id"`
	EnergyWh    int64  `json:"energy_wh"`
	AmountNgwee int64  `json:"amount_ngwee"`
}

type createOfferRequest struct {
	EnergyWh         int64   `json:"energy_wh"`
	PriceNgweePerKWh int64   `json:"price_ngwee_per_kwh"`
	TradeType        string  `json:"trade_type"`
	ToUserID         *string `json:"to_user_id"`
}

type bulkTradeRequest struct {
	Items []bulkTradeItemPayload `json:"items"`
}

type bulkTradeItemPayload struct {
	BuyerID          string `json:"buyer_id"`
	SellerID         string `json:"seller_id"`
	EnergyWh         int64  `json:"energy_wh"`
	PriceNgweePerKWh int64  `json:"price_ngwee_per_kwh"`
}

type bulkPurchaseRequest struct {
	Items []bulkPurchaseItemPayload `json:"items"`
}

type bulkPurchaseItemPayload struct {
	UserID    string `json:"user_id"`
	ClusterID string `json:"cluster_id"`
	EnergyWh  int64  `json:"energy_wh"`
}

type scheduleTradeRequest struct {
	SellerID         string `json:"seller_id"`
	EnergyWh         int64  `json:"energy_wh"`
	PriceNgweePerKWh int64  `json:"price_ngwee_per_kwh"`
	ScheduledUnixUTC int64  `json:"scheduled_at_unix_utc"`
}

type schedulePurchaseRequest struct {
	ClusterID        string `json:"cluster_id"`
	EnergyWh         int64  `json:"energy_wh"`
	ScheduledUnixUTC int64  `json:"scheduled_at_unix_utc"`
}

type mobileMoneyRequest struct {
	AmountNgwee    int64  `json:"amount_ngwee"`
	Phone          string `json:"phone"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleListClusters(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	clusters, err := handler.service.ListClusters(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]clusterPayload, 0, len(clusters))
	for _, cluster := range clusters {
		payload = append(payload, toClusterPayload(cluster))
	}
	ctx.JSON(http.StatusOK, gin.H{"clusters": payload})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, entries, err := handler.service.Wallet(requestCtx, userID, WalletHistoryLimit())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entryPayloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		entryPayloads = append(entryPayloads, toEntryPayload(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletResponse{
		UserID:       user.UserID.String(),
		Name:         user.Name,
		BalanceNgwee: user.BalanceNgwee.Int64(),
		BalanceWh:    user.BalanceEnergy.Int64(),
		Entries:      entryPayloads,
	}})
}

func (handler *httpHandler) handleListTransactions(ctx *gin.Context) {
	userID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transactions, err := handler.service.ListTransactions(requestCtx, userID, TransactionPageLimit())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payload = append(payload, toTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payload})
}

// handleTrade settles an immediate trade with the authenticated user as
// buyer.
func (handler *httpHandler) handleTrade(ctx *gin.Context) {
	buyerID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request tradeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	sellerID, err := settlement.NewUserID(request.SellerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	energy, err := settlement.NewPositiveEnergyWattHours(request.EnergyWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	unitPrice, err := settlement.NewUnitPrice(request.PriceNgweePerKWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.SettleTrade(requestCtx, buyerID, sellerID, energy, unitPrice)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": toTransactionPayload(transaction)})
}

func (handler *httpHandler) handleLease(ctx *gin.Context) {
	userID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request leaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	clusterID, err := settlement.NewClusterID(request.ClusterID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	energy, err := settlement.NewPositiveEnergyWattHours(request.EnergyWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	paid, err := settlement.NewPositiveCurrencyNgwee(request.AmountNgwee)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.SettleLease(requestCtx, userID, clusterID, energy, paid)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": toTransactionPayload(transaction)})
}

func (handler *httpHandler) handleCreateOffer(ctx *gin.Context) {
	fromUserID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request createOfferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	energy, err := settlement.NewPositiveEnergyWattHours(request.EnergyWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	unitPrice, err := settlement.NewUnitPrice(request.PriceNgweePerKWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	tradeType, err := settlement.ParseTradeType(request.TradeType)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var toUserID *settlement.UserID
	if request.ToUserID != nil {
		parsed, parseErr := settlement.NewUserID(*request.ToUserID)
		if parseErr != nil {
			handler.respondError(ctx, parseErr)
			return
		}
		toUserID = &parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	offer, err := handler.service.CreateOffer(requestCtx, fromUserID, energy, unitPrice, tradeType, toUserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"offer": toOfferPayload(offer)})
}

func (handler *httpHandler) handleListOffers(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	offers, err := handler.service.ListOpenOffers(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]offerPayload, 0, len(offers))
	for _, offer := range offers {
		payload = append(payload, toOfferPayload(offer))
	}
	ctx.JSON(http.StatusOK, gin.H{"offers": payload})
}

func (handler *httpHandler) handleAcceptOffer(ctx *gin.Context) {
	acceptingUserID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	offerID, err := settlement.NewOfferID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.AcceptOffer(requestCtx, offerID, acceptingUserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": toTransactionPayload(transaction)})
}

func (handler *httpHandler) handleCancelOffer(ctx *gin.Context) {
	requesterID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	offerID, err := settlement.NewOfferID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.CancelOffer(requestCtx, offerID, requesterID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (handler *httpHandler) handleBulkTrades(ctx *gin.Context) {
	var request bulkTradeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	items := make([]settlement.BulkTradeItem, 0, len(request.Items))
	for _, item := range request.Items {
		buyerID, err := settlement.NewUserID(item.BuyerID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		sellerID, err := settlement.NewUserID(item.SellerID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		energy, err := settlement.NewPositiveEnergyWattHours(item.EnergyWh)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		unitPrice, err := settlement.NewUnitPrice(item.PriceNgweePerKWh)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		items = append(items, settlement.BulkTradeItem{
			BuyerID:   buyerID,
			SellerID:  sellerID,
			EnergyWh:  energy,
			UnitPrice: unitPrice,
		})
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.ExecuteBulkTrades(requestCtx, items)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": toBulkReportPayload(report)})
}

func (handler *httpHandler) handleBulkPurchases(ctx *gin.Context) {
	var request bulkPurchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	items := make([]settlement.BulkPurchaseItem, 0, len(request.Items))
	for _, item := range request.Items {
		userID, err := settlement.NewUserID(item.UserID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		clusterID, err := settlement.NewClusterID(item.ClusterID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		energy, err := settlement.NewPositiveEnergyWattHours(item.EnergyWh)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		items = append(items, settlement.BulkPurchaseItem{
			UserID:    userID,
			ClusterID: clusterID,
			EnergyWh:  energy,
		})
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.ExecuteBulkPurchases(requestCtx, items)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": toBulkReportPayload(report)})
}

func (handler *httpHandler) handleScheduleTrade(ctx *gin.Context) {
	buyerID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request scheduleTradeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	sellerID, err := settlement.NewUserID(request.SellerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	energy, err := settlement.NewPositiveEnergyWattHours(request.EnergyWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	unitPrice, err := settlement.NewUnitPrice(request.PriceNgweePerKWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	schedule, err := handler.service.ScheduleTrade(requestCtx, buyerID, sellerID, energy, unitPrice, request.ScheduledUnixUTC)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"schedule": toSchedulePayload(schedule)})
}

func (handler *httpHandler) handleSchedulePurchase(ctx *gin.Context) {
	buyerID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request schedulePurchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	clusterID, err := settlement.NewClusterID(request.ClusterID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	energy, err := settlement.NewPositiveEnergyWattHours(request.EnergyWh)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	schedule, err := handler.service.SchedulePurchase(requestCtx, buyerID, clusterID, energy, request.ScheduledUnixUTC)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"schedule": toSchedulePayload(schedule)})
}

func (handler *httpHandler) handleCancelSchedule(ctx *gin.Context) {
	requesterID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	scheduleID, err := settlement.NewScheduleID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.CancelSchedule(requestCtx, scheduleID, requesterID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (handler *httpHandler) handleExecuteSweep(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.ExecuteDueSweep(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": toSweepReportPayload(report)})
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	handler.handleMobileMoneyInitiation(ctx, handler.service.InitiateDeposit)
}

func (handler *httpHandler) handleWithdrawal(ctx *gin.Context) {
	handler.handleMobileMoneyInitiation(ctx, handler.service.InitiateWithdrawal)
}

func (handler *httpHandler) handleMobileMoneyInitiation(ctx *gin.Context, initiate func(context.Context, settlement.UserID, settlement.CurrencyNgwee, string, settlement.IdempotencyKey) (settlement.MobileMoneyTransaction, error)) {
	userID, err := settlement.NewUserID(authenticatedUser(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request mobileMoneyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	amount, err := settlement.NewPositiveCurrencyNgwee(request.AmountNgwee)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	idempotencyKey, err := settlement.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	row, err := initiate(requestCtx, userID, amount, request.Phone, idempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"mobile_money": toMobileMoneyPayload(row)})
}
