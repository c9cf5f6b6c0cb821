package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run boots the HTTP façade and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, service *settlement.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("settlement api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The provider callback authenticates with an HMAC signature, not a
	// bearer token, so it lives outside the /api group.
	router.POST("/webhooks/momo", handler.handleMobileMoneyWebhook)

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(cfg.JWTSigningKey), cfg.JWTIssuer))

	api.GET("/clusters", handler.handleListClusters)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/transactions", handler.handleListTransactions)

	api.POST("/trade", handler.handleTrade)
	api.POST("/lease", handler.handleLease)

	api.POST("/trade/offers", handler.handleCreateOffer)
	api.GET("/trade/offers", handler.handleListOffers)
	api.POST("/trade/offers/:id/accept", handler.handleAcceptOffer)
	api.DELETE("/trade/offers/:id", handler.handleCancelOffer)

	api.POST("/trade/bulk/trade", handler.handleBulkTrades)
	api.POST("/trade/bulk/purchase", handler.handleBulkPurchases)

	api.POST("/schedule/trade", handler.handleScheduleTrade)
	api.POST("/schedule/purchase", handler.handleSchedulePurchase)
	api.DELETE("/schedule/:id", handler.handleCancelSchedule)
	api.POST("/schedule/execute", handler.handleExecuteSweep)

	api.POST("/momo/deposit", handler.handleDeposit)
	api.POST("/momo/withdraw", handler.handleWithdrawal)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *settlement.Service
	cfg     Config
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 502 so callers can tell business rejections from
// infrastructure trouble.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, settlement.ErrInsufficientBalance),
		errors.Is(err, settlement.ErrInsufficientAvailability):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("insufficient_balance", err.Error()))
	case errors.Is(err, settlement.ErrUserNotFound),
		errors.Is(err, settlement.ErrClusterNotFound),
		errors.Is(err, settlement.ErrOfferNotFound),
		errors.Is(err, settlement.ErrScheduleNotFound),
		errors.Is(err, settlement.ErrMobileMoneyNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, settlement.ErrForbidden):
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", err.Error()))
	case errors.Is(err, settlement.ErrOfferNotPending),
		errors.Is(err, settlement.ErrOfferExpired),
		errors.Is(err, settlement.ErrScheduleNotPending),
		errors.Is(err, settlement.ErrMobileMoneyNotPending),
		errors.Is(err, settlement.ErrDuplicateIdempotencyKey),
		errors.Is(err, settlement.ErrWebhookAlreadyProcessed):
		ctx.JSON(http.StatusConflict, errorResponse("conflicting_state", err.Error()))
	case errors.Is(err, settlement.ErrSelfTrade),
		errors.Is(err, settlement.ErrPriceMismatch),
		errors.Is(err, settlement.ErrAmountMismatch),
		errors.Is(err, settlement.ErrInvalidScheduleTime),
		errors.Is(err, settlement.ErrBatchTooLarge),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrInvalidUserID),
		errors.Is(err, settlement.ErrInvalidClusterID),
		errors.Is(err, settlement.ErrInvalidOfferID),
		errors.Is(err, settlement.ErrInvalidScheduleID),
		errors.Is(err, settlement.ErrInvalidIdempotencyKey),
		errors.Is(err, settlement.ErrInvalidReference),
		errors.Is(err, settlement.ErrInvalidWebhookID),
		errors.Is(err, settlement.ErrInvalidTradeType),
		errors.Is(err, settlement.ErrInvalidMobileMoneyStatus):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_input", err.Error()))
	default:
		handler.logger.Error("settlement operation failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("internal", "operation failed"))
	}
}
