package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const webhookSignatureHeader = "X-Momo-Signature"

type webhookPayload struct {
	WebhookID   string `json:"webhook_id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountNgwee int64  `json:"amount_ngwee"`
}

// handleMobileMoneyWebhook processes one provider delivery. The signature
// is checked against the raw body before anything else; an unsigned or
// tampered delivery never reaches the idempotency guard.
func (handler *httpHandler) handleMobileMoneyWebhook(ctx *gin.Context) {
	rawBody, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
		return
	}
	if !verifySignature(rawBody, ctx.GetHeader(webhookSignatureHeader), []byte(handler.cfg.WebhookSecret)) {
		handler.logger.Warn("webhook signature rejected", zap.String("remote", ctx.ClientIP()))
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_signature", "signature verification failed"))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	webhookID, err := settlement.NewWebhookID(payload.WebhookID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	reference, err := settlement.NewReference(payload.Reference)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	outcome, err := settlement.ParseMobileMoneyStatus(payload.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	amount, err := settlement.NewPositiveCurrencyNgwee(payload.AmountNgwee)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	decision, err := handler.service.ConfirmMobileMoney(requestCtx, webhookID, reference, outcome, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !decision.Admitted {
		// Replays acknowledge with 200 so the provider stops retrying.
		ctx.JSON(http.StatusOK, gin.H{
			"status":    "duplicate",
			"reference": decision.ExistingReference.String(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":       "processed",
		"mobile_money": toMobileMoneyPayload(decision.Transaction),
	})
}

func verifySignature(rawBody []byte, signatureHex string, secret []byte) bool {
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}
