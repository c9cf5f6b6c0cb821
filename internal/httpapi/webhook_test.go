package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
)

const testWebhookSecret = "hook-secret"

// webhookStore implements the slice of the store the webhook path touches.
// Unimplemented methods panic through the embedded nil interface.
type webhookStore struct {
	settlement.Store
	users   map[settlement.UserID]settlement.User
	rows    map[settlement.Reference]settlement.MobileMoneyTransaction
	entries []settlement.LedgerEntry
}

func newWebhookStore() *webhookStore {
	return &webhookStore{
		users: make(map[settlement.UserID]settlement.User),
		rows:  make(map[settlement.Reference]settlement.MobileMoneyTransaction),
	}
}

func (store *webhookStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore settlement.Store) error) error {
	return fn(ctx, store)
}

func (store *webhookStore) GetUserForUpdate(_ context.Context, userID settlement.UserID) (settlement.User, error) {
	user, ok := store.users[userID]
	if !ok {
		return settlement.User{}, settlement.ErrUserNotFound
	}
	return user, nil
}

func (store *webhookStore) UpdateUserBalances(_ context.Context, userID settlement.UserID, currency settlement.CurrencyNgwee, energy settlement.EnergyWattHours) error {
	user, ok := store.users[userID]
	if !ok {
		return settlement.ErrUserNotFound
	}
	user.BalanceNgwee = currency
	user.BalanceEnergy = energy
	store.users[userID] = user
	return nil
}

func (store *webhookStore) AppendLedgerEntry(_ context.Context, entry settlement.LedgerEntry) error {
	store.entries = append(store.entries, entry)
	return nil
}

func (store *webhookStore) FindMobileMoneyByWebhookID(_ context.Context, webhookID settlement.WebhookID) (settlement.MobileMoneyTransaction, error) {
	for _, row := range store.rows {
		if row.WebhookID != nil && *row.WebhookID == webhookID {
			return row, nil
		}
	}
	return settlement.MobileMoneyTransaction{}, settlement.ErrMobileMoneyNotFound
}

func (store *webhookStore) GetMobileMoneyForUpdate(_ context.Context, reference settlement.Reference) (settlement.MobileMoneyTransaction, error) {
	row, ok := store.rows[reference]
	if !ok {
		return settlement.MobileMoneyTransaction{}, settlement.ErrMobileMoneyNotFound
	}
	return row, nil
}

func (store *webhookStore) ConfirmMobileMoney(_ context.Context, reference settlement.Reference, webhookID settlement.WebhookID, from, to settlement.MobileMoneyStatus, confirmedAtUnixUTC int64) error {
	for _, row := range store.rows {
		if row.WebhookID != nil && *row.WebhookID == webhookID {
			return settlement.ErrWebhookAlreadyProcessed
		}
	}
	row, ok := store.rows[reference]
	if !ok {
		return settlement.ErrMobileMoneyNotFound
	}
	if row.Status != from {
		return settlement.ErrMobileMoneyNotPending
	}
	row.Status = to
	row.WebhookID = &webhookID
	row.ConfirmedAtUnixUTC = confirmedAtUnixUTC
	store.rows[reference] = row
	return nil
}

func newTestRouter(test *testing.T, store settlement.Store) *gin.Engine {
	test.Helper()
	cfg := Config{
		JWTSigningKey:   "signing-key",
		WebhookSecret:   testWebhookSecret,
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
	}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("config: %v", err)
	}
	service, err := settlement.NewService(store, func() int64 { return 100 })
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	handler := &httpHandler{logger: zap.NewNop(), service: service, cfg: cfg}
	return setupRouter(cfg, handler)
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func seedPendingDeposit(test *testing.T, store *webhookStore, userRaw string, referenceRaw string, amount int64) {
	test.Helper()
	userID, err := settlement.NewUserID(userRaw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	reference, err := settlement.NewReference(referenceRaw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	key, err := settlement.NewIdempotencyKey(referenceRaw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	store.users[userID] = settlement.User{UserID: userID, Name: userRaw}
	store.rows[reference] = settlement.MobileMoneyTransaction{
		Reference:      reference,
		IdempotencyKey: key,
		UserID:         userID,
		Type:           settlement.MobileMoneyDeposit,
		AmountNgwee:    settlement.CurrencyNgwee(amount),
		Status:         settlement.MobileMoneyStatusPending,
	}
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/webhooks/momo", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if signature != "" {
		request.Header.Set(webhookSignatureHeader, signature)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestWebhookProcessesSignedDelivery(test *testing.T) {
	test.Parallel()
	store := newWebhookStore()
	seedPendingDeposit(test, store, "depositor", "momo-1", 2000)
	router := newTestRouter(test, store)

	body, _ := json.Marshal(webhookPayload{
		WebhookID:   "wh-1",
		Reference:   "momo-1",
		Status:      "completed",
		AmountNgwee: 2000,
	})
	recorder := postWebhook(router, body, signBody(body, testWebhookSecret))

	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		test.Fatalf("decode response: %v", err)
	}
	if response.Status != "processed" {
		test.Fatalf("expected processed, got %q", response.Status)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected one credit entry, got %d", len(store.entries))
	}
}

func TestWebhookRejectsBadSignature(test *testing.T) {
	test.Parallel()
	store := newWebhookStore()
	seedPendingDeposit(test, store, "depositor", "momo-1", 2000)
	router := newTestRouter(test, store)

	body, _ := json.Marshal(webhookPayload{
		WebhookID:   "wh-1",
		Reference:   "momo-1",
		Status:      "completed",
		AmountNgwee: 2000,
	})

	if recorder := postWebhook(router, body, ""); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("unsigned delivery: expected 401, got %d", recorder.Code)
	}
	if recorder := postWebhook(router, body, signBody(body, "wrong-secret")); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("wrong secret: expected 401, got %d", recorder.Code)
	}
	tampered := append(bytes.Clone(body), ' ')
	if recorder := postWebhook(router, tampered, signBody(body, testWebhookSecret)); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("tampered body: expected 401, got %d", recorder.Code)
	}
	if len(store.entries) != 0 {
		test.Fatalf("rejected deliveries must not touch the ledger, got %d entries", len(store.entries))
	}
}

func TestWebhookReplayAcknowledgedAsDuplicate(test *testing.T) {
	test.Parallel()
	store := newWebhookStore()
	seedPendingDeposit(test, store, "depositor", "momo-1", 2000)
	router := newTestRouter(test, store)

	body, _ := json.Marshal(webhookPayload{
		WebhookID:   "wh-replayed",
		Reference:   "momo-1",
		Status:      "completed",
		AmountNgwee: 2000,
	})
	signature := signBody(body, testWebhookSecret)

	if recorder := postWebhook(router, body, signature); recorder.Code != http.StatusOK {
		test.Fatalf("first delivery: expected 200, got %d", recorder.Code)
	}
	recorder := postWebhook(router, body, signature)
	if recorder.Code != http.StatusOK {
		test.Fatalf("replay: expected 200, got %d", recorder.Code)
	}
	var response struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		test.Fatalf("decode response: %v", err)
	}
	if response.Status != "duplicate" || response.Reference != "momo-1" {
		test.Fatalf("unexpected replay response: %+v", response)
	}
	if len(store.entries) != 1 {
		test.Fatalf("replay must not credit again, got %d entries", len(store.entries))
	}
}
