package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ZamGridLabs/settlement/pkg/settlement"
)

type walletStore struct {
	settlement.Store
	users map[settlement.UserID]settlement.User
}

func (store *walletStore) GetUser(_ context.Context, userID settlement.UserID) (settlement.User, error) {
	user, ok := store.users[userID]
	if !ok {
		return settlement.User{}, settlement.ErrUserNotFound
	}
	return user, nil
}

func (store *walletStore) ListLedgerEntries(_ context.Context, _ settlement.UserID, _ int) ([]settlement.LedgerEntry, error) {
	return nil, nil
}

func mintToken(test *testing.T, signingKey string, issuer string, subject string) string {
	test.Helper()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		test.Fatalf("sign token: %v", err)
	}
	return token
}

func getWallet(router *gin.Engine, bearer string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestAuthMiddlewareGuardsAPIRoutes(test *testing.T) {
	test.Parallel()
	userID, err := settlement.NewUserID("wallet-user")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	store := &walletStore{users: map[settlement.UserID]settlement.User{
		userID: {UserID: userID, Name: "wallet-user", BalanceNgwee: 2500, BalanceEnergy: 12000},
	}}
	router := newTestRouter(test, store)

	if recorder := getWallet(router, ""); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("missing token: expected 401, got %d", recorder.Code)
	}
	if recorder := getWallet(router, mintToken(test, "other-key", "settlementd", "wallet-user")); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("wrong key: expected 401, got %d", recorder.Code)
	}
	if recorder := getWallet(router, mintToken(test, "signing-key", "other-issuer", "wallet-user")); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("wrong issuer: expected 401, got %d", recorder.Code)
	}

	recorder := getWallet(router, mintToken(test, "signing-key", "settlementd", "wallet-user"))
	if recorder.Code != http.StatusOK {
		test.Fatalf("valid token: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Wallet struct {
			UserID       string `json:"user_id"`
			BalanceNgwee int64  `json:"balance_ngwee"`
		} `json:"wallet"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		test.Fatalf("decode response: %v", err)
	}
	if response.Wallet.UserID != "wallet-user" || response.Wallet.BalanceNgwee != 2500 {
		test.Fatalf("unexpected wallet response: %+v", response.Wallet)
	}
}

func TestTokenSubjectScopesTheWallet(test *testing.T) {
	test.Parallel()
	store := &walletStore{users: map[settlement.UserID]settlement.User{}}
	router := newTestRouter(test, store)

	recorder := getWallet(router, mintToken(test, "signing-key", "settlementd", "nobody"))
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("unknown subject: expected 404, got %d", recorder.Code)
	}
}
