package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/afrikoin/likeledger/internal/auth"
	"github.com/afrikoin/likeledger/internal/store/gormstore"
	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/credits"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

const (
	testSigningKey = "server-test-key"
	testIssuer     = "likeledger-test"
)

type stubProvider struct {
	confirmation credits.PaymentConfirmation
	err          error
}

func (provider *stubProvider) ConfirmSession(_ context.Context, _ string) (credits.PaymentConfirmation, error) {
	return provider.confirmation, provider.err
}

type testHarness struct {
	router *gin.Engine
}

func newTestHarness(test *testing.T, provider credits.PaymentProvider) *testHarness {
	test.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}

	clock := func() int64 { return 1700000000 }

	engine, err := credits.NewService(gormstore.NewCredits(db), clock)
	if err != nil {
		test.Fatalf("engine init: %v", err)
	}
	catalog, err := credits.NewCatalog([]credits.Pack{
		{ProductID: "com.afrikoin.likes_1000", Name: "Pack Starter", Credits: 1000, PriceCents: 999},
	})
	if err != nil {
		test.Fatalf("catalog init: %v", err)
	}
	verifier, err := credits.NewVerifier(engine, catalog, provider, credits.WithCurrency("eur"))
	if err != nil {
		test.Fatalf("verifier init: %v", err)
	}
	fees, err := wallet.NewFeeSchedule(map[wallet.MethodType]int64{
		wallet.MethodBank:        200,
		wallet.MethodMobileMoney: 100,
	})
	if err != nil {
		test.Fatalf("fees init: %v", err)
	}
	coordinator, err := wallet.NewCoordinator(gormstore.NewWallet(db), fees, clock)
	if err != nil {
		test.Fatalf("coordinator init: %v", err)
	}
	recorder, err := audit.NewRecorder(gormstore.NewAudit(db), clock)
	if err != nil {
		test.Fatalf("recorder init: %v", err)
	}
	validator, err := auth.NewValidator([]byte(testSigningKey), testIssuer)
	if err != nil {
		test.Fatalf("validator init: %v", err)
	}
	server, err := New(zap.NewNop(), engine, verifier, catalog, coordinator, recorder, validator, Config{
		ListenAddr:     ":0",
		AllowedOrigins: []string{"http://localhost"},
	})
	if err != nil {
		test.Fatalf("server init: %v", err)
	}
	return &testHarness{router: server.Router()}
}

func bearerFor(test *testing.T, subject string, roles ...string) string {
	test.Helper()
	token, err := auth.GenerateToken([]byte(testSigningKey), testIssuer, subject, roles, time.Hour)
	if err != nil {
		test.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func (harness *testHarness) do(test *testing.T, method string, path string, body any, authorization string) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(test *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	test.Helper()
	payload := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		test.Fatalf("decode body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthzIsPublic(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	recorder := harness.do(test, http.MethodGet, "/healthz", nil, "")
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestAPIRequiresAuthentication(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	recorder := harness.do(test, http.MethodGet, "/api/credits", nil, "")
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestGetCreditsSeedsFreeGrant(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	recorder := harness.do(test, http.MethodGet, "/api/credits", nil, bearerFor(test, "fresh-user"))
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(test, recorder)
	if payload["balance"].(float64) != 10 {
		test.Fatalf("expected free grant 10, got %v", payload["balance"])
	}
}

func TestUseLikesDebitsAndRejectsOverdraft(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	authorization := bearerFor(test, "spender")

	recorder := harness.do(test, http.MethodPost, "/api/likes/use", map[string]any{
		"amount":         4,
		"target_post_id": "post-1",
	}, authorization)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(test, recorder)
	if payload["remaining_balance"].(float64) != 6 {
		test.Fatalf("expected remaining 6, got %v", payload["remaining_balance"])
	}

	recorder = harness.do(test, http.MethodPost, "/api/likes/use", map[string]any{"amount": 7}, authorization)
	if recorder.Code != http.StatusPaymentRequired {
		test.Fatalf("expected 402, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload = decodeBody(test, recorder)
	errorPayload := payload["error"].(map[string]any)
	if errorPayload["code"] != "insufficient_credits" {
		test.Fatalf("unexpected error code: %v", errorPayload["code"])
	}
	if errorPayload["current_balance"].(float64) != 6 || errorPayload["needed"].(float64) != 7 {
		test.Fatalf("unexpected shortfall payload: %v", errorPayload)
	}
}

func TestUseLikesRejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	recorder := harness.do(test, http.MethodPost, "/api/likes/use", map[string]any{"amount": 0}, bearerFor(test, "zero-user"))
	if recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestVerifyPurchaseFlowAndReplay(test *testing.T) {
	test.Parallel()
	provider := &stubProvider{confirmation: credits.PaymentConfirmation{Paid: true, AmountCents: 999, Currency: "eur"}}
	harness := newTestHarness(test, provider)
	authorization := bearerFor(test, "buyer")
	body := map[string]any{"purchase_token": "cs_test_1", "product_id": "com.afrikoin.likes_1000"}

	recorder := harness.do(test, http.MethodPost, "/api/purchases/verify", body, authorization)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(test, recorder)
	if payload["credits_added"].(float64) != 1000 || payload["new_balance"].(float64) != 1010 {
		test.Fatalf("unexpected verify payload: %v", payload)
	}
	if payload["already_processed"].(bool) {
		test.Fatalf("first verification must not be a replay")
	}

	recorder = harness.do(test, http.MethodPost, "/api/purchases/verify", body, authorization)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 on replay, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload = decodeBody(test, recorder)
	if !payload["already_processed"].(bool) {
		test.Fatalf("expected replay flag")
	}
	if payload["new_balance"].(float64) != 1010 {
		test.Fatalf("replay must not change balance, got %v", payload["new_balance"])
	}
}

func TestVerifyPurchaseUnknownProduct(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{confirmation: credits.PaymentConfirmation{Paid: true}})
	recorder := harness.do(test, http.MethodPost, "/api/purchases/verify", map[string]any{
		"purchase_token": "cs_test_2",
		"product_id":     "com.afrikoin.likes_404",
	}, bearerFor(test, "buyer-2"))
	if recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400, got %d", recorder.Code)
	}
	errorPayload := decodeBody(test, recorder)["error"].(map[string]any)
	if errorPayload["code"] != "invalid_product" {
		test.Fatalf("unexpected error code: %v", errorPayload["code"])
	}
}

func TestDepositRequiresOperatorRole(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	body := map[string]any{"user_id": "earner", "amount_cents": 5000}

	recorder := harness.do(test, http.MethodPost, "/api/wallet/deposits", body, bearerFor(test, "earner"))
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 without role, got %d", recorder.Code)
	}

	recorder = harness.do(test, http.MethodPost, "/api/wallet/deposits", body, bearerFor(test, "ops", auth.RoleOperator))
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 with role, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(test, recorder)
	if payload["available_cents"].(float64) != 5000 {
		test.Fatalf("unexpected balance: %v", payload)
	}
}

func TestWithdrawalLifecycleOverHTTP(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	userAuth := bearerFor(test, "payee")
	operatorAuth := bearerFor(test, "ops", auth.RoleOperator)

	recorder := harness.do(test, http.MethodPost, "/api/wallet/deposits", map[string]any{
		"user_id":      "payee",
		"amount_cents": 5000,
	}, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("deposit: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(test, http.MethodPost, "/api/payout-methods", map[string]any{
		"method_type": "bank",
		"provider":    "acme-bank",
		"label":       "Main",
	}, userAuth)
	if recorder.Code != http.StatusCreated {
		test.Fatalf("register method: %d %s", recorder.Code, recorder.Body.String())
	}
	methodID := decodeBody(test, recorder)["method_id"].(string)

	recorder = harness.do(test, http.MethodPost, "/api/withdrawals", map[string]any{
		"amount_cents": 3000,
		"method_id":    methodID,
	}, userAuth)
	if recorder.Code != http.StatusCreated {
		test.Fatalf("request withdrawal: %d %s", recorder.Code, recorder.Body.String())
	}
	withdrawal := decodeBody(test, recorder)
	if withdrawal["fee_cents"].(float64) != 60 || withdrawal["net_amount_cents"].(float64) != 2940 {
		test.Fatalf("unexpected fee math: %v", withdrawal)
	}
	requestID := withdrawal["request_id"].(string)

	recorder = harness.do(test, http.MethodPost, "/api/withdrawals/"+requestID+"/process", nil, userAuth)
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("process without role must be 403, got %d", recorder.Code)
	}
	recorder = harness.do(test, http.MethodPost, "/api/withdrawals/"+requestID+"/process", nil, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("process: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = harness.do(test, http.MethodPost, "/api/withdrawals/"+requestID+"/complete", nil, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("complete: %d %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(test, recorder)["status"] != "completed" {
		test.Fatalf("expected completed status")
	}

	recorder = harness.do(test, http.MethodGet, "/api/wallet", nil, userAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("wallet: %d", recorder.Code)
	}
	balance := decodeBody(test, recorder)
	if balance["available_cents"].(float64) != 2000 || balance["pending_cents"].(float64) != 0 {
		test.Fatalf("unexpected final balance: %v", balance)
	}

	recorder = harness.do(test, http.MethodPost, "/api/withdrawals/"+requestID+"/complete", nil, operatorAuth)
	if recorder.Code != http.StatusConflict {
		test.Fatalf("expected 409 for repeated completion, got %d", recorder.Code)
	}
}

func TestCancelWithdrawalRestoresFunds(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	userAuth := bearerFor(test, "canceller")
	operatorAuth := bearerFor(test, "ops", auth.RoleOperator)

	recorder := harness.do(test, http.MethodPost, "/api/wallet/deposits", map[string]any{
		"user_id":      "canceller",
		"amount_cents": 4000,
	}, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("deposit: %d", recorder.Code)
	}
	recorder = harness.do(test, http.MethodPost, "/api/payout-methods", map[string]any{
		"method_type": "mobile_money",
		"provider":    "m-pesa",
		"label":       "Phone",
	}, userAuth)
	if recorder.Code != http.StatusCreated {
		test.Fatalf("register method: %d", recorder.Code)
	}
	methodID := decodeBody(test, recorder)["method_id"].(string)

	recorder = harness.do(test, http.MethodPost, "/api/withdrawals", map[string]any{
		"amount_cents": 2000,
		"method_id":    methodID,
	}, userAuth)
	if recorder.Code != http.StatusCreated {
		test.Fatalf("request: %d", recorder.Code)
	}
	requestID := decodeBody(test, recorder)["request_id"].(string)

	recorder = harness.do(test, http.MethodPost, "/api/withdrawals/"+requestID+"/cancel", map[string]any{
		"reason": "changed my mind",
	}, userAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("cancel: %d %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(test, recorder)["status"] != "cancelled" {
		test.Fatalf("expected cancelled status")
	}

	recorder = harness.do(test, http.MethodGet, "/api/wallet", nil, userAuth)
	balance := decodeBody(test, recorder)
	if balance["available_cents"].(float64) != 4000 || balance["pending_cents"].(float64) != 0 {
		test.Fatalf("cancel must restore funds: %v", balance)
	}
}

func TestWithdrawalHiddenFromOtherUsers(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	ownerAuth := bearerFor(test, "owner")
	operatorAuth := bearerFor(test, "ops", auth.RoleOperator)

	recorder := harness.do(test, http.MethodPost, "/api/wallet/deposits", map[string]any{
		"user_id":      "owner",
		"amount_cents": 2000,
	}, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("deposit: %d", recorder.Code)
	}
	recorder = harness.do(test, http.MethodPost, "/api/payout-methods", map[string]any{
		"method_type": "bank",
		"provider":    "acme",
		"label":       "Main",
	}, ownerAuth)
	methodID := decodeBody(test, recorder)["method_id"].(string)
	recorder = harness.do(test, http.MethodPost, "/api/withdrawals", map[string]any{
		"amount_cents": 1000,
		"method_id":    methodID,
	}, ownerAuth)
	requestID := decodeBody(test, recorder)["request_id"].(string)

	recorder = harness.do(test, http.MethodGet, "/api/withdrawals/"+requestID, nil, bearerFor(test, "snoop"))
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404 for foreign request, got %d", recorder.Code)
	}
	recorder = harness.do(test, http.MethodGet, "/api/withdrawals/"+requestID, nil, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("operator must see request, got %d", recorder.Code)
	}
}

func TestTransactionsListShowsLifecycle(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	userAuth := bearerFor(test, "audited")
	operatorAuth := bearerFor(test, "ops", auth.RoleOperator)

	recorder := harness.do(test, http.MethodPost, "/api/wallet/deposits", map[string]any{
		"user_id":      "audited",
		"amount_cents": 3000,
	}, operatorAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("deposit: %d", recorder.Code)
	}

	recorder = harness.do(test, http.MethodGet, "/api/transactions", nil, userAuth)
	if recorder.Code != http.StatusOK {
		test.Fatalf("transactions: %d", recorder.Code)
	}
	payload := decodeBody(test, recorder)
	transactions := payload["transactions"].([]any)
	if len(transactions) != 1 {
		test.Fatalf("expected one transaction, got %d", len(transactions))
	}
	entry := transactions[0].(map[string]any)
	if entry["kind"] != "deposit" || entry["amount_cents"].(float64) != 3000 {
		test.Fatalf("unexpected transaction: %v", entry)
	}
}

func TestListPacksReturnsCatalog(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test, &stubProvider{})
	recorder := harness.do(test, http.MethodGet, "/api/packs", nil, bearerFor(test, "shopper"))
	if recorder.Code != http.StatusOK {
		test.Fatalf("packs: %d", recorder.Code)
	}
	packs := decodeBody(test, recorder)["packs"].([]any)
	if len(packs) != 1 {
		test.Fatalf("expected one pack, got %d", len(packs))
	}
}
