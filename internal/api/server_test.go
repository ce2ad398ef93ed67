package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/merchantpay/internal/payment"
	"github.com/cmatc13/merchantpay/internal/store"
	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/health"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
)

var testTxHash = strings.Repeat("ab", 32)

type stubPayments struct {
	result payment.Result
	got    []payment.SubmitRequest
	panic  bool
}

func (s *stubPayments) Submit(_ context.Context, req payment.SubmitRequest) payment.Result {
	if s.panic {
		panic("unexpected")
	}
	s.got = append(s.got, req)
	return s.result
}

type stubReceipts map[string]store.Receipt

func (s stubReceipts) Get(_ context.Context, txHash string) (*store.Receipt, error) {
	r, ok := s[txHash]
	if !ok {
		return nil, errors.NewStorageError(errors.StorageErrNotFound, "Receipt not found", nil)
	}
	return &r, nil
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Port:               "0",
			Version:            "test",
			CORSAllowedOrigins: []string{"https://shop.example"},
			RateLimit:          100,
			RateWindow:         time.Minute,
			MaxBodyBytes:       1 << 10,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, payments PaymentSubmitter, receipts ReceiptReader) *Server {
	t.Helper()
	logger := logging.Discard()
	return NewServer(cfg, payments, receipts, logger, metrics.New(metrics.DefaultConfig()), health.NewRegistry(logger))
}

func submitBody() string {
	return `{"tx_cbor_hex":"84a0a0f5f6","witness_set_cbor_hex":"a0","tx_hash_hex":"` + testTxHash + `"}`
}

func doSubmit(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestSubmitPaymentSuccess(t *testing.T) {
	payments := &stubPayments{result: payment.Result{Success: true, TxHash: testTxHash, Stage: payment.StageDone}}
	s := newTestServer(t, testConfig(), payments, nil)

	rr := doSubmit(t, s, submitBody())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"txHash":"`+testTxHash+`"}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	require.Len(t, payments.got, 1)
	assert.Equal(t, payment.SubmitRequest{
		TxCborHex:         "84a0a0f5f6",
		WitnessSetCborHex: "a0",
		TxHashHex:         testTxHash,
	}, payments.got[0])
}

func TestSubmitPaymentFailureStatus(t *testing.T) {
	tests := []struct {
		kind   errors.Kind
		status int
	}{
		{errors.KindValidation, http.StatusBadRequest},
		{errors.KindDecode, http.StatusBadRequest},
		{errors.KindSigning, http.StatusBadRequest},
		{errors.KindDuplicate, http.StatusConflict},
		{errors.KindSubmission, http.StatusBadGateway},
		{errors.KindConfig, http.StatusInternalServerError},
		{errors.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			payments := &stubPayments{result: payment.Result{Error: "nope", Kind: tt.kind}}
			s := newTestServer(t, testConfig(), payments, nil)

			rr := doSubmit(t, s, submitBody())
			assert.Equal(t, tt.status, rr.Code)
			assert.JSONEq(t, `{"success":false,"error":"nope"}`, rr.Body.String())
		})
	}
}

func TestSubmitPaymentRejectsBadRequests(t *testing.T) {
	payments := &stubPayments{}
	s := newTestServer(t, testConfig(), payments, nil)

	rr := doSubmit(t, s, `{"tx_cbor_hex":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid request body"}`, rr.Body.String())

	rr = doSubmit(t, s, `{"tx_cbor_hex":"`+strings.Repeat("a", 2048)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/submit", strings.NewReader(submitBody()))
	req.Header.Set("Content-Type", "text/plain")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	assert.Empty(t, payments.got)
}

func TestSubmitPaymentAcceptsCharset(t *testing.T) {
	payments := &stubPayments{result: payment.Result{Success: true, TxHash: testTxHash}}
	s := newTestServer(t, testConfig(), payments, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/submit", strings.NewReader(submitBody()))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitPaymentRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.API.RateLimit = 2
	payments := &stubPayments{result: payment.Result{Success: true, TxHash: testTxHash}}
	s := newTestServer(t, cfg, payments, nil)

	assert.Equal(t, http.StatusOK, doSubmit(t, s, submitBody()).Code)
	assert.Equal(t, http.StatusOK, doSubmit(t, s, submitBody()).Code)

	rr := doSubmit(t, s, submitBody())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Rate limit exceeded"}`, rr.Body.String())
	assert.Len(t, payments.got, 2)
}

func TestRecovererReturnsJSON(t *testing.T) {
	s := newTestServer(t, testConfig(), &stubPayments{panic: true}, nil)

	rr := doSubmit(t, s, submitBody())
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"An internal server error occurred"}`, rr.Body.String())
}

func TestGetReceipt(t *testing.T) {
	receipts := stubReceipts{testTxHash: {TxHash: testTxHash, Status: store.ReceiptSubmitted, WitnessCount: 2}}
	s := newTestServer(t, testConfig(), &stubPayments{}, receipts)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+testTxHash, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Success bool          `json:"success"`
		Data    store.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, store.ReceiptSubmitted, resp.Data.Status)
	assert.Equal(t, 2, resp.Data.WitnessCount)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+strings.Repeat("cd", 32), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Receipt not found"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/short", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetReceiptDisabled(t *testing.T) {
	s := newTestServer(t, testConfig(), &stubPayments{}, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+testTxHash, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetReceiptRequiresJWT(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "test-secret"
	receipts := stubReceipts{testTxHash: {TxHash: testTxHash, Status: store.ReceiptFailed}}
	s := newTestServer(t, cfg, &stubPayments{}, receipts)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+testTxHash, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	_, token, err := s.tokenAuth.Encode(map[string]interface{}{"sub": "ops"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+testTxHash, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// submit stays public
	assert.NotEqual(t, http.StatusUnauthorized, doSubmit(t, s, submitBody()).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig(), &stubPayments{}, nil)
	s.healthRegistry.Register("trp", health.DependencyChecker("trp", func(ctx context.Context) error { return nil }))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Service health status: UP", resp.Message)

	s.healthRegistry.Register("redis", health.RedisChecker("localhost:6379", func(ctx context.Context) error { return errors.Errorf(errors.KindStorage, "connection refused") }))
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `merchantpay_request_total{method="GET",path="/health",service="api",status="503"}`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig(), &stubPayments{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments/submit", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, testConfig(), &stubPayments{}, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Not found"}`, rr.Body.String())
}
