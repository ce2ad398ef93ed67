package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPayment(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordPayment("success", 20*time.Millisecond)
	m.RecordPayment("success", 10*time.Millisecond)
	m.RecordPayment("failure", time.Millisecond)
	m.RecordPaymentFailure("decoding", "decode")
	m.RecordDuplicate()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PaymentCount.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PaymentCount.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PaymentFailureCount.WithLabelValues("decoding", "decode")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DuplicateSubmissions))
}

func TestRecordRequestUsesNumericStatus(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordRequest("api", http.MethodPost, "/api/v1/payments/submit", http.StatusBadGateway, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestCount.WithLabelValues("api", http.MethodPost, "/api/v1/payments/submit", "502")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordWalletWitnesses(2)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "merchantpay_payment_wallet_witnesses_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
