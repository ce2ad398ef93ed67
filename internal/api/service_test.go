package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/merchantpay/pkg/service"
)

func TestAPIServiceStartFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.API.Port = strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)
	svc := NewAPIService(newTestServer(t, cfg, &stubPayments{}, nil))

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.API.Port)
	assert.Equal(t, service.StatusError, svc.Status())
	assert.Error(t, svc.Health())
	assert.Empty(t, svc.Addr())
}

func TestAPIServiceStartServes(t *testing.T) {
	svc := NewAPIService(newTestServer(t, testConfig(), &stubPayments{}, nil))

	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	assert.Equal(t, service.StatusRunning, svc.Status())
	assert.NoError(t, svc.Health())

	_, port, err := net.SplitHostPort(svc.Addr())
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, service.StatusStopped, svc.Status())
}
