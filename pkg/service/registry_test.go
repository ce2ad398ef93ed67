package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/merchantpay/pkg/logging"
)

type fakeService struct {
	name    string
	deps    []string
	stopErr error

	mu     sync.Mutex
	status Status
	log    *[]string
}

func (f *fakeService) Name() string           { return f.name }
func (f *fakeService) Dependencies() []string { return f.deps }

func (f *fakeService) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusRunning
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusStopped
	*f.log = append(*f.log, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeService) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeService) Health() error {
	if f.Status() != StatusRunning {
		return errors.New("not running")
	}
	return nil
}

func TestStartAllRespectsDependencies(t *testing.T) {
	var calls []string
	r := NewRegistry(logging.Discard())
	require.NoError(t, r.Register(&fakeService{name: "api", deps: []string{"receipts", "events"}, log: &calls}))
	require.NoError(t, r.Register(&fakeService{name: "receipts", log: &calls}))
	require.NoError(t, r.Register(&fakeService{name: "events", deps: []string{"kafka-cluster"}, log: &calls}))

	require.NoError(t, r.StartAll(context.Background()))
	assert.Equal(t, []string{"start:receipts", "start:events", "start:api"}, calls)

	for name, err := range r.HealthCheck() {
		assert.NoError(t, err, name)
	}

	calls = calls[:0]
	require.NoError(t, r.StopAll(context.Background()))
	assert.Equal(t, []string{"stop:api", "stop:events", "stop:receipts"}, calls)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	var calls []string
	r := NewRegistry(logging.Discard())
	require.NoError(t, r.Register(&fakeService{name: "api", log: &calls}))
	assert.Error(t, r.Register(&fakeService{name: "api", log: &calls}))

	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestCycleDetected(t *testing.T) {
	var calls []string
	r := NewRegistry(logging.Discard())
	require.NoError(t, r.Register(&fakeService{name: "a", deps: []string{"b"}, log: &calls}))
	require.NoError(t, r.Register(&fakeService{name: "b", deps: []string{"a"}, log: &calls}))

	_, err := r.StartOrder()
	assert.ErrorContains(t, err, "dependency cycle")
	assert.Error(t, r.StartAll(context.Background()))
	assert.Empty(t, calls)
}

func TestStopAllContinuesAfterError(t *testing.T) {
	var calls []string
	r := NewRegistry(logging.Discard())
	require.NoError(t, r.Register(&fakeService{name: "a", stopErr: errors.New("flush failed"), log: &calls}))
	require.NoError(t, r.Register(&fakeService{name: "b", deps: []string{"a"}, log: &calls}))

	err := r.StopAll(context.Background())
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, []string{"stop:b", "stop:a"}, calls)
}
