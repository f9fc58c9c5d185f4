package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stagesync/internal/config"
	"stagesync/internal/models"
	"stagesync/pkg/ghl"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crmStub counts hits and answers with the configured status.
type crmStub struct {
	srv    *httptest.Server
	hits   int32
	status int32
	path   atomic.Value
}

func newCRMStub(t *testing.T, status int) *crmStub {
	s := &crmStub{status: int32(status)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		s.path.Store(r.Method + " " + r.URL.Path)
		w.WriteHeader(int(atomic.LoadInt32(&s.status)))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"pipelines":[{"id":"p1","name":"Sales","stages":[{"id":"s1","name":"Lead"}]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *crmStub) client() *ghl.Client {
	return ghl.NewClient(&ghl.Config{BaseURL: s.srv.URL, Timeout: 2 * time.Second}, logrus.New())
}

func (s *crmStub) Hits() int { return int(atomic.LoadInt32(&s.hits)) }

func crmCred(expiresAt *time.Time) *models.PlatformCredential {
	return &models.PlatformCredential{OwnerID: "u", Platform: models.PlatformCRM, APIKey: "key", ExpiresAt: expiresAt, Active: true}
}

func TestPipelineSync_ExpiredCredentialMakesNoNetworkCall(t *testing.T) {
	stub := newCRMStub(t, http.StatusOK)
	svc := NewPipelineSyncService(stub.client(), nil, nil)
	past := time.Now().Add(-time.Minute)

	err := svc.MoveOpportunity(context.Background(), crmCred(&past), "p1", "s1", "opp")
	assert.True(t, errors.Is(err, ErrCredentialUnavailable), "got %v", err)

	err = svc.MoveOpportunity(context.Background(), nil, "p1", "s1", "opp")
	assert.True(t, errors.Is(err, ErrCredentialUnavailable), "got %v", err)

	_, err = svc.ListPipelines(context.Background(), crmCred(&past))
	assert.True(t, errors.Is(err, ErrCredentialUnavailable))

	assert.Equal(t, 0, stub.Hits())
}

func TestPipelineSync_MoveOpportunity(t *testing.T) {
	stub := newCRMStub(t, http.StatusOK)
	svc := NewPipelineSyncService(stub.client(), nil, logrus.New())

	require.NoError(t, svc.MoveOpportunity(context.Background(), crmCred(nil), "p1", "s2", "opp-9"))
	assert.Equal(t, 1, stub.Hits())
	assert.Equal(t, "PUT /pipelines/p1/opportunities/opp-9", stub.path.Load())
}

func TestPipelineSync_UpstreamRejection(t *testing.T) {
	stub := newCRMStub(t, http.StatusNotFound)
	svc := NewPipelineSyncService(stub.client(), nil, nil)

	err := svc.MoveOpportunity(context.Background(), crmCred(nil), "p1", "s2", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, http.StatusNotFound, syncErr.Status)
	assert.Equal(t, 1, stub.Hits(), "no retries")
}

func TestPipelineSync_CircuitOpensOnServerErrors(t *testing.T) {
	stub := newCRMStub(t, http.StatusBadGateway)
	breaker := NewCircuitBreaker(config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2, ResetTimeout: time.Hour, HalfOpenMaxReqs: 1})
	svc := NewPipelineSyncService(stub.client(), breaker, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := svc.MoveOpportunity(ctx, crmCred(nil), "p", "s", "o")
		assert.True(t, errors.Is(err, ErrSyncFailed))
	}
	assert.Equal(t, BreakerOpen, breaker.State())

	err := svc.MoveOpportunity(ctx, crmCred(nil), "p", "s", "o")
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, 0, syncErr.Status)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, stub.Hits(), "open breaker must not call the CRM")
}

func TestPipelineSync_ClientErrorsDoNotTripBreaker(t *testing.T) {
	stub := newCRMStub(t, http.StatusUnprocessableEntity)
	breaker := NewCircuitBreaker(config.CircuitBreakerConfig{Enabled: true, MaxFailures: 1, ResetTimeout: time.Hour})
	svc := NewPipelineSyncService(stub.client(), breaker, nil)

	_ = svc.MoveOpportunity(context.Background(), crmCred(nil), "p", "s", "o")
	assert.Equal(t, BreakerClosed, breaker.State())
}

func TestPipelineSync_CanceledCallerDoesNotTripBreaker(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	breaker := NewCircuitBreaker(config.CircuitBreakerConfig{Enabled: true, MaxFailures: 1, ResetTimeout: time.Hour})
	client := ghl.NewClient(&ghl.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, logrus.New())
	svc := NewPipelineSyncService(client, breaker, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.MoveOpportunity(ctx, crmCred(nil), "p", "s", "o")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	assert.Equal(t, BreakerClosed, breaker.State())

	canceled, stop := context.WithCancel(context.Background())
	stop()
	_ = svc.MoveOpportunity(canceled, crmCred(nil), "p", "s", "o")
	assert.Equal(t, BreakerClosed, breaker.State())
}

func TestPipelineSync_ListPipelines(t *testing.T) {
	stub := newCRMStub(t, http.StatusOK)
	svc := NewPipelineSyncService(stub.client(), nil, nil)

	pipelines, err := svc.ListPipelines(context.Background(), crmCred(nil))
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "s1", pipelines[0].Stages[0].ID)
}
