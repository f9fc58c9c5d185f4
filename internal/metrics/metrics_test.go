package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncRateLimitDrop(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		label  string
	}{
		{"increment with prefix", "/api/v1/messages", "/api/v1/messages"},
		{"empty prefix defaults to global", "", "global"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(RateLimitDrops.WithLabelValues(tt.label))
			IncRateLimitDrop(tt.prefix)
			after := testutil.ToFloat64(RateLimitDrops.WithLabelValues(tt.label))
			if after != before+1 {
				t.Errorf("counter = %v, want %v", after, before+1)
			}
		})
	}
}

func TestIncRateLimitDrop_Concurrent(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 20
	before := testutil.ToFloat64(RateLimitDrops.WithLabelValues("concurrent"))

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				IncRateLimitDrop("concurrent")
			}
		}()
	}
	wg.Wait()

	got := testutil.ToFloat64(RateLimitDrops.WithLabelValues("concurrent")) - before
	if got != goroutines*perGoroutine {
		t.Errorf("concurrent drops = %v, want %d", got, goroutines*perGoroutine)
	}
}

func TestObserveCRMRequest(t *testing.T) {
	before := testutil.ToFloat64(CRMRequests.WithLabelValues("move_opportunity", "200"))
	ObserveCRMRequest("move_opportunity", "200", 30*time.Millisecond)
	ObserveCRMRequest("move_opportunity", "circuit_open", 0)
	if got := testutil.ToFloat64(CRMRequests.WithLabelValues("move_opportunity", "200")); got != before+1 {
		t.Errorf("crm counter = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(CRMRequests.WithLabelValues("move_opportunity", "circuit_open")); got < 1 {
		t.Errorf("circuit_open not counted")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	IncMessageProcessed("no_match")
	IncOAuthExchange("success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, name := range []string{
		"stagesync_messages_processed_total",
		"stagesync_oauth_exchanges_total",
		"go_goroutines",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}
