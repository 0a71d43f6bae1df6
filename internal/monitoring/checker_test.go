package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/config"
)

type fixedStates map[string]string

func (f fixedStates) States() map[string]string { return f }

// webhook records every alert posted to it.
type webhook struct {
	mu     sync.Mutex
	alerts []Alert
}

func (w *webhook) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.alerts = append(w.alerts, a)
		w.mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (w *webhook) types() []AlertType {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AlertType, len(w.alerts))
	for i, a := range w.alerts {
		out[i] = a.Type
	}
	return out
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := NewCollector(&mockLister{})
	alerter := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(1100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_Defaults(t *testing.T) {
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{}, nil)
	assert.Equal(t, 5*time.Minute, checker.interval)
	assert.Equal(t, 24, checker.lookback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_OpenCircuitAlerts(t *testing.T) {
	var hook webhook
	srv := hook.server(t)
	cfg := config.MonitoringConfig{WebhookURL: srv.URL}

	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(cfg), cfg,
		fixedStates{"gs1": "open", "llm": "closed", "catalog": "open", "taxonomy": "half-open"})

	due := checker.Check(context.Background())
	require.Len(t, due, 2)
	assert.Equal(t, "catalog", due[0].Details["provider"])
	assert.Equal(t, "gs1", due[1].Details["provider"])
	assert.Equal(t, []AlertType{AlertCircuitOpen, AlertCircuitOpen}, hook.types())
}

func TestChecker_CooldownSuppressesRepeats(t *testing.T) {
	var hook webhook
	srv := hook.server(t)
	cfg := config.MonitoringConfig{WebhookURL: srv.URL, AlertCooldownSecs: 600}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(cfg), cfg, fixedStates{"gs1": "open"})
	checker.now = func() time.Time { return now }

	assert.Len(t, checker.Check(context.Background()), 1)

	now = now.Add(5 * time.Minute)
	assert.Empty(t, checker.Check(context.Background()), "repeat inside cooldown")

	now = now.Add(6 * time.Minute)
	assert.Len(t, checker.Check(context.Background()), 1)
	assert.Len(t, hook.types(), 2)
}

func TestChecker_NoCooldownSendsEveryTime(t *testing.T) {
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{}, fixedStates{"gs1": "open"})

	assert.Len(t, checker.Check(context.Background()), 1)
	assert.Len(t, checker.Check(context.Background()), 1)
}

func TestChecker_CollectErrorSkipsAlerts(t *testing.T) {
	checker := NewChecker(NewCollector(&mockLister{err: assert.AnError}), NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{}, fixedStates{"gs1": "open"})

	assert.Nil(t, checker.Check(context.Background()))
}
