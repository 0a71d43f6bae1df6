package monitoring

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/config"
)

// AlertCircuitOpen fires when a provider's circuit breaker is open at check
// time. It is raised by the Checker, which sees live breaker state that a
// stored snapshot cannot.
const AlertCircuitOpen AlertType = "circuit_open"

// BreakerStates reports circuit state per provider name.
type BreakerStates interface {
	States() map[string]string
}

// Checker periodically evaluates the audit trail and live breaker state and
// sends triggered alerts. An identical alert (type and provider) is not sent
// again until the cooldown elapses.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	breakers  BreakerStates
	interval  time.Duration
	lookback  int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewChecker creates a background alert checker. breakers may be nil.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, breakers BreakerStates) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		breakers:  breakers,
		interval:  interval,
		lookback:  lookback,
		cooldown:  time.Duration(cfg.AlertCooldownSecs) * time.Second,
		now:       time.Now,
		lastSent:  make(map[string]time.Time),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one evaluation and returns the alerts that were due, after
// cooldown suppression. Delivery failures are logged by the Alerter.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}
	log.Debug("monitoring: snapshot collected",
		zap.Int("consensus_total", snap.ConsensusTotal),
		zap.Float64("incomplete_rate", snap.IncompleteRate),
		zap.Float64("provider_fail_rate", snap.ProviderFailRate),
	)

	alerts := append(c.alerter.Evaluate(snap), c.openCircuits()...)
	due := c.due(alerts)
	if len(due) == 0 {
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, due)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_due", len(due)),
		zap.Int("alerts_sent", sent),
	)
	return due
}

func (c *Checker) openCircuits() []Alert {
	if c.breakers == nil {
		return nil
	}
	states := c.breakers.States()
	names := make([]string, 0, len(states))
	for name, state := range states {
		if state == "open" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	alerts := make([]Alert, 0, len(names))
	for _, name := range names {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   fmt.Sprintf("Circuit breaker for provider %s is open", name),
			Details:   map[string]any{"provider": name},
			Timestamp: c.now().UTC(),
		})
	}
	return alerts
}

// due drops alerts sent within the cooldown and stamps the rest.
func (c *Checker) due(alerts []Alert) []Alert {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Alert
	for _, a := range alerts {
		key := string(a.Type)
		if p, ok := a.Details["provider"].(string); ok {
			key += "/" + p
		}
		if last, ok := c.lastSent[key]; ok && c.cooldown > 0 && now.Sub(last) < c.cooldown {
			continue
		}
		c.lastSent[key] = now
		out = append(out, a)
	}
	return out
}
