package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
)

const (
	defaultCheckInterval = 15 * time.Minute
	defaultLookbackHours = 24
)

// Checker turns source health snapshots into delivered alerts, either on
// demand or on a ticker.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks source health every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval()
	c.log.Info("source health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.lookback()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("source health checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot, sends the alerts it raises and returns them.
// A collection failure is logged and yields no alerts.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback())
	if err != nil {
		c.log.Error("monitoring: collect source health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("monitoring: sources healthy",
			zap.Int("stage_runs", snap.StageRuns),
			zap.Int("broken", len(snap.Broken)),
		)
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("monitoring: alerts raised",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
	return alerts
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

func (c *Checker) lookback() int {
	if c.cfg.LookbackHours <= 0 {
		return defaultLookbackHours
	}
	return c.cfg.LookbackHours
}
