package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/config"
)

// Checker evaluates the run history on a ticker. An alert type that was
// delivered is held back until the lookback window has passed, so a missed
// report is announced once rather than on every tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger

	delivered map[AlertType]time.Time
	now       func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().Named("monitoring"),
		delivered: map[AlertType]time.Time{},
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if every <= 0 {
		every = 15 * time.Minute
	}
	c.log.Info("alert checker started",
		zap.Duration("every", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and delivers the alerts it triggers that are
// not held back. It returns the alerts it attempted to deliver.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("collect run metrics failed", zap.Error(err))
		return nil
	}

	hold := time.Duration(c.cfg.LookbackWindowHours) * time.Hour
	now := c.now()
	var due []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		if last, ok := c.delivered[a.Type]; ok && now.Sub(last) < hold {
			continue
		}
		due = append(due, a)
	}
	if len(due) == 0 {
		return nil
	}

	if c.alerter.SendAlerts(ctx, due) > 0 {
		for _, a := range due {
			c.delivered[a.Type] = now
		}
	}
	c.log.Info("alert check complete", zap.Int("alerts", len(due)))
	return due
}
