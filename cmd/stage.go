package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/monitoring"
	"github.com/sells-group/einvoice-cli/internal/store"
)

// stageFunc runs one stage. run is nil when no history is kept.
type stageFunc func(ctx context.Context, run *model.Run) (any, error)

// recordStage runs fn and, when st is set, records it as a run of stage for
// date. History failures are logged, never returned.
func recordStage(ctx context.Context, st store.Store, date string, stage model.Stage, fn stageFunc) error {
	log := zap.L().With(zap.String("stage", string(stage)), zap.String("date", date))

	var run *model.Run
	if st != nil {
		r, err := st.CreateRun(ctx, date, stage)
		if err != nil {
			log.Warn("record run start failed", zap.Error(err))
		} else {
			run = r
		}
	}

	start := time.Now()
	summary, err := fn(ctx, run)
	status := model.RunStatusComplete
	if err != nil {
		status = model.RunStatusFailed
		log.Error("stage failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		alertFailure(context.WithoutCancel(ctx), stage, date, err)
	} else {
		log.Info("stage complete", zap.Duration("took", time.Since(start)))
	}

	if run != nil {
		// The stage context may be cancelled; the outcome is still recorded.
		if ferr := st.FinishRun(context.WithoutCancel(ctx), run.ID, status, summary, err); ferr != nil {
			log.Warn("record run finish failed", zap.Error(ferr))
		}
	}
	return err
}

// alertFailure posts a stage failure to the monitoring webhook, if any.
func alertFailure(ctx context.Context, stage model.Stage, date string, err error) {
	if cfg == nil {
		return
	}
	a := monitoring.NewAlerter(cfg.Monitoring)
	if !a.Enabled() {
		return
	}
	a.SendAlerts(ctx, []monitoring.Alert{monitoring.StageFailed(stage, date, err)})
}
