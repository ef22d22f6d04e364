package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/portal"
	"github.com/sells-group/einvoice-cli/internal/store"
)

// step is one stage of the daily run.
type step struct {
	stage model.Stage
	fn    stageFunc
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, extract and send for one processing date",
	Long:  "Runs the fetch, extract and send stages in order for --date, stopping at the first stage that fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		day, err := targetDay(time.Now())
		if err != nil {
			return err
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		resolver, err := initResolver()
		if err != nil {
			return err
		}
		uploader, err := initUploader()
		if err != nil {
			return err
		}

		st := openHistory(ctx)
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		date := day.Format(model.DateLayout)
		return runSteps(ctx, st, date, []step{
			{model.StageFetch, fetchStage(portal.NewClient(cfg.Portal), day)},
			{model.StageExtract, extractStage(resolver, st, day)},
			{model.StageSend, sendStage(initMailer(), uploader, date)},
		})
	},
}

// runSteps runs steps in order and stops at the first failure.
func runSteps(ctx context.Context, st store.Store, date string, steps []step) error {
	start := time.Now()
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "run %s: %s not started", date, s.stage)
		}
		zap.L().Info("starting stage",
			zap.String("stage", string(s.stage)),
			zap.Int("step", i+1),
			zap.Int("of", len(steps)),
		)
		if err := recordStage(ctx, st, date, s.stage, s.fn); err != nil {
			return eris.Wrapf(err, "run %s: %s", date, s.stage)
		}
	}
	zap.L().Info("all stages complete", zap.String("date", date), zap.Duration("took", time.Since(start)))
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
