package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/einvoice-cli/internal/download"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/portal"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the day's received invoices from the portal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		day, err := targetDay(time.Now())
		if err != nil {
			return err
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		st := openHistory(ctx)
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		client := portal.NewClient(cfg.Portal)
		return recordStage(ctx, st, day.Format(model.DateLayout), model.StageFetch, fetchStage(client, day))
	},
}

func fetchStage(client portal.Client, day time.Time) stageFunc {
	return func(ctx context.Context, _ *model.Run) (any, error) {
		return download.New(client, cfg).Run(ctx, day)
	}
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
