package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/ponumber"
	"github.com/sells-group/einvoice-cli/internal/report"
	"github.com/sells-group/einvoice-cli/internal/store"
)

// extractResult is the recorded summary of an extract run.
type extractResult struct {
	*report.Summary
	// Repeats counts invoices already reported by an earlier run.
	Repeats int `json:"repeats"`
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Build the per-supplier purchase order workbooks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		day, err := targetDay(time.Now())
		if err != nil {
			return err
		}
		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		resolver, err := initResolver()
		if err != nil {
			return err
		}

		st := openHistory(ctx)
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		return recordStage(ctx, st, day.Format(model.DateLayout), model.StageExtract, extractStage(resolver, st, day))
	},
}

func extractStage(resolver *ponumber.Resolver, st store.Store, day time.Time) stageFunc {
	return func(ctx context.Context, run *model.Run) (any, error) {
		s, err := report.New(cfg, resolver).Run(ctx, day)
		if err != nil {
			if s == nil {
				return nil, err
			}
			return &extractResult{Summary: s}, err
		}
		res := &extractResult{Summary: s}
		if st == nil || run == nil {
			return res, nil
		}

		recs := invoiceRecords(run.ID, s)
		repeats, err := countRepeats(ctx, st, recs)
		if err != nil {
			return res, err
		}
		res.Repeats = repeats
		if repeats > 0 {
			zap.L().Info("invoices already reported by an earlier run", zap.Int("repeats", repeats))
		}
		if err := st.RecordInvoices(ctx, run.ID, recs); err != nil {
			return res, eris.Wrap(err, "record invoices")
		}
		return res, nil
	}
}

// invoiceRecords lists every reported row with a uuid. Error rows are kept
// under their file stem.
func invoiceRecords(runID string, s *report.Summary) []model.InvoiceRecord {
	var recs []model.InvoiceRecord
	for _, r := range s.Reports {
		for _, row := range r.Rows {
			if row.UUID == "" {
				continue
			}
			recs = append(recs, model.InvoiceRecord{
				RunID:     runID,
				UUID:      row.UUID,
				Taxpayer:  r.Alias,
				Issuer:    row.From,
				Reference: row.PONumber,
				Outcome:   row.Outcome,
			})
		}
	}
	return recs
}

func countRepeats(ctx context.Context, st store.Store, recs []model.InvoiceRecord) (int, error) {
	seen := make(map[string]bool, len(recs))
	n := 0
	for _, r := range recs {
		if _, done := seen[r.UUID]; done {
			continue
		}
		ok, err := st.SeenInvoice(ctx, r.UUID)
		if err != nil {
			return n, eris.Wrapf(err, "check invoice %s", r.UUID)
		}
		seen[r.UUID] = ok
		if ok {
			n++
		}
	}
	return n, nil
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
