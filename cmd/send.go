package main

import (
	"context"
	"path"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/mailer"
	"github.com/sells-group/einvoice-cli/internal/model"
)

// reportSender delivers a day's batch of workbooks.
type reportSender interface {
	Send(ctx context.Context, b *mailer.Batch) error
}

// sendResult is the recorded summary of a send run.
type sendResult struct {
	Date         string `json:"date"`
	Attachments  int    `json:"attachments"`
	Records      int    `json:"records"`
	Uploaded     int    `json:"uploaded"`
	UploadErrors int    `json:"upload_errors"`
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Email the results workbooks",
	Long:  "Emails every supplier workbook for --date, or for the most recent date folder when --date is not given, and copies them to the FTP drop when one is configured.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("send"); err != nil {
			return err
		}

		var date string
		if cmd.Flags().Changed("date") {
			day, err := targetDay(time.Now())
			if err != nil {
				return err
			}
			date = day.Format(model.DateLayout)
		} else {
			latest, err := mailer.LatestDate(cfg.Paths.Outputs)
			if err != nil {
				return err
			}
			date = latest
		}

		uploader, err := initUploader()
		if err != nil {
			return err
		}
		st := openHistory(ctx)
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		return recordStage(ctx, st, date, model.StageSend, sendStage(initMailer(), uploader, date))
	},
}

// sendStage mails the batch for date, then uploads each workbook. Upload
// failures are counted but do not fail the stage.
func sendStage(sender reportSender, uploader fetcher.Uploader, date string) stageFunc {
	return func(ctx context.Context, _ *model.Run) (any, error) {
		b, err := mailer.FindReports(cfg.Paths.Outputs, date)
		if err != nil {
			return nil, err
		}
		res := &sendResult{Date: b.Date, Attachments: len(b.Reports), Records: b.Records()}
		if err := sender.Send(ctx, b); err != nil {
			return res, err
		}
		if uploader == nil {
			return res, nil
		}
		for _, r := range b.Reports {
			remote := path.Join(b.Date, r.Attachment(b.Date))
			if err := uploader.Upload(ctx, r.Path, remote); err != nil {
				res.UploadErrors++
				zap.L().Error("upload report failed",
					zap.String("supplier", r.Supplier),
					zap.String("remote", remote),
					zap.Error(err),
				)
				continue
			}
			res.Uploaded++
		}
		return res, nil
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
