package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/model"
)

var (
	cfg      *config.Config
	dateFlag string
)

var rootCmd = &cobra.Command{
	Use:   "einvoice",
	Short: "Daily e-invoice retrieval and purchase order reporting",
	Long:  "Downloads received e-invoices from the tax portal, extracts purchase order numbers into per-supplier workbooks and emails the reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "processing date as dd-mm-yyyy (default: yesterday)")
}

// targetDay parses --date, defaulting to the day before now in local time.
func targetDay(now time.Time) (time.Time, error) {
	if dateFlag == "" {
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	day, err := time.ParseInLocation(model.DateLayout, dateFlag, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want dd-mm-yyyy", dateFlag)
	}
	return day, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
