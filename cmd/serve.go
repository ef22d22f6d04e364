package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/einvoice-cli/internal/monitoring"
	"github.com/sells-group/einvoice-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the purchase order extractor and run history over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		resolver, err := initResolver()
		if err != nil {
			return err
		}

		var runs server.RunLister
		if st := openHistory(ctx); st != nil {
			defer st.Close() //nolint:errcheck
			runs = st

			alerter := monitoring.NewAlerter(cfg.Monitoring)
			if alerter.Enabled() {
				go monitoring.NewChecker(monitoring.NewCollector(st), alerter, cfg.Monitoring).Run(ctx)
			}
		}
		return server.New(cfg.Server, resolver, runs).ListenAndServe(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: server.port)")
	rootCmd.AddCommand(serveCmd)
}
