package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/mailer"
	"github.com/sells-group/einvoice-cli/internal/ponumber"
	"github.com/sells-group/einvoice-cli/internal/resilience"
	"github.com/sells-group/einvoice-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open run history")
	}
	return st, nil
}

// openHistory is initStore for the stage commands: a store that cannot be
// opened is logged and the stage runs unrecorded.
func openHistory(ctx context.Context) store.Store {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return st
}

func initResolver() (*ponumber.Resolver, error) {
	vocab, err := ponumber.LoadVocabulary(cfg.Extract.VocabularyFile)
	if err != nil {
		return nil, err
	}
	return ponumber.NewResolver(vocab, zap.L().Named("ponumber"))
}

func initMailer() *mailer.Mailer {
	return mailer.New(cfg.Mail, resilience.FromConfig(cfg.Mail.Retry))
}

// initUploader returns nil when no FTP drop is configured.
func initUploader() (fetcher.Uploader, error) {
	if cfg.FTP.URL == "" {
		return nil, nil
	}
	return fetcher.NewFTPUploader(cfg.FTP.URL, fetcher.FTPOptions{
		Timeout: time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
	})
}
