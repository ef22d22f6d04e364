// Package download fetches a day's received invoices from the portal into
// the JSON and PDF folders and records them in the issuer index workbook.
package download

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/portal"
)

// Summary counts the outcome of a download run.
type Summary struct {
	Taxpayers      int `json:"taxpayers"`
	TaxpayerErrors int `json:"taxpayer_errors"`
	Downloaded     int `json:"downloaded"`
	Skipped        int `json:"skipped"`
	Cancelled      int `json:"cancelled"`
	Partial        int `json:"partial"`
	Failed         int `json:"failed"`
	Missing        int `json:"missing"`
}

// Downloader runs the fetch stage.
type Downloader struct {
	client    portal.Client
	taxpayers []config.TaxpayerConfig
	paths     config.PathsConfig
	workers   int
	now       func() time.Time
}

// New creates a Downloader from configuration.
func New(client portal.Client, cfg *config.Config) *Downloader {
	workers := cfg.Portal.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Downloader{
		client:    client,
		taxpayers: cfg.Taxpayers,
		paths:     cfg.Paths,
		workers:   workers,
		now:       time.Now,
	}
}

// JSONPath returns <json_root>/<date>/<taxpayer>/<uuid>.json.
func JSONPath(root string, day time.Time, taxpayer, uuid string) string {
	return filepath.Join(root, day.Format(model.DateLayout), taxpayer, filepath.Base(uuid)+".json")
}

// PDFPath returns <pdf_root>/<date>/<taxpayer>/<uuid>.pdf.
func PDFPath(root string, day time.Time, taxpayer, uuid string) string {
	return filepath.Join(root, day.Format(model.DateLayout), taxpayer, filepath.Base(uuid)+".pdf")
}

// Run downloads every taxpayer's documents received on day, then writes
// the issuer index. A failing taxpayer is logged and counted; Run errors
// only when every taxpayer failed or the index cannot be written.
func (d *Downloader) Run(ctx context.Context, day time.Time) (*Summary, error) {
	log := zap.L().With(zap.String("date", day.Format(model.DateLayout)))
	if err := d.client.Authenticate(ctx); err != nil {
		return nil, eris.Wrap(err, "download: authenticate")
	}

	var (
		mu      sync.Mutex
		summary = &Summary{Taxpayers: len(d.taxpayers)}
		records []model.IssuerRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, tp := range d.taxpayers {
		g.Go(func() error {
			recs, s, err := d.taxpayer(gctx, tp, day)
			mu.Lock()
			defer mu.Unlock()
			records = append(records, recs...)
			summary.add(s)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.TaxpayerErrors++
				log.Error("taxpayer download failed", zap.String("taxpayer", tp.Name), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "download: cancelled")
	}

	if len(records) > 0 {
		if err := WriteIndex(IndexPath(d.paths.Logs, day), records); err != nil {
			return summary, err
		}
		problems, err := d.Verify(day)
		if err != nil {
			return summary, err
		}
		summary.Missing = len(problems)
	}

	log.Info("download complete",
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Int("missing", summary.Missing),
	)
	if summary.Taxpayers > 0 && summary.TaxpayerErrors == summary.Taxpayers {
		return summary, eris.New("download: every taxpayer failed")
	}
	return summary, nil
}

func (d *Downloader) taxpayer(ctx context.Context, tp config.TaxpayerConfig, day time.Time) ([]model.IssuerRecord, Summary, error) {
	var s Summary
	log := zap.L().With(zap.String("taxpayer", tp.Name))

	docs, err := d.client.SearchReceived(ctx, tp.RIN, day)
	if err != nil {
		return nil, s, err
	}

	var recs []model.IssuerRecord
	for _, doc := range docs {
		received, err := doc.ReceivedAt()
		if err != nil {
			log.Warn("skipping document", zap.String("uuid", doc.UUID), zap.Error(err))
			continue
		}
		received = received.In(day.Location())
		if !sameDay(received, day) {
			continue
		}
		if ctx.Err() != nil {
			return recs, s, ctx.Err()
		}

		status := d.document(ctx, tp, day, doc, &s)
		issuer := strings.Join(strings.Fields(doc.IssuerName), " ")
		if issuer == "" {
			issuer = model.UnknownIssuer
		}
		recs = append(recs, model.IssuerRecord{
			InvoiceID:      doc.UUID,
			IssuerName:     issuer,
			SubmissionDate: received.Format("02-01-2006 15:04"),
			Status:         status,
			Taxpayer:       tp.Name,
			DateProcessed:  d.now().Format("2006-01-02 15:04:05"),
		})
	}
	log.Info("taxpayer downloaded", zap.Int("documents", len(recs)))
	return recs, s, nil
}

// document fetches one document's JSON and PDF and returns its index
// status.
func (d *Downloader) document(ctx context.Context, tp config.TaxpayerConfig, day time.Time, doc portal.DocumentSummary, s *Summary) string {
	jsonPath := JSONPath(d.paths.JSONRoot, day, tp.Name, doc.UUID)
	pdfPath := PDFPath(d.paths.PDFRoot, day, tp.Name, doc.UUID)
	cancelled := isCancelled(doc.Status)
	log := zap.L().With(zap.String("taxpayer", tp.Name), zap.String("uuid", doc.UUID))

	if exists(jsonPath) && exists(pdfPath) {
		s.Skipped++
		if cancelled {
			return model.DownloadCancel
		}
		return model.DownloadOK
	}

	jsonOK := d.save(ctx, jsonPath, func(ctx context.Context) ([]byte, error) {
		return d.client.RawDocument(ctx, tp.RIN, doc.UUID)
	}, nil, log)
	pdfOK := d.save(ctx, pdfPath, func(ctx context.Context) ([]byte, error) {
		return d.client.DocumentPDF(ctx, tp.RIN, doc.UUID)
	}, checkPDF, log)

	switch {
	case jsonOK && pdfOK && cancelled:
		s.Cancelled++
		return model.DownloadCancel
	case jsonOK && pdfOK:
		s.Downloaded++
		return model.DownloadOK
	case jsonOK || pdfOK:
		s.Partial++
		return model.DownloadPartial
	default:
		s.Failed++
		return model.DownloadFailed
	}
}

func (d *Downloader) save(ctx context.Context, path string, fetch func(context.Context) ([]byte, error), check func([]byte) (int, error), log *zap.Logger) bool {
	data, err := fetch(ctx)
	if err != nil {
		log.Warn("fetch failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		return false
	}
	if check != nil {
		if _, err := check(data); err != nil {
			log.Warn("invalid file", zap.String("file", filepath.Base(path)), zap.Error(err))
			return false
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Error("create directory failed", zap.Error(err))
		return false
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.Error("write failed", zap.String("file", path), zap.Error(err))
		return false
	}
	return true
}

func (s *Summary) add(o Summary) {
	s.Downloaded += o.Downloaded
	s.Skipped += o.Skipped
	s.Cancelled += o.Cancelled
	s.Partial += o.Partial
	s.Failed += o.Failed
	s.Missing += o.Missing
}

func isCancelled(status string) bool {
	return strings.Contains(strings.ToLower(status), "cancel") || strings.Contains(status, "ملغ")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
