// Package report turns a day's downloaded invoices into one results
// workbook per taxpayer and files the PDFs next to them.
package report

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/download"
	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/ponumber"
)

const resultsSheet = "Results"

// TaxpayerReport is the outcome for one taxpayer folder.
type TaxpayerReport struct {
	Taxpayer string      `json:"taxpayer"`
	Alias    string      `json:"alias"`
	Path     string      `json:"path"`
	Rows     []model.Row `json:"-"`
}

// Summary counts the outcome of a report run.
type Summary struct {
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Rows       int              `json:"rows"`
	WithPO     int              `json:"with_po"`
	PDFsCopied int              `json:"pdfs_copied"`
	Reports    []TaxpayerReport `json:"reports"`
}

// Generator runs the extract stage.
type Generator struct {
	cfg      *config.Config
	resolver *ponumber.Resolver
	workers  int
}

// New creates a Generator.
func New(cfg *config.Config, resolver *ponumber.Resolver) *Generator {
	workers := cfg.Extract.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Generator{cfg: cfg, resolver: resolver, workers: workers}
}

// ExcelPath returns <outputs>/<date>/Excel/<alias>/results.xlsx.
func ExcelPath(outputs string, day time.Time, alias string) string {
	return filepath.Join(outputs, day.Format(model.DateLayout), "Excel", alias, "results.xlsx")
}

// Run builds the reports for day. A taxpayer with no usable rows counts as
// failed; Run errors when no taxpayer succeeded.
func (g *Generator) Run(ctx context.Context, day time.Time) (*Summary, error) {
	date := day.Format(model.DateLayout)
	log := zap.L().With(zap.String("date", date))

	idx := loadIndex(download.IndexPath(g.cfg.Paths.Logs, day))
	log.Info("issuer index loaded", zap.Int("records", idx.len()))

	jsonDay := filepath.Join(g.cfg.Paths.JSONRoot, date)
	folders, err := subdirs(jsonDay)
	if err != nil {
		return nil, eris.Wrapf(err, "report: list %s", jsonDay)
	}

	summary := &Summary{}
	for _, folder := range folders {
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "report: cancelled")
		}
		alias := g.alias(folder)
		rows, err := g.taxpayer(ctx, filepath.Join(jsonDay, folder), idx)
		if err != nil {
			summary.Failed++
			log.Error("taxpayer report failed", zap.String("taxpayer", folder), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			summary.Failed++
			log.Warn("no valid rows for taxpayer", zap.String("taxpayer", folder))
			continue
		}

		path := ExcelPath(g.cfg.Paths.Outputs, day, alias)
		values := make([][]string, len(rows))
		for i, r := range rows {
			values[i] = r.Values()
			if r.PONumber != "" {
				summary.WithPO++
			}
		}
		if err := fetcher.WriteXLSX(path, resultsSheet, model.ReportColumns, values); err != nil {
			summary.Failed++
			log.Error("write results failed", zap.String("taxpayer", folder), zap.Error(err))
			continue
		}

		summary.Succeeded++
		summary.Rows += len(rows)
		summary.Reports = append(summary.Reports, TaxpayerReport{Taxpayer: folder, Alias: alias, Path: path, Rows: rows})
		log.Info("taxpayer report written", zap.String("taxpayer", alias), zap.Int("rows", len(rows)), zap.String("path", path))
	}

	copied, err := g.copyPDFs(day)
	summary.PDFsCopied = copied
	if err != nil {
		log.Error("copy pdfs failed", zap.Error(err))
	}

	if summary.Succeeded == 0 {
		return summary, eris.Errorf("report: no taxpayer produced a report for %s", date)
	}
	return summary, nil
}

// taxpayer resolves every JSON file in dir, keeping the first row per uuid.
func (g *Generator) taxpayer(ctx context.Context, dir string, idx *index) ([]model.Row, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "report: glob json")
	}
	sort.Strings(files)

	rows := make([]model.Row, len(files))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, f := range files {
		eg.Go(func() error {
			if ectx.Err() != nil {
				return ectx.Err()
			}
			rows[i] = g.file(f, idx)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for i, r := range rows {
		name := filepath.Base(files[i])
		switch {
		case r.UUID == "":
			zap.L().Error("missing uuid, row skipped", zap.String("file", name))
		case seen[r.UUID]:
			zap.L().Warn("duplicate uuid, row skipped", zap.String("uuid", r.UUID), zap.String("file", name))
		default:
			seen[r.UUID] = true
			out = append(out, r)
		}
	}
	return out, nil
}

// file builds the row for one JSON file. Unreadable files become error
// rows keyed by the file name.
func (g *Generator) file(path string, idx *index) model.Row {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		zap.L().Error("read invoice failed", zap.String("file", path), zap.Error(err))
		row := model.ErrorRow("Error: " + err.Error())
		row.UUID = stem
		return row
	}
	doc, err := model.ParseDocument(raw)
	if err != nil {
		zap.L().Error("json decode failed", zap.String("file", path), zap.Error(err))
		row := model.ErrorRow("JSON Error")
		row.UUID = stem
		return row
	}

	rec := idx.lookup(doc.ID())
	issuer := IssuerName(rec, doc)
	res := g.resolver.Resolve(doc, issuer, rec.Status)

	return model.Row{
		UUID:                 doc.UUID,
		InternalID:           doc.InternalID,
		Date:                 reportDate(rec.SubmissionDate, doc.DateTimeReceived),
		Type:                 doc.DocumentType(),
		Version:              doc.TypeVersionName,
		Total:                doc.Total,
		From:                 issuer,
		IssuerRegistration:   doc.IssuerID,
		Status:               doc.EnvelopeStatus,
		ReceiverRegistration: doc.ReceiverID,
		PONumber:             res.Reference,
		Outcome:              string(res.Outcome),
	}
}

// alias maps a taxpayer folder to its configured alias. Folder names
// containing a configured name also match.
func (g *Generator) alias(folder string) string {
	if a := g.cfg.TaxpayerAlias(folder); a != folder {
		return a
	}
	for _, tp := range g.cfg.Taxpayers {
		if tp.Alias != "" && tp.Name != "" && strings.Contains(folder, tp.Name) {
			return tp.Alias
		}
	}
	return folder
}

// copyPDFs copies <pdf_root>/<date>/<taxpayer>/*.pdf into
// <outputs>/<date>/PDF/<alias>/ and removes the source day folder once
// anything was copied.
func (g *Generator) copyPDFs(day time.Time) (int, error) {
	date := day.Format(model.DateLayout)
	src := filepath.Join(g.cfg.Paths.PDFRoot, date)
	folders, err := subdirs(src)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("pdf source directory does not exist", zap.String("dir", src))
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "report: list %s", src)
	}

	copied := 0
	for _, folder := range folders {
		dst := filepath.Join(g.cfg.Paths.Outputs, date, "PDF", g.alias(folder))
		pdfs, _ := filepath.Glob(filepath.Join(src, folder, "*.pdf"))
		if len(pdfs) == 0 {
			zap.L().Warn("no pdf files for taxpayer", zap.String("taxpayer", folder))
			continue
		}
		if err := os.MkdirAll(dst, 0o750); err != nil {
			return copied, eris.Wrap(err, "report: create pdf directory")
		}
		for _, p := range pdfs {
			if err := copyFile(p, filepath.Join(dst, filepath.Base(p))); err != nil {
				return copied, err
			}
			copied++
		}
	}

	if copied == 0 {
		zap.L().Warn("no pdfs copied, keeping source directory", zap.String("dir", src))
		return 0, nil
	}
	if err := os.RemoveAll(src); err != nil {
		return copied, eris.Wrap(err, "report: remove pdf source")
	}
	zap.L().Info("pdfs copied", zap.Int("count", copied), zap.String("removed", src))
	return copied, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "report: read %s", src)
	}
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "report: stat %s", src)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return eris.Wrapf(err, "report: write %s", dst)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
