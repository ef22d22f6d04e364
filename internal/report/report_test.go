package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/download"
	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/ponumber"
)

const taxpayer = "شركه ثري ام بي"

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func newGenerator(t *testing.T) (*Generator, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Taxpayers: []config.TaxpayerConfig{{Name: taxpayer, Alias: "3MP"}},
		Paths: config.PathsConfig{
			JSONRoot: filepath.Join(root, "json"),
			PDFRoot:  filepath.Join(root, "pdf"),
			Outputs:  filepath.Join(root, "outputs"),
			Logs:     filepath.Join(root, "logs"),
		},
		Extract: config.ExtractConfig{Workers: 2},
	}
	res, err := ponumber.NewResolver(ponumber.DefaultVocabulary(), zap.NewNop())
	require.NoError(t, err)
	return New(cfg, res), cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestRun(t *testing.T) {
	g, cfg := newGenerator(t)
	jsonDir := filepath.Join(cfg.Paths.JSONRoot, "14-03-2026", taxpayer)

	writeFile(t, filepath.Join(jsonDir, "a.json"), `{
		"uuid": "U1", "internalId": "INV-1", "typeName": "I", "typeVersionName": "1.0",
		"total": 1140.5, "issuerName": "Envelope Name", "issuerId": "111", "receiverId": "222",
		"status": "Valid", "dateTimeReceived": "2026-03-13T22:10:00Z",
		"document": "{\"issuer\":{\"name\":\"Document Name\"},\"purchaseOrderReference\":\"45678\"}"
	}`)
	writeFile(t, filepath.Join(jsonDir, "b.json"), `{"uuid": "U1", "internalId": "INV-1-copy"}`)
	writeFile(t, filepath.Join(jsonDir, "c.json"), `{"uuid": `)
	writeFile(t, filepath.Join(jsonDir, "d.json"), `{"total": 5}`)
	writeFile(t, filepath.Join(jsonDir, "e.json"), `{
		"uuid": "U2", "typeName": "C", "status": "Valid",
		"issuerName": "  Nile   Supplies ", "dateTimeReceived": "2026-03-14T09:00:00Z",
		"document": {"purchaseOrderReference": "45678"}
	}`)
	writeFile(t, filepath.Join(jsonDir, "f.json"), `{
		"uuid": "U3", "typeName": "I", "status": "Valid",
		"document": {"issuer": {"name": "مكتب علمي ام ام فارما"}, "purchaseOrderReference": "45678"}
	}`)
	writeFile(t, filepath.Join(cfg.Paths.PDFRoot, "14-03-2026", taxpayer, "U1.pdf"), "%PDF-1.4")

	require.NoError(t, download.WriteIndex(download.IndexPath(cfg.Paths.Logs, day), []model.IssuerRecord{
		{InvoiceID: "U1", IssuerName: "Delta   Medical", SubmissionDate: "14/03/2026 10:22", Status: model.DownloadOK},
		{InvoiceID: "u2", IssuerName: model.UnknownIssuer, SubmissionDate: "garbage", Status: model.DownloadOK},
	}))

	s, err := g.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Succeeded)
	assert.Zero(t, s.Failed)
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 3, s.WithPO)
	assert.Equal(t, 1, s.PDFsCopied)
	require.Len(t, s.Reports, 1)
	assert.Equal(t, "3MP", s.Reports[0].Alias)

	rows := s.Reports[0].Rows
	require.Len(t, rows, 4)

	assert.Equal(t, model.Row{
		UUID: "U1", InternalID: "INV-1", Date: "2026-03-14", Type: model.TypeInvoice, Version: "1.0",
		Total: "1140.5", From: "Delta Medical", IssuerRegistration: "111", Status: "Valid",
		ReceiverRegistration: "222", PONumber: "45678", Outcome: string(ponumber.OutcomeExtracted),
	}, rows[0])

	assert.Equal(t, model.Row{UUID: "c", Type: "Error", Status: "JSON Error"}, rows[1])

	assert.Equal(t, "U2", rows[2].UUID)
	assert.Equal(t, "Nile Supplies", rows[2].From)
	assert.Equal(t, "2026-03-14", rows[2].Date)
	assert.Equal(t, model.TypeCreditNote, rows[2].Type)
	assert.Equal(t, "لا يتم الربط مع الفواتير ال credit note", rows[2].PONumber)

	assert.Equal(t, "U3", rows[3].UUID)
	assert.Equal(t, "مكتب علمي ام ام فارما", rows[3].From)
	assert.Equal(t, "لا يتم الربط مع مكتب علمي ام ام فارما", rows[3].PONumber)
	assert.Empty(t, rows[3].Date)

	excel := ExcelPath(cfg.Paths.Outputs, day, "3MP")
	got, err := fetcher.ReadXLSX(excel, fetcher.XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, model.ReportColumns, got[0])
	assert.Equal(t, rows[0].Values(), got[1])

	assert.FileExists(t, filepath.Join(cfg.Paths.Outputs, "14-03-2026", "PDF", "3MP", "U1.pdf"))
	assert.NoDirExists(t, filepath.Join(cfg.Paths.PDFRoot, "14-03-2026"))
}

func TestRun_NoUsableRows(t *testing.T) {
	g, cfg := newGenerator(t)
	writeFile(t, filepath.Join(cfg.Paths.JSONRoot, "14-03-2026", taxpayer, "x.json"), `{"total": 1}`)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.JSONRoot, "14-03-2026", "empty"), 0o750))

	s, err := g.Run(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no taxpayer produced a report")
	assert.Equal(t, 2, s.Failed)
	assert.NoFileExists(t, ExcelPath(cfg.Paths.Outputs, day, "3MP"))
}

func TestRun_NoDownloads(t *testing.T) {
	g, _ := newGenerator(t)
	_, err := g.Run(context.Background(), day)
	assert.ErrorContains(t, err, "report: list")
}

func TestCopyPDFs_NothingCopiedKeepsSource(t *testing.T) {
	g, cfg := newGenerator(t)
	src := filepath.Join(cfg.Paths.PDFRoot, "14-03-2026", "Unknown Co")
	require.NoError(t, os.MkdirAll(src, 0o750))
	writeFile(t, filepath.Join(src, "notes.txt"), "x")

	n, err := g.copyPDFs(day)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.DirExists(t, src)

	n, err = g.copyPDFs(day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAlias(t *testing.T) {
	g, _ := newGenerator(t)
	assert.Equal(t, "3MP", g.alias(taxpayer))
	assert.Equal(t, "3MP", g.alias(taxpayer+" (2)"))
	assert.Equal(t, "Other Co", g.alias("Other Co"))
}
