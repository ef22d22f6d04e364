package download

import (
	"bytes"
	"os"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
)

// Problem is an indexed invoice whose files are missing or unreadable.
type Problem struct {
	InvoiceID string `json:"invoice_id"`
	Taxpayer  string `json:"taxpayer"`
	Reason    string `json:"reason"`
}

// Verify checks that every downloaded invoice in the day's index has its
// JSON file and a PDF with at least one page. Failed rows are not checked.
func (d *Downloader) Verify(day time.Time) ([]Problem, error) {
	recs, err := LoadIndex(IndexPath(d.paths.Logs, day))
	if err != nil {
		return nil, err
	}

	var problems []Problem
	for _, r := range recs {
		if r.Status == model.DownloadFailed {
			continue
		}
		if reason := d.verifyOne(day, r); reason != "" {
			problems = append(problems, Problem{InvoiceID: r.InvoiceID, Taxpayer: r.Taxpayer, Reason: reason})
		}
	}
	if len(problems) > 0 {
		zap.L().Warn("download verification found problems", zap.Int("count", len(problems)))
	}
	return problems, nil
}

func (d *Downloader) verifyOne(day time.Time, r model.IssuerRecord) string {
	if !exists(JSONPath(d.paths.JSONRoot, day, r.Taxpayer, r.InvoiceID)) {
		return "json missing"
	}
	data, err := os.ReadFile(PDFPath(d.paths.PDFRoot, day, r.Taxpayer, r.InvoiceID))
	if err != nil {
		return "pdf missing"
	}
	if _, err := checkPDF(data); err != nil {
		return err.Error()
	}
	return ""
}

// checkPDF parses data as a PDF and returns its page count. A document
// with no pages is an error.
func checkPDF(data []byte) (n int, err error) {
	// The parser panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, eris.Errorf("pdf unreadable: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, eris.Wrap(err, "pdf unreadable")
	}
	n = r.NumPage()
	if n < 1 {
		return 0, eris.New("pdf has no pages")
	}
	return n, nil
}
