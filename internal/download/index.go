package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/model"
)

const indexSheet = "Invoices"

var (
	// ErrIndexMissing is returned when no index workbook exists for a day.
	ErrIndexMissing = eris.New("download: index workbook not found")
	// ErrIndexColumns is returned when the workbook lacks required headers.
	ErrIndexColumns = eris.New("download: index workbook missing required columns")
)

// IndexPath returns <logs>/invoices_data_<dd-mm-yyyy>.xlsx.
func IndexPath(logsDir string, day time.Time) string {
	return filepath.Join(logsDir, "invoices_data_"+day.Format(model.DateLayout)+".xlsx")
}

// LoadIndex reads the issuer index. Invoice ID, Issuer Name and Submission
// Date are required; the other columns are read when present.
func LoadIndex(path string) ([]model.IssuerRecord, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrIndexMissing
	}
	tbl, err := fetcher.ReadTable(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "download: read index %s", path)
	}
	if missing := tbl.Missing(model.IndexColumns[:3]...); len(missing) > 0 {
		return nil, eris.Wrapf(ErrIndexColumns, "%s", strings.Join(missing, ", "))
	}

	recs := make([]model.IssuerRecord, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		rec := model.IssuerRecord{
			InvoiceID:      tbl.Get(row, "Invoice ID"),
			IssuerName:     tbl.Get(row, "Issuer Name"),
			SubmissionDate: tbl.Get(row, "Submission Date"),
			Status:         tbl.Get(row, "Status"),
			Taxpayer:       tbl.Get(row, "Taxpayer"),
			DateProcessed:  tbl.Get(row, "Date Processed"),
		}
		if rec.InvoiceID == "" {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WriteIndex merges recs into the workbook at path. A record replaces an
// existing row with the same invoice id; other rows keep their order.
func WriteIndex(path string, recs []model.IssuerRecord) error {
	existing, err := LoadIndex(path)
	if err != nil && !errors.Is(err, ErrIndexMissing) {
		return err
	}

	pos := make(map[string]int, len(existing))
	for i, r := range existing {
		pos[r.InvoiceID] = i
	}
	for _, r := range recs {
		if i, ok := pos[r.InvoiceID]; ok {
			existing[i] = r
			continue
		}
		pos[r.InvoiceID] = len(existing)
		existing = append(existing, r)
	}

	rows := make([][]string, len(existing))
	for i, r := range existing {
		rows[i] = []string{r.InvoiceID, r.IssuerName, r.SubmissionDate, r.Status, r.Taxpayer, r.DateProcessed}
	}
	return fetcher.WriteXLSX(path, indexSheet, model.IndexColumns, rows)
}
