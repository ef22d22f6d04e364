package report

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/download"
	"github.com/sells-group/einvoice-cli/internal/model"
)

// index looks up issuer records by invoice id, exactly first and then
// ignoring case.
type index struct {
	exact map[string]model.IssuerRecord
	fold  map[string]model.IssuerRecord
}

// loadIndex never fails: a missing or malformed workbook yields an empty
// index and the report falls back to document fields.
func loadIndex(path string) *index {
	idx := &index{exact: map[string]model.IssuerRecord{}, fold: map[string]model.IssuerRecord{}}
	recs, err := download.LoadIndex(path)
	switch {
	case errors.Is(err, download.ErrIndexMissing):
		zap.L().Warn("issuer index not found", zap.String("path", path))
		return idx
	case err != nil:
		zap.L().Error("issuer index unusable", zap.String("path", path), zap.Error(err))
		return idx
	}
	for _, r := range recs {
		idx.exact[r.InvoiceID] = r
		key := strings.ToLower(r.InvoiceID)
		if _, dup := idx.fold[key]; !dup {
			idx.fold[key] = r
		}
	}
	return idx
}

func (i *index) len() int { return len(i.exact) }

func (i *index) lookup(id string) model.IssuerRecord {
	if id == "" {
		return model.IssuerRecord{}
	}
	if r, ok := i.exact[id]; ok {
		return r
	}
	return i.fold[strings.ToLower(id)]
}

// IssuerName prefers the index name, then the document issuer, then the
// envelope issuerName, with whitespace collapsed.
func IssuerName(rec model.IssuerRecord, doc *model.InvoiceDocument) string {
	for _, name := range []string{rec.IssuerName, doc.Issuer.Name, doc.IssuerName} {
		name = strings.TrimSpace(name)
		if name == "" || name == model.UnknownIssuer {
			continue
		}
		return strings.Join(strings.Fields(name), " ")
	}
	return ""
}

// reportDate formats the DATE column as yyyy-mm-dd from the index
// submission date, falling back to the envelope dateTimeReceived.
func reportDate(submission, received string) string {
	if s := strings.TrimSpace(submission); s != "" && s != model.UnknownIssuer {
		s = strings.ReplaceAll(strings.Fields(s)[0], "/", "-")
		for _, layout := range []string{model.DateLayout, "2006-01-02", "2-1-2006", "2006-1-2"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02")
			}
		}
	}
	if d, _, _ := strings.Cut(received, "T"); d != "" {
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
