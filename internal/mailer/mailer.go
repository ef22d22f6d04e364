// Package mailer emails a day's results workbooks to the configured
// recipients.
package mailer

import (
	"context"
	"errors"
	"html/template"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/resilience"
)

// ErrNoReports is returned when a date folder holds no results workbook.
var ErrNoReports = errors.New("mailer: no results workbooks found")

// Report is one supplier's results workbook.
type Report struct {
	Supplier string `json:"supplier"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Records  int    `json:"records"`
}

// Attachment is the file name the report is sent under.
func (r Report) Attachment(date string) string {
	return AttachmentName(date, r.Supplier)
}

// Batch is everything sent for one date.
type Batch struct {
	Date    string   `json:"date"`
	Dir     string   `json:"dir"`
	Reports []Report `json:"reports"`
}

// Records sums the data rows across all reports.
func (b *Batch) Records() int {
	n := 0
	for _, r := range b.Reports {
		n += r.Records
	}
	return n
}

// FindReports collects <outputs>/<date>/Excel/*/results.xlsx. An empty date
// picks the most recent dd-mm-yyyy folder under outputs.
func FindReports(outputs, date string) (*Batch, error) {
	if date == "" {
		latest, err := LatestDate(outputs)
		if err != nil {
			return nil, err
		}
		date = latest
	}

	dir := filepath.Join(outputs, date)
	excel := filepath.Join(dir, "Excel")
	entries, err := os.ReadDir(excel)
	if err != nil {
		return nil, eris.Wrapf(err, "mailer: list %s", excel)
	}

	b := &Batch{Date: date, Dir: dir}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(excel, e.Name(), "results.xlsx")
		info, err := os.Stat(path)
		if err != nil {
			zap.L().Warn("no results workbook for supplier", zap.String("supplier", e.Name()))
			continue
		}
		b.Reports = append(b.Reports, Report{
			Supplier: e.Name(),
			Path:     path,
			Size:     info.Size(),
			Records:  countRecords(path),
		})
	}
	if len(b.Reports) == 0 {
		return nil, eris.Wrapf(ErrNoReports, "mailer: %s", excel)
	}
	return b, nil
}

// LatestDate returns the newest dd-mm-yyyy folder name under outputs.
func LatestDate(outputs string) (string, error) {
	entries, err := os.ReadDir(outputs)
	if err != nil {
		return "", eris.Wrapf(err, "mailer: list %s", outputs)
	}
	var (
		best   string
		bestAt time.Time
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := time.Parse(model.DateLayout, e.Name())
		if err != nil {
			continue
		}
		if best == "" || t.After(bestAt) {
			best, bestAt = e.Name(), t
		}
	}
	if best == "" {
		return "", eris.Errorf("mailer: no date folders in %s", outputs)
	}
	return best, nil
}

func countRecords(path string) int {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		zap.L().Warn("count records failed", zap.String("path", path), zap.Error(err))
		return 0
	}
	if len(rows) <= 1 {
		return 0
	}
	return len(rows) - 1
}

var (
	unsafeName = regexp.MustCompile(`[^\w\-.]`)
	underscore = regexp.MustCompile(`_+`)
)

// AttachmentName builds <date>_<supplier>_results.xlsx reduced to ASCII
// word characters, dashes and dots.
func AttachmentName(date, supplier string) string {
	date = strings.NewReplacer("/", "-", `\`, "-", ":", "-").Replace(date)
	name := supplier + "_results.xlsx"
	if date != "" {
		name = date + "_" + name
	}
	name = strings.NewReplacer(" ", "_", "(", "", ")", "").Replace(name)
	name = strings.NewReplacer("/", "-", `\`, "-", ":", "-").Replace(name)
	name = strings.Map(func(r rune) rune {
		if r > 127 {
			return '_'
		}
		return r
	}, name)
	name = unsafeName.ReplaceAllString(name, "_")
	return underscore.ReplaceAllString(name, "_")
}

// Mailer sends report batches over SMTP.
type Mailer struct {
	cfg   config.MailConfig
	retry resilience.RetryConfig
	send  func(ctx context.Context, msg *mail.Msg) error
	now   func() time.Time
}

// New creates a Mailer. Temporary SMTP failures are retried with retry.
func New(cfg config.MailConfig, retry resilience.RetryConfig) *Mailer {
	m := &Mailer{cfg: cfg, retry: retry, now: time.Now}
	m.retry.ShouldRetry = retryable
	m.retry.OnRetry = resilience.RetryLogger("smtp", "send")
	m.send = m.dialAndSend
	return m
}

// Subject returns "<prefix> - <date>".
func (m *Mailer) Subject(date string) string {
	prefix := m.cfg.SubjectPrefix
	if prefix == "" {
		prefix = "Invoice Processing Report"
	}
	return prefix + " - " + date
}

// Build assembles the message for b.
func (m *Mailer) Build(b *Batch) (*mail.Msg, error) {
	if len(m.cfg.Recipients) == 0 {
		return nil, eris.New("mailer: no recipients configured")
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, eris.Wrapf(err, "mailer: sender %q", m.cfg.From)
	}
	if err := msg.To(m.cfg.Recipients...); err != nil {
		return nil, eris.Wrap(err, "mailer: recipients")
	}
	msg.Subject(m.Subject(b.Date))
	if err := msg.SetBodyHTMLTemplate(bodyTemplate, m.bodyData(b)); err != nil {
		return nil, eris.Wrap(err, "mailer: render body")
	}
	for _, r := range b.Reports {
		msg.AttachFile(r.Path, mail.WithFileName(r.Attachment(b.Date)))
	}
	return msg, nil
}

// Send builds and delivers the message for b.
func (m *Mailer) Send(ctx context.Context, b *Batch) error {
	msg, err := m.Build(b)
	if err != nil {
		return err
	}
	err = resilience.Do(ctx, m.retry, func(ctx context.Context) error {
		return m.send(ctx, msg)
	})
	if err != nil {
		return eris.Wrapf(err, "mailer: send %s", b.Date)
	}
	zap.L().Info("report email sent",
		zap.String("date", b.Date),
		zap.Int("attachments", len(b.Reports)),
		zap.Int("recipients", len(m.cfg.Recipients)),
	)
	return nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	timeout := time.Duration(m.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	c, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(timeout),
	)
	if err != nil {
		return eris.Wrap(err, "mailer: create client")
	}
	return c.DialAndSendWithContext(ctx, msg)
}

// retryable treats 4xx SMTP replies and network errors as transient.
func retryable(err error) bool {
	var se *mail.SendError
	if errors.As(err, &se) {
		return se.IsTemp()
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		return resilience.IsTransientSMTPCode(te.Code)
	}
	return resilience.IsTransient(err)
}

type bodyRow struct {
	Name     string
	Supplier string
	KB       float64
	Records  int
}

type bodyData struct {
	Generated string
	Date      string
	Dir       string
	Suppliers int
	Records   int
	Files     []bodyRow
}

func (m *Mailer) bodyData(b *Batch) bodyData {
	dir := b.Dir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	d := bodyData{
		Generated: m.now().Format("2006-01-02 15:04:05"),
		Date:      b.Date,
		Dir:       dir,
		Suppliers: len(b.Reports),
		Records:   b.Records(),
	}
	for _, r := range b.Reports {
		d.Files = append(d.Files, bodyRow{
			Name:     r.Attachment(b.Date),
			Supplier: r.Supplier,
			KB:       float64(r.Size) / 1024,
			Records:  r.Records,
		})
	}
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Name < d.Files[j].Name })
	return d
}

var bodyTemplate = template.Must(template.New("body").Parse(`<html>
<body>
<h2>Invoice Processing Report</h2>
<p><strong>Report Generated:</strong> {{.Generated}}</p>
<p><strong>Processing Date:</strong> {{.Date}}</p>
<h3>Summary</h3>
<ul>
<li><strong>Suppliers Processed:</strong> {{.Suppliers}}</li>
<li><strong>Excel Reports Attached:</strong> {{len .Files}}</li>
{{if .Records}}<li><strong>Total Invoice Records:</strong> {{.Records}}</li>{{end}}
</ul>
<h3>Output Location</h3>
<p><strong>Excel Files:</strong> <code>{{.Dir}}/Excel/&lt;Supplier&gt;/results.xlsx</code></p>
<p><strong>PDF Files:</strong> <code>{{.Dir}}/PDF/&lt;Supplier&gt;/*.pdf</code></p>
<h3>Attached Files</h3>
<ul>
{{range .Files}}<li><strong>{{.Name}}</strong> - {{.Supplier}} ({{printf "%.1f" .KB}} KB, {{.Records}} records)</li>
{{end}}</ul>
<p>Each file lists invoice ids, dates, totals, issuer details, the extracted purchase order number and the portal status.</p>
<hr>
<p><em>This is an automated report generated by the invoice processing system.</em></p>
</body>
</html>
`))
