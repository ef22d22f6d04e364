package model

// ReportColumns are the results workbook headers, in order. The spellings are
// what downstream reconciliation sheets look up.
var ReportColumns = []string{
	"INTERNAL ID -1",
	"INTERNAL ID -2",
	"DATE",
	"TYPE",
	"version",
	"TOTAL VALUE EGP",
	"FROM",
	"REGESTRAION NUMBER",
	"STATUS",
	"REGESTRAION",
	"PO number",
}

// Row is one line of a taxpayer's results workbook.
type Row struct {
	UUID                 string `json:"uuid"`
	InternalID           string `json:"internal_id"`
	Date                 string `json:"date"`
	Type                 string `json:"type"`
	Version              string `json:"version"`
	Total                string `json:"total"`
	From                 string `json:"from"`
	IssuerRegistration   string `json:"issuer_registration"`
	Status               string `json:"status"`
	ReceiverRegistration string `json:"receiver_registration"`
	PONumber             string `json:"po_number"`

	// Outcome is the extraction outcome kind; not written to the workbook.
	Outcome string `json:"outcome,omitempty"`
}

// Values returns the row cells in ReportColumns order.
func (r Row) Values() []string {
	return []string{
		r.UUID,
		r.InternalID,
		r.Date,
		r.Type,
		r.Version,
		r.Total,
		r.From,
		r.IssuerRegistration,
		r.Status,
		r.ReceiverRegistration,
		r.PONumber,
	}
}

// ErrorRow is written in place of an invoice that could not be read.
func ErrorRow(status string) Row {
	return Row{Type: "Error", Status: status}
}

// IssuerRecord is one row of the daily issuer index workbook written by the
// fetch stage and read back by the extract stage.
type IssuerRecord struct {
	InvoiceID      string `json:"invoice_id"`
	IssuerName     string `json:"issuer_name"`
	SubmissionDate string `json:"submission_date"`
	Status         string `json:"status"`
	Taxpayer       string `json:"taxpayer"`
	DateProcessed  string `json:"date_processed"`
}

// IndexColumns are the issuer index headers, in order.
var IndexColumns = []string{
	"Invoice ID",
	"Issuer Name",
	"Submission Date",
	"Status",
	"Taxpayer",
	"Date Processed",
}

// Download statuses recorded in the issuer index.
const (
	DownloadOK      = "Downloaded"
	DownloadPartial = "Partial Download"
	DownloadFailed  = "Failed"
	DownloadCancel  = "Cancelled"
	DownloadError   = "Error"
)

// UnknownIssuer marks an index row whose issuer could not be read.
const UnknownIssuer = "غير محدد"

// DateLayout formats run dates in folder names, file names and CLI flags.
const DateLayout = "02-01-2006"
