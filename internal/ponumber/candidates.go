package ponumber

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
)

// CandidateKind says how a candidate turns into tokens.
type CandidateKind int

const (
	// KindText is scanned by the strategy chain.
	KindText CandidateKind = iota
	// KindVerbatim is taken as the reference unchanged.
	KindVerbatim
	// KindRegistration collects numbers written just before a registration
	// number in the serialized document.
	KindRegistration
)

// Candidate is one field handed to extraction.
type Candidate struct {
	Kind  CandidateKind
	Field string
	Text  string
	// Anchor is the registration number for KindRegistration.
	Anchor string
}

// leadingDigits matches a line opening with a number in any script.
var leadingDigits = regexp.MustCompile(`(?:^|\n|\r)[\s\p{Z}]*\p{Nd}{4,6}`)

// Selector picks candidate fields from a document.
type Selector struct {
	vocab *Vocabulary
	log   *zap.Logger
}

// NewSelector builds a Selector over v.
func NewSelector(v *Vocabulary, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{vocab: v, log: log}
}

// Select returns candidates in scan order. Building number and postal code
// are never candidates.
func (s *Selector) Select(doc *model.InvoiceDocument, class Classification) []Candidate {
	if class == BarakatGroup {
		return s.barakat(doc)
	}
	return s.ordinary(doc)
}

func (s *Selector) ordinary(doc *model.InvoiceDocument) []Candidate {
	var out []Candidate
	add := func(field, text string) {
		if text != "" {
			out = append(out, Candidate{Kind: KindText, Field: field, Text: text})
		}
	}

	add("proformaInvoiceNumber", doc.ProformaInvoiceNumber)
	add("purchaseOrderReference", doc.PurchaseOrderReference)
	add("salesOrderReference", doc.SalesOrderReference)
	if doc.Issuer.ID != "" {
		out = append(out, Candidate{Kind: KindRegistration, Field: "issuer.id", Text: doc.Text, Anchor: doc.Issuer.ID})
	}
	add("receiver.address.landmark", doc.Receiver.Address.Landmark)
	add("receiver.address.additionalInformation", doc.Receiver.Address.AdditionalInformation)

	if name := doc.Receiver.Name; name != "" {
		if kw := containsAny(strings.ToLower(name), s.vocab.ReceiverNameKeywords); kw != "" {
			add("receiver.name", name)
		} else {
			s.skip("receiver.name", "no reference keyword")
		}
	}

	for i, line := range doc.InvoiceLines {
		if line.Description == "" {
			continue
		}
		field := fmt.Sprintf("invoiceLines[%d].description", i)
		if s.lineAdmitted(line.Description) {
			add(field, line.Description)
		} else {
			s.skip(field, "no reference keyword or leading number")
		}
	}
	return out
}

func (s *Selector) barakat(doc *model.InvoiceDocument) []Candidate {
	var out []Candidate
	verbatim := func(field, value string) {
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, Candidate{Kind: KindVerbatim, Field: field, Text: v})
		}
	}
	add := func(field, text string) {
		if text != "" {
			out = append(out, Candidate{Kind: KindText, Field: field, Text: text})
		}
	}

	verbatim("salesOrderReference", doc.SalesOrderReference)
	verbatim("purchaseOrderReference", doc.PurchaseOrderReference)
	add("receiver.name", doc.Receiver.Name)
	add("receiver.address.landmark", doc.Receiver.Address.Landmark)
	add("receiver.address.additionalInformation", doc.Receiver.Address.AdditionalInformation)
	for i, line := range doc.InvoiceLines {
		add(fmt.Sprintf("invoiceLines[%d].description", i), line.Description)
	}
	if doc.Receiver.ID != "" {
		out = append(out, Candidate{Kind: KindRegistration, Field: "receiver.id", Text: doc.Text, Anchor: doc.Receiver.ID})
	}
	return out
}

// lineAdmitted gates a line description on a reference keyword (case and
// whitespace insensitive) or a number opening a line.
func (s *Selector) lineAdmitted(desc string) bool {
	clean := strings.NewReplacer(" ", "", "\n", "", "\r", "").Replace(strings.ToLower(desc))
	if containsAny(clean, s.vocab.LineDescriptionKeywords) != "" {
		return true
	}
	return leadingDigits.MatchString(desc)
}

func (s *Selector) skip(field, reason string) {
	s.log.Debug("field skipped", zap.String("field", field), zap.String("reason", reason))
}
