package ponumber

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/einvoice-cli/internal/model"
)

// Outcome is the kind of value a Result carries.
type Outcome string

const (
	// OutcomeExtracted is a joined token list, possibly empty.
	OutcomeExtracted Outcome = "extracted"
	// OutcomeStatus is a Cancelled or Rejected label.
	OutcomeStatus Outcome = "status"
	// OutcomeCreditNote is the fixed credit note note.
	OutcomeCreditNote Outcome = "credit_note"
	// OutcomeExcludedSupplier is the excluded supplier note.
	OutcomeExcludedSupplier Outcome = "excluded_supplier"
	// OutcomeRelationship is a relationship exclusion note, possibly empty.
	OutcomeRelationship Outcome = "relationship_excluded"
)

// Result is the resolved reference for one invoice.
type Result struct {
	Reference      string         `json:"reference"`
	Outcome        Outcome        `json:"outcome"`
	Classification Classification `json:"-"`
	Tokens         []string       `json:"tokens"`
}

// Resolver turns a parsed document into the report's reference value.
type Resolver struct {
	vocab     *Vocabulary
	extractor *Extractor
	selector  *Selector
	proximity tokenFilter
	log       *zap.Logger
}

// NewResolver wires an extractor and selector over v. Options apply to the
// extractor.
func NewResolver(v *Vocabulary, log *zap.Logger, opts ...Option) (*Resolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ex, err := NewExtractor(v, log, opts...)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		vocab:     v,
		extractor: ex,
		selector:  NewSelector(v, log),
		proximity: tokenFilter{vocab: v, trailing: "00"},
		log:       log,
	}, nil
}

// Resolve computes the reference for doc. issuerName is the display name
// the caller settled on; scrapedStatus is the status recorded at download
// time and may be empty. Status labels win over every other outcome,
// followed by credit notes, excluded suppliers, the Barakat path, relationship
// exclusions and finally ordinary extraction.
func (r *Resolver) Resolve(doc *model.InvoiceDocument, issuerName, scrapedStatus string) Result {
	log := r.log.With(zap.String("invoice", doc.ID()), zap.String("issuer", issuerName))
	class := r.vocab.Classify(issuerName)

	if label := StatusLabel(scrapedStatus, doc.Status()); label != "" {
		log.Info("status overrides extraction", zap.String("status", label))
		return Result{Reference: label, Outcome: OutcomeStatus, Classification: class}
	}
	if doc.DocumentType() == model.TypeCreditNote {
		log.Info("credit note, extraction skipped")
		return Result{Reference: r.vocab.CreditNoteText, Outcome: OutcomeCreditNote, Classification: class}
	}
	if class == Excluded {
		log.Info("excluded supplier")
		return Result{
			Reference:      r.vocab.ExcludedSupplierPrefix + issuerName,
			Outcome:        OutcomeExcludedSupplier,
			Classification: class,
		}
	}
	if class == Ordinary {
		if note, blocked := r.vocab.RelationshipNote(issuerName, doc.Receiver.Name); blocked {
			log.Info("relationship excluded", zap.String("note", note))
			return Result{Reference: note, Outcome: OutcomeRelationship, Classification: class}
		}
	}

	tokens := r.collect(doc, class)
	res := Result{
		Reference:      strings.Join(tokens, ", "),
		Outcome:        OutcomeExtracted,
		Classification: class,
		Tokens:         tokens,
	}
	if len(tokens) == 0 {
		log.Warn("no purchase order found", zap.Stringer("class", class))
	} else {
		log.Info("purchase order found", zap.Stringer("class", class), zap.String("reference", res.Reference))
	}
	return res
}

// collect scans every candidate and deduplicates tokens in first-seen order.
func (r *Resolver) collect(doc *model.InvoiceDocument, class Classification) []string {
	var all []string
	for _, c := range r.selector.Select(doc, class) {
		switch c.Kind {
		case KindVerbatim:
			all = append(all, c.Text)
		case KindRegistration:
			all = append(all, registrationScan(c.Text, c.Anchor, c.Field, r.proximity, r.log)...)
		default:
			all = append(all, r.extractor.Extract(c.Text, c.Field)...)
		}
	}
	return dedupe(all)
}
