package ponumber

import (
	"strings"

	"golang.org/x/text/cases"
)

// Classification is the supplier class that picks the extraction path.
type Classification int

const (
	// Ordinary issuers go through relationship checks and keyword-gated
	// extraction.
	Ordinary Classification = iota
	// Excluded issuers are never linked; the reference is a note.
	Excluded
	// BarakatGroup issuers carry references in structured fields, which are
	// always scanned.
	BarakatGroup
)

func (c Classification) String() string {
	switch c {
	case Excluded:
		return "excluded"
	case BarakatGroup:
		return "barakat_group"
	default:
		return "ordinary"
	}
}

// Classify tags an issuer by name. Exclusion is checked first.
func (v *Vocabulary) Classify(issuerName string) Classification {
	compact := strings.ReplaceAll(strings.TrimSpace(issuerName), " ", "")
	if compact == "" {
		return Ordinary
	}
	if containsAny(compact, v.ExcludedSuppliers) != "" {
		return Excluded
	}
	folded := cases.Fold().String(compact)
	for _, pattern := range v.BarakatGroup {
		if pattern != "" && strings.Contains(folded, cases.Fold().String(pattern)) {
			return BarakatGroup
		}
	}
	return Ordinary
}

// RelationshipNote reports whether the issuer/receiver pair is blocked and
// the note to write. A blocked pair with an empty note is a silent skip.
func (v *Vocabulary) RelationshipNote(issuerName, receiverName string) (string, bool) {
	issuer := strings.TrimSpace(issuerName)
	receiver := strings.TrimSpace(receiverName)
	for _, rule := range v.RelationshipExclusions {
		if rule.IssuerContains != "" && strings.Contains(issuer, rule.IssuerContains) {
			return rule.Note, true
		}
		if rule.ReceiverContains != "" && strings.Contains(receiver, rule.ReceiverContains) {
			return rule.Note, true
		}
	}
	return "", false
}

// StatusLabel maps a scraped or document status to "Cancelled" or
// "Rejected". The scraped status wins when both are set.
func StatusLabel(scraped, document string) string {
	for _, status := range []string{scraped, document} {
		lower := strings.ToLower(status)
		if lower == "" {
			continue
		}
		if strings.Contains(lower, "cancel") || strings.Contains(lower, "ملغ") {
			return "Cancelled"
		}
		if strings.Contains(lower, "reject") || strings.Contains(lower, "مرفوض") || strings.Contains(lower, "invalid") {
			return "Rejected"
		}
	}
	return ""
}
