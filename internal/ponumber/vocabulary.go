// Package ponumber extracts purchase-order references from received
// e-invoices. It classifies the issuer, selects candidate fields, scans each
// one through an ordered chain of pattern strategies and joins the surviving
// tokens into the value written to the report's "PO number" column.
package ponumber

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var embeddedVocabulary []byte

// RelationshipRule blocks linkage for a named counterparty. Exactly one of
// IssuerContains or ReceiverContains is set. An empty Note produces an empty
// reference.
type RelationshipRule struct {
	IssuerContains   string `yaml:"issuer_contains"`
	ReceiverContains string `yaml:"receiver_contains"`
	Note             string `yaml:"note"`
}

// Vocabulary is the keyword and fixed-set data behind every heuristic.
type Vocabulary struct {
	POKeywords              []string `yaml:"po_keywords"`
	MultiKeywordPatterns    []string `yaml:"multi_keyword_patterns"`
	SingleKeywordPatterns   []string `yaml:"single_keyword_patterns"`
	ReceiverNameKeywords    []string `yaml:"receiver_name_keywords"`
	LineDescriptionKeywords []string `yaml:"line_description_keywords"`

	UnitKeywords      []string `yaml:"unit_keywords"`
	FinancialKeywords []string `yaml:"financial_keywords"`
	VehicleKeywords   []string `yaml:"vehicle_keywords"`
	PostalKeywords    []string `yaml:"postal_keywords"`
	PostalFields      []string `yaml:"postal_fields"`
	DeliveryKeywords  []string `yaml:"delivery_keywords"`
	YearKeywords      []string `yaml:"year_keywords"`
	CurrencyWords     []string `yaml:"currency_words"`

	Years            []string `yaml:"years"`
	PostalCodes      []string `yaml:"postal_codes"`
	RepeatedPrefixes []string `yaml:"repeated_prefixes"`
	PhonePrefixes    []string `yaml:"phone_prefixes"`

	ExcludedSuppliers      []string           `yaml:"excluded_suppliers"`
	BarakatGroup           []string           `yaml:"barakat_group"`
	RelationshipExclusions []RelationshipRule `yaml:"relationship_exclusions"`

	CreditNoteText         string `yaml:"credit_note_text"`
	ExcludedSupplierPrefix string `yaml:"excluded_supplier_prefix"`
}

// DefaultVocabulary returns a fresh copy of the embedded vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(embeddedVocabulary)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads a vocabulary file. An empty path yields the embedded
// default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, eris.Wrapf(err, "ponumber: read vocabulary %s", path)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates vocabulary YAML.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "ponumber: parse vocabulary")
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Validate checks that the lists the strategies cannot run without are set.
func (v *Vocabulary) Validate() error {
	var missing []string
	if len(v.POKeywords) == 0 {
		missing = append(missing, "po_keywords")
	}
	if len(v.MultiKeywordPatterns) == 0 {
		missing = append(missing, "multi_keyword_patterns")
	}
	if len(v.SingleKeywordPatterns) == 0 {
		missing = append(missing, "single_keyword_patterns")
	}
	if len(v.FinancialKeywords) == 0 {
		missing = append(missing, "financial_keywords")
	}
	if len(v.CurrencyWords) == 0 {
		missing = append(missing, "currency_words")
	}
	for i, r := range v.RelationshipExclusions {
		if (r.IssuerContains == "") == (r.ReceiverContains == "") {
			missing = append(missing, fmt.Sprintf("relationship_exclusions[%d] needs exactly one of issuer_contains, receiver_contains", i))
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("ponumber: invalid vocabulary: %s", strings.Join(missing, ", "))
	}
	return nil
}

// containsAny returns the first keyword found in text, or "".
func containsAny(text string, keywords []string) string {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func inSet(s string, set []string) bool {
	return slices.Contains(set, s)
}
