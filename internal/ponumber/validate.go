package ponumber

import (
	"regexp"
	"strings"
)

// tokenContext is a fallback token with its surroundings. Positions are rune
// offsets of the token's first occurrence in the scan text.
type tokenContext struct {
	scan  *Scan
	token string
	pos   int
	wide  string // 100 runes either side, lower-cased
	near  string // 40 runes either side, lower-cased
}

// predicate is one hard-reject rule of the fallback validator.
type predicate struct {
	name   string
	reject func(c *tokenContext) bool
}

// validator runs the fallback predicates in order; the first match rejects.
type validator struct {
	vocab      *Vocabulary
	predicates []predicate

	poKeywordAlt string
	financialAlt string
	currencyAlt  string
}

const modelAdjacent = `[A-Za-z]`

func newValidator(v *Vocabulary) *validator {
	val := &validator{
		vocab:        v,
		poKeywordAlt: quotedAlternation(v.POKeywords),
		financialAlt: quotedAlternation(v.FinancialKeywords),
		currencyAlt:  quotedAlternation(v.CurrencyWords),
	}
	val.predicates = []predicate{
		{"common postal code", func(c *tokenContext) bool { return inSet(c.token, v.PostalCodes) }},
		{"repeated prefix", func(c *tokenContext) bool { return hasAnyPrefix(c.token, v.RepeatedPrefixes) }},
		{"leading zero", func(c *tokenContext) bool { return strings.HasPrefix(c.token, "0") }},
		{"trailing zeros", func(c *tokenContext) bool { return strings.HasSuffix(c.token, "000") }},
		{"vehicle context", func(c *tokenContext) bool { return containsAny(c.wide, v.VehicleKeywords) != "" }},
		{"postal context", val.postalContext},
		{"delivery context", val.deliveryContext},
		{"dimension", val.dimension},
		{"model number", val.modelNumber},
		{"financial value", val.financial},
		{"unit context", func(c *tokenContext) bool { return containsAny(c.near, v.UnitKeywords) != "" }},
		{"calendar year", func(c *tokenContext) bool { return inSet(c.token, v.Years) }},
		{"manufacturing year", val.manufacturingYear},
		{"common pattern", func(c *tokenContext) bool {
			return strings.HasSuffix(c.token, "000") || strings.HasPrefix(c.token, "999")
		}},
		{"price", val.price},
		{"phone prefix", func(c *tokenContext) bool { return hasAnyPrefix(c.token, v.PhonePrefixes) }},
	}
	return val
}

// check returns the name of the first predicate rejecting tok, or "".
func (val *validator) check(s *Scan, tok string) string {
	pos := s.firstIndex(tok)
	if pos < 0 {
		return "not found"
	}
	c := &tokenContext{
		scan:  s,
		token: tok,
		pos:   pos,
		wide:  s.around(pos, len(tok), 100),
		near:  s.around(pos, len(tok), 40),
	}
	for _, p := range val.predicates {
		if p.reject(c) {
			return p.name
		}
	}
	return ""
}

func (val *validator) postalContext(c *tokenContext) bool {
	return inSet(c.scan.Field, val.vocab.PostalFields) || containsAny(c.wide, val.vocab.PostalKeywords) != ""
}

func (val *validator) deliveryContext(c *tokenContext) bool {
	return containsAny(c.wide, val.vocab.DeliveryKeywords) != "" &&
		containsAny(c.wide, val.vocab.POKeywords) == ""
}

// dimension matches A x B x N, N x A x B, A x N x B, A x N, N x A and the
// 4-6 digit pairings, with x, × or / as separators.
func (val *validator) dimension(c *tokenContext) bool {
	m := regexp.QuoteMeta(c.token)
	alts := []string{
		`\d{1,4}[/x×]\d{1,4}[/x×]` + m,
		m + `[/x×]\d{1,4}[/x×]\d{1,4}`,
		`\d{1,4}[/x×]` + m + `[/x×]\d{1,4}`,
		`\d{1,4}\s*[x×]\s*` + m,
		m + `\s*[x×]\s*\d{1,4}`,
		m + `\s*[x×]\s*\d{4,6}`,
		`\d{4,6}\s*[x×]\s*` + m,
	}
	re := regexp.MustCompile(`(?i)` + boundaryBefore + `(?:` + strings.Join(alts, "|") + `)` + boundaryAfter)
	return re.MatchString(c.scan.Text)
}

// modelNumber rejects tokens glued to letters, like "AB1234" or "1234XL",
// unless a PO keyword precedes them.
func (val *validator) modelNumber(c *tokenContext) bool {
	m := regexp.QuoteMeta(c.token)
	re := regexp.MustCompile(modelAdjacent + m + `|` + m + modelAdjacent)
	surrounding := c.scan.window(c.pos-10, c.pos+len(c.token)+10)
	if !re.MatchString(surrounding) {
		return false
	}
	before := strings.ToLower(c.scan.window(c.pos-50, c.pos))
	return containsAny(before, val.vocab.POKeywords) == ""
}

func (val *validator) financial(c *tokenContext) bool {
	text := c.scan.Text
	m := regexp.QuoteMeta(c.token)
	if strings.Contains(text, "("+c.token) {
		return false
	}
	nearKeyword := regexp.MustCompile(`(?i)(?:` + val.poKeywordAlt + `).{0,30}` + m)
	if nearKeyword.MatchString(text) {
		return false
	}
	amount := regexp.MustCompile(`(?i)(?:` + val.financialAlt + `)\s*` + m)
	return amount.MatchString(text)
}

func (val *validator) manufacturingYear(c *tokenContext) bool {
	if len(c.token) != 4 || (c.token[0] != '1' && c.token[0] != '2') {
		return false
	}
	return containsAny(c.near, val.vocab.YearKeywords) != ""
}

// price matches "<token>.<cents> <currency>" inside the 40-rune context.
func (val *validator) price(c *tokenContext) bool {
	re := regexp.MustCompile(`(?i)` + boundaryBefore + regexp.QuoteMeta(c.token) +
		`\.?\d{0,2}\s*(?:` + val.currencyAlt + `)` + boundaryAfter)
	return re.MatchString(c.near)
}

func quotedAlternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

// fallback scans every 4-6 digit run and keeps those the validator accepts.
type fallback struct {
	val *validator
}

func newFallback(v *Vocabulary) *fallback {
	return &fallback{val: newValidator(v)}
}

func (f *fallback) Name() string { return StrategyFallback }

func (f *fallback) Extract(s *Scan) []string {
	var out []string
	for _, tok := range digitRun.FindAllString(s.Text, -1) {
		if reason := f.val.check(s, tok); reason != "" {
			s.reject(StrategyFallback, tok, reason)
			continue
		}
		out = append(out, tok)
	}
	return out
}
