package ponumber

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Strategy is one tier of the extraction chain. Extract returns the accepted
// tokens in the order found; an empty result passes control to the next tier.
type Strategy interface {
	Name() string
	Extract(s *Scan) []string
}

// Strategy names, in chain order.
const (
	StrategyPonumParenthesized = "ponum-parenthesized"
	StrategyPonumFor           = "ponum-for"
	StrategyPOStuck            = "po-stuck"
	StrategyPODotStuck         = "po-dot-stuck"
	StrategyPONoShort          = "pono-short"
	StrategyPOPrefix           = "po-prefix"
	StrategyKeywordMulti       = "keyword-multi"
	StrategyPOParenthesized    = "po-parenthesized"
	StrategyParenthesizedNear  = "parenthesized-near-keyword"
	StrategyKeywordSingle      = "keyword-single"
	StrategyFallback           = "fallback"
)

var digitRun = regexp.MustCompile(`\d{4,6}`)

// tokenFilter is the cheap check every pattern tier applies to its captures.
type tokenFilter struct {
	vocab    *Vocabulary
	trailing string // rejected suffix, "" for none
	checkLen bool
}

// reject returns why tok fails the filter, or "".
func (f tokenFilter) reject(tok string) string {
	switch {
	case strings.HasPrefix(tok, "0"):
		return "leading zero"
	case inSet(tok, f.vocab.Years):
		return "calendar year"
	case inSet(tok, f.vocab.PostalCodes):
		return "common postal code"
	case f.checkLen && (len(tok) < 4 || len(tok) > 6):
		return "length"
	case f.trailing != "" && strings.HasSuffix(tok, f.trailing):
		return "trailing zeros"
	case hasAnyPrefix(tok, f.vocab.RepeatedPrefixes):
		return "repeated prefix"
	}
	return ""
}

// patternStrategy runs one regular expression and filters what it captures.
type patternStrategy struct {
	name   string
	re     *regexp.Regexp
	group  int
	split  bool // pull every 4-6 digit run out of the capture
	dedupe bool
	filter tokenFilter

	// lookback > 0 admits a token only when a PO keyword appears in the
	// lookback runes before the first "(<token>".
	lookback int
	keywords []string
}

func (p *patternStrategy) Name() string { return p.name }

func (p *patternStrategy) Extract(s *Scan) []string {
	var out []string
	for _, m := range p.re.FindAllStringSubmatch(s.Text, -1) {
		captured := m[p.group]
		nums := []string{captured}
		if p.split {
			nums = digitRun.FindAllString(captured, -1)
		}
		for _, n := range nums {
			if reason := p.filter.reject(n); reason != "" {
				s.reject(p.name, n, reason)
				continue
			}
			if p.lookback > 0 && !p.keywordBefore(s, n) {
				s.reject(p.name, n, "no keyword before parenthesis")
				continue
			}
			out = append(out, n)
		}
	}
	if p.dedupe {
		out = dedupe(out)
	}
	return out
}

func (p *patternStrategy) keywordBefore(s *Scan, tok string) bool {
	pos := s.firstIndex("(" + tok)
	if pos < 0 {
		return false
	}
	return containsAny(strings.ToLower(s.window(pos-p.lookback, pos)), p.keywords) != ""
}

// DefaultStrategies builds the standard chain for v: ten pattern tiers
// followed by the fallback scan.
func DefaultStrategies(v *Vocabulary) ([]Strategy, error) {
	multi, err := keywordPattern(v.MultiKeywordPatterns,
		`\s*[:/\-]?\s*(?P<num>\d{4,6}(?:\s*[/\-\\,،\s+]+\s*\d{4,6})*)`)
	if err != nil {
		return nil, eris.Wrap(err, "ponumber: compile multi keyword pattern")
	}
	single, err := keywordPattern(v.SingleKeywordPatterns, `\s*[:/\-]?\s*(?P<num>\d{4,6})`)
	if err != nil {
		return nil, eris.Wrap(err, "ponumber: compile single keyword pattern")
	}

	strict := func(trailing string) tokenFilter {
		return tokenFilter{vocab: v, trailing: trailing, checkLen: true}
	}
	loose := func(trailing string) tokenFilter {
		return tokenFilter{vocab: v, trailing: trailing}
	}

	return []Strategy{
		&patternStrategy{
			name:   StrategyPonumParenthesized,
			re:     regexp.MustCompile(`(?i)\(ponum([^)]+)\)`),
			group:  1,
			split:  true,
			filter: strict("000"),
		},
		&patternStrategy{
			name:   StrategyPonumFor,
			re:     regexp.MustCompile(`(?i)ponumfor[^\d]*?(?:is|:)\s*(\d{4,6})`),
			group:  1,
			filter: strict("00"),
		},
		&patternStrategy{
			name:   StrategyPOStuck,
			re:     regexp.MustCompile(`(?i)p0?(\d{4,6})` + boundaryAfter),
			group:  1,
			filter: loose("000"),
		},
		&patternStrategy{
			name:   StrategyPODotStuck,
			re:     regexp.MustCompile(`(?i)p\.o?(\d{4,6})` + boundaryAfter),
			group:  1,
			filter: loose("000"),
		},
		&patternStrategy{
			name:   StrategyPONoShort,
			re:     regexp.MustCompile(`(?i)po\s*no\s*[:\-]\s*(\d{3,6})`),
			group:  1,
			filter: loose("000"),
		},
		&patternStrategy{
			name:   StrategyPOPrefix,
			re:     regexp.MustCompile(`(?i)po[#\-_\s]*[a-z]*\s*(\d{4,6})`),
			group:  1,
			filter: loose("00"),
		},
		&patternStrategy{
			name:   StrategyKeywordMulti,
			re:     multi,
			group:  multi.SubexpIndex(numGroup),
			split:  true,
			dedupe: true,
			filter: strict("00"),
		},
		&patternStrategy{
			name:   StrategyPOParenthesized,
			re:     regexp.MustCompile(`(?i)\((?:po\s*no\.?|po\s*num\.?|po)\s*(\d{4,6})\)`),
			group:  1,
			filter: strict("00"),
		},
		&patternStrategy{
			name:     StrategyParenthesizedNear,
			re:       regexp.MustCompile(`\((\d{4,6})[A-Za-z]?\)`),
			group:    1,
			filter:   strict("00"),
			lookback: 50,
			keywords: v.POKeywords,
		},
		&patternStrategy{
			name:   StrategyKeywordSingle,
			re:     single,
			group:  single.SubexpIndex(numGroup),
			filter: loose("00"),
		},
		newFallback(v),
	}, nil
}

// numGroup names the captured number in keyword patterns.
const numGroup = "num"

// keywordPattern joins keyword alternatives into a case-insensitive pattern.
// tail captures the number as the only group named numGroup; alternatives
// may carry their own groups.
func keywordPattern(alternatives []string, tail string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alternatives, "|") + `)` + tail)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, name := range re.SubexpNames() {
		if name == numGroup {
			n++
		}
	}
	if n != 1 {
		return nil, eris.Errorf("pattern must name exactly one %q group, found %d", numGroup, n)
	}
	return re, nil
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
