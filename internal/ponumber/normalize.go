package ponumber

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// longDigitRun matches registration numbers, tax ids and other codes that are
// never order references.
var longDigitRun = regexp.MustCompile(`\d{7,}`)

// Unicode-aware word boundaries: letters and digits of any script count as
// word characters, so "4567ب" has no boundary after the 7.
const (
	boundaryBefore = `(?:^|[^\p{L}\p{N}_])`
	boundaryAfter  = `(?:$|[^\p{L}\p{N}_])`
)

// normalize converts Arabic-Indic digits to ASCII and replaces every run of
// seven or more digits with a single space. blanked lists the replaced runs.
func normalize(text string) (normalized string, blanked []string) {
	converted := arabicDigits.Replace(text)
	blanked = longDigitRun.FindAllString(converted, -1)
	if len(blanked) == 0 {
		return converted, nil
	}
	return longDigitRun.ReplaceAllString(converted, " "), blanked
}

// Scan is one candidate text prepared for the strategies.
type Scan struct {
	// Text is the normalized text.
	Text string
	// Field is the source field label, used in logs and by field-level rules.
	Field string

	runes []rune
	log   *zap.Logger
}

func newScan(text, field string, log *zap.Logger) *Scan {
	normalized, blanked := normalize(text)
	if len(blanked) > 0 {
		log.Debug("blanking long digit runs", zap.String("field", field), zap.Strings("runs", blanked))
	}
	return &Scan{
		Text:  normalized,
		Field: field,
		runes: []rune(normalized),
		log:   log,
	}
}

// firstIndex returns the rune offset of the first occurrence of sub, or -1.
func (s *Scan) firstIndex(sub string) int {
	i := strings.Index(s.Text, sub)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(s.Text[:i])
}

// window returns runes [start, end) clamped to the text.
func (s *Scan) window(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s.runes) {
		end = len(s.runes)
	}
	if start >= end {
		return ""
	}
	return string(s.runes[start:end])
}

// around returns the lower-cased n runes before and after the token at pos,
// excluding the token itself.
func (s *Scan) around(pos, length, n int) string {
	return strings.ToLower(s.window(pos-n, pos) + s.window(pos+length, pos+length+n))
}

func (s *Scan) reject(strategy, token, reason string) {
	s.log.Debug("token rejected",
		zap.String("field", s.Field),
		zap.String("strategy", strategy),
		zap.String("token", token),
		zap.String("reason", reason),
	)
}
