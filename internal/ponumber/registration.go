package ponumber

import (
	"regexp"

	"go.uber.org/zap"
)

// registrationScan returns 4-6 digit numbers written immediately before the
// registration number anchor, separated only by spaces, commas or dashes.
// The text is scanned as-is: the anchor is itself a long digit run.
func registrationScan(text, anchor, field string, f tokenFilter, log *zap.Logger) []string {
	re := regexp.MustCompile(`(\d{4,6})\s*[،,\-\s]*` + regexp.QuoteMeta(anchor))
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		tok := m[1]
		if reason := f.reject(tok); reason != "" {
			log.Debug("token rejected",
				zap.String("field", field),
				zap.String("strategy", "registration-proximity"),
				zap.String("token", tok),
				zap.String("reason", reason),
			)
			continue
		}
		out = append(out, tok)
	}
	return out
}
