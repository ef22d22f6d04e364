package ponumber

import (
	"go.uber.org/zap"
)

// Extractor runs candidate texts through the strategy chain.
type Extractor struct {
	vocab      *Vocabulary
	strategies []Strategy
	log        *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// NewExtractor builds an Extractor over v. A nil logger discards diagnostics.
func NewExtractor(v *Vocabulary, log *zap.Logger, opts ...Option) (*Extractor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{vocab: v, log: log}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		strategies, err := DefaultStrategies(v)
		if err != nil {
			return nil, err
		}
		e.strategies = strategies
	}
	return e, nil
}

// Extract returns the tokens of the first strategy that accepts anything.
// Later strategies are not consulted.
func (e *Extractor) Extract(text, field string) []string {
	if text == "" {
		return nil
	}
	s := newScan(text, field, e.log)
	for _, st := range e.strategies {
		tokens := st.Extract(s)
		if len(tokens) == 0 {
			continue
		}
		e.log.Debug("strategy matched",
			zap.String("field", field),
			zap.String("strategy", st.Name()),
			zap.Strings("tokens", tokens),
		)
		return tokens
	}
	return nil
}
