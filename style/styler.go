package style

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/ByLCY/tweetstyle/markup"
)

// Styler runs parse, flatten, resolve and assemble for one rule set.
// A Styler is safe for concurrent use once built.
type Styler struct {
	rules  Rules
	detect []Detect
	parse  []markup.Option
	logger *slog.Logger
}

// Option configures a Styler.
type Option func(*Styler)

// WithRules registers every rule in rules, replacing existing ones.
func WithRules(rules Rules) Option {
	return func(s *Styler) { maps.Copy(s.rules, rules) }
}

// WithRule registers rule for tag name.
func WithRule(name string, rule Rule) Option {
	return func(s *Styler) { s.rules[name] = rule }
}

// WithDetector adds a detection pass.
func WithDetector(d Detector, rule DetectionRule) Option {
	return func(s *Styler) { s.detect = append(s.detect, Detect{Detector: d, Rule: rule}) }
}

// WithParseOptions forwards options to markup.Parse.
func WithParseOptions(opts ...markup.Option) Option {
	return func(s *Styler) { s.parse = append(s.parse, opts...) }
}

// WithLogger sets the logger; nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Styler) { s.logger = l }
}

// New builds a Styler.
func New(opts ...Option) *Styler {
	s := &Styler{rules: Rules{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Style styles src. A parse failure returns an error wrapping
// markup.ErrMalformedMarkup and no StyledText.
func (s *Styler) Style(src string) (*StyledText, error) {
	doc, err := markup.Parse(src, s.parse...)
	if err != nil {
		s.logger.Debug("markup rejected", "comp", "style", "stage", "parse", "err", err)
		return nil, fmt.Errorf("style markup: %w", err)
	}
	flat := markup.Flatten(doc, s.rules)
	bindings := Resolve(flat, s.rules, s.detect...)
	st, err := Assemble(flat.Text, bindings)
	if err != nil {
		return nil, fmt.Errorf("assemble styled text: %w", err)
	}
	s.logger.Debug("styled",
		"comp", "style", "stage", "assemble",
		"runes", st.Len(), "bindings", len(bindings), "attachments", len(st.attachments))
	return st, nil
}
