package style

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ByLCY/tweetstyle/markup"
)

// Detector finds pattern-shaped spans in backbone text. Ranges are rune
// offsets.
type Detector interface {
	Detect(text string) []markup.Range
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(text string) []markup.Range

// Detect implements Detector.
func (f DetectorFunc) Detect(text string) []markup.Range { return f(text) }

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"\x{FFFC}]+`)

// URLDetector finds http(s) and www. links. Trailing sentence punctuation is
// not part of the link; a closing bracket is kept when it closes one opened
// inside the link.
type URLDetector struct{}

// Detect implements Detector.
func (URLDetector) Detect(text string) []markup.Range {
	return regexpRanges(urlPattern, text, trimURL)
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

func trimURL(m string) string {
	for m != "" {
		last := m[len(m)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', '\'':
		case ')', ']', '}':
			if strings.Count(m, string(closers[last])) >= strings.Count(m, string(last)) {
				return m
			}
		default:
			return m
		}
		m = m[:len(m)-1]
	}
	return m
}

// RegexpDetector reports every match of Pattern.
type RegexpDetector struct {
	Pattern *regexp.Regexp
}

// Detect implements Detector.
func (d RegexpDetector) Detect(text string) []markup.Range {
	if d.Pattern == nil {
		return nil
	}
	return regexpRanges(d.Pattern, text, nil)
}

func regexpRanges(re *regexp.Regexp, text string, trim func(string) string) []markup.Range {
	var out []markup.Range
	for _, loc := range re.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		if trim != nil {
			match = trim(match)
		}
		if match == "" {
			continue
		}
		start := utf8.RuneCountInString(text[:loc[0]])
		out = append(out, markup.Range{Start: start, End: start + utf8.RuneCountInString(match)})
	}
	return out
}

// Detection is one detected span handed to a DetectionRule.
type Detection struct {
	Range markup.Range
	Text  string

	existing []Binding
}

// FirstExisting returns the first tag-pass value for key on a binding that
// overlaps the detection.
func (d Detection) FirstExisting(key Key) (any, bool) {
	for _, b := range d.existing {
		if !b.Range.Overlaps(d.Range) {
			continue
		}
		if v, ok := b.Attrs.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// DetectionRule proposes attributes for a detected span. Empty attrs mean
// the detection is ignored.
type DetectionRule interface {
	Propose(d Detection) Attrs
}

// DetectionFunc adapts a function to DetectionRule.
type DetectionFunc func(d Detection) Attrs

// Propose implements DetectionRule.
func (f DetectionFunc) Propose(d Detection) Attrs { return f(d) }

// Detect pairs a detector with the rule styling its matches.
type Detect struct {
	Detector Detector
	Rule     DetectionRule
}

// LinkDetection styles detected text as a link to itself unless a tag
// already gave the range a link identity.
func LinkDetection(base Attrs) DetectionRule {
	return DetectionFunc(func(d Detection) Attrs {
		if _, ok := d.FirstExisting(Link); ok {
			return Attrs{}
		}
		return base.Link(d.Text)
	})
}
