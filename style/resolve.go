package style

import (
	"github.com/ByLCY/tweetstyle/markup"
)

// Pass tells which stage produced a binding.
type Pass int

const (
	TagPass Pass = iota
	DetectionPass
)

func (p Pass) String() string {
	if p == DetectionPass {
		return "detection"
	}
	return "tag"
}

// Binding applies Attrs to a backbone range.
type Binding struct {
	Range markup.Range
	Attrs Attrs
	Pass  Pass
}

// Resolve runs the tag pass over flat's spans and then every detector over
// the backbone. Spans with no registered rule and empty proposals produce no
// binding.
func Resolve(flat markup.Flat, rules Rules, detect ...Detect) []Binding {
	var tagged []Binding
	for _, span := range flat.Spans {
		rule, ok := rules[span.Tag.Name]
		if !ok || rule == nil {
			continue
		}
		attrs := rule.Attributes(span)
		if attrs.Empty() {
			continue
		}
		tagged = append(tagged, Binding{Range: span.Range, Attrs: attrs, Pass: TagPass})
	}

	out := tagged
	if len(detect) == 0 {
		return out
	}
	runes := []rune(flat.Text)
	for _, d := range detect {
		if d.Detector == nil || d.Rule == nil {
			continue
		}
		for _, r := range d.Detector.Detect(flat.Text) {
			if r.Empty() || r.Start < 0 || r.End > len(runes) {
				continue
			}
			attrs := d.Rule.Propose(Detection{
				Range:    r,
				Text:     string(runes[r.Start:r.End]),
				existing: tagged,
			})
			if attrs.Empty() {
				continue
			}
			out = append(out, Binding{Range: r, Attrs: attrs, Pass: DetectionPass})
		}
	}
	return out
}
