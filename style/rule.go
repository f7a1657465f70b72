package style

import (
	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/markup"
)

// Placeholder is inserted into the backbone once per inline attachment.
const Placeholder = "\uFFFC"

// Rule styles one tag name. Attributes is called once per span and depends
// only on it; Transform supplies literal text for tag parts (see
// markup.Transformer).
type Rule interface {
	Attributes(span markup.TaggedSpan) Attrs
	Transform(tag markup.Tag, kind markup.Kind) (string, bool)
}

// Rules maps lowercase tag names to their rule. Tags without a rule are
// inert: their content stays in the backbone without attributes.
type Rules map[string]Rule

var _ markup.Transformer = Rules(nil)

// Transform implements markup.Transformer by delegating to the tag's rule.
func (r Rules) Transform(tag markup.Tag, kind markup.Kind) (string, bool) {
	rule, ok := r[tag.Name]
	if !ok || rule == nil {
		return "", false
	}
	return rule.Transform(tag, kind)
}

// StyleFunc is an attribute-only rule applied to content spans.
type StyleFunc func(span markup.TaggedSpan) Attrs

// Attributes implements Rule.
func (f StyleFunc) Attributes(span markup.TaggedSpan) Attrs {
	if span.Kind != markup.Content {
		return Attrs{}
	}
	return f(span)
}

// Transform implements Rule; StyleFunc never changes text.
func (StyleFunc) Transform(markup.Tag, markup.Kind) (string, bool) { return "", false }

// LinkRule styles anchors: Base plus a link identity taken from the href
// attribute. Anchors without href only get Base.
type LinkRule struct {
	Base Attrs
}

// Attributes implements Rule.
func (r LinkRule) Attributes(span markup.TaggedSpan) Attrs {
	if span.Kind != markup.Content {
		return Attrs{}
	}
	href, ok := span.Tag.Attrs.Get("href")
	if !ok {
		return r.Base
	}
	return r.Base.Link(href)
}

// Transform implements Rule.
func (LinkRule) Transform(markup.Tag, markup.Kind) (string, bool) { return "", false }

// ImageRule turns image tags into a placeholder rune bound to an attachment
// built by Factory. Tags that yield no attachment still get Base.
type ImageRule struct {
	Base    Attrs
	Factory *attach.Factory
}

// Attributes implements Rule. Only the span covering the placeholder gets
// the attachment: the content span of a self-closing tag, or the opening span
// of a paired one.
func (r ImageRule) Attributes(span markup.TaggedSpan) Attrs {
	if span.Kind == markup.Closing || span.Range.Empty() {
		return Attrs{}
	}
	if r.Factory == nil {
		return r.Base
	}
	at, ok := r.Factory.FromTag(span.Tag)
	if !ok {
		return r.Base
	}
	return r.Base.Attach(at)
}

// Transform implements Rule: the opening part becomes one placeholder, the
// inner content of a paired tag is dropped.
func (ImageRule) Transform(_ markup.Tag, kind markup.Kind) (string, bool) {
	switch kind {
	case markup.Opening:
		return Placeholder, true
	case markup.Content:
		return "", true
	default:
		return "", false
	}
}
