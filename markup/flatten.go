package markup

// Kind tells which part of an element a span describes.
type Kind int

const (
	Opening Kind = iota
	Closing
	Content
)

func (k Kind) String() string {
	switch k {
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	case Content:
		return "content"
	default:
		return "unknown"
	}
}

// Range is a half-open [Start, End) interval of rune offsets into the backbone text.
type Range struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// Len returns End-Start.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether the range covers no runes.
func (r Range) Empty() bool { return r.End <= r.Start }

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos int) bool { return pos >= r.Start && pos < r.End }

// Overlaps reports whether both ranges share at least one rune.
func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

// TaggedSpan is one part of an element positioned over the backbone text.
type TaggedSpan struct {
	Tag   Tag
	Kind  Kind
	Range Range
	Depth int
}

// Transformer supplies literal text for element parts. Opening and Closing
// results are inserted before and after the content; a Content result
// replaces the element's inner text. Returning false leaves the part as is.
type Transformer interface {
	Transform(tag Tag, kind Kind) (string, bool)
}

// Flat is the backbone text plus the spans positioned over it.
type Flat struct {
	Text  string
	Spans []TaggedSpan
}

// Flatten strips tag delimiters from doc, applying tr (which may be nil) to
// insert or replace text. Pairs yield Opening, Content and Closing spans;
// self-closing elements yield one Content span over the text their
// transforms inserted. Spans are ordered by start, outer elements first.
func Flatten(doc *Document, tr Transformer) Flat {
	if doc == nil {
		return Flat{}
	}
	f := &flattener{tr: tr}
	f.walk(doc.Nodes, 0)
	return Flat{Text: string(f.buf), Spans: f.spans}
}

type flattener struct {
	tr    Transformer
	buf   []rune
	spans []TaggedSpan
}

func (f *flattener) walk(nodes []Node, depth int) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Text:
			f.buf = append(f.buf, []rune(n.Value)...)
		case *Element:
			f.element(n, depth)
		}
	}
}

func (f *flattener) element(el *Element, depth int) {
	if el.SelfClosing {
		start := len(f.buf)
		idx := f.reserve(el.Tag, Content, depth)
		f.insert(el.Tag, Opening)
		f.insert(el.Tag, Closing)
		f.spans[idx].Range = Range{Start: start, End: len(f.buf)}
		return
	}

	openStart := len(f.buf)
	openIdx := f.reserve(el.Tag, Opening, depth)
	f.insert(el.Tag, Opening)
	f.spans[openIdx].Range = Range{Start: openStart, End: len(f.buf)}

	contentStart := len(f.buf)
	contentIdx := f.reserve(el.Tag, Content, depth)
	mark := len(f.spans)
	f.walk(el.Children, depth+1)
	if repl, ok := f.transform(el.Tag, Content); ok {
		f.buf = append(f.buf[:contentStart], []rune(repl)...)
		f.spans = f.spans[:mark]
	}
	f.spans[contentIdx].Range = Range{Start: contentStart, End: len(f.buf)}

	closeStart := len(f.buf)
	closeIdx := f.reserve(el.Tag, Closing, depth)
	f.insert(el.Tag, Closing)
	f.spans[closeIdx].Range = Range{Start: closeStart, End: len(f.buf)}
}

func (f *flattener) reserve(tag Tag, kind Kind, depth int) int {
	f.spans = append(f.spans, TaggedSpan{Tag: tag, Kind: kind, Depth: depth})
	return len(f.spans) - 1
}

func (f *flattener) insert(tag Tag, kind Kind) {
	if s, ok := f.transform(tag, kind); ok {
		f.buf = append(f.buf, []rune(s)...)
	}
}

func (f *flattener) transform(tag Tag, kind Kind) (string, bool) {
	if f.tr == nil {
		return "", false
	}
	return f.tr.Transform(tag, kind)
}
