package markup

import "strings"

// Document is a parsed, correctly nested markup tree.
type Document struct {
	Source string
	Nodes  []Node
}

// Node is either *Text or *Element.
type Node interface {
	node()
}

// Text is literal text between tags.
type Text struct {
	Value  string
	Offset int
}

// Element is a tag occurrence together with its children. Self-closing
// elements never have children.
type Element struct {
	Tag         Tag
	SelfClosing bool
	Children    []Node
	Offset      int
}

func (*Text) node()    {}
func (*Element) node() {}

// Tag is a tag name plus its attributes.
type Tag struct {
	Name  string
	Attrs Attributes
}

// Attr is a single key/value pair.
type Attr struct {
	Key   string
	Value string
}

// Attributes keeps attributes in source order with unique keys; the first
// occurrence of a key wins.
type Attributes struct {
	list []Attr
}

// NewAttributes builds Attributes from pairs, dropping repeated keys.
func NewAttributes(pairs ...Attr) Attributes {
	var a Attributes
	for _, p := range pairs {
		a.add(p.Key, p.Value)
	}
	return a
}

func (a *Attributes) add(key, value string) bool {
	key = strings.ToLower(key)
	for _, existing := range a.list {
		if existing.Key == key {
			return false
		}
	}
	a.list = append(a.list, Attr{Key: key, Value: value})
	return true
}

// Get returns the value for key.
func (a Attributes) Get(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, at := range a.list {
		if at.Key == key {
			return at.Value, true
		}
	}
	return "", false
}

// Len returns the number of attributes.
func (a Attributes) Len() int { return len(a.list) }

// All returns a copy of the attributes in source order.
func (a Attributes) All() []Attr {
	out := make([]Attr, len(a.list))
	copy(out, a.list)
	return out
}

type openFrame struct {
	el  *Element
	raw *rawOpen
}

func buildTree(src string, raw *rawDocument, cfg parseConfig) (*Document, error) {
	doc := &Document{Source: src}
	var stack []openFrame

	appendNode := func(n Node) {
		if len(stack) == 0 {
			doc.Nodes = append(doc.Nodes, n)
			return
		}
		top := stack[len(stack)-1].el
		top.Children = append(top.Children, n)
	}

	for _, rn := range raw.Nodes {
		switch {
		case rn.Text != nil:
			appendNode(&Text{Value: cfg.text(*rn.Text), Offset: rn.Pos.Offset})

		case rn.Open != nil:
			op := rn.Open
			el := &Element{
				Tag:         Tag{Name: string(op.Name)},
				SelfClosing: op.SelfClosing || cfg.voidTags[string(op.Name)],
				Offset:      op.Pos.Offset,
			}
			for _, at := range op.Attrs {
				val := ""
				if at.Value != nil {
					val = cfg.text(string(*at.Value))
				}
				el.Tag.Attrs.add(at.Key, val)
			}
			appendNode(el)
			if !el.SelfClosing {
				stack = append(stack, openFrame{el: el, raw: op})
			}

		case rn.Close != nil:
			name := string(rn.Close.Name)
			pos := rn.Close.Pos
			if len(stack) == 0 {
				return nil, &MalformedMarkupError{
					Offset: pos.Offset, Line: pos.Line, Column: pos.Column,
					Tag: name, Reason: "closing tag without matching opening tag",
				}
			}
			top := stack[len(stack)-1]
			if top.el.Tag.Name != name {
				return nil, &MalformedMarkupError{
					Offset: pos.Offset, Line: pos.Line, Column: pos.Column,
					Tag:    name,
					Reason: "improperly nested, expected </" + top.el.Tag.Name + ">",
				}
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1].raw
		return nil, &MalformedMarkupError{
			Offset: open.Pos.Offset, Line: open.Pos.Line, Column: open.Pos.Column,
			Tag: string(open.Name), Reason: "unclosed tag",
		}
	}
	return doc, nil
}
