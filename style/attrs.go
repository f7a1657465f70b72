// Package style turns parsed markup into an immutable StyledText: tag rules
// and detectors propose attributes, the assembler merges them per rune.
package style

import (
	"image/color"

	"github.com/ByLCY/tweetstyle/attach"
)

// Key identifies one visual attribute.
type Key int

const (
	Foreground Key = iota // color.RGBA
	Background            // color.RGBA
	Underline             // bool
	Bold                  // bool
	Italic                // bool
	Link                  // string payload, the link identity
	Attachment            // attach.Attachment
	Font                  // string font resource name
)

var keyNames = [...]string{"foreground", "background", "underline", "bold", "italic", "link", "attachment", "font"}

func (k Key) String() string {
	if k < 0 || int(k) >= len(keyNames) {
		return "unknown"
	}
	return keyNames[k]
}

// Attr is a key with its value.
type Attr struct {
	Key   Key
	Value any
}

// Attrs is an ordered attribute set with unique keys. The zero value is empty
// and ready to use; every builder method returns a modified copy.
type Attrs struct {
	list []Attr
}

// Set returns a copy of a with key set to value, keeping key's position if it
// was already present.
func (a Attrs) Set(key Key, value any) Attrs {
	out := make([]Attr, 0, len(a.list)+1)
	replaced := false
	for _, at := range a.list {
		if at.Key == key {
			at.Value = value
			replaced = true
		}
		out = append(out, at)
	}
	if !replaced {
		out = append(out, Attr{Key: key, Value: value})
	}
	return Attrs{list: out}
}

// Foreground sets the text color.
func (a Attrs) Foreground(c color.Color) Attrs { return a.Set(Foreground, rgba(c)) }

// Background sets the highlight color behind the text.
func (a Attrs) Background(c color.Color) Attrs { return a.Set(Background, rgba(c)) }

// Underline toggles underlining.
func (a Attrs) Underline(on bool) Attrs { return a.Set(Underline, on) }

// Bold toggles the bold face.
func (a Attrs) Bold(on bool) Attrs { return a.Set(Bold, on) }

// Italic toggles the italic face.
func (a Attrs) Italic(on bool) Attrs { return a.Set(Italic, on) }

// Link marks the range as a tappable link carrying payload.
func (a Attrs) Link(payload string) Attrs { return a.Set(Link, payload) }

// Attach binds an inline attachment.
func (a Attrs) Attach(at attach.Attachment) Attrs { return a.Set(Attachment, at) }

// Font selects a font resource by name.
func (a Attrs) Font(name string) Attrs { return a.Set(Font, name) }

// Get returns the value stored for key.
func (a Attrs) Get(key Key) (any, bool) {
	for _, at := range a.list {
		if at.Key == key {
			return at.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is set.
func (a Attrs) Has(key Key) bool {
	_, ok := a.Get(key)
	return ok
}

// Len returns the number of keys.
func (a Attrs) Len() int { return len(a.list) }

// Empty reports whether no key is set.
func (a Attrs) Empty() bool { return len(a.list) == 0 }

// All returns a copy of the attributes in insertion order.
func (a Attrs) All() []Attr {
	out := make([]Attr, len(a.list))
	copy(out, a.list)
	return out
}

// LinkValue returns the link payload, if any.
func (a Attrs) LinkValue() (string, bool) {
	v, ok := a.Get(Link)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AttachmentValue returns the bound attachment, if any.
func (a Attrs) AttachmentValue() (attach.Attachment, bool) {
	v, ok := a.Get(Attachment)
	if !ok {
		return nil, false
	}
	at, ok := v.(attach.Attachment)
	return at, ok && at != nil
}

// Color returns a color-valued key (Foreground or Background).
func (a Attrs) Color(key Key) (color.RGBA, bool) {
	v, ok := a.Get(key)
	if !ok {
		return color.RGBA{}, false
	}
	c, ok := v.(color.RGBA)
	return c, ok
}

// Flag returns a bool-valued key (Underline, Bold, Italic).
func (a Attrs) Flag(key Key) bool {
	v, ok := a.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// FontName returns the Font key.
func (a Attrs) FontName() (string, bool) {
	v, ok := a.Get(Font)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// merge layers o onto a. Keys already in a are kept unless overwrite is set;
// Link is never overwritten.
func (a Attrs) merge(o Attrs, overwrite bool) Attrs {
	out := a
	for _, at := range o.list {
		if out.Has(at.Key) && (!overwrite || at.Key == Link) {
			continue
		}
		out = out.Set(at.Key, at.Value)
	}
	return out
}

func rgba(c color.Color) color.RGBA {
	if c == nil {
		return color.RGBA{A: 0xff}
	}
	return color.RGBAModel.Convert(c).(color.RGBA)
}
