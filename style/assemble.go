package style

import (
	"errors"
	"fmt"
	"image/color"
	"slices"
	"sort"
	"unicode/utf8"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/markup"
)

var (
	// ErrSharedAttachment is returned when one attachment is bound to more
	// than one range.
	ErrSharedAttachment = errors.New("attachment bound more than once")
	// ErrBindingRange is returned for bindings outside the backbone text.
	ErrBindingRange = errors.New("binding outside text")
)

// Run is a maximal range whose runes share the same merged attributes.
type Run struct {
	Range markup.Range
	Attrs Attrs
}

// Placement is an attachment at a backbone rune offset.
type Placement struct {
	Pos        int
	Attachment attach.Attachment
}

// StyledText is the immutable result of styling. Only the image of a remote
// attachment may change after construction.
type StyledText struct {
	text        string
	length      int
	bindings    []Binding
	runs        []Run
	attachments []Placement
}

// Assemble merges bindings over text. Tag-pass bindings are applied first in
// order, later ones overwriting earlier keys; detection-pass bindings only
// fill keys still unset. A position's link identity is never replaced once
// set. Zero-width bindings are dropped.
func Assemble(text string, bindings []Binding) (*StyledText, error) {
	n := utf8.RuneCountInString(text)
	kept := make([]Binding, 0, len(bindings))
	seen := make(map[attach.Attachment]markup.Range)
	for _, b := range bindings {
		if b.Range.Start < 0 || b.Range.End > n || b.Range.End < b.Range.Start {
			return nil, fmt.Errorf("%w: [%d,%d) over %d runes", ErrBindingRange, b.Range.Start, b.Range.End, n)
		}
		if b.Range.Empty() {
			continue
		}
		if at, ok := b.Attrs.AttachmentValue(); ok {
			if prev, dup := seen[at]; dup {
				return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrSharedAttachment,
					prev.Start, prev.End, b.Range.Start, b.Range.End)
			}
			seen[at] = b.Range
		}
		kept = append(kept, b)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Pass < kept[j].Pass })

	st := &StyledText{text: text, length: n, bindings: kept}
	st.runs = buildRuns(n, kept)
	for _, b := range kept {
		if at, ok := b.Attrs.AttachmentValue(); ok {
			st.attachments = append(st.attachments, Placement{Pos: b.Range.Start, Attachment: at})
		}
	}
	sort.SliceStable(st.attachments, func(i, j int) bool { return st.attachments[i].Pos < st.attachments[j].Pos })
	return st, nil
}

func buildRuns(n int, bindings []Binding) []Run {
	if n == 0 {
		return nil
	}
	cuts := []int{0, n}
	for _, b := range bindings {
		cuts = append(cuts, b.Range.Start, b.Range.End)
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	runs := make([]Run, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		seg := markup.Range{Start: cuts[i], End: cuts[i+1]}
		var attrs Attrs
		for _, b := range bindings {
			if !b.Range.Overlaps(seg) {
				continue
			}
			attrs = attrs.merge(b.Attrs, b.Pass == TagPass)
		}
		runs = append(runs, Run{Range: seg, Attrs: attrs})
	}
	return runs
}

// Recolor returns a copy of s whose link and attachment bindings painted
// with from are painted with to instead. Attachments are shared with s, so
// a resolved remote stays resolved.
func (s *StyledText) Recolor(from, to color.Color) (*StyledText, error) {
	f, t := rgba(from), rgba(to)
	bindings := make([]Binding, len(s.bindings))
	for i, b := range s.bindings {
		if b.Attrs.Has(Link) || b.Attrs.Has(Attachment) {
			if c, ok := b.Attrs.Color(Foreground); ok && c == f {
				b.Attrs = b.Attrs.Foreground(t)
			}
		}
		bindings[i] = b
	}
	return Assemble(s.text, bindings)
}

// Text returns the backbone text.
func (s *StyledText) Text() string { return s.text }

// Len returns the backbone length in runes.
func (s *StyledText) Len() int { return s.length }

// Bindings returns the applied bindings, tag pass first.
func (s *StyledText) Bindings() []Binding { return slices.Clone(s.bindings) }

// Runs returns consecutive runs covering the whole text.
func (s *StyledText) Runs() []Run { return slices.Clone(s.runs) }

// Attachments returns attachments ordered by position.
func (s *StyledText) Attachments() []Placement { return slices.Clone(s.attachments) }

// AttrsAt returns the merged attributes of the rune at pos.
func (s *StyledText) AttrsAt(pos int) Attrs {
	i := sort.Search(len(s.runs), func(i int) bool { return s.runs[i].Range.End > pos })
	if i == len(s.runs) || !s.runs[i].Range.Contains(pos) {
		return Attrs{}
	}
	return s.runs[i].Attrs
}

// LinkAt returns the link payload at pos.
func (s *StyledText) LinkAt(pos int) (string, bool) {
	return s.AttrsAt(pos).LinkValue()
}

// Remotes returns the remote attachments in position order.
func (s *StyledText) Remotes() []*attach.Remote {
	var out []*attach.Remote
	for _, p := range s.attachments {
		if r, ok := p.Attachment.(*attach.Remote); ok {
			out = append(out, r)
		}
	}
	return out
}
