package attach

import (
	"sync/atomic"
	"weak"
)

// Redrawer is implemented by views that can repaint themselves.
type Redrawer interface {
	Redraw()
}

// Anchor is owned by a view. Attachments only reach it through a Handle,
// which holds a weak pointer and the content generation it was issued for.
type Anchor struct {
	gen    atomic.Uint64
	target Redrawer
}

// NewAnchor returns an anchor that forwards redraw requests to target.
func NewAnchor(target Redrawer) *Anchor {
	return &Anchor{target: target}
}

// Advance starts a new content generation, making every previously issued
// Handle stale. It returns the new generation.
func (a *Anchor) Advance() uint64 { return a.gen.Add(1) }

// Generation returns the current content generation.
func (a *Anchor) Generation() uint64 { return a.gen.Load() }

// Handle returns a handle for the current generation.
func (a *Anchor) Handle() Handle {
	return Handle{ref: weak.Make(a), gen: a.gen.Load()}
}

// Handle is a non-owning, generation-tagged reference to a view. The zero
// Handle refers to nothing.
type Handle struct {
	ref weak.Pointer[Anchor]
	gen uint64
}

// Generation returns the generation the handle was issued for.
func (h Handle) Generation() uint64 { return h.gen }

// Live reports whether the view still exists and still shows the content the
// handle was issued for.
func (h Handle) Live() bool {
	return h.anchor() != nil
}

// RequestRedraw asks the view to repaint. It is a no-op returning false when
// the view is gone or has moved on to other content.
func (h Handle) RequestRedraw() bool {
	a := h.anchor()
	if a == nil || a.target == nil {
		return false
	}
	a.target.Redraw()
	return true
}

func (h Handle) anchor() *Anchor {
	a := h.ref.Value()
	if a == nil || a.gen.Load() != h.gen {
		return nil
	}
	return a
}
