// Package attach models inline attachments: bundled images resolved at
// construction and remote images populated later by a fetch engine.
package attach

import (
	"image"
	"net/url"
	"sync"
)

// Rect is a box in points. Y is measured upwards from the text baseline, so a
// negative Y lowers the attachment below the baseline.
type Rect struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	W float64 `json:"w" msgpack:"w"`
	H float64 `json:"h" msgpack:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Attachment is an inline visual object bound to one placeholder rune.
type Attachment interface {
	// Image returns the displayable image, or nil when none is available (yet).
	Image() image.Image
	// Bounds returns the box the attachment occupies in the line.
	Bounds() Rect
}

// Local is an attachment resolved from a bundled resource. It never changes.
type Local struct {
	id     string
	img    image.Image
	bounds Rect
}

// NewLocal creates a local attachment. A nil img yields an empty, zero-sized
// attachment.
func NewLocal(id string, img image.Image) *Local {
	l := &Local{id: id, img: img}
	if img != nil {
		b := img.Bounds()
		l.bounds = Rect{W: float64(b.Dx()), H: float64(b.Dy())}
	}
	return l
}

// ID returns the resource identifier.
func (l *Local) ID() string { return l.id }

// Image implements Attachment.
func (l *Local) Image() image.Image { return l.img }

// Bounds implements Attachment.
func (l *Local) Bounds() Rect { return l.bounds }

// Missing reports whether the resource lookup failed.
func (l *Local) Missing() bool { return l.img == nil }

// Remote is a placeholder for an image at a URL. Its image is set at most
// once, by whoever wins the Pending -> Fetching transition.
type Remote struct {
	url   *url.URL
	fit   Rect
	owner Handle

	mu    sync.RWMutex
	state State
	img   image.Image
	box   Rect
	err   error
	trail []State
}

// NewRemote creates a Pending remote attachment. owner may be the zero Handle.
func NewRemote(u *url.URL, fit Rect, owner Handle) *Remote {
	return &Remote{url: u, fit: fit, owner: owner, trail: []State{Pending}}
}

// URL returns a copy of the target URL.
func (r *Remote) URL() *url.URL {
	u := *r.url
	return &u
}

// Fit returns the configured fit rectangle.
func (r *Remote) Fit() Rect { return r.fit }

// Owner returns the non-owning handle of the view that displays r.
func (r *Remote) Owner() Handle { return r.owner }

// State returns the current state.
func (r *Remote) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Image implements Attachment. It is nil until Resolved.
func (r *Remote) Image() image.Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.img
}

// Bounds implements Attachment: the aspect-fitted box once Resolved, the fit
// rectangle otherwise.
func (r *Remote) Bounds() Rect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == Resolved {
		return r.box
	}
	return r.fit
}

// Snapshot is a consistent reading of a Remote taken under one lock.
type Snapshot struct {
	State  State
	Image  image.Image
	Bounds Rect
	Err    error
}

// Snapshot returns state, image, bounds and error as of one instant, so a
// concurrent Resolve cannot pair a fit-rectangle box with an installed image.
func (r *Remote) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{State: r.state, Image: r.img, Bounds: r.fit, Err: r.err}
	if r.state == Resolved {
		s.Bounds = r.box
	}
	return s
}

// Err returns the failure reason once Failed.
func (r *Remote) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Transitions returns every state r has been in, oldest first.
func (r *Remote) Transitions() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, len(r.trail))
	copy(out, r.trail)
	return out
}

// Begin moves Pending to Fetching. It returns false if a fetch was already
// issued, so callers must only start work when it returns true.
func (r *Remote) Begin() bool {
	return r.move(Pending, Fetching, func() {})
}

// Resolve installs img and the box fitted from the image's natural size.
// Only valid while Fetching.
func (r *Remote) Resolve(img image.Image, natural image.Point) bool {
	if img == nil {
		return false
	}
	return r.move(Fetching, Resolved, func() {
		r.img = img
		r.box = AspectFit(r.fit, float64(natural.X), float64(natural.Y))
	})
}

// Fail records err and leaves the attachment without an image for good.
// Only valid while Fetching.
func (r *Remote) Fail(err error) bool {
	return r.move(Fetching, Failed, func() { r.err = err })
}

func (r *Remote) move(from, to State, apply func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	apply()
	r.state = to
	r.trail = append(r.trail, to)
	return true
}
