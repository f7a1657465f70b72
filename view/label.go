// Package view holds the label that displays a StyledText: it owns the
// content generation, triggers fetches for visible attachments and turns
// attachment redraw requests into coalesced repaint signals.
package view

import (
	"context"
	"image/color"
	"log/slog"
	"strings"
	"sync"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/markup"
	"github.com/ByLCY/tweetstyle/style"
)

// Loader starts fetching a remote attachment; fetch.Engine implements it.
type Loader interface {
	Trigger(r *attach.Remote) bool
}

// Painter draws a label's current content. plain reports a plain label.
type Painter func(st *style.StyledText, plain bool)

// Option configures a Label.
type Option func(*Label)

// WithPlain makes a plain label: backbone text only, no link taps, no fetches.
func WithPlain() Option { return func(l *Label) { l.plain = true } }

// WithEagerFetch triggers every remote attachment as soon as content is set
// instead of waiting for it to become visible.
func WithEagerFetch() Option { return func(l *Label) { l.eager = true } }

// WithTweetOptions sets the styling used by SetTweet.
func WithTweetOptions(o style.TweetOptions) Option { return func(l *Label) { l.tweet = o } }

// WithLogger sets the logger; nil discards.
func WithLogger(lg *slog.Logger) Option { return func(l *Label) { l.logger = lg } }

// Label is a reusable display cell. All methods are safe for concurrent use.
type Label struct {
	anchor *attach.Anchor
	loader Loader
	plain  bool
	eager  bool
	logger *slog.Logger
	redraw chan struct{}

	mu           sync.Mutex
	tweet        style.TweetOptions
	content      *style.StyledText
	linksEnabled bool
	onLink       func(payload string)
}

// NewLabel creates an empty label fetching through loader, which may be nil.
func NewLabel(loader Loader, opts ...Option) *Label {
	l := &Label{loader: loader, linksEnabled: true, redraw: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	l.anchor = attach.NewAnchor(l)
	return l
}

// Reserve discards the current content and returns the owner handle for the
// content that will be set next.
func (l *Label) Reserve() attach.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	return l.anchor.Handle()
}

// SetContent installs st, whose attachments must have been built with the
// handle returned by the last Reserve.
func (l *Label) SetContent(st *style.StyledText) {
	l.mu.Lock()
	l.content = st
	l.mu.Unlock()
	if l.eager {
		l.DisplayAll()
	}
	l.Redraw()
}

// SetTweet styles src with the label's tweet options and shows it. On a
// markup error the label is left empty.
func (l *Label) SetTweet(src string) error {
	l.mu.Lock()
	l.resetLocked()
	opts := l.tweet
	opts.LinksDisabled = opts.LinksDisabled || !l.linksEnabled
	enabled := l.linksEnabled
	h := l.anchor.Handle()
	l.mu.Unlock()

	st, err := style.Tweet(src, h, opts)
	if err != nil {
		l.logger.Warn("tweet rejected", "comp", "view", "stage", "style", "err", err)
		l.Redraw()
		return err
	}
	l.mu.Lock()
	if l.anchor.Generation() != h.Generation() {
		// Another SetTweet or Clear won the race; drop this result.
		l.mu.Unlock()
		return nil
	}
	if enabled != l.linksEnabled {
		// SetLinksEnabled ran while styling
		if st, err = st.Recolor(l.linkColor(enabled), l.linkColor(l.linksEnabled)); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	l.content = st
	l.mu.Unlock()
	if l.eager {
		l.DisplayAll()
	}
	l.Redraw()
	return nil
}

// Clear empties the label, as when a cell is recycled.
func (l *Label) Clear() {
	l.mu.Lock()
	l.resetLocked()
	l.mu.Unlock()
	l.Redraw()
}

func (l *Label) resetLocked() {
	l.anchor.Advance()
	l.content = nil
}

// Content returns the displayed styled text, or nil.
func (l *Label) Content() *style.StyledText {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.content
}

// Generation returns the current content generation.
func (l *Label) Generation() uint64 { return l.anchor.Generation() }

// Handle returns the owner handle for the current content.
func (l *Label) Handle() attach.Handle { return l.anchor.Handle() }

// Text returns what a plain label shows: the backbone without placeholders.
func (l *Label) Text() string {
	st := l.Content()
	if st == nil {
		return ""
	}
	return strings.ReplaceAll(st.Text(), style.Placeholder, "")
}

// Display is called when the runes in visible are about to be drawn. It
// triggers fetches for remote attachments placed there and returns how many
// fetches were issued.
func (l *Label) Display(visible markup.Range) int {
	st := l.Content()
	if st == nil || l.plain || l.loader == nil {
		return 0
	}
	issued := 0
	for _, p := range st.Attachments() {
		if !visible.Contains(p.Pos) {
			continue
		}
		r, ok := p.Attachment.(*attach.Remote)
		if !ok {
			continue
		}
		if l.loader.Trigger(r) {
			issued++
		}
	}
	if issued > 0 {
		l.logger.Debug("fetches issued", "comp", "view", "stage", "display",
			"count", issued, "generation", l.Generation())
	}
	return issued
}

// DisplayAll displays the whole content.
func (l *Label) DisplayAll() int {
	st := l.Content()
	if st == nil {
		return 0
	}
	return l.Display(markup.Range{Start: 0, End: st.Len()})
}

// Redraw implements attach.Redrawer. Requests made before the painter runs
// collapse into one.
func (l *Label) Redraw() {
	select {
	case l.redraw <- struct{}{}:
	default:
	}
}

// Redraws delivers coalesced repaint signals.
func (l *Label) Redraws() <-chan struct{} { return l.redraw }

// Run paints the content on every redraw signal until ctx is done.
func (l *Label) Run(ctx context.Context, paint Painter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.redraw:
			paint(l.Content(), l.plain)
		}
	}
}

// OnLink registers the callback for link taps.
func (l *Label) OnLink(fn func(payload string)) {
	l.mu.Lock()
	l.onLink = fn
	l.mu.Unlock()
}

// SetLinksEnabled switches link interaction. Disabled links are repainted
// with the disabled link color and ignore taps. The displayed content keeps
// its attachments and generation, so nothing is fetched again.
func (l *Label) SetLinksEnabled(enabled bool) error {
	l.mu.Lock()
	if l.linksEnabled == enabled {
		l.mu.Unlock()
		return nil
	}
	from, to := l.linkColor(l.linksEnabled), l.linkColor(enabled)
	l.linksEnabled = enabled
	if l.content != nil && from != to {
		st, err := l.content.Recolor(from, to)
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.content = st
	}
	l.mu.Unlock()
	l.Redraw()
	return nil
}

// linkColor 返回 links 开关为 enabled 时链接使用的颜色。调用方持有 mu。
func (l *Label) linkColor(enabled bool) color.RGBA {
	opts := l.tweet
	opts.LinksDisabled = opts.LinksDisabled || !enabled
	c, _ := opts.LinkAttrs().Color(style.Foreground)
	return c
}

// HighlightedLink returns the link payload at pos, if links are active.
func (l *Label) HighlightedLink(pos int) (string, bool) {
	l.mu.Lock()
	st, enabled := l.content, l.linksEnabled
	l.mu.Unlock()
	if st == nil || l.plain || !enabled {
		return "", false
	}
	return st.LinkAt(pos)
}

// Tap delivers the link at pos to the OnLink callback and reports whether a
// link was hit.
func (l *Label) Tap(pos int) bool {
	payload, ok := l.HighlightedLink(pos)
	if !ok {
		return false
	}
	l.mu.Lock()
	fn := l.onLink
	l.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
	return true
}
