package style

import (
	"image/color"
	"log/slog"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/markup"
)

var (
	// DefaultLinkColor is used for links and images in tweets.
	DefaultLinkColor = color.RGBA{R: 0xff, A: 0xff}
	// DefaultDisabledLinkColor replaces the link color when links are disabled.
	DefaultDisabledLinkColor = color.RGBA{R: 0xaa, G: 0xaa, B: 0xaa, A: 0xff}
)

// TweetOptions configures the tweet preset.
type TweetOptions struct {
	LinkColor         color.Color   // nil means DefaultLinkColor
	DisabledLinkColor color.Color   // nil means DefaultDisabledLinkColor
	LinksDisabled     bool          // style links with DisabledLinkColor
	NoDetection       bool          // skip URL detection
	Entities          bool          // decode HTML character references
	Fit               attach.Rect   // zero means attach.DefaultFit
	Lookup            attach.Lookup // bundled images for <img id>
	Logger            *slog.Logger
}

// LinkAttrs returns the base attributes shared by links and images.
func (o TweetOptions) LinkAttrs() Attrs {
	if o.LinksDisabled {
		return Attrs{}.Foreground(orDefault(o.DisabledLinkColor, DefaultDisabledLinkColor))
	}
	return Attrs{}.Foreground(orDefault(o.LinkColor, DefaultLinkColor))
}

// TweetStyler returns the tweet preset: red anchors, image tags resolved to
// attachments owned by owner, and detected URLs styled as links unless a
// tag already linked them.
func TweetStyler(owner attach.Handle, opts TweetOptions) *Styler {
	base := opts.LinkAttrs()
	factory := &attach.Factory{
		Lookup: opts.Lookup,
		Fit:    opts.Fit,
		Owner:  owner,
		Logger: opts.Logger,
	}
	styler := []Option{
		WithRule("a", LinkRule{Base: base}),
		WithRule("img", ImageRule{Base: base, Factory: factory}),
		WithLogger(opts.Logger),
	}
	if opts.Entities {
		styler = append(styler, WithParseOptions(markup.WithEntities(true)))
	}
	if !opts.NoDetection {
		styler = append(styler, WithDetector(URLDetector{}, LinkDetection(base)))
	}
	return New(styler...)
}

// Tweet styles src with the tweet preset.
func Tweet(src string, owner attach.Handle, opts TweetOptions) (*StyledText, error) {
	return TweetStyler(owner, opts).Style(src)
}

func orDefault(c color.Color, def color.RGBA) color.Color {
	if c == nil {
		return def
	}
	return c
}
