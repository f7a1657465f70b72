package attach

import (
	"errors"
	"image"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ByLCY/tweetstyle/markup"
)

// ErrResolutionMiss is logged when a bundled resource id cannot be found.
// It never fails rendering: the attachment simply has no image.
var ErrResolutionMiss = errors.New("attachment resource not found")

// Factory decides, synchronously, which attachment an image tag produces.
type Factory struct {
	Lookup Lookup       // bundled resources; nil means every id misses
	Fit    Rect         // fit rectangle for remote images; zero means DefaultFit
	Owner  Handle       // view that will display remote attachments
	Logger *slog.Logger // nil discards
}

// FromTag applies the decision rule in order:
//  1. an "id" attribute resolves a Local attachment (possibly empty);
//  2. the "url" attribute, or "src" when "url" is absent, that parses as an
//     absolute URL produces a Pending Remote attachment;
//  3. otherwise there is no attachment.
func (f *Factory) FromTag(tag markup.Tag) (Attachment, bool) {
	if id, ok := tag.Attrs.Get("id"); ok {
		return f.local(id), true
	}

	raw, ok := tag.Attrs.Get("url")
	if !ok {
		raw, ok = tag.Attrs.Get("src")
	}
	if !ok {
		return nil, false
	}
	u, ok := ParseURL(raw)
	if !ok {
		f.logger().Debug("ignoring image without usable url",
			"comp", "attach", "stage", "factory", "tag", tag.Name, "url", raw)
		return nil, false
	}
	fit := f.Fit
	if fit == (Rect{}) {
		fit = DefaultFit
	}
	return NewRemote(u, fit, f.Owner), true
}

func (f *Factory) local(id string) *Local {
	var img image.Image
	if f.Lookup != nil {
		if found, ok := f.Lookup.Lookup(id); ok {
			img = found
		}
	}
	if img == nil {
		f.logger().Warn("bundled image missing, rendering empty attachment",
			"comp", "attach", "stage", "factory", "id", id, "err", ErrResolutionMiss)
	}
	return NewLocal(id, img)
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

// ParseURL accepts absolute URLs with a scheme and either a host or an opaque
// part (e.g. data:). Surrounding whitespace is ignored.
func ParseURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return nil, false
	}
	if u.Host == "" && u.Opaque == "" && u.Scheme != "file" {
		return nil, false
	}
	return u, true
}
