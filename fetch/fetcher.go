// Package fetch retrieves remote attachment images and installs them, at
// most once per attachment, before asking the owning view to redraw.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp" // Register WebP decoder
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRemoteFetch wraps every per-attachment fetch or decode failure.
	ErrRemoteFetch = errors.New("remote fetch failed")
	// ErrImageTooLarge is returned when a payload or its pixels exceed Limits.
	ErrImageTooLarge = errors.New("image exceeds limits")
	// ErrUnsupportedScheme is returned by SchemeFetcher for unknown schemes.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Fetcher retrieves and decodes the image at u.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (image.Image, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, u *url.URL) (image.Image, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL) (image.Image, error) { return f(ctx, u) }

// Limits bound what a fetcher accepts.
type Limits struct {
	MaxWidth  int   // pixels
	MaxHeight int   // pixels
	MaxBytes  int64 // encoded payload and uncompressed RGBA size
}

// DefaultLimits keeps a single image under 16 MiB.
var DefaultLimits = Limits{MaxWidth: 4096, MaxHeight: 4096, MaxBytes: 16 << 20}

func (l Limits) orDefault() Limits {
	if l == (Limits{}) {
		return DefaultLimits
	}
	return l
}

// Decode reads at most lim.MaxBytes from r and decodes one image, rejecting
// images whose dimensions exceed lim before decoding the pixels.
func Decode(r io.Reader, lim Limits) (image.Image, error) {
	lim = lim.orDefault()
	data, err := io.ReadAll(io.LimitReader(r, lim.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > lim.MaxBytes {
		return nil, fmt.Errorf("%w: payload over %d bytes", ErrImageTooLarge, lim.MaxBytes)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width > lim.MaxWidth || cfg.Height > lim.MaxHeight {
		return nil, fmt.Errorf("%w: %dx%d (max %dx%d)", ErrImageTooLarge,
			cfg.Width, cfg.Height, lim.MaxWidth, lim.MaxHeight)
	}
	if int64(cfg.Width)*int64(cfg.Height)*4 > lim.MaxBytes {
		return nil, fmt.Errorf("%w: %dx%d uncompressed", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// HTTPFetcher downloads images over http and https. Concurrent fetches of
// the same URL share one request.
type HTTPFetcher struct {
	Client    *http.Client  // nil uses a client with Timeout
	Timeout   time.Duration // per request; zero means 30s
	Limits    Limits
	UserAgent string

	group singleflight.Group
}

// Fetch implements Fetcher. The shared request is not tied to any single
// caller: a cancelled caller stops waiting, the others still get the image.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (image.Image, error) {
	key := u.String()
	ch := f.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout())
		defer cancel()
		return f.get(shared, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

func (f *HTTPFetcher) get(ctx context.Context, target string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "image/*")
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %s", target, resp.Status)
	}
	return Decode(resp.Body, f.Limits)
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: f.timeout()}
}

func (f *HTTPFetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return 30 * time.Second
	}
	return f.Timeout
}

// FileFetcher reads file:// URLs. Relative paths resolve against Root.
type FileFetcher struct {
	Root   string
	Limits Limits
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context, u *url.URL) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, fmt.Errorf("file url %q has no path", u.String())
	}
	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image file: %w", err)
	}
	defer file.Close()
	return Decode(file, f.Limits)
}

// SchemeFetcher dispatches on the lowercase URL scheme.
type SchemeFetcher map[string]Fetcher

// Fetch implements Fetcher.
func (s SchemeFetcher) Fetch(ctx context.Context, u *url.URL) (image.Image, error) {
	f, ok := s[strings.ToLower(u.Scheme)]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f.Fetch(ctx, u)
}

// DefaultFetcher serves http, https and file URLs.
func DefaultFetcher(limits Limits, timeout time.Duration, root string) SchemeFetcher {
	h := &HTTPFetcher{Timeout: timeout, Limits: limits}
	return SchemeFetcher{
		"http":  h,
		"https": h,
		"file":  &FileFetcher{Root: root, Limits: limits},
	}
}
