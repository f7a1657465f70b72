package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ByLCY/tweetstyle/fetch"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeLimits(t *testing.T) {
	img, err := fetch.Decode(bytes.NewReader(encodePNG(t, 40, 20)), fetch.Limits{})
	if err != nil || img.Bounds().Dx() != 40 {
		t.Fatalf("expected 40px wide image, err=%v", err)
	}

	_, err = fetch.Decode(bytes.NewReader(encodePNG(t, 5000, 1)), fetch.Limits{})
	if !errors.Is(err, fetch.ErrImageTooLarge) {
		t.Fatalf("expected dimension limit error, got %v", err)
	}

	small := fetch.Limits{MaxWidth: 100, MaxHeight: 100, MaxBytes: 16}
	_, err = fetch.Decode(bytes.NewReader(encodePNG(t, 10, 10)), small)
	if !errors.Is(err, fetch.ErrImageTooLarge) {
		t.Fatalf("expected payload limit error, got %v", err)
	}

	if _, err := fetch.Decode(strings.NewReader("not an image"), fetch.Limits{}); err == nil {
		t.Fatalf("garbage must not decode")
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), encodePNG(t, 3, 2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := &fetch.FileFetcher{Root: dir}

	abs := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, "a.png"))}
	img, err := f.Fetch(context.Background(), abs)
	if err != nil || img.Bounds().Dy() != 2 {
		t.Fatalf("absolute path fetch failed: %v", err)
	}

	rel := &url.URL{Scheme: "file", Opaque: "a.png"}
	if _, err := f.Fetch(context.Background(), rel); err != nil {
		t.Fatalf("relative path must resolve against root: %v", err)
	}

	if _, err := f.Fetch(context.Background(), &url.URL{Scheme: "file", Path: filepath.Join(dir, "nope.png")}); err == nil {
		t.Fatalf("missing file must fail")
	}
}

func TestSchemeFetcherDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/teapot.png" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write(encodePNG(t, 2, 2))
	}))
	defer server.Close()

	f := fetch.DefaultFetcher(fetch.Limits{}, 0, "")
	u, _ := url.Parse(server.URL + "/ok.png")
	if _, err := f.Fetch(context.Background(), u); err != nil {
		t.Fatalf("http fetch failed: %v", err)
	}

	u, _ = url.Parse(server.URL + "/teapot.png")
	_, err := f.Fetch(context.Background(), u)
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Fatalf("expected status error, got %v", err)
	}

	u, _ = url.Parse("ftp://img.test/a.png")
	if _, err := f.Fetch(context.Background(), u); !errors.Is(err, fetch.ErrUnsupportedScheme) {
		t.Fatalf("expected unsupported scheme, got %v", err)
	}
}
