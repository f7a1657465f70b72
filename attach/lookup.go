package attach

import (
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io/fs"
	"path"
	"sync"
)

// Lookup maps a bundled resource id to image data.
type Lookup interface {
	Lookup(id string) (image.Image, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(id string) (image.Image, bool)

// Lookup implements Lookup.
func (f LookupFunc) Lookup(id string) (image.Image, bool) { return f(id) }

// MapLookup serves images from memory.
type MapLookup map[string]image.Image

// Lookup implements Lookup.
func (m MapLookup) Lookup(id string) (image.Image, bool) {
	img, ok := m[id]
	return img, ok && img != nil
}

// FSLookup decodes "<id>.<ext>" from a file system, trying png, jpg, jpeg and
// gif in that order. Decoded images are kept for later lookups.
type FSLookup struct {
	FS fs.FS

	mu    sync.Mutex
	cache map[string]image.Image
}

var bundledExts = []string{".png", ".jpg", ".jpeg", ".gif"}

// Lookup implements Lookup.
func (l *FSLookup) Lookup(id string) (image.Image, bool) {
	if l == nil || l.FS == nil || id == "" || !fs.ValidPath(id) {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if img, ok := l.cache[id]; ok {
		return img, true
	}
	for _, ext := range bundledExts {
		f, err := l.FS.Open(path.Clean(id) + ext)
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			continue
		}
		if l.cache == nil {
			l.cache = make(map[string]image.Image)
		}
		l.cache[id] = img
		return img, true
	}
	return nil, false
}
