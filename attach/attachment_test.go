package attach

import (
	"errors"
	"image"
	"math"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("bad url %q: %v", raw, err)
	}
	return u
}

func TestRemoteResolveLifecycle(t *testing.T) {
	r := NewRemote(mustURL(t, "https://img.test/a.png"), Rect{W: 20, H: 20}, Handle{})
	if r.State() != Pending {
		t.Fatalf("new remote must be pending, got %s", r.State())
	}
	if r.Image() != nil {
		t.Fatalf("pending remote must not carry an image")
	}
	if got := r.Bounds(); got != (Rect{W: 20, H: 20}) {
		t.Fatalf("pending remote reserves its fit rect, got %+v", got)
	}

	if r.Resolve(image.NewRGBA(image.Rect(0, 0, 40, 20)), image.Pt(40, 20)) {
		t.Fatalf("resolve must not skip the fetching state")
	}
	if !r.Begin() {
		t.Fatalf("first Begin must succeed")
	}
	if r.Begin() {
		t.Fatalf("second Begin must be a no-op")
	}

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	if !r.Resolve(img, image.Pt(40, 20)) {
		t.Fatalf("resolve from fetching must succeed")
	}
	if r.Resolve(img, image.Pt(40, 20)) || r.Fail(errors.New("late")) {
		t.Fatalf("terminal state must not change")
	}
	if r.Bounds() != (Rect{W: 20, H: 10}) {
		t.Fatalf("expected 20x10 box, got %+v", r.Bounds())
	}
	want := []State{Pending, Fetching, Resolved}
	if diff := cmp.Diff(want, r.Transitions()); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteFailIsTerminal(t *testing.T) {
	r := NewRemote(mustURL(t, "https://img.test/broken.png"), DefaultFit, Handle{})
	r.Begin()
	cause := errors.New("boom")
	if !r.Fail(cause) {
		t.Fatalf("fail from fetching must succeed")
	}
	if !errors.Is(r.Err(), cause) {
		t.Fatalf("expected recorded cause, got %v", r.Err())
	}
	if r.Begin() {
		t.Fatalf("failed attachment must never fetch again")
	}
	if r.Image() != nil {
		t.Fatalf("failed attachment must not carry an image")
	}
	if !r.State().Terminal() {
		t.Fatalf("failed must be terminal")
	}
}

func TestRemoteBeginRace(t *testing.T) {
	r := NewRemote(mustURL(t, "https://img.test/a.png"), DefaultFit, Handle{})
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Begin() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("exactly one Begin may win, got %d", wins.Load())
	}
	if n := len(r.Transitions()); n != 2 {
		t.Fatalf("fetching must be entered once, transitions=%v", r.Transitions())
	}
}

func TestRemoteURLIsCopied(t *testing.T) {
	r := NewRemote(mustURL(t, "https://img.test/a.png"), DefaultFit, Handle{})
	u := r.URL()
	u.Host = "evil.test"
	if r.URL().Host != "img.test" {
		t.Fatalf("URL must return a copy")
	}
}

func TestLocalAttachment(t *testing.T) {
	l := NewLocal("logo", image.NewRGBA(image.Rect(0, 0, 16, 8)))
	if l.Missing() || l.Bounds() != (Rect{W: 16, H: 8}) {
		t.Fatalf("unexpected local attachment %+v", l.Bounds())
	}
	empty := NewLocal("nope", nil)
	if !empty.Missing() || !empty.Bounds().Empty() {
		t.Fatalf("missing local must be empty, got %+v", empty.Bounds())
	}
}

// TestAspectFit 验证：比例保持、完全落在 fit 内、且至少一边贴边（最大化）。
func TestAspectFit(t *testing.T) {
	const eps = 1e-9
	fits := []Rect{{W: 20, H: 20}, {X: 1, Y: -4, W: 30, H: 10}, {W: 7, H: 300}}
	sizes := [][2]float64{{40, 20}, {20, 40}, {1, 1}, {3, 1000}, {1000, 3}, {20, 20}, {5, 2}}
	for _, fit := range fits {
		for _, sz := range sizes {
			box := AspectFit(fit, sz[0], sz[1])
			if box.X != fit.X || box.Y != fit.Y {
				t.Fatalf("box must be anchored at fit origin: fit=%+v box=%+v", fit, box)
			}
			if box.W > fit.W+eps || box.H > fit.H+eps {
				t.Fatalf("box exceeds fit: fit=%+v size=%v box=%+v", fit, sz, box)
			}
			if math.Abs(box.W/box.H-sz[0]/sz[1]) > 1e-6 {
				t.Fatalf("aspect ratio changed: size=%v box=%+v", sz, box)
			}
			if math.Abs(box.W-fit.W) > eps && math.Abs(box.H-fit.H) > eps {
				t.Fatalf("box is not maximal: fit=%+v size=%v box=%+v", fit, sz, box)
			}
		}
	}
	if got := AspectFit(Rect{W: 20, H: 20}, 40, 20); got != (Rect{W: 20, H: 10}) {
		t.Fatalf("expected 20x10, got %+v", got)
	}
	if got := AspectFit(Rect{W: 20, H: 20}, 0, 20); !got.Empty() {
		t.Fatalf("degenerate image must produce empty box, got %+v", got)
	}
}

func TestRemoteSnapshotPairsBoxWithImage(t *testing.T) {
	r := NewRemote(mustURL(t, "https://img.test/a.png"), Rect{W: 20, H: 20}, Handle{})
	if got := r.Snapshot(); got.State != Pending || got.Image != nil || got.Bounds != (Rect{W: 20, H: 20}) {
		t.Fatalf("pending snapshot mismatch: %+v", got)
	}
	r.Begin()

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Resolve(img, image.Pt(40, 20))
	}()
	for {
		s := r.Snapshot()
		switch s.State {
		case Fetching:
			if s.Image != nil || s.Bounds != (Rect{W: 20, H: 20}) {
				t.Fatalf("fetching snapshot must keep the fit rect: %+v", s)
			}
			continue
		case Resolved:
			if s.Image != img || s.Bounds != (Rect{W: 20, H: 10}) {
				t.Fatalf("resolved snapshot must carry image and fitted box: %+v", s)
			}
		default:
			t.Fatalf("unexpected state %s", s.State)
		}
		break
	}
	<-done
}
