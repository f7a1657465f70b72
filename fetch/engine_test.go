package fetch_test

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/fetch"
)

type recordingView struct {
	redraws atomic.Int32
}

func (v *recordingView) Redraw() { v.redraws.Add(1) }

func pngServer(t *testing.T, w, h int, gate <-chan struct{}, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		rw.Header().Set("Content-Type", "image/png")
		png.Encode(rw, img)
	}))
	t.Cleanup(server.Close)
	return server
}

func remoteFor(t *testing.T, raw string, owner attach.Handle) *attach.Remote {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return attach.NewRemote(u, attach.Rect{W: 20, H: 20}, owner)
}

func waitResult(t *testing.T, results <-chan fetch.Result) fetch.Result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for fetch completion")
		return fetch.Result{}
	}
}

func TestTriggerResolvesOnceAndRedraws(t *testing.T) {
	gate := make(chan struct{})
	var hits atomic.Int32
	server := pngServer(t, 40, 20, gate, &hits)

	view := &recordingView{}
	anchor := attach.NewAnchor(view)
	anchor.Advance()
	r := remoteFor(t, server.URL+"/a.png", anchor.Handle())

	results := make(chan fetch.Result, 4)
	engine := fetch.NewEngine(&fetch.HTTPFetcher{}, fetch.OnComplete(func(res fetch.Result) { results <- res }))
	defer engine.Close()

	if !engine.Trigger(r) {
		t.Fatalf("first trigger must issue a fetch")
	}
	if engine.Trigger(r) {
		t.Fatalf("trigger while fetching must be a no-op")
	}
	if r.State() != attach.Fetching {
		t.Fatalf("expected fetching, got %s", r.State())
	}
	close(gate)

	res := waitResult(t, results)
	engine.Wait()
	if res.State != attach.Resolved || res.Err != nil {
		t.Fatalf("expected resolved, got %s err=%v", res.State, res.Err)
	}
	if !res.Redrawn || view.redraws.Load() != 1 {
		t.Fatalf("expected exactly one redraw, redrawn=%v count=%d", res.Redrawn, view.redraws.Load())
	}
	if got := r.Bounds(); got != (attach.Rect{W: 20, H: 10}) {
		t.Fatalf("expected 20x10 box, got %+v", got)
	}
	if r.Image() == nil {
		t.Fatalf("resolved attachment must carry an image")
	}
	if engine.Trigger(r) {
		t.Fatalf("trigger on a terminal attachment must be a no-op")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
	want := []attach.State{attach.Pending, attach.Fetching, attach.Resolved}
	if diff := cmp.Diff(want, r.Transitions()); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
	runtime.KeepAlive(anchor)
}

func TestStaleOwnerSuppressesRedraw(t *testing.T) {
	gate := make(chan struct{})
	var hits atomic.Int32
	server := pngServer(t, 40, 20, gate, &hits)

	view := &recordingView{}
	anchor := attach.NewAnchor(view)
	anchor.Advance()
	r := remoteFor(t, server.URL+"/stale.png", anchor.Handle())

	results := make(chan fetch.Result, 1)
	engine := fetch.NewEngine(&fetch.HTTPFetcher{}, fetch.OnComplete(func(res fetch.Result) { results <- res }))
	defer engine.Close()

	engine.Trigger(r)
	// The cell is reused for other content before the response arrives.
	anchor.Advance()
	close(gate)

	res := waitResult(t, results)
	if res.State != attach.Resolved {
		t.Fatalf("image must still be installed, got %s", res.State)
	}
	if res.Redrawn || view.redraws.Load() != 0 {
		t.Fatalf("stale owner must not be redrawn")
	}
	runtime.KeepAlive(anchor)
}

func TestFailureLeavesGap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	view := &recordingView{}
	anchor := attach.NewAnchor(view)
	r := remoteFor(t, server.URL+"/missing.png", anchor.Handle())

	results := make(chan fetch.Result, 1)
	engine := fetch.NewEngine(&fetch.HTTPFetcher{}, fetch.OnComplete(func(res fetch.Result) { results <- res }))
	defer engine.Close()
	engine.Trigger(r)

	res := waitResult(t, results)
	if res.State != attach.Failed || !errors.Is(res.Err, fetch.ErrRemoteFetch) {
		t.Fatalf("expected failed with remote fetch error, got %s %v", res.State, res.Err)
	}
	if !errors.Is(r.Err(), fetch.ErrRemoteFetch) {
		t.Fatalf("attachment must record the failure, got %v", r.Err())
	}
	if r.Image() != nil || r.Bounds() != r.Fit() {
		t.Fatalf("failed attachment keeps its reserved box and no image")
	}
	if engine.Trigger(r) {
		t.Fatalf("failed attachments are never retried")
	}
	runtime.KeepAlive(anchor)
}

func TestPanickingFetcherFails(t *testing.T) {
	results := make(chan fetch.Result, 1)
	engine := fetch.NewEngine(fetch.FetcherFunc(func(context.Context, *url.URL) (image.Image, error) {
		panic("decoder exploded")
	}), fetch.OnComplete(func(res fetch.Result) { results <- res }))
	defer engine.Close()

	r := remoteFor(t, "https://img.test/boom.png", attach.Handle{})
	engine.Trigger(r)
	res := waitResult(t, results)
	if res.State != attach.Failed || !errors.Is(res.Err, fetch.ErrRemoteFetch) {
		t.Fatalf("panic must end in failed state, got %s %v", res.State, res.Err)
	}
	if res.Redrawn {
		t.Fatalf("zero owner cannot be redrawn")
	}
}

func TestConcurrencyLimit(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	f := fetch.FetcherFunc(func(ctx context.Context, u *url.URL) (image.Image, error) {
		cur := active.Add(1)
		defer active.Add(-1)
		mu.Lock()
		if cur > peak.Load() {
			peak.Store(cur)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	})
	engine := fetch.NewEngine(f, fetch.WithConcurrency(2))
	defer engine.Close()

	var remotes []*attach.Remote
	for i := 0; i < 8; i++ {
		r := remoteFor(t, "https://img.test/"+string(rune('a'+i))+".png", attach.Handle{})
		remotes = append(remotes, r)
		engine.Trigger(r)
	}
	engine.Wait()
	if p := peak.Load(); p > 2 || p == 0 {
		t.Fatalf("peak concurrency %d, want 1..2", p)
	}
	for _, r := range remotes {
		if r.State() != attach.Resolved {
			t.Fatalf("%s: expected resolved, got %s", r.URL(), r.State())
		}
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	engine := fetch.NewEngine(fetch.FetcherFunc(func(ctx context.Context, u *url.URL) (image.Image, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	r := remoteFor(t, "https://img.test/slow.png", attach.Handle{})
	engine.Trigger(r)
	<-started
	engine.Close()

	if r.State() != attach.Failed || !errors.Is(r.Err(), context.Canceled) {
		t.Fatalf("expected cancelled failure, got %s %v", r.State(), r.Err())
	}
	if engine.Trigger(remoteFor(t, "https://img.test/late.png", attach.Handle{})) {
		t.Fatalf("closed engine must ignore triggers")
	}
}

func TestPrefetchWaitsForAll(t *testing.T) {
	var hits atomic.Int32
	server := pngServer(t, 8, 8, nil, &hits)
	engine := fetch.NewEngine(&fetch.HTTPFetcher{})
	defer engine.Close()

	ok := remoteFor(t, server.URL+"/ok.png", attach.Handle{})
	bad := remoteFor(t, "gopher://img.test/x.png", attach.Handle{})
	done := remoteFor(t, server.URL+"/done.png", attach.Handle{})
	done.Begin()
	done.Fail(errors.New("earlier"))

	if err := engine.Prefetch(context.Background(), []*attach.Remote{ok, bad, done, nil}); err != nil {
		t.Fatalf("prefetch must absorb per-attachment failures, got %v", err)
	}
	if ok.State() != attach.Resolved || bad.State() != attach.Failed {
		t.Fatalf("unexpected states ok=%s bad=%s", ok.State(), bad.State())
	}
	if hits.Load() != 1 {
		t.Fatalf("terminal attachments must not be fetched again, hits=%d", hits.Load())
	}
}

func TestPixelScaleResamples(t *testing.T) {
	engine := fetch.NewEngine(fetch.FetcherFunc(func(context.Context, *url.URL) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 400, 200)), nil
	}), fetch.WithPixelScale(2))
	defer engine.Close()

	r := remoteFor(t, "https://img.test/big.png", attach.Handle{})
	engine.Trigger(r)
	engine.Wait()
	if got := r.Image().Bounds().Size(); got != image.Pt(40, 20) {
		t.Fatalf("expected 40x20 pixels at scale 2, got %v", got)
	}
	if r.Bounds() != (attach.Rect{W: 20, H: 10}) {
		t.Fatalf("box must come from the natural size, got %+v", r.Bounds())
	}
}

// TestSharedRequestSurvivesOtherEngineClose covers two engines sharing one
// HTTPFetcher: closing the engine that started the request must not fail the
// other engine's attachment for the same URL.
func TestSharedRequestSurvivesOtherEngineClose(t *testing.T) {
	gate := make(chan struct{})
	var hits atomic.Int32
	server := pngServer(t, 40, 20, gate, &hits)
	shared := &fetch.HTTPFetcher{}

	results := make(chan fetch.Result, 1)
	e1 := fetch.NewEngine(shared)
	e2 := fetch.NewEngine(shared, fetch.OnComplete(func(res fetch.Result) { results <- res }))
	defer e2.Close()

	r1 := remoteFor(t, server.URL+"/same.png", attach.Handle{})
	r2 := remoteFor(t, server.URL+"/same.png", attach.Handle{})
	e1.Trigger(r1)
	deadline := time.After(5 * time.Second)
	for hits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the first request")
		case <-time.After(time.Millisecond):
		}
	}
	e2.Trigger(r2)
	e1.Close()
	if r1.State() != attach.Failed || !errors.Is(r1.Err(), context.Canceled) {
		t.Fatalf("closed engine's attachment should fail as cancelled, got %s %v", r1.State(), r1.Err())
	}

	close(gate)
	res := waitResult(t, results)
	if res.State != attach.Resolved || res.Err != nil {
		t.Fatalf("other engine's attachment must resolve, got %s err=%v", res.State, res.Err)
	}
	if got := r2.Bounds(); got != (attach.Rect{W: 20, H: 10}) {
		t.Fatalf("expected 20x10 box, got %+v", got)
	}
}

func TestTriggerRacingCloseIsSafe(t *testing.T) {
	engine := fetch.NewEngine(fetch.FetcherFunc(func(ctx context.Context, u *url.URL) (image.Image, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	var remotes []*attach.Remote
	for i := 0; i < 32; i++ {
		remotes = append(remotes, remoteFor(t, "https://img.test/"+string(rune('a'+i%26))+".png", attach.Handle{}))
	}
	var wg sync.WaitGroup
	for _, r := range remotes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Trigger(r)
		}()
	}
	engine.Close()
	wg.Wait()
	engine.Wait()
	for _, r := range remotes {
		// 要么从未开始，要么已被取消
		if st := r.State(); st != attach.Pending && st != attach.Failed {
			t.Fatalf("%s: unexpected state %s", r.URL(), st)
		}
	}
}

type panickingView struct{}

func (panickingView) Redraw() { panic("repaint exploded") }

func TestPanickingCompletionIsRecovered(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{}, 2)
	engine := fetch.NewEngine(fetch.FetcherFunc(func(context.Context, *url.URL) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}), fetch.OnComplete(func(fetch.Result) {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			panic("continuation exploded")
		}
	}))
	defer engine.Close()

	anchor := attach.NewAnchor(panickingView{})
	first := remoteFor(t, "https://img.test/first.png", anchor.Handle())
	second := remoteFor(t, "https://img.test/second.png", attach.Handle{})
	engine.Trigger(first)
	engine.Trigger(second)
	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for completions")
		}
	}
	engine.Wait()
	if first.State() != attach.Resolved || second.State() != attach.Resolved {
		t.Fatalf("both attachments should resolve, got %s %s", first.State(), second.State())
	}
	runtime.KeepAlive(anchor)
}
