package fetch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"fortio.org/safecast"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ByLCY/tweetstyle/attach"
)

// DefaultConcurrency bounds simultaneous fetches.
const DefaultConcurrency = 4

// Result is delivered once per attachment when its fetch ends.
type Result struct {
	Remote  *attach.Remote
	State   attach.State // Resolved or Failed
	Err     error        // wraps ErrRemoteFetch when Failed
	Redrawn bool         // false when the owner was gone or showed other content
	Elapsed time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds simultaneous fetches; n <= 0 keeps the default.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithTimeout bounds a single fetch.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithPixelScale resamples resolved images to their fitted box times scale
// pixels per point. Zero keeps the decoded image as is.
func WithPixelScale(scale float64) Option {
	return func(e *Engine) { e.pixelScale = scale }
}

// WithLogger sets the logger; nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// OnComplete registers the continuation run after every fetch, after the
// redraw request. It runs on the fetch goroutine; a panic in fn is
// recovered and logged.
func OnComplete(fn func(Result)) Option {
	return func(e *Engine) { e.onComplete = fn }
}

// Engine issues fetches for remote attachments. Trigger is safe to call from
// any goroutine and never blocks on the network.
type Engine struct {
	fetcher    Fetcher
	limit      int
	timeout    time.Duration
	pixelScale float64
	logger     *slog.Logger
	onComplete func(Result)

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool
}

// NewEngine creates an engine that fetches through f.
func NewEngine(f Fetcher, opts ...Option) *Engine {
	e := &Engine{fetcher: f, limit: DefaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.sem = semaphore.NewWeighted(int64(e.limit))
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Trigger starts fetching r if it is still Pending and reports whether a
// fetch was issued. Calls on Fetching or terminal attachments are no-ops.
func (e *Engine) Trigger(r *attach.Remote) bool {
	if r == nil {
		return false
	}
	e.mu.Lock()
	if e.closed || !r.Begin() {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		e.run(e.ctx, r)
	}()
	return true
}

// Prefetch fetches every still Pending attachment and waits until they are
// terminal or ctx is done. Per-attachment failures are absorbed into their
// Failed state; only a context error is returned.
func (e *Engine) Prefetch(ctx context.Context, remotes []*attach.Remote) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-e.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range remotes {
		if r == nil || !r.Begin() {
			continue
		}
		g.Go(func() error {
			e.run(gctx, r)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// Wait blocks until every fetch started by Trigger has completed.
func (e *Engine) Wait() { e.wg.Wait() }

// Close cancels in-flight fetches and waits for them. Attachments still
// Fetching end up Failed. Later triggers are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, r *attach.Remote) {
	start := time.Now()
	img, natural, err := e.fetch(ctx, r)
	if err == nil {
		if !r.Resolve(img, natural) {
			err = fmt.Errorf("%w: %s: attachment left the fetching state", ErrRemoteFetch, r.URL())
		}
	} else {
		r.Fail(err)
	}
	e.complete(r, err, time.Since(start))
}

func (e *Engine) fetch(ctx context.Context, r *attach.Remote) (img image.Image, natural image.Point, err error) {
	u := r.URL()
	defer func() {
		if p := recover(); p != nil {
			img = nil
			err = fmt.Errorf("%w: %s: panic: %v", ErrRemoteFetch, u, p)
		}
	}()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, image.Point{}, fmt.Errorf("%w: %s: %w", ErrRemoteFetch, u, err)
	}
	defer e.sem.Release(1)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if e.fetcher == nil {
		return nil, image.Point{}, fmt.Errorf("%w: %s: no fetcher configured", ErrRemoteFetch, u)
	}
	img, err = e.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("%w: %s: %w", ErrRemoteFetch, u, err)
	}
	if img == nil {
		return nil, image.Point{}, fmt.Errorf("%w: %s: fetcher returned no image", ErrRemoteFetch, u)
	}
	natural = img.Bounds().Size()
	if natural.X <= 0 || natural.Y <= 0 {
		return nil, image.Point{}, fmt.Errorf("%w: %s: empty image", ErrRemoteFetch, u)
	}
	return e.resample(img, r.Fit(), natural), natural, nil
}

// resample scales img to the fitted box at the configured pixel density. It
// never upscales.
func (e *Engine) resample(img image.Image, fit attach.Rect, natural image.Point) image.Image {
	if e.pixelScale <= 0 {
		return img
	}
	box := attach.AspectFit(fit, float64(natural.X), float64(natural.Y))
	w, errW := safecast.Round[int](box.W * e.pixelScale)
	h, errH := safecast.Round[int](box.H * e.pixelScale)
	if errW != nil || errH != nil || w <= 0 || h <= 0 || w >= natural.X || h >= natural.Y {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func (e *Engine) complete(r *attach.Remote, err error, elapsed time.Duration) {
	res := Result{Remote: r, State: r.State(), Err: err, Elapsed: elapsed}
	owner := r.Owner()
	log := e.logger.With("comp", "fetch", "url", r.URL().String(), "elapsed", elapsed)
	e.guard(log, "redraw", func() { res.Redrawn = owner.RequestRedraw() })

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		log.Debug("fetch cancelled", "stage", "complete", "err", err)
	case err != nil:
		log.Warn("remote image failed, leaving gap", "stage", "complete", "err", err)
	default:
		box := r.Bounds()
		log.Debug("remote image resolved", "stage", "complete", "w", box.W, "h", box.H)
	}
	if !res.Redrawn {
		log.Debug("redraw suppressed, owner gone or reused", "stage", "redraw", "generation", owner.Generation())
	}
	if e.onComplete != nil {
		e.guard(log, "continuation", func() { e.onComplete(res) })
	}
}

// guard runs fn and logs a panic instead of letting it take down the fetch
// goroutine. The attachment is already terminal at this point.
func (e *Engine) guard(log *slog.Logger, stage string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("completion panicked", "stage", stage, "panic", p)
		}
	}()
	fn()
}
