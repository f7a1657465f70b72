package attach

import (
	"runtime"
	"sync/atomic"
	"testing"
)

type countingView struct {
	redraws atomic.Int32
}

func (v *countingView) Redraw() { v.redraws.Add(1) }

func TestHandleRedrawsCurrentGeneration(t *testing.T) {
	v := &countingView{}
	a := NewAnchor(v)
	a.Advance()
	h := a.Handle()

	if !h.Live() || !h.RequestRedraw() {
		t.Fatalf("handle for current content must be live")
	}
	if v.redraws.Load() != 1 {
		t.Fatalf("expected one redraw, got %d", v.redraws.Load())
	}

	// 模拟 cell 复用：内容换代后旧 handle 失效。
	a.Advance()
	if h.Live() || h.RequestRedraw() {
		t.Fatalf("stale handle must not redraw")
	}
	if v.redraws.Load() != 1 {
		t.Fatalf("stale request leaked a redraw")
	}
	runtime.KeepAlive(a)
}

func TestZeroHandleIsInert(t *testing.T) {
	var h Handle
	if h.Live() || h.RequestRedraw() {
		t.Fatalf("zero handle must be inert")
	}
}

func TestHandleDoesNotKeepViewAlive(t *testing.T) {
	h := func() Handle {
		a := NewAnchor(&countingView{})
		return a.Handle()
	}()
	runtime.GC()
	runtime.GC()
	if h.Live() {
		t.Fatalf("handle must not keep a discarded view alive")
	}
	if h.RequestRedraw() {
		t.Fatalf("redraw on a discarded view must be a no-op")
	}
}
