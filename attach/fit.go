package attach

import "math"

// DefaultFit is the box remote images are scaled into unless configured:
// 20x20pt, dropped 4pt below the baseline.
var DefaultFit = Rect{X: 0, Y: -4, W: 20, H: 20}

// AspectFit scales a w×h image to the largest size that fits inside fit while
// keeping its aspect ratio, anchored at fit's origin. Degenerate input yields
// a zero-sized box at the origin.
func AspectFit(fit Rect, w, h float64) Rect {
	if w <= 0 || h <= 0 || fit.Empty() {
		return Rect{X: fit.X, Y: fit.Y}
	}
	scale := math.Min(fit.W/w, fit.H/h)
	return Rect{X: fit.X, Y: fit.Y, W: w * scale, H: h * scale}
}
