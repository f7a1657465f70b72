// Package termrenderer previews layout results in a terminal. Text is laid
// out on a character grid and attachments show as state markers.
package termrenderer

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"fortio.org/safecast"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ByLCY/tweetstyle/layout"
	"github.com/ByLCY/tweetstyle/renderer"
)

var _ renderer.Backend = (*Renderer)(nil)

// Options configures the terminal renderer. Cell sizes are in mm so that a
// page width maps onto a column count.
type Options struct {
	CellWidth  float64 // default 2mm
	CellHeight float64 // default 4mm
	Color      bool    // emit ANSI styling
	Body       layout.Color
}

// Renderer is a character-grid backend: it measures text in cells and
// prints runs at the column nearest to their layout position.
type Renderer struct {
	opts Options
}

// New returns a terminal renderer.
func New(opts Options) *Renderer {
	if opts.CellWidth <= 0 {
		opts.CellWidth = 2
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = 4
	}
	return &Renderer{opts: opts}
}

// Columns returns the page width, in mm, that yields cols columns of text
// between the given margins.
func (r *Renderer) Columns(cols int, margin layout.Margin) float64 {
	return float64(cols)*r.opts.CellWidth + margin.Left + margin.Right
}

// TextWidth implements layout.Typesetter; every cell has the same width.
func (r *Renderer) TextWidth(content string, _ layout.FontResource, _ float64) (float64, error) {
	return float64(runewidth.StringWidth(content)) * r.opts.CellWidth, nil
}

// FontMetrics implements layout.Typesetter.
func (r *Renderer) FontMetrics(layout.FontResource, float64) (layout.Metrics, error) {
	h := r.opts.CellHeight
	return layout.Metrics{Ascent: h * 0.8, Descent: h * 0.2, LineHeight: h}, nil
}

type cell struct {
	x    float64
	text string
}

// Render prints every line of every page. Pages are separated by a rule.
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	var sb strings.Builder
	for i, page := range result.Pages {
		if i > 0 {
			sb.WriteString(strings.Repeat("-", r.columns(page.Width)))
			sb.WriteByte('\n')
		}
		for _, ln := range page.Lines {
			sb.WriteString(r.renderLine(page, ln, result.Resources))
			sb.WriteByte('\n')
		}
	}
	return []byte(sb.String()), nil
}

func (r *Renderer) columns(width float64) int {
	return max(1, r.cells(width))
}

// cells converts a length in mm to the nearest whole number of cells.
func (r *Renderer) cells(mm float64) int {
	n, err := safecast.Round[int](mm / r.opts.CellWidth)
	if err != nil {
		return 0
	}
	return n
}

func (r *Renderer) renderLine(page layout.Page, ln layout.LineBox, res layout.ResourceSet) string {
	const eps = 1e-6
	var cells []cell
	for _, run := range page.Runs {
		if math.Abs(run.Baseline-ln.Baseline) > eps {
			continue
		}
		cells = append(cells, cell{x: run.X, text: r.styleRun(run, res)})
	}
	for _, ib := range page.Images {
		if ib.Y < ln.Y-eps || ib.Y+ib.Height > ln.Y+ln.Height+eps {
			continue
		}
		n := max(1, r.cells(ib.Width))
		cells = append(cells, cell{x: ib.X, text: Marker(ib.State, n)})
	}
	slices.SortStableFunc(cells, func(a, b cell) int {
		switch {
		case a.x < b.x:
			return -1
		case a.x > b.x:
			return 1
		}
		return 0
	})

	var sb strings.Builder
	col := 0
	for _, c := range cells {
		want := r.cells(c.x - page.Margin.Left)
		if want > col {
			sb.WriteString(strings.Repeat(" ", want-col))
			col = want
		}
		sb.WriteString(c.text)
		col += lipgloss.Width(c.text)
	}
	return strings.TrimRight(sb.String(), " ")
}

func (r *Renderer) styleRun(run layout.RunBox, res layout.ResourceSet) string {
	if !r.opts.Color {
		return run.Content
	}
	st := lipgloss.NewStyle()
	if run.Color != r.opts.Body || run.Link != "" {
		st = st.Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", run.Color.R, run.Color.G, run.Color.B)))
	}
	font := strings.ToLower(res.Fonts[run.Font].Style)
	if font == "" {
		font = strings.ToLower(run.Font)
	}
	if strings.Contains(font, "bold") {
		st = st.Bold(true)
	}
	if strings.Contains(font, "italic") {
		st = st.Italic(true)
	}
	if run.Underline {
		st = st.Underline(true)
	}
	return st.Render(run.Content)
}

// Marker returns a state marker exactly n cells wide.
func Marker(state string, n int) string {
	var label string
	switch state {
	case "resolved", "local":
		label = "[img]"
	case "pending":
		label = "[..]"
	case "fetching":
		label = "[>>]"
	case "failed":
		label = "[x]"
	default:
		label = "[ ]"
	}
	if runewidth.StringWidth(label) > n {
		return runewidth.Truncate(label, n, "")
	}
	return runewidth.FillRight(label, n)
}
