package layout

// GapPolicy 决定没有图片可显示的远程附件占多大空间。
type GapPolicy int

const (
	// GapReserve 保留 fit 矩形大小的空白（默认）。
	GapReserve GapPolicy = iota
	// GapCollapse 失败的附件宽度为零；加载中的附件仍保留空白。
	GapCollapse
)

// ParseGapPolicy 解析 "reserve" / "collapse"。
func ParseGapPolicy(s string) (GapPolicy, bool) {
	switch s {
	case "", "reserve":
		return GapReserve, true
	case "collapse":
		return GapCollapse, true
	}
	return GapReserve, false
}

// BuildOptions 配置布局阶段所需的依赖与版式。长度单位均为毫米。
type BuildOptions struct {
	Typesetter Typesetter

	PageWidth    float64 // 默认 120mm
	PageHeight   float64 // 0 表示单页、高度随内容增长
	Margin       Margin
	Align        string // left（默认）/center/right
	ParagraphGap float64

	Fonts      map[string]FontResource // 名称 -> 字体；"<name>-Bold" 等变体可选
	Font       string                  // 正文字体名，默认 "Body"
	FontSize   float64
	LineHeight LineHeightSpec
	Color      Color

	Gaps     GapPolicy
	ShowGaps bool
	Meta     DocumentMeta
}

// Metrics 为某字体、字号下的纵向度量（mm）。
type Metrics struct {
	Ascent     float64
	Descent    float64
	LineHeight float64
}

// Typesetter 负责测量文字宽度与字体度量。
type Typesetter interface {
	TextWidth(content string, font FontResource, fontSize float64) (float64, error)
	FontMetrics(font FontResource, fontSize float64) (Metrics, error)
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.PageWidth <= 0 {
		o.PageWidth = 120
	}
	if o.Margin == (Margin{}) {
		o.Margin = Margin{Top: 8, Right: 8, Bottom: 8, Left: 8}
	}
	if o.Font == "" {
		o.Font = "Body"
	}
	if o.FontSize <= 0 {
		o.FontSize = 12 * PtToMm
	}
	if o.LineHeight.Kind == LineHeightFactor && o.LineHeight.Factor <= 0 {
		o.LineHeight.Factor = 1.4
	}
	if o.Color == (Color{}) {
		o.Color = Color{R: 30, G: 30, B: 30}
	}
	if o.ParagraphGap <= 0 {
		o.ParagraphGap = o.FontSize
	}
	return o
}
