package layout

import "image"

// 该文件定义布局结果，供渲染器与调试 JSON 共用。所有坐标与尺寸以毫米为单位，原点在页面左上角。

// Result 保存布局后的页面与资源信息。
type Result struct {
	Pages     []Page       `json:"pages"`
	Resources ResourceSet  `json:"resources"`
	Meta      DocumentMeta `json:"meta"`
}

// ResourceSet 记录布局中用到的字体。
type ResourceSet struct {
	Fonts map[string]FontResource `json:"fonts"`
}

// FontResource 描述字体资源，src 可以是文件路径或 embed:* 形式。
type FontResource struct {
	Name   string `json:"name"`
	Src    string `json:"src"`
	Style  string `json:"style"`
	Family string `json:"family"` // 渲染器使用的 Family 名称
}

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Page 记录页面尺寸、边距与最终可以直接渲染的元素。
type Page struct {
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Margin Margin     `json:"margin"`
	Lines  []LineBox  `json:"lines"`
	Runs   []RunBox   `json:"runs"`
	Images []ImageBox `json:"images"`
	Rules  []Line     `json:"rules,omitempty"` // 下划线
	Gaps   []Rect     `json:"gaps,omitempty"`  // 尚未（或无法）显示图片的占位框，仅在 ShowGaps 时输出
	Links  []LinkBox  `json:"links,omitempty"`
}

// Margin 以毫米为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// LineBox 描述一行的位置，Start/End 为该行覆盖的 rune 区间（所属文本内）。
type LineBox struct {
	Text     int     `json:"text"` // 第几段文本
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Y        float64 `json:"y"`
	Height   float64 `json:"height"`
	Baseline float64 `json:"baseline"`
	Width    float64 `json:"width"`
}

// RunBox 是一段同样式的文字，X 为左端、Baseline 为基线。
type RunBox struct {
	Content   string  `json:"content"`
	X         float64 `json:"x"`
	Baseline  float64 `json:"baseline"`
	Width     float64 `json:"width"`
	Font      string  `json:"font"`
	FontSize  float64 `json:"fontSize"`
	Color     Color   `json:"color"`
	Underline bool    `json:"underline,omitempty"`
	Link      string  `json:"link,omitempty"`
}

// ImageBox 描述一个行内附件的位置与尺寸。Image 为空时不绘制。
type ImageBox struct {
	Source string      `json:"source"`
	State  string      `json:"state"`
	Pos    int         `json:"pos"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Image  image.Image `json:"-"`
}

// LinkBox 是可点击区域。
type LinkBox struct {
	Payload string  `json:"payload"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Line 表示一条线段。
type Line struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color Color   `json:"color"`
	Width float64 `json:"width"` // 线宽（mm），<=0 时由渲染器给默认值
}

// Rect 表示一个矩形（不包含圆角）。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	StrokeColor Color   `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`         // mm
	FillColor   *Color  `json:"fillColor,omitempty"` // 为空表示不填充
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}
