package layout

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/style"
)

// ErrNoTypesetter 表示调用方没有提供排版器。
var ErrNoTypesetter = errors.New("layout: 缺少排版器")

// Build 将一段样式文本排版为页面。
func Build(st *style.StyledText, opts BuildOptions) (*Result, error) {
	return BuildAll([]*style.StyledText{st}, opts)
}

// BuildAll 依次排版多段文本，段与段之间留 ParagraphGap。PageHeight 为 0 时
// 所有内容落在同一页，页面高度随内容增长；否则按页高分页。
func BuildAll(texts []*style.StyledText, opts BuildOptions) (*Result, error) {
	if opts.Typesetter == nil {
		return nil, ErrNoTypesetter
	}
	opts = opts.withDefaults()
	if opts.PageWidth-opts.Margin.Left-opts.Margin.Right <= 0 {
		return nil, fmt.Errorf("页面宽度 %.2fmm 不足以容纳左右边距", opts.PageWidth)
	}
	b := &builder{
		opts:    opts,
		metrics: map[metricsKey]Metrics{},
		used:    map[string]FontResource{},
		pc:      newPageCollector(opts.PageWidth, opts.PageHeight, opts.Margin),
	}
	base, err := b.fontMetrics(b.font(opts.Font, false, false), opts.FontSize)
	if err != nil {
		return nil, err
	}
	b.base = base

	for i, st := range texts {
		if st == nil {
			continue
		}
		if i > 0 {
			b.pc.advance(opts.ParagraphGap)
		}
		items, err := b.collect(st)
		if err != nil {
			return nil, fmt.Errorf("排版第 %d 段失败: %w", i+1, err)
		}
		lines, err := b.wrap(items)
		if err != nil {
			return nil, fmt.Errorf("排版第 %d 段失败: %w", i+1, err)
		}
		for _, ln := range lines {
			b.place(i, ln)
		}
	}
	return &Result{
		Pages:     b.pc.pages(),
		Resources: ResourceSet{Fonts: b.used},
		Meta:      opts.Meta,
	}, nil
}

type metricsKey struct {
	font string
	size float64
}

type builder struct {
	opts    BuildOptions
	metrics map[metricsKey]Metrics
	used    map[string]FontResource
	base    Metrics
	pc      *pageCollector
}

// runStyle 是一个 Run 解析后的绘制样式。
type runStyle struct {
	font      FontResource
	size      float64
	color     Color
	underline bool
	link      string
	metrics   Metrics
}

func (a *runStyle) same(b *runStyle) bool {
	return a.font.Name == b.font.Name && a.size == b.size && a.color == b.color &&
		a.underline == b.underline && a.link == b.link
}

// item 是折行的最小单位：一个词、一段空白、一次换行或一个附件。
type item struct {
	text    string
	start   int // rune 偏移
	runes   int
	space   bool
	newline bool
	width   float64
	run     *runStyle // 附件为 nil

	img    image.Image // 与 box 同一时刻读取
	box    attach.Rect // pt
	source string
	state  string
	gap    bool
}

type lineItems struct {
	items []item
	width float64
	start int
	end   int
}

func (l *lineItems) add(it item) {
	if len(l.items) == 0 {
		l.start = it.start
	}
	l.items = append(l.items, it)
	l.width += it.width
	l.end = it.start + it.runes
}

func (b *builder) collect(st *style.StyledText) ([]item, error) {
	runes := []rune(st.Text())
	var items []item
	for _, run := range st.Runs() {
		rs, err := b.styleFor(run.Attrs)
		if err != nil {
			return nil, err
		}
		att, hasAtt := run.Attrs.AttachmentValue()
		for _, tok := range tokenize(runes[run.Range.Start:run.Range.End], run.Range.Start) {
			if tok.text == style.Placeholder {
				if hasAtt {
					items = append(items, b.attachmentItem(att, tok.start))
				}
				// 没有附件的占位符不占空间
				continue
			}
			tok.run = rs
			if !tok.newline {
				w, err := b.opts.Typesetter.TextWidth(tok.text, rs.font, rs.size)
				if err != nil {
					return nil, fmt.Errorf("测量文本 %q 失败: %w", tok.text, err)
				}
				tok.width = w
			}
			items = append(items, tok)
		}
	}
	return items, nil
}

func (b *builder) attachmentItem(att attach.Attachment, pos int) item {
	it := item{start: pos, runes: 1}
	var box attach.Rect
	switch a := att.(type) {
	case *attach.Remote:
		snap := a.Snapshot()
		box, it.img = snap.Bounds, snap.Image
		it.state = snap.State.String()
		it.source = a.URL().String()
		if snap.State == attach.Failed && b.opts.Gaps == GapCollapse {
			box = attach.Rect{}
		}
		it.gap = snap.State != attach.Resolved && !box.Empty()
	case *attach.Local:
		box, it.img = a.Bounds(), a.Image()
		it.source = "local:" + a.ID()
		it.state = "local"
		if a.Missing() {
			it.state = "missing"
		}
	default:
		box, it.img = att.Bounds(), att.Image()
	}
	it.box = box
	if !box.Empty() {
		it.width = math.Max(0, box.X+box.W) * PtToMm
	}
	return it
}

func (b *builder) styleFor(attrs style.Attrs) (*runStyle, error) {
	name, ok := attrs.FontName()
	if !ok {
		name = b.opts.Font
	}
	rs := &runStyle{
		font:      b.font(name, attrs.Flag(style.Bold), attrs.Flag(style.Italic)),
		size:      b.opts.FontSize,
		color:     b.opts.Color,
		underline: attrs.Flag(style.Underline),
	}
	if c, ok := attrs.Color(style.Foreground); ok {
		rs.color = colorFromRGBA(c)
	}
	if link, ok := attrs.LinkValue(); ok {
		rs.link = link
	}
	m, err := b.fontMetrics(rs.font, rs.size)
	if err != nil {
		return nil, err
	}
	rs.metrics = m
	return rs, nil
}

// font 按 名称+变体、名称、正文字体+变体、正文字体 的顺序查找字体。
func (b *builder) font(name string, bold, italic bool) FontResource {
	suffix := ""
	switch {
	case bold && italic:
		suffix = "-BoldItalic"
	case bold:
		suffix = "-Bold"
	case italic:
		suffix = "-Italic"
	}
	for _, c := range []string{name + suffix, name, b.opts.Font + suffix, b.opts.Font} {
		f, ok := b.opts.Fonts[c]
		if !ok {
			continue
		}
		if f.Name == "" {
			f.Name = c
		}
		b.used[f.Name] = f
		return f
	}
	f := FontResource{Name: name + suffix, Family: name, Style: strings.TrimPrefix(suffix, "-")}
	b.used[f.Name] = f
	return f
}

func (b *builder) fontMetrics(f FontResource, size float64) (Metrics, error) {
	key := metricsKey{font: f.Name, size: size}
	if m, ok := b.metrics[key]; ok {
		return m, nil
	}
	m, err := b.opts.Typesetter.FontMetrics(f, size)
	if err != nil {
		return Metrics{}, fmt.Errorf("读取字体 %s 度量失败: %w", f.Name, err)
	}
	b.metrics[key] = m
	return m, nil
}

func (b *builder) contentWidth() float64 {
	return b.opts.PageWidth - b.opts.Margin.Left - b.opts.Margin.Right
}

// wrap 贪心折行：词放不下时换行，过长的词按宽度切分；行尾空白不计宽度。
func (b *builder) wrap(items []item) ([]lineItems, error) {
	limit := b.contentWidth()
	var lines []lineItems
	var cur lineItems
	emit := func() {
		for len(cur.items) > 0 && cur.items[len(cur.items)-1].space {
			last := cur.items[len(cur.items)-1]
			cur.items = cur.items[:len(cur.items)-1]
			cur.width -= last.width
		}
		lines = append(lines, cur)
		cur = lineItems{}
	}

	for _, it := range items {
		switch {
		case it.newline:
			if len(cur.items) == 0 {
				cur.start, cur.end = it.start, it.start
			}
			emit()
			continue
		case it.space:
			cur.add(it)
			continue
		}
		if len(cur.items) > 0 && cur.width+it.width > limit {
			emit()
		}
		if it.run == nil || it.width <= limit {
			cur.add(it)
			continue
		}
		parts, err := b.splitByWidth(it, limit)
		if err != nil {
			return nil, err
		}
		for j, p := range parts {
			if j > 0 {
				emit()
			}
			cur.add(p)
		}
	}
	if len(cur.items) > 0 || len(lines) == 0 {
		emit()
	}
	return lines, nil
}

func (b *builder) splitByWidth(it item, limit float64) ([]item, error) {
	var parts []item
	var sb strings.Builder
	start, n := it.start, 0
	flush := func(w float64) {
		p := it
		p.text, p.start, p.runes, p.width = sb.String(), start, n, w
		parts = append(parts, p)
		start += n
		n = 0
		sb.Reset()
	}
	prev := 0.0
	for _, r := range it.text {
		sb.WriteRune(r)
		n++
		w, err := b.opts.Typesetter.TextWidth(sb.String(), it.run.font, it.run.size)
		if err != nil {
			return nil, err
		}
		if w > limit && n > 1 {
			s := []rune(sb.String())
			sb.Reset()
			sb.WriteString(string(s[:len(s)-1]))
			n--
			flush(prev)
			sb.WriteRune(r)
			n = 1
			if w, err = b.opts.Typesetter.TextWidth(string(r), it.run.font, it.run.size); err != nil {
				return nil, err
			}
		}
		prev = w
	}
	if n > 0 {
		flush(prev)
	}
	return parts, nil
}

// place 计算一行的高度与基线并写入当前页面。行高取正文行高、文字与附件
// 所需高度中的最大者，多余的空间平分到基线上下。
func (b *builder) place(textIdx int, ln lineItems) {
	ascent, descent := b.base.Ascent, b.base.Descent
	lh := b.opts.LineHeight.ResolveMM(b.opts.FontSize)
	for _, it := range ln.items {
		if it.run != nil {
			ascent = math.Max(ascent, it.run.metrics.Ascent)
			descent = math.Max(descent, it.run.metrics.Descent)
			lh = math.Max(lh, b.opts.LineHeight.ResolveMM(it.run.size))
			continue
		}
		if it.width > 0 {
			ascent = math.Max(ascent, (it.box.Y+it.box.H)*PtToMm)
			descent = math.Max(descent, -it.box.Y*PtToMm)
		}
	}
	height := math.Max(lh, ascent+descent)
	top := b.pc.reserve(height)
	baseline := top + (height-(ascent+descent))/2 + ascent
	acc := b.pc.curr()
	acc.lines = append(acc.lines, LineBox{
		Text: textIdx, Start: ln.start, End: ln.end,
		Y: top, Height: height, Baseline: baseline, Width: ln.width,
	})

	x := b.opts.Margin.Left + alignOffset(b.contentWidth(), ln.width, b.opts.Align)
	first := len(acc.runs)
	var prev *runStyle
	for _, it := range ln.items {
		if it.run == nil {
			prev = nil
			b.placeAttachment(acc, it, x, baseline)
			x += it.width
			continue
		}
		if prev != nil && prev.same(it.run) {
			rb := &acc.runs[len(acc.runs)-1]
			rb.Content += it.text
			rb.Width += it.width
		} else {
			acc.runs = append(acc.runs, RunBox{
				Content:   it.text,
				X:         x,
				Baseline:  baseline,
				Width:     it.width,
				Font:      it.run.font.Name,
				FontSize:  it.run.size,
				Color:     it.run.color,
				Underline: it.run.underline,
				Link:      it.run.link,
			})
			prev = it.run
		}
		x += it.width
	}
	for _, rb := range acc.runs[first:] {
		if rb.Underline && strings.TrimSpace(rb.Content) != "" {
			y := baseline + b.base.Descent*0.4
			acc.rules = append(acc.rules, Line{X1: rb.X, Y1: y, X2: rb.X + rb.Width, Y2: y, Color: rb.Color, Width: rb.FontSize * 0.06})
		}
		if rb.Link != "" {
			acc.links = append(acc.links, LinkBox{Payload: rb.Link, X: rb.X, Y: top, Width: rb.Width, Height: height})
		}
	}
}

func (b *builder) placeAttachment(acc *pageAccumulator, it item, x, baseline float64) {
	if it.width <= 0 {
		return
	}
	ib := ImageBox{
		Source: it.source,
		State:  it.state,
		Pos:    it.start,
		X:      x + it.box.X*PtToMm,
		Y:      baseline - (it.box.Y+it.box.H)*PtToMm,
		Width:  it.box.W * PtToMm,
		Height: it.box.H * PtToMm,
		Image:  it.img,
	}
	acc.images = append(acc.images, ib)
	if it.gap && b.opts.ShowGaps {
		acc.gaps = append(acc.gaps, Rect{
			X: ib.X, Y: ib.Y, Width: ib.Width, Height: ib.Height,
			StrokeColor: Color{R: 170, G: 170, B: 170},
			StrokeWidth: 0.2,
		})
	}
}

// tokenize 按空白/非空白切分，换行与占位符单独成词。
func tokenize(runes []rune, offset int) []item {
	var tokens []item
	var sb strings.Builder
	start, n := 0, 0
	lastWasSpace := false
	flush := func() {
		if n == 0 {
			return
		}
		tokens = append(tokens, item{text: sb.String(), start: offset + start, runes: n, space: lastWasSpace})
		sb.Reset()
		n = 0
	}
	placeholder := []rune(style.Placeholder)[0]
	for i, r := range runes {
		switch {
		case r == '\r':
			continue
		case r == '\n':
			flush()
			tokens = append(tokens, item{text: "\n", start: offset + i, runes: 1, newline: true})
			continue
		case r == placeholder:
			flush()
			tokens = append(tokens, item{text: style.Placeholder, start: offset + i, runes: 1})
			continue
		}
		isSpace := unicode.IsSpace(r)
		if n > 0 && lastWasSpace != isSpace {
			flush()
		}
		if n == 0 {
			start = i
			lastWasSpace = isSpace
		}
		sb.WriteRune(r)
		n++
	}
	flush()
	return tokens
}

func alignOffset(container, width float64, align string) float64 {
	if container <= width {
		return 0
	}
	switch strings.ToLower(align) {
	case "center", "middle":
		return (container - width) / 2
	case "right", "end":
		return container - width
	default:
		return 0
	}
}

func colorFromRGBA(c color.RGBA) Color {
	return Color{R: int(c.R), G: int(c.G), B: int(c.B)}
}

// ParseColor 解析 #rgb、#rrggbb 与 #rrggbbaa（忽略透明度）。
func ParseColor(value string) (Color, error) {
	v := strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(v) {
	case 3:
		v = strings.Repeat(v[0:1], 2) + strings.Repeat(v[1:2], 2) + strings.Repeat(v[2:3], 2)
	case 6, 8:
		v = v[:6]
	default:
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("颜色值 %s 无法解析: %w", value, err)
	}
	return Color{R: int(n >> 16 & 0xff), G: int(n >> 8 & 0xff), B: int(n & 0xff)}, nil
}

// ToRGBA 转换为 image/color 的颜色。
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: 0xff}
}

// pageAccumulator 收集一页上的元素。
type pageAccumulator struct {
	lines  []LineBox
	runs   []RunBox
	images []ImageBox
	rules  []Line
	gaps   []Rect
	links  []LinkBox
}

func (a *pageAccumulator) empty() bool { return len(a.lines) == 0 }

type pageCollector struct {
	width   float64
	height  float64
	margin  Margin
	accs    []*pageAccumulator
	current int
	cursor  float64
}

func newPageCollector(width, height float64, margin Margin) *pageCollector {
	pc := &pageCollector{
		width:  width,
		height: height,
		margin: margin,
	}
	pc.newPage()
	return pc
}

func (pc *pageCollector) newPage() *pageAccumulator {
	acc := &pageAccumulator{}
	pc.accs = append(pc.accs, acc)
	pc.current = len(pc.accs) - 1
	pc.cursor = pc.margin.Top
	return acc
}

func (pc *pageCollector) curr() *pageAccumulator {
	return pc.accs[pc.current]
}

func (pc *pageCollector) contentBottom() float64 {
	return pc.height - pc.margin.Bottom
}

// reserve 为高 h 的一行分配纵向空间，放不下时换页，返回行顶 y。
func (pc *pageCollector) reserve(h float64) float64 {
	if pc.height > 0 && pc.cursor+h > pc.contentBottom() && !pc.curr().empty() {
		pc.newPage()
	}
	top := pc.cursor
	pc.cursor += h
	return top
}

// advance 插入段间距；页首不留空。
func (pc *pageCollector) advance(gap float64) {
	if pc.curr().empty() {
		return
	}
	if pc.height > 0 && pc.cursor+gap > pc.contentBottom() {
		pc.newPage()
		return
	}
	pc.cursor += gap
}

func (pc *pageCollector) pages() []Page {
	pages := make([]Page, 0, len(pc.accs))
	for _, acc := range pc.accs {
		h := pc.height
		if h <= 0 {
			h = pc.cursor + pc.margin.Bottom
		}
		pages = append(pages, Page{
			Width:  pc.width,
			Height: h,
			Margin: pc.margin,
			Lines:  acc.lines,
			Runs:   acc.runs,
			Images: acc.images,
			Rules:  acc.rules,
			Gaps:   acc.gaps,
			Links:  acc.links,
		})
	}
	return pages
}
