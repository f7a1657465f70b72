// Package config 读取 TOML 配置，并转换为各个包的选项。
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/fetch"
	"github.com/ByLCY/tweetstyle/fonts"
	"github.com/ByLCY/tweetstyle/layout"
	"github.com/ByLCY/tweetstyle/style"
)

// Config 是完整配置。长度写作 "20pt" / "7mm" 等，颜色写作 "#rrggbb"。
type Config struct {
	Style  StyleConfig  `toml:"style"`
	Fetch  FetchConfig  `toml:"fetch"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

type StyleConfig struct {
	LinkColor         string    `toml:"link_color"`
	DisabledLinkColor string    `toml:"disabled_link_color"`
	LinksDisabled     bool      `toml:"links_disabled"`
	DetectURLs        bool      `toml:"detect_urls"`
	Entities          bool      `toml:"entities"`
	Images            string    `toml:"images"` // <img id> 资源目录
	Fit               FitConfig `toml:"fit"`
}

// FitConfig 是远程图片的 fit 矩形，Y 向上为正。
type FitConfig struct {
	X string `toml:"x"`
	Y string `toml:"y"`
	W string `toml:"w"`
	H string `toml:"h"`
}

type FetchConfig struct {
	Concurrency int     `toml:"concurrency"`
	Timeout     string  `toml:"timeout"`
	MaxWidth    int     `toml:"max_width"`
	MaxHeight   int     `toml:"max_height"`
	MaxBytes    int64   `toml:"max_bytes"`
	PixelScale  float64 `toml:"pixel_scale"`
	Root        string  `toml:"root"` // file:// 相对路径的根目录
	UserAgent   string  `toml:"user_agent"`
}

type RenderConfig struct {
	PageWidth    string `toml:"page_width"`
	PageHeight   string `toml:"page_height"` // 为空表示高度随内容增长
	Margin       string `toml:"margin"`
	Font         string `toml:"font"`
	FontSize     string `toml:"font_size"`
	LineHeight   string `toml:"line_height"`
	Color        string `toml:"color"`
	Align        string `toml:"align"`
	ParagraphGap string `toml:"paragraph_gap"`
	Gaps         string `toml:"gaps"` // reserve / collapse
	ShowGaps     bool   `toml:"show_gaps"`
	Title        string `toml:"title"`
	Author       string `toml:"author"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text / json
}

// Default 返回内置默认配置。
func Default() Config {
	return Config{
		Style: StyleConfig{
			LinkColor:         "#ff0000",
			DisabledLinkColor: "#aaaaaa",
			DetectURLs:        true,
			Fit:               FitConfig{X: "0pt", Y: "-4pt", W: "20pt", H: "20pt"},
		},
		Fetch: FetchConfig{
			Concurrency: fetch.DefaultConcurrency,
			Timeout:     "30s",
			MaxWidth:    fetch.DefaultLimits.MaxWidth,
			MaxHeight:   fetch.DefaultLimits.MaxHeight,
			MaxBytes:    fetch.DefaultLimits.MaxBytes,
			PixelScale:  2,
			UserAgent:   "tweetstyle",
		},
		Render: RenderConfig{
			PageWidth:  "120mm",
			Margin:     "8mm",
			Font:       "Body",
			FontSize:   "12pt",
			LineHeight: "1.4",
			Color:      "#1e1e1e",
			Align:      "left",
			Gaps:       "reserve",
			Title:      "tweets",
		},
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

// Load 读取 path 指定的 TOML 文件；未出现的键保持默认值。path 为空时返回默认配置。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: 解析 TOML 失败: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: 未知配置项 %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("fetch", "concurrency") && cfg.Fetch.Concurrency <= 0 {
		return Config{}, fmt.Errorf("%s: [fetch].concurrency 必须为正数", path)
	}
	// 相对路径相对于配置文件所在目录
	if meta.IsDefined("style", "images") {
		cfg.Style.Images = relTo(path, cfg.Style.Images)
	}
	if meta.IsDefined("fetch", "root") {
		cfg.Fetch.Root = relTo(path, cfg.Fetch.Root)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func relTo(file, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(file), p)
}

// Validate 检查所有取值，返回合并后的错误。
func (c Config) Validate() error {
	var errs []error
	if _, err := c.TweetOptions(nil, nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BuildOptions(nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FetchTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Fetch.PixelScale < 0 {
		errs = append(errs, fmt.Errorf("[fetch].pixel_scale 不能为负数"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("[log].format 只能是 text 或 json: %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// TweetOptions 转换为 tweet 样式选项。lookup 为空且配置了 images 目录时使用该目录。
func (c Config) TweetOptions(lookup attach.Lookup, logger *slog.Logger) (style.TweetOptions, error) {
	link, err := parseColor("[style].link_color", c.Style.LinkColor)
	if err != nil {
		return style.TweetOptions{}, err
	}
	disabled, err := parseColor("[style].disabled_link_color", c.Style.DisabledLinkColor)
	if err != nil {
		return style.TweetOptions{}, err
	}
	fit, err := c.Style.Fit.rect()
	if err != nil {
		return style.TweetOptions{}, err
	}
	if lookup == nil && c.Style.Images != "" {
		lookup = &attach.FSLookup{FS: os.DirFS(c.Style.Images)}
	}
	return style.TweetOptions{
		LinkColor:         link,
		DisabledLinkColor: disabled,
		LinksDisabled:     c.Style.LinksDisabled,
		NoDetection:       !c.Style.DetectURLs,
		Entities:          c.Style.Entities,
		Fit:               fit,
		Lookup:            lookup,
		Logger:            logger,
	}, nil
}

func (f FitConfig) rect() (attach.Rect, error) {
	var r attach.Rect
	for _, field := range []struct {
		name string
		raw  string
		dst  *float64
	}{{"x", f.X, &r.X}, {"y", f.Y, &r.Y}, {"w", f.W, &r.W}, {"h", f.H, &r.H}} {
		if field.raw == "" {
			continue
		}
		l, err := layout.ParseLength(field.raw)
		if err != nil {
			return attach.Rect{}, fmt.Errorf("[style.fit].%s: %w", field.name, err)
		}
		*field.dst = l.ToPT()
	}
	if r.Empty() {
		return attach.Rect{}, fmt.Errorf("[style.fit] 宽高必须为正数")
	}
	return r, nil
}

// Limits 返回图片解码限制。
func (c Config) Limits() fetch.Limits {
	return fetch.Limits{MaxWidth: c.Fetch.MaxWidth, MaxHeight: c.Fetch.MaxHeight, MaxBytes: c.Fetch.MaxBytes}
}

// FetchTimeout 解析单次请求超时。
func (c Config) FetchTimeout() (time.Duration, error) {
	if c.Fetch.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0, fmt.Errorf("[fetch].timeout: %w", err)
	}
	return d, nil
}

// Fetcher 构造 http/https/file 抓取器。
func (c Config) Fetcher() (fetch.SchemeFetcher, error) {
	timeout, err := c.FetchTimeout()
	if err != nil {
		return nil, err
	}
	h := &fetch.HTTPFetcher{Timeout: timeout, Limits: c.Limits(), UserAgent: c.Fetch.UserAgent}
	return fetch.SchemeFetcher{
		"http":  h,
		"https": h,
		"file":  &fetch.FileFetcher{Root: c.Fetch.Root, Limits: c.Limits()},
	}, nil
}

// EngineOptions 返回抓取引擎选项。
func (c Config) EngineOptions(logger *slog.Logger) ([]fetch.Option, error) {
	timeout, err := c.FetchTimeout()
	if err != nil {
		return nil, err
	}
	opts := []fetch.Option{
		fetch.WithConcurrency(c.Fetch.Concurrency),
		fetch.WithLogger(logger),
	}
	if timeout > 0 {
		opts = append(opts, fetch.WithTimeout(timeout))
	}
	if c.Fetch.PixelScale > 0 {
		opts = append(opts, fetch.WithPixelScale(c.Fetch.PixelScale))
	}
	return opts, nil
}

// BuildOptions 转换为布局选项，字体表为内置 Go 字体。
func (c Config) BuildOptions(ts layout.Typesetter) (layout.BuildOptions, error) {
	r := c.Render
	var errs []error
	length := func(key, raw string) float64 {
		if raw == "" {
			return 0
		}
		l, err := layout.ParseLength(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("[render].%s: %w", key, err))
			return 0
		}
		return l.ToMM()
	}
	opts := layout.BuildOptions{
		Typesetter:   ts,
		PageWidth:    length("page_width", r.PageWidth),
		PageHeight:   length("page_height", r.PageHeight),
		ParagraphGap: length("paragraph_gap", r.ParagraphGap),
		FontSize:     length("font_size", r.FontSize),
		Fonts:        fonts.Resources(),
		Font:         r.Font,
		Align:        r.Align,
		ShowGaps:     r.ShowGaps,
		Meta:         layout.DocumentMeta{Title: r.Title, Author: r.Author, Creator: "tweetstyle"},
	}
	if m := length("margin", r.Margin); m > 0 {
		opts.Margin = layout.Margin{Top: m, Right: m, Bottom: m, Left: m}
	}
	if r.LineHeight != "" {
		lh, err := layout.ParseLineHeight(r.LineHeight)
		if err != nil {
			errs = append(errs, fmt.Errorf("[render].line_height: %w", err))
		}
		opts.LineHeight = lh
	}
	if r.Color != "" {
		col, err := layout.ParseColor(r.Color)
		if err != nil {
			errs = append(errs, fmt.Errorf("[render].color: %w", err))
		}
		opts.Color = col
	}
	gaps, ok := layout.ParseGapPolicy(r.Gaps)
	if !ok {
		errs = append(errs, fmt.Errorf("[render].gaps 只能是 reserve 或 collapse: %q", r.Gaps))
	}
	opts.Gaps = gaps
	if _, ok := opts.Fonts[opts.Font]; opts.Font != "" && !ok {
		errs = append(errs, fmt.Errorf("[render].font 未知字体 %q", opts.Font))
	}
	if err := errors.Join(errs...); err != nil {
		return layout.BuildOptions{}, err
	}
	return opts, nil
}

// Logger 按 [log] 构造 slog 日志。
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("[log].level: %w", err)
	}
	return level, nil
}

func parseColor(key, raw string) (color.Color, error) {
	if raw == "" {
		return nil, nil
	}
	c, err := layout.ParseColor(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return c.ToRGBA(), nil
}
