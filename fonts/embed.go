// Package fonts 提供内置字体：Go 字体家族（golang.org/x/image/font/gofont）。
package fonts

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/tweetstyle/layout"
)

var builtin = map[string][]byte{
	"go-regular":    goregular.TTF,
	"go-bold":       gobold.TTF,
	"go-italic":     goitalic.TTF,
	"go-bolditalic": gobolditalic.TTF,
	"go-mono":       gomono.TTF,
	"go-mono-bold":  gomonobold.TTF,
}

// Load 返回内置字体的字节数据，name 可写为 "embed:go-regular"、"go-regular" 或 "go-regular.ttf"。
func Load(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(name, "embed:"), ".ttf"))
	data, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 未知字体（可用: %s）", name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// Names 列出所有内置字体名。
func Names() []string {
	return slices.Sorted(maps.Keys(builtin))
}

// Resources 返回默认字体表：Body 及其粗体/斜体变体，以及等宽的 Mono。
func Resources() map[string]layout.FontResource {
	res := func(name, src, style string) layout.FontResource {
		family := "Go"
		if strings.HasPrefix(name, "Mono") {
			family = "Go Mono"
		}
		return layout.FontResource{Name: name, Src: "embed:" + src, Style: style, Family: family}
	}
	return map[string]layout.FontResource{
		"Body":            res("Body", "go-regular", "Regular"),
		"Body-Bold":       res("Body-Bold", "go-bold", "Bold"),
		"Body-Italic":     res("Body-Italic", "go-italic", "Italic"),
		"Body-BoldItalic": res("Body-BoldItalic", "go-bolditalic", "BoldItalic"),
		"Mono":            res("Mono", "go-mono", "Regular"),
		"Mono-Bold":       res("Mono-Bold", "go-mono-bold", "Bold"),
	}
}
