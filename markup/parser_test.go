package markup_test

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ByLCY/tweetstyle/markup"
)

// placeholder 是测试用 Transformer：img 的 opening 插入对象替换符，其余不变。
type placeholder struct{}

func (placeholder) Transform(tag markup.Tag, kind markup.Kind) (string, bool) {
	if tag.Name == "img" && kind == markup.Opening {
		return "\uFFFC", true
	}
	return "", false
}

func mustParse(t *testing.T, src string, opts ...markup.Option) *markup.Document {
	t.Helper()
	doc, err := markup.Parse(src, opts...)
	if err != nil {
		t.Fatalf("parse %q failed: %v", src, err)
	}
	return doc
}

func TestParseLinkBackbone(t *testing.T) {
	doc := mustParse(t, `Hello <a href="https://x.test">link</a>`)
	flat := markup.Flatten(doc, nil)
	if flat.Text != "Hello link" {
		t.Fatalf("expected backbone %q, got %q", "Hello link", flat.Text)
	}

	type spanView struct {
		Tag   string
		Kind  string
		Range markup.Range
	}
	var got []spanView
	for _, s := range flat.Spans {
		got = append(got, spanView{Tag: s.Tag.Name, Kind: s.Kind.String(), Range: s.Range})
	}
	want := []spanView{
		{Tag: "a", Kind: "opening", Range: markup.Range{Start: 6, End: 6}},
		{Tag: "a", Kind: "content", Range: markup.Range{Start: 6, End: 10}},
		{Tag: "a", Kind: "closing", Range: markup.Range{Start: 10, End: 10}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}

	href, ok := flat.Spans[1].Tag.Attrs.Get("href")
	if !ok || href != "https://x.test" {
		t.Fatalf("expected href attribute, got %q (ok=%v)", href, ok)
	}
}

func TestSelfClosingImageProducesSingleContentSpan(t *testing.T) {
	doc := mustParse(t, `<img url="https://img.test/a.png"/> hi`)
	flat := markup.Flatten(doc, placeholder{})
	if flat.Text != "\uFFFC hi" {
		t.Fatalf("unexpected backbone %q", flat.Text)
	}
	if len(flat.Spans) != 1 {
		t.Fatalf("expected one span, got %d: %+v", len(flat.Spans), flat.Spans)
	}
	span := flat.Spans[0]
	if span.Kind != markup.Content || span.Range != (markup.Range{Start: 0, End: 1}) {
		t.Fatalf("unexpected span %+v", span)
	}
}

func TestVoidTagWithoutSlash(t *testing.T) {
	doc := mustParse(t, `a<br>b<img id="logo">c`)
	flat := markup.Flatten(doc, placeholder{})
	if flat.Text != "ab\uFFFCc" {
		t.Fatalf("unexpected backbone %q", flat.Text)
	}
	if len(flat.Spans) != 2 {
		t.Fatalf("expected two spans, got %d", len(flat.Spans))
	}
}

func TestUnknownTagIsInert(t *testing.T) {
	doc := mustParse(t, `<b>bold <i>and</i></b> plain`)
	flat := markup.Flatten(doc, placeholder{})
	if flat.Text != "bold and plain" {
		t.Fatalf("unexpected backbone %q", flat.Text)
	}
	// b: opening/content/closing，i 嵌套在内部，Depth 为 1。
	if len(flat.Spans) != 6 {
		t.Fatalf("expected 6 spans, got %d", len(flat.Spans))
	}
	if flat.Spans[2].Tag.Name != "i" || flat.Spans[2].Depth != 1 {
		t.Fatalf("expected nested i opening at index 2, got %+v", flat.Spans[2])
	}
	if flat.Spans[1].Range != (markup.Range{Start: 0, End: 8}) {
		t.Fatalf("unexpected b content range %+v", flat.Spans[1].Range)
	}
}

func TestLiteralLessThanIsText(t *testing.T) {
	doc := mustParse(t, "1 < 2 and 3<4")
	if got := markup.Flatten(doc, nil).Text; got != "1 < 2 and 3<4" {
		t.Fatalf("unexpected backbone %q", got)
	}
}

func TestDuplicateAttributeFirstWins(t *testing.T) {
	doc := mustParse(t, `<a href="one" HREF="two">x</a>`)
	el := doc.Nodes[0].(*markup.Element)
	if el.Tag.Attrs.Len() != 1 {
		t.Fatalf("expected unique keys, got %+v", el.Tag.Attrs.All())
	}
	if v, _ := el.Tag.Attrs.Get("href"); v != "one" {
		t.Fatalf("expected first value to win, got %q", v)
	}
}

func TestEntitiesOption(t *testing.T) {
	src := `Tom &amp; Jerry <a href="a?x=1&amp;y=2">go</a>`
	raw := markup.Flatten(mustParse(t, src), nil).Text
	if raw != "Tom &amp; Jerry go" {
		t.Fatalf("entities must pass through by default, got %q", raw)
	}
	doc := mustParse(t, src, markup.WithEntities(true))
	if got := markup.Flatten(doc, nil).Text; got != "Tom & Jerry go" {
		t.Fatalf("unexpected decoded backbone %q", got)
	}
	el := doc.Nodes[1].(*markup.Element)
	if v, _ := el.Tag.Attrs.Get("href"); v != "a?x=1&y=2" {
		t.Fatalf("unexpected decoded href %q", v)
	}
}

func TestContentTransformReplacesInnerText(t *testing.T) {
	doc := mustParse(t, `see <x>hidden <a href="u">deep</a></x>!`)
	flat := markup.Flatten(doc, replaceX{})
	if flat.Text != "see [x]!" {
		t.Fatalf("unexpected backbone %q", flat.Text)
	}
	for _, s := range flat.Spans {
		if s.Tag.Name == "a" {
			t.Fatalf("spans inside replaced content must be dropped, got %+v", s)
		}
	}
}

type replaceX struct{}

func (replaceX) Transform(tag markup.Tag, kind markup.Kind) (string, bool) {
	if tag.Name == "x" && kind == markup.Content {
		return "[x]", true
	}
	return "", false
}

func TestMalformedMarkup(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		reason string
	}{
		{name: "unclosed", src: `<a href="x">unclosed`, reason: "unclosed tag"},
		{name: "stray close", src: `text</a>`, reason: "without matching"},
		{name: "bad nesting", src: `<a href="x"><b>t</a></b>`, reason: "improperly nested"},
		{name: "unterminated quote", src: `<a href="x>t</a>`, reason: "unterminated attribute value"},
		{name: "unquoted value", src: `<a href=x>t</a>`, reason: ""},
		{name: "truncated tag", src: `hello <a href="x"`, reason: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := markup.Parse(tc.src)
			if err == nil {
				t.Fatalf("expected error, got document %+v", doc)
			}
			if doc != nil {
				t.Fatalf("no partial document may be returned")
			}
			if !errors.Is(err, markup.ErrMalformedMarkup) {
				t.Fatalf("expected ErrMalformedMarkup, got %v", err)
			}
			var mErr *markup.MalformedMarkupError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected *MalformedMarkupError, got %T", err)
			}
			if tc.reason != "" && !strings.Contains(mErr.Reason, tc.reason) {
				t.Fatalf("expected reason containing %q, got %q", tc.reason, mErr.Reason)
			}
		})
	}
}

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	imgPattern = regexp.MustCompile(`<img[^>]*/>`)
)

// TestBackboneMatchesStrippedSource 验证：backbone == 去掉标签后的源文本，
// 且每个自闭合 img 恰好插入一个占位符。
func TestBackboneMatchesStrippedSource(t *testing.T) {
	inputs := []string{
		"plain text only",
		`Check this <a href="https://github.com">link</a> now`,
		`<img url="https://a.test/1.png"/> one <img src="https://a.test/2.png"/> two`,
		"  spaced\n<a href=\"u\">multi\nline</a>\t",
		`<img id="logo"/><a href="u"><b>x</b>y</a>`,
	}
	for _, src := range inputs {
		flat := markup.Flatten(mustParse(t, src), placeholder{})
		want := imgPattern.ReplaceAllString(src, "\uFFFC")
		want = tagPattern.ReplaceAllString(want, "")
		if flat.Text != want {
			t.Fatalf("backbone mismatch for %q:\nwant %q\ngot  %q", src, want, flat.Text)
		}
		if got, n := strings.Count(flat.Text, "\uFFFC"), len(imgPattern.FindAllString(src, -1)); got != n {
			t.Fatalf("expected %d placeholders, got %d", n, got)
		}
	}
}
