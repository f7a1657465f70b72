package markup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"golang.org/x/net/html"
)

var (
	// Root 状态吃掉普通文本；遇到 "<字母" 才进入 Tag 状态，孤立的 "<" 仍按文本处理。
	markupLexer = lexer.MustStateful(lexer.Rules{
		"Root": {
			{Name: "CloseTag", Pattern: `</[A-Za-z][A-Za-z0-9_:.-]*`, Action: lexer.Push("Tag")},
			{Name: "OpenTag", Pattern: `<[A-Za-z][A-Za-z0-9_:.-]*`, Action: lexer.Push("Tag")},
			{Name: "Text", Pattern: `[^<]+`},
			{Name: "Less", Pattern: `<`},
		},
		"Tag": {
			{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
			{Name: "Ident", Pattern: `[A-Za-z_:][A-Za-z0-9_:.-]*`},
			{Name: "Eq", Pattern: `=`},
			{Name: "String", Pattern: `"[^"]*"`},
			{Name: "SelfClose", Pattern: `/>`, Action: lexer.Pop()},
			{Name: "TagEnd", Pattern: `>`, Action: lexer.Pop()},
		},
	})

	markupParser = participle.MustBuild[rawDocument](
		participle.Lexer(markupLexer),
		participle.Elide("Whitespace"),
	)
)

// rawDocument is the flat token-level grammar; nesting is checked afterwards.
type rawDocument struct {
	Nodes []*rawNode `parser:"@@*"`
}

type rawNode struct {
	Pos   lexer.Position `parser:""`
	Close *rawClose      `parser:"  @@"`
	Open  *rawOpen       `parser:"| @@"`
	Text  *string        `parser:"| @(Text | Less)"`
}

type rawOpen struct {
	Pos         lexer.Position `parser:""`
	Name        tagName        `parser:"@OpenTag"`
	Attrs       []*rawAttr     `parser:"@@*"`
	SelfClosing bool           `parser:"( @SelfClose | TagEnd )"`
}

type rawAttr struct {
	Key   string  `parser:"@Ident"`
	Value *quoted `parser:"( Eq @String )?"`
}

type rawClose struct {
	Pos  lexer.Position `parser:""`
	Name tagName        `parser:"@CloseTag TagEnd"`
}

// tagName strips the "<" or "</" delimiter captured with the name.
type tagName string

// Capture implements participle.Capture.
func (t *tagName) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("tag name capture requires value")
	}
	name := strings.TrimPrefix(strings.TrimPrefix(values[0], "<"), "/")
	*t = tagName(strings.ToLower(name))
	return nil
}

// quoted holds an attribute value without its surrounding double quotes.
type quoted string

// Capture implements participle.Capture.
func (q *quoted) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("attribute value capture requires value")
	}
	v := values[0]
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return fmt.Errorf("attribute value %s is not double-quoted", v)
	}
	*q = quoted(v[1 : len(v)-1])
	return nil
}

// Option configures Parse.
type Option func(*parseConfig)

type parseConfig struct {
	voidTags map[string]bool
	entities bool
}

// DefaultVoidTags lists tags that may omit both "/>" and a closing tag.
var DefaultVoidTags = []string{"br", "img"}

// WithVoidTags replaces the set of tags accepted without a closing tag.
func WithVoidTags(names ...string) Option {
	return func(c *parseConfig) {
		c.voidTags = make(map[string]bool, len(names))
		for _, n := range names {
			c.voidTags[strings.ToLower(n)] = true
		}
	}
}

// WithEntities enables decoding of HTML character references such as &amp;
// in text and attribute values.
func WithEntities(on bool) Option {
	return func(c *parseConfig) { c.entities = on }
}

// Parse parses markup into a validated element tree. Any lexical error,
// unclosed tag or improper nesting yields a *MalformedMarkupError.
func Parse(src string, opts ...Option) (*Document, error) {
	cfg := parseConfig{}
	WithVoidTags(DefaultVoidTags...)(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}

	raw, err := markupParser.ParseString("", src)
	if err != nil {
		return nil, fromParticiple(src, err)
	}
	return buildTree(src, raw, cfg)
}

func fromParticiple(src string, err error) error {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return &MalformedMarkupError{Reason: err.Error(), Err: err}
	}
	pos := perr.Position()
	reason := perr.Message()
	switch {
	case pos.Offset < len(src) && src[pos.Offset] == '"':
		reason = "unterminated attribute value"
	case pos.Offset >= len(src):
		reason = "unexpected end of input inside tag"
	case strings.HasPrefix(reason, "unexpected token"):
		reason = "invalid tag syntax: " + reason
	}
	return &MalformedMarkupError{
		Offset: pos.Offset,
		Line:   pos.Line,
		Column: pos.Column,
		Reason: reason,
		Err:    err,
	}
}

func (c parseConfig) text(s string) string {
	if c.entities {
		return html.UnescapeString(s)
	}
	return s
}
