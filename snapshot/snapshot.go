// Package snapshot dumps a StyledText as plain data for debugging and
// golden comparisons. Snapshots encode as JSON or msgpack.
package snapshot

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/style"
)

// Format selects the encoding.
type Format int

const (
	JSON Format = iota
	Msgpack
)

// ParseFormat accepts "json" and "msgpack" (or "mp").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return JSON, nil
	case "msgpack", "mp":
		return Msgpack, nil
	}
	return JSON, fmt.Errorf("unknown snapshot format %q", s)
}

// Snapshot is the data view of a StyledText at one moment.
type Snapshot struct {
	Text        string       `json:"text" msgpack:"text"`
	Length      int          `json:"length" msgpack:"length"`
	Runs        []Run        `json:"runs" msgpack:"runs"`
	Attachments []Attachment `json:"attachments" msgpack:"attachments"`
}

type Run struct {
	Start int    `json:"start" msgpack:"start"`
	End   int    `json:"end" msgpack:"end"`
	Attrs []Attr `json:"attrs,omitempty" msgpack:"attrs,omitempty"`
}

// Attr is an attribute rendered as text. Colors are #rrggbbaa; attachments
// are "@<pos>", referring to the attachment placed at that position.
type Attr struct {
	Key   string `json:"key" msgpack:"key"`
	Value string `json:"value" msgpack:"value"`
}

type Attachment struct {
	Pos         int         `json:"pos" msgpack:"pos"`
	Kind        string      `json:"kind" msgpack:"kind"`
	ID          string      `json:"id,omitempty" msgpack:"id,omitempty"`
	URL         string      `json:"url,omitempty" msgpack:"url,omitempty"`
	State       string      `json:"state" msgpack:"state"`
	Box         attach.Rect `json:"box" msgpack:"box"`
	Transitions []string    `json:"transitions,omitempty" msgpack:"transitions,omitempty"`
	Err         string      `json:"err,omitempty" msgpack:"err,omitempty"`
}

// Take captures st. Remote attachment state is read at call time.
func Take(st *style.StyledText) Snapshot {
	s := Snapshot{Text: st.Text(), Length: st.Len()}
	pos := map[attach.Attachment]int{}
	for _, p := range st.Attachments() {
		pos[p.Attachment] = p.Pos
		s.Attachments = append(s.Attachments, attachment(p))
	}
	for _, r := range st.Runs() {
		run := Run{Start: r.Range.Start, End: r.Range.End}
		for _, a := range r.Attrs.All() {
			run.Attrs = append(run.Attrs, Attr{Key: a.Key.String(), Value: value(a.Value, pos)})
		}
		s.Runs = append(s.Runs, run)
	}
	return s
}

func attachment(p style.Placement) Attachment {
	out := Attachment{Pos: p.Pos, Box: p.Attachment.Bounds()}
	switch a := p.Attachment.(type) {
	case *attach.Local:
		out.Kind, out.ID, out.State = "local", a.ID(), "local"
		if a.Missing() {
			out.State = "missing"
		}
	case *attach.Remote:
		out.Kind, out.URL, out.State = "remote", a.URL().String(), a.State().String()
		for _, t := range a.Transitions() {
			out.Transitions = append(out.Transitions, t.String())
		}
		if err := a.Err(); err != nil {
			out.Err = err.Error()
		}
	default:
		out.Kind = fmt.Sprintf("%T", a)
	}
	return out
}

func value(v any, pos map[attach.Attachment]int) string {
	switch x := v.(type) {
	case color.RGBA:
		return fmt.Sprintf("#%02x%02x%02x%02x", x.R, x.G, x.B, x.A)
	case attach.Attachment:
		if p, ok := pos[x]; ok {
			return fmt.Sprintf("@%d", p)
		}
		return "@?"
	default:
		return fmt.Sprint(x)
	}
}

// Encode writes s to w.
func Encode(w io.Writer, s Snapshot, f Format) error {
	if f == Msgpack {
		return msgpack.NewEncoder(w).Encode(s)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader, f Format) (Snapshot, error) {
	var s Snapshot
	var err error
	if f == Msgpack {
		err = msgpack.NewDecoder(r).Decode(&s)
	} else {
		err = json.NewDecoder(r).Decode(&s)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// WriteFile replaces path atomically.
func WriteFile(path string, s Snapshot, f Format) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if err = Encode(tmp, s, f); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile reads a snapshot file.
func ReadFile(path string, f Format) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer file.Close()
	return Decode(file, f)
}
