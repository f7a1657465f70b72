package main

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/ByLCY/tweetstyle/snapshot"
)

// execute 运行一次命令，返回标准输出与错误。
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	root := newRootCmd()
	var out bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestSplitTweets(t *testing.T) {
	got, err := splitTweets(strings.NewReader("a\nb\n\n  \n c \r\n\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a\nb", " c "}, got); diff != "" {
		t.Fatalf("tweets mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWritesPDFAndDebugJSON(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "pdf", "tweets.pdf")
	debug := filepath.Join(dir, "debug", "layout.json")
	stdout, err := execute(t, `hello <a href="https://x.test">x</a> <img url="https://img.test/a.png"/>`,
		"render", "--no-fetch", "-o", out, "--debug-json", debug)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(stdout, out) {
		t.Fatalf("expected output path in %q", stdout)
	}
	pdfBytes, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("读取 PDF 失败: %v", err)
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		t.Fatalf("输出不是 PDF")
	}
	raw, err := os.ReadFile(debug)
	if err != nil {
		t.Fatalf("读取调试 JSON 失败: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"https://x.test"`)) {
		t.Fatalf("调试 JSON 缺少链接: %s", raw)
	}
}

func TestDumpKeepsPendingWithoutFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweet.mp")
	_, err := execute(t, `<img url="https://img.test/a.png"/> hi`,
		"dump", "--no-fetch", "--format", "msgpack", "-o", path)
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	snap, err := snapshot.ReadFile(path, snapshot.Msgpack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Attachments) != 1 || snap.Attachments[0].State != "pending" {
		t.Fatalf("期望一个 pending 附件: %+v", snap.Attachments)
	}
}

func TestDumpFetchesRemoteImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		png.Encode(w, image.NewRGBA(image.Rect(0, 0, 8, 4)))
	}))
	defer srv.Close()

	src := `<img url="` + srv.URL + `/ok.png"/> <img url="` + srv.URL + `/missing.png"/>`
	stdout, err := execute(t, src, "dump")
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	snap, err := snapshot.Decode(strings.NewReader(stdout), snapshot.JSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var states []string
	for _, a := range snap.Attachments {
		states = append(states, a.State)
	}
	if diff := cmp.Diff([]string{"resolved", "failed"}, states); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if box := snap.Attachments[0].Box; box.W != 20 || box.H != 10 {
		t.Fatalf("resolved image should fit the default box: %+v", box)
	}
}

func TestDumpWritesOneFilePerTweet(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "one\n\ntwo", "dump", "-o", filepath.Join(dir, "snap.json"))
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	for i, want := range []string{"one", "two"} {
		snap, err := snapshot.ReadFile(filepath.Join(dir, []string{"snap-1.json", "snap-2.json"}[i]), snapshot.JSON)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Text != want {
			t.Fatalf("got %q, want %q", snap.Text, want)
		}
	}
}

func TestDataBindingIsEscapedThenDecoded(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(data, []byte(`{"user":{"name":"<b>ada</b>"}}`), 0o644); err != nil {
		t.Fatalf("写入数据失败: %v", err)
	}
	stdout, err := execute(t, "hi ${user.name}", "dump", "--no-fetch", "--data", data)
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	snap, err := snapshot.Decode(strings.NewReader(stdout), snapshot.JSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Text != "hi <b>ada</b>" {
		t.Fatalf("绑定值应作为文本出现: %q", snap.Text)
	}
}

func TestPreviewPlain(t *testing.T) {
	stdout, err := execute(t, "<img url=\"https://img.test/a.png\"/>hello world foo bar baz\n\nnext",
		"preview", "--no-fetch", "--plain", "--width", "20", "--color", "off")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if want := "hello world foo bar\nbaz\n\nnext\n"; stdout != want {
		t.Fatalf("got %q, want %q", stdout, want)
	}
}

func TestPreviewRejectsUnknownColorMode(t *testing.T) {
	if _, err := execute(t, "hi", "preview", "--color", "rainbow"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCheckReportsProblems(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(data, []byte(`{"name":"ada"}`), 0o644); err != nil {
		t.Fatalf("写入数据失败: %v", err)
	}
	stdout, err := execute(t, "hi ${name} https://x.test\n\n${nope} <b>", "check", "--data", data)
	if err == nil || !strings.Contains(err.Error(), "1/2") {
		t.Fatalf("expected one failing tweet, got %v", err)
	}
	if !strings.Contains(stdout, "#1 ok (1 个链接, 0 张图片)") {
		t.Fatalf("missing ok line: %q", stdout)
	}
	if !strings.Contains(stdout, "#2 绑定 ${nope} 无法解析") {
		t.Fatalf("missing binding report: %q", stdout)
	}
}

func TestMissingConfigFails(t *testing.T) {
	if _, err := execute(t, "hi", "check", "--config", filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error")
	}
}
