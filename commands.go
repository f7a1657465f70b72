package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/binding"
	"github.com/ByLCY/tweetstyle/layout"
	"github.com/ByLCY/tweetstyle/renderer"
	canvasrenderer "github.com/ByLCY/tweetstyle/renderer/canvas"
	termrenderer "github.com/ByLCY/tweetstyle/renderer/term"
	"github.com/ByLCY/tweetstyle/snapshot"
	"github.com/ByLCY/tweetstyle/style"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [flags] [file...]",
		Short: "把 tweet 渲染为 PDF",
		RunE:  runRender,
	}
	cmd.Flags().StringP("out", "o", "output/tweets.pdf", "PDF 输出路径")
	cmd.Flags().String("debug-json", "", "布局调试 JSON 输出路径")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	debugPath, _ := cmd.Flags().GetString("debug-json")

	srcs, err := readTweets(cmd, args)
	if err != nil {
		return err
	}
	texts, err := s.styleAll(cmd.Context(), srcs, false)
	if err != nil {
		return err
	}
	var r renderer.Backend = canvasrenderer.NewRenderer(s.baseDir)
	if err := render(s, texts, r, out, debugPath); err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "已生成 PDF：%s\n", out)
	return nil
}

// render 串联布局与渲染，并写出 PDF。
func render(s *session, texts []*style.StyledText, r renderer.Backend, outputPath, debugPath string) error {
	result, err := s.build(texts, r)
	if err != nil {
		return err
	}
	if debugPath != "" {
		if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
			return fmt.Errorf("创建调试目录失败: %w", err)
		}
		if err := layout.WriteDebugJSON(result, debugPath); err != nil {
			return fmt.Errorf("输出调试 JSON 失败: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	pdfBytes, err := r.Render(result)
	if err != nil {
		return fmt.Errorf("渲染 PDF 失败: %w", err)
	}
	if err := os.WriteFile(outputPath, pdfBytes, 0o644); err != nil {
		return fmt.Errorf("写入 PDF 文件失败: %w", err)
	}
	return nil
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] [file...]",
		Short: "输出样式化结果的快照",
		Long:  `dump 输出每条 tweet 的正文、样式分段与附件状态，格式为 json 或 msgpack。`,
		RunE:  runDump,
	}
	cmd.Flags().String("format", "json", "快照格式 (json|msgpack)")
	cmd.Flags().StringP("out", "o", "-", "输出路径，多条 tweet 时按序号追加后缀")
	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	formatName, _ := cmd.Flags().GetString("format")
	format, err := snapshot.ParseFormat(formatName)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	srcs, err := readTweets(cmd, args)
	if err != nil {
		return err
	}
	texts, err := s.styleAll(cmd.Context(), srcs, false)
	if err != nil {
		return err
	}
	for i, st := range texts {
		snap := snapshot.Take(st)
		if out == "-" {
			if err := snapshot.Encode(cmd.OutOrStdout(), snap, format); err != nil {
				return fmt.Errorf("输出快照失败: %w", err)
			}
			continue
		}
		path := out
		if len(texts) > 1 {
			ext := filepath.Ext(out)
			path = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(out, ext), i+1, ext)
		}
		if err := snapshot.WriteFile(path, snap, format); err != nil {
			return fmt.Errorf("写入快照 %s 失败: %w", path, err)
		}
	}
	return nil
}

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [flags] [file...]",
		Short: "在终端预览排版结果",
		RunE:  runPreview,
	}
	cmd.Flags().Int("width", 0, "预览列数，默认取终端宽度")
	cmd.Flags().String("color", "auto", "彩色输出 (auto|on|off)")
	cmd.Flags().Bool("plain", false, "只显示正文文本")
	return cmd
}

// previewMargin 在字符网格上上下各留一行、左右各留一列。
var previewMargin = layout.Margin{Top: 4, Right: 2, Bottom: 4, Left: 2}

func runPreview(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	plain, _ := cmd.Flags().GetBool("plain")
	cols, _ := cmd.Flags().GetInt("width")
	if cols <= 0 {
		cols = terminalWidth(os.Stdout, 80)
	}
	colorFlag, _ := cmd.Flags().GetString("color")
	var useColor bool
	switch colorFlag {
	case "on":
		useColor = true
	case "off":
	case "auto":
		useColor = isTerminal(os.Stdout)
	default:
		return fmt.Errorf("未知的 --color 取值 %q", colorFlag)
	}

	srcs, err := readTweets(cmd, args)
	if err != nil {
		return err
	}
	texts, err := s.styleAll(cmd.Context(), srcs, plain)
	if err != nil {
		return err
	}
	opts, err := s.cfg.BuildOptions(nil)
	if err != nil {
		return err
	}
	r := termrenderer.New(termrenderer.Options{Color: useColor, Body: opts.Color})
	opts.Typesetter = r
	opts.Margin = previewMargin
	opts.PageWidth = r.Columns(cols, previewMargin)
	opts.PageHeight = 0

	w := cmd.OutOrStdout()
	for i, st := range texts {
		if i > 0 {
			fmt.Fprintln(w)
		}
		res, err := layout.Build(st, opts)
		if err != nil {
			return fmt.Errorf("第 %d 条 tweet 布局失败: %w", i+1, err)
		}
		text, err := r.Render(res)
		if err != nil {
			return err
		}
		if _, err := w.Write(text); err != nil {
			return err
		}
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [flags] [file...]",
		Short: "检查 tweet 标记与绑定数据",
		Long:  `check 逐条解析 tweet，报告标记错误与无法解析的 ${...} 绑定，不抓取远程图片。`,
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	srcs, err := readTweets(cmd, args)
	if err != nil {
		return err
	}
	opts, err := s.tweetOptions()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	bad := 0
	for i, src := range srcs {
		var problems []string
		if s.data != nil {
			for _, path := range binding.Missing(src, s.data) {
				problems = append(problems, fmt.Sprintf("绑定 ${%s} 无法解析", path))
			}
		}
		st, err := style.Tweet(s.source(src), attach.Handle{}, opts)
		if err != nil {
			problems = append(problems, err.Error())
		}
		if len(problems) > 0 {
			bad++
			warnColor.Fprintf(w, "#%d", i+1)
			fmt.Fprintf(w, " %s\n", strings.Join(problems, "; "))
			continue
		}
		links, images := summarize(st)
		okColor.Fprintf(w, "#%d", i+1)
		fmt.Fprintf(w, " ok (%d 个链接, %d 张图片)\n", links, images)
	}
	if bad > 0 {
		return fmt.Errorf("%d/%d 条 tweet 未通过检查", bad, len(srcs))
	}
	return nil
}

// summarize 统计不同的链接数与附件数。
func summarize(st *style.StyledText) (links, images int) {
	seen := map[string]bool{}
	for _, run := range st.Runs() {
		if payload, ok := run.Attrs.LinkValue(); ok && !seen[payload] {
			seen[payload] = true
			links++
		}
	}
	return links, len(st.Attachments())
}
