package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errColor = color.New(color.FgRed, color.Bold)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tweetstyle",
		Short:         "渲染带链接与图片的 tweet 标记",
		Long:          `tweetstyle 解析 tweet 标记（<a>、<img>、自动识别的 URL），抓取远程图片并输出 PDF、终端预览或快照。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "TOML 配置文件路径")
	root.PersistentFlags().String("data", "", "绑定到 ${...} 占位符的 JSON 文件")
	root.PersistentFlags().Bool("no-fetch", false, "不抓取远程图片，保留占位")
	root.PersistentFlags().String("log-level", "", "覆盖配置中的日志级别")

	root.AddCommand(newRenderCmd(), newDumpCmd(), newPreviewCmd(), newCheckCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errColor.Fprint(os.Stderr, "错误: ")
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// isTerminal 判断输出是否为终端
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth 返回终端列数，无法获取时返回 fallback。
func terminalWidth(f *os.File, fallback int) int {
	if !isTerminal(f) {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
