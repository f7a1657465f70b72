package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/ByLCY/tweetstyle/attach"
	"github.com/ByLCY/tweetstyle/binding"
	"github.com/ByLCY/tweetstyle/config"
	"github.com/ByLCY/tweetstyle/fetch"
	"github.com/ByLCY/tweetstyle/layout"
	"github.com/ByLCY/tweetstyle/style"
	"github.com/ByLCY/tweetstyle/view"
)

// session 汇总一次命令执行所需的配置、日志与绑定数据。
type session struct {
	cfg     config.Config
	baseDir string // 配置文件所在目录，字体等相对路径以此为准
	logger  *slog.Logger
	data    any
	fetch   bool
}

func newSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, baseDir: ".", logger: logger}
	if cfgPath != "" {
		s.baseDir = filepath.Dir(cfgPath)
	}
	if noFetch, _ := flags.GetBool("no-fetch"); !noFetch {
		s.fetch = true
	}
	if dataPath, _ := flags.GetString("data"); dataPath != "" {
		f, err := os.Open(dataPath)
		if err != nil {
			return nil, fmt.Errorf("无法打开数据文件 %s: %w", dataPath, err)
		}
		defer f.Close()
		if s.data, err = binding.Decode(f); err != nil {
			return nil, fmt.Errorf("%s: %w", dataPath, err)
		}
	}
	return s, nil
}

// readTweets 读取所有输入，args 为空或为 "-" 时读标准输入。空行分隔多条 tweet。
func readTweets(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var tweets []string
	for _, path := range args {
		var r io.Reader
		if path == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("无法打开输入文件 %s: %w", path, err)
			}
			defer f.Close()
			r = f
		}
		got, err := splitTweets(r)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
		}
		tweets = append(tweets, got...)
	}
	if len(tweets) == 0 {
		return nil, fmt.Errorf("没有可处理的 tweet")
	}
	return tweets, nil
}

func splitTweets(r io.Reader) ([]string, error) {
	var (
		tweets []string
		lines  []string
	)
	flush := func() {
		if len(lines) > 0 {
			tweets = append(tweets, strings.Join(lines, "\n"))
			lines = nil
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return tweets, sc.Err()
}

// source 把绑定数据填入 tweet 标记。
func (s *session) source(src string) string {
	if s.data == nil {
		return src
	}
	return binding.InterpolateMarkup(src, s.data)
}

func (s *session) tweetOptions() (style.TweetOptions, error) {
	opts, err := s.cfg.TweetOptions(nil, s.logger)
	if err != nil {
		return style.TweetOptions{}, err
	}
	// 绑定值经过转义，需要实体解码才能还原
	if s.data != nil {
		opts.Entities = true
	}
	return opts, nil
}

// styleAll 为每条 tweet 建一个 label 并设置内容；开启抓取时等待所有远程图片落定。
// plain 为 true 时只保留正文文本。
func (s *session) styleAll(ctx context.Context, srcs []string, plain bool) ([]*style.StyledText, error) {
	opts, err := s.tweetOptions()
	if err != nil {
		return nil, err
	}
	texts := make([]*style.StyledText, 0, len(srcs))
	var remotes []*attach.Remote
	for i, src := range srcs {
		lopts := []view.Option{view.WithTweetOptions(opts), view.WithLogger(s.logger)}
		if plain {
			lopts = append(lopts, view.WithPlain())
		}
		label := view.NewLabel(nil, lopts...)
		if err := label.SetTweet(s.source(src)); err != nil {
			return nil, fmt.Errorf("第 %d 条 tweet: %w", i+1, err)
		}
		st := label.Content()
		if plain {
			if st, err = style.Assemble(label.Text(), nil); err != nil {
				return nil, fmt.Errorf("第 %d 条 tweet: %w", i+1, err)
			}
		} else {
			remotes = append(remotes, st.Remotes()...)
		}
		texts = append(texts, st)
	}
	if s.fetch && len(remotes) > 0 {
		if err := s.prefetch(ctx, remotes); err != nil {
			return nil, err
		}
	}
	return texts, nil
}

func (s *session) prefetch(ctx context.Context, remotes []*attach.Remote) error {
	fetcher, err := s.cfg.Fetcher()
	if err != nil {
		return err
	}
	opts, err := s.cfg.EngineOptions(s.logger)
	if err != nil {
		return err
	}
	var failed atomic.Int32
	opts = append(opts, fetch.OnComplete(func(res fetch.Result) {
		if res.State == attach.Failed {
			failed.Add(1)
		}
	}))
	engine := fetch.NewEngine(fetcher, opts...)
	defer engine.Close()
	if err := engine.Prefetch(ctx, remotes); err != nil {
		return fmt.Errorf("抓取远程图片被中断: %w", err)
	}
	s.logger.Info("remote images settled", "comp", "cli", "stage", "prefetch",
		"total", len(remotes), "failed", failed.Load())
	return nil
}

// build 排版所有 tweet。
func (s *session) build(texts []*style.StyledText, ts layout.Typesetter) (*layout.Result, error) {
	opts, err := s.cfg.BuildOptions(ts)
	if err != nil {
		return nil, err
	}
	res, err := layout.BuildAll(texts, opts)
	if err != nil {
		return nil, fmt.Errorf("布局计算失败: %w", err)
	}
	return res, nil
}
