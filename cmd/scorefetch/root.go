package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/config"
	"github.com/yourusername/score-forge/internal/jobs"
	"github.com/yourusername/score-forge/internal/logging"
	"github.com/yourusername/score-forge/internal/scrape"
)

type fetchOptions struct {
	outDir  string
	timeout time.Duration
	baseURL string
	verbose bool
}

func newRootCommand() *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:           "scorefetch <song-url>",
		Short:         "人人钢琴网の楽譜を PDF として保存します",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.baseURL == "" {
				opts.baseURL = cfg.EOPBaseURL
			}

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.New("debug", level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runFetch(ctx, cfg, opts, args[0], cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "PDF の出力先ディレクトリ")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "全体のタイムアウト")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "歌曲詳細ページのベースURL（既定は EOP_BASE_URL）")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "詳細ログを出力する")
	return cmd
}

// runFetch は解析から PDF 生成までを同期的に実行し、結果を表で出力します。
func runFetch(ctx context.Context, cfg *config.Config, opts fetchOptions, songURL string, out io.Writer, logger *zap.Logger) error {
	client := scrape.NewClient(scrape.Options{
		Timeout:      cfg.HTTPTimeout(),
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxImageBytes,
	})
	manager, err := jobs.NewManager(
		jobs.NewStore(cfg.JobTTL()),
		scrape.NewAnalyzer(client, opts.baseURL),
		jobs.NewSheetProcessor(client, logger),
		logger,
	)
	if err != nil {
		return err
	}

	job, err := manager.Submit(ctx, songURL)
	if err != nil {
		return err
	}
	if err := manager.ProcessJob(ctx, job); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	rows := make([][]string, 0, len(job.Sheets()))
	for _, sheet := range job.Sheets() {
		pages := "-"
		if sheet.TotalImages != nil {
			pages = strconv.Itoa(*sheet.TotalImages)
		}
		result := ""
		if sheet.Status == jobs.SheetCompleted {
			path, err := writeDocument(manager, job.ID, sheet.Kind, opts.outDir)
			if err != nil {
				return err
			}
			result = path
		} else if sheet.Error != nil {
			result = sheet.Error.Code + ": " + sheet.Error.Message
		}
		rows = append(rows, []string{sheet.Name, string(sheet.Status), pages, result})
	}

	title := job.SongTitle()
	if title == "" {
		title = job.SongURL
	}
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, renderTable(
		[]string{"Sheet", "Status", "Pages", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	if job.Status() != jobs.StatusCompleted {
		return errors.New("すべての楽譜の取得に失敗しました")
	}
	return nil
}

func writeDocument(manager *jobs.Manager, jobID string, kind scrape.SheetKind, dir string) (string, error) {
	dl, err := manager.Document(jobID, kind)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, sanitizeFilename(dl.Filename))
	if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")

func sanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}
