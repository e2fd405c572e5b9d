package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/config"
	"github.com/yourusername/score-forge/internal/jobs"
	"github.com/yourusername/score-forge/internal/scrape"
)

// jobsApp は HTTP ハンドラーが使う依存関係をまとめます。
type jobsApp struct {
	manager *jobs.Manager
	redis   *redis.Client
	logger  *zap.Logger
}

func setupJobs(cfg *config.Config, logger *zap.Logger) (*jobsApp, error) {
	client := scrape.NewClient(scrape.Options{
		Timeout:      cfg.HTTPTimeout(),
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxImageBytes,
	})
	store := jobs.NewStore(cfg.JobTTL())
	manager, err := jobs.NewManager(
		store,
		scrape.NewAnalyzer(client, cfg.EOPBaseURL),
		jobs.NewSheetProcessor(client, logger),
		logger,
	)
	if err != nil {
		return nil, err
	}
	app := &jobsApp{manager: manager, logger: logger}

	if cfg.QueueRedisURL == "" {
		logger.Info("QUEUE_REDIS_URL is empty; processing jobs in-process")
		return app, nil
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	app.redis = redis.NewClient(opt)

	queue, err := jobs.NewQueueDispatcher(jobs.QueueOptions{
		RedisURL:    cfg.QueueRedisURL,
		Concurrency: cfg.QueueConcurrency,
	}, manager, logger)
	if err != nil {
		return nil, err
	}
	queue.Start()
	manager.UseDispatcher(queue)
	return app, nil
}

// Close はディスパッチャと Redis 接続を閉じます。
func (a *jobsApp) Close(ctx context.Context) error {
	err := a.manager.Shutdown(ctx)
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// healthHandler はヘルスチェックエンドポイントのハンドラーです。
func healthHandler(app *jobsApp) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{
			"status":  "ok",
			"service": "score-forge-api",
			"version": "0.1.0",
			"queue":   "local",
		}
		if app.redis != nil {
			payload["queue"] = "redis"
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.logger.Warn("queue backend unreachable", zap.Error(err))
				payload["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, payload)
				return
			}
		}
		c.JSON(http.StatusOK, payload)
	}
}

type analyzeRequest struct {
	URL string `json:"url"`
}

func analyzeHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, jobs.CodeInvalidInput, "リクエストボディが不正です。")
			return
		}

		job, err := manager.Submit(c.Request.Context(), req.URL)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, job.Public())
	}
}

func listJobsHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := manager.List()
		views := make([]jobs.PublicJob, 0, len(list))
		for _, job := range list {
			views = append(views, job.Public())
		}
		c.JSON(http.StatusOK, views)
	}
}

// jobStatusHandler はジョブ情報を返します。pending のジョブはここで処理を開始します。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			respondError(c, http.StatusBadRequest, jobs.CodeInvalidInput, "jobId を指定してください。")
			return
		}

		job, ok := manager.Get(jobID)
		if !ok {
			respondWithError(c, jobs.ErrJobNotFound)
			return
		}
		if err := manager.Trigger(c.Request.Context(), job); err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, job.Public())
	}
}

func retryJobHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := manager.Retry(c.Request.Context(), strings.TrimSpace(c.Param("id")))
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, job.Public())
	}
}

func jobDownloadHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		kind, ok := scrape.ParseSheetKind(c.Query("kind"))
		if jobID == "" || !ok {
			respondError(c, http.StatusBadRequest, jobs.CodeInvalidInput, "jobId と楽譜の種類(kind=stave|number)を指定してください。")
			return
		}

		dl, err := manager.Document(jobID, kind)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(dl.Filename))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", jobID)
		c.Data(http.StatusOK, "application/pdf", dl.Data)
	}
}

// respondWithError はエラーの種類に応じてステータスコードとエラーコードを決めます。
func respondWithError(c *gin.Context, err error) {
	var fetchErr *scrape.FetchError
	switch {
	case errors.Is(err, jobs.ErrMissingSongURL), errors.Is(err, scrape.ErrInvalidSongURL):
		respondError(c, http.StatusBadRequest, jobs.CodeInvalidInput, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
	case errors.Is(err, jobs.ErrSheetNotFound), errors.Is(err, jobs.ErrDocumentNotReady):
		respondError(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", err.Error())
	case errors.Is(err, jobs.ErrNotRetryable):
		respondError(c, http.StatusConflict, "JOB_NOT_RETRYABLE", err.Error())
	case errors.As(err, &fetchErr):
		respondError(c, http.StatusBadGateway, jobs.CodeFetchFailed, err.Error())
	case errors.Is(err, jobs.ErrNoSheets):
		respondError(c, http.StatusInternalServerError, jobs.CodeNoSheets, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, jobs.CodeInternal, "内部エラーが発生しました。")
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
