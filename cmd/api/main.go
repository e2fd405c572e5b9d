// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/config"
	"github.com/yourusername/score-forge/internal/logging"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.GinMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = splitOrigins(cfg.CORSAllowedOrigins)
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	// ダウンロード時のファイル名とジョブIDをフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	app, err := setupJobs(cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up jobs", zap.Error(err))
	}

	// ルーティングの設定
	setupRoutes(router, app)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("job shutdown", zap.Error(err))
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// setupRoutes はヘルスチェックと /api/eop 配下のルートを登録します。
func setupRoutes(router *gin.Engine, app *jobsApp) {
	router.GET("/health", healthHandler(app))

	api := router.Group("/api")
	{
		eop := api.Group("/eop")
		{
			eop.POST("/analyze", analyzeHandler(app.manager))
			eop.GET("/jobs", listJobsHandler(app.manager))
			eop.GET("/jobs/:id", jobStatusHandler(app.manager))
			eop.POST("/jobs/:id/retry", retryJobHandler(app.manager))
			eop.GET("/jobs/:id/download", jobDownloadHandler(app.manager))
			eop.GET("/jobs/:id/downloadScore", jobDownloadHandler(app.manager))
		}
	}
}
