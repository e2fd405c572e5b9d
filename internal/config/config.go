// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUserAgent は楽譜サイトへのリクエストに付与するブラウザ相当の User-Agent です。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブ設定
	JobExpireMinutes int    // ジョブの保持期間（分）
	QueueRedisURL    string // Asynq用Redis接続URL（空ならプロセス内で処理）
	QueueConcurrency int    // Asynqワーカーの並列数

	// 楽譜サイト設定
	EOPBaseURL         string // 歌曲詳細ページのベースURL
	UserAgent          string // 外部リクエストの User-Agent
	HTTPTimeoutSeconds int    // 外部リクエストのタイムアウト（秒）
	MaxImageBytes      int64  // 楽譜画像1枚あたりの最大サイズ（バイト）

	// ログ設定
	LogLevel string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
		QueueRedisURL:    getEnv("QUEUE_REDIS_URL", ""),
		QueueConcurrency: getEnvAsInt("QUEUE_CONCURRENCY", 2),

		EOPBaseURL:         getEnv("EOP_BASE_URL", "https://www.everyonepiano.cn"),
		UserAgent:          getEnv("EOP_USER_AGENT", DefaultUserAgent),
		HTTPTimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30),
		MaxImageBytes:      getEnvAsInt64("MAX_IMAGE_BYTES", 20*1024*1024), // 20MB

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.JobExpireMinutes <= 0 {
		return fmt.Errorf("JOB_EXPIRE_MINUTES must be positive")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.QueueConcurrency <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive")
	}
	if c.GinMode == "release" && c.EOPBaseURL == "" {
		return fmt.Errorf("EOP_BASE_URL is required in release mode")
	}
	return nil
}

// JobTTL はジョブの保持期間を返します。
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// HTTPTimeout は外部リクエストのタイムアウトを返します。
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
