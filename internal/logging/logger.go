// Package logging は zap ロガーの生成を担います。
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New は Gin の実行モードとログレベルからロガーを生成します。
// release モードでは JSON、それ以外では開発向けのコンソール出力になります。
func New(ginMode, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if ginMode == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if trimmed := strings.TrimSpace(level); trimmed != "" {
		lvl, err := zapcore.ParseLevel(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// OrNop は nil の場合に何も出力しないロガーを返します。
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Component はコンポーネント名を付与した子ロガーを返します。
func Component(logger *zap.Logger, name string) *zap.Logger {
	return OrNop(logger).With(zap.String("component", name))
}
