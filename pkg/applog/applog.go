// Package applog はアプリケーション全体の slog の初期化を行います。
package applog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLevel  = "GEMINI_CANVAS_LOG_LEVEL"
	EnvFormat = "GEMINI_CANVAS_LOG_FORMAT"
	EnvFile   = "GEMINI_CANVAS_LOG_FILE"
)

// Options はロガーの設定です。
type Options struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
	// Quiet が true の場合はコンソールに出力しません。TUI の実行中に使います。
	Quiet bool `yaml:"-"`
}

// FromEnv は環境変数で opts を上書きした設定を返します。
func FromEnv(opts Options) Options {
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		opts.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFormat)); v != "" {
		opts.Format = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFile)); v != "" {
		opts.File = v
	}
	return opts
}

// Init は設定に従ってロガーを作成し、slog のデフォルトに設定します。
// 戻り値の io.Closer はファイル出力を閉じるために使います。
func Init(opts Options) (*slog.Logger, io.Closer) {
	logger, closer := New(os.Stderr, opts)
	slog.SetDefault(logger)
	return logger, closer
}

// New は console に出力するロガーを作成します。File が設定されていればローテーションつきのファイルにも出力します。
func New(console io.Writer, opts Options) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !opts.Quiet && console != nil {
		if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
			handlers = append(handlers, slog.NewJSONHandler(console, hopts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, hopts))
		}
	}

	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		w := &lumberjack.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(w, hopts))
		closer = w
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, hopts)), closer
	case 1:
		return slog.New(handlers[0]), closer
	default:
		return slog.New(fanout(handlers)), closer
	}
}

// ParseLevel は文字列をログレベルに変換します。不明な値は Info です。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
