package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shouni/gemini-canvas-kit/pkg/adapters"
	"github.com/shouni/gemini-canvas-kit/pkg/app"
	"github.com/shouni/gemini-canvas-kit/pkg/applog"
	"github.com/shouni/gemini-canvas-kit/pkg/config"
	"github.com/shouni/gemini-canvas-kit/pkg/credential"
	"github.com/shouni/gemini-canvas-kit/pkg/generator"
	"github.com/shouni/gemini-canvas-kit/pkg/session"
	"google.golang.org/api/option"
)

type runtimeOptions struct {
	// quietLogs はコンソールへのログ出力を止めます (TUI 用)。
	quietLogs bool
	// prompt は API キーがない場合に端末から入力を求めます。
	prompt bool
	// noStudio は設定と認証情報だけを用意します。
	noStudio bool
}

// runtime はコマンドが使う依存関係一式です。
type runtime struct {
	cfg      config.Config
	creds    *credential.Provider
	sessions *session.Store
	studio   *app.Studio

	closers []io.Closer
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, flags *globalFlags, opts runtimeOptions) (*runtime, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logOpts := cfg.Logging
	logOpts.Quiet = opts.quietLogs
	_, logCloser := applog.Init(logOpts)

	rt := &runtime{cfg: cfg, closers: []io.Closer{logCloser}}
	credOpts := credential.Options{
		Service: cfg.Credential.Service,
		User:    cfg.Credential.User,
		EnvVar:  cfg.Credential.EnvVar,
	}
	if opts.prompt {
		credOpts.Prompter = credential.NewTerminalPrompter()
	}
	rt.creds = credential.NewProvider(credOpts)
	if opts.noStudio {
		return rt, nil
	}

	if err := rt.buildStudio(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) buildStudio(ctx context.Context) error {
	cfg := rt.cfg

	model := adapters.NewKeyedModel(rt.creds, cfg.Gemini.Timeout)
	gcsOpts := []option.ClientOption{option.WithUserAgent("gemini-canvas")}
	if cfg.Gemini.GCSCredentialsFile != "" {
		gcsOpts = append(gcsOpts, option.WithCredentialsFile(cfg.Gemini.GCSCredentialsFile))
	}
	reader := adapters.NewGCSReader(gcsOpts...)
	rt.closers = append(rt.closers, reader)

	core, err := generator.NewGeminiImageCore(model, reader, adapters.NewReferenceFetcher(cfg.Gemini.Timeout),
		generator.NewMemoryCache(), cfg.Gemini.CacheTTL)
	if err != nil {
		return fmt.Errorf("画像生成の初期化に失敗しました: %w", err)
	}
	images, err := generator.NewGeminiGenerator(core, cfg.Gemini.Models, generator.WithRateLimited(cfg.Gemini.RateLimited))
	if err != nil {
		return fmt.Errorf("画像生成の初期化に失敗しました: %w", err)
	}
	titles, err := generator.NewTitleGenerator(model, cfg.Gemini.TitleModel)
	if err != nil {
		return fmt.Errorf("タイトル生成の初期化に失敗しました: %w", err)
	}

	store, err := session.Open(ctx, session.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return fmt.Errorf("セッションストアを開けませんでした: %w", err)
	}
	rt.sessions = store
	rt.closers = append(rt.closers, store)

	studio, err := app.New(app.Deps{
		Images:      images,
		Titles:      titles,
		Credentials: rt.creds,
		Sessions:    store,
		Config:      cfg.Generation.Orchestrator(),
		NotifyTTL:   cfg.Notify.TTL,
		Settings:    cfg.Generation.Defaults,
	})
	if err != nil {
		return err
	}
	rt.studio = studio
	return nil
}

// Close は作成した順と逆に後始末をします。
func (rt *runtime) Close() {
	if rt.studio != nil {
		rt.studio.Close()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("終了処理でエラーが発生しました", "error", err)
	}
}
