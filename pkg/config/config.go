// Package config はユーザー設定 (YAML) の読み書きと環境変数による上書きを扱います。
// API キーは設定ファイルには保存せず、credential パッケージでキーチェーンに保管します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shouni/gemini-canvas-kit/pkg/applog"
	"github.com/shouni/gemini-canvas-kit/pkg/credential"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/generator"
	"github.com/shouni/gemini-canvas-kit/pkg/orchestrator"
)

const appDirName = "gemini-canvas"

// 環境変数による上書き
const (
	EnvConfigPath    = "GEMINI_CANVAS_CONFIG"
	EnvStorageDriver = "GEMINI_CANVAS_STORAGE_DRIVER"
	EnvStorageDSN    = "GEMINI_CANVAS_STORAGE_DSN"
	EnvPolicy        = "GEMINI_CANVAS_POLICY"
	EnvMode          = "GEMINI_CANVAS_MODE"
	EnvMaxCount      = "GEMINI_CANVAS_MAX_COUNT"
	EnvRateLimited   = "GEMINI_CANVAS_RATE_LIMITED"
)

type GeminiConfig struct {
	Models      generator.ModelSet `yaml:"models"`
	TitleModel  string             `yaml:"title_model"`
	Timeout     time.Duration      `yaml:"timeout"`
	RateLimited bool               `yaml:"rate_limited"`
	CacheTTL    time.Duration      `yaml:"cache_ttl"`
	// GCSCredentialsFile は gs:// の参照画像を読むサービスアカウントの鍵です。空の場合は ADC を使います。
	GCSCredentialsFile string `yaml:"gcs_credentials_file,omitempty"`
}

type GenerationConfig struct {
	MaxCount          int                 `yaml:"max_count"`
	Policy            orchestrator.Policy `yaml:"policy"`
	Mode              orchestrator.Mode   `yaml:"mode"`
	RequestsPerMinute int                 `yaml:"requests_per_minute"`
	PlaceholderTitle  string              `yaml:"placeholder_title"`
	DefaultTitle      string              `yaml:"default_title"`
	CascadeOffset     float64             `yaml:"cascade_offset"`
	Defaults          domain.Settings     `yaml:"defaults"`
}

type NotifyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type CredentialConfig struct {
	Service string `yaml:"service"`
	User    string `yaml:"user"`
	EnvVar  string `yaml:"env_var"`
}

// Config はアプリケーションの設定です。
type Config struct {
	ConfigVersion int              `yaml:"config_version"`
	Gemini        GeminiConfig     `yaml:"gemini"`
	Generation    GenerationConfig `yaml:"generation"`
	Notify        NotifyConfig     `yaml:"notify"`
	Storage       StorageConfig    `yaml:"storage"`
	Logging       applog.Options   `yaml:"logging"`
	Credential    CredentialConfig `yaml:"credential"`
}

// Defaults は既定の設定を返します。
func Defaults() Config {
	oc := orchestrator.DefaultConfig()
	return Config{
		ConfigVersion: 1,
		Gemini: GeminiConfig{
			Models:     generator.DefaultModels,
			TitleModel: generator.DefaultTitleModel,
			Timeout:    90 * time.Second,
			CacheTTL:   30 * time.Minute,
		},
		Generation: GenerationConfig{
			MaxCount:         oc.MaxCount,
			Policy:           oc.Policy,
			Mode:             oc.Mode,
			PlaceholderTitle: oc.PlaceholderTitle,
			DefaultTitle:     oc.DefaultTitle,
			CascadeOffset:    oc.CascadeOffset,
			Defaults:         domain.DefaultSettings(),
		},
		Notify:  NotifyConfig{TTL: 6 * time.Second},
		Storage: StorageConfig{Driver: "sqlite"},
		Logging: applog.Options{Level: "info", Format: "text"},
		Credential: CredentialConfig{
			Service: credential.DefaultService,
			User:    credential.DefaultUser,
			EnvVar:  credential.DefaultEnvVar,
		},
	}
}

// Dir はユーザー単位の設定ディレクトリを返します。
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("設定ディレクトリを特定できません: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultPath は設定ファイルの場所を返します。GEMINI_CANVAS_CONFIG が優先されます。
func DefaultPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load は設定ファイルを読み込み、既定値に重ねてから環境変数で上書きします。
// ファイルが存在しない場合は既定値を使います。path が空の場合は DefaultPath を使います。
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.resolveStorage(filepath.Dir(path)); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Save は設定を YAML で書き出します。
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate は設定値の整合性を確認します。
func (c Config) Validate() error {
	var errs []error
	if c.Generation.MaxCount < 1 {
		errs = append(errs, fmt.Errorf("generation.max_count must be positive: %d", c.Generation.MaxCount))
	}
	switch c.Generation.Policy {
	case orchestrator.PolicyBestEffort, orchestrator.PolicyAllOrNothing:
	default:
		errs = append(errs, fmt.Errorf("generation.policy must be best_effort or all_or_nothing: %q", c.Generation.Policy))
	}
	switch c.Generation.Mode {
	case orchestrator.ModeConcurrent, orchestrator.ModeSequential:
	default:
		errs = append(errs, fmt.Errorf("generation.mode must be concurrent or sequential: %q", c.Generation.Mode))
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or postgres: %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Orchestrator は生成設定をオーケストレーターの設定に変換します。
func (g GenerationConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		MaxCount:          g.MaxCount,
		Policy:            g.Policy,
		Mode:              g.Mode,
		RequestsPerMinute: g.RequestsPerMinute,
		PlaceholderTitle:  g.PlaceholderTitle,
		DefaultTitle:      g.DefaultTitle,
		CascadeOffset:     g.CascadeOffset,
	}
}

func (c *Config) resolveStorage(dir string) error {
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(dir, "sessions.db")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPolicy)); v != "" {
		cfg.Generation.Policy = orchestrator.Policy(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv(EnvMode)); v != "" {
		cfg.Generation.Mode = orchestrator.Mode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxCount)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.MaxCount = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRateLimited)); v != "" {
		lv := strings.ToLower(v)
		cfg.Gemini.RateLimited = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	cfg.Logging = applog.FromEnv(cfg.Logging)
}
