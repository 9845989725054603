// Package credential は Gemini API キーの保管と取得を扱います。
// キーは環境変数または OS のキーチェーンから読み込み、設定ファイルには保存しません。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

const (
	DefaultService = "gemini-canvas"
	DefaultUser    = "api_key"
	DefaultEnvVar  = "GEMINI_API_KEY"
)

// Source はキーの取得元です。
type Source string

const (
	SourceNone    Source = "none"
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
)

// Store はキーの保管先です。テストではメモリ上の実装に差し替えます。
type Store interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

// KeyringStore は OS のキーチェーンを使う Store です。
type KeyringStore struct{}

func (KeyringStore) Get(service, user string) (string, error) { return keyring.Get(service, user) }

func (KeyringStore) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

func (KeyringStore) Delete(service, user string) error { return keyring.Delete(service, user) }

// Prompter は利用者にキーの入力を求めます。
type Prompter interface {
	PromptAPIKey(ctx context.Context) (string, error)
}

// PrompterFunc は関数を Prompter として使うためのアダプターです。
type PrompterFunc func(ctx context.Context) (string, error)

func (f PrompterFunc) PromptAPIKey(ctx context.Context) (string, error) { return f(ctx) }

// Options は Provider の設定です。空の項目には既定値を使います。
type Options struct {
	Service  string
	User     string
	EnvVar   string
	Store    Store
	Prompter Prompter
}

// Provider は API キーの有無の判定・入力・破棄を行います。
type Provider struct {
	store    Store
	service  string
	user     string
	envVar   string
	prompter Prompter

	mu          sync.Mutex
	cached      string
	envRejected bool
}

// NewProvider は Provider を作成します。
func NewProvider(opts Options) *Provider {
	p := &Provider{
		store:    opts.Store,
		service:  opts.Service,
		user:     opts.User,
		envVar:   opts.EnvVar,
		prompter: opts.Prompter,
	}
	if p.store == nil {
		p.store = KeyringStore{}
	}
	if p.service == "" {
		p.service = DefaultService
	}
	if p.user == "" {
		p.user = DefaultUser
	}
	if p.envVar == "" {
		p.envVar = DefaultEnvVar
	}
	return p
}

// SetPrompter は入力方法を差し替えます。TUI の起動後に設定する場合に使います。
func (p *Provider) SetPrompter(prompter Prompter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompter = prompter
}

// APIKey は現在有効なキーを返します。環境変数がキーチェーンより優先されます。
func (p *Provider) APIKey(ctx context.Context) (string, error) {
	key, _, err := p.lookup(ctx)
	return key, err
}

// Source はキーの取得元を返します。
func (p *Provider) Source(ctx context.Context) Source {
	_, src, err := p.lookup(ctx)
	if err != nil {
		return SourceNone
	}
	return src
}

func (p *Provider) lookup(ctx context.Context) (string, Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.envRejected {
		if v := strings.TrimSpace(os.Getenv(p.envVar)); v != "" {
			return v, SourceEnv, nil
		}
	}
	if p.cached != "" {
		return p.cached, SourceKeyring, nil
	}
	v, err := p.store.Get(p.service, p.user)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.WarnContext(ctx, "キーチェーンからの読み込みに失敗しました", "error", err)
		}
		return "", SourceNone, domain.ErrMissingCredential
	}
	if v = strings.TrimSpace(v); v == "" {
		return "", SourceNone, domain.ErrMissingCredential
	}
	p.cached = v
	return v, SourceKeyring, nil
}

// HasCredential はキーが利用可能かを返します。
func (p *Provider) HasCredential(ctx context.Context) bool {
	_, err := p.APIKey(ctx)
	return err == nil
}

// RequestCredential は Prompter でキーの入力を求め、キーチェーンに保存します。
func (p *Provider) RequestCredential(ctx context.Context) error {
	p.mu.Lock()
	prompter := p.prompter
	p.mu.Unlock()
	if prompter == nil {
		return fmt.Errorf("%w: set %s or run `key set`", domain.ErrMissingCredential, p.envVar)
	}
	key, err := prompter.PromptAPIKey(ctx)
	if err != nil {
		return fmt.Errorf("APIキーの入力に失敗しました: %w", err)
	}
	return p.Save(ctx, key)
}

// Save はキーをキーチェーンに保存します。
func (p *Provider) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrMissingCredential
	}
	if err := p.store.Set(p.service, p.user, key); err != nil {
		return fmt.Errorf("キーチェーンへの保存に失敗しました: %w", err)
	}
	p.mu.Lock()
	p.cached = key
	p.mu.Unlock()
	slog.InfoContext(ctx, "APIキーを保存しました", "service", p.service)
	return nil
}

// Reset は無効と判定されたキーを破棄します。
// 環境変数のキーは書き換えられないため、このプロセスでは以後使いません。
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.cached = ""
	if os.Getenv(p.envVar) != "" {
		p.envRejected = true
	}
	p.mu.Unlock()

	if err := p.store.Delete(p.service, p.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("キーチェーンからの削除に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "APIキーをリセットしました", "service", p.service)
	return nil
}
