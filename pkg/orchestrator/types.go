package orchestrator

import (
	"context"
	"time"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

// Policy はバッチ内の一部が失敗した場合の扱いです。
type Policy string

const (
	// PolicyBestEffort は成功した枠だけを残し、失敗した枠を取り除きます。
	PolicyBestEffort Policy = "best_effort"
	// PolicyAllOrNothing は1枠でも失敗したらバッチ全体を取り除きます。
	PolicyAllOrNothing Policy = "all_or_nothing"
)

// Mode は生成サービスの呼び出し方です。
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeSequential Mode = "sequential"
)

// Config はオーケストレーターの設定です。
type Config struct {
	MaxCount          int
	Policy            Policy
	Mode              Mode
	RequestsPerMinute int
	PlaceholderTitle  string
	DefaultTitle      string
	CascadeOffset     float64
}

// DefaultConfig は既定の設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxCount:         4,
		Policy:           PolicyBestEffort,
		Mode:             ModeConcurrent,
		PlaceholderTitle: "Generating...",
		DefaultTitle:     "Untitled Artwork",
		CascadeOffset:    40,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxCount <= 0 {
		c.MaxCount = def.MaxCount
	}
	if c.Policy != PolicyAllOrNothing {
		c.Policy = PolicyBestEffort
	}
	if c.Mode != ModeSequential {
		c.Mode = ModeConcurrent
	}
	if c.PlaceholderTitle == "" {
		c.PlaceholderTitle = def.PlaceholderTitle
	}
	if c.DefaultTitle == "" {
		c.DefaultTitle = def.DefaultTitle
	}
	if c.CascadeOffset == 0 {
		c.CascadeOffset = def.CascadeOffset
	}
	return c
}

// ImageService は1枚の画像を生成するサービスです。
type ImageService interface {
	Generate(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

// RateLimited はレート制限を持つサービスが実装します。
// true を返す場合、バッチは1枚ずつ順番に生成されます。
type RateLimited interface {
	RateLimited() bool
}

// TitleService はプロンプトから作品タイトルを生成するサービスです。
type TitleService interface {
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// CredentialProvider は認証情報の有無を判定し、入力を求め、無効になった情報を破棄します。
type CredentialProvider interface {
	HasCredential(ctx context.Context) bool
	RequestCredential(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Request は1回の生成操作の入力です。
type Request struct {
	Prompt         string
	Count          int
	Settings       domain.Settings
	Spawn          domain.Point
	ReferenceURL   string
	ReferenceImage []byte
}

// Result はバッチの最終結果です。
type Result struct {
	// IDs はプレースホルダー作成時に割り当てたIDです (枠番号順)。
	IDs []string
	// Completed は complete になったエンティティのIDです。
	Completed []string
	Title     string
	Elapsed   time.Duration
}
