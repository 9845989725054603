package generator

import (
	"context"
	"time"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

// ImageGenerator はキャンバス側が利用する画像生成の窓口です。
type ImageGenerator interface {
	Generate(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

// TitleProvider はプロンプトから作品タイトルを作ります。
type TitleProvider interface {
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// ImageCacher は、参照画像をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}
