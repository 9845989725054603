package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// GeminiGenerator は1枚ずつ画像を生成するジェネレーターです。
// 品質に応じてモデルを切り替え、スタイルはシステムプロンプトとして渡します。
type GeminiGenerator struct {
	imgCore     *GeminiImageCore
	models      ModelSet
	rateLimited bool
}

// Option は GeminiGenerator の追加設定です。
type Option func(*GeminiGenerator)

// WithRateLimited は API キーが厳しいレート制限下 (無料枠など) にあることを示します。
// 有効な場合、呼び出し側はバッチを1枚ずつ順番に生成します。
func WithRateLimited(limited bool) Option {
	return func(g *GeminiGenerator) { g.rateLimited = limited }
}

// NewGeminiGenerator は GeminiGenerator を初期化します。
func NewGeminiGenerator(core *GeminiImageCore, models ModelSet, opts ...Option) (*GeminiGenerator, error) {
	if core == nil {
		return nil, fmt.Errorf("core (GeminiImageCore) is required")
	}
	g := &GeminiGenerator{imgCore: core, models: models}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RateLimited はレート制限下で動作しているかを返します。
func (g *GeminiGenerator) RateLimited() bool { return g.rateLimited }

// Generate は1枚の画像を生成します。
func (g *GeminiGenerator) Generate(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	model := g.models.For(req.Quality)
	parts := []*genai.Part{genai.NewPartFromText(buildPrompt(req))}

	if req.ReferenceURL != "" {
		if imgPart := g.imgCore.prepareImagePart(ctx, req.ReferenceURL); imgPart != nil {
			parts = append(parts, imgPart)
		}
	}
	if len(req.ReferenceImage) > 0 {
		if imgPart := g.imgCore.prepareBytesPart(ctx, req.ReferenceImage); imgPart != nil {
			parts = append(parts, imgPart)
		}
	}

	slog.DebugContext(ctx, "Gemini画像生成リクエスト", "model", model, "aspect", req.AspectRatio, "parts", len(parts))

	opts := gemini.GenerateOptions{
		AspectRatio:  string(req.AspectRatio),
		SystemPrompt: stylePrompt(req.Style),
		Temperature:  genai.Ptr(req.Temperature()),
	}
	resp, err := g.imgCore.executeRequest(ctx, model, parts, opts)
	if err != nil {
		return nil, fmt.Errorf("Gemini画像生成エラー: %w", err)
	}
	return resp, nil
}

// buildPrompt はプロンプトにネガティブプロンプトを付け加えます。
func buildPrompt(req domain.ImageGenerationRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		prompt += "\n\nAvoid: " + neg
	}
	return prompt
}

func stylePrompt(style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return ""
	}
	return fmt.Sprintf("Render every image in a %s style.", style)
}
