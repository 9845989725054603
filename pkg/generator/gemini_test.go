package generator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewGeminiImageCore(t *testing.T) {
	_, err := NewGeminiImageCore(nil, &mockReader{}, &mockHTTPClient{}, nil, 0)
	assert.EqualError(t, err, "aiClient is required")
	_, err = NewGeminiImageCore(&mockAIClient{}, nil, &mockHTTPClient{}, nil, 0)
	assert.EqualError(t, err, "reader is required")
	_, err = NewGeminiImageCore(&mockAIClient{}, &mockReader{}, nil, nil, 0)
	assert.EqualError(t, err, "httpClient is required")
}

func TestGeminiGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("品質に応じたモデルと設定でリクエストする", func(t *testing.T) {
		ai := &mockAIClient{}
		g, err := NewGeminiGenerator(newTestCore(t, ai, &mockHTTPClient{}, &mockReader{}), DefaultModels)
		require.NoError(t, err)

		resp, err := g.Generate(ctx, domain.ImageGenerationRequest{
			Prompt:         " neon city ",
			NegativePrompt: "text, watermark",
			Style:          "Cinematic",
			AspectRatio:    domain.AspectWide,
			Quality:        domain.QualityHD,
			Creativity:     40,
		})

		require.NoError(t, err)
		assert.Equal(t, []byte("fake"), resp.Data)
		assert.Equal(t, "image/png", resp.MimeType)
		assert.Equal(t, DefaultModels.HD, ai.lastModel)
		assert.Equal(t, "16:9", ai.lastOpts.AspectRatio)
		assert.Contains(t, ai.lastOpts.SystemPrompt, "Cinematic")
		require.NotNil(t, ai.lastOpts.Temperature)
		assert.InDelta(t, 0.4, *ai.lastOpts.Temperature, 1e-6)
		require.Len(t, ai.lastParts, 1)
		assert.Equal(t, "neon city\n\nAvoid: text, watermark", ai.lastParts[0].Text)
	})

	t.Run("参照画像はインラインのパーツとして追加される", func(t *testing.T) {
		ai := &mockAIClient{}
		g, _ := NewGeminiGenerator(newTestCore(t, ai, &mockHTTPClient{}, &mockReader{data: samplePNG(t)}), DefaultModels)

		_, err := g.Generate(ctx, domain.ImageGenerationRequest{
			Prompt:         "variation",
			ReferenceURL:   "gs://bucket/ref.png",
			ReferenceImage: samplePNG(t),
		})

		require.NoError(t, err)
		require.Len(t, ai.lastParts, 3)
		for _, p := range ai.lastParts[1:] {
			require.NotNil(t, p.InlineData)
			assert.Equal(t, "image/jpeg", p.InlineData.MIMEType)
		}
	})

	t.Run("レート制限のエラーはドメインのエラーに変換される", func(t *testing.T) {
		ai := &mockAIClient{GenerateWithPartsFunc: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			return nil, genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
		}}
		g, _ := NewGeminiGenerator(newTestCore(t, ai, &mockHTTPClient{}, &mockReader{}), DefaultModels, WithRateLimited(true))

		_, err := g.Generate(ctx, domain.ImageGenerationRequest{Prompt: "x"})

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.True(t, g.RateLimited())
		var apiErr genai.APIError
		assert.True(t, errors.As(err, &apiErr), "元のAPIエラーも取り出せるのだ")
	})

	t.Run("安全フィルターで止められた場合は ErrBlocked", func(t *testing.T) {
		ai := &mockAIClient{GenerateWithPartsFunc: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			return &gemini.Response{RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonImageSafety}},
			}}, nil
		}}
		g, _ := NewGeminiGenerator(newTestCore(t, ai, &mockHTTPClient{}, &mockReader{}), DefaultModels)

		_, err := g.Generate(ctx, domain.ImageGenerationRequest{Prompt: "x"})
		assert.ErrorIs(t, err, domain.ErrBlocked)
	})
}

func TestModelSet_For(t *testing.T) {
	m := ModelSet{Standard: "std", HD: "hd"}
	assert.Equal(t, "std", m.For(domain.QualityStandard))
	assert.Equal(t, "hd", m.For(domain.QualityHD))
	assert.Equal(t, "std", m.For(domain.Quality4K), "未設定の品質は Standard に戻るのだ")
	assert.Equal(t, DefaultModels.Standard, ModelSet{}.For(domain.QualityHD))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"429", genai.APIError{Code: 429}, domain.ErrRateLimited},
		{"RESOURCE_EXHAUSTED", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, domain.ErrRateLimited},
		{"403", genai.APIError{Code: 403}, domain.ErrAuthentication},
		{"無効なキー", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, domain.ErrAuthentication},
		{"500", genai.APIError{Code: 500}, domain.ErrGenerationFailed},
		{"ラップされた文字列の429", errors.New("upstream: Error 429, quota"), domain.ErrRateLimited},
		{"空の応答", fmt.Errorf("call: %w", &gemini.APIResponseError{}), domain.ErrNoImagesProduced},
		{"その他", errors.New("connection reset"), domain.ErrGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.err.Error(), "元のメッセージを保持するのだ")
		})
	}
	assert.NoError(t, classifyError(nil))
}
