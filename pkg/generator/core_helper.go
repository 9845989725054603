package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

func (c *GeminiImageCore) executeRequest(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*domain.ImageResponse, error) {
	resp, err := c.aiClient.GenerateWithParts(ctx, model, parts, opts)
	if err != nil {
		return nil, classifyError(err)
	}

	out, err := c.parseToResponse(resp)
	if err != nil {
		return nil, err
	}

	return &domain.ImageResponse{
		Data:     out.Data,
		MimeType: out.MimeType,
	}, nil
}

// prepareImagePart は URL の参照画像を取得してパーツに変換します。
// 取得に失敗した場合は nil を返し、呼び出し側はテキストのみで続行します。
func (c *GeminiImageCore) prepareImagePart(ctx context.Context, rawURL string) *genai.Part {
	if c.cache != nil {
		if val, ok := c.cache.Get(cacheKeyReference + rawURL); ok {
			if data, ok := val.([]byte); ok {
				return c.partFor(ctx, rawURL, data)
			}
		}
	}

	data, err := c.fetchImageData(ctx, rawURL)
	if err != nil {
		slog.WarnContext(ctx, "参照画像の取得に失敗しました。テキストのみで続行します", "url", rawURL, "error", err)
		return nil
	}
	finalData := compress(data)
	if c.cache != nil {
		c.cache.Set(cacheKeyReference+rawURL, finalData, c.expiration)
	}
	return c.partFor(ctx, rawURL, finalData)
}

// prepareBytesPart はキャンバス上の画像など、手元にある参照画像をパーツに変換します。
func (c *GeminiImageCore) prepareBytesPart(ctx context.Context, data []byte) *genai.Part {
	if len(data) == 0 {
		return nil
	}
	sum := sha256.Sum256(data)
	return c.partFor(ctx, "canvas-"+hex.EncodeToString(sum[:8])+".jpg", compress(data))
}

func (c *GeminiImageCore) partFor(ctx context.Context, key string, data []byte) *genai.Part {
	if len(data) <= InlineDataLimit {
		return c.toPart(data)
	}
	part, err := c.uploadReference(ctx, key, data)
	if err != nil {
		slog.WarnContext(ctx, "参照画像を利用できません。テキストのみで続行します", "key", key, "error", err)
		return nil
	}
	return part
}

func (c *GeminiImageCore) fetchImageData(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateReferenceURL(ctx, rawURL); err != nil {
		return nil, err
	}

	if strings.HasPrefix(rawURL, "gs://") {
		rc, err := c.reader.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return c.httpClient.FetchBytes(ctx, rawURL)
}

func (c *GeminiImageCore) toPart(data []byte) *genai.Part {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

var errInvalidResponse = errors.New("invalid response")

func (c *GeminiImageCore) parseToResponse(resp *gemini.Response) (*ImageOutput, error) {
	if resp == nil || resp.RawResponse == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, errInvalidResponse)
	}
	raw := resp.RawResponse
	if raw.PromptFeedback != nil && raw.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", domain.ErrBlocked, raw.PromptFeedback.BlockReason)
	}
	if len(raw.Candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, errInvalidResponse)
	}
	candidate := raw.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &ImageOutput{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
		}
	}
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonImageSafety, genai.FinishReasonBlocklist:
		return nil, fmt.Errorf("%w: %s", domain.ErrBlocked, candidate.FinishReason)
	}
	return nil, fmt.Errorf("%w: no image data", domain.ErrNoImagesProduced)
}
