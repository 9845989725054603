package generator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// classifyError は API のエラーをドメインのエラーに対応づけます。
// 元のエラーは %w で保持されるため、呼び出し側で詳細を取り出せます。
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	// ブロックや空の応答はクライアント側で APIResponseError として返される
	var respErr *gemini.APIResponseError
	if errors.As(err, &respErr) {
		if strings.Contains(respErr.Error(), "ブロック") {
			return fmt.Errorf("%w: %w", domain.ErrBlocked, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrNoImagesProduced, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden,
			apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED",
			isInvalidKeyMessage(apiErr.Message):
			return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	// ラップ済みで型情報が失われている場合はメッセージで判定する
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	case isInvalidKeyMessage(msg) || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
}

func isInvalidKeyMessage(msg string) bool {
	return strings.Contains(msg, "API key not valid") || strings.Contains(msg, "API_KEY_INVALID")
}
