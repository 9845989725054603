package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/shouni/gemini-canvas-kit/pkg/imgutil"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/genai"
)

// GeminiImageCore は参照画像の準備と生成リクエストの実行を担う基盤です。
type GeminiImageCore struct {
	aiClient   gemini.GenerativeModel
	reader     remoteio.InputReader
	httpClient httpkit.ClientInterface
	cache      ImageCacher
	expiration time.Duration
}

// NewGeminiImageCore は依存関係を注入して GeminiImageCore を初期化します。
func NewGeminiImageCore(aiClient gemini.GenerativeModel, reader remoteio.InputReader, httpClient httpkit.ClientInterface, cache ImageCacher, cacheTTL time.Duration) (*GeminiImageCore, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	// cache は nil を許容（キャッシュなし動作）

	return &GeminiImageCore{
		aiClient:   aiClient,
		reader:     reader,
		httpClient: httpClient,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// uploadReference は大きな参照画像を File API にアップロードし、FileData パーツを返します。
// 同じキーで一度アップロードした画像はキャッシュされた URI を再利用します。
func (c *GeminiImageCore) uploadReference(ctx context.Context, key string, data []byte) (*genai.Part, error) {
	cacheKey := cacheKeyFileAPIURI + key
	mimeType := http.DetectContentType(data)
	if c.cache != nil {
		if val, ok := c.cache.Get(cacheKey); ok {
			if uri, ok := val.(string); ok {
				return genai.NewPartFromURI(uri, mimeType), nil
			}
		}
	}

	uri, name, err := c.aiClient.UploadFile(ctx, data, mimeType, path.Base(key))
	if err != nil {
		return nil, fmt.Errorf("参照画像のアップロードに失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "参照画像を File API にアップロードしました", "name", name, "bytes", len(data))

	if c.cache != nil {
		c.cache.Set(cacheKey, uri, c.expiration)
	}
	return genai.NewPartFromURI(uri, mimeType), nil
}

// compress は参照画像を縮小した上で JPEG に再圧縮します。失敗した場合は元のデータを返します。
func compress(data []byte) []byte {
	if !UseImageCompression {
		return data
	}
	if compressed, err := imgutil.ToJPEG(data, imgutil.JPEGOptions{Quality: ImageCompressionQuality, MaxSide: ReferenceMaxSide}); err == nil {
		return compressed
	}
	return data
}
