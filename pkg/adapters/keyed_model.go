// Package adapters は外部サービス (Gemini API・HTTP・Cloud Storage) の具体的な実装を提供します。
package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// KeySource は呼び出しのたびに現在の API キーを返します。
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// ModelFactory は API キーと温度からモデルを作成します。temperature が nil の場合は既定値です。
type ModelFactory func(ctx context.Context, apiKey string, temperature *float32) (gemini.GenerativeModel, error)

// NewGeminiModel は go-gemini-client のクライアントを作成します。
func NewGeminiModel(ctx context.Context, apiKey string, temperature *float32) (gemini.GenerativeModel, error) {
	return gemini.NewClient(ctx, gemini.Config{APIKey: apiKey, Temperature: temperature})
}

// KeyedModel は呼び出しごとに KeySource からキーを取り直す gemini.GenerativeModel です。
// キーが変わるとクライアントを作り直すため、キーの再入力や破棄が再起動なしで反映されます。
// gemini.Client の温度は作成時に固定されるため、GenerateOptions.Temperature ごとにクライアントを持ちます。
type KeyedModel struct {
	keys    KeySource
	factory ModelFactory
	timeout time.Duration

	mu     sync.Mutex
	key    string
	models map[float32]gemini.GenerativeModel
}

var _ gemini.GenerativeModel = (*KeyedModel)(nil)

// defaultTemperature は温度の指定がない呼び出しに使うキャッシュのキーです。
const defaultTemperature float32 = -1

// NewKeyedModel は KeyedModel を作成します。timeout が正の場合は各リクエストに適用します。
func NewKeyedModel(keys KeySource, timeout time.Duration) *KeyedModel {
	return &KeyedModel{
		keys:    keys,
		timeout: timeout,
		factory: NewGeminiModel,
	}
}

func (k *KeyedModel) current(ctx context.Context, temperature *float32) (gemini.GenerativeModel, error) {
	key, err := k.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	slot := defaultTemperature
	if temperature != nil {
		slot = *temperature
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key != key || k.models == nil {
		k.key, k.models = key, map[float32]gemini.GenerativeModel{}
	}
	if m, ok := k.models[slot]; ok {
		return m, nil
	}
	m, err := k.factory(ctx, key, temperature)
	if err != nil {
		return nil, err
	}
	k.models[slot] = m
	return m, nil
}

func (k *KeyedModel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if k.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, k.timeout)
}

func (k *KeyedModel) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	m, err := k.current(ctx, nil)
	if err != nil {
		return "", "", err
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	return m.UploadFile(ctx, data, mimeType, displayName)
}

func (k *KeyedModel) DeleteFile(ctx context.Context, name string) error {
	m, err := k.current(ctx, nil)
	if err != nil {
		return err
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	return m.DeleteFile(ctx, name)
}

func (k *KeyedModel) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	m, err := k.current(ctx, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	return m.GenerateContent(ctx, model, prompt)
}

func (k *KeyedModel) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m, err := k.current(ctx, opts.Temperature)
	if err != nil {
		return nil, err
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	return m.GenerateWithParts(ctx, model, parts, opts)
}
