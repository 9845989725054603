package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
)

const titlePromptTemplate = `Create a single, concise, and artistic title (maximum 4 words) for an image generated from the following prompt. Do not provide suggestions, alternatives, or quotation marks. Just the title. Prompt: "%s"`

// TitleGenerator はテキストモデルで作品タイトルを生成します。
type TitleGenerator struct {
	aiClient gemini.GenerativeModel
	model    string
}

// NewTitleGenerator は TitleGenerator を初期化します。model が空の場合は DefaultTitleModel を使います。
func NewTitleGenerator(aiClient gemini.GenerativeModel, model string) (*TitleGenerator, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if model == "" {
		model = DefaultTitleModel
	}
	return &TitleGenerator{aiClient: aiClient, model: model}, nil
}

// GenerateTitle はプロンプトからタイトルを生成します。
// 空の応答はエラーとして扱い、既定のタイトルへの置き換えは呼び出し側に任せます。
func (t *TitleGenerator) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	resp, err := t.aiClient.GenerateContent(ctx, t.model, fmt.Sprintf(titlePromptTemplate, prompt))
	if err != nil {
		return "", fmt.Errorf("タイトル生成エラー: %w", classifyError(err))
	}
	if resp == nil || resp.RawResponse == nil {
		return "", fmt.Errorf("タイトル生成エラー: %w", errInvalidResponse)
	}
	title := cleanTitle(resp.RawResponse.Text())
	if title == "" {
		return "", fmt.Errorf("タイトル生成エラー: empty title")
	}
	return title, nil
}

// cleanTitle は最初の行だけを取り出し、引用符を取り除きます。
func cleanTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.NewReplacer(`"`, "", "“", "", "”", "", "「", "", "」", "").Replace(raw)
	return strings.Trim(strings.TrimSpace(raw), "'*")
}
