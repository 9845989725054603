package generator

import "github.com/shouni/gemini-canvas-kit/pkg/domain"

const (
	UseImageCompression     = true
	ImageCompressionQuality = 75
	// ReferenceMaxSide は送信前の参照画像の長辺の上限です。
	ReferenceMaxSide = 2048
	// InlineDataLimit を超える参照画像は File API にアップロードして参照します。
	InlineDataLimit = 4 << 20

	cacheKeyReference  = "reference:"
	cacheKeyFileAPIURI = "fileapi_uri:"
)

// ImageOutput は Core の内部解析結果
type ImageOutput struct {
	Data     []byte
	MimeType string
}

// ModelSet は品質ごとに利用するモデル名です。
type ModelSet struct {
	Standard string `yaml:"standard"`
	HD       string `yaml:"hd"`
	UltraHD  string `yaml:"ultra_hd"`
}

// DefaultModels は既定のモデル構成です。
var DefaultModels = ModelSet{
	Standard: "gemini-2.5-flash-image",
	HD:       "gemini-3-pro-image-preview",
	UltraHD:  "gemini-3-pro-image-preview",
}

// DefaultTitleModel はタイトル生成に使うテキストモデルです。
const DefaultTitleModel = "gemini-2.5-flash"

// For は品質に対応するモデル名を返します。未設定の場合は Standard にフォールバックします。
func (m ModelSet) For(q domain.QualityTier) string {
	var model string
	switch q {
	case domain.QualityHD:
		model = m.HD
	case domain.Quality4K:
		model = m.UltraHD
	}
	if model == "" {
		model = m.Standard
	}
	if model == "" {
		model = DefaultModels.Standard
	}
	return model
}
