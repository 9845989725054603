package domain

// AspectRatio は生成する画像の縦横比です。生成時に決まり、以後は変更されません。
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
	AspectLandscape AspectRatio = "4:3"
	AspectPortrait  AspectRatio = "3:4"
)

// AspectRatios は選択可能な縦横比の一覧です。
var AspectRatios = []AspectRatio{AspectSquare, AspectWide, AspectTall, AspectLandscape, AspectPortrait}

// Valid は列挙された縦横比かどうかを返します。
func (a AspectRatio) Valid() bool {
	for _, v := range AspectRatios {
		if a == v {
			return true
		}
	}
	return false
}

// HeightFactor は幅に対する高さの比率を返します。未知の値は正方形として扱います。
func (a AspectRatio) HeightFactor() float64 {
	switch a {
	case AspectWide:
		return 9.0 / 16.0
	case AspectTall:
		return 16.0 / 9.0
	case AspectLandscape:
		return 3.0 / 4.0
	case AspectPortrait:
		return 4.0 / 3.0
	default:
		return 1
	}
}

// QualityTier は生成品質です。品質ごとに利用するモデルが切り替わります。
type QualityTier string

const (
	QualityStandard QualityTier = "Standard"
	QualityHD       QualityTier = "HD"
	Quality4K       QualityTier = "4K"
)

// Valid は列挙された品質かどうかを返します。
func (q QualityTier) Valid() bool {
	return q == QualityStandard || q == QualityHD || q == Quality4K
}

// ImageGenerationRequest は単一の画像生成要求です。
type ImageGenerationRequest struct {
	Prompt         string
	NegativePrompt string
	Style          string
	AspectRatio    AspectRatio
	Quality        QualityTier
	// Creativity は 0 から 100 の値で、生成時の温度に対応します。
	Creativity int
	// ReferenceURL は http(s):// または gs:// の参照画像です。
	ReferenceURL string
	// ReferenceImage はキャンバス上の既存画像をそのまま参照に使う場合のバイナリです。
	ReferenceImage []byte
}

// Temperature は Creativity を 0.0 から 1.0 の温度に変換します。
func (r ImageGenerationRequest) Temperature() float32 {
	c := min(max(r.Creativity, 0), 100)
	return float32(c) / 100
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
}
