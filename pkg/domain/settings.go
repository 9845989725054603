package domain

import "strings"

// Settings はツールバーで選ぶ生成設定です。
type Settings struct {
	Style          string      `json:"style" yaml:"style"`
	AspectRatio    AspectRatio `json:"aspect_ratio" yaml:"aspect_ratio"`
	Creativity     int         `json:"creativity" yaml:"creativity"`
	NegativePrompt string      `json:"negative_prompt" yaml:"negative_prompt"`
	NumImages      int         `json:"num_images" yaml:"num_images"`
	Quality        QualityTier `json:"quality" yaml:"quality"`
}

// DefaultSettings は初期設定を返します。
func DefaultSettings() Settings {
	return Settings{
		Style:       "Cinematic",
		AspectRatio: AspectSquare,
		Creativity:  75,
		NumImages:   1,
		Quality:     QualityStandard,
	}
}

// Normalize は不正な値を既定値に戻した設定を返します。
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if !s.AspectRatio.Valid() {
		s.AspectRatio = def.AspectRatio
	}
	if !s.Quality.Valid() {
		s.Quality = def.Quality
	}
	if s.Creativity < 0 {
		s.Creativity = 0
	}
	if s.Creativity > 100 {
		s.Creativity = 100
	}
	if s.NumImages < 1 {
		s.NumImages = def.NumImages
	}
	s.Style = strings.TrimSpace(s.Style)
	s.NegativePrompt = strings.TrimSpace(s.NegativePrompt)
	return s
}

// GenerationState はUIに表示する生成状態です。
type GenerationState string

const (
	StateIdle       GenerationState = "IDLE"
	StateGenerating GenerationState = "GENERATING"
	StateComplete   GenerationState = "COMPLETE"
	StateError      GenerationState = "ERROR"
)
