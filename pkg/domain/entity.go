package domain

import "fmt"

// Point はキャンバス空間またはスクリーン空間の座標です。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add は p に q を加算した座標を返します。
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub は p から q を減算した座標を返します。
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale は各成分に f を掛けた座標を返します。
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// ImageData は生成済み画像のバイナリです。
type ImageData struct {
	Bytes    []byte
	MimeType string
}

// Status はエンティティの状態です。
type Status string

const (
	StatusLoading  Status = "loading"
	StatusComplete Status = "complete"
)

// ImageEntity はキャンバス上に並ぶ1枚の画像カードです。
// image が nil の間はプレースホルダー (loading) であり、値が入った時点で complete になります。
// image は NewPlaceholder と Patch 経由でしか設定できないため、
// 「データが空でないこと ⇔ complete」が常に成り立ちます。
type ImageEntity struct {
	ID          string
	Position    Point
	Title       string
	Prompt      string
	AspectRatio AspectRatio
	image       *ImageData
}

// NewPlaceholder は生成待ちのエンティティを作成します。
func NewPlaceholder(id, title, prompt string, aspect AspectRatio, pos Point) ImageEntity {
	return ImageEntity{
		ID:          id,
		Position:    pos,
		Title:       title,
		Prompt:      prompt,
		AspectRatio: aspect,
	}
}

// NewCompleteEntity は保存済みセッションの復元など、最初から画像を持つエンティティを作成します。
func NewCompleteEntity(id, title, prompt string, aspect AspectRatio, pos Point, img ImageData) (ImageEntity, error) {
	if len(img.Bytes) == 0 {
		return ImageEntity{}, fmt.Errorf("entity %s: %w", id, ErrEmptyImage)
	}
	e := NewPlaceholder(id, title, prompt, aspect, pos)
	e.image = &img
	return e, nil
}

// Status はエンティティの状態を返します。
func (e ImageEntity) Status() Status {
	if e.image == nil {
		return StatusLoading
	}
	return StatusComplete
}

// IsLoading はプレースホルダーかどうかを返します。
func (e ImageEntity) IsLoading() bool { return e.image == nil }

// Image は画像データを返します。loading の間は ok=false です。
func (e ImageEntity) Image() (ImageData, bool) {
	if e.image == nil {
		return ImageData{}, false
	}
	return *e.image, true
}

// Patch はエンティティへの部分更新です。コンストラクタ経由でのみ作成できます。
type Patch struct {
	position *Point
	title    *string
	image    *ImageData
}

// MoveTo は位置だけを更新するパッチです。
func MoveTo(p Point) Patch { return Patch{position: &p} }

// Retitle はタイトルだけを更新するパッチです。
func Retitle(title string) Patch { return Patch{title: &title} }

// Resolve はプレースホルダーを complete にするパッチです。空の画像は受け付けません。
func Resolve(img ImageData, title string) (Patch, error) {
	if len(img.Bytes) == 0 {
		return Patch{}, ErrEmptyImage
	}
	return Patch{image: &img, title: &title}, nil
}

// Apply はパッチを適用した新しい値を返します。元の値は変更しません。
func (p Patch) Apply(e ImageEntity) ImageEntity {
	if p.position != nil {
		e.Position = *p.position
	}
	if p.title != nil {
		e.Title = *p.title
	}
	if p.image != nil {
		img := *p.image
		e.image = &img
	}
	return e
}
