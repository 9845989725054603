// Package canvas は無限キャンバスの表示変換・エンティティ管理・ドラッグ操作を提供します。
package canvas

import "github.com/shouni/gemini-canvas-kit/pkg/domain"

const (
	MinScale   = 0.1
	MaxScale   = 5.0
	ZoomFactor = 1.1
)

// Viewport はパン量 (Origin) とズーム倍率 (Scale) を保持します。
// スクリーン座標 s とキャンバス座標 c の関係は s = c*Scale + Origin です。
type Viewport struct {
	Scale  float64
	Origin domain.Point
}

// NewViewport は等倍・原点の Viewport を返します。
func NewViewport() *Viewport {
	return &Viewport{Scale: 1}
}

// Pan はスクリーン上の移動量をそのまま Origin に加えます。ズーム倍率には依存しません。
func (v *Viewport) Pan(dx, dy float64) {
	v.Origin.X += dx
	v.Origin.Y += dy
}

// Zoom はポインタ位置を固定点として拡大 (sign>0) または縮小 (sign<0) します。
// 倍率は [MinScale, MaxScale] に丸められ、sign==0 の場合は何もしません。
func (v *Viewport) Zoom(pointer domain.Point, sign int) {
	if sign == 0 {
		return
	}
	newScale := v.Scale / ZoomFactor
	if sign > 0 {
		newScale = v.Scale * ZoomFactor
	}
	newScale = clampScale(newScale)
	if newScale == v.Scale {
		return
	}
	ratio := newScale / v.Scale
	v.Origin = pointer.Sub(pointer.Sub(v.Origin).Scale(ratio))
	v.Scale = newScale
}

// ScreenToCanvas はスクリーン座標をキャンバス座標へ変換します。
func (v *Viewport) ScreenToCanvas(p domain.Point) domain.Point {
	return p.Sub(v.Origin).Scale(1 / v.Scale)
}

// CanvasToScreen はキャンバス座標をスクリーン座標へ変換します。
func (v *Viewport) CanvasToScreen(p domain.Point) domain.Point {
	return p.Scale(v.Scale).Add(v.Origin)
}

// Reset は等倍・原点に戻します。
func (v *Viewport) Reset() {
	v.Scale = 1
	v.Origin = domain.Point{}
}

func clampScale(s float64) float64 {
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}
