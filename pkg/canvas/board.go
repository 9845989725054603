package canvas

import "github.com/shouni/gemini-canvas-kit/pkg/domain"

const (
	// CardWidth はカードの基準幅 (キャンバス単位) です。
	CardWidth = 300.0
	// SpawnOffsetX, SpawnOffsetY は表示中心からプレースホルダーを置く位置までのずれです。
	SpawnOffsetX = 160.0
	SpawnOffsetY = 200.0
)

// CardSize は縦横比に応じたカードの大きさを返します。
func CardSize(aspect domain.AspectRatio) (w, h float64) {
	return CardWidth, CardWidth * aspect.HeightFactor()
}

// Contains はキャンバス座標 p がエンティティのカード内にあるかを返します。
func Contains(e domain.ImageEntity, p domain.Point) bool {
	w, h := CardSize(e.AspectRatio)
	return p.X >= e.Position.X && p.X <= e.Position.X+w &&
		p.Y >= e.Position.Y && p.Y <= e.Position.Y+h
}

// Board はキャンバスの状態 (表示変換・エンティティ・ドラッグ) をまとめて所有し、
// ポインタイベントをパン・ズーム・ドラッグに振り分けます。
type Board struct {
	Viewport *Viewport
	Store    *Store
	Drag     *DragController

	panning     bool
	lastPointer domain.Point
}

// NewBoard は空のキャンバスを作成します。
func NewBoard() *Board {
	v := NewViewport()
	s := NewStore()
	return &Board{Viewport: v, Store: s, Drag: NewDragController(s, v)}
}

// HitTest はスクリーン座標の下にある最前面のエンティティを返します。
func (b *Board) HitTest(screen domain.Point) (domain.ImageEntity, bool) {
	p := b.Viewport.ScreenToCanvas(screen)
	entities := b.Store.Snapshot()
	for i := len(entities) - 1; i >= 0; i-- {
		if Contains(entities[i], p) {
			return entities[i], true
		}
	}
	return domain.ImageEntity{}, false
}

// PointerDown はカード上ならドラッグを、それ以外ならパンを開始します。
// loading のカードはドラッグできないため、背景と同じくパンになります。
func (b *Board) PointerDown(screen domain.Point) {
	if b.panning {
		return
	}
	if _, dragging := b.Drag.Active(); dragging {
		return
	}
	if e, ok := b.HitTest(screen); ok && b.Drag.Begin(e.ID, screen) {
		return
	}
	b.panning = true
	b.lastPointer = screen
}

// PointerMove は進行中のパンまたはドラッグを更新します。
func (b *Board) PointerMove(screen domain.Point) {
	switch {
	case b.panning:
		d := screen.Sub(b.lastPointer)
		b.Viewport.Pan(d.X, d.Y)
		b.lastPointer = screen
	default:
		b.Drag.Move(screen)
	}
}

// PointerUp はパンとドラッグを終了します。
func (b *Board) PointerUp() {
	b.panning = false
	b.Drag.End()
}

// PointerLeave はポインタが領域外に出た場合の処理で、PointerUp と同じです。
func (b *Board) PointerLeave() { b.PointerUp() }

// Wheel はホイール操作でズームします。上方向 (sign>0) で拡大します。
func (b *Board) Wheel(screen domain.Point, sign int) {
	b.Viewport.Zoom(screen, sign)
}

// Panning はパン中かどうかを返します。
func (b *Board) Panning() bool { return b.panning }

// SpawnPoint は幅 w・高さ h の表示領域の中心付近にあたるキャンバス座標を返します。
func (b *Board) SpawnPoint(w, h float64) domain.Point {
	center := b.Viewport.ScreenToCanvas(domain.Point{X: w / 2, Y: h / 2})
	return center.Sub(domain.Point{X: SpawnOffsetX, Y: SpawnOffsetY})
}
