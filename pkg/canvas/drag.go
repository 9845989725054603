package canvas

import "github.com/shouni/gemini-canvas-kit/pkg/domain"

// DragSession は1件のドラッグ操作の開始時点の情報です。
type DragSession struct {
	EntityID     string
	EntityStart  domain.Point
	PointerStart domain.Point
}

// DragController はエンティティの手動移動を管理します (Idle → Dragging → Idle)。
// UI のイベントループから呼ばれることを前提にしており、ゴルーチン安全ではありません。
type DragController struct {
	store    *Store
	viewport *Viewport
	session  *DragSession
}

// NewDragController は DragController を作成します。
func NewDragController(store *Store, viewport *Viewport) *DragController {
	return &DragController{store: store, viewport: viewport}
}

// Begin はドラッグを開始します。
// 既にドラッグ中の場合、エンティティが存在しない場合、loading の場合は開始せず false を返します。
func (d *DragController) Begin(entityID string, pointer domain.Point) bool {
	if d.session != nil {
		return false
	}
	e, ok := d.store.Get(entityID)
	if !ok || e.IsLoading() {
		return false
	}
	d.session = &DragSession{
		EntityID:     entityID,
		EntityStart:  e.Position,
		PointerStart: pointer,
	}
	return true
}

// Move はポインタ移動量をズーム倍率で割ってキャンバス空間の移動量に変換し、位置を更新します。
// ドラッグ中でなければ false を返します。
func (d *DragController) Move(pointer domain.Point) bool {
	if d.session == nil {
		return false
	}
	delta := pointer.Sub(d.session.PointerStart).Scale(1 / d.viewport.Scale)
	next := d.session.EntityStart.Add(delta)
	return d.store.UpdatePosition(d.session.EntityID, next.X, next.Y)
}

// End はドラッグを終了します。最後に計算した位置がそのまま残ります。
func (d *DragController) End() {
	d.session = nil
}

// Active は進行中のドラッグを返します。
func (d *DragController) Active() (DragSession, bool) {
	if d.session == nil {
		return DragSession{}, false
	}
	return *d.session, true
}
