package canvas

import (
	"fmt"
	"sync"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

// Store は描画順を保ったエンティティの集合です。
// エンティティは値として丸ごと置き換えられ、フィールド単位で書き換えられることはありません。
// 描画順のスライスは追加・削除のたびに新しく作り直されるため、
// Snapshot で得た一覧が後の変更で書き換わることはありません。
type Store struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]domain.ImageEntity
	version uint64
}

// NewStore は空の Store を作成します。
func NewStore() *Store {
	return &Store{byID: make(map[string]domain.ImageEntity)}
}

// Append はエンティティを末尾に追加します。
// ID が重複している場合は何も追加せずにエラーを返します。
func (s *Store) Append(entities ...domain.ImageEntity) error {
	if len(entities) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, ok := s.byID[e.ID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, e.ID)
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
	}

	order := make([]string, len(s.order), len(s.order)+len(entities))
	copy(order, s.order)
	for _, e := range entities {
		order = append(order, e.ID)
		s.byID[e.ID] = e
	}
	s.order = order
	s.version++
	return nil
}

// PatchByID は該当エンティティにパッチを適用します。
// ID が存在しない場合 (クリア済みなど) は何もせず false を返します。
func (s *Store) PatchByID(id string, p domain.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	s.byID[id] = p.Apply(e)
	s.version++
	return true
}

// UpdatePosition は位置だけを更新します。ドラッグ中に毎フレーム呼ばれるため O(1) です。
func (s *Store) UpdatePosition(id string, x, y float64) bool {
	return s.PatchByID(id, domain.MoveTo(domain.Point{X: x, Y: y}))
}

// RemoveByIDs は指定IDのエンティティを取り除き、実際に削除した件数を返します。
func (s *Store) RemoveByIDs(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	order := make([]string, 0, len(s.order)-len(drop))
	for _, id := range s.order {
		if _, ok := drop[id]; ok {
			delete(s.byID, id)
			continue
		}
		order = append(order, id)
	}
	s.order = order
	s.version++
	return len(drop)
}

// Clear は全エンティティを削除し、削除したIDを返します。
func (s *Store) Clear() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.order
	s.order = nil
	s.byID = make(map[string]domain.ImageEntity)
	s.version++
	return removed
}

// Replace は全エンティティを入れ替えます。セッションの読み込みに使います。
func (s *Store) Replace(entities []domain.ImageEntity) error {
	byID := make(map[string]domain.ImageEntity, len(entities))
	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, ok := byID[e.ID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, e.ID)
		}
		byID[e.ID] = e
		order = append(order, e.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = order
	s.byID = byID
	s.version++
	return nil
}

// Get はIDでエンティティを取得します。
func (s *Store) Get(id string) (domain.ImageEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Len はエンティティ数を返します。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version は変更のたびに増える番号です。描画側の再描画判定に使います。
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot は描画順に並んだエンティティの一貫したコピーを返します。
func (s *Store) Snapshot() []domain.ImageEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ImageEntity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// CountLoading は loading 状態のエンティティ数を返します。
func (s *Store) CountLoading() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.byID {
		if e.IsLoading() {
			n++
		}
	}
	return n
}
