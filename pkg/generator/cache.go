package generator

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value   any
	expires time.Time
}

// MemoryCache は有効期限つきのインメモリ ImageCacher です。
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]cacheEntry
	now   func() time.Time
}

// NewMemoryCache は空の MemoryCache を作成します。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]cacheEntry), now: time.Now}
}

// Get は期限内の値を返します。期限切れの値はその場で削除します。
func (m *MemoryCache) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.value, true
}

// Set は値を保存します。d が 0 以下の場合は期限なしです。
func (m *MemoryCache) Set(key string, value any, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if d > 0 {
		expires = m.now().Add(d)
	}
	m.items[key] = cacheEntry{value: value, expires: expires}
}
