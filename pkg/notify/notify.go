// Package notify はユーザー向けの一時的な通知 (成功・エラー) を扱います。
// 通知は一定時間で自動的に消え、購読者には追加と消去の両方が届きます。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL は通知が自動的に消えるまでの時間です。
const DefaultTTL = 6 * time.Second

// Level は通知の種類です。
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification は1件の通知です。
type Notification struct {
	ID        string
	Level     Level
	Message   string
	CreatedAt time.Time
}

// Event は購読者に届く変更です。Dismissed が true の場合は通知が消えたことを表します。
type Event struct {
	Notification Notification
	Dismissed    bool
}

// Notifier は通知の送信口です。生成処理など通知を出す側はこれだけに依存します。
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// Channel は自動消去つきの通知チャンネルです。
type Channel struct {
	ttl time.Duration

	mu     sync.Mutex
	active []Notification
	timers map[string]*time.Timer
	subs   map[int]func(Event)
	nextID int
	closed bool
}

// NewChannel は Channel を作成します。ttl が 0 以下の場合は DefaultTTL を使います。
func NewChannel(ttl time.Duration) *Channel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Channel{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]func(Event)),
	}
}

// Success は成功通知を出します。
func (c *Channel) Success(ctx context.Context, message string) {
	c.push(ctx, LevelSuccess, message)
}

// Error はエラー通知を出します。
func (c *Channel) Error(ctx context.Context, message string) {
	c.push(ctx, LevelError, message)
}

func (c *Channel) push(ctx context.Context, level Level, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		slog.DebugContext(ctx, "閉じた通知チャネルへの通知を破棄しました", "level", level, "message", message)
		return
	}
	c.active = append(c.active, n)
	c.timers[n.ID] = time.AfterFunc(c.ttl, func() { c.Dismiss(n.ID) })
	subs := c.subscribersLocked()
	c.mu.Unlock()

	slog.DebugContext(ctx, "通知を送信しました", "level", level, "message", message)
	for _, fn := range subs {
		fn(Event{Notification: n})
	}
}

// Dismiss は通知を消します。既に消えている場合は何もしません。
func (c *Channel) Dismiss(id string) {
	c.mu.Lock()
	idx := -1
	for i, n := range c.active {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	n := c.active[idx]
	active := make([]Notification, 0, len(c.active)-1)
	active = append(active, c.active[:idx]...)
	c.active = append(active, c.active[idx+1:]...)
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Notification: n, Dismissed: true})
	}
}

// Active は表示中の通知を古い順に返します。
func (c *Channel) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.active))
	copy(out, c.active)
	return out
}

// Subscribe は変更の購読を登録し、解除用の関数を返します。
// fn はロックの外から呼ばれますが、タイマーのゴルーチンから呼ばれることがあります。
func (c *Channel) Subscribe(fn func(Event)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close は保留中の自動消去タイマーをすべて止めます。以後の通知は破棄されます。
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Channel) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}
