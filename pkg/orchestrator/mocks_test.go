package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/notify"
)

// mockImageService は関数フィールドで振る舞いを差し替えられる ImageService です。
type mockImageService struct {
	GenerateFunc func(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
	limited      bool
	calls        atomic.Int32
}

func (m *mockImageService) Generate(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &domain.ImageResponse{Data: []byte("png"), MimeType: "image/png"}, nil
}

func (m *mockImageService) RateLimited() bool { return m.limited }

type mockTitleService struct {
	GenerateTitleFunc func(ctx context.Context, prompt string) (string, error)
	calls             atomic.Int32
}

func (m *mockTitleService) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	m.calls.Add(1)
	if m.GenerateTitleFunc != nil {
		return m.GenerateTitleFunc(ctx, prompt)
	}
	return "Crimson Cube", nil
}

type mockCredentials struct {
	has          atomic.Bool
	RequestFunc  func(ctx context.Context) error
	resetCalls   atomic.Int32
	requestCalls atomic.Int32
}

func (m *mockCredentials) HasCredential(context.Context) bool { return m.has.Load() }

func (m *mockCredentials) RequestCredential(ctx context.Context) error {
	m.requestCalls.Add(1)
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx)
	}
	return nil
}

func (m *mockCredentials) Reset(context.Context) error {
	m.resetCalls.Add(1)
	m.has.Store(false)
	return nil
}

type sent struct {
	level   notify.Level
	message string
}

// recordingNotifier は送られた通知を記録します。
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Success(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{notify.LevelSuccess, message})
}

func (r *recordingNotifier) Error(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{notify.LevelError, message})
}

func (r *recordingNotifier) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sent, len(r.sent))
	copy(out, r.sent)
	return out
}
