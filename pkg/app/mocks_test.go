package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

type mockImages struct {
	GenerateFunc func(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)

	mu   sync.Mutex
	reqs []domain.ImageGenerationRequest
}

func (m *mockImages) Generate(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, req)
}

func (m *mockImages) requests() []domain.ImageGenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ImageGenerationRequest(nil), m.reqs...)
}

type mockTitles struct {
	title string
	err   error
}

func (m *mockTitles) GenerateTitle(context.Context, string) (string, error) { return m.title, m.err }

// memSessions はメモリ上の SessionStore です。
type memSessions struct {
	mu   sync.Mutex
	data map[string]domain.Session
}

func newMemSessions() *memSessions { return &memSessions{data: map[string]domain.Session{}} }

func (m *memSessions) Save(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ID] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) List(context.Context) ([]domain.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SessionSummary
	for _, s := range m.data {
		out = append(out, domain.SessionSummary{ID: s.ID, Title: s.Title, ImageCount: len(s.Images)})
	}
	return out, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(m.data, id)
	return nil
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func okImages(t *testing.T) *mockImages {
	data := tinyPNG(t)
	return &mockImages{GenerateFunc: func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return &domain.ImageResponse{Data: data, MimeType: "image/png"}, nil
	}}
}
