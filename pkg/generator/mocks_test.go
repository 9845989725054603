package generator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// --- Mocks ---

type mockAIClient struct {
	GenerateWithPartsFunc func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
	GenerateContentFunc   func(ctx context.Context, model string, prompt string) (*gemini.Response, error)

	uploadCalled bool
	lastModel    string
	lastParts    []*genai.Part
	lastOpts     gemini.GenerateOptions
	lastPrompt   string
}

func (m *mockAIClient) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	m.uploadCalled = true
	return "https://generativelanguage.googleapis.com/v1beta/files/mock-id", "files/mock-id", nil
}

func (m *mockAIClient) DeleteFile(ctx context.Context, name string) error { return nil }

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	m.lastModel = model
	m.lastPrompt = prompt
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, model, prompt)
	}
	return textResponse("Crimson Dream"), nil
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.lastModel = model
	m.lastParts = parts
	m.lastOpts = opts
	if m.GenerateWithPartsFunc != nil {
		return m.GenerateWithPartsFunc(ctx, model, parts, opts)
	}
	return imageResponse([]byte("fake")), nil
}

type mockReader struct {
	data []byte
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return nil
}

type mockHTTPClient struct {
	data  []byte
	err   error
	calls int
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	return m.data, m.err
}

func (m *mockHTTPClient) DoRequest(req *http.Request) ([]byte, error) { return m.data, m.err }

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) { return nil, m.err }

func (m *mockHTTPClient) IsSafeURL(urlStr string) (bool, error) { return true, nil }

func (m *mockHTTPClient) IsSecureServiceURL(serviceURL string) bool { return true }

func (m *mockHTTPClient) FetchAndDecodeJSON(ctx context.Context, url string, v any) error {
	return m.err
}

func (m *mockHTTPClient) PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error) {
	return m.data, m.err
}

func (m *mockHTTPClient) PostRawBodyAndFetchBytes(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	return m.data, m.err
}

type mockCache struct {
	data map[string]any
}

func (m *mockCache) Get(key string) (any, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *mockCache) Set(key string, value any, d time.Duration) {
	m.data[key] = value
}

// --- helpers ---

func imageResponse(data []byte) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}}},
				},
			}},
		},
	}
}

func textResponse(text string) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
			}},
		},
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{200, 30, 30, 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestCore(t *testing.T, ai *mockAIClient, httpClient *mockHTTPClient, reader *mockReader) *GeminiImageCore {
	t.Helper()
	core, err := NewGeminiImageCore(ai, reader, httpClient, &mockCache{data: make(map[string]any)}, time.Hour)
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	return core
}
