package generator

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// --- Mocks ---

type mockAIClient struct {
	generateWithPartsFunc func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
	uploadErr             error
	uploadCalls           int
	uploadedMIME          string
	deletedName           string
}

func (m *mockAIClient) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	m.uploadCalls++
	m.uploadedMIME = mimeType
	if m.uploadErr != nil {
		return "", "", m.uploadErr
	}
	return "https://gemini.api/files/new-file-id", "files/new-file-id", nil
}

func (m *mockAIClient) DeleteFile(ctx context.Context, name string) error {
	m.deletedName = name
	return nil
}

func (m *mockAIClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return nil, nil
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	return nil, nil
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	if m.generateWithPartsFunc != nil {
		return m.generateWithPartsFunc(ctx, model, parts, opts)
	}
	return imageResponse("image/png", []byte("fake")), nil
}

// mockExecutor は ImageExecutor インターフェースのテスト用モックなのだ。
type mockExecutor struct {
	prepareFunc func(ctx context.Context, url string) *genai.Part
	executeFunc func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*domain.ImageResponse, error)
}

func (m *mockExecutor) PrepareImagePart(ctx context.Context, url string) *genai.Part {
	if m.prepareFunc != nil {
		return m.prepareFunc(ctx, url)
	}
	return nil
}

func (m *mockExecutor) ExecuteRequest(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*domain.ImageResponse, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, model, parts, opts)
	}
	return &domain.ImageResponse{}, nil
}

// mockHTTPClient は httpkit.ClientInterface を実装します。
type mockHTTPClient struct {
	data  []byte
	err   error
	calls int
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	return m.data, m.err
}

// インターフェースを満たすための空実装群なのだ
func (m *mockHTTPClient) DoRequest(req *http.Request) ([]byte, error) {
	return nil, nil
}

func (m *mockHTTPClient) FetchAndDecodeJSON(ctx context.Context, url string, v any) error {
	return nil
}

func (m *mockHTTPClient) PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error) {
	return nil, nil
}

func (m *mockHTTPClient) PostRawBodyAndFetchBytes(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	return nil, nil
}

// mockReader は remoteio.InputReader を実装します。
type mockReader struct {
	files  map[string][]byte
	opened []string
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	m.opened = append(m.opened, uri)
	data, ok := m.files[uri]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	for name := range m.files {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
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

func imageResponse(mimeType string, data []byte) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}},
				},
			}},
		},
	}
}
