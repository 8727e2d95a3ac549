package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

// PrepareImagePart のテスト（キャッシュと変換）
func TestGeminiImageCore_PrepareImagePart(t *testing.T) {
	ctx := context.Background()

	t.Run("キャッシュヒット時はダウンロードしない", func(t *testing.T) {
		cache := &mockCache{data: make(map[string]any)}
		httpMock := &mockHTTPClient{}
		core := &GeminiImageCore{httpClient: httpMock, cache: cache}

		rawURL := "https://8.8.8.8/img.png"
		cached := pngBytes(t)
		cache.Set(cacheKeyImageData+rawURL, cached, time.Hour)

		part := core.PrepareImagePart(ctx, rawURL)

		require.NotNil(t, part)
		require.NotNil(t, part.InlineData)
		assert.Equal(t, cached, part.InlineData.Data)
		assert.Zero(t, httpMock.calls)
	})

	t.Run("キャッシュミス時は取得してJPEGに圧縮しキャッシュする", func(t *testing.T) {
		cache := &mockCache{data: make(map[string]any)}
		httpMock := &mockHTTPClient{data: pngBytes(t)}
		core := &GeminiImageCore{httpClient: httpMock, cache: cache, expiration: time.Hour, inlineLimit: maxInlineImageBytes}

		rawURL := "https://8.8.8.8/new.png"
		part := core.PrepareImagePart(ctx, rawURL)

		require.NotNil(t, part)
		assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)
		assert.Equal(t, 1, httpMock.calls)
		_, found := cache.Get(cacheKeyImageData + rawURL)
		assert.True(t, found)
	})

	t.Run("不正なURLはnilを返す(fetchImageData内のIsSafeURLで失敗)", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: pngBytes(t)}
		core := &GeminiImageCore{httpClient: httpMock}

		assert.Nil(t, core.PrepareImagePart(ctx, "http://127.0.0.1/evil.png"))
		assert.Zero(t, httpMock.calls)
	})

	t.Run("取得失敗はnilを返す", func(t *testing.T) {
		core := &GeminiImageCore{httpClient: &mockHTTPClient{err: errors.New("boom")}}
		assert.Nil(t, core.PrepareImagePart(ctx, "https://8.8.8.8/missing.png"))
	})

	t.Run("画像でないデータはnilを返す", func(t *testing.T) {
		core := &GeminiImageCore{httpClient: &mockHTTPClient{data: []byte("<html></html>")}}
		assert.Nil(t, core.PrepareImagePart(ctx, "https://8.8.8.8/page.html"))
	})

	t.Run("ローカルパスは reader で読み込む", func(t *testing.T) {
		httpMock := &mockHTTPClient{}
		reader := &mockReader{files: map[string][]byte{"file:///tmp/ref.png": pngBytes(t)}}
		core := &GeminiImageCore{reader: reader, httpClient: httpMock, inlineLimit: maxInlineImageBytes}

		part := core.PrepareImagePart(ctx, "file:///tmp/ref.png")
		require.NotNil(t, part)
		require.NotNil(t, part.InlineData)
		assert.Equal(t, []string{"file:///tmp/ref.png"}, reader.opened)
		assert.Zero(t, httpMock.calls)
	})

	t.Run("上限を超える画像は File API 経由で渡す", func(t *testing.T) {
		ai := &mockAIClient{}
		cache := &mockCache{data: make(map[string]any)}
		core := &GeminiImageCore{
			aiClient:    ai,
			httpClient:  &mockHTTPClient{data: pngBytes(t)},
			cache:       cache,
			expiration:  time.Hour,
			inlineLimit: 1,
		}

		rawURL := "https://8.8.8.8/large.png"
		part := core.PrepareImagePart(ctx, rawURL)
		require.NotNil(t, part)
		require.NotNil(t, part.FileData)
		assert.Equal(t, "https://gemini.api/files/new-file-id", part.FileData.FileURI)
		assert.Equal(t, "image/jpeg", part.FileData.MIMEType)
		assert.Equal(t, 1, ai.uploadCalls)

		again := core.PrepareImagePart(ctx, rawURL)
		require.NotNil(t, again)
		require.NotNil(t, again.FileData)
		assert.Equal(t, "image/jpeg", again.FileData.MIMEType)
		assert.Equal(t, 1, ai.uploadCalls)
	})

	t.Run("アップロード失敗はnilを返す", func(t *testing.T) {
		core := &GeminiImageCore{
			aiClient:    &mockAIClient{uploadErr: errors.New("quota")},
			httpClient:  &mockHTTPClient{data: pngBytes(t)},
			inlineLimit: 1,
		}
		assert.Nil(t, core.PrepareImagePart(ctx, "https://8.8.8.8/large.png"))
	})
}

func TestGeminiImageCore_ExecuteRequest(t *testing.T) {
	seed := int64(77)
	ai := &mockAIClient{
		generateWithPartsFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
			assert.Equal(t, "img-model", model)
			assert.Equal(t, "16:9", opts.AspectRatio)
			return imageResponse("image/png", []byte("png-data")), nil
		},
	}
	core, err := NewGeminiImageCore(ai, &mockReader{}, &mockHTTPClient{}, nil, time.Hour)
	require.NoError(t, err)

	resp, err := core.ExecuteRequest(context.Background(), "img-model", []*genai.Part{{Text: "x"}}, gemini.GenerateOptions{AspectRatio: "16:9", Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, []byte("png-data"), resp.Data)
	assert.Equal(t, "image/png", resp.MimeType)
	assert.Equal(t, int64(77), resp.UsedSeed)
}

// parseToResponse のテスト
func TestGeminiImageCore_ParseToResponse(t *testing.T) {
	core := &GeminiImageCore{}
	seed := int64(999)

	t.Run("正常系", func(t *testing.T) {
		out, err := core.parseToResponse(imageResponse("image/png", []byte("png-data")), seed)
		require.NoError(t, err)
		assert.Equal(t, "image/png", out.MimeType)
		assert.Equal(t, seed, out.UsedSeed)
	})

	t.Run("テキストの後ろにある画像も見つける", func(t *testing.T) {
		resp := &gemini.Response{RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("img")}},
			}}}},
		}}
		out, err := core.parseToResponse(resp, seed)
		require.NoError(t, err)
		assert.Equal(t, []byte("img"), out.Data)
	})

	t.Run("異常系: 画像データなし", func(t *testing.T) {
		resp := &gemini.Response{RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "just text"}}}},
			},
		}}
		_, err := core.parseToResponse(resp, seed)
		assert.ErrorIs(t, err, domain.ErrNoImage)
	})

	t.Run("異常系: FinishReason が SAFETY", func(t *testing.T) {
		resp := &gemini.Response{RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}}
		_, err := core.parseToResponse(resp, seed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SAFETY")
	})

	t.Run("異常系: 応答が空", func(t *testing.T) {
		_, err := core.parseToResponse(nil, seed)
		assert.ErrorIs(t, err, domain.ErrNoImage)
		_, err = core.parseToResponse(&gemini.Response{RawResponse: &genai.GenerateContentResponse{}}, seed)
		assert.ErrorIs(t, err, domain.ErrNoImage)
	})
}
