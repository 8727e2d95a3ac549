package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiImageCore(t *testing.T) {
	t.Run("aiClient がなければエラー", func(t *testing.T) {
		_, err := NewGeminiImageCore(nil, &mockReader{}, &mockHTTPClient{}, nil, time.Hour)
		assert.Error(t, err)
	})

	t.Run("reader がなければエラー", func(t *testing.T) {
		_, err := NewGeminiImageCore(&mockAIClient{}, nil, &mockHTTPClient{}, nil, time.Hour)
		assert.Error(t, err)
	})

	t.Run("httpClient がなければエラー", func(t *testing.T) {
		_, err := NewGeminiImageCore(&mockAIClient{}, &mockReader{}, nil, nil, time.Hour)
		assert.Error(t, err)
	})

	t.Run("cache は nil でもよい", func(t *testing.T) {
		core, err := NewGeminiImageCore(&mockAIClient{}, &mockReader{}, &mockHTTPClient{}, nil, time.Hour)
		require.NoError(t, err)
		assert.NotNil(t, core)
	})
}

func TestNewImageCache(t *testing.T) {
	c := NewImageCache(time.Minute)
	var _ ImageCacher = c

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestGeminiImageCore_UploadFile(t *testing.T) {
	ctx := context.Background()
	const ref = "/refs/cat.png"

	ai := &mockAIClient{}
	reader := &mockReader{files: map[string][]byte{ref: pngBytes(t)}}
	cache := &mockCache{data: make(map[string]any)}
	core, err := NewGeminiImageCore(ai, reader, &mockHTTPClient{}, cache, time.Hour)
	require.NoError(t, err)

	// モック (mockAIClient.UploadFile) が返す期待値
	expectedURI := "https://gemini.api/files/new-file-id"

	uri, err := core.UploadFile(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, expectedURI, uri)
	assert.Equal(t, "image/jpeg", ai.uploadedMIME)
	assert.Equal(t, "files/new-file-id", cache.data[cacheKeyFileAPIName+ref])

	t.Run("2回目はキャッシュから返す", func(t *testing.T) {
		uri, err := core.UploadFile(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, expectedURI, uri)
		assert.Equal(t, 1, ai.uploadCalls)
		assert.Len(t, reader.opened, 1)
	})
}
