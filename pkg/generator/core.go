package generator

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/ai-canvas/pkg/imgutil"
)

// GeminiImageCore は AssetManager と ImageExecutor の両方の責務を担う基盤クラスです。
type GeminiImageCore struct {
	aiClient    gemini.GenerativeModel
	reader      remoteio.InputReader
	httpClient  httpkit.ClientInterface
	cache       ImageCacher
	expiration  time.Duration
	inlineLimit int
}

// NewGeminiImageCore は依存関係を注入して GeminiImageCore を初期化します。
func NewGeminiImageCore(aiClient gemini.GenerativeModel, reader remoteio.InputReader, httpClient httpkit.ClientInterface, cache ImageCacher, cacheTTL time.Duration) (*GeminiImageCore, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	// cache は nil を許容（キャッシュなし動作）

	return &GeminiImageCore{
		aiClient:    aiClient,
		reader:      reader,
		httpClient:  httpClient,
		cache:       cache,
		expiration:  cacheTTL,
		inlineLimit: maxInlineImageBytes,
	}, nil
}

// NewImageCache は参照画像用のインメモリキャッシュを作成します。
func NewImageCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

// UploadFile は参照画像を Gemini File API にアップロードし、URI を返します。
func (c *GeminiImageCore) UploadFile(ctx context.Context, fileURI string) (string, error) {
	if uri, ok := c.cachedString(cacheKeyFileAPIURI + fileURI); ok {
		return uri, nil
	}

	data, err := c.loadImage(ctx, fileURI)
	if err != nil {
		return "", err
	}
	return c.upload(ctx, fileURI, data)
}

func (c *GeminiImageCore) upload(ctx context.Context, fileURI string, data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	uri, fileName, err := c.aiClient.UploadFile(ctx, data, mimeType, filepath.Base(fileURI))
	if err != nil {
		return "", err
	}

	// URI（参照用）と Name（削除用）の両方をキャッシュ
	if c.cache != nil {
		c.cache.Set(cacheKeyFileAPIURI+fileURI, uri, c.expiration)
		c.cache.Set(cacheKeyFileAPIName+fileURI, fileName, c.expiration)
		c.cache.Set(cacheKeyFileAPIMIME+fileURI, mimeType, c.expiration)
	}
	return uri, nil
}

// loadImage は参照画像を取得し、設定に応じて JPEG に圧縮します。
func (c *GeminiImageCore) loadImage(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := c.fetchImageData(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if UseImageCompression {
		if compressed, err := imgutil.CompressToJPEG(data, ImageCompressionQuality); err == nil {
			return compressed, nil
		}
	}
	return data, nil
}

func (c *GeminiImageCore) cachedString(key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	val, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}
