package generator

import (
	"context"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// AssetManager は参照画像の File API へのアップロードを担当します。
type AssetManager interface {
	UploadFile(ctx context.Context, fileURI string) (string, error)
}

// ImageGenerator はビジネスロジック層が利用する統合窓口です。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

// ImageExecutor は、画像生成リクエストを処理し、画像関連データを準備するためのメソッドを定義するインターフェースです。
type ImageExecutor interface {
	// ExecuteRequest は、指定されたパラメータで画像生成リクエストを実行し、結果を返します。
	ExecuteRequest(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*domain.ImageResponse, error)
	// PrepareImagePart は、指定された画像URL (またはローカルパス) から後続処理で利用する画像パーツを作成します。
	PrepareImagePart(ctx context.Context, rawURL string) *genai.Part
}

// ImageCacher は、画像をキャッシュするためのインターフェースです。
// github.com/patrickmn/go-cache の *cache.Cache がそのまま満たします。
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}
