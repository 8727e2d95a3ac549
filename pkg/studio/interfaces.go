package studio

import (
	"context"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// ImageGenerator は Gemini での画像生成を行います。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

// LocalGenerator はローカル Stable Diffusion の txt2img を呼び出します。
type LocalGenerator interface {
	Txt2Img(ctx context.Context, req domain.LocalGenerationRequest) ([]byte, error)
}

// LocalGeneratorFactory はエンドポイントごとの LocalGenerator を作成します。
type LocalGeneratorFactory func(endpoint string) (LocalGenerator, error)

// PromptRefiner はプロンプトを改善します。
type PromptRefiner interface {
	Refine(ctx context.Context, text string) (string, error)
}

// ImageRepository は生成した画像を履歴に保存します。
type ImageRepository interface {
	Add(ctx context.Context, img *domain.AIImage) (int64, error)
}
