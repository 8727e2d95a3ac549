package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/aiclient"
	"github.com/shouni/ai-canvas/pkg/domain"
)

// GeminiGenerator は、プロンプト (と任意の参照画像) から1枚の画像を生成するジェネレーターです。
type GeminiGenerator struct {
	executor ImageExecutor
	model    string
}

// NewGeminiGenerator は GeminiGenerator を初期化するのだ。
func NewGeminiGenerator(executor ImageExecutor, model string) (*GeminiGenerator, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor (ImageExecutor) is required")
	}
	if model == "" {
		model = aiclient.DefaultImageModel
	}

	return &GeminiGenerator{
		executor: executor,
		model:    model,
	}, nil
}

// Model は利用する画像モデル名を返します。
func (g *GeminiGenerator) Model() string {
	return g.model
}

// GenerateImage は単一の画像生成を行うのだ。
func (g *GeminiGenerator) GenerateImage(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}
	// API が受け付けるのは int32 のシードなので、記録と実際の送信値がずれないよう先に検証する
	if _, err := aiclient.SeedToInt32(req.Seed); err != nil {
		return nil, err
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		// Gemini にはネガティブプロンプトの項目がないため本文で指示する
		prompt += "\n\nAvoid: " + neg
	}

	parts := []*genai.Part{{Text: prompt}}
	if req.ReferenceURL != "" {
		if imgPart := g.executor.PrepareImagePart(ctx, req.ReferenceURL); imgPart != nil {
			parts = append(parts, imgPart)
		}
	}

	slog.InfoContext(ctx, "Gemini画像生成リクエスト", "model", g.model, "parts", len(parts), "aspect_ratio", req.AspectRatio)

	opts := gemini.GenerateOptions{
		AspectRatio: req.AspectRatio,
		Seed:        req.Seed,
	}
	resp, err := g.executor.ExecuteRequest(ctx, g.model, parts, opts)
	if err != nil {
		return nil, fmt.Errorf("Gemini画像生成エラー: %w", err)
	}
	return resp, nil
}

var (
	_ ImageGenerator = (*GeminiGenerator)(nil)
	_ ImageExecutor  = (*GeminiImageCore)(nil)
	_ AssetManager   = (*GeminiImageCore)(nil)
	_ ImageCacher    = (*cache.Cache)(nil)
)
