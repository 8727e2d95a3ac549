// Package studio は画像生成のフローをまとめ、生成結果を履歴に記録します。
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/ai-canvas/pkg/domain"
	"github.com/shouni/ai-canvas/pkg/imgutil"
)

// Studio は Gemini とローカルの生成フローです。
type Studio struct {
	gemini   ImageGenerator
	local    LocalGenerator
	newLocal LocalGeneratorFactory
	refiner  PromptRefiner
	repo     ImageRepository
	defaults domain.LocalSettings
	now      func() time.Time
}

// Config は Studio の依存関係です。Gemini / Local / Refiner は使わないなら nil でかまいません。
type Config struct {
	Gemini        ImageGenerator
	Local         LocalGenerator
	LocalFactory  LocalGeneratorFactory
	Refiner       PromptRefiner
	Repository    ImageRepository
	LocalDefaults domain.LocalSettings
}

// New は Studio を初期化するのだ。
func New(cfg Config) (*Studio, error) {
	if cfg.Repository == nil {
		return nil, errors.New("repository (ImageRepository) is required")
	}
	return &Studio{
		gemini:   cfg.Gemini,
		local:    cfg.Local,
		newLocal: cfg.LocalFactory,
		refiner:  cfg.Refiner,
		repo:     cfg.Repository,
		defaults: cfg.LocalDefaults,
		now:      time.Now,
	}, nil
}

// GeminiInput は Gemini での生成要求です。
type GeminiInput struct {
	Prompt string
	// OriginalPrompt は改善前のプロンプトです。設定されていれば Prompt は改善後として記録します。
	OriginalPrompt string
	NegativePrompt string
	AspectRatio    string
	ReferenceURL   string
	Seed           *int64
}

// LocalInput はローカル Stable Diffusion での生成要求です。ゼロ値の項目は既定値を使います。
type LocalInput struct {
	Prompt          string
	NegativePrompt  string
	Steps           int
	CFGScale        float64
	Width           int
	Height          int
	Seed            *int64
	CheckpointModel string
	Endpoint        string
}

// GenerateGemini は Gemini で画像を生成し、履歴に保存します。
func (s *Studio) GenerateGemini(ctx context.Context, in GeminiInput) (*domain.AIImage, error) {
	if s.gemini == nil {
		return nil, errors.New("gemini generator is not configured")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	resp, err := s.gemini.GenerateImage(ctx, domain.ImageGenerationRequest{
		Prompt:         prompt,
		NegativePrompt: in.NegativePrompt,
		AspectRatio:    in.AspectRatio,
		ReferenceURL:   in.ReferenceURL,
		Seed:           in.Seed,
	})
	if err != nil {
		return nil, err
	}

	img := &domain.AIImage{
		Name:   domain.ImageName(prompt),
		Prompt: prompt,
		Model:  domain.ModelGeminiFlash,
	}
	if orig := strings.TrimSpace(in.OriginalPrompt); orig != "" {
		img.Prompt = orig
		img.RefinedPrompt = prompt
	}
	return s.save(ctx, img, resp.Data)
}

// GenerateLocal はローカル Stable Diffusion で画像を生成し、履歴に保存します。
func (s *Studio) GenerateLocal(ctx context.Context, in LocalInput) (*domain.AIImage, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}
	gen, err := s.localFor(in.Endpoint)
	if err != nil {
		return nil, err
	}

	req := domain.LocalGenerationRequest{
		Prompt:          prompt,
		NegativePrompt:  in.NegativePrompt,
		Steps:           in.Steps,
		CFGScale:        in.CFGScale,
		Width:           in.Width,
		Height:          in.Height,
		Seed:            in.Seed,
		CheckpointModel: in.CheckpointModel,
	}
	if req.NegativePrompt == "" {
		req.NegativePrompt = s.defaults.NegativePrompt
	}
	if req.Steps <= 0 {
		req.Steps = s.defaults.Steps
	}
	if req.CFGScale <= 0 {
		req.CFGScale = s.defaults.CFGScale
	}
	if req.CheckpointModel == "" {
		req.CheckpointModel = s.defaults.CheckpointModel
	}

	data, err := gen.Txt2Img(ctx, req)
	if err != nil {
		return nil, err
	}

	img := &domain.AIImage{
		Name:            domain.ImageName(prompt),
		Prompt:          prompt,
		Model:           domain.ModelStableDiffusionLocal,
		CheckpointModel: req.CheckpointModel,
	}
	return s.save(ctx, img, data)
}

// Refine はプロンプトを改善します。
func (s *Studio) Refine(ctx context.Context, text string) (string, error) {
	if s.refiner == nil {
		return "", errors.New("prompt refiner is not configured")
	}
	return s.refiner.Refine(ctx, text)
}

// GenerateForBatch はバッチ設定に従って1プロンプト分を生成します。
func (s *Studio) GenerateForBatch(ctx context.Context, settings domain.BatchSettings, prompt string) (*domain.AIImage, error) {
	switch settings.Backend {
	case domain.BackendGemini:
		return s.GenerateGemini(ctx, GeminiInput{
			Prompt:      prompt,
			AspectRatio: settings.Gemini.AspectRatio,
		})
	case domain.BackendLocal:
		return s.GenerateLocal(ctx, LocalInput{
			Prompt:          prompt,
			NegativePrompt:  settings.Local.NegativePrompt,
			Steps:           settings.Local.Steps,
			CFGScale:        settings.Local.CFGScale,
			CheckpointModel: settings.Local.CheckpointModel,
			Endpoint:        settings.Local.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", settings.Backend)
	}
}

func (s *Studio) localFor(endpoint string) (LocalGenerator, error) {
	if endpoint == "" || endpoint == s.defaults.Endpoint {
		if s.local == nil {
			return nil, errors.New("local generator is not configured")
		}
		return s.local, nil
	}
	if s.newLocal == nil {
		return nil, fmt.Errorf("cannot use endpoint %s: no local generator factory", endpoint)
	}
	return s.newLocal(endpoint)
}

// save は画像のメタデータを読み取り、履歴に追加するのだ。MIME タイプは中身から判定する。
func (s *Studio) save(ctx context.Context, img *domain.AIImage, data []byte) (*domain.AIImage, error) {
	meta, err := imgutil.DecodeMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("生成された画像を読み取れません: %w", err)
	}
	img.Resolution = domain.Resolution{Width: meta.Width, Height: meta.Height}
	img.Size = meta.Size
	img.MimeType = meta.MimeType
	img.Data = data
	img.Tags = []string{}
	img.CreatedAt = s.now()

	id, err := s.repo.Add(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("履歴への保存に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "画像を履歴に保存しました", "id", id, "model", img.Model, "width", meta.Width, "height", meta.Height, "bytes", meta.Size)
	return img, nil
}
