package studio

import (
	"context"

	"github.com/shouni/ai-canvas/pkg/domain"
)

type mockGemini struct {
	generateFunc func(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

func (m *mockGemini) GenerateImage(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	return m.generateFunc(ctx, req)
}

type mockLocal struct {
	txt2imgFunc func(ctx context.Context, req domain.LocalGenerationRequest) ([]byte, error)
}

func (m *mockLocal) Txt2Img(ctx context.Context, req domain.LocalGenerationRequest) ([]byte, error) {
	return m.txt2imgFunc(ctx, req)
}

type mockRefiner struct {
	refineFunc func(ctx context.Context, text string) (string, error)
}

func (m *mockRefiner) Refine(ctx context.Context, text string) (string, error) {
	return m.refineFunc(ctx, text)
}

type mockRepo struct {
	added  []*domain.AIImage
	err    error
	nextID int64
}

func (m *mockRepo) Add(ctx context.Context, img *domain.AIImage) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	img.ID = m.nextID
	m.added = append(m.added, img)
	return img.ID, nil
}
