// Package prompts はテキストモデルを使ったプロンプトの改善と、文書からのプロンプト生成を扱います。
package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/aiclient"
	"github.com/shouni/ai-canvas/pkg/domain"
)

const (
	MinDocumentPrompts = 5
	MaxDocumentPrompts = 10
)

// JSONGenerator は構造化出力を返すテキストモデルです。
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, model string, prompt string, schema *genai.Schema, out any) error
}

// Refiner はプロンプトの改善と文書からの生成を行います。
type Refiner struct {
	client JSONGenerator
	model  string
}

// NewRefiner は Refiner を初期化するのだ。
func NewRefiner(client JSONGenerator, model string) (*Refiner, error) {
	if client == nil {
		return nil, errors.New("client (JSONGenerator) is required")
	}
	if model == "" {
		model = aiclient.DefaultTextModel
	}
	return &Refiner{client: client, model: model}, nil
}

var refineSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"refinedPrompt": {Type: genai.TypeString, Description: "The refined text prompt."},
	},
	Required: []string{"refinedPrompt"},
}

var documentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"prompts": {
			Type:        genai.TypeArray,
			Description: "A list of generated image prompts.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"prompts"},
}

// Refine はプロンプトをより具体的で描写的なものに書き換えます。
func (r *Refiner) Refine(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyPrompt
	}

	var out struct {
		RefinedPrompt string `json:"refinedPrompt"`
	}
	if err := r.client.GenerateJSON(ctx, r.model, fmt.Sprintf(refineTemplate, text), refineSchema, &out); err != nil {
		return "", fmt.Errorf("プロンプトの改善に失敗しました: %w", err)
	}

	refined := strings.TrimSpace(out.RefinedPrompt)
	if refined == "" {
		return "", errors.New("モデルが空のプロンプトを返しました")
	}
	slog.InfoContext(ctx, "プロンプトを改善しました", "model", r.model, "original_len", len(text), "refined_len", len(refined))
	return refined, nil
}

// FromDocument は文書の内容から画像生成用のプロンプトを 5〜10 件作成します。
func (r *Refiner) FromDocument(ctx context.Context, content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("document is empty")
	}

	var out struct {
		Prompts []string `json:"prompts"`
	}
	if err := r.client.GenerateJSON(ctx, r.model, fmt.Sprintf(documentTemplate, content), documentSchema, &out); err != nil {
		return nil, fmt.Errorf("文書からのプロンプト生成に失敗しました: %w", err)
	}

	prompts := make([]string, 0, len(out.Prompts))
	for _, p := range out.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		return nil, errors.New("モデルがプロンプトを返しませんでした")
	}
	if len(prompts) > MaxDocumentPrompts {
		prompts = prompts[:MaxDocumentPrompts]
	}
	if len(prompts) < MinDocumentPrompts {
		slog.WarnContext(ctx, "生成されたプロンプトが想定より少ないです", "count", len(prompts))
	}
	return prompts, nil
}
