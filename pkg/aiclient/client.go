// Package aiclient は google.golang.org/genai の上に go-gemini-client の
// gemini.GenerativeModel を実装し、構造化出力 (GenerateJSON) を追加します。
// すべての呼び出しはレート制限を受け、一時的なエラー (429/500/503) は
// バックオフ付きで再試行されます。
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/domain"
)

const (
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultTextModel  = "gemini-2.0-flash"
)

// Config は Client の設定です。
type Config struct {
	APIKey            string
	RequestsPerMinute int
	MaxRetries        uint64
	InitialBackoff    time.Duration
}

// contentGenerator は *genai.Models の GenerateContent だけを切り出したものです。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// fileService は *genai.Files のうち File API で使う操作です。
type fileService interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// Client は gemini.GenerativeModel の genai 実装です。
type Client struct {
	models         contentGenerator
	files          fileService
	limiter        *rate.Limiter
	maxRetries     uint64
	initialBackoff time.Duration
}

// NewClient は API キーから genai クライアントを作成します。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newClient(gc.Models, gc.Files, cfg), nil
}

func newClient(models contentGenerator, files fileService, cfg Config) *Client {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 2 * time.Second
	}
	return &Client{
		models:         models,
		files:          files,
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: initial,
	}
}

// GenerateContent はテキストプロンプトを送信します。本文は RawResponse.Text() で取り出します。
func (c *Client) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	raw, err := c.generate(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, err
	}
	return &gemini.Response{RawResponse: raw}, nil
}

// GenerateWithParts はテキストと画像のパーツを送り、画像を含む応答を要求します。
func (c *Client) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	seed, err := SeedToInt32(opts.Seed)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Seed:               seed,
	}
	if opts.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: opts.AspectRatio}
	}
	if opts.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	// 画像パーツを含む応答で Text() を呼ぶと SDK が警告を出すため、生の応答だけを返す
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	raw, err := c.generate(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	return &gemini.Response{RawResponse: raw}, nil
}

// GenerateJSON はレスポンススキーマを指定して構造化出力を要求し、out にデコードします。
func (c *Client) GenerateJSON(ctx context.Context, model string, prompt string, schema *genai.Schema, out any) error {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	raw, err := c.generate(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return err
	}
	text := raw.Text()
	if text == "" {
		return errors.New("empty JSON response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("構造化出力のデコードに失敗しました: %w", err)
	}
	return nil
}

// UploadFile は File API に画像をアップロードし、参照用 URI と削除用の名前を返します。
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", err
	}
	f, err := c.files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return "", "", fmt.Errorf("File API へのアップロードに失敗しました: %w", err)
	}
	return f.URI, f.Name, nil
}

// GetFile は File API 上のファイル情報を返します。
func (c *Client) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return c.files.Get(ctx, name, nil)
}

// DeleteFile は File API 上のファイルを削除します。
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	if _, err := c.files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("File API のファイル削除に失敗しました (%s): %w", name, err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	operation := func() (*genai.GenerateContentResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			if isRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff(backoff.WithInitialInterval(c.initialBackoff))
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "Gemini API の一時的なエラーのため再試行します", "model", model, "wait", next, "error", err)
	}

	raw, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		if IsQuotaError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
		}
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty response from Gemini")
	}
	return raw, nil
}

// SeedToInt32 は *int64 のシードを API が受け付ける *int32 に変換します。
// int32 に収まらない値は黙って切り詰めず domain.ErrInvalidSeed を返すのだ。
func SeedToInt32(s *int64) (*int32, error) {
	if s == nil {
		return nil, nil
	}
	if *s < math.MinInt32 || *s > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d (must fit in int32)", domain.ErrInvalidSeed, *s)
	}
	v := int32(*s)
	return &v, nil
}

// IsQuotaError は API のクォータ超過 (HTTP 429) かどうかを返します。
func IsQuotaError(err error) bool {
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}

func isRetryable(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

var _ gemini.GenerativeModel = (*Client)(nil)
