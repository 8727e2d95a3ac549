// Package sdapi は AUTOMATIC1111 互換 (sdapi/v1) のローカル Stable Diffusion サーバーを呼び出します。
package sdapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shouni/ai-canvas/pkg/domain"
)

const (
	DefaultEndpoint = "http://127.0.0.1:7860/sdapi/v1/txt2img"
	DefaultWidth    = 512
	DefaultHeight   = 512

	optionsPath = "/sdapi/v1/options"
	modelsPath  = "/sdapi/v1/sd-models"

	maxErrorBody = 4 << 10
)

// ErrUnreachable はローカルサーバーに接続できなかったことを示します。
var ErrUnreachable = errors.New("ローカル API に接続できません。考えられる原因: (1) サーバーが起動していない (2) アドレスが間違っている (3) サーバー側で API (--api) が有効になっていない")

// APIError はローカルサーバーが 2xx 以外を返したときのエラーです。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("local API error (%d): %s", e.StatusCode, e.Body)
}

// Checkpoint は /sdapi/v1/sd-models の1要素です。
type Checkpoint struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Hash      string `json:"hash"`
	Filename  string `json:"filename"`
}

// Client はローカル Stable Diffusion サーバーのクライアントです。
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries uint64
	backoff    time.Duration
}

// Option は Client の設定を変更します。
type Option func(*Client)

// WithHTTPClient は内部の *http.Client を差し替えます。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout は 1 リクエストあたりのタイムアウトを設定します。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetry は接続失敗時の再試行回数と初期待ち時間を設定します。
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = initial
	}
}

// New は txt2img エンドポイントを指す Client を作成します。
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid local API endpoint %q", endpoint)
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint は txt2img の URL を返します。
func (c *Client) Endpoint() string {
	return c.endpoint
}

type txt2imgRequest struct {
	Prompt                            string            `json:"prompt"`
	NegativePrompt                    string            `json:"negative_prompt"`
	Steps                             int               `json:"steps"`
	CFGScale                          float64           `json:"cfg_scale"`
	Width                             int               `json:"width"`
	Height                            int               `json:"height"`
	Seed                              int64             `json:"seed"`
	OverrideSettings                  map[string]string `json:"override_settings,omitempty"`
	OverrideSettingsRestoreAfterwards bool              `json:"override_settings_restore_afterwards,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Txt2Img は画像を1枚生成し、PNG のバイナリを返します。
func (c *Client) Txt2Img(ctx context.Context, req domain.LocalGenerationRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}

	payload := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CFGScale:       req.CFGScale,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           -1,
	}
	if payload.Width <= 0 {
		payload.Width = DefaultWidth
	}
	if payload.Height <= 0 {
		payload.Height = DefaultHeight
	}
	if req.Seed != nil {
		payload.Seed = *req.Seed
	}
	if req.CheckpointModel != "" {
		payload.OverrideSettings = map[string]string{"sd_model_checkpoint": req.CheckpointModel}
		payload.OverrideSettingsRestoreAfterwards = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ローカル画像生成リクエスト", "endpoint", c.endpoint, "steps", payload.Steps, "checkpoint", req.CheckpointModel)

	var out txt2imgResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint, body, &out); err != nil {
		return nil, err
	}
	if len(out.Images) == 0 || out.Images[0] == "" {
		return nil, fmt.Errorf("ローカル API が画像を返しませんでした: %w", domain.ErrNoImage)
	}

	b64 := out.Images[0]
	// data URL 形式で返す実装もある
	if _, rest, ok := strings.Cut(b64, ","); ok && strings.HasPrefix(b64, "data:") {
		b64 = rest
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("画像データのデコードに失敗しました: %w", err)
	}
	return data, nil
}

// OptionsURL は txt2img の URL から options の URL を導出します。
func (c *Client) OptionsURL() string {
	if strings.Contains(c.endpoint, "txt2img") {
		return strings.Replace(c.endpoint, "txt2img", "options", 1)
	}
	return c.originURL(optionsPath)
}

func (c *Client) originURL(path string) string {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return path
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String()
}

// CurrentCheckpoint はサーバーで現在読み込まれているチェックポイント名を返します。
func (c *Client) CurrentCheckpoint(ctx context.Context) (string, error) {
	var opts struct {
		Checkpoint string `json:"sd_model_checkpoint"`
	}
	if err := c.do(ctx, http.MethodGet, c.OptionsURL(), nil, &opts); err != nil {
		return "", err
	}
	if opts.Checkpoint == "" {
		return "", errors.New("API の設定にチェックポイントが見つかりませんでした")
	}
	return opts.Checkpoint, nil
}

// ListCheckpoints はサーバーが認識しているチェックポイントの一覧を返します。
func (c *Client) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	var models []Checkpoint
	if err := c.do(ctx, http.MethodGet, c.originURL(modelsPath), nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			// 接続失敗だけを再試行する
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("ローカル API の応答を解析できません: %w", err))
		}
		return nil
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff(backoff.WithInitialInterval(c.backoff))
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	return backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		slog.WarnContext(ctx, "ローカル API への接続を再試行します", "url", target, "wait", next, "error", err)
	})
}
