package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// ExecuteRequest は Gemini に生成を依頼し、最初の画像を取り出します。
func (c *GeminiImageCore) ExecuteRequest(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*domain.ImageResponse, error) {
	resp, err := c.aiClient.GenerateWithParts(ctx, model, parts, opts)
	if err != nil {
		return nil, err
	}

	out, err := c.parseToResponse(resp, dereferenceSeed(opts.Seed))
	if err != nil {
		return nil, err
	}

	return &domain.ImageResponse{
		Data:     out.Data,
		MimeType: out.MimeType,
		UsedSeed: out.UsedSeed,
	}, nil
}

// PrepareImagePart は参照画像を準備して genai.Part に変換します。
// 大きな画像は File API にアップロードして FileData として渡します。
// 取得に失敗した場合は nil を返し、呼び出し側はテキストのみで続行します。
func (c *GeminiImageCore) PrepareImagePart(ctx context.Context, rawURL string) *genai.Part {
	// File API キャッシュチェック
	if uri, ok := c.cachedString(cacheKeyFileAPIURI + rawURL); ok {
		mimeType, _ := c.cachedString(cacheKeyFileAPIMIME + rawURL)
		return &genai.Part{FileData: &genai.FileData{FileURI: uri, MIMEType: mimeType}}
	}
	if c.cache != nil {
		if cached, found := c.cache.Get(cacheKeyImageData + rawURL); found {
			if data, ok := cached.([]byte); ok {
				return c.toPart(data)
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "url", rawURL, "type", fmt.Sprintf("%T", cached))
		}
	}

	data, err := c.loadImage(ctx, rawURL)
	if err != nil {
		slog.WarnContext(ctx, "参照画像の取得に失敗しました。テキストのみで続行します", "url", rawURL, "error", err)
		return nil
	}

	if c.inlineLimit > 0 && len(data) > c.inlineLimit {
		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			slog.WarnContext(ctx, "MIMEタイプが画像ではないためアップロードしません", "url", rawURL, "detected_mime_type", mimeType)
			return nil
		}
		uri, err := c.upload(ctx, rawURL, data)
		if err != nil {
			slog.WarnContext(ctx, "参照画像のアップロードに失敗しました。テキストのみで続行します", "url", rawURL, "error", err)
			return nil
		}
		slog.InfoContext(ctx, "参照画像を File API 経由で渡します", "url", rawURL, "bytes", len(data))
		return &genai.Part{FileData: &genai.FileData{FileURI: uri, MIMEType: mimeType}}
	}

	part := c.toPart(data)
	if part != nil && c.cache != nil {
		c.cache.Set(cacheKeyImageData+rawURL, data, c.expiration)
	}
	return part
}

// fetchImageData は http(s) の URL を SSRF 対策の上で取得し、それ以外はローカルパスとして読み込みます。
func (c *GeminiImageCore) fetchImageData(ctx context.Context, rawURL string) ([]byte, error) {
	if !isRemoteURL(rawURL) {
		rc, err := c.reader.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, maxReferenceImageBytes))
	}

	if safe, err := IsSafeURL(rawURL); err != nil || !safe {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	return c.httpClient.FetchBytes(ctx, rawURL)
}

func isRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func (c *GeminiImageCore) toPart(data []byte) *genai.Part {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		slog.Warn("MIMEタイプが画像ではないためPartに変換できませんでした", "detected_mime_type", mimeType)
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// parseToResponse は最初の候補から最初の画像データを抽出します。
func (c *GeminiImageCore) parseToResponse(resp *gemini.Response, seed int64) (*ImageOutput, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return nil, fmt.Errorf("Geminiからの有効な応答がありませんでした: %w", domain.ErrNoImage)
	}

	candidate := resp.RawResponse.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &ImageOutput{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MIMEType,
					UsedSeed: seed,
				}, nil
			}
		}
	}

	// 安全フィルター等によるブロックの確認
	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("画像生成が異常終了しました (FinishReason: %s): %w", candidate.FinishReason, domain.ErrNoImage)
	}

	return nil, fmt.Errorf("画像データが見つかりませんでした: %w", domain.ErrNoImage)
}
