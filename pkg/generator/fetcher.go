package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// HTTPFetcher は参照画像の取得に使う httpkit.ClientInterface の実装です。
// リダイレクト先も IsSafeURL で検証し、プライベートアドレスへの転送を拒否します。
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher は指定のタイムアウトで HTTPFetcher を作成します。
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:       timeout,
			CheckRedirect: checkRedirect,
		},
		maxBytes: maxReferenceImageBytes,
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if safe, err := IsSafeURL(req.URL.String()); err != nil || !safe {
		return fmt.Errorf("安全ではないリダイレクト先です (%s): %w", req.URL.Redacted(), err)
	}
	return nil
}

// FetchBytes は URL の内容を上限サイズまで読み込みます。
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return f.DoRequest(req)
}

// DoRequest はリクエストを送り、2xx の本文を返します。
func (f *HTTPFetcher) DoRequest(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, req.URL.Redacted())
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", req.URL.Redacted(), f.maxBytes)
	}
	return data, nil
}

// FetchAndDecodeJSON は URL の JSON を v にデコードします。
func (f *HTTPFetcher) FetchAndDecodeJSON(ctx context.Context, url string, v any) error {
	data, err := f.FetchBytes(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", url, err)
	}
	return nil
}

// PostJSONAndFetchBytes は data を JSON で POST し、応答本文を返します。
func (f *HTTPFetcher) PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return f.PostRawBodyAndFetchBytes(ctx, url, body, "application/json")
}

// PostRawBodyAndFetchBytes は body をそのまま POST し、応答本文を返します。
func (f *HTTPFetcher) PostRawBodyAndFetchBytes(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return nil, errors.New("content type is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return f.DoRequest(req)
}

var _ httpkit.ClientInterface = (*HTTPFetcher)(nil)
