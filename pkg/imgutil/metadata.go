package imgutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
)

// Metadata は画像バイナリから抽出した情報です。
type Metadata struct {
	MimeType string
	Width    int
	Height   int
	Size     int64
}

// DecodeMetadata は画像のヘッダーだけを読み、形式とサイズを取得します。
func DecodeMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, errors.New("empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("画像ヘッダーの解析に失敗しました: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + format
	}

	return Metadata{
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     int64(len(data)),
	}, nil
}

// EncodeDataURL はバイナリを data URL (base64) に変換します。
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL は base64 形式の data URL を MIME タイプとバイナリに戻します。
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("data URL must start with \"data:\"")
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}

	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, errors.New("only base64 data URLs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URL のデコードに失敗しました: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return mimeType, data, nil
}
