package imgutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetadata(t *testing.T) {
	t.Run("PNGの解像度とサイズを取得できる", func(t *testing.T) {
		data := createDummyImageData(t, "png", 32, 16)

		meta, err := DecodeMetadata(data)
		require.NoError(t, err)
		assert.Equal(t, "image/png", meta.MimeType)
		assert.Equal(t, 32, meta.Width)
		assert.Equal(t, 16, meta.Height)
		assert.Equal(t, int64(len(data)), meta.Size)
	})

	t.Run("JPEGも扱える", func(t *testing.T) {
		meta, err := DecodeMetadata(createDummyImageData(t, "jpeg", 8, 8))
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", meta.MimeType)
	})

	t.Run("空データはエラー", func(t *testing.T) {
		_, err := DecodeMetadata(nil)
		assert.Error(t, err)
	})

	t.Run("画像でないデータはエラー", func(t *testing.T) {
		_, err := DecodeMetadata([]byte("plain text"))
		assert.Error(t, err)
	})
}

func TestDataURL(t *testing.T) {
	data := createDummyImageData(t, "png", 2, 2)

	t.Run("エンコードしてデコードすると元に戻る", func(t *testing.T) {
		url := EncodeDataURL("image/png", data)
		assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

		mime, got, err := DecodeDataURL(url)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
		assert.Equal(t, data, got)
	})

	t.Run("MIMEタイプ省略時は内容から判定する", func(t *testing.T) {
		url := EncodeDataURL("", data)
		assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	})

	tests := []struct {
		name string
		in   string
	}{
		{"data: で始まらない", "image/png;base64,AAAA"},
		{"カンマがない", "data:image/png;base64"},
		{"base64 ではない", "data:text/plain,hello"},
		{"base64 が壊れている", "data:image/png;base64,@@@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeDataURL(tt.in)
			assert.Error(t, err)
		})
	}
}
