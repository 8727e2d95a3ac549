package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// テスト用のダミー画像（w x h の赤い矩形）を作成するヘルパー
func createDummyImageData(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}

	if err != nil {
		t.Fatalf("failed to encode dummy image: %v", err)
	}
	return buf.Bytes()
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("正常なPNG画像をJPEGに圧縮できること", func(t *testing.T) {
		pngData := createDummyImageData(t, "png", 10, 10)

		got, err := CompressToJPEG(pngData, 75)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, format, err := image.Decode(bytes.NewReader(got))
		if err != nil {
			t.Errorf("failed to decode output image: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("expected format jpeg, got %s", format)
		}
	})

	t.Run("透過PNGは白背景に合成されること", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		buf := new(bytes.Buffer)
		if err := png.Encode(buf, img); err != nil {
			t.Fatal(err)
		}

		got, err := CompressToJPEG(buf.Bytes(), 90)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		decoded, _, err := image.Decode(bytes.NewReader(got))
		if err != nil {
			t.Fatal(err)
		}
		r, g, b, _ := decoded.At(1, 1).RGBA()
		if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
			t.Errorf("expected near-white pixel, got (%d,%d,%d)", r>>8, g>>8, b>>8)
		}
	})

	t.Run("不正なデータを与えた場合にエラーを返すこと", func(t *testing.T) {
		_, err := CompressToJPEG([]byte("this is not an image"), 75)
		if err == nil {
			t.Error("expected error for invalid data, but got nil")
		}
	})
}
