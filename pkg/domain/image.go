package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// 履歴に記録されるモデル名です。
const (
	ModelGeminiFlash          = "Gemini Flash"
	ModelStableDiffusionLocal = "Stable Diffusion (Local)"
)

const nameMaxRunes = 50

// Resolution は画像の縦横ピクセル数です。
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AIImage は生成された1枚の画像とそのメタデータを表す履歴レコードです。
type AIImage struct {
	ID              int64      `json:"id,omitempty"`
	Name            string     `json:"name"`
	Prompt          string     `json:"prompt"`
	RefinedPrompt   string     `json:"refinedPrompt"`
	Translation     string     `json:"translation,omitempty"`
	Model           string     `json:"model"`
	CheckpointModel string     `json:"checkpointModel,omitempty"`
	Resolution      Resolution `json:"resolution"`
	Size            int64      `json:"size"`
	IsFavorite      bool       `json:"isFavorite"`
	Tags            []string   `json:"tags"`
	MimeType        string     `json:"mimeType,omitempty"`
	Data            []byte     `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// HasTag はタグが完全一致で含まれているかを返します。
func (img *AIImage) HasTag(tag string) bool {
	for _, t := range img.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ImageName はプロンプトから履歴表示用の名前を作ります。
// 50文字を超える場合は切り詰めて "..." を付けます。
func ImageName(prompt string) string {
	p := strings.TrimSpace(prompt)
	if utf8.RuneCountInString(p) <= nameMaxRunes {
		return p
	}
	runes := []rune(p)
	return string(runes[:nameMaxRunes]) + "..."
}

// ImageGenerationRequest は Gemini への単一の画像生成要求です。
type ImageGenerationRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	ReferenceURL   string
	Seed           *int64
}

// LocalGenerationRequest は Stable Diffusion 互換サーバーへの txt2img 要求です。
type LocalGenerationRequest struct {
	Prompt          string
	NegativePrompt  string
	Steps           int
	CFGScale        float64
	Width           int
	Height          int
	Seed            *int64
	CheckpointModel string
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
	UsedSeed int64 // 戻り値は情報欠落を防ぐため int64
}
