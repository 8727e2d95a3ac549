package domain

import (
	"strings"
	"time"
)

// Backend は画像生成の実行先です。
type Backend string

const (
	BackendGemini Backend = "gemini"
	BackendLocal  Backend = "local"
)

// BatchStatus はバッチ内の1プロンプトの処理状態です。
type BatchStatus string

const (
	StatusPending BatchStatus = "pending"
	StatusSuccess BatchStatus = "success"
	StatusFailed  BatchStatus = "failed"
)

// BatchState はバッチ全体の状態です。
type BatchState string

const (
	StateIdle      BatchState = "idle"
	StateRunning   BatchState = "running"
	StatePaused    BatchState = "paused"
	StateCompleted BatchState = "completed"
)

// LocalSettings はローカル Stable Diffusion 用の生成パラメータです。
type LocalSettings struct {
	Endpoint        string  `json:"endpoint"`
	CheckpointModel string  `json:"checkpointModel,omitempty"`
	NegativePrompt  string  `json:"negativePrompt,omitempty"`
	Steps           int     `json:"steps"`
	CFGScale        float64 `json:"cfgScale"`
}

// GeminiSettings は Gemini 用の生成パラメータです。
type GeminiSettings struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// BatchSettings はバッチ全体で共通の生成設定です。
type BatchSettings struct {
	Backend Backend        `json:"backend"`
	Local   LocalSettings  `json:"local"`
	Gemini  GeminiSettings `json:"gemini"`
}

// BatchItem はバッチ内の1プロンプト分の結果です。
type BatchItem struct {
	Index     int         `json:"index"`
	Prompt    string      `json:"prompt"`
	Status    BatchStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	ImageID   int64       `json:"imageId,omitempty"`
	Attempts  int         `json:"attempts"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BatchRun はチェックポイントとして永続化されるバッチ実行の全体です。
type BatchRun struct {
	ID        string        `json:"id"`
	Settings  BatchSettings `json:"settings"`
	Items     []BatchItem   `json:"items"`
	State     BatchState    `json:"state"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// BatchProgress は状態ごとの件数です。
type BatchProgress struct {
	Total   int
	Pending int
	Success int
	Failed  int
}

// Done は未処理のプロンプトが残っていないかを返します。
func (p BatchProgress) Done() bool {
	return p.Pending == 0
}

// Progress は各アイテムの状態を集計します。
func (r *BatchRun) Progress() BatchProgress {
	p := BatchProgress{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusSuccess:
			p.Success++
		case StatusFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	return p
}

// ParsePrompts は1行1プロンプトのテキストを分割します。
// 前後の空白は除去し、空行は捨てます。
func ParsePrompts(text string) []string {
	var prompts []string
	for _, line := range strings.Split(text, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts
}
