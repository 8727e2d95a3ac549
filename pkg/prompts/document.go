package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// ReadDocument はプレーンテキストか Markdown の文書だけを読み込みます。
func ReadDocument(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedDocument, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("文書の読み込みに失敗しました: %w", err)
	}
	return string(data), nil
}
