package generator

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// FileReader はローカルファイルの参照画像を読む remoteio.InputReader です。
// "file://" 付きのパスも受け付けます。
type FileReader struct{}

// Open はファイルを開きます。
func (FileReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(localPath(uri))
	if err != nil {
		return nil, fmt.Errorf("参照画像を開けませんでした: %w", err)
	}
	return f, nil
}

// List は uri 以下の通常ファイルのパスを順に fn へ渡します。
func (FileReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return filepath.WalkDir(localPath(uri), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return fn(path)
	})
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

var _ remoteio.InputReader = FileReader{}
