// Command ai-canvas は Gemini とローカル Stable Diffusion で画像を生成し、
// 検索・タグ付けできる履歴に保存する CLI です。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Ctrl+C で実行中のバッチは一時停止として保存される
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
