package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/config"
)

type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	logWriter  io.Writer
}

// newRootCmd はルートコマンドと、開いたストアを閉じる関数を返します。
func newRootCmd() (*cobra.Command, func() error) {
	opts := &rootOptions{logWriter: os.Stderr}
	var a *app

	root := &cobra.Command{
		Use:           "ai-canvas",
		Short:         "Generate, browse and batch-produce AI images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.dataDir != "" {
				cfg.Storage.DataDir = opts.dataDir
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			slog.SetDefault(newLogger(opts.logWriter, cfg))

			a, err = newApp(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file (YAML)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override storage.data_dir")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	appFn := func() *app { return a }
	root.AddCommand(
		newGenerateCmd(appFn),
		newRefineCmd(appFn),
		newPromptsCmd(appFn),
		newCheckpointCmd(appFn),
		newHistoryCmd(appFn),
		newBatchCmd(appFn),
	)
	closeFn := func() error {
		if a == nil {
			return nil
		}
		err := a.Close()
		a = nil
		return err
	}
	return root, closeFn
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
