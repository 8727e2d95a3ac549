package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/domain"
)

func newBatchCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run resumable batch generations over prompt lists",
		Long: `Generate one image per prompt, in order. Progress is saved after every prompt.
Press Ctrl+C to pause; the interrupted prompt stays pending and the run can be resumed.`,
	}
	cmd.AddCommand(
		newBatchStartCmd(appFn),
		newBatchContinueCmd(appFn, "resume", "Resume a paused batch run", false),
		newBatchContinueCmd(appFn, "retry", "Retry the failed prompts of a batch run", true),
		newBatchStatusCmd(appFn),
		newBatchListCmd(appFn),
		newBatchRmCmd(appFn),
	)
	return cmd
}

func newBatchStartCmd(appFn func() *app) *cobra.Command {
	var (
		file      string
		fromSaved bool
		backend   string
		settings  domain.BatchSettings
	)
	cmd := &cobra.Command{
		Use:   "start [prompt]...",
		Short: "Start a batch run",
		Example: `  ai-canvas batch start --file prompts.txt --backend local --steps 30
  ai-canvas batch start --from-saved --backend gemini --aspect-ratio 16:9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			prompts := append([]string(nil), args...)
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				prompts = append(prompts, string(data))
			}
			if fromSaved {
				saved, err := a.kv.LoadPrompts()
				if err != nil {
					return err
				}
				prompts = append(prompts, saved...)
			}

			settings.Backend = domain.Backend(backend)
			if settings.Backend == domain.BackendGemini {
				if err := a.requireGemini(); err != nil {
					return err
				}
			}
			if settings.Local.Endpoint == "" {
				settings.Local.Endpoint = a.cfg.Local.Endpoint
			}
			if settings.Local.Steps == 0 {
				settings.Local.Steps = a.cfg.Local.Steps
			}
			if settings.Local.CFGScale == 0 {
				settings.Local.CFGScale = a.cfg.Local.CFGScale
			}
			if settings.Local.NegativePrompt == "" {
				settings.Local.NegativePrompt = a.cfg.Local.NegativePrompt
			}
			if settings.Local.CheckpointModel == "" {
				settings.Local.CheckpointModel = a.cfg.Local.CheckpointModel
			}

			run, err := a.runner.Start(cmd.Context(), prompts, settings)
			if run != nil {
				printBatchSummary(cmd.OutOrStdout(), run)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one prompt per line")
	cmd.Flags().BoolVar(&fromSaved, "from-saved", false, "use the prompts saved by 'prompts from-doc'")
	cmd.Flags().StringVar(&backend, "backend", string(domain.BackendLocal), "gemini or local")
	cmd.Flags().StringVar(&settings.Gemini.AspectRatio, "aspect-ratio", "", "Gemini aspect ratio")
	cmd.Flags().StringVar(&settings.Local.Endpoint, "endpoint", "", "txt2img endpoint (default from config)")
	cmd.Flags().StringVar(&settings.Local.CheckpointModel, "checkpoint", "", "checkpoint model")
	cmd.Flags().StringVar(&settings.Local.NegativePrompt, "negative", "", "negative prompt")
	cmd.Flags().IntVar(&settings.Local.Steps, "steps", 0, "sampling steps")
	cmd.Flags().Float64Var(&settings.Local.CFGScale, "cfg", 0, "CFG scale")
	return cmd
}

func newBatchContinueCmd(appFn func() *app, use, short string, retry bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			run, err := a.runner.Load(args[0])
			if err != nil {
				return err
			}
			if run.Settings.Backend == domain.BackendGemini {
				if err := a.requireGemini(); err != nil {
					return err
				}
			}

			if retry {
				run, err = a.runner.RetryFailed(cmd.Context(), args[0])
			} else {
				run, err = a.runner.Resume(cmd.Context(), args[0])
			}
			if run != nil {
				printBatchSummary(cmd.OutOrStdout(), run)
			}
			return err
		},
	}
}

func newBatchStatusCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the per-prompt status of a batch run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := appFn().runner.Load(args[0])
			if err != nil {
				return err
			}
			printBatchDetail(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func newBatchListCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := appFn().runner.List()
			if err != nil {
				return err
			}
			printBatchRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func newBatchRmCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a saved batch run (its images stay in the history)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().runner.Delete(args[0]); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no batch run %s", args[0])
				}
				return err
			}
			return nil
		},
	}
}
