package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/domain"
	"github.com/shouni/ai-canvas/pkg/studio"
)

func newGenerateCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an image and store it in the history",
	}
	cmd.AddCommand(newGenerateGeminiCmd(appFn), newGenerateLocalCmd(appFn))
	return cmd
}

func newGenerateGeminiCmd(appFn func() *app) *cobra.Command {
	var (
		in     studio.GeminiInput
		seed   int64
		refine bool
		out    string
	)
	cmd := &cobra.Command{
		Use:   "gemini <prompt>",
		Short: "Generate an image with Gemini",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireGemini(); err != nil {
				return err
			}
			ctx := cmd.Context()
			in.Prompt = strings.Join(args, " ")
			if cmd.Flags().Changed("seed") {
				in.Seed = &seed
			}
			if refine {
				refined, err := a.studio.Refine(ctx, in.Prompt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refined prompt: %s\n", refined)
				in.OriginalPrompt = in.Prompt
				in.Prompt = refined
			}

			img, err := a.studio.GenerateGemini(ctx, in)
			if err != nil {
				return err
			}
			printImageSaved(cmd.OutOrStdout(), img)
			return writeImageFile(out, img)
		},
	}
	cmd.Flags().StringVar(&in.AspectRatio, "aspect-ratio", "", "aspect ratio such as 1:1, 16:9, 9:16")
	cmd.Flags().StringVar(&in.NegativePrompt, "negative", "", "things to avoid")
	cmd.Flags().StringVar(&in.ReferenceURL, "ref", "", "reference image URL or local file path")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed")
	cmd.Flags().BoolVar(&refine, "refine", false, "refine the prompt before generating")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the image to this file")
	return cmd
}

func newGenerateLocalCmd(appFn func() *app) *cobra.Command {
	var (
		in   studio.LocalInput
		seed int64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "local <prompt>",
		Short: "Generate an image with the local Stable Diffusion server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			in.Prompt = strings.Join(args, " ")
			if cmd.Flags().Changed("seed") {
				in.Seed = &seed
			}
			img, err := a.studio.GenerateLocal(cmd.Context(), in)
			if err != nil {
				return err
			}
			printImageSaved(cmd.OutOrStdout(), img)
			return writeImageFile(out, img)
		},
	}
	cmd.Flags().StringVar(&in.NegativePrompt, "negative", "", "negative prompt (default from config)")
	cmd.Flags().IntVar(&in.Steps, "steps", 0, "sampling steps (default from config)")
	cmd.Flags().Float64Var(&in.CFGScale, "cfg", 0, "CFG scale (default from config)")
	cmd.Flags().IntVar(&in.Width, "width", 0, "width in pixels (default 512)")
	cmd.Flags().IntVar(&in.Height, "height", 0, "height in pixels (default 512)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed (random when omitted)")
	cmd.Flags().StringVar(&in.CheckpointModel, "checkpoint", "", "checkpoint model to use")
	cmd.Flags().StringVar(&in.Endpoint, "endpoint", "", "txt2img endpoint (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the image to this file")
	return cmd
}

func newRefineCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refine <prompt>",
		Short: "Make a prompt more specific, descriptive and creative",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireGemini(); err != nil {
				return err
			}
			refined, err := a.studio.Refine(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), refined)
			return nil
		},
	}
}

func writeImageFile(path string, img *domain.AIImage) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}
