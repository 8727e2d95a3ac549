package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/prompts"
)

func newPromptsCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Generate and manage saved prompts",
	}

	var noSave bool
	fromDoc := &cobra.Command{
		Use:   "from-doc <file.txt|file.md>",
		Short: "Generate 5-10 image prompts from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if err := a.requireGemini(); err != nil {
				return err
			}
			content, err := prompts.ReadDocument(args[0])
			if err != nil {
				return err
			}
			list, err := a.refiner.FromDocument(cmd.Context(), content)
			if err != nil {
				return err
			}
			for i, p := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p)
			}
			if noSave {
				return nil
			}
			return a.kv.SavePrompts(cmd.Context(), list)
		},
	}
	fromDoc.Flags().BoolVar(&noSave, "no-save", false, "do not keep the prompts for a later batch")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the saved prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := appFn().kv.LoadPrompts()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no saved prompts")
				return nil
			}
			for _, p := range list {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the saved prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFn().kv.SavePrompts(cmd.Context(), nil)
		},
	}

	cmd.AddCommand(fromDoc, show, clearCmd)
	return cmd
}
