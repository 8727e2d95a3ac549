package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/sdapi"
)

func newCheckpointCmd(appFn func() *app) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect checkpoint models of the local server",
	}
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "txt2img endpoint (default from config)")

	client := func() (*sdapi.Client, error) {
		a := appFn()
		if endpoint == "" {
			return a.sd, nil
		}
		return newLocalClient(endpoint, a.cfg)
	}

	current := &cobra.Command{
		Use:   "current",
		Short: "Show the checkpoint currently loaded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			name, err := c.CurrentCheckpoint(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the checkpoints known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			models, err := c.ListCheckpoints(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TITLE\tNAME\tHASH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Title, m.ModelName, m.Hash)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(current, list)
	return cmd
}
