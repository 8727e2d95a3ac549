package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shouni/ai-canvas/pkg/history"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid image id %q", s)
	}
	return id, nil
}

func addQueryFlags(cmd *cobra.Command, q *history.Query) {
	cmd.Flags().StringVar(&q.Tag, "tag", "", "only images with this exact tag")
	cmd.Flags().BoolVar(&q.FavoritesOnly, "favorites", false, "only favorite images")
	cmd.Flags().StringVar(&q.Model, "model", "", "only images from this model")
	cmd.Flags().StringVar(&q.CheckpointModel, "checkpoint", "", "only images from this checkpoint")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum number of images (0 = all)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "skip this many images")
}

func newHistoryCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"h"},
		Short:   "Browse, tag and export the image history",
	}

	var listQuery history.Query
	list := &cobra.Command{
		Use:   "list",
		Short: "List images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imgs, err := appFn().history.Search(cmd.Context(), listQuery)
			if err != nil {
				return err
			}
			printImages(cmd.OutOrStdout(), imgs)
			return nil
		},
	}
	addQueryFlags(list, &listQuery)

	var searchQuery history.Query
	search := &cobra.Command{
		Use:   "search <term>",
		Short: "Search by name (substring) or tag (exact), case-insensitive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchQuery.Term = args[0]
			imgs, err := appFn().history.Search(cmd.Context(), searchQuery)
			if err != nil {
				return err
			}
			printImages(cmd.OutOrStdout(), imgs)
			return nil
		},
	}
	addQueryFlags(search, &searchQuery)

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the details of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			img, err := appFn().history.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printImageDetail(cmd.OutOrStdout(), img)
			return nil
		},
	}

	save := &cobra.Command{
		Use:   "save <id> <file>",
		Short: "Write the image to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			img, err := appFn().history.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeImageFile(args[1], img)
		},
	}

	fav := &cobra.Command{
		Use:   "fav <id>",
		Short: "Toggle the favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			on, err := appFn().history.ToggleFavorite(cmd.Context(), id)
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d added to favorites\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d removed from favorites\n", id)
			}
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				if err := appFn().history.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d\n", id)
			}
			return nil
		},
	}

	tags := &cobra.Command{
		Use:   "tags",
		Short: "List tags with their image counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := appFn().history.Tags(cmd.Context())
			if err != nil {
				return err
			}
			printTags(cmd.OutOrStdout(), list)
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export <file|->",
		Short: "Export the whole history as JSON with embedded images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := appFn().history.Export(cmd.Context(), w)
			if err != nil {
				return err
			}
			if args[0] != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d images to %s\n", n, args[0])
			}
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import images from an export file (new IDs are assigned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			n, err := appFn().history.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d images\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, search, show, save, fav, rm, tags, export, importCmd, newTagCmd(appFn))
	return cmd
}

func newTagCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Add or remove tags",
	}

	add := &cobra.Command{
		Use:   "add <id> <tag>...",
		Short: "Add tags to an image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			for _, tag := range args[1:] {
				if err := appFn().history.AddTag(cmd.Context(), id, tag); err != nil {
					return err
				}
			}
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id> <tag>...",
		Short: "Remove tags from an image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			img, err := appFn().history.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, tag := range args[1:] {
				if !img.HasTag(tag) {
					fmt.Fprintf(cmd.OutOrStdout(), "#%d has no tag %q\n", id, tag)
					continue
				}
				if err := appFn().history.RemoveTag(cmd.Context(), id, tag); err != nil {
					return err
				}
			}
			return nil
		},
	}

	var replace []string
	set := &cobra.Command{
		Use:   "set <id>",
		Short: "Replace all tags of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return appFn().history.SetTags(cmd.Context(), id, replace)
		},
	}
	set.Flags().StringSliceVar(&replace, "tags", nil, "comma separated tags (empty clears)")

	cmd.AddCommand(add, rm, set)
	return cmd
}
