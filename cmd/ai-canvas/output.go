package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/shouni/ai-canvas/pkg/domain"
	"github.com/shouni/ai-canvas/pkg/history"
)

func printImageSaved(w io.Writer, img *domain.AIImage) {
	fmt.Fprintf(w, "saved #%d %q (%dx%d, %s, %s)\n",
		img.ID, img.Name, img.Resolution.Width, img.Resolution.Height, humanize.Bytes(uint64(img.Size)), img.Model)
}

func printImages(w io.Writer, imgs []*domain.AIImage) {
	if len(imgs) == 0 {
		fmt.Fprintln(w, "no images")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAV\tNAME\tMODEL\tSIZE\tRESOLUTION\tTAGS\tCREATED")
	for _, img := range imgs {
		fav := ""
		if img.IsFavorite {
			fav = "★"
		}
		model := img.Model
		if img.CheckpointModel != "" {
			model += " / " + img.CheckpointModel
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%dx%d\t%s\t%s\n",
			img.ID, fav, img.Name, model, humanize.Bytes(uint64(img.Size)),
			img.Resolution.Width, img.Resolution.Height, strings.Join(img.Tags, ","), humanize.Time(img.CreatedAt))
	}
	tw.Flush()
}

func printImageDetail(w io.Writer, img *domain.AIImage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("ID", fmt.Sprint(img.ID))
	row("Name", img.Name)
	row("Prompt", img.Prompt)
	row("Refined prompt", img.RefinedPrompt)
	row("Translation", img.Translation)
	row("Model", img.Model)
	row("Checkpoint", img.CheckpointModel)
	row("Resolution", fmt.Sprintf("%dx%d", img.Resolution.Width, img.Resolution.Height))
	row("Size", fmt.Sprintf("%s (%s bytes)", humanize.Bytes(uint64(img.Size)), humanize.Comma(img.Size)))
	row("Type", img.MimeType)
	row("Favorite", fmt.Sprint(img.IsFavorite))
	row("Tags", strings.Join(img.Tags, ", "))
	row("Created", fmt.Sprintf("%s (%s)", img.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(img.CreatedAt)))
	tw.Flush()
}

func printTags(w io.Writer, tags []history.TagCount) {
	if len(tags) == 0 {
		fmt.Fprintln(w, "no tags")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%d\n", t.Tag, t.Count)
	}
	tw.Flush()
}

func printBatchItem(w io.Writer, run domain.BatchRun, item domain.BatchItem) {
	p := run.Progress()
	done := p.Success + p.Failed
	switch item.Status {
	case domain.StatusSuccess:
		fmt.Fprintf(w, "[%d/%d] ✓ %s (image #%d)\n", done, p.Total, item.Prompt, item.ImageID)
	case domain.StatusFailed:
		fmt.Fprintf(w, "[%d/%d] ✗ %s: %s\n", done, p.Total, item.Prompt, item.Error)
	}
}

func printBatchSummary(w io.Writer, run *domain.BatchRun) {
	p := run.Progress()
	fmt.Fprintf(w, "batch %s: %s (success %d, failed %d, pending %d of %d)\n",
		run.ID, run.State, p.Success, p.Failed, p.Pending, p.Total)
	switch {
	case run.State == domain.StatePaused:
		fmt.Fprintf(w, "resume with: ai-canvas batch resume %s\n", run.ID)
	case run.State == domain.StateCompleted && p.Failed > 0:
		fmt.Fprintf(w, "retry failed prompts with: ai-canvas batch retry %s\n", run.ID)
	}
}

func printBatchDetail(w io.Writer, run *domain.BatchRun) {
	printBatchSummary(w, run)
	fmt.Fprintf(w, "backend: %s, created %s\n", run.Settings.Backend, humanize.Time(run.CreatedAt))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tIMAGE\tPROMPT\tERROR")
	for _, it := range run.Items {
		img := ""
		if it.ImageID != 0 {
			img = fmt.Sprint(it.ImageID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", it.Index+1, it.Status, img, it.Prompt, it.Error)
	}
	tw.Flush()
}

func printBatchRuns(w io.Writer, runs []*domain.BatchRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no batch runs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBACKEND\tSTATE\tPROGRESS\tCREATED")
	for _, run := range runs {
		p := run.Progress()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d (%d failed)\t%s\n",
			run.ID, run.Settings.Backend, run.State, p.Success+p.Failed, p.Total, p.Failed, humanize.Time(run.CreatedAt))
	}
	tw.Flush()
}
