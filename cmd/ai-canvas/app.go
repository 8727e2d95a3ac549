package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shouni/ai-canvas/pkg/aiclient"
	"github.com/shouni/ai-canvas/pkg/batch"
	"github.com/shouni/ai-canvas/pkg/config"
	"github.com/shouni/ai-canvas/pkg/domain"
	"github.com/shouni/ai-canvas/pkg/generator"
	"github.com/shouni/ai-canvas/pkg/history"
	"github.com/shouni/ai-canvas/pkg/imgcache"
	"github.com/shouni/ai-canvas/pkg/localstore"
	"github.com/shouni/ai-canvas/pkg/prompts"
	"github.com/shouni/ai-canvas/pkg/sdapi"
	"github.com/shouni/ai-canvas/pkg/studio"
)

var errNoGeminiKey = errors.New("Gemini API key is not set (GEMINI_API_KEY or gemini.api_key)")

// app はコマンドが共有する依存関係をまとめたものです。
type app struct {
	cfg     *config.Config
	history *history.Store
	kv      *localstore.Store
	disk    *imgcache.Disk
	sd      *sdapi.Client
	refiner *prompts.Refiner
	studio  *studio.Studio
	runner  *batch.Runner
	out     io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	hist, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	kv, err := localstore.Open(ctx, cfg.LocalStorePath())
	if err != nil {
		hist.Close()
		return nil, err
	}
	a := &app{cfg: cfg, history: hist, kv: kv, out: out}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	sd, err := newLocalClient(cfg.Local.Endpoint, cfg)
	if err != nil {
		return err
	}
	a.sd = sd

	sc := studio.Config{
		Local: sd,
		LocalFactory: func(endpoint string) (studio.LocalGenerator, error) {
			c, err := newLocalClient(endpoint, cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Repository: a.history,
		LocalDefaults: domain.LocalSettings{
			Endpoint:        cfg.Local.Endpoint,
			CheckpointModel: cfg.Local.CheckpointModel,
			NegativePrompt:  cfg.Local.NegativePrompt,
			Steps:           cfg.Local.Steps,
			CFGScale:        cfg.Local.CFGScale,
		},
	}

	if cfg.HasGeminiKey() {
		gc, err := aiclient.NewClient(ctx, aiclient.Config{
			APIKey:            cfg.Gemini.APIKey,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
			MaxRetries:        cfg.Gemini.MaxRetries,
		})
		if err != nil {
			return err
		}
		ttl := cfg.Gemini.ReferenceCacheTTL
		core, err := generator.NewGeminiImageCore(gc, generator.FileReader{}, generator.NewHTTPFetcher(cfg.Gemini.ReferenceTimeout), a.referenceCache(ctx, ttl), ttl)
		if err != nil {
			return err
		}
		gen, err := generator.NewGeminiGenerator(core, cfg.Gemini.ImageModel)
		if err != nil {
			return err
		}
		refiner, err := prompts.NewRefiner(gc, cfg.Gemini.TextModel)
		if err != nil {
			return err
		}
		a.refiner = refiner
		sc.Gemini = gen
		sc.Refiner = refiner
	}

	st, err := studio.New(sc)
	if err != nil {
		return err
	}
	a.studio = st

	a.runner, err = batch.NewRunner(st, a.kv, batch.WithProgress(func(run domain.BatchRun, item domain.BatchItem) {
		printBatchItem(a.out, run, item)
	}))
	return err
}

// referenceCache はディスクキャッシュを開けなければメモリキャッシュだけで続行します。
// 別のプロセスがキャッシュを使用中の場合がこれにあたります。
func (a *app) referenceCache(ctx context.Context, ttl time.Duration) *imgcache.Tiered {
	disk, err := imgcache.OpenDisk(a.cfg.CacheDir())
	if err != nil {
		slog.WarnContext(ctx, "参照画像のディスクキャッシュを開けないため、メモリキャッシュのみを使います", "dir", a.cfg.CacheDir(), "error", err)
		disk = nil
	}
	a.disk = disk
	return imgcache.NewTiered(generator.NewImageCache(ttl), disk)
}

func newLocalClient(endpoint string, cfg *config.Config) (*sdapi.Client, error) {
	return sdapi.New(endpoint, sdapi.WithTimeout(cfg.Local.Timeout))
}

func (a *app) requireGemini() error {
	if a.refiner == nil {
		return errNoGeminiKey
	}
	return nil
}

// Close はストアを閉じます。
func (a *app) Close() error {
	var errs []error
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close local store: %w", err))
		}
	}
	if a.disk != nil {
		if err := a.disk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close image cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
