// Package batch はプロンプトの一覧を1件ずつ順番に生成するバッチ実行を扱います。
// 進捗は1件ごとにチェックポイントとして保存され、一時停止・再開・失敗分の再試行ができます。
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/ai-canvas/pkg/domain"
)

const keyPrefix = "batch/"

var (
	// ErrRunActive は同じバッチがすでに実行中であることを示します。
	ErrRunActive = errors.New("batch run is already active")
	// ErrRunNotActive は一時停止しようとしたバッチが実行されていないことを示します。
	ErrRunNotActive = errors.New("batch run is not active")
)

// Producer は1プロンプト分の画像を生成して履歴に保存します。
type Producer interface {
	GenerateForBatch(ctx context.Context, settings domain.BatchSettings, prompt string) (*domain.AIImage, error)
}

// CheckpointStore はバッチのチェックポイントを保存するキーバリューストアです。
type CheckpointStore interface {
	Get(key string, out any) error
	Set(key string, v any) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// ProgressFunc は1件処理するたびに呼ばれます。run は呼び出し時点のコピーです。
type ProgressFunc func(run domain.BatchRun, item domain.BatchItem)

// Runner はバッチ実行を管理します。
type Runner struct {
	producer   Producer
	store      CheckpointStore
	onProgress ProgressFunc
	now        func() time.Time
	newID      func() string

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option は Runner の設定を変更します。
type Option func(*Runner)

// WithProgress は進捗コールバックを設定します。
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.onProgress = fn }
}

// NewRunner は Runner を初期化するのだ。
func NewRunner(producer Producer, store CheckpointStore, opts ...Option) (*Runner, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	r := &Runner{
		producer: producer,
		store:    store,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create は全件 pending のバッチを作成して保存します。実行はしません。
func (r *Runner) Create(prompts []string, settings domain.BatchSettings) (*domain.BatchRun, error) {
	var items []domain.BatchItem
	for _, p := range prompts {
		for _, line := range domain.ParsePrompts(p) {
			items = append(items, domain.BatchItem{Index: len(items), Prompt: line, Status: domain.StatusPending})
		}
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyPrompt
	}
	switch settings.Backend {
	case domain.BackendGemini, domain.BackendLocal:
	default:
		return nil, fmt.Errorf("unknown backend %q", settings.Backend)
	}

	now := r.now()
	run := &domain.BatchRun{
		ID:        r.newID(),
		Settings:  settings,
		Items:     items,
		State:     domain.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.save(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Start はバッチを作成して最後まで (または一時停止されるまで) 実行します。
func (r *Runner) Start(ctx context.Context, prompts []string, settings domain.BatchSettings) (*domain.BatchRun, error) {
	run, err := r.Create(prompts, settings)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "バッチを開始します", "id", run.ID, "backend", settings.Backend, "prompts", len(run.Items))
	return r.Run(ctx, run.ID)
}

// Resume は一時停止したバッチの残りを実行します。
func (r *Runner) Resume(ctx context.Context, id string) (*domain.BatchRun, error) {
	return r.Run(ctx, id)
}

// RetryFailed は失敗したプロンプトを pending に戻してから実行します。
func (r *Runner) RetryFailed(ctx context.Context, id string) (*domain.BatchRun, error) {
	if err := r.acquire(id, func() {}); err != nil {
		return nil, err
	}
	run, err := r.Load(id)
	if err == nil {
		reset := 0
		for i := range run.Items {
			if run.Items[i].Status == domain.StatusFailed {
				run.Items[i].Status = domain.StatusPending
				run.Items[i].Error = ""
				reset++
			}
		}
		if reset > 0 && run.State == domain.StateCompleted {
			run.State = domain.StatePaused
		}
		err = r.save(run)
		slog.InfoContext(ctx, "失敗したプロンプトを再試行します", "id", id, "count", reset)
	}
	r.release(id)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, id)
}

// Run はバッチの pending なプロンプトを順番に生成します。
// ctx のキャンセルや Pause で止まった場合、処理中だったプロンプトは pending のまま残り、
// バッチは paused になります。
func (r *Runner) Run(ctx context.Context, id string) (*domain.BatchRun, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.acquire(id, cancel); err != nil {
		return nil, err
	}
	defer r.release(id)

	run, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	if run.Progress().Done() {
		run.State = domain.StateCompleted
		return run, r.save(run)
	}

	run.State = domain.StateRunning
	if err := r.save(run); err != nil {
		return nil, err
	}

	var stopErr error
	interrupted := false
	for i := range run.Items {
		item := &run.Items[i]
		if item.Status != domain.StatusPending {
			continue
		}
		if runCtx.Err() != nil {
			interrupted = true
			break
		}

		img, genErr := r.producer.GenerateForBatch(runCtx, run.Settings, item.Prompt)
		if genErr != nil && runCtx.Err() != nil {
			// 中断による失敗は失敗扱いにしない
			interrupted = true
			break
		}
		if errors.Is(genErr, domain.ErrQuotaExceeded) {
			// 以降もすべて失敗するので止める
			stopErr = genErr
			interrupted = true
			break
		}

		item.Attempts++
		item.UpdatedAt = r.now()
		if genErr != nil {
			item.Status = domain.StatusFailed
			item.Error = genErr.Error()
			slog.WarnContext(ctx, "バッチのプロンプトが失敗しました", "id", id, "index", item.Index, "error", genErr)
		} else {
			item.Status = domain.StatusSuccess
			item.Error = ""
			item.ImageID = img.ID
		}

		run.UpdatedAt = item.UpdatedAt
		if err := r.save(run); err != nil {
			return run, err
		}
		r.notify(run, *item)
	}

	if interrupted {
		run.State = domain.StatePaused
	} else {
		run.State = domain.StateCompleted
	}
	run.UpdatedAt = r.now()
	if err := r.save(run); err != nil {
		return run, err
	}

	p := run.Progress()
	slog.InfoContext(ctx, "バッチを終了しました", "id", id, "state", run.State, "success", p.Success, "failed", p.Failed, "pending", p.Pending)
	if stopErr != nil {
		return run, fmt.Errorf("batch %s paused: %w", id, stopErr)
	}
	return run, nil
}

// Pause は実行中のバッチを現在のプロンプトの後で停止させます。
func (r *Runner) Pause(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.active[id]
	if !ok {
		return ErrRunNotActive
	}
	cancel()
	return nil
}

// IsActive はバッチがこのプロセスで実行中かを返します。
func (r *Runner) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Load は保存されたバッチを読み込みます。
// running のまま保存されているものは、実行中でなければ paused として返します。
func (r *Runner) Load(id string) (*domain.BatchRun, error) {
	var run domain.BatchRun
	if err := r.store.Get(keyPrefix+id, &run); err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}
	if run.State == domain.StateRunning && !r.IsActive(id) {
		run.State = domain.StatePaused
	}
	return &run, nil
}

// List は保存されているバッチを作成日時の新しい順に返します。
func (r *Runner) List() ([]*domain.BatchRun, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	runs := make([]*domain.BatchRun, 0, len(keys))
	for _, key := range keys {
		run, err := r.Load(key[len(keyPrefix):])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	slices.SortStableFunc(runs, func(a, b *domain.BatchRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return runs, nil
}

// Delete は保存されたバッチを削除します。実行中なら削除しません。
func (r *Runner) Delete(id string) error {
	if r.IsActive(id) {
		return ErrRunActive
	}
	if _, err := r.Load(id); err != nil {
		return err
	}
	return r.store.Delete(keyPrefix + id)
}

func (r *Runner) acquire(id string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("batch %s: %w", id, ErrRunActive)
	}
	r.active[id] = cancel
	return nil
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func (r *Runner) save(run *domain.BatchRun) error {
	if err := r.store.Set(keyPrefix+run.ID, run); err != nil {
		return fmt.Errorf("save batch checkpoint: %w", err)
	}
	return nil
}

func (r *Runner) notify(run *domain.BatchRun, item domain.BatchItem) {
	if r.onProgress == nil {
		return
	}
	snapshot := *run
	snapshot.Items = append([]domain.BatchItem(nil), run.Items...)
	r.onProgress(snapshot, item)
}
