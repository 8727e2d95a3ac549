package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/ai-canvas/pkg/domain"
	"github.com/shouni/ai-canvas/pkg/imgutil"
)

// exportRecord はエクスポートファイルの1要素です。バイナリは dataUrl に埋め込みます。
type exportRecord struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	Prompt          string            `json:"prompt"`
	RefinedPrompt   string            `json:"refinedPrompt"`
	Translation     string            `json:"translation,omitempty"`
	Model           string            `json:"model"`
	CheckpointModel string            `json:"checkpointModel,omitempty"`
	Resolution      domain.Resolution `json:"resolution"`
	Size            int64             `json:"size"`
	IsFavorite      flexBool          `json:"isFavorite"`
	Tags            []string          `json:"tags"`
	CreatedAt       time.Time         `json:"createdAt"`
	DataURL         string            `json:"dataUrl"`
}

// flexBool は true/false と 0/1 のどちらでも読み込めるのだ。
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// Export はすべての画像を dataUrl 付きの JSON 配列として w に書き出します。
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	imgs, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	if len(imgs) == 0 {
		return 0, domain.ErrEmptyHistory
	}

	records := make([]exportRecord, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, img := range imgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = exportRecord{
				ID:              img.ID,
				Name:            img.Name,
				Prompt:          img.Prompt,
				RefinedPrompt:   img.RefinedPrompt,
				Translation:     img.Translation,
				Model:           img.Model,
				CheckpointModel: img.CheckpointModel,
				Resolution:      img.Resolution,
				Size:            img.Size,
				IsFavorite:      flexBool(img.IsFavorite),
				Tags:            img.Tags,
				CreatedAt:       img.CreatedAt,
				DataURL:         imgutil.EncodeDataURL(img.MimeType, img.Data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(records), nil
}

func (s *Store) all(ctx context.Context) ([]*domain.AIImage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`, i.data FROM images i ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AIImage
	for rows.Next() {
		var data []byte
		img, err := scanImage(rows, &data)
		if err != nil {
			return nil, err
		}
		img.Data = data
		out = append(out, img)
	}
	return out, rows.Err()
}

// Import はエクスポートファイルを読み込み、新しい ID で全件を1トランザクションで追加します。
// 1件でも不正なら何も書き込みません。
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var records []exportRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidExport, err)
	}

	imgs := make([]*domain.AIImage, 0, len(records))
	for i, rec := range records {
		img, err := rec.toImage()
		if err != nil {
			return 0, fmt.Errorf("%w: record #%d: %v", domain.ErrInvalidExport, i, err)
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return 0, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, img := range imgs {
			if err := insertImage(ctx, tx, img); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(imgs), nil
}

func (rec exportRecord) toImage() (*domain.AIImage, error) {
	if rec.DataURL == "" {
		return nil, fmt.Errorf("dataUrl is missing")
	}
	mimeType, data, err := imgutil.DecodeDataURL(rec.DataURL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("dataUrl has no data")
	}
	tags, err := normalizeTags(rec.Tags)
	if err != nil {
		return nil, err
	}

	img := &domain.AIImage{
		Name:            rec.Name,
		Prompt:          rec.Prompt,
		RefinedPrompt:   rec.RefinedPrompt,
		Translation:     rec.Translation,
		Model:           rec.Model,
		CheckpointModel: rec.CheckpointModel,
		Resolution:      rec.Resolution,
		Size:            rec.Size,
		IsFavorite:      bool(rec.IsFavorite),
		Tags:            tags,
		MimeType:        mimeType,
		Data:            data,
		CreatedAt:       rec.CreatedAt,
	}
	if img.Resolution.Width == 0 || img.Resolution.Height == 0 {
		if meta, err := imgutil.DecodeMetadata(data); err == nil {
			img.Resolution = domain.Resolution{Width: meta.Width, Height: meta.Height}
		}
	}
	if img.Size == 0 {
		img.Size = int64(len(data))
	}
	return img, nil
}
