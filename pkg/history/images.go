package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// tagSeparator は GROUP_CONCAT でタグを連結するときの区切り (US 制御文字) です。
const tagSeparator = "\x1f"

const selectColumns = `
	i.id, i.name, i.prompt, i.refined_prompt, i.translation, i.model, i.checkpoint_model,
	i.width, i.height, i.size, i.is_favorite, i.mime_type, i.created_at,
	COALESCE((SELECT GROUP_CONCAT(tag, char(31)) FROM
		(SELECT tag FROM image_tags WHERE image_id = i.id ORDER BY position)), '')`

// Add は画像を1件保存し、採番された ID を img.ID に設定します。
func (s *Store) Add(ctx context.Context, img *domain.AIImage) (int64, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertImage(ctx, tx, img)
	})
	if err != nil {
		return 0, err
	}
	return img.ID, nil
}

// BulkAdd は複数の画像を1つのトランザクションで保存します。
func (s *Store) BulkAdd(ctx context.Context, imgs []*domain.AIImage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, img := range imgs {
			if err := insertImage(ctx, tx, img); err != nil {
				return fmt.Errorf("image #%d: %w", i, err)
			}
		}
		return nil
	})
}

func insertImage(ctx context.Context, tx *sql.Tx, img *domain.AIImage) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if len(img.Data) == 0 {
		return errors.New("image data is empty")
	}
	if img.Name == "" {
		img.Name = domain.ImageName(img.Prompt)
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	if img.Size == 0 {
		img.Size = int64(len(img.Data))
	}
	tags, err := normalizeTags(img.Tags)
	if err != nil {
		return err
	}
	img.Tags = tags

	res, err := tx.ExecContext(ctx, `
INSERT INTO images (name, prompt, refined_prompt, translation, model, checkpoint_model,
	width, height, size, is_favorite, mime_type, data, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.Name, img.Prompt, img.RefinedPrompt, img.Translation, img.Model, img.CheckpointModel,
		img.Resolution.Width, img.Resolution.Height, img.Size, boolToInt(img.IsFavorite),
		img.MimeType, img.Data, img.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	img.ID = id

	return insertTags(ctx, tx, id, img.Tags)
}

func insertTags(ctx context.Context, tx *sql.Tx, id int64, tags []string) error {
	for pos, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO image_tags (image_id, tag, position) VALUES (?, ?, ?)`, id, tag, pos); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

// Get は画像を本体のバイナリ込みで取得します。
func (s *Store) Get(ctx context.Context, id int64) (*domain.AIImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`, i.data FROM images i WHERE i.id = ?`, id)

	var data []byte
	img, err := scanImage(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	img.Data = data
	return img, nil
}

// Delete は画像とそのタグを削除します。
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM image_tags WHERE image_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, id)
	})
}

// Count は保存されている画像の件数を返します。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// ToggleFavorite はお気に入りを反転し、新しい状態を返します。
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	var fav int
	err := s.db.QueryRowContext(ctx,
		`UPDATE images SET is_favorite = 1 - is_favorite WHERE id = ? RETURNING is_favorite`, id).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("image %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	return fav == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner, extra ...any) (*domain.AIImage, error) {
	var (
		img       domain.AIImage
		fav       int
		createdAt int64
		tags      string
	)
	dest := []any{
		&img.ID, &img.Name, &img.Prompt, &img.RefinedPrompt, &img.Translation, &img.Model, &img.CheckpointModel,
		&img.Resolution.Width, &img.Resolution.Height, &img.Size, &fav, &img.MimeType, &createdAt, &tags,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	img.IsFavorite = fav == 1
	img.CreatedAt = time.Unix(0, createdAt)
	img.Tags = []string{}
	if tags != "" {
		img.Tags = strings.Split(tags, tagSeparator)
	}
	return &img, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("image %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
