package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// TagCount はタグとそれが付いている画像数です。
type TagCount struct {
	Tag   string
	Count int
}

// AddTag は画像にタグを追加します。前後の空白は取り除き、同じタグがあれば何もしません。
func (s *Store) AddTag(ctx context.Context, id int64, tag string) error {
	tag, err := cleanTag(tag)
	if err != nil {
		return err
	}
	if tag == "" {
		return fmt.Errorf("tag must not be empty: %w", domain.ErrInvalidTag)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := imageExists(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO image_tags (image_id, tag, position)
VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM image_tags WHERE image_id = ?))`, id, tag, id)
		return err
	})
}

// RemoveTag は画像からタグを取り除きます。
func (s *Store) RemoveTag(ctx context.Context, id int64, tag string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := imageExists(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM image_tags WHERE image_id = ? AND tag = ?`, id, tag)
		return err
	})
}

// SetTags は画像のタグをまとめて置き換えます。
func (s *Store) SetTags(ctx context.Context, id int64, tags []string) error {
	tags, err := normalizeTags(tags)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := imageExists(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM image_tags WHERE image_id = ?`, id); err != nil {
			return err
		}
		return insertTags(ctx, tx, id, tags)
	})
}

// Tags は使われているタグを件数の多い順に返します。
func (s *Store) Tags(ctx context.Context) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, COUNT(*) AS n FROM image_tags GROUP BY tag ORDER BY n DESC, tag ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func imageExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM images WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("image %d: %w", id, domain.ErrNotFound)
	}
	return err
}

// cleanTag は前後の空白を除去します。制御文字を含むタグは受け付けないのだ。
// 制御文字 (特に \x1f) はタグ一覧の連結時の区切りに使っているため。
func cleanTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if strings.IndexFunc(tag, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("tag %q contains a control character: %w", tag, domain.ErrInvalidTag)
	}
	return tag, nil
}

// normalizeTags は空白を除去し、空と重複を取り除くのだ。
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t, err := cleanTag(t)
		if err != nil {
			return nil, err
		}
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
