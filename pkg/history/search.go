package history

import (
	"context"
	"strings"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// Query は履歴検索の条件です。ゼロ値はすべての画像に一致します。
type Query struct {
	// Term は名前の部分一致、またはタグの完全一致 (大文字小文字を区別しない) で絞り込みます。
	Term            string
	Tag             string
	FavoritesOnly   bool
	Model           string
	CheckpointModel string
	Limit           int
	Offset          int
}

// Search は条件に一致する画像を新しい順に返します。本体のバイナリは含みません。
func (s *Store) Search(ctx context.Context, q Query) ([]*domain.AIImage, error) {
	var (
		where []string
		args  []any
	)
	if q.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM image_tags t WHERE t.image_id = i.id AND t.tag = ?)`)
		args = append(args, q.Tag)
	}
	if q.FavoritesOnly {
		where = append(where, `i.is_favorite = 1`)
	}
	if q.Model != "" {
		where = append(where, `i.model = ?`)
		args = append(args, q.Model)
	}
	if q.CheckpointModel != "" {
		where = append(where, `i.checkpoint_model = ?`)
		args = append(args, q.CheckpointModel)
	}

	query := `SELECT ` + selectColumns + ` FROM images i`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`

	term := strings.ToLower(strings.TrimSpace(q.Term))
	// SQLite の LOWER は ASCII しか扱わないので、語句の絞り込みとページングは Go 側で行う
	if term == "" {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, sqlLimit(q.Limit), max(q.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.AIImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if term != "" && !matchesTerm(img, term) {
			continue
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if term != "" {
		out = paginate(out, q.Limit, q.Offset)
	}
	return out, nil
}

func matchesTerm(img *domain.AIImage, lowerTerm string) bool {
	if strings.Contains(strings.ToLower(img.Name), lowerTerm) {
		return true
	}
	for _, t := range img.Tags {
		if strings.ToLower(t) == lowerTerm {
			return true
		}
	}
	return false
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func paginate(imgs []*domain.AIImage, limit, offset int) []*domain.AIImage {
	if offset > 0 {
		if offset >= len(imgs) {
			return []*domain.AIImage{}
		}
		imgs = imgs[offset:]
	}
	if limit > 0 && limit < len(imgs) {
		imgs = imgs[:limit]
	}
	return imgs
}
