// Package history は生成した画像の履歴を SQLite に保存し、検索・タグ付け・
// エクスポート/インポートを提供します。
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Store は画像履歴のストアです。
type Store struct {
	db *sql.DB
}

// Open は path の SQLite データベースを開き、必要ならスキーマを作成します。
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite への書き込みは直列なので接続は1本に絞る
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.DebugContext(ctx, "画像履歴データベースを開きました", "path", path, "schema_version", schemaVersion)
	return s, nil
}

// Close はデータベースを閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS images (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT    NOT NULL,
	prompt           TEXT    NOT NULL,
	refined_prompt   TEXT    NOT NULL DEFAULT '',
	translation      TEXT    NOT NULL DEFAULT '',
	model            TEXT    NOT NULL,
	checkpoint_model TEXT    NOT NULL DEFAULT '',
	width            INTEGER NOT NULL DEFAULT 0,
	height           INTEGER NOT NULL DEFAULT 0,
	size             INTEGER NOT NULL DEFAULT 0,
	is_favorite      INTEGER NOT NULL DEFAULT 0,
	mime_type        TEXT    NOT NULL,
	data             BLOB    NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_name ON images(name);
CREATE INDEX IF NOT EXISTS idx_images_prompt ON images(prompt);
CREATE INDEX IF NOT EXISTS idx_images_is_favorite ON images(is_favorite);
CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
CREATE INDEX IF NOT EXISTS idx_images_checkpoint_model ON images(checkpoint_model);

CREATE TABLE IF NOT EXISTS image_tags (
	image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	tag      TEXT    NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (image_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_image_tags_tag ON image_tags(tag);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// withTx は fn をトランザクション内で実行し、エラーならロールバックするのだ。
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
