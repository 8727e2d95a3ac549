// Package localstore は小さな JSON 値を保存するキーバリューストアです。
// 保存済みプロンプトやバッチ実行のチェックポイントを置きます。
// SQLite の WAL モードで開くため、バッチ実行中でも別プロセスから読み書きできます。
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shouni/ai-canvas/pkg/domain"
)

// Store は SQLite 上の JSON キーバリューストアです。
type Store struct {
	db *sql.DB
}

// Open は path にストアを開きます。path が空ならメモリ上に作成します。
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// :memory: は接続ごとに別のデータベースになるので1本に固定する
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT    PRIMARY KEY,
	value      BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init local store: %w", err)
	}

	slog.DebugContext(ctx, "ローカルストアを開きました", "path", path)
	return &Store{db: db}, nil
}

// Close はストアを閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

// Get は key の値を out にデコードします。キーがなければ domain.ErrNotFound を返します。
func (s *Store) Get(key string, out any) error {
	var val []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("key %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// Set は v を JSON にして key に保存します。
func (s *Store) Set(key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.db.Exec(`
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, val, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	return nil
}

// Delete は key を削除します。存在しなくてもエラーにはしません。
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Keys は prefix で始まるキーを辞書順で返します。
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

const promptsKey = "prompts"

// SavePrompts は生成済みプロンプトの一覧を保存します。空なら削除します。
func (s *Store) SavePrompts(ctx context.Context, prompts []string) error {
	if len(prompts) == 0 {
		slog.DebugContext(ctx, "保存済みプロンプトを削除します")
		return s.Delete(promptsKey)
	}
	return s.Set(promptsKey, prompts)
}

// LoadPrompts は保存済みプロンプトを返します。なければ nil です。
func (s *Store) LoadPrompts() ([]string, error) {
	var prompts []string
	err := s.Get(promptsKey, &prompts)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return prompts, err
}
