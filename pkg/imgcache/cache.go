// Package imgcache は参照画像のキャッシュです。
// go-cache のメモリキャッシュを一次、badger のディスクキャッシュを二次として重ね、
// ダウンロード済みの画像や File API の URI をプロセスをまたいで再利用します。
package imgcache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/patrickmn/go-cache"
)

// 値の種類を表す先頭 1 バイト
const (
	kindBytes  byte = 'b'
	kindString byte = 's'
)

// Disk は badger 上の TTL 付きキャッシュです。
// badger はディレクトリを排他ロックするので、同時に開けるのは 1 プロセスだけです。
type Disk struct {
	db *badger.DB
}

// OpenDisk は dir にディスクキャッシュを開きます。
func OpenDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open image cache: %w", err)
	}
	return &Disk{db: db}, nil
}

// Close はキャッシュを閉じます。
func (d *Disk) Close() error {
	return d.db.Close()
}

// Get は key の値を返します。期限切れや未登録なら false です。
func (d *Disk) Get(key string) (any, bool) {
	var raw []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("画像キャッシュの読み込みに失敗しました", "key", key, "error", err)
		}
		return nil, false
	}
	return decode(raw)
}

// Set は value を保存します。ttl が正なら期限付きになります。
// []byte と string 以外は保存しません。
func (d *Disk) Set(key string, value any, ttl time.Duration) {
	raw, ok := encode(value)
	if !ok {
		return
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), raw)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		slog.Warn("画像キャッシュの書き込みに失敗しました", "key", key, "error", err)
	}
}

func encode(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return append([]byte{kindBytes}, v...), true
	case string:
		return append([]byte{kindString}, v...), true
	}
	return nil, false
}

func decode(raw []byte) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	switch raw[0] {
	case kindBytes:
		return raw[1:], true
	case kindString:
		return string(raw[1:]), true
	}
	return nil, false
}

// Tiered はメモリとディスクの二段キャッシュです。disk が nil ならメモリだけで動きます。
type Tiered struct {
	mem  *cache.Cache
	disk *Disk
}

// NewTiered は mem の前段に disk を重ねたキャッシュを作成します。
func NewTiered(mem *cache.Cache, disk *Disk) *Tiered {
	return &Tiered{mem: mem, disk: disk}
}

// Get はメモリ、ディスクの順に探します。ディスクで見つかった値はメモリに載せます。
func (t *Tiered) Get(key string) (any, bool) {
	if v, ok := t.mem.Get(key); ok {
		return v, true
	}
	if t.disk == nil {
		return nil, false
	}
	v, ok := t.disk.Get(key)
	if ok {
		t.mem.Set(key, v, cache.DefaultExpiration)
	}
	return v, ok
}

// Set は両方の段に書き込みます。
func (t *Tiered) Set(key string, value any, ttl time.Duration) {
	t.mem.Set(key, value, ttl)
	if t.disk != nil {
		t.disk.Set(key, value, ttl)
	}
}
