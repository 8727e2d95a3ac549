package imgcache

import (
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDisk(t *testing.T, dir string) *Disk {
	t.Helper()
	d, err := OpenDisk(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDisk(t *testing.T) {
	t.Run("バイト列と文字列を型を保って読み戻すのだ", func(t *testing.T) {
		d := openTestDisk(t, t.TempDir())
		d.Set("data", []byte{0x89, 'P', 'N', 'G'}, time.Hour)
		d.Set("uri", "https://example.com/files/1", time.Hour)

		v, ok := d.Get("data")
		require.True(t, ok)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, v)

		v, ok = d.Get("uri")
		require.True(t, ok)
		assert.Equal(t, "https://example.com/files/1", v)

		_, ok = d.Get("missing")
		assert.False(t, ok)
	})

	t.Run("対応しない型は保存しない", func(t *testing.T) {
		d := openTestDisk(t, t.TempDir())
		d.Set("n", 42, time.Hour)
		_, ok := d.Get("n")
		assert.False(t, ok)
	})

	t.Run("TTL を過ぎた値は返さない", func(t *testing.T) {
		d := openTestDisk(t, t.TempDir())
		d.Set("short", "v", time.Second)
		time.Sleep(2100 * time.Millisecond)
		_, ok := d.Get("short")
		assert.False(t, ok)
	})

	t.Run("閉じて開き直しても残っている", func(t *testing.T) {
		dir := t.TempDir()
		d, err := OpenDisk(dir)
		require.NoError(t, err)
		d.Set("k", "v", time.Hour)
		require.NoError(t, d.Close())

		d = openTestDisk(t, dir)
		v, ok := d.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", v)
	})

	t.Run("同じディレクトリは二重に開けない", func(t *testing.T) {
		dir := t.TempDir()
		openTestDisk(t, dir)
		_, err := OpenDisk(dir)
		assert.Error(t, err)
	})

	t.Run("ディレクトリ未指定はエラー", func(t *testing.T) {
		_, err := OpenDisk("")
		assert.Error(t, err)
	})
}

func TestTiered(t *testing.T) {
	t.Run("ディスクの値をメモリに載せるのだ", func(t *testing.T) {
		dir := t.TempDir()
		d := openTestDisk(t, dir)
		d.Set("k", []byte("img"), time.Hour)

		mem := cache.New(time.Hour, time.Hour)
		tc := NewTiered(mem, d)

		v, ok := tc.Get("k")
		require.True(t, ok)
		assert.Equal(t, []byte("img"), v)

		inMem, ok := mem.Get("k")
		require.True(t, ok)
		assert.Equal(t, []byte("img"), inMem)
	})

	t.Run("Set は両方に書き込む", func(t *testing.T) {
		d := openTestDisk(t, t.TempDir())
		tc := NewTiered(cache.New(time.Hour, time.Hour), d)
		tc.Set("uri", "files/1", time.Hour)

		v, ok := d.Get("uri")
		require.True(t, ok)
		assert.Equal(t, "files/1", v)
	})

	t.Run("ディスクなしでもメモリだけで動く", func(t *testing.T) {
		tc := NewTiered(cache.New(time.Hour, time.Hour), nil)
		_, ok := tc.Get("k")
		assert.False(t, ok)

		tc.Set("k", "v", time.Hour)
		v, ok := tc.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", v)
	})
}
