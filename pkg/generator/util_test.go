package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"公開IPのHTTPS", "https://8.8.8.8/image.png", true},
		{"ループバック", "http://127.0.0.1/image.png", false},
		{"プライベートIP", "http://192.168.1.10/image.png", false},
		{"リンクローカル", "http://169.254.169.254/latest/meta-data", false},
		{"未指定アドレス", "http://0.0.0.0/", false},
		{"IPv6ループバック", "http://[::1]/", false},
		{"不許可スキーム", "file:///etc/passwd", false},
		{"パース不能", "not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsSafeURL(tt.url)
			assert.Equal(t, tt.want, got)
			if !tt.want {
				assert.Error(t, err)
			}
		})
	}
}

func TestDereferenceSeed(t *testing.T) {
	assert.Equal(t, int64(0), dereferenceSeed(nil))

	s := int64(1) << 40
	assert.Equal(t, int64(1)<<40, dereferenceSeed(&s))
}
