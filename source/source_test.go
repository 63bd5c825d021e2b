package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		location string
		want     Kind
	}{
		{"http://example.com/hosts", KindHTTP},
		{"https://example.com/hosts", KindHTTP},
		{"content:///sdcard/hosts.txt", KindContent},
		{"file:/etc/hosts", KindFile},
		{"ahost.com", KindHost},
		{"ads.example.com", KindHost},
		{"ftp://example.com/hosts", KindUnknown},
		{"not a host", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.location), tt.location)
	}
}

func TestMirrorPath(t *testing.T) {
	r := Resolver{Dir: "/dir"}

	tests := []struct {
		location string
		want     string
		ok       bool
	}{
		{"http://example.com/", "/dir/http%3A%2F%2Fexample.com%2F", true},
		{"https://example.com/", "/dir/https%3A%2F%2Fexample.com%2F", true},
		{"file:/myfile", "/myfile", true},
		{"file:///etc/hosts", "/etc/hosts", true},
		{"content:///sdcard/hosts.txt", "/sdcard/hosts.txt", true},
		{"ahost.com", "", false},
		{"ftp://example.com/", "", false},
	}

	for _, tt := range tests {
		got, ok := r.MirrorPath(tt.location)
		assert.Equal(t, tt.ok, ok, tt.location)
		assert.Equal(t, filepath.FromSlash(tt.want), got, tt.location)
	}
}

func TestMirrorPathLongURL(t *testing.T) {
	r := Resolver{Dir: "/dir"}
	long := "https://example.com/" + strings.Repeat("a", 300)
	other := long + "b"

	p1, ok := r.MirrorPath(long)
	require.True(t, ok)
	p2, ok := r.MirrorPath(other)
	require.True(t, ok)

	assert.LessOrEqual(t, len(filepath.Base(p1)), maxMirrorName)
	assert.NotEqual(t, p1, p2, "distinct locations must not collide")
}

func TestFileGranter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0644))

	g := FileGranter{}
	assert.True(t, g.TryAcquire("content://"+filepath.ToSlash(path)))
	assert.False(t, g.TryAcquire("content://"+filepath.ToSlash(path)+".missing"))
	assert.False(t, g.TryAcquire("content:"))
}
