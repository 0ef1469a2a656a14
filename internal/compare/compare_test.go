package compare

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestFileHash(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "test.txt", "test content")

	hash1, err := FileHash(p)
	require.NoError(t, err)
	hash2, err := FileHash(p)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	require.NoError(t, os.WriteFile(p, []byte("different content"), 0644))
	hash3, err := FileHash(p)
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash3, "hash should change when content changes")
}

func TestFileHash_Missing(t *testing.T) {
	_, err := FileHash(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDiffers(t *testing.T) {
	dir := t.TempDir()
	same1 := writeFile(t, dir, "same1", "hello world")
	same2 := writeFile(t, dir, "same2", "hello world")
	sameSize := writeFile(t, dir, "samesize", "hello WORLD")
	longer := writeFile(t, dir, "longer", "hello world, again")
	missing := filepath.Join(dir, "missing")

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical content", a: same1, b: same2, want: false},
		{name: "same size different content", a: same1, b: sameSize, want: true},
		{name: "different size", a: same1, b: longer, want: true},
		{name: "first missing", a: missing, b: same1, want: false},
		{name: "second missing", a: same1, b: missing, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Differs(tt.a, tt.b))
		})
	}
}

func TestDiffers_UnreadableIsNoChange(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	dir := t.TempDir()
	a := writeFile(t, dir, "a", "aaaa")
	b := writeFile(t, dir, "b", "bbbb")
	require.NoError(t, os.Chmod(b, 0o000))
	t.Cleanup(func() { _ = os.Chmod(b, 0o644) })

	assert.False(t, Differs(a, b))
}
