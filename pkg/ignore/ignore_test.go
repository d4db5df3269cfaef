package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherHonoursBundleIgnore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("# drafts\ndrafts/\n*.psd\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n"), 0o644))

	m, err := NewMatcher(root)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored(filepath.Join(root, "cover.psd")))
	assert.True(t, m.IsIgnored(filepath.Join(root, "upload.log")))
	assert.True(t, m.IsIgnored(filepath.Join(root, FileName)))
	assert.True(t, m.IsIgnoredDir(filepath.Join(root, "drafts")))
	assert.False(t, m.IsIgnored(filepath.Join(root, "0.json")))
	assert.False(t, m.IsIgnored(filepath.Join(root, "0.png")))
}

func TestMatcherWithoutIgnoreFile(t *testing.T) {
	root := t.TempDir()
	m, err := NewMatcher(root)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored(filepath.Join(root, ".DS_Store")))
	assert.False(t, m.IsIgnored(filepath.Join(root, "1.mp3")))
	// Paths outside the root are never matched.
	assert.False(t, m.IsIgnored(filepath.Join(filepath.Dir(root), "x.psd")))
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitPath("/a//b/"))
	assert.Empty(t, splitPath("."))
}
