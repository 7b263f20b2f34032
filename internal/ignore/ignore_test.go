package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatterns(t *testing.T) {
	m := New()

	assert.True(t, m.Match(".git/config", false))
	assert.True(t, m.Match("node_modules/react/index.js", false))
	assert.True(t, m.Match("vendor/pkg/a.go", false))
	assert.True(t, m.Match("app/dist/bundle.js", false))
	assert.True(t, m.Match("ui/app.min.js", false))
	assert.False(t, m.Match("internal/search/engine.go", false))
	assert.False(t, m.Match("cmd/main.go", false))
}

func TestWildcardsAndNegation(t *testing.T) {
	m := New()
	m.Add("*.log", "")
	m.Add("!important.log", "")

	assert.True(t, m.Match("debug.log", false))
	assert.True(t, m.Match("logs/debug.log", false))
	assert.False(t, m.Match("important.log", false))
}

func TestAnchoredAndDirOnly(t *testing.T) {
	m := New()
	m.Add("/docs/", "")
	m.Add("tmp/", "")

	assert.True(t, m.Match("docs", true))
	assert.True(t, m.Match("docs/guide.md", false))
	assert.False(t, m.Match("pkg/docs.go", false))

	assert.True(t, m.Match("a/tmp/x", false))
	assert.True(t, m.Match("tmp", true))
	assert.False(t, m.Match("tmp", false), "dir-only pattern must not match a plain file")
}

func TestDoubleStar(t *testing.T) {
	m := New()
	m.Add("testdata/**/golden.json", "")

	assert.True(t, m.Match("testdata/a/golden.json", false))
	assert.True(t, m.Match("testdata/a/b/golden.json", false))
	assert.True(t, m.Match("testdata/golden.json", false))
	assert.False(t, m.Match("src/golden.json", false))
}

func TestScopedPatterns(t *testing.T) {
	m := New()
	m.Add("*.gen.go", "internal/api")

	assert.True(t, m.Match("internal/api/client.gen.go", false))
	assert.False(t, m.Match("internal/other/client.gen.go", false))
}

func TestAddFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n*.tmp\n!keep.tmp\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFile(path, ""))
	require.NoError(t, m.AddFile(filepath.Join(dir, "absent"), ""), "missing file is fine")

	assert.True(t, m.Match("x.tmp", false))
	assert.False(t, m.Match("keep.tmp", false))
}
