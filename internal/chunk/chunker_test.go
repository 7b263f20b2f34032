package chunk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package demo

import (
	"fmt"
	"strings"
)

// Greet renders a greeting for the given name.
func Greet(name string) string {
	name = strings.TrimSpace(name)
	return fmt.Sprintf("hello %s", name)
}

type Greeter struct {
	prefix string
}

func (g *Greeter) Say(name string) string {
	return g.prefix + Greet(name)
}
`

func chunkFile(t *testing.T, path string, content string) []*CodeChunk {
	t.Helper()
	c := NewChunker()
	t.Cleanup(c.Close)

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Repository: "demo-repo",
		Path:       path,
		Content:    []byte(content),
		ModTime:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return chunks
}

func TestGoChunking(t *testing.T) {
	chunks := chunkFile(t, "pkg/demo/greet.go", goSource)
	require.Len(t, chunks, 3) // Greet, Greeter, Say

	byName := map[string]*CodeChunk{}
	for _, c := range chunks {
		assert.Equal(t, "go", c.Language)
		assert.GreaterOrEqual(t, c.StartLine, 1)
		assert.GreaterOrEqual(t, c.EndLine, c.StartLine)
		assert.Contains(t, c.Imports, "fmt")
		assert.Contains(t, c.Imports, "strings")
		if c.FunctionName != "" {
			byName[c.FunctionName] = c
		}
	}

	greet := byName["Greet"]
	require.NotNil(t, greet)
	assert.Equal(t, "func Greet(name string) string {", greet.Signature)
	assert.Contains(t, greet.CalledFunctions, "TrimSpace")
	assert.Contains(t, greet.CalledFunctions, "Sprintf")
	assert.Contains(t, greet.Docstring, "renders a greeting")

	say := byName["Say"]
	require.NotNil(t, say)
	assert.Contains(t, say.CalledFunctions, "Greet")
}

func TestPythonMethodsCarryClassName(t *testing.T) {
	src := `import os

class Session:
    """Holds session state."""

    def refresh(self):
        return os.getenv("TOKEN")
`
	chunks := chunkFile(t, "auth/session.py", src)
	require.GreaterOrEqual(t, len(chunks), 2)

	var class, method *CodeChunk
	for _, c := range chunks {
		if c.ClassName == "Session" && c.FunctionName == "" {
			class = c
		}
		if c.FunctionName == "refresh" {
			method = c
		}
	}
	require.NotNil(t, class)
	assert.Contains(t, class.Docstring, "session state")

	require.NotNil(t, method)
	assert.Equal(t, "Session", method.ClassName)
	assert.Contains(t, method.CalledFunctions, "getenv")
}

func TestUnsupportedFileFallsBackToWholeFile(t *testing.T) {
	chunks := chunkFile(t, "README.md", "# Title\n\nSome prose.\n")
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, "", c.Language)
	assert.Empty(t, c.Imports)
	assert.Empty(t, c.CalledFunctions)
	assert.Equal(t, "", c.FunctionName)
}

func TestChunkIDStableAcrossReindex(t *testing.T) {
	a := chunkFile(t, "pkg/demo/greet.go", goSource)
	b := chunkFile(t, "pkg/demo/greet.go", goSource)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}

	// Different path means different ids.
	c := chunkFile(t, "pkg/other/greet.go", goSource)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestEmptyFileYieldsNoChunks(t *testing.T) {
	chunks := chunkFile(t, "empty.go", "")
	assert.Empty(t, chunks)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("a/b/c.go"))
	assert.Equal(t, "python", DetectLanguage("x.py"))
	assert.Equal(t, "typescript", DetectLanguage("x.ts"))
	assert.Equal(t, "tsx", DetectLanguage("x.tsx"))
	assert.Equal(t, "", DetectLanguage("x.bin"))
}
