package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/pipeline"
	"github.com/henryperkins/mcprag/internal/rank"
)

func sampleItem() *pipeline.Item {
	return &pipeline.Item{
		Candidate: &rank.Candidate{
			ID:           "doc-1",
			Repository:   "repo",
			FilePath:     "internal/auth/session.go",
			Language:     "go",
			StartLine:    10,
			EndLine:      42,
			FunctionName: "RefreshSession",
			Signature:    "func RefreshSession(ctx context.Context) error {",
			Content:      "// refresh the session\n\nfunc RefreshSession(ctx context.Context) error {\n\treturn store.Touch(ctx)\n}",
			Relevance:    0.82,
		},
		Rank: 1,
		Highlights: map[string][]string{
			"content": {"func <em>RefreshSession</em>(ctx context.Context) error {"},
		},
	}
}

func TestFormatFull(t *testing.T) {
	out := formatItems([]*pipeline.Item{sampleItem()}, DetailFull, 0)
	require.Len(t, out, 1)

	m := out[0].(map[string]any)
	assert.Equal(t, "internal/auth/session.go", m["file"])
	assert.Equal(t, 10, m["start_line"])
	assert.Equal(t, 0.82, m["relevance"])
	assert.Contains(t, m["content"], "store.Touch")
	assert.Contains(t, m, "highlights")
}

func TestFormatCompactAndUltra(t *testing.T) {
	compact := formatItems([]*pipeline.Item{sampleItem()}, DetailCompact, 0)
	m := compact[0].(map[string]any)
	assert.Equal(t, "RefreshSession", m["match"])
	assert.Equal(t, "10-42", m["lines"])
	assert.NotContains(t, m, "content")

	ultra := formatItems([]*pipeline.Item{sampleItem()}, DetailUltra, 0)
	line := ultra[0].(string)
	assert.Contains(t, line, "internal/auth/session.go:10")
	assert.Contains(t, line, "0.82")
}

func TestSnippetTruncation(t *testing.T) {
	// Headline prefers the highlight, stripped of markers.
	out := formatItems([]*pipeline.Item{sampleItem()}, DetailFull, 1)
	m := out[0].(map[string]any)
	assert.Equal(t, "func RefreshSession(ctx context.Context) error {", m["content"])

	// Without highlights, the first non-comment line wins.
	item := sampleItem()
	item.Highlights = nil
	out = formatItems([]*pipeline.Item{item}, DetailFull, 1)
	m = out[0].(map[string]any)
	assert.Equal(t, "func RefreshSession(ctx context.Context) error {", m["content"])

	// snippet_lines > 1 appends raw lines.
	out = formatItems([]*pipeline.Item{item}, DetailFull, 3)
	m = out[0].(map[string]any)
	assert.Contains(t, m["content"], "store.Touch")
}
