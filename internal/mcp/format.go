package mcp

import (
	"fmt"
	"strings"

	"github.com/henryperkins/mcprag/internal/pipeline"
)

// Detail levels for search result formatting.
const (
	DetailFull    = "full"
	DetailCompact = "compact"
	DetailUltra   = "ultra"
)

// headlineLimit bounds the first line shown in truncated snippets.
const headlineLimit = 120

// formatItems renders ranked items at the requested verbosity.
//   - full: rich objects with snippets and highlights
//   - compact: one small object per result
//   - ultra: single-line strings for chat surfaces
func formatItems(items []*pipeline.Item, detailLevel string, snippetLines int) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		switch detailLevel {
		case DetailUltra:
			out = append(out, fmt.Sprintf("%s:%d %.2f %s",
				item.FilePath, item.StartLine, item.Relevance, firstNonEmpty(item.Signature, item.FunctionName)))
		case DetailCompact:
			out = append(out, map[string]any{
				"file":      item.FilePath,
				"lines":     fmt.Sprintf("%d-%d", item.StartLine, item.EndLine),
				"match":     firstNonEmpty(item.FunctionName, item.ClassName, item.Signature),
				"relevance": item.Relevance,
			})
		default:
			out = append(out, formatFull(item, snippetLines))
		}
	}
	return out
}

func formatFull(item *pipeline.Item, snippetLines int) map[string]any {
	content := item.Content
	if snippetLines > 0 {
		content = truncateSnippet(item, snippetLines)
	}

	m := map[string]any{
		"id":         item.ID,
		"repository": item.Repository,
		"file":       item.FilePath,
		"language":   item.Language,
		"start_line": item.StartLine,
		"end_line":   item.EndLine,
		"relevance":  item.Relevance,
		"rank":       item.Rank,
		"content":    content,
	}
	if item.FunctionName != "" {
		m["function_name"] = item.FunctionName
	}
	if item.ClassName != "" {
		m["class_name"] = item.ClassName
	}
	if item.Signature != "" {
		m["signature"] = item.Signature
	}
	if item.Docstring != "" {
		m["docstring"] = item.Docstring
	}
	if len(item.Highlights) > 0 {
		m["highlights"] = item.Highlights
	}
	return m
}

// truncateSnippet picks a headline and up to snippetLines-1 raw lines:
// the first highlight, else the first non-empty non-comment line, else the
// first raw line.
func truncateSnippet(item *pipeline.Item, snippetLines int) string {
	headline := ""
	for _, snippets := range item.Highlights {
		if len(snippets) > 0 {
			headline = stripTags(snippets[0])
			break
		}
	}

	lines := strings.Split(item.Content, "\n")
	if headline == "" {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || isComment(trimmed) {
				continue
			}
			headline = trimmed
			break
		}
	}
	if headline == "" && len(lines) > 0 {
		headline = strings.TrimSpace(lines[0])
	}
	if len(headline) > headlineLimit {
		headline = headline[:headlineLimit]
	}

	if snippetLines <= 1 {
		return headline
	}

	out := []string{headline}
	for _, line := range lines {
		if len(out) >= snippetLines {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == headline {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "/*") || strings.HasPrefix(line, "*")
}

func stripTags(s string) string {
	s = strings.ReplaceAll(s, "<em>", "")
	return strings.ReplaceAll(s, "</em>", "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
