package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/errors"
)

// docSink captures uploaded documents.
type docSink struct {
	mu   sync.Mutex
	docs map[string]azsearch.Document
}

func (s *docSink) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))

		s.mu.Lock()
		var results []azsearch.IndexActionResult
		for _, action := range batch.Value {
			id, _ := action["id"].(string)
			doc := azsearch.Document{}
			for k, v := range action {
				if k != "@search.action" {
					doc[k] = v
				}
			}
			s.docs[id] = doc
			results = append(results, azsearch.IndexActionResult{Key: id, Status: true})
		}
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(azsearch.IndexBatchResult{Results: results})
	})
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func newTestWorker(t *testing.T, sink *docSink) *Worker {
	t.Helper()
	srv := httptest.NewServer(sink.handler(t))
	t.Cleanup(srv.Close)

	client, err := azsearch.NewClient(azsearch.Config{
		Endpoint: srv.URL, APIKey: "k",
		Retry: &errors.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	w, err := NewWorker(client, nil, Config{Index: "test-index", Workers: 2, BatchSize: 3})
	require.NoError(t, err)
	return w
}

func TestIndexRepository(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":           "package main\n\nfunc main() {}\n",
		"pkg/util/util.go":  "package util\n\nfunc Do() {}\n\nfunc Other() {}\n",
		"README.md":         "# Readme\n",
		"ignored.bin":       "\x00\x01",
		".gitignore":        "secret/\n",
		"secret/creds.go":   "package secret\n",
		"node_modules/x.js": "module.exports = 1\n",
	})

	sink := &docSink{docs: map[string]azsearch.Document{}}
	w := newTestWorker(t, sink)

	report, err := w.IndexRepository(context.Background(), root, "demo-repo")
	require.NoError(t, err)

	// main.go (1 chunk) + util.go (2 chunks) + README fallback (1 chunk).
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 4, report.Chunks)
	assert.Equal(t, 4, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
	assert.GreaterOrEqual(t, report.Skipped, 2, "binary and ignored files skipped")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, doc := range sink.docs {
		assert.Equal(t, "demo-repo", doc.Str("repository"))
		assert.NotContains(t, doc.Str("file_path"), "secret/")
		assert.NotContains(t, doc.Str("file_path"), "node_modules/")
	}
}

func TestIndexChangedFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "package b\n\nfunc B() {}\n",
	})
	sink := &docSink{docs: map[string]azsearch.Document{}}
	w := newTestWorker(t, sink)

	report, err := w.IndexChangedFiles(context.Background(), root, "repo", []string{"a.go"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Uploaded)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, doc := range sink.docs {
		assert.Equal(t, "a.go", doc.Str("file_path"))
	}
}

func TestIncludeGlobs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.py": "def b():\n    pass\n",
	})
	sink := &docSink{docs: map[string]azsearch.Document{}}
	srv := httptest.NewServer(sink.handler(t))
	t.Cleanup(srv.Close)

	client, err := azsearch.NewClient(azsearch.Config{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	w, err := NewWorker(client, nil, Config{Index: "i", Include: []string{"*.go"}})
	require.NoError(t, err)

	report, err := w.IndexRepository(context.Background(), root, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Skipped)
}

func TestUnreadableFileSkippedNotFatal(t *testing.T) {
	root := writeTree(t, map[string]string{
		"ok.go": "package ok\n\nfunc OK() {}\n",
	})
	// A dangling symlink fails to read but must not abort the run.
	require.NoError(t, os.Symlink(filepath.Join(root, "absent.go"), filepath.Join(root, "broken.go")))

	sink := &docSink{docs: map[string]azsearch.Document{}}
	w := newTestWorker(t, sink)

	report, err := w.IndexRepository(context.Background(), root, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Failed)
}
