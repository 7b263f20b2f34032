package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// CodeChunk is one semantic unit of a source file: a function, a class, or
// the whole file when no structure is recoverable. It maps one-to-one onto
// a search index document.
type CodeChunk struct {
	ID              string    `json:"id"`
	Repository      string    `json:"repository"`
	FilePath        string    `json:"file_path"`
	Language        string    `json:"language"`
	StartLine       int       `json:"start_line"`
	EndLine         int       `json:"end_line"`
	Content         string    `json:"content"`
	Signature       string    `json:"signature,omitempty"`
	Imports         []string  `json:"imports,omitempty"`
	CalledFunctions []string  `json:"called_functions,omitempty"`
	FunctionName    string    `json:"function_name,omitempty"`
	ClassName       string    `json:"class_name,omitempty"`
	Docstring       string    `json:"docstring,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	LastModified    time.Time `json:"last_modified"`
	ContentVector   []float32 `json:"content_vector,omitempty"`
}

// ChunkID derives the stable document id from repository, path, and start
// line. Re-indexing the same location always produces the same id, which is
// what makes uploads idempotent.
func ChunkID(repository, filePath string, startLine int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", repository, filePath, startLine)))
	return hex.EncodeToString(h[:])
}

// ToDocument converts the chunk to a search index document. Collection
// fields are always present (possibly empty) so merges clear stale values.
func (c *CodeChunk) ToDocument() map[string]any {
	doc := map[string]any{
		"id":               c.ID,
		"repository":       c.Repository,
		"file_path":        c.FilePath,
		"language":         c.Language,
		"start_line":       c.StartLine,
		"end_line":         c.EndLine,
		"content":          c.Content,
		"signature":        c.Signature,
		"imports":          emptyIfNil(c.Imports),
		"called_functions": emptyIfNil(c.CalledFunctions),
		"tags":             emptyIfNil(c.Tags),
		"function_name":    c.FunctionName,
		"class_name":       c.ClassName,
		"docstring":        c.Docstring,
		"last_modified":    c.LastModified.UTC().Format(time.RFC3339),
	}
	if len(c.ContentVector) > 0 {
		doc["content_vector"] = c.ContentVector
	}
	return doc
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FileInput is one file handed to the chunker.
type FileInput struct {
	Repository string
	Path       string
	Language   string // inferred from extension when empty
	Content    []byte
	ModTime    time.Time
}
