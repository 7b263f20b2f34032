// Package indexer walks repositories, chunks source files, embeds chunk
// content, and uploads the resulting documents to the search index.
//
// The walker and uploaders are decoupled by a bounded channel, so a slow
// upload applies back-pressure to traversal instead of buffering the whole
// repository in memory. Single-file failures are logged and skipped; the
// aggregate report carries the counts.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/chunk"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/ignore"
)

// Config tunes the worker pool.
type Config struct {
	// Index is the target search index.
	Index string
	// Workers is the chunker pool size.
	Workers int
	// BatchSize is the number of documents per upload batch.
	BatchSize int
	// MaxFileSizeMB skips files larger than this.
	MaxFileSizeMB int
	// MaxFiles bounds a single run.
	MaxFiles int
	// Include restricts traversal to matching globs (repo-relative).
	Include []string
	// Exclude adds ignore patterns on top of .gitignore.
	Exclude []string
}

// Report aggregates one indexing run.
type Report struct {
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Uploaded   int           `json:"uploaded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Worker indexes repositories into the search service.
type Worker struct {
	client   *azsearch.Client
	embedder embed.Embedder
	cfg      Config
}

// NewWorker creates a Worker.
func NewWorker(client *azsearch.Client, embedder embed.Embedder, cfg Config) (*Worker, error) {
	if client == nil {
		return nil, errors.New(errors.KindInternal, "search client is required")
	}
	if cfg.Index == "" {
		return nil, errors.New(errors.KindValidation, "index name is required")
	}
	if embedder == nil {
		embedder = &embed.Disabled{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 2
	}
	return &Worker{client: client, embedder: embedder, cfg: cfg}, nil
}

// IndexRepository walks root and indexes every eligible file.
func (w *Worker) IndexRepository(ctx context.Context, root, repository string) (*Report, error) {
	files, skipped, err := w.collectFiles(root)
	if err != nil {
		return nil, err
	}
	report, err := w.indexFiles(ctx, root, repository, files)
	if report != nil {
		report.Skipped += skipped
	}
	return report, err
}

// IndexChangedFiles indexes an explicit list of repo-relative paths,
// skipping traversal entirely. Deleted files have their chunks removed.
func (w *Worker) IndexChangedFiles(ctx context.Context, root, repository string, files []string) (*Report, error) {
	var present []string
	var deleted []string
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(root, f)); err != nil {
			deleted = append(deleted, f)
		} else {
			present = append(present, f)
		}
	}

	report, err := w.indexFiles(ctx, root, repository, present)
	if err != nil {
		return report, err
	}
	for _, f := range deleted {
		if derr := w.deleteFileChunks(ctx, repository, f); derr != nil {
			slog.Warn("failed to delete chunks for removed file",
				slog.String("file", f),
				slog.String("error", derr.Error()))
			report.Failed++
		}
	}
	return report, nil
}

// collectFiles walks the tree honoring ignore rules, include globs, and
// size/count limits. Returns repo-relative paths.
func (w *Worker) collectFiles(root string) (files []string, skipped int, err error) {
	matcher := ignore.New()
	_ = matcher.AddFile(filepath.Join(root, ".gitignore"), "")
	for _, p := range w.cfg.Exclude {
		matcher.Add(p, "")
	}

	maxBytes := int64(w.cfg.MaxFileSizeMB) * 1024 * 1024

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			skipped++
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			// Nested ignore files scope to their directory.
			_ = matcher.AddFile(filepath.Join(path, ".gitignore"), rel)
			return nil
		}

		if matcher.Match(rel, false) || !w.includeFile(rel) {
			skipped++
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxBytes {
			skipped++
			return nil
		}

		files = append(files, rel)
		if w.cfg.MaxFiles > 0 && len(files) >= w.cfg.MaxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return nil, skipped, errors.Wrap(errors.KindInternal, "walk repository", walkErr)
	}
	return files, skipped, nil
}

// includeFile applies include globs, defaulting to files the chunker can do
// something useful with.
func (w *Worker) includeFile(rel string) bool {
	if len(w.cfg.Include) > 0 {
		for _, g := range w.cfg.Include {
			if ok, _ := filepath.Match(g, rel); ok {
				return true
			}
			if ok, _ := filepath.Match(g, filepath.Base(rel)); ok {
				return true
			}
		}
		return false
	}
	if chunk.DetectLanguage(rel) != "" {
		return true
	}
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".md", ".rst", ".txt", ".yaml", ".yml", ".json", ".toml", ".proto", ".sql", ".sh":
		return true
	}
	return false
}

// indexFiles runs the chunker pool and uploader over the file list.
func (w *Worker) indexFiles(ctx context.Context, root, repository string, files []string) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if len(files) == 0 {
		report.Duration = time.Since(start)
		report.DurationMS = report.Duration.Milliseconds()
		return report, nil
	}

	// Uploads to one index never interleave with schema changes.
	lock := azsearch.IndexLock(w.cfg.Index)
	lock.Lock()
	defer lock.Unlock()

	paths := make(chan string, w.cfg.Workers*2)
	chunks := make(chan *chunk.CodeChunk, w.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)

	// Walker: feeds the bounded path channel.
	g.Go(func() error {
		defer close(paths)
		for _, f := range files {
			select {
			case paths <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Chunker pool: each worker owns its parser.
	var chunkersDone sync.WaitGroup
	var filesOK, filesFailed atomic.Int64
	for i := 0; i < w.cfg.Workers; i++ {
		chunkersDone.Add(1)
		g.Go(func() error {
			defer chunkersDone.Done()
			chunker := chunk.NewChunker()
			defer chunker.Close()

			for rel := range paths {
				if err := gctx.Err(); err != nil {
					return err
				}
				cks, err := w.chunkFile(gctx, chunker, root, repository, rel)
				if err != nil {
					filesFailed.Add(1)
					slog.Warn("failed to index file, skipping",
						slog.String("file", rel),
						slog.String("error", err.Error()))
					continue
				}
				filesOK.Add(1)
				for _, ck := range cks {
					select {
					case chunks <- ck:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}

	// Close the chunk channel once all chunkers finish.
	go func() {
		chunkersDone.Wait()
		close(chunks)
	}()

	// Uploader: batches, embeds, uploads.
	var uploaded, failed, total atomic.Int64
	g.Go(func() error {
		batch := make([]*chunk.CodeChunk, 0, w.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			up, fail, err := w.uploadBatch(gctx, batch)
			uploaded.Add(int64(up))
			failed.Add(int64(fail))
			batch = batch[:0]
			return err
		}

		for ck := range chunks {
			total.Add(1)
			batch = append(batch, ck)
			if len(batch) >= w.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		report.Duration = time.Since(start)
		report.DurationMS = report.Duration.Milliseconds()
		report.Files = int(filesOK.Load())
		report.Failed = int(filesFailed.Load())
		report.Uploaded = int(uploaded.Load())
		return report, err
	}

	report.Files = int(filesOK.Load())
	report.Chunks = int(total.Load())
	report.Uploaded = int(uploaded.Load())
	report.Failed = int(filesFailed.Load() + failed.Load())
	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	slog.Info("indexing complete",
		slog.String("repository", repository),
		slog.Int("files", report.Files),
		slog.Int("chunks", report.Chunks),
		slog.Int("uploaded", report.Uploaded),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// chunkFile reads and chunks one file.
func (w *Worker) chunkFile(ctx context.Context, chunker *chunk.Chunker, root, repository, rel string) ([]*chunk.CodeChunk, error) {
	full := filepath.Join(root, rel)
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	return chunker.Chunk(ctx, &chunk.FileInput{
		Repository: repository,
		Path:       filepath.ToSlash(rel),
		Content:    content,
		ModTime:    info.ModTime().UTC(),
	})
}

// uploadBatch embeds a batch (when the provider is enabled) and uploads it.
// Embedding gaps degrade to BM25-only documents rather than failing.
func (w *Worker) uploadBatch(ctx context.Context, batch []*chunk.CodeChunk) (uploaded, failed int, err error) {
	if w.embedder.State() != embed.StateDisabled {
		texts := make([]string, len(batch))
		for i, ck := range batch {
			texts[i] = embed.ContextualText(ck.Repository, ck.FilePath, ck.Content)
		}
		vectors, embedErr := w.embedder.EmbedBatch(ctx, texts)
		if embedErr != nil {
			slog.Warn("batch embedding failed, uploading without vectors",
				slog.String("error", embedErr.Error()))
		} else {
			for i, vec := range vectors {
				batch[i].ContentVector = vec
			}
		}
	}

	docs := make([]azsearch.Document, len(batch))
	for i, ck := range batch {
		docs[i] = ck.ToDocument()
	}

	res, err := w.client.UploadDocuments(ctx, w.cfg.Index, docs)
	if err != nil {
		return 0, len(batch), err
	}
	for _, f := range res.Failed() {
		slog.Warn("document upload rejected",
			slog.String("key", f.Key),
			slog.String("error", f.ErrorMessage))
	}
	return res.Succeeded(), len(res.Failed()), nil
}

// deleteFileChunks removes all chunks of one file from the index.
func (w *Worker) deleteFileChunks(ctx context.Context, repository, rel string) error {
	filter := "repository eq '" + strings.ReplaceAll(repository, "'", "''") +
		"' and file_path eq '" + strings.ReplaceAll(filepath.ToSlash(rel), "'", "''") + "'"
	res, err := w.client.Search(ctx, w.cfg.Index, &azsearch.SearchRequest{
		Search: "*",
		Filter: filter,
		Top:    1000,
		Select: "id",
	})
	if err != nil {
		return err
	}
	if len(res.Documents) == 0 {
		return nil
	}
	keys := make([]string, len(res.Documents))
	for i, d := range res.Documents {
		keys[i] = d.Str("id")
	}
	_, err = w.client.DeleteDocuments(ctx, w.cfg.Index, "id", keys)
	return err
}
