package admin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/errors"
)

// BackfillOptions configures an embedding backfill run.
type BackfillOptions struct {
	// BatchSize is the number of documents embedded per round.
	BatchSize int
	// IncludeContext prepends repository and file path to the embedded text.
	IncludeContext bool
	// MaxDocs bounds the run; zero means no bound.
	MaxDocs int
	// DryRun reports what would change without writing.
	DryRun bool
	// Resume continues from the stored cursor instead of the beginning.
	Resume bool
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Scanned  int    `json:"scanned"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Cursor   string `json:"cursor,omitempty"`
	Complete bool   `json:"complete"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// BackfillEmbeddings streams documents lacking content_vector, embeds them
// in batches, and merges the vectors back. Progress persists as a cursor
// (last processed id) so an interrupted run resumes; already-updated
// documents stay valid regardless of later failures.
func (m *Manager) BackfillEmbeddings(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	if m.embedder.State() == embed.StateDisabled {
		return nil, errors.New(errors.KindConflict, "embedding provider is disabled")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()

	cursorPath := filepath.Join(m.stateDir, m.schema.Name+"-backfill.cursor")
	lock := flock.New(cursorPath + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "lock backfill cursor", err)
	}
	defer func() { _ = lock.Unlock() }()

	cursor := ""
	if opts.Resume {
		if data, err := os.ReadFile(cursorPath); err == nil {
			cursor = strings.TrimSpace(string(data))
		}
	}

	result := &BackfillResult{DryRun: opts.DryRun}

	for {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(errors.KindTimeout, "backfill cancelled", err)
		}

		docs, err := m.fetchMissingVectors(ctx, cursor, opts.BatchSize)
		if err != nil {
			return result, err
		}
		if len(docs) == 0 {
			result.Complete = true
			_ = os.Remove(cursorPath)
			break
		}

		texts := make([]string, len(docs))
		for i, d := range docs {
			content := d.Str("content")
			if opts.IncludeContext {
				content = embed.ContextualText(d.Str("repository"), d.Str("file_path"), content)
			}
			texts[i] = content
		}

		result.Scanned += len(docs)
		cursor = docs[len(docs)-1].Str("id")

		if opts.DryRun {
			result.Updated += len(docs)
		} else {
			vectors, err := m.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return result, err
			}

			updates := make([]azsearch.Document, 0, len(docs))
			for i, d := range docs {
				if vectors[i] == nil {
					result.Failed++
					continue
				}
				updates = append(updates, azsearch.Document{
					"id":             d.Str("id"),
					"content_vector": vectors[i],
				})
			}
			if len(updates) > 0 {
				res, err := m.client.MergeDocuments(ctx, m.schema.Name, updates)
				if err != nil {
					// Documents already merged in previous rounds stay
					// valid; the cursor lets the next run resume here.
					m.saveCursor(cursorPath, cursor)
					return result, err
				}
				result.Updated += res.Succeeded()
				result.Failed += len(res.Failed())
			}
			m.saveCursor(cursorPath, cursor)
		}

		result.Cursor = cursor
		if opts.MaxDocs > 0 && result.Scanned >= opts.MaxDocs {
			break
		}

		slog.Debug("backfill progress",
			slog.Int("scanned", result.Scanned),
			slog.Int("updated", result.Updated),
			slog.String("cursor", cursor))
	}

	return result, nil
}

// fetchMissingVectors pages documents without content_vector, ordered by id
// so the cursor is a strict high-water mark.
func (m *Manager) fetchMissingVectors(ctx context.Context, afterID string, batch int) ([]azsearch.Document, error) {
	filter := "content_vector eq null"
	if afterID != "" {
		filter = fmt.Sprintf("%s and id gt '%s'", filter, strings.ReplaceAll(afterID, "'", "''"))
	}
	res, err := m.client.Search(ctx, m.schema.Name, &azsearch.SearchRequest{
		Search:  "*",
		Filter:  filter,
		OrderBy: "id asc",
		Top:     batch,
		Select:  "id,content,repository,file_path",
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

func (m *Manager) saveCursor(path, cursor string) {
	if err := os.WriteFile(path, []byte(cursor), 0o644); err != nil {
		slog.Warn("failed to persist backfill cursor",
			slog.String("cursor", cursor),
			slog.String("error", err.Error()))
	}
}

// EmbeddingReport summarizes vector coverage from a sample.
type EmbeddingReport struct {
	Sampled     int     `json:"sampled"`
	WithVectors int     `json:"with_vectors"`
	Coverage    float64 `json:"coverage"`
	ExpectedDim int     `json:"expected_dim"`
	BadDims     int     `json:"bad_dims"`
	Valid       bool    `json:"valid"`
}

// ValidateEmbeddings samples documents and checks vector presence and
// dimensionality against the embedder's configuration.
func (m *Manager) ValidateEmbeddings(ctx context.Context, sampleSize int) (*EmbeddingReport, error) {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	res, err := m.client.Search(ctx, m.schema.Name, &azsearch.SearchRequest{
		Search: "*",
		Top:    sampleSize,
		Select: "id,content_vector",
	})
	if err != nil {
		return nil, err
	}

	report := &EmbeddingReport{
		Sampled:     len(res.Documents),
		ExpectedDim: m.embedder.Dimensions(),
	}
	for _, d := range res.Documents {
		vec := d.Floats("content_vector")
		if len(vec) == 0 {
			continue
		}
		report.WithVectors++
		if report.ExpectedDim > 0 && len(vec) != report.ExpectedDim {
			report.BadDims++
		}
	}
	if report.Sampled > 0 {
		report.Coverage = float64(report.WithVectors) / float64(report.Sampled)
	}
	report.Valid = report.BadDims == 0
	return report, nil
}

// CleanupResult summarizes a cleanup run.
type CleanupResult struct {
	Matched int  `json:"matched"`
	Deleted int  `json:"deleted"`
	DryRun  bool `json:"dry_run,omitempty"`
}

// CleanupOldDocuments deletes documents whose date field is older than
// daysOld days. DryRun only counts.
func (m *Manager) CleanupOldDocuments(ctx context.Context, dateField string, daysOld int, dryRun bool) (*CleanupResult, error) {
	if dateField == "" {
		dateField = "last_modified"
	}
	if daysOld <= 0 {
		return nil, errors.Validation("days_old", "days_old must be positive")
	}

	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()

	cutoff := cutoffRFC3339(daysOld)
	filter := fmt.Sprintf("%s lt %s", dateField, cutoff)
	result := &CleanupResult{DryRun: dryRun}

	for {
		res, err := m.client.Search(ctx, m.schema.Name, &azsearch.SearchRequest{
			Search: "*",
			Filter: filter,
			Top:    500,
			Select: "id",
		})
		if err != nil {
			return result, err
		}
		if len(res.Documents) == 0 {
			break
		}
		result.Matched += len(res.Documents)
		if dryRun {
			break
		}

		keys := make([]string, len(res.Documents))
		for i, d := range res.Documents {
			keys[i] = d.Str("id")
		}
		del, err := m.client.DeleteDocuments(ctx, m.schema.Name, "id", keys)
		if err != nil {
			return result, err
		}
		result.Deleted += del.Succeeded()
		if len(res.Documents) < 500 {
			break
		}
	}
	return result, nil
}

// ClearRepositoryDocuments deletes every document belonging to a repository.
func (m *Manager) ClearRepositoryDocuments(ctx context.Context, repository string) (int, error) {
	if repository == "" {
		return 0, errors.Validation("repository", "repository is required")
	}

	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()

	deleted := 0
	filter := fmt.Sprintf("repository eq '%s'", strings.ReplaceAll(repository, "'", "''"))
	for {
		res, err := m.client.Search(ctx, m.schema.Name, &azsearch.SearchRequest{
			Search: "*",
			Filter: filter,
			Top:    500,
			Select: "id",
		})
		if err != nil {
			return deleted, err
		}
		if len(res.Documents) == 0 {
			return deleted, nil
		}
		keys := make([]string, len(res.Documents))
		for i, d := range res.Documents {
			keys[i] = d.Str("id")
		}
		del, err := m.client.DeleteDocuments(ctx, m.schema.Name, "id", keys)
		if err != nil {
			return deleted, err
		}
		deleted += del.Succeeded()
	}
}
