// Package admin automates the index lifecycle: idempotent schema
// create/update, rebuilds, embedding backfill with a resumable cursor,
// validation, and document cleanup. Every operation converges: re-running
// with identical inputs reaches the same terminal state without error.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/errors"
)

// Manager owns index mutations. Operations are serialized per index name
// through the shared azsearch.IndexLock, so a schema update never races a
// rebuild or a document upload.
type Manager struct {
	client   *azsearch.Client
	embedder embed.Embedder
	schema   *azsearch.Index
	stateDir string
}

// NewManager creates a Manager. schema is the canonical index definition;
// stateDir holds the backfill cursor and schema backups.
func NewManager(client *azsearch.Client, embedder embed.Embedder, schema *azsearch.Index, stateDir string) (*Manager, error) {
	if client == nil {
		return nil, errors.New(errors.KindInternal, "search client is required")
	}
	if schema == nil {
		return nil, errors.New(errors.KindInternal, "canonical schema is required")
	}
	if embedder == nil {
		embedder = &embed.Disabled{}
	}
	if stateDir == "" {
		stateDir = "."
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create admin state dir", err)
	}
	return &Manager{
		client:   client,
		embedder: embedder,
		schema:   schema,
		stateDir: stateDir,
	}, nil
}

// IndexName returns the canonical index name.
func (m *Manager) IndexName() string { return m.schema.Name }

// lockFor serializes operations touching one index.
func (m *Manager) lockFor(index string) *sync.Mutex {
	return azsearch.IndexLock(index)
}

// EnsureResult reports what EnsureIndex did.
type EnsureResult struct {
	Created bool `json:"created"`
	Updated bool `json:"updated"`
}

// EnsureIndex creates the index if absent, updates it when the live schema
// differs and updateIfDifferent is set, and no-ops otherwise.
func (m *Manager) EnsureIndex(ctx context.Context, updateIfDifferent bool) (*EnsureResult, error) {
	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()

	live, err := m.client.GetIndex(ctx, m.schema.Name)
	switch errors.KindOf(err) {
	case "":
		// exists; fall through to the diff
	case errors.KindNotFound:
		if _, err := m.client.CreateOrUpdateIndex(ctx, m.schema); err != nil {
			return nil, err
		}
		slog.Info("index created", slog.String("index", m.schema.Name))
		return &EnsureResult{Created: true}, nil
	default:
		return nil, err
	}

	if !schemaDiffers(live, m.schema) {
		return &EnsureResult{}, nil
	}
	if !updateIfDifferent {
		return nil, errors.New(errors.KindConflict,
			"live index schema differs from the canonical schema; pass update_if_different to update")
	}
	if _, err := m.client.CreateOrUpdateIndex(ctx, m.schema); err != nil {
		return nil, err
	}
	slog.Info("index updated", slog.String("index", m.schema.Name))
	return &EnsureResult{Updated: true}, nil
}

// RecreateResult reports a rebuild.
type RecreateResult struct {
	Dropped    bool   `json:"dropped"`
	Created    bool   `json:"created"`
	BackupPath string `json:"backup_path,omitempty"`
}

// RecreateIndex drops and recreates the index. With backup, the live schema
// is exported to the state directory first; a missing index is not an error.
func (m *Manager) RecreateIndex(ctx context.Context, backup bool) (*RecreateResult, error) {
	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()

	result := &RecreateResult{}

	if backup {
		path, err := m.backupSchemaLocked(ctx)
		if err != nil && errors.KindOf(err) != errors.KindNotFound {
			return nil, err
		}
		result.BackupPath = path
	}

	err := m.client.DeleteIndex(ctx, m.schema.Name)
	switch errors.KindOf(err) {
	case "":
		result.Dropped = true
	case errors.KindNotFound:
		// already gone; recreation proceeds
	default:
		return nil, err
	}

	if _, err := m.client.CreateOrUpdateIndex(ctx, m.schema); err != nil {
		return nil, err
	}
	result.Created = true
	slog.Info("index recreated",
		slog.String("index", m.schema.Name),
		slog.Bool("dropped", result.Dropped))
	return result, nil
}

// BackupSchema exports the live index schema to the state directory and
// returns the file path.
func (m *Manager) BackupSchema(ctx context.Context) (string, error) {
	l := m.lockFor(m.schema.Name)
	l.Lock()
	defer l.Unlock()
	return m.backupSchemaLocked(ctx)
}

func (m *Manager) backupSchemaLocked(ctx context.Context) (string, error) {
	live, err := m.client.GetIndex(ctx, m.schema.Name)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "encode schema backup", err)
	}
	path := filepath.Join(m.stateDir, fmt.Sprintf("%s-schema-backup.json", m.schema.Name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindInternal, "write schema backup", err)
	}
	return path, nil
}

// ValidationReport lists schema drift.
type ValidationReport struct {
	Valid             bool     `json:"valid"`
	MissingFields     []string `json:"missing_fields,omitempty"`
	HasVectorSearch   bool     `json:"has_vector_search"`
	HasSemanticConfig bool     `json:"has_semantic_config"`
	ScoringProfiles   []string `json:"scoring_profiles,omitempty"`
}

// ValidateSchema checks the live index against the canonical schema:
// required fields present, vector and semantic configuration present,
// scoring profiles listed.
func (m *Manager) ValidateSchema(ctx context.Context) (*ValidationReport, error) {
	live, err := m.client.GetIndex(ctx, m.schema.Name)
	if err != nil {
		return nil, err
	}

	liveFields := make(map[string]bool, len(live.Fields))
	for _, f := range live.Fields {
		liveFields[f.Name] = true
	}

	report := &ValidationReport{
		HasVectorSearch:   live.VectorSearch != nil && len(live.VectorSearch.Profiles) > 0,
		HasSemanticConfig: live.Semantic != nil && len(live.Semantic.Configurations) > 0,
	}
	for _, f := range m.schema.Fields {
		if !liveFields[f.Name] {
			report.MissingFields = append(report.MissingFields, f.Name)
		}
	}
	for _, p := range live.ScoringProfiles {
		report.ScoringProfiles = append(report.ScoringProfiles, p.Name)
	}
	report.Valid = len(report.MissingFields) == 0 && report.HasVectorSearch
	return report, nil
}

// schemaDiffers compares the schema surfaces this service manages. Server-
// added defaults on the live index are ignored by comparing only canonical
// fields.
func schemaDiffers(live, want *azsearch.Index) bool {
	liveFields := make(map[string]azsearch.Field, len(live.Fields))
	for _, f := range live.Fields {
		f.Retrievable = nil // server normalizes retrievability defaults
		liveFields[f.Name] = f
	}
	for _, f := range want.Fields {
		f.Retrievable = nil
		lf, ok := liveFields[f.Name]
		if !ok || !reflect.DeepEqual(lf, f) {
			return true
		}
	}

	wantSemantic := want.Semantic != nil && len(want.Semantic.Configurations) > 0
	liveSemantic := live.Semantic != nil && len(live.Semantic.Configurations) > 0
	if wantSemantic != liveSemantic {
		return true
	}
	wantVector := want.VectorSearch != nil && len(want.VectorSearch.Profiles) > 0
	liveVector := live.VectorSearch != nil && len(live.VectorSearch.Profiles) > 0
	return wantVector != liveVector
}
