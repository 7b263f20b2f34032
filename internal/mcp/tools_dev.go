package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/henryperkins/mcprag/internal/auth"
	"github.com/henryperkins/mcprag/internal/chunk"
	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/feedback"
	"github.com/henryperkins/mcprag/internal/pipeline"
	"github.com/henryperkins/mcprag/internal/query"
)

// GenerateCodeInput is the input for generate_code.
type GenerateCodeInput struct {
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
	Repository  string `json:"repository,omitempty"`
	CurrentFile string `json:"current_file,omitempty"`
	MaxExamples int    `json:"max_examples,omitempty"`
}

// AnalyzeContextInput is the input for analyze_context.
type AnalyzeContextInput struct {
	FilePath      string `json:"file_path"`
	WorkspaceRoot string `json:"workspace_root,omitempty"`
	Repository    string `json:"repository,omitempty"`
	MaxRelated    int    `json:"max_related,omitempty"`
}

// SubmitFeedbackInput is the input for submit_feedback.
type SubmitFeedbackInput struct {
	QueryID string            `json:"query_id"`
	Rating  int               `json:"rating"`
	Intent  string            `json:"intent,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// TrackClickInput is the input for track_search_click.
type TrackClickInput struct {
	QueryID string `json:"query_id"`
	DocID   string `json:"doc_id"`
	Rank    int    `json:"rank,omitempty"`
	Intent  string `json:"intent,omitempty"`
	Field   string `json:"field,omitempty"`
}

// TrackOutcomeInput is the input for track_search_outcome.
type TrackOutcomeInput struct {
	QueryID string  `json:"query_id"`
	Outcome string  `json:"outcome"`
	Score   float64 `json:"score,omitempty"`
	Intent  string  `json:"intent,omitempty"`
}

func (s *Server) registerDeveloperTools() {
	s.dispatcher.Register(&Tool{
		Name:        "generate_code",
		Description: "Generate a code scaffold grounded in retrieved examples from the index: matches the style and idioms of similar indexed code.",
		Group:       "generation",
		Tier:        auth.TierDeveloper,
		Input:       func() any { return &GenerateCodeInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			return s.generateCode(ctx, input.(*GenerateCodeInput))
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "analyze_context",
		Description: "Analyze a file's context: language, imports, declared symbols, and related indexed files found by searching the index for its imports.",
		Group:       "analysis",
		Tier:        auth.TierDeveloper,
		Input:       func() any { return &AnalyzeContextInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			return s.analyzeContext(ctx, input.(*AnalyzeContextInput))
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "submit_feedback",
		Description: "Submit an explicit 1-5 rating for a past search. Feeds adaptive ranking.",
		Group:       "feedback",
		Tier:        auth.TierDeveloper,
		Input:       func() any { return &SubmitFeedbackInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*SubmitFeedbackInput)
			if s.deps.Feedback == nil {
				return nil, errors.New(errors.KindConflict, "feedback store is not configured")
			}
			err := s.deps.Feedback.Record(ctx, feedback.Event{
				QueryID: in.QueryID,
				Kind:    feedback.KindRating,
				Rating:  in.Rating,
				Intent:  in.Intent,
				Context: in.Context,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"recorded": true}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "track_search_click",
		Description: "Record that a search result was opened. Feeds click-through aggregation for adaptive ranking.",
		Group:       "feedback",
		Tier:        auth.TierDeveloper,
		Input:       func() any { return &TrackClickInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*TrackClickInput)
			if s.deps.Feedback == nil {
				return nil, errors.New(errors.KindConflict, "feedback store is not configured")
			}
			err := s.deps.Feedback.Record(ctx, feedback.Event{
				QueryID: in.QueryID,
				Kind:    feedback.KindClick,
				DocID:   in.DocID,
				Rank:    in.Rank,
				Intent:  in.Intent,
				Field:   in.Field,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"recorded": true}, nil
		},
	})

	s.dispatcher.Register(&Tool{
		Name:        "track_search_outcome",
		Description: "Record whether a search ultimately helped (success, partial, failure). Feeds adaptive ranking.",
		Group:       "feedback",
		Tier:        auth.TierDeveloper,
		Input:       func() any { return &TrackOutcomeInput{} },
		Handle: func(ctx context.Context, input any) (any, error) {
			in := input.(*TrackOutcomeInput)
			if s.deps.Feedback == nil {
				return nil, errors.New(errors.KindConflict, "feedback store is not configured")
			}
			err := s.deps.Feedback.Record(ctx, feedback.Event{
				QueryID: in.QueryID,
				Kind:    feedback.KindOutcome,
				Outcome: in.Outcome,
				Score:   in.Score,
				Intent:  in.Intent,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"recorded": true}, nil
		},
	})
}

// generateCode retrieves exemplars and assembles a style-matched scaffold.
// No model is involved: the value is the retrieved grounding plus a
// language-appropriate skeleton referencing it.
func (s *Server) generateCode(ctx context.Context, in *GenerateCodeInput) (any, error) {
	if s.deps.Retriever == nil {
		return nil, errors.New(errors.KindConflict, "search pipeline is not configured")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, errors.Validation("description", "description is required")
	}
	maxExamples := in.MaxExamples
	if maxExamples <= 0 || maxExamples > 10 {
		maxExamples = 5
	}

	resp, err := s.deps.Retriever.Search(ctx, query.Request{
		Text:       in.Description,
		Intent:     string(query.IntentImplement),
		Language:   in.Language,
		Repository: in.Repository,
		MaxResults: maxExamples,
	}, pipeline.Options{CurrentFile: in.CurrentFile})
	if err != nil {
		return nil, err
	}

	examples := make([]map[string]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		examples = append(examples, map[string]any{
			"file":      item.FilePath,
			"symbol":    firstNonEmpty(item.FunctionName, item.ClassName),
			"signature": item.Signature,
			"content":   item.Content,
			"relevance": item.Relevance,
		})
	}

	return map[string]any{
		"query_id": resp.QueryID,
		"language": in.Language,
		"scaffold": buildScaffold(in.Description, in.Language, resp.Items),
		"examples": examples,
		"grounded": len(examples) > 0,
	}, nil
}

// buildScaffold renders a minimal language-appropriate skeleton that cites
// the retrieved exemplars.
func buildScaffold(description, language string, items []*pipeline.Item) string {
	name := scaffoldName(description)
	var refs []string
	for _, item := range items {
		if item.FunctionName != "" {
			refs = append(refs, fmt.Sprintf("%s (%s:%d)", item.FunctionName, item.FilePath, item.StartLine))
		}
	}
	refComment := "no similar code indexed"
	if len(refs) > 0 {
		refComment = "similar: " + strings.Join(refs, ", ")
	}

	switch strings.ToLower(language) {
	case "python":
		return fmt.Sprintf("# %s\n# %s\ndef %s():\n    raise NotImplementedError\n",
			description, refComment, strings.ToLower(name))
	case "typescript", "javascript":
		return fmt.Sprintf("// %s\n// %s\nexport function %s() {\n  throw new Error(\"not implemented\");\n}\n",
			description, refComment, lowerFirst(name))
	default:
		return fmt.Sprintf("// %s\n// %s\nfunc %s() error {\n\treturn nil\n}\n",
			description, refComment, name)
	}
}

func scaffoldName(description string) string {
	words := strings.Fields(query.Sanitize(description))
	if len(words) > 4 {
		words = words[:4]
	}
	var b strings.Builder
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, w)
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]) + strings.ToLower(w[1:]))
	}
	if b.Len() == 0 {
		return "Generated"
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// analyzeContext chunks the local file and finds related indexed files.
func (s *Server) analyzeContext(ctx context.Context, in *AnalyzeContextInput) (any, error) {
	if strings.TrimSpace(in.FilePath) == "" {
		return nil, errors.Validation("file_path", "file_path is required")
	}

	full := in.FilePath
	if in.WorkspaceRoot != "" {
		full = filepath.Join(in.WorkspaceRoot, in.FilePath)
		// The workspace root is a trust boundary; reject escapes.
		if rel, err := filepath.Rel(in.WorkspaceRoot, full); err != nil || strings.HasPrefix(rel, "..") {
			return nil, errors.Validation("file_path", "file_path escapes the workspace root")
		}
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.Wrap(errors.KindNotFound, "file not readable: "+in.FilePath, err)
	}

	chunker := chunk.NewChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(ctx, &chunk.FileInput{
		Repository: in.Repository,
		Path:       filepath.ToSlash(in.FilePath),
		Content:    content,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "chunk file", err)
	}

	var imports []string
	symbols := make([]map[string]any, 0, len(chunks))
	language := chunk.DetectLanguage(in.FilePath)
	for _, ck := range chunks {
		if imports == nil {
			imports = ck.Imports
		}
		name := firstNonEmpty(ck.FunctionName, ck.ClassName)
		if name == "" {
			continue
		}
		symbols = append(symbols, map[string]any{
			"name":       name,
			"kind":       symbolKind(ck),
			"start_line": ck.StartLine,
			"end_line":   ck.EndLine,
			"signature":  ck.Signature,
		})
	}

	data := map[string]any{
		"file":     in.FilePath,
		"language": language,
		"imports":  imports,
		"symbols":  symbols,
	}

	// Related files: search the index for code sharing this file's imports.
	if s.deps.Retriever != nil && len(imports) > 0 {
		maxRelated := in.MaxRelated
		if maxRelated <= 0 || maxRelated > 10 {
			maxRelated = 5
		}
		text := strings.Join(imports, " ")
		if len(text) > 500 {
			text = text[:500]
		}
		resp, err := s.deps.Retriever.Search(ctx, query.Request{
			Text:       text,
			Intent:     string(query.IntentUnderstand),
			Repository: in.Repository,
			MaxResults: maxRelated,
		}, pipeline.Options{CurrentFile: in.FilePath})
		if err == nil {
			var related []map[string]any
			for _, item := range resp.Items {
				if item.FilePath == filepath.ToSlash(in.FilePath) {
					continue
				}
				related = append(related, map[string]any{
					"file":      item.FilePath,
					"symbol":    firstNonEmpty(item.FunctionName, item.ClassName),
					"relevance": item.Relevance,
				})
			}
			data["related_files"] = related
		}
	}

	return data, nil
}

func symbolKind(ck *chunk.CodeChunk) string {
	switch {
	case ck.FunctionName != "" && ck.ClassName != "":
		return "method"
	case ck.ClassName != "":
		return "class"
	default:
		return "function"
	}
}
