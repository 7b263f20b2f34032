// Package mcp hosts the tool registry and dispatcher shared by every
// transport: tier-based authorization, input validation, the confirmation
// gate for destructive operations, and the response envelope all live here.
// The stdio transport is served directly from this package; the remote
// HTTP/SSE transport wraps the same dispatcher.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/henryperkins/mcprag/internal/admin"
	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/cache"
	"github.com/henryperkins/mcprag/internal/config"
	"github.com/henryperkins/mcprag/internal/embed"
	"github.com/henryperkins/mcprag/internal/feedback"
	"github.com/henryperkins/mcprag/internal/indexer"
	"github.com/henryperkins/mcprag/internal/pipeline"
	"github.com/henryperkins/mcprag/pkg/version"
)

// Deps carries the components the tools operate on. Optional components may
// be nil; the affected tools then return a conflict explaining what is not
// configured.
type Deps struct {
	Config    *config.Config
	Retriever *pipeline.Retriever
	Feedback  *feedback.Store
	Admin     *admin.Manager
	Indexer   *indexer.Worker
	Cache     *cache.Cache
	Embedder  embed.Embedder
	Search    *azsearch.Client
}

// Server owns the dispatcher and the stdio transport.
type Server struct {
	dispatcher *Dispatcher
	deps       Deps
	sdk        *sdk.Server
}

// NewServer builds the dispatcher, registers every tool, and prepares the
// stdio transport.
func NewServer(deps Deps) *Server {
	devMode := deps.Config != nil && deps.Config.Server.DevMode
	requireMFA := deps.Config == nil || deps.Config.Auth.RequireMFAForAdmin

	s := &Server{
		dispatcher: NewDispatcher(requireMFA, devMode),
		deps:       deps,
	}
	s.registerSearchTools()
	s.registerDeveloperTools()
	s.registerAdminTools()

	s.sdk = sdk.NewServer(
		&sdk.Implementation{Name: "mcprag", Version: version.Version},
		nil,
	)
	s.bridgeTools()
	return s
}

// Dispatcher exposes the dispatcher to the remote transport.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// ServeStdio runs the MCP server over stdin/stdout until the context ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	slog.Info("starting stdio MCP transport",
		slog.Int("tools", len(s.dispatcher.tools)))
	err := s.sdk.Run(ctx, &sdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		slog.Error("stdio transport stopped", slog.String("error", err.Error()))
		return err
	}
	slog.Info("stdio transport stopped")
	return nil
}

// toolArgs is the open input shape used at the SDK boundary. The dispatcher
// re-validates against each tool's typed input, rejecting unknown fields.
type toolArgs map[string]any

// bridgeTools registers every dispatcher tool with the SDK server. The
// handler returns the envelope as JSON text content, so local and remote
// callers see the identical contract.
func (s *Server) bridgeTools() {
	openSchema := &jsonschema.Schema{Type: "object"}

	for _, info := range s.dispatcher.AllTools() {
		name := info.Name
		sdk.AddTool(s.sdk, &sdk.Tool{
			Name:        name,
			Description: info.Description,
			InputSchema: openSchema,
		}, func(ctx context.Context, _ *sdk.CallToolRequest, args toolArgs) (*sdk.CallToolResult, any, error) {
			env := s.dispatcher.Dispatch(ctx, name, args)
			payload, err := json.Marshal(env)
			if err != nil {
				return nil, nil, err
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: string(payload)}},
				IsError: !env.OK,
			}, nil, nil
		})
	}
}
