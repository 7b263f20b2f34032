// mcprag is the code-search and RAG MCP service: a stdio MCP server for
// local agents, a remote HTTP/SSE transport, and the indexing CLI.
package main

import (
	"os"

	"github.com/henryperkins/mcprag/cmd/mcprag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
