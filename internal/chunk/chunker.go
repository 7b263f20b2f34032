// Package chunk splits source files into semantic chunks for indexing.
//
// Languages with a registered tree-sitter grammar produce one chunk per
// top-level function, method, class, or type declaration, enriched with the
// file's imports, the calls the symbol makes, and its docstring. Everything
// else falls back to a single whole-file chunk with truncated content and
// empty structural metadata.
package chunk

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Chunker limits.
const (
	// MaxFallbackBytes bounds whole-file fallback chunks.
	MaxFallbackBytes = 32 * 1024
	// MaxChunkBytes bounds a single symbol chunk; oversized symbols are
	// truncated rather than split so line ranges stay honest.
	MaxChunkBytes = 64 * 1024
)

// Chunker performs AST-aware code chunking.
type Chunker struct {
	parser *sitter.Parser
}

// NewChunker creates a chunker. The underlying parser is not safe for
// concurrent use; create one Chunker per worker.
func NewChunker() *Chunker {
	return &Chunker{parser: sitter.NewParser()}
}

// Close releases parser resources.
func (c *Chunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Chunk splits one file into chunks. The returned slice is a finite,
// fully-materialized stream; empty files yield nil.
func (c *Chunker) Chunk(ctx context.Context, file *FileInput) ([]*CodeChunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}
	if file.Language == "" {
		file.Language = DetectLanguage(file.Path)
	}

	cfg, grammar, ok := languageFor(file.Language)
	if !ok {
		return c.fallback(file), nil
	}

	c.parser.SetLanguage(grammar)
	tree, err := c.parser.ParseCtx(ctx, nil, file.Content)
	if err != nil {
		// Unparseable files still get indexed, just without structure.
		return c.fallback(file), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	imports := collectImports(root, file.Content, cfg)

	var chunks []*CodeChunk
	c.walkSymbols(root, file, cfg, imports, "", &chunks)

	if len(chunks) == 0 {
		return c.fallback(file), nil
	}
	return chunks, nil
}

// walkSymbols descends the tree creating one chunk per symbol node. Class
// bodies are entered so methods become their own chunks carrying the class
// name; other symbol nodes terminate the descent.
func (c *Chunker) walkSymbols(node *sitter.Node, file *FileInput, cfg *LanguageConfig, imports []string, className string, out *[]*CodeChunk) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		typ := child.Type()

		if contains(cfg.SymbolTypes, typ) {
			symbol := child
			// Python decorated definitions wrap the real symbol.
			if typ == "decorated_definition" {
				if def := child.ChildByFieldName("definition"); def != nil {
					symbol = def
					typ = def.Type()
				}
			}

			ck := c.buildChunk(symbol, file, cfg, imports, className)
			if ck != nil {
				*out = append(*out, ck)
			}

			// Recurse into class bodies for per-method chunks.
			if contains(cfg.ClassTypes, typ) {
				if body := symbol.ChildByFieldName("body"); body != nil {
					name := nodeName(symbol, file.Content)
					c.walkSymbols(body, file, cfg, imports, name, out)
				}
			}
			continue
		}

		// Only descend through structural containers at the top level
		// (e.g. export statements); expression bodies are not scanned.
		if node.Type() == "program" || node.Type() == "module" || node.Type() == "source_file" ||
			typ == "export_statement" {
			c.walkSymbols(child, file, cfg, imports, className, out)
		}
	}
}

// buildChunk assembles the chunk for one symbol node.
func (c *Chunker) buildChunk(node *sitter.Node, file *FileInput, cfg *LanguageConfig, imports []string, className string) *CodeChunk {
	content := node.Content(file.Content)
	if content == "" {
		return nil
	}
	if len(content) > MaxChunkBytes {
		content = content[:MaxChunkBytes]
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	ck := &CodeChunk{
		ID:              ChunkID(file.Repository, file.Path, startLine),
		Repository:      file.Repository,
		FilePath:        file.Path,
		Language:        file.Language,
		StartLine:       startLine,
		EndLine:         endLine,
		Content:         content,
		Signature:       firstLine(content),
		Imports:         imports,
		CalledFunctions: collectCalls(node, file.Content, cfg),
		ClassName:       className,
		Docstring:       extractDocstring(node, file.Content, file.Language),
		LastModified:    file.ModTime,
	}

	name := nodeName(node, file.Content)
	switch {
	case contains(cfg.ClassTypes, node.Type()):
		ck.ClassName = name
	default:
		ck.FunctionName = name
	}
	return ck
}

// fallback produces the single whole-file chunk for unsupported or
// unparseable files.
func (c *Chunker) fallback(file *FileInput) []*CodeChunk {
	content := string(file.Content)
	if len(content) > MaxFallbackBytes {
		content = content[:MaxFallbackBytes]
	}
	endLine := strings.Count(content, "\n") + 1

	return []*CodeChunk{{
		ID:           ChunkID(file.Repository, file.Path, 1),
		Repository:   file.Repository,
		FilePath:     file.Path,
		Language:     file.Language,
		StartLine:    1,
		EndLine:      endLine,
		Content:      content,
		LastModified: file.ModTime,
	}}
}

// collectImports gathers import statements from the whole file.
func collectImports(root *sitter.Node, source []byte, cfg *LanguageConfig) []string {
	if len(cfg.ImportTypes) == 0 {
		return nil
	}
	var imports []string
	seen := map[string]bool{}

	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if depth > 4 {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if contains(cfg.ImportTypes, child.Type()) {
				text := strings.TrimSpace(child.Content(source))
				text = strings.Trim(text, `"`)
				if text != "" && !seen[text] {
					seen[text] = true
					imports = append(imports, text)
				}
				continue
			}
			walk(child, depth+1)
		}
	}
	walk(root, 0)
	return imports
}

// collectCalls gathers the names of functions called inside a symbol.
func collectCalls(node *sitter.Node, source []byte, cfg *LanguageConfig) []string {
	if len(cfg.CallTypes) == 0 {
		return nil
	}
	var calls []string
	seen := map[string]bool{}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if contains(cfg.CallTypes, child.Type()) {
				if fn := child.ChildByFieldName("function"); fn != nil {
					name := calleeName(fn, source)
					if name != "" && !seen[name] {
						seen[name] = true
						calls = append(calls, name)
					}
				}
			}
			walk(child)
		}
	}
	walk(node)
	return calls
}

// calleeName reduces a call target to its trailing identifier:
// `pkg.Do` -> Do, `obj.method` -> method, `fn` -> fn.
func calleeName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "identifier", "field_identifier", "property_identifier":
		return fn.Content(source)
	case "selector_expression", "member_expression", "attribute":
		for i := int(fn.NamedChildCount()) - 1; i >= 0; i-- {
			if name := calleeName(fn.NamedChild(i), source); name != "" {
				return name
			}
		}
	}
	return ""
}

// extractDocstring pulls the leading docstring or doc comment for a symbol.
func extractDocstring(node *sitter.Node, source []byte, language string) string {
	if language == "python" {
		// First statement of the body, when it is a bare string.
		body := node.ChildByFieldName("body")
		if body != nil && body.NamedChildCount() > 0 {
			first := body.NamedChild(0)
			if first.Type() == "expression_statement" && first.NamedChildCount() > 0 {
				if s := first.NamedChild(0); s.Type() == "string" {
					return strings.Trim(s.Content(source), `"' `)
				}
			}
		}
		return ""
	}

	// Comment block immediately preceding the symbol.
	prev := node.PrevNamedSibling()
	var lines []string
	for prev != nil && strings.Contains(prev.Type(), "comment") {
		text := strings.TrimSpace(prev.Content(source))
		text = strings.TrimPrefix(text, "//")
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
		lines = append([]string{strings.TrimSpace(text)}, lines...)
		prev = prev.PrevNamedSibling()
	}
	return strings.Join(lines, "\n")
}

// nodeName extracts the declared name of a symbol node.
func nodeName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	// Go type_declaration wraps a type_spec carrying the name.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_spec" {
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(source)
			}
		}
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
