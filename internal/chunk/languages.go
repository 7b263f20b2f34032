package chunk

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how one language maps onto chunk boundaries.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// SymbolTypes are AST node types that become chunks.
	SymbolTypes []string
	// ClassTypes is the subset of SymbolTypes that name a class; methods
	// inside them carry the class name.
	ClassTypes []string
	// ImportTypes are node types collected into the chunk's import list.
	ImportTypes []string
	// CallTypes are node types counted as function calls.
	CallTypes []string
}

// languageFor returns the config and grammar for a language name.
func languageFor(name string) (*LanguageConfig, *sitter.Language, bool) {
	cfg, ok := registry[name]
	if !ok {
		return nil, nil, false
	}
	return cfg, grammars[name], true
}

// DetectLanguage infers the language from a file path.
// Unknown extensions return "".
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return extToLang[ext]
}

// KnownLanguages returns the names of all registered languages.
func KnownLanguages() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

var (
	registry  = map[string]*LanguageConfig{}
	grammars  = map[string]*sitter.Language{}
	extToLang = map[string]string{}
)

func register(cfg *LanguageConfig, lang *sitter.Language) {
	registry[cfg.Name] = cfg
	grammars[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		extToLang[ext] = cfg.Name
	}
}

func init() {
	register(&LanguageConfig{
		Name:        "go",
		Extensions:  []string{".go"},
		SymbolTypes: []string{"function_declaration", "method_declaration", "type_declaration"},
		ImportTypes: []string{"import_spec"},
		CallTypes:   []string{"call_expression"},
	}, golang.GetLanguage())

	register(&LanguageConfig{
		Name:        "python",
		Extensions:  []string{".py"},
		SymbolTypes: []string{"function_definition", "class_definition", "decorated_definition"},
		ClassTypes:  []string{"class_definition"},
		ImportTypes: []string{"import_statement", "import_from_statement"},
		CallTypes:   []string{"call"},
	}, python.GetLanguage())

	register(&LanguageConfig{
		Name:        "javascript",
		Extensions:  []string{".js", ".jsx", ".mjs"},
		SymbolTypes: []string{"function_declaration", "class_declaration", "method_definition"},
		ClassTypes:  []string{"class_declaration"},
		ImportTypes: []string{"import_statement"},
		CallTypes:   []string{"call_expression"},
	}, javascript.GetLanguage())

	register(&LanguageConfig{
		Name:        "typescript",
		Extensions:  []string{".ts"},
		SymbolTypes: []string{"function_declaration", "class_declaration", "method_definition", "interface_declaration"},
		ClassTypes:  []string{"class_declaration"},
		ImportTypes: []string{"import_statement"},
		CallTypes:   []string{"call_expression"},
	}, typescript.GetLanguage())

	register(&LanguageConfig{
		Name:        "tsx",
		Extensions:  []string{".tsx"},
		SymbolTypes: []string{"function_declaration", "class_declaration", "method_definition"},
		ClassTypes:  []string{"class_declaration"},
		ImportTypes: []string{"import_statement"},
		CallTypes:   []string{"call_expression"},
	}, tsx.GetLanguage())
}
