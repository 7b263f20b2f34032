package query

import (
	"strings"
	"unicode"
)

// MaxRewrites bounds the number of variant queries sent downstream. The
// original text is always first; variants only add recall.
const MaxRewrites = 4

// Rewriter generates recall-improving query variants: synonym expansion,
// camelCase/snake_case splitting, and import-path expansion.
type Rewriter struct{}

// NewRewriter creates a Rewriter.
func NewRewriter() *Rewriter {
	return &Rewriter{}
}

// Rewrite returns 1..MaxRewrites variants, the original first. Variants are
// deduplicated; a query that produces no useful variants returns just itself.
func (r *Rewriter) Rewrite(text string, intent Intent) []string {
	variants := []string{text}

	if v := r.expandSynonyms(text); v != "" {
		variants = append(variants, v)
	}
	if v := r.splitIdentifiers(text); v != "" {
		variants = append(variants, v)
	}
	if v := r.expandImportPaths(text); v != "" {
		variants = append(variants, v)
	}
	if v := intentHint(text, intent); v != "" {
		variants = append(variants, v)
	}

	variants = dedupeInOrder(variants)
	if len(variants) > MaxRewrites {
		variants = variants[:MaxRewrites]
	}
	return variants
}

// expandSynonyms appends code-vocabulary synonyms for recognized terms.
func (r *Rewriter) expandSynonyms(text string) string {
	words := strings.Fields(text)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))

	for _, w := range words {
		lower := strings.ToLower(w)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, w)
		}
		for _, syn := range synonymsFor(lower) {
			if !seen[syn] {
				seen[syn] = true
				out = append(out, syn)
			}
		}
	}

	expanded := strings.Join(out, " ")
	if expanded == text {
		return ""
	}
	return expanded
}

// splitIdentifiers breaks camelCase and snake_case identifiers into words so
// "getUserByID" also matches "get user by id".
func (r *Rewriter) splitIdentifiers(text string) string {
	words := strings.Fields(text)
	changed := false
	out := make([]string, 0, len(words))

	for _, w := range words {
		parts := SplitIdentifier(w)
		if len(parts) > 1 {
			changed = true
			out = append(out, w)
			out = append(out, parts...)
		} else {
			out = append(out, w)
		}
	}

	if !changed {
		return ""
	}
	return strings.Join(dedupeInOrder(out), " ")
}

// expandImportPaths turns path-like terms into their segments so
// "net/http" also matches "net" and "http".
func (r *Rewriter) expandImportPaths(text string) string {
	words := strings.Fields(text)
	changed := false
	out := make([]string, 0, len(words))

	for _, w := range words {
		out = append(out, w)
		if strings.Count(w, "/") >= 1 && !strings.HasPrefix(w, "http") {
			for _, seg := range strings.Split(w, "/") {
				if seg != "" && len(seg) > 1 {
					out = append(out, seg)
					changed = true
				}
			}
		}
	}

	if !changed {
		return ""
	}
	return strings.Join(dedupeInOrder(out), " ")
}

// intentHint appends vocabulary characteristic of the intent so retrieval
// leans toward matching content (error handling for debug, tests for test).
func intentHint(text string, intent Intent) string {
	var hint string
	switch intent {
	case IntentDebug:
		hint = "error handling"
	case IntentTest:
		hint = "test assert"
	case IntentDocument:
		hint = "comment docstring"
	default:
		return ""
	}
	return text + " " + hint
}

// SplitIdentifier splits a camelCase or snake_case identifier into lowered
// words. Non-identifiers return a single-element slice.
func SplitIdentifier(s string) []string {
	s = strings.Trim(s, ".,;:()\"'")
	if s == "" {
		return nil
	}

	// snake_case and kebab-case first.
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")

	// camelCase boundaries: aB -> a B, ABb -> A Bb.
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && next) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}

	fields := strings.Fields(strings.ToLower(b.String()))
	if len(fields) <= 1 {
		return fields
	}
	return fields
}
