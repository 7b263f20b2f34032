package query

import (
	"regexp"
	"strings"

	"github.com/henryperkins/mcprag/internal/errors"
)

// Validation limits for query text.
const (
	MaxQueryLength  = 1000
	MaxQueryWords   = 100
	MaxResultsCap   = 30
	MaxSkip         = 10000
	MaxExactTerms   = 10
	MaxExactTermLen = 200
)

// dangerousPatterns are substrings that have no place in a code-search query
// and are stripped before the text reaches any downstream system. The query
// itself is never interpolated into the filter DSL, so this is defense in
// depth, not the only line.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script.*?>.*?</script>`),
	regexp.MustCompile(`(?is)<script.*?>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`\{\{.*?\}\}`),
	regexp.MustCompile(`\$\{.*?\}`),
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate|insert|update)\s`),
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile("\x00"),
}

// ValidateText enforces the query text rules: non-empty after trim, bounded
// length and word count, dangerous substrings removed. Returns the sanitized
// text.
func ValidateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalidField("query", "query must not be empty")
	}
	if len(text) > MaxQueryLength {
		return "", invalidField("query", "query exceeds 1000 characters")
	}
	if len(strings.Fields(text)) > MaxQueryWords {
		return "", invalidField("query", "query exceeds 100 words")
	}

	sanitized := Sanitize(text)
	if strings.TrimSpace(sanitized) == "" {
		return "", invalidField("query", "query is empty after sanitization")
	}
	return sanitized, nil
}

// Sanitize removes dangerous substrings from free text. The result never
// contains any pattern from the dangerous set.
func Sanitize(text string) string {
	for _, p := range dangerousPatterns {
		text = p.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// ClampPaging normalizes max_results and skip to their allowed ranges.
// Out-of-range skip is an error (the caller is iterating wrong); max_results
// is clamped because defaulting is the friendlier behavior.
func ClampPaging(maxResults, skip int) (int, int, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > MaxResultsCap {
		maxResults = MaxResultsCap
	}
	if skip < 0 || skip > MaxSkip {
		return 0, 0, invalidField("skip", "skip must be between 0 and 10000")
	}
	return maxResults, skip, nil
}

// exactTermPatterns match quoted phrases, numeric literals, and name( call
// patterns inside free text.
var (
	quotedPattern  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	callPattern    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\(`)
	numericPattern = regexp.MustCompile(`\b(0x[0-9a-fA-F]+|\d{3,})\b`)
)

// ExtractExactTerms pulls exact-match candidates out of query text:
// quoted phrases, call patterns like handleAuth(, and numeric literals.
// Order of appearance is preserved; duplicates removed.
func ExtractExactTerms(text string) []string {
	var terms []string

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			terms = append(terms, m[1])
		} else if m[2] != "" {
			terms = append(terms, m[2])
		}
	}
	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		terms = append(terms, m[1])
	}
	for _, m := range numericPattern.FindAllStringSubmatch(text, -1) {
		terms = append(terms, m[1])
	}

	return dedupeInOrder(terms)
}

// sanitizeExactTerms validates caller-supplied exact terms. Terms are kept
// verbatim (escaping happens in the filter builder) but bounded in count and
// length, and stripped of control characters.
func sanitizeExactTerms(terms []string) ([]string, error) {
	if len(terms) > MaxExactTerms {
		return nil, invalidField("exact_terms", "too many exact terms (max 10)")
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > MaxExactTermLen {
			return nil, invalidField("exact_terms", "exact term exceeds 200 characters")
		}
		t = strings.Map(func(r rune) rune {
			if r < 0x20 {
				return -1
			}
			return r
		}, t)
		out = append(out, t)
	}
	return out, nil
}

func invalidField(field, msg string) error {
	return errors.Validation(field, msg)
}
