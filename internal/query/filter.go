package query

import (
	"fmt"
	"strings"
)

// BuildFilter composes the search service filter expression from the
// structured parts of a request. User text never reaches this function raw:
// repository and language are identifiers, and exact terms pass through
// EscapeFilterValue, which doubles embedded single quotes per the service's
// OData string literal rules.
func BuildFilter(repository, language string, exactTerms []string) string {
	var clauses []string

	if repository != "" {
		clauses = append(clauses, fmt.Sprintf("repository eq '%s'", EscapeFilterValue(repository)))
	}
	if language != "" {
		clauses = append(clauses, fmt.Sprintf("language eq '%s'", EscapeFilterValue(strings.ToLower(language))))
	}
	for _, term := range exactTerms {
		escaped := EscapeFilterValue(term)
		clauses = append(clauses,
			fmt.Sprintf("(search.ismatch('\"%s\"', 'content,function_name,signature', 'simple', 'all'))", escaped))
	}

	return strings.Join(clauses, " and ")
}

// EscapeFilterValue escapes a string for use inside an OData single-quoted
// literal. Single quotes are doubled; control characters are dropped.
// This is the only sanctioned path for user data into the filter DSL.
func EscapeFilterValue(v string) string {
	v = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return -1
		}
		return r
	}, v)
	return strings.ReplaceAll(v, "'", "''")
}
