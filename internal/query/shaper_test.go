package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryperkins/mcprag/internal/errors"
)

func TestShapeRejectsEmptyQuery(t *testing.T) {
	s := NewShaper()
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := s.Shape(Request{Text: text})
		require.Error(t, err, "text %q", text)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	}
}

func TestShapeRejectsOversizedQuery(t *testing.T) {
	s := NewShaper()

	_, err := s.Shape(Request{Text: strings.Repeat("a", 1001)})
	require.Error(t, err)

	_, err = s.Shape(Request{Text: strings.Repeat("word ", 101)})
	require.Error(t, err)
}

func TestSanitizeRemovesDangerousPatterns(t *testing.T) {
	cases := []string{
		`<script>alert(1)</script> find auth`,
		`javascript:void(0) middleware`,
		`{{template.injection}} handler`,
		"${env.SECRET} parser",
		`auth; DROP TABLE users`,
		`x UNION SELECT password`,
	}
	for _, in := range cases {
		out := Sanitize(in)
		assert.NotContains(t, strings.ToLower(out), "<script")
		assert.NotContains(t, strings.ToLower(out), "javascript:")
		assert.NotContains(t, out, "{{")
		assert.NotContains(t, out, "${")
		assert.NotContains(t, strings.ToLower(out), "drop table")
		assert.NotContains(t, strings.ToLower(out), "union select")
	}
}

func TestClampPaging(t *testing.T) {
	max, skip, err := ClampPaging(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, max)
	assert.Equal(t, 0, skip)

	max, _, err = ClampPaging(500, 20)
	require.NoError(t, err)
	assert.Equal(t, MaxResultsCap, max)

	_, _, err = ClampPaging(10, -1)
	require.Error(t, err)

	_, _, err = ClampPaging(10, 10001)
	require.Error(t, err)
}

func TestExtractExactTerms(t *testing.T) {
	terms := ExtractExactTerms(`find "token refresh" logic in handleAuth( near line 1234`)
	assert.Equal(t, []string{"token refresh", "handleAuth", "1234"}, terms)
}

func TestExactTermsDedupedInOrder(t *testing.T) {
	s := NewShaper()
	q, err := s.Shape(Request{
		Text:       `call validate( then validate( again`,
		ExactTerms: []string{"validate", "parse"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"validate", "parse"}, q.ExactTerms)
}

func TestIntentOverrideAndClassification(t *testing.T) {
	s := NewShaper()

	q, err := s.Shape(Request{Text: "why does the parser crash", Intent: "refactor"})
	require.NoError(t, err)
	assert.Equal(t, IntentRefactor, q.Intent)
	assert.False(t, q.IntentClassified)

	q, err = s.Shape(Request{Text: "why does the parser crash"})
	require.NoError(t, err)
	assert.Equal(t, IntentDebug, q.Intent)
	assert.True(t, q.IntentClassified)

	_, err = s.Shape(Request{Text: "x", Intent: "destroy"})
	require.Error(t, err)
}

func TestClassifierPatterns(t *testing.T) {
	c := NewClassifier()
	tests := map[string]Intent{
		"write unit test for session store": IntentTest,
		"how does the cache eviction work":  IntentUnderstand,
		"implement a retry helper":          IntentImplement,
		"clean up the duplicated handlers":  IntentRefactor,
		"add documentation for the client":  IntentDocument,
		"connection pool":                   IntentUnderstand,
	}
	for text, want := range tests {
		assert.Equal(t, want, c.Classify(text), "text %q", text)
	}
}

func TestRewritesIncludeOriginalFirst(t *testing.T) {
	r := NewRewriter()
	variants := r.Rewrite("getUserByID function", IntentImplement)

	require.NotEmpty(t, variants)
	assert.Equal(t, "getUserByID function", variants[0])
	assert.LessOrEqual(t, len(variants), MaxRewrites)

	joined := strings.Join(variants, " | ")
	assert.Contains(t, joined, "user")
	assert.Contains(t, joined, "func")
}

func TestSplitIdentifier(t *testing.T) {
	assert.Equal(t, []string{"get", "user", "by", "id"}, SplitIdentifier("getUserByID"))
	assert.Equal(t, []string{"http", "server"}, SplitIdentifier("HTTPServer"))
	assert.Equal(t, []string{"snake", "case", "name"}, SplitIdentifier("snake_case_name"))
	assert.Equal(t, []string{"plain"}, SplitIdentifier("plain"))
}

func TestBuildFilterEscapesQuotes(t *testing.T) {
	f := BuildFilter("", "", []string{"foo') or 1 eq 1"})
	assert.Contains(t, f, "foo'') or 1 eq 1")
	assert.NotContains(t, f, "foo') or 1 eq 1")
}

func TestBuildFilterComposition(t *testing.T) {
	f := BuildFilter("my-repo", "Go", []string{"handleAuth"})
	assert.Contains(t, f, "repository eq 'my-repo'")
	assert.Contains(t, f, "language eq 'go'")
	assert.Contains(t, f, "handleAuth")
	assert.Equal(t, 2, strings.Count(f, " and "))

	assert.Equal(t, "", BuildFilter("", "", nil))
}
