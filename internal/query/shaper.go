// Package query turns raw tool input into a ShapedQuery: validated and
// sanitized text, extracted exact terms, a classified intent, rewrite
// variants for recall, and a safe filter expression for the search service.
package query

// Intent is the user's task class. It drives field weighting in the ranker
// and rewrite strategy in the shaper.
type Intent string

const (
	IntentImplement  Intent = "implement"
	IntentDebug      Intent = "debug"
	IntentUnderstand Intent = "understand"
	IntentRefactor   Intent = "refactor"
	IntentTest       Intent = "test"
	IntentDocument   Intent = "document"
)

// KnownIntents lists every valid intent value.
var KnownIntents = []Intent{
	IntentImplement, IntentDebug, IntentUnderstand,
	IntentRefactor, IntentTest, IntentDocument,
}

// ValidIntent reports whether s names a known intent.
func ValidIntent(s string) bool {
	for _, i := range KnownIntents {
		if string(i) == s {
			return true
		}
	}
	return false
}

// Request is the raw search input before shaping.
type Request struct {
	Text       string
	Intent     string // optional; overrides classification when set
	Language   string
	Repository string
	ExactTerms []string
	MaxResults int
	Skip       int
	OrderBy    string
	BM25Only   bool
}

// ShapedQuery is the validated, enriched form consumed by the retriever.
type ShapedQuery struct {
	// Text is the sanitized query text.
	Text string
	// Intent is the supplied or classified intent.
	Intent Intent
	// IntentClassified is true when the intent came from the classifier
	// rather than the caller.
	IntentClassified bool
	// ExactTerms are caller-supplied plus extracted exact terms, deduplicated
	// in order.
	ExactTerms []string
	// Rewrites are recall-improving variants, original text first.
	Rewrites []string
	// Filter is the composed filter expression, safe against injection.
	Filter string
	// Language and Repository survive for rankers and explanations.
	Language   string
	Repository string
	// MaxResults and Skip are clamped to their valid ranges.
	MaxResults int
	Skip       int
	OrderBy    string
	BM25Only   bool
}

// Shaper composes validation, extraction, classification, and rewriting.
type Shaper struct {
	classifier *Classifier
	rewriter   *Rewriter
}

// NewShaper creates a Shaper with default classifier and rewriter.
func NewShaper() *Shaper {
	return &Shaper{
		classifier: NewClassifier(),
		rewriter:   NewRewriter(),
	}
}

// Shape validates and enriches a raw request. Validation failures return a
// structured validation error naming the offending field.
func (s *Shaper) Shape(req Request) (*ShapedQuery, error) {
	text, err := ValidateText(req.Text)
	if err != nil {
		return nil, err
	}

	maxResults, skip, err := ClampPaging(req.MaxResults, req.Skip)
	if err != nil {
		return nil, err
	}

	exact, err := sanitizeExactTerms(req.ExactTerms)
	if err != nil {
		return nil, err
	}
	exact = dedupeInOrder(append(exact, ExtractExactTerms(text)...))

	shaped := &ShapedQuery{
		Text:       text,
		ExactTerms: exact,
		Language:   req.Language,
		Repository: req.Repository,
		MaxResults: maxResults,
		Skip:       skip,
		OrderBy:    req.OrderBy,
		BM25Only:   req.BM25Only,
	}

	if req.Intent != "" {
		if !ValidIntent(req.Intent) {
			return nil, invalidField("intent", "unknown intent: "+req.Intent)
		}
		shaped.Intent = Intent(req.Intent)
	} else {
		shaped.Intent = s.classifier.Classify(text)
		shaped.IntentClassified = true
	}

	shaped.Rewrites = s.rewriter.Rewrite(text, shaped.Intent)
	shaped.Filter = BuildFilter(req.Repository, req.Language, exact)

	return shaped, nil
}

func dedupeInOrder(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
