package query

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// classifierCacheSize bounds the classification memo. Queries repeat heavily
// in agent sessions, so a small LRU removes almost all re-classification.
const classifierCacheSize = 4096

// intentSignals maps an intent to the phrases and keywords that indicate it.
// Patterns are checked in declaration order; the first intent with a hit
// wins, with multi-word phrases ranked above single keywords.
var intentSignals = []struct {
	intent   Intent
	phrases  []string
	keywords []string
}{
	{
		intent:   IntentDebug,
		phrases:  []string{"not working", "fails with", "error when", "panics", "stack trace", "fix the", "fix a", "why does", "goes wrong"},
		keywords: []string{"bug", "debug", "error", "crash", "exception", "panic", "broken", "failure", "failing", "traceback"},
	},
	{
		intent:   IntentTest,
		phrases:  []string{"unit test", "test case", "test coverage", "write tests", "integration test", "mock the"},
		keywords: []string{"test", "tests", "testing", "mock", "assert", "fixture", "coverage"},
	},
	{
		intent:   IntentRefactor,
		phrases:  []string{"clean up", "rename all", "extract method", "reduce duplication", "split into"},
		keywords: []string{"refactor", "restructure", "simplify", "cleanup", "deduplicate", "modernize"},
	},
	{
		intent:   IntentDocument,
		phrases:  []string{"write docs", "add documentation", "document the", "docstring for"},
		keywords: []string{"document", "documentation", "docs", "readme", "comment", "docstring"},
	},
	{
		intent:   IntentUnderstand,
		phrases:  []string{"how does", "what does", "where is", "explain the", "walk through", "what happens"},
		keywords: []string{"understand", "explain", "architecture", "overview", "flow"},
	},
	{
		intent:   IntentImplement,
		phrases:  []string{"how to", "example of", "implement a", "add support", "build a", "create a"},
		keywords: []string{"implement", "implementation", "add", "create", "build", "write", "example", "support"},
	},
}

// Classifier maps query text to an Intent with a small pattern rule set.
// Deterministic and cheap; results are memoized.
type Classifier struct {
	cache *lru.Cache[string, Intent]
}

// NewClassifier creates a pattern-based intent classifier.
func NewClassifier() *Classifier {
	cache, _ := lru.New[string, Intent](classifierCacheSize)
	return &Classifier{cache: cache}
}

// Classify returns the best-matching intent for the text. Queries with no
// signal default to understand, the least assuming intent.
func (c *Classifier) Classify(text string) Intent {
	key := strings.ToLower(strings.TrimSpace(text))
	if key == "" {
		return IntentUnderstand
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	intent := classify(key)
	c.cache.Add(key, intent)
	return intent
}

func classify(lower string) Intent {
	// Phrases first: "how does X work" must beat the "how to" keyword rule.
	for _, sig := range intentSignals {
		for _, p := range sig.phrases {
			if strings.Contains(lower, p) {
				return sig.intent
			}
		}
	}

	words := strings.Fields(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,;:!?")] = true
	}

	for _, sig := range intentSignals {
		for _, k := range sig.keywords {
			if wordSet[k] {
				return sig.intent
			}
		}
	}

	return IntentUnderstand
}
