package rank

import (
	"math"
	"path"
	"sort"
	"strings"
	"time"
)

// Candidate is one retrieval hit handed to the ranker. The pipeline maps
// index documents into this shape; the ranker never touches the index.
type Candidate struct {
	ID              string
	Repository      string
	FilePath        string
	Language        string
	StartLine       int
	EndLine         int
	FunctionName    string
	ClassName       string
	Signature       string
	Docstring       string
	Content         string
	Imports         []string
	CalledFunctions []string
	LastModified    time.Time

	// Score is the fused retrieval score in [0,1].
	Score float64

	// Relevance is the final score after ranking, in [0,1].
	Relevance float64

	// Factors records each contribution for the explainer.
	Factors []Factor
}

// Factor is one scoring contribution.
type Factor struct {
	Name         string  `json:"factor"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// Context is the caller-supplied ranking context.
type Context struct {
	// Intent is the shaped query intent.
	Intent string
	// CurrentFile is the file the caller is editing, repo-relative.
	CurrentFile string
	// WorkspaceRoot identifies the caller's repository checkout.
	WorkspaceRoot string
	// Repository is the repository the caller is working in, when known.
	Repository string
}

// Config tunes the ranker.
type Config struct {
	// FreshnessHalfLife is the age at which the freshness boost halves.
	FreshnessHalfLife time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Ranker re-weights candidates. Deterministic given the same snapshot:
// identical inputs always produce identical scores and order.
type Ranker struct {
	source SnapshotSource
	config Config
}

// NewRanker creates a Ranker reading adaptive weights from source.
func NewRanker(source SnapshotSource, cfg Config) *Ranker {
	if source == nil {
		source = StaticSnapshot{}
	}
	if cfg.FreshnessHalfLife <= 0 {
		cfg.FreshnessHalfLife = 90 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ranker{source: source, config: cfg}
}

// Boost magnitudes. Contributions are multiplicative around 1.0 and the
// final score is squashed back into [0,1].
const (
	intentBoost    = 0.25
	sameRepoBoost  = 0.15
	sameDirBoost   = 0.20
	importBoost    = 0.10
	freshnessBoost = 0.10
)

// Rank scores and sorts candidates in place: descending relevance, ties
// broken by ascending id. One snapshot is read for the whole operation.
func (r *Ranker) Rank(candidates []*Candidate, rctx Context) {
	snapshot := r.source.Latest()

	for _, c := range candidates {
		r.score(c, rctx, snapshot)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Relevance != candidates[j].Relevance {
			return candidates[i].Relevance > candidates[j].Relevance
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// score computes the final relevance for one candidate and records factors.
func (r *Ranker) score(c *Candidate, rctx Context, snapshot *WeightsSnapshot) {
	factors := make([]Factor, 0, 6)
	score := clamp01(c.Score)
	factors = append(factors, Factor{
		Name:         "retrieval",
		Contribution: score,
		Detail:       "fused BM25/vector/semantic score",
	})

	multiplier := 1.0

	if field, detail, hit := intentMatch(rctx.Intent, c); hit {
		adaptive := snapshot.Weight(rctx.Intent, field)
		boost := intentBoost * adaptive
		multiplier += boost
		factors = append(factors, Factor{
			Name:         "intent:" + rctx.Intent,
			Contribution: boost,
			Detail:       detail,
		})
		if adaptive != 1.0 {
			factors = append(factors, Factor{
				Name:         "adaptive",
				Contribution: intentBoost * (adaptive - 1.0),
				Detail:       "feedback-adjusted weight for " + rctx.Intent + "/" + field,
			})
		}
	}

	if boost, detail := contextMatch(rctx, c); boost > 0 {
		multiplier += boost
		factors = append(factors, Factor{
			Name:         "context",
			Contribution: boost,
			Detail:       detail,
		})
	}

	if boost := r.freshness(c.LastModified); boost > 0 {
		multiplier += boost
		factors = append(factors, Factor{
			Name:         "freshness",
			Contribution: boost,
			Detail:       "recently modified",
		})
	}

	c.Relevance = clamp01(score * multiplier)
	c.Factors = factors
}

// intentMatch reports whether the candidate exhibits the characteristics the
// intent favors, and which weight field that maps to.
func intentMatch(intent string, c *Candidate) (field, detail string, hit bool) {
	lower := strings.ToLower(c.Content)
	isTest := strings.Contains(c.FilePath, "_test.") ||
		strings.Contains(c.FilePath, "test_") ||
		strings.Contains(c.FilePath, "/tests/")

	switch intent {
	case "implement":
		if c.FunctionName != "" && !isTest {
			return FieldFunctionName, "complete implementation body", true
		}
	case "debug":
		if strings.Contains(lower, "err") || strings.Contains(lower, "except") ||
			strings.Contains(lower, "panic") || strings.Contains(lower, "raise") {
			return FieldErrorPaths, "contains error handling", true
		}
	case "test":
		if isTest {
			return FieldTests, "test file", true
		}
	case "document":
		if c.Docstring != "" {
			return FieldDocstring, "documented symbol", true
		}
	case "understand":
		if c.Docstring != "" || c.ClassName != "" {
			return FieldDocstring, "documented or structural symbol", true
		}
	case "refactor":
		if c.FunctionName != "" {
			return FieldFunctionName, "named symbol", true
		}
	}
	return "", "", false
}

// contextMatch scores proximity to the caller's working location.
func contextMatch(rctx Context, c *Candidate) (float64, string) {
	if rctx.CurrentFile == "" && rctx.Repository == "" {
		return 0, ""
	}

	boost := 0.0
	var details []string

	if rctx.Repository != "" && rctx.Repository == c.Repository {
		boost += sameRepoBoost
		details = append(details, "same repository")
	}

	if rctx.CurrentFile != "" {
		if path.Dir(rctx.CurrentFile) == path.Dir(c.FilePath) {
			boost += sameDirBoost
			details = append(details, "same directory")
		}
		// Import-graph adjacency: the hit imports the caller's package (an
		// import ending in the caller's directory). Packages the caller
		// imports are not considered.
		currentPkg := path.Dir(rctx.CurrentFile)
		for _, imp := range c.Imports {
			if currentPkg != "." && strings.HasSuffix(imp, currentPkg) {
				boost += importBoost
				details = append(details, "import-graph neighbor")
				break
			}
		}
	}

	return boost, strings.Join(details, ", ")
}

// freshness returns a linear decay boost: full at age 0, zero at twice the
// half-life.
func (r *Ranker) freshness(modified time.Time) float64 {
	if modified.IsZero() {
		return 0
	}
	age := r.config.Now().Sub(modified)
	if age < 0 {
		age = 0
	}
	span := 2 * r.config.FreshnessHalfLife
	if age >= span {
		return 0
	}
	return freshnessBoost * (1 - float64(age)/float64(span))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
