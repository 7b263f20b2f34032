package azsearch

// Index mirrors the search service index schema. Only the fields this
// service manages are modeled; properties the service returns beyond these
// are dropped when a response is decoded.
type Index struct {
	Name            string           `json:"name"`
	Fields          []Field          `json:"fields"`
	ScoringProfiles []ScoringProfile `json:"scoringProfiles,omitempty"`
	Suggesters      []Suggester      `json:"suggesters,omitempty"`
	Analyzers       []Analyzer       `json:"analyzers,omitempty"`
	VectorSearch    *VectorSearch    `json:"vectorSearch,omitempty"`
	Semantic        *SemanticSearch  `json:"semantic,omitempty"`
	ETag            string           `json:"@odata.etag,omitempty"`
}

// Field describes one index field.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Key         bool   `json:"key,omitempty"`
	Searchable  bool   `json:"searchable,omitempty"`
	Filterable  bool   `json:"filterable,omitempty"`
	Sortable    bool   `json:"sortable,omitempty"`
	Facetable   bool   `json:"facetable,omitempty"`
	Retrievable *bool  `json:"retrievable,omitempty"`
	Analyzer    string `json:"analyzer,omitempty"`

	// Vector field attributes.
	Dimensions    int    `json:"dimensions,omitempty"`
	VectorProfile string `json:"vectorSearchProfile,omitempty"`
}

// Common field type strings used by the canonical schema.
const (
	TypeString           = "Edm.String"
	TypeInt32            = "Edm.Int32"
	TypeInt64            = "Edm.Int64"
	TypeDouble           = "Edm.Double"
	TypeBoolean          = "Edm.Boolean"
	TypeDateTimeOffset   = "Edm.DateTimeOffset"
	TypeStringCollection = "Collection(Edm.String)"
	TypeSingleCollection = "Collection(Edm.Single)"
)

// ScoringProfile boosts results by freshness or popularity.
type ScoringProfile struct {
	Name        string        `json:"name"`
	Text        *TextWeights  `json:"text,omitempty"`
	Functions   []ScoringFunc `json:"functions,omitempty"`
	Aggregation string        `json:"functionAggregation,omitempty"`
}

// TextWeights maps field names to relative text weights.
type TextWeights struct {
	Weights map[string]float64 `json:"weights"`
}

// ScoringFunc is a single scoring function (freshness, magnitude, tag).
type ScoringFunc struct {
	Type          string           `json:"type"`
	FieldName     string           `json:"fieldName"`
	Boost         float64          `json:"boost"`
	Interpolation string           `json:"interpolation,omitempty"`
	Freshness     *FreshnessParams `json:"freshness,omitempty"`
	Magnitude     *MagnitudeParams `json:"magnitude,omitempty"`
}

// FreshnessParams configures a freshness scoring function.
type FreshnessParams struct {
	BoostingDuration string `json:"boostingDuration"`
}

// MagnitudeParams configures a magnitude scoring function.
type MagnitudeParams struct {
	BoostingRangeStart       float64 `json:"boostingRangeStart"`
	BoostingRangeEnd         float64 `json:"boostingRangeEnd"`
	ConstantBoostBeyondRange bool    `json:"constantBoostBeyondRange,omitempty"`
}

// Suggester enables prefix suggestions over the listed fields.
type Suggester struct {
	Name         string   `json:"name"`
	SearchMode   string   `json:"searchMode"`
	SourceFields []string `json:"sourceFields"`
}

// Analyzer is a custom analyzer definition.
type Analyzer struct {
	Name         string   `json:"name"`
	Type         string   `json:"@odata.type"`
	Tokenizer    string   `json:"tokenizer,omitempty"`
	TokenFilters []string `json:"tokenFilters,omitempty"`
}

// VectorSearch declares ANN algorithms and the profiles fields reference.
type VectorSearch struct {
	Algorithms []VectorAlgorithm `json:"algorithms"`
	Profiles   []VectorProfile   `json:"profiles"`
}

// VectorAlgorithm configures one ANN algorithm.
type VectorAlgorithm struct {
	Name string          `json:"name"`
	Kind string          `json:"kind"`
	HNSW *HNSWParameters `json:"hnswParameters,omitempty"`
}

// HNSWParameters tunes the HNSW graph.
type HNSWParameters struct {
	M              int    `json:"m,omitempty"`
	EfConstruction int    `json:"efConstruction,omitempty"`
	EfSearch       int    `json:"efSearch,omitempty"`
	Metric         string `json:"metric,omitempty"`
}

// VectorProfile names an algorithm configuration for vector fields.
type VectorProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

// SemanticSearch declares semantic configurations.
type SemanticSearch struct {
	Configurations []SemanticConfiguration `json:"configurations"`
}

// SemanticConfiguration names the title/content/keyword fields used by the
// server-side semantic ranker.
type SemanticConfiguration struct {
	Name        string                 `json:"name"`
	Prioritized SemanticPrioritization `json:"prioritizedFields"`
}

// SemanticPrioritization lists prioritized fields for semantic ranking.
type SemanticPrioritization struct {
	TitleField    *SemanticField  `json:"titleField,omitempty"`
	ContentFields []SemanticField `json:"prioritizedContentFields,omitempty"`
	KeywordFields []SemanticField `json:"prioritizedKeywordsFields,omitempty"`
}

// SemanticField references a field by name.
type SemanticField struct {
	FieldName string `json:"fieldName"`
}

// IndexStats reports document count and storage size for an index.
type IndexStats struct {
	DocumentCount   int64 `json:"documentCount"`
	StorageSize     int64 `json:"storageSize"`
	VectorIndexSize int64 `json:"vectorIndexSize,omitempty"`
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Search                string        `json:"search,omitempty"`
	QueryType             string        `json:"queryType,omitempty"` // simple | full | semantic
	SearchMode            string        `json:"searchMode,omitempty"`
	SearchFields          string        `json:"searchFields,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	OrderBy               string        `json:"orderby,omitempty"`
	Select                string        `json:"select,omitempty"`
	Top                   int           `json:"top,omitempty"`
	Skip                  int           `json:"skip,omitempty"`
	Count                 bool          `json:"count,omitempty"`
	Highlight             string        `json:"highlight,omitempty"`
	HighlightPreTag       string        `json:"highlightPreTag,omitempty"`
	HighlightPostTag      string        `json:"highlightPostTag,omitempty"`
	ScoringProfile        string        `json:"scoringProfile,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	Captions              string        `json:"captions,omitempty"`
	Answers               string        `json:"answers,omitempty"`
	VectorQueries         []VectorQuery `json:"vectorQueries,omitempty"`
}

// VectorQuery is a k-NN sub-query over a vector field.
type VectorQuery struct {
	Kind       string    `json:"kind"` // always "vector"
	Vector     []float32 `json:"vector"`
	Fields     string    `json:"fields"`
	K          int       `json:"k"`
	Exhaustive bool      `json:"exhaustive,omitempty"`
}

// Document is a retrieved or uploaded index document. The search service
// models documents as open property bags, so a map mirrors the wire shape.
type Document map[string]any

// Str returns a string field, or "" when absent or differently typed.
func (d Document) Str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer field; JSON numbers arrive as float64.
func (d Document) Int(key string) int {
	switch v := d[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Float returns a float field.
func (d Document) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Strings returns a string-collection field.
func (d Document) Strings(key string) []string {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Floats returns a float-collection field (vectors).
func (d Document) Floats(key string) []float32 {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

// Well-known response annotation keys.
const (
	KeyScore         = "@search.score"
	KeyRerankerScore = "@search.rerankerScore"
	KeyHighlights    = "@search.highlights"
	KeyCaptions      = "@search.captions"
)

// SearchResponse is the body returned by a search call.
type SearchResponse struct {
	Count     int64      `json:"@odata.count,omitempty"`
	Documents []Document `json:"value"`
	Answers   []Answer   `json:"@search.answers,omitempty"`
}

// Answer is a semantic answer extracted by the service.
type Answer struct {
	Text       string  `json:"text"`
	Highlights string  `json:"highlights,omitempty"`
	Score      float64 `json:"score"`
}

// IndexBatch is a document upload/merge/delete batch.
type IndexBatch struct {
	Actions []IndexAction `json:"value"`
}

// IndexAction is one document action within a batch.
type IndexAction struct {
	ActionType string `json:"@search.action"` // upload | merge | mergeOrUpload | delete
	Document
}

// MarshalJSON flattens the document fields beside the action annotation.
func (a IndexAction) MarshalJSON() ([]byte, error) {
	flat := make(Document, len(a.Document)+1)
	for k, v := range a.Document {
		flat[k] = v
	}
	flat["@search.action"] = a.ActionType
	return marshalDocument(flat)
}

// IndexBatchResult reports per-document outcomes for a batch.
type IndexBatchResult struct {
	Results []IndexActionResult `json:"value"`
}

// IndexActionResult is the outcome of a single batch action.
type IndexActionResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StatusCode   int    `json:"statusCode"`
}

// Succeeded counts successful actions.
func (r IndexBatchResult) Succeeded() int {
	n := 0
	for _, a := range r.Results {
		if a.Status {
			n++
		}
	}
	return n
}

// Failed returns the failed action results.
func (r IndexBatchResult) Failed() []IndexActionResult {
	var out []IndexActionResult
	for _, a := range r.Results {
		if !a.Status {
			out = append(out, a)
		}
	}
	return out
}

// Indexer pulls documents from a data source into an index.
type Indexer struct {
	Name            string           `json:"name"`
	DataSourceName  string           `json:"dataSourceName"`
	TargetIndexName string           `json:"targetIndexName"`
	SkillsetName    string           `json:"skillsetName,omitempty"`
	Schedule        *IndexerSchedule `json:"schedule,omitempty"`
	Disabled        bool             `json:"disabled,omitempty"`
}

// IndexerSchedule is the indexer run cadence.
type IndexerSchedule struct {
	Interval  string `json:"interval"`
	StartTime string `json:"startTime,omitempty"`
}

// IndexerStatus reports the latest indexer execution.
type IndexerStatus struct {
	Status           string             `json:"status"`
	LastResult       *IndexerExecution  `json:"lastResult,omitempty"`
	ExecutionHistory []IndexerExecution `json:"executionHistory,omitempty"`
}

// IndexerExecution is a single indexer run record.
type IndexerExecution struct {
	Status         string `json:"status"` // inProgress | success | transientFailure | persistentFailure | reset
	ErrorMessage   string `json:"errorMessage,omitempty"`
	StartTime      string `json:"startTime,omitempty"`
	EndTime        string `json:"endTime,omitempty"`
	ItemsProcessed int    `json:"itemsProcessed,omitempty"`
	ItemsFailed    int    `json:"itemsFailed,omitempty"`
}

// DataSource describes an indexer data source connection.
type DataSource struct {
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	Credentials DataSourceCredentials `json:"credentials"`
	Container   DataSourceContainer   `json:"container"`
	Description string                `json:"description,omitempty"`
}

// DataSourceCredentials carries the connection string.
type DataSourceCredentials struct {
	ConnectionString string `json:"connectionString"`
}

// DataSourceContainer names the source container or table.
type DataSourceContainer struct {
	Name  string `json:"name"`
	Query string `json:"query,omitempty"`
}

// Skillset is an enrichment pipeline applied during indexer runs.
type Skillset struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Skills      []Skill `json:"skills"`
}

// Skill is a single enrichment step. Shapes vary by skill type, so inputs
// and outputs stay loosely typed.
type Skill struct {
	Type    string         `json:"@odata.type"`
	Name    string         `json:"name,omitempty"`
	Context string         `json:"context,omitempty"`
	Inputs  []SkillMapping `json:"inputs,omitempty"`
	Outputs []SkillMapping `json:"outputs,omitempty"`
}

// SkillMapping connects a skill input or output to a document path.
type SkillMapping struct {
	Name       string `json:"name"`
	Source     string `json:"source,omitempty"`
	TargetName string `json:"targetName,omitempty"`
}
