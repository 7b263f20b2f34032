package admin

import (
	"encoding/json"
	"os"
	"time"

	"github.com/henryperkins/mcprag/internal/azsearch"
	"github.com/henryperkins/mcprag/internal/errors"
)

// LoadSchema reads the canonical index schema from a JSON file. The file is
// versioned in source (configs/index-schema.json) and is the single source
// of truth the live index is validated against.
func LoadSchema(path string) (*azsearch.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindNotFound, "read canonical schema", err)
	}
	var idx azsearch.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "parse canonical schema", err)
	}
	if idx.Name == "" {
		return nil, errors.New(errors.KindValidation, "canonical schema has no index name")
	}
	return &idx, nil
}

// CanonicalSchema builds the built-in index definition used when no schema
// file is provided. Field set per the service contract: scalar code chunk
// fields, collection fields, the vector field, semantic configuration, and
// a freshness scoring profile.
func CanonicalSchema(name string, dimensions int) *azsearch.Index {
	if dimensions <= 0 {
		dimensions = 3072
	}
	return &azsearch.Index{
		Name: name,
		Fields: []azsearch.Field{
			{Name: "id", Type: azsearch.TypeString, Key: true, Filterable: true, Sortable: true},
			{Name: "repository", Type: azsearch.TypeString, Filterable: true, Facetable: true},
			{Name: "file_path", Type: azsearch.TypeString, Searchable: true, Filterable: true, Sortable: true},
			{Name: "language", Type: azsearch.TypeString, Filterable: true, Facetable: true},
			{Name: "start_line", Type: azsearch.TypeInt32, Filterable: true, Sortable: true},
			{Name: "end_line", Type: azsearch.TypeInt32, Filterable: true},
			{Name: "function_name", Type: azsearch.TypeString, Searchable: true, Filterable: true},
			{Name: "class_name", Type: azsearch.TypeString, Searchable: true, Filterable: true},
			{Name: "content", Type: azsearch.TypeString, Searchable: true},
			{Name: "signature", Type: azsearch.TypeString, Searchable: true},
			{Name: "docstring", Type: azsearch.TypeString, Searchable: true},
			{Name: "last_modified", Type: azsearch.TypeDateTimeOffset, Filterable: true, Sortable: true},
			{Name: "imports", Type: azsearch.TypeStringCollection, Searchable: true, Filterable: true},
			{Name: "called_functions", Type: azsearch.TypeStringCollection, Searchable: true, Filterable: true},
			{Name: "tags", Type: azsearch.TypeStringCollection, Filterable: true, Facetable: true},
			{
				Name:          "content_vector",
				Type:          azsearch.TypeSingleCollection,
				Searchable:    true,
				Dimensions:    dimensions,
				VectorProfile: "code-vector-profile",
			},
		},
		VectorSearch: &azsearch.VectorSearch{
			Algorithms: []azsearch.VectorAlgorithm{{
				Name: "code-hnsw",
				Kind: "hnsw",
				HNSW: &azsearch.HNSWParameters{M: 4, EfConstruction: 400, EfSearch: 500, Metric: "cosine"},
			}},
			Profiles: []azsearch.VectorProfile{{
				Name:      "code-vector-profile",
				Algorithm: "code-hnsw",
			}},
		},
		Semantic: &azsearch.SemanticSearch{
			Configurations: []azsearch.SemanticConfiguration{{
				Name: "code-semantic-config",
				Prioritized: azsearch.SemanticPrioritization{
					TitleField:    &azsearch.SemanticField{FieldName: "function_name"},
					ContentFields: []azsearch.SemanticField{{FieldName: "content"}, {FieldName: "docstring"}},
					KeywordFields: []azsearch.SemanticField{{FieldName: "imports"}, {FieldName: "called_functions"}},
				},
			}},
		},
		ScoringProfiles: []azsearch.ScoringProfile{{
			Name: "freshness-boost",
			Functions: []azsearch.ScoringFunc{{
				Type:          "freshness",
				FieldName:     "last_modified",
				Boost:         2,
				Interpolation: "linear",
				Freshness:     &azsearch.FreshnessParams{BoostingDuration: "P90D"},
			}},
			Aggregation: "sum",
		}},
	}
}

// cutoffRFC3339 renders the cleanup cutoff timestamp.
func cutoffRFC3339(daysOld int) string {
	return time.Now().UTC().AddDate(0, 0, -daysOld).Format(time.RFC3339)
}
