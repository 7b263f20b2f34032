// Package embed generates fixed-dimension embeddings for queries and code
// chunks via an external HTTP provider.
//
// Providers are lazy: the first call decides between the enabled and
// disabled states. A disabled provider deterministically returns empty
// results so the search pipeline can continue BM25-only, and the state is
// terminal for the life of the process.
package embed

import (
	"context"
)

// State is the provider lifecycle state.
type State int

const (
	// StateUninitialized means no call has been made yet.
	StateUninitialized State = iota
	// StateEnabled means the configuration was complete at the first call.
	StateEnabled
	// StateDisabled means embeddings are off, for example because the
	// configuration was incomplete at the first call. Terminal within a
	// process.
	StateDisabled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	default:
		return "uninitialized"
	}
}

// Embedder converts texts to vectors.
type Embedder interface {
	// Embed returns the vector for one text, or nil when disabled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	// A failed batch yields nil entries for its texts rather than failing
	// the whole call; callers decide whether partial coverage is enough.
	// A disabled provider returns a slice of nils.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the configured vector dimensionality.
	Dimensions() int

	// ModelName identifies the model for diagnostics and index validation.
	ModelName() string

	// State reports the lifecycle state without triggering initialization.
	State() State
}

// Disabled is an Embedder that is permanently disabled. Used when the
// provider is configured off or required settings are missing.
type Disabled struct {
	Model string
	Dims  int
}

var _ Embedder = (*Disabled)(nil)

// Embed returns nil, signaling no vector.
func (d *Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, nil
}

// EmbedBatch returns one nil per input.
func (d *Disabled) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// Dimensions returns the configured dimensionality (possibly zero).
func (d *Disabled) Dimensions() int { return d.Dims }

// ModelName returns the configured model name.
func (d *Disabled) ModelName() string { return d.Model }

// State always reports disabled.
func (d *Disabled) State() State { return StateDisabled }
