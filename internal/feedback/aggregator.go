package feedback

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/henryperkins/mcprag/internal/rank"
)

// emaAlpha controls how fast new aggregation results move the published
// weights. 0.3 means a persistent signal dominates after three runs or so.
const emaAlpha = 0.3

// Weight bounds keep a runaway feedback loop from zeroing or saturating a
// field.
const (
	minWeight = 0.5
	maxWeight = 2.0
)

// aggregator folds feedback events into per-(intent, field) weights and
// publishes immutable snapshots through an atomic pointer. Readers never
// block and never observe a partial table.
type aggregator struct {
	cfg      Config
	version  atomic.Int64
	snapshot atomic.Pointer[rank.WeightsSnapshot]
}

func newAggregator(cfg Config) *aggregator {
	return &aggregator{cfg: cfg}
}

// latest returns the most recent snapshot, or nil before the first rebuild
// (the ranker treats nil as neutral weights).
func (a *aggregator) latest() *rank.WeightsSnapshot {
	return a.snapshot.Load()
}

// cellStats accumulates the raw counts for one (intent, field) cell.
type cellStats struct {
	clicks    int
	positives int
	negatives int
	ratingSum int
	ratings   int
}

// rebuild recomputes weights from the window's events and publishes a new
// snapshot, EMA-blended with the previous one.
func (a *aggregator) rebuild(events []Event) {
	cells := make(map[string]*cellStats)
	// Outcome and rating events carry a query-level verdict; attribute them
	// to the cells the query's clicks touched.
	clicksByQuery := make(map[string][]string)

	for _, ev := range events {
		if ev.Kind == KindClick && ev.Intent != "" {
			key := ev.Intent + "/" + orDefaultField(ev.Field)
			cell(cells, key).clicks++
			clicksByQuery[ev.QueryID] = append(clicksByQuery[ev.QueryID], key)
		}
	}

	for _, ev := range events {
		keys := clicksByQuery[ev.QueryID]
		if len(keys) == 0 && ev.Intent != "" {
			keys = []string{ev.Intent + "/" + orDefaultField(ev.Field)}
		}
		switch ev.Kind {
		case KindOutcome:
			for _, key := range keys {
				switch ev.Outcome {
				case "success":
					cell(cells, key).positives++
				case "failure":
					cell(cells, key).negatives++
				}
			}
		case KindRating:
			for _, key := range keys {
				c := cell(cells, key)
				c.ratingSum += ev.Rating
				c.ratings++
			}
		}
	}

	prev := a.snapshot.Load()
	weights := make(map[string]float64, len(cells))

	for key, c := range cells {
		target := targetWeight(c)
		prevW := 1.0
		if prev != nil {
			if w, ok := prev.Weights[key]; ok {
				prevW = w
			}
		}
		weights[key] = clampWeight((1-emaAlpha)*prevW + emaAlpha*target)
	}

	// Cells present previously but silent this window decay toward neutral.
	if prev != nil {
		for key, w := range prev.Weights {
			if _, ok := weights[key]; !ok {
				weights[key] = clampWeight((1-emaAlpha)*w + emaAlpha*1.0)
			}
		}
	}

	next := &rank.WeightsSnapshot{
		Version:     a.version.Add(1),
		GeneratedAt: time.Now().UTC(),
		Weights:     weights,
		Events:      len(events),
	}
	a.snapshot.Store(next)

	slog.Debug("feedback weights published",
		slog.Int64("version", next.Version),
		slog.Int("events", len(events)),
		slog.Int("cells", len(weights)))
}

// targetWeight turns raw counts into a weight around 1.0. Clicks pull up
// mildly; confirmed outcomes pull hard; failures pull down; ratings map
// their 1..5 scale onto -1..+1.
func targetWeight(c *cellStats) float64 {
	signal := 0.05*float64(c.clicks) + 0.3*float64(c.positives) - 0.3*float64(c.negatives)
	if c.ratings > 0 {
		avg := float64(c.ratingSum) / float64(c.ratings)
		signal += 0.2 * (avg - 3) / 2
	}
	return clampWeight(1.0 + signal)
}

func cell(m map[string]*cellStats, key string) *cellStats {
	if c, ok := m[key]; ok {
		return c
	}
	c := &cellStats{}
	m[key] = c
	return c
}

func orDefaultField(field string) string {
	if field == "" {
		return rank.FieldContent
	}
	return field
}

func clampWeight(w float64) float64 {
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}
