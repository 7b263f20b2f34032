package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Dir:               t.TempDir(),
		AggregateInterval: time.Hour, // tests drive aggregation manually
		WindowDays:        7,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func TestRecordValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Error(t, s.Record(ctx, Event{Kind: KindClick, DocID: "d"}), "missing query_id")
	require.Error(t, s.Record(ctx, Event{QueryID: "q", Kind: KindClick}), "missing doc_id")
	require.Error(t, s.Record(ctx, Event{QueryID: "q", Kind: KindRating, Rating: 6}), "rating range")
	require.Error(t, s.Record(ctx, Event{QueryID: "q", Kind: KindOutcome, Outcome: "meh"}), "outcome enum")
	require.Error(t, s.Record(ctx, Event{QueryID: "q", Kind: "view"}), "unknown kind")

	require.NoError(t, s.Record(ctx, Event{QueryID: "q", Kind: KindClick, DocID: "d", Intent: "implement"}))
}

func TestEventsPersistInOrderAsJSONL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Config{Dir: dir, AggregateInterval: time.Hour, WindowDays: 7})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	ctx := context.Background()
	for i, doc := range []string{"d1", "d2", "d3"} {
		require.NoError(t, s.Record(ctx, Event{
			QueryID: "q1", Kind: KindClick, DocID: doc, Rank: i + 1, Intent: "debug",
		}))
	}
	s.Stop() // drains the queue

	matches, err := filepath.Glob(filepath.Join(dir, "feedback-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var docs []string
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev Event
		require.NoError(t, dec.Decode(&ev))
		docs = append(docs, ev.DocID)
	}
	assert.Equal(t, []string{"d1", "d2", "d3"}, docs, "submission order preserved")
}

func TestAggregationShiftsWeights(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Nil(t, s.Latest(), "no snapshot before first aggregation")

	// Clicks plus a success outcome for implement/function_name.
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Record(ctx, Event{
			QueryID: "q1", Kind: KindClick, DocID: "d1", Rank: 1,
			Intent: "implement", Field: "function_name",
		}))
	}
	require.NoError(t, s.Record(ctx, Event{
		QueryID: "q1", Kind: KindOutcome, Outcome: "success", Intent: "implement",
	}))

	s.Aggregate()

	snap := s.Latest()
	require.NotNil(t, snap)
	assert.Positive(t, snap.Version)
	assert.Greater(t, snap.Weight("implement", "function_name"), 1.0,
		"positive feedback must raise the weight")
	assert.Equal(t, 1.0, snap.Weight("debug", "content"), "untouched cells stay neutral")
}

func TestNegativeFeedbackLowersWeight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Event{
		QueryID: "q2", Kind: KindClick, DocID: "d9", Intent: "debug", Field: "content",
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Event{
			QueryID: "q2", Kind: KindOutcome, Outcome: "failure", Intent: "debug",
		}))
	}

	s.Aggregate()
	snap := s.Latest()
	require.NotNil(t, snap)
	assert.Less(t, snap.Weight("debug", "content"), 1.0)
	assert.GreaterOrEqual(t, snap.Weight("debug", "content"), 0.5, "weights stay bounded")
}

func TestEMASmoothsAcrossRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Event{
		QueryID: "q3", Kind: KindClick, DocID: "d1", Intent: "test", Field: "tests",
	}))
	require.NoError(t, s.Record(ctx, Event{
		QueryID: "q3", Kind: KindOutcome, Outcome: "success", Intent: "test",
	}))

	s.Aggregate()
	first := s.Latest().Weight("test", "tests")

	s.Aggregate()
	second := s.Latest().Weight("test", "tests")

	assert.Greater(t, first, 1.0)
	assert.Greater(t, second, first, "repeated signal keeps moving the EMA")
	assert.LessOrEqual(t, second, 2.0)
}

func TestSnapshotVersionsIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Event{
		QueryID: "q", Kind: KindClick, DocID: "d", Intent: "implement",
	}))

	s.Aggregate()
	v1 := s.Latest().Version
	s.Aggregate()
	v2 := s.Latest().Version
	assert.Greater(t, v2, v1)
}
