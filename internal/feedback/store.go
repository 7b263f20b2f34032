// Package feedback records search feedback events and aggregates them into
// the adaptive ranking weights consumed by the ranker.
//
// Events land in one JSON-lines file per UTC day. Writes flow through a
// single writer goroutine per store, so events from one session persist in
// submission order, and a persistence failure never propagates to the tool
// call that produced the event.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/henryperkins/mcprag/internal/errors"
	"github.com/henryperkins/mcprag/internal/rank"
)

// Kind is the feedback event type.
type Kind string

const (
	KindClick   Kind = "click"
	KindOutcome Kind = "outcome"
	KindRating  Kind = "rating"
)

// Event is one feedback record.
type Event struct {
	QueryID string `json:"query_id"`
	Kind    Kind   `json:"kind"`
	DocID   string `json:"doc_id,omitempty"`
	Rank    int    `json:"rank,omitempty"`
	// Outcome is success | partial | failure for outcome events.
	Outcome string  `json:"outcome,omitempty"`
	Score   float64 `json:"score,omitempty"`
	// Rating is 1..5 for explicit rating events.
	Rating int `json:"rating,omitempty"`
	// Intent and Field locate the event in the weights table.
	Intent string `json:"intent,omitempty"`
	Field  string `json:"field,omitempty"`
	// Context carries free-form caller context.
	Context map[string]string `json:"context,omitempty"`
	TS      time.Time         `json:"ts"`
}

// Validate checks event invariants.
func (e *Event) Validate() error {
	if e.QueryID == "" {
		return errors.Validation("query_id", "query_id is required")
	}
	switch e.Kind {
	case KindClick:
		if e.DocID == "" {
			return errors.Validation("doc_id", "doc_id is required for click events")
		}
	case KindOutcome:
		switch e.Outcome {
		case "success", "partial", "failure":
		default:
			return errors.Validation("outcome", "outcome must be success, partial, or failure")
		}
	case KindRating:
		if e.Rating < 1 || e.Rating > 5 {
			return errors.Validation("rating", "rating must be between 1 and 5")
		}
	default:
		return errors.Validation("kind", "kind must be click, outcome, or rating")
	}
	return nil
}

// Config configures the Store.
type Config struct {
	// Dir is the directory holding day files.
	Dir string
	// AggregateInterval is how often the weights snapshot refreshes.
	AggregateInterval time.Duration
	// WindowDays is the sliding aggregation window.
	WindowDays int
	// QueueSize bounds the async write queue.
	QueueSize int
}

// Store is the append-only feedback log with an in-memory tail buffer and a
// background aggregator. Lifecycles are explicit: nothing runs until Start,
// and Stop drains the queue.
type Store struct {
	cfg Config
	agg *aggregator

	mu      sync.Mutex
	tail    []Event // last QueueSize events, persisted or not, newest last
	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewStore creates a Store. Call Start to begin persisting and aggregating.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New(errors.KindValidation, "feedback dir is required")
	}
	if cfg.AggregateInterval <= 0 {
		cfg.AggregateInterval = 5 * time.Minute
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create feedback dir", err)
	}

	return &Store{
		cfg: cfg,
		agg: newAggregator(cfg),
	}, nil
}

// Start launches the writer and aggregator goroutines.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.queue = make(chan Event, s.cfg.QueueSize)
	s.done = make(chan struct{})
	s.started = true

	s.wg.Add(2)
	go s.writeLoop()
	go s.aggregateLoop()
	return nil
}

// Stop drains pending writes and stops the background goroutines.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.done)
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Record accepts an event. The event is acknowledged once it is in the tail
// buffer and queued for persistence; disk failures are retried in the
// background and never fail the originating call.
func (s *Store) Record(_ context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New(errors.KindInternal, "feedback store not started")
	}

	s.tail = append(s.tail, ev)
	if len(s.tail) > s.cfg.QueueSize {
		s.tail = s.tail[len(s.tail)-s.cfg.QueueSize:]
	}

	select {
	case s.queue <- ev:
	default:
		// Queue full: the tail buffer still has the event, the aggregator
		// still sees it, only durability is degraded. Log and move on.
		slog.Warn("feedback queue full, event not persisted",
			slog.String("query_id", ev.QueryID),
			slog.String("kind", string(ev.Kind)))
	}
	return nil
}

// Latest implements rank.SnapshotSource. Reads are lock-free: the
// aggregator publishes complete snapshots through an atomic pointer.
func (s *Store) Latest() *rank.WeightsSnapshot {
	return s.agg.latest()
}

// Aggregate forces a synchronous aggregation run. The aggregate loop calls
// it on every tick; tests call it directly.
func (s *Store) Aggregate() {
	events := s.windowEvents()
	s.agg.rebuild(events)
}

// writeLoop persists queued events; a failed write is retried with the next
// event or on the next five-second tick.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	var pending []Event
	retry := time.NewTicker(5 * time.Second)
	defer retry.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.appendEvents(pending); err != nil {
			slog.Warn("feedback persistence failed, will retry",
				slog.Int("pending", len(pending)),
				slog.String("error", err.Error()))
			return
		}
		pending = pending[:0]
	}

	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			pending = append(pending, ev)
			flush()
		case <-retry.C:
			flush()
		}
	}
}

// aggregateLoop periodically rebuilds the weights snapshot.
func (s *Store) aggregateLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.AggregateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Aggregate()
		}
	}
}

// appendEvents writes events to today's day file under an advisory lock so
// multiple processes sharing the directory do not interleave lines.
func (s *Store) appendEvents(events []Event) error {
	path := s.dayFile(time.Now().UTC())

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock day file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open day file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	return nil
}

// dayFile returns the JSONL path for a UTC day.
func (s *Store) dayFile(day time.Time) string {
	return filepath.Join(s.cfg.Dir, "feedback-"+day.Format("2006-01-02")+".jsonl")
}

// windowEvents loads all events inside the sliding window: day files plus
// the in-memory tail (which may not have hit disk yet). Tail events already
// read from a day file are skipped.
func (s *Store) windowEvents() []Event {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.WindowDays)

	var events []Event
	for d := 0; d <= s.cfg.WindowDays; d++ {
		day := time.Now().UTC().AddDate(0, 0, -d)
		path := s.dayFile(day)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		dec := json.NewDecoder(f)
		for {
			var ev Event
			if err := dec.Decode(&ev); err != nil {
				break
			}
			if ev.TS.After(cutoff) {
				events = append(events, ev)
			}
		}
		_ = f.Close()
	}

	s.mu.Lock()
	tail := make([]Event, len(s.tail))
	copy(tail, s.tail)
	s.mu.Unlock()

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[eventKey(ev)] = true
	}
	for _, ev := range tail {
		if !seen[eventKey(ev)] && ev.TS.After(cutoff) {
			events = append(events, ev)
		}
	}
	return events
}

func eventKey(ev Event) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", ev.QueryID, ev.Kind, ev.DocID, ev.Rating, ev.TS.Format(time.RFC3339Nano))
}
