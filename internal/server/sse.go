package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/henryperkins/mcprag/internal/auth"
)

// keepaliveInterval is how often an idle stream receives a comment frame so
// proxies keep the connection open.
const keepaliveInterval = 30 * time.Second

// sseQueueSize bounds one subscriber's pending events. A slow consumer
// drops events rather than blocking publishers.
const sseQueueSize = 64

// sseEvent is one server-pushed frame.
type sseEvent struct {
	Type string
	Data any
}

// subscriber is one connected event stream.
type subscriber struct {
	id     string
	userID string
	events chan sseEvent
}

// sseHub fans events out to per-session queues.
type sseHub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func newSSEHub() *sseHub {
	return &sseHub{subs: make(map[string]*subscriber)}
}

// subscribe registers a stream for a user.
func (h *sseHub) subscribe(userID string) *subscriber {
	sub := &subscriber{
		id:     uuid.NewString(),
		userID: userID,
		events: make(chan sseEvent, sseQueueSize),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// unsubscribe removes a stream.
func (h *sseHub) unsubscribe(id string) {
	h.mu.Lock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.events)
	}
	h.mu.Unlock()
}

// publish delivers an event to every stream of one user. Full queues drop.
func (h *sseHub) publish(userID, eventType string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.events <- sseEvent{Type: eventType, Data: data}:
		default:
		}
	}
}

// closeAll disconnects every stream (shutdown).
func (h *sseHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.events)
	}
}

// handleSSE streams `event: <type>\ndata: <json>\n\n` frames with 30s
// keepalives, disconnecting cleanly when the client goes away.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusNotImplemented)
		return
	}

	principal := auth.FromContext(r.Context())
	if principal == nil {
		principal = auth.Anonymous()
	}

	sub := s.sse.subscribe(principal.UserID)
	defer s.sse.unsubscribe(sub.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeFrame(w, "connected", map[string]any{"session": sub.id})
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.events:
			if !ok {
				return
			}
			writeFrame(w, ev.Type, ev.Data)
			flusher.Flush()
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}
