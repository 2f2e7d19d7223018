// Package audit fans policy decisions out to server-sent event subscribers.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/TwigBush/ordergate/internal/policy"
)

type Event struct {
	Trace     string            `json:"trace,omitempty"`
	At        time.Time         `json:"at"`
	Method    string            `json:"method"`
	Operation policy.Operation  `json:"operation"`
	Caller    string            `json:"caller"`
	Effect    policy.Effect     `json:"effect"`
	Rule      string            `json:"rule"`
	Predicate *policy.Predicate `json:"predicate,omitempty"`
}

// NewEvent builds the event for a decision.
func NewEvent(traceID string, m policy.Method, op policy.Operation, c policy.Caller, d policy.Decision) Event {
	ev := Event{
		Trace:     traceID,
		At:        time.Now().UTC(),
		Method:    string(m),
		Operation: op,
		Caller:    c.String(),
		Effect:    d.Effect,
		Rule:      d.Rule,
	}
	if d.Allowed() {
		p := d.Predicate
		ev.Predicate = &p
	}
	return ev
}

// Publisher receives decision events.
type Publisher interface {
	Publish(ev Event)
}

type Discard struct{}

func (Discard) Publish(Event) {}

type Hub struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	buffer  int
}

func NewHub() *Hub { return &Hub{clients: map[chan Event]struct{}{}, buffer: 128} }

func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	go func() { <-ctx.Done(); h.mu.Lock(); delete(h.clients, ch); close(ch); h.mu.Unlock() }()
	return ch
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default: /* drop */
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	enc := json.NewEncoder(w)
	_, _ = w.Write([]byte("event: ping\ndata: {}\n\n"))
	flusher.Flush()

	events := h.Subscribe(r.Context())
	slog.Debug("audit subscriber joined", "subscribers", h.Subscribers())
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: decision\ndata: "))
			_ = enc.Encode(ev)
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		}
	}
}
