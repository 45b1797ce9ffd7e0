// Package realtime pushes session events to connected presentation clients
// over websockets.
//
// A Hub owns every connection. Connections subscribe to one session; events
// published for that session are fanned out to its subscribers only. The hub
// loop is the single owner of the subscriber map, so registration,
// unregistration and fan-out never race.
package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// EventReady is the first frame written to every new subscriber.
const EventReady = "ready"

// Hub fans out session events to websocket clients. It implements
// services.Notifier.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	events     chan domain.Event
	done       chan struct{}

	dropped atomic.Uint64
}

// NewHub returns a hub whose event queue holds up to buffer pending events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan domain.Event, buffer),
		done:       make(chan struct{}),
	}
}

// Publish queues ev for delivery. It never blocks: when the queue is full the
// event is dropped and counted.
func (h *Hub) Publish(ev domain.Event) {
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
		droppedEvents.WithLabelValues("queue_full").Inc()
		log.Warn().Str("session_id", ev.SessionID).Str("type", ev.Type).Msg("realtime queue full; event dropped")
	}
}

// Dropped returns how many events Publish discarded.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Run serves registrations and fans out events until ctx is canceled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for sid, set := range h.clients {
				for c := range set {
					close(c.send)
					clientsGauge.Dec()
				}
				delete(h.clients, sid)
			}
			return

		case c := <-h.register:
			set := h.clients[c.sessionID]
			if set == nil {
				set = make(map[*Client]struct{})
				h.clients[c.sessionID] = set
			}
			set[c] = struct{}{}
			clientsGauge.Inc()
			c.enqueue(readyFrame(c.sessionID))

		case c := <-h.unregister:
			h.remove(c)

		case ev := <-h.events:
			set := h.clients[ev.SessionID]
			if len(set) == 0 {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("type", ev.Type).Msg("encode realtime event")
				continue
			}
			for c := range set {
				if !c.enqueue(b) {
					// Slow consumer: drop it rather than stall the hub.
					droppedEvents.WithLabelValues("slow_client").Inc()
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	clientsGauge.Dec()
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}

func readyFrame(sessionID string) []byte {
	b, _ := json.Marshal(domain.Event{Type: EventReady, SessionID: sessionID})
	return b
}
