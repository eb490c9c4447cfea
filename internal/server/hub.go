package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chaz8081/notabot/internal/beat"
	"github.com/chaz8081/notabot/internal/monitor"
)

// Event types streamed over /ws.
const (
	EventStatus   = "status"
	EventBeat     = "beat"
	EventEdge     = "edge"
	EventPeak     = "peak"
	EventFlatline = "flatline"
)

const (
	writeTimeout = 100 * time.Millisecond
	eventBuffer  = 64
)

// Event is one message on the live stream.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Hub fans events out to every connected websocket client. Publishing
// never blocks: when the queue is full the event is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewHub starts the broadcast goroutine. Call Close when done.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*websocket.Conn]string),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Add registers conn and returns its client ID.
func (h *Hub) Add(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[conn] = id
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("[HTTP] websocket client connected", "client", id, "clients", n)
	return id
}

// Remove unregisters and closes conn.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	id, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
		slog.Info("[HTTP] websocket client disconnected", "client", id)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues an event for broadcast.
func (h *Hub) Publish(typ string, payload any) {
	ev := Event{Type: typ, Payload: payload, At: time.Now()}
	select {
	case <-h.done:
	case h.events <- ev:
	default:
		slog.Debug("[HTTP] event queue full, dropping", "type", typ)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*websocket.Conn
	for _, conn := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteJSON(ev); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	for _, conn := range failed {
		h.Remove(conn)
	}
}

// Close stops broadcasting and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.wg.Wait()

		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[*websocket.Conn]string)
		h.mu.Unlock()
		for conn := range clients {
			conn.Close()
		}
	})
}

// Sink streams the beat phases. Individual waveform points are not sent.
func (h *Hub) Sink() beat.PhaseSink {
	return beat.Funcs{
		OnEdge:     func(on bool) { h.Publish(EventEdge, map[string]bool{"on": on}) },
		OnPeak:     func() { h.Publish(EventPeak, nil) },
		OnFlatline: func() { h.Publish(EventFlatline, nil) },
	}
}

// PublishBeat is a beat.Options.OnBeat observer.
func (h *Hub) PublishBeat(stats beat.BeatStats) {
	h.Publish(EventBeat, stats)
}

// PublishStatus is a monitor.Controller.OnChange listener.
func (h *Hub) PublishStatus(st monitor.Status) {
	h.Publish(EventStatus, st)
}
