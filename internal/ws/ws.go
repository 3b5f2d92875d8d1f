package ws

import (
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
)

// RecordsFunc returns the managed cluster records as JSON.
type RecordsFunc func() ([]byte, error)

// CancelFunc cancels the operation running for a cluster.
type CancelFunc func(clusterID string) error

// event is a message bound for one client when to is set, otherwise for the
// clients following clusterID, or for every client when clusterID is empty.
type event struct {
	to        *Client
	clusterID string
	data      []byte
}

// Hub fans cluster events out to websocket clients.
type Hub struct {
	clients    map[*Client]struct{}
	events     chan event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex

	records RecordsFunc
	cancel  CancelFunc

	// allowAnyOrigin skips the websocket origin check (dev mode).
	allowAnyOrigin bool
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn

	mu sync.Mutex
	// clusters is nil while the client follows every cluster.
	clusters map[string]bool
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		events:     make(chan event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// AllowAnyOrigin disables the same-origin check on websocket upgrades.
func (h *Hub) AllowAnyOrigin(allow bool) {
	h.allowAnyOrigin = allow
}

// SetRecords sets the source of the full_state snapshot sent on connect and
// on sync.
func (h *Hub) SetRecords(fn RecordsFunc) {
	h.records = fn
}

// SetCanceller lets clients cancel running operations with a cancel message.
func (h *Hub) SetCanceller(fn CancelFunc) {
	h.cancel = fn
}

// Run delivers events until Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case ev := <-h.events:
			h.mu.Lock()
			for c := range h.clients {
				if ev.to != nil && ev.to != c {
					continue
				}
				if ev.to == nil && !c.follows(ev.clusterID) {
					continue
				}
				select {
				case c.send <- ev.data:
				default:
					// Too slow; the client reconnects and resyncs.
					h.logger.Warn("dropping slow websocket client")
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops Run and disconnects every client. It is safe to call twice.
func (h *Hub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(clusterID string, typ MessageType, payload any) {
	data, err := NewMessage(typ, payload)
	if err != nil {
		h.logger.Error("encoding websocket message", "type", typ, "error", err)
		return
	}
	select {
	case h.events <- event{clusterID: clusterID, data: data}:
	case <-h.done:
	}
}

// RecordsChanged tells every client to refetch the cluster list.
func (h *Hub) RecordsChanged() {
	h.publish("", MsgRecordsChanged, nil)
}

// Progress sends one step of an operation to the clients following clusterID.
func (h *Hub) Progress(clusterID, operation, step string) {
	h.publish(clusterID, MsgProgress, ProgressEvent{ClusterID: clusterID, Operation: operation, Step: step})
}

// Result sends the outcome of an operation to the clients following its cluster.
func (h *Hub) Result(ev ResultEvent) {
	h.publish(ev.ClusterID, MsgResult, ev)
}

func (c *Client) follows(clusterID string) bool {
	if clusterID == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clusters == nil || c.clusters[clusterID]
}

func (c *Client) subscribe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.clusters = nil
		return
	}
	c.clusters = make(map[string]bool, len(ids))
	for _, id := range ids {
		c.clusters[id] = true
	}
}
