// Package broadcast pushes best-effort live events to connected clients.
package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

// Topics.
const (
	TopicNewReport         = "newReport"
	TopicReportStatus      = "reportStatusUpdated"
	TopicReportClassified  = "reportClassified"
	defaultSendBuffer      = 64
	defaultWriteWait       = 5 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultPingPeriod      = (defaultPongWait * 9) / 10
	defaultMaxInboundFrame = 512
)

// Emitter publishes an event to every live subscriber without blocking.
type Emitter interface {
	Emit(topic string, payload any)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(string, any) {}

// Event is the frame written to subscribers.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	At    int64  `json:"at"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket subscribers. Slow subscribers lose frames.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	upgrader websocket.Upgrader
	buffer   int
	log      logger.Logger
	closed   bool
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSendBuffer sets the per-subscriber frame buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[*subscriber]struct{}),
		buffer: defaultSendBuffer,
		log:    logger.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emit encodes the event once and queues it for every subscriber.
func (h *Hub) Emit(topic string, payload any) {
	frame, err := sonic.Marshal(Event{Event: topic, Data: payload, At: time.Now().UnixMilli()})
	if err != nil {
		h.log.Error(context.Background(), "encode broadcast", logger.String("topic", topic), logger.Error(err))
		return
	}
	metrics.RecordBroadcast(topic)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			metrics.RecordBroadcastDropped()
		}
	}
}

// Subscribers returns the live subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	s := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.add(s) {
		_ = conn.Close()
		return
	}
	go h.writeLoop(s)
	h.readLoop(s)
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	metrics.UpdateSubscribers(len(h.subs))
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
	metrics.UpdateSubscribers(len(h.subs))
}

// readLoop discards inbound frames; it exists to observe close and pongs.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)
	s.conn.SetReadLimit(defaultMaxInboundFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(defaultPingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
	metrics.UpdateSubscribers(0)
}
