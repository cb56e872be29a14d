package notifier

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// HubOptions tunes the websocket hub.
type HubOptions struct {
	PingPeriod time.Duration // Keep-alive interval
	SendBuffer int
}

// Hub is the websocket broadcaster. Each subscriber has a bounded send queue;
// a subscriber whose queue is full misses the event instead of stalling the
// publisher.
type Hub struct {
	opts     HubOptions
	upgrader websocket.Upgrader
	clients  *xsync.Map[uint64, *client]
	nextID   atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

type client struct {
	id     uint64
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool // nil means every topic
	done   chan struct{}
	once   sync.Once
}

func NewHub(opts HubOptions) *Hub {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: xsync.NewMap[uint64, *client](),
	}
}

// ParseTopics reads the comma separated ?topics= filter. An empty or unknown
// list subscribes to everything.
func ParseTopics(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	topics := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == model.TopicNewRequest || t == model.TopicErrorRequest {
			topics[t] = true
		}
	}
	if len(topics) == 0 {
		return nil
	}
	return topics
}

// ServeHTTP upgrades the connection and registers a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		id:     h.nextID.Add(1),
		conn:   conn,
		send:   make(chan []byte, h.opts.SendBuffer),
		topics: ParseTopics(r.URL.Query().Get("topics")),
		done:   make(chan struct{}),
	}
	h.clients.Store(c.id, c)
	metrics.Subscribers.Inc()
	if h.closed.Load() {
		h.drop(c)
		return
	}
	logger.Debug("subscriber connected", "id", c.id, "remote", r.RemoteAddr)

	h.wg.Add(2)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish queues ev for every subscriber of topic.
func (h *Hub) Publish(_ context.Context, topic string, ev model.Event) {
	if h.closed.Load() {
		return
	}
	payload, err := encode(topic, ev)
	if err != nil {
		logger.Error("encode event failed", "error", err, "topic", topic)
		return
	}
	h.clients.Range(func(_ uint64, c *client) bool {
		if c.topics != nil && !c.topics[topic] {
			return true
		}
		select {
		case c.send <- payload:
		default:
			logger.Warn("subscriber too slow, event dropped", "id", c.id, "topic", topic)
		}
		return true
	})
}

// Subscribers reports how many connections are registered.
func (h *Hub) Subscribers() int {
	return h.clients.Size()
}

// Close disconnects every subscriber and waits for their loops to exit.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.clients.Range(func(_ uint64, c *client) bool {
		h.drop(c)
		return true
	})
	h.wg.Wait()
}

func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		h.clients.Delete(c.id)
		metrics.Subscribers.Dec()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()
	defer h.drop(c)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only watches for pongs and the close frame; subscribers do not
// send anything meaningful.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.drop(c)

	// Zombie check: nothing (not even a pong) within two ping periods means dead.
	readTimeout := 2 * h.opts.PingPeriod
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
