// Package websocket streams committed ledger events to WebSocket clients and
// provides a reconnecting subscriber for consuming that stream.
package websocket

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"go.uber.org/zap"
)

const replayPage = 500

// HistoryFunc returns up to limit committed logs starting at index from.
type HistoryFunc func(from uint64, limit int) []ledger.Log

// HubConfig holds event hub configuration.
type HubConfig struct {
	// History serves replay requests (?from=N). Nil disables replay.
	History HistoryFunc

	SendBuffer   int
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Hub fans committed ledger logs out to connected clients. It implements
// ledger.Sink and http.Handler.
//
// Clients may filter by contract (?contract=0x..., repeatable) and resume from
// a log index (?from=N). A client whose send buffer fills is disconnected; it
// can reconnect with from set to the next index it expects.
type Hub struct {
	upgrader websocket.Upgrader
	cfg      HubConfig
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

type outbound struct {
	index uint64
	data  []byte
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan outbound
	filter map[common.Address]bool
	from   uint64
	replay bool
}

func (c *client) wants(contract common.Address) bool {
	return len(c.filter) == 0 || c.filter[contract]
}

// NewHub creates an event hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = cfg.PingInterval + 5*time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg:     cfg,
		logger:  cfg.Logger,
		clients: make(map[string]*client),
	}
}

// Publish implements ledger.Sink. It never blocks.
func (h *Hub) Publish(logs []ledger.Log) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}

	for _, l := range logs {
		data, err := json.Marshal(l)
		if err != nil {
			h.logger.Error("encode-log-failed", zap.Uint64("index", l.Index), zap.Error(err))
			continue
		}
		msg := outbound{index: l.Index, data: data}

		for id, c := range h.clients {
			if !c.wants(l.Contract) {
				continue
			}
			select {
			case c.send <- msg:
			default:
				delete(h.clients, id)
				close(c.send)
				SlowClientsDroppedTotal.Inc()
				ActiveClients.Dec()
				h.logger.Warn("slow-client-dropped", zap.String("client-id", id))
			}
		}
	}
}

// ServeHTTP upgrades the request and starts streaming.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := make(map[common.Address]bool)
	for _, raw := range q["contract"] {
		if !common.IsHexAddress(raw) {
			http.Error(w, "invalid contract address", http.StatusBadRequest)
			return
		}
		filter[common.HexToAddress(raw)] = true
	}

	c := &client{
		id:     uuid.NewString(),
		send:   make(chan outbound, h.cfg.SendBuffer),
		filter: filter,
	}
	if raw := q.Get("from"); raw != "" {
		from, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid from index", http.StatusBadRequest)
			return
		}
		if h.cfg.History == nil {
			http.Error(w, "replay not supported", http.StatusBadRequest)
			return
		}
		c.from, c.replay = from, true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket-upgrade-failed", zap.Error(err))
		return
	}
	c.conn = conn

	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	h.logger.Debug("client-connected",
		zap.String("client-id", c.id),
		zap.Int("contracts", len(filter)),
		zap.Bool("replay", c.replay))

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
		ActiveClients.Dec()
	}
	h.logger.Info("event-hub-closed")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	ActiveClients.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	ActiveClients.Dec()
}

// readPump discards client frames and keeps the read deadline fresh on pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Debug("client-disconnected", zap.String("client-id", c.id))
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	// Logs committed after registration are queued in c.send; anything at or
	// below the last replayed index is a duplicate.
	var next uint64
	if c.replay {
		var err error
		if next, err = h.replay(c); err != nil {
			return
		}
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(time.Second))
				return
			}
			if msg.index < next {
				continue
			}
			if err := h.write(c, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// replay sends history from c.from and returns the index after the last log seen.
func (h *Hub) replay(c *client) (uint64, error) {
	next := c.from
	for {
		page := h.cfg.History(next, replayPage)
		for _, l := range page {
			next = l.Index + 1
			if !c.wants(l.Contract) {
				continue
			}
			data, err := json.Marshal(l)
			if err != nil {
				return next, err
			}
			if err := h.write(c, data); err != nil {
				return next, err
			}
			ReplayedTotal.Inc()
		}
		if len(page) < replayPage {
			return next, nil
		}
	}
}

func (h *Hub) write(c *client, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		h.logger.Debug("client-write-failed", zap.String("client-id", c.id), zap.Error(err))
		return err
	}
	MessagesSentTotal.Inc()
	return nil
}
