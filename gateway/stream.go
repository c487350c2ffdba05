package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// StateView is the JSON form of a committed flow snapshot sent to clients.
type StateView struct {
	Revision      uint64                    `json:"revision"`
	Nodes         []flow.Node               `json:"nodes"`
	Edges         []flow.Edge               `json:"edges"`
	EipConfigs    map[string]flow.EipConfig `json:"eipConfigs"`
	Layout        layout.Settings           `json:"layout"`
	SelectedChild string                    `json:"selectedChild,omitempty"`
	Selection     flow.Selection            `json:"selection"`
}

func stateView(s flow.Snapshot) StateView {
	v := StateView{
		Revision:      s.Revision,
		Nodes:         s.Nodes,
		Edges:         s.Edges,
		EipConfigs:    s.EipConfigs,
		Layout:        s.Layout,
		SelectedChild: s.SelectedChild,
		Selection:     s.Selection,
	}
	if v.Nodes == nil {
		v.Nodes = []flow.Node{}
	}
	if v.Edges == nil {
		v.Edges = []flow.Edge{}
	}
	if v.EipConfigs == nil {
		v.EipConfigs = map[string]flow.EipConfig{}
	}
	return v
}

// streamClient is one WebSocket subscriber. Only the newest pending snapshot
// is kept, so a slow client skips intermediate revisions instead of blocking
// the store.
type streamClient struct {
	id     string
	conn   *websocket.Conn
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	pending  *flow.Snapshot
	lastSent uint64
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{
		id:     uuid.NewString(),
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push queues snap unless a newer revision is already queued or sent.
func (c *streamClient) push(snap flow.Snapshot) {
	c.mu.Lock()
	if snap.Revision < c.lastSent || (c.pending != nil && snap.Revision <= c.pending.Revision) {
		c.mu.Unlock()
		return
	}
	c.pending = &snap
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *streamClient) take() (flow.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return flow.Snapshot{}, false
	}
	snap := *c.pending
	c.pending = nil
	c.lastSent = snap.Revision
	return snap, true
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		writeJSONError(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	c := newStreamClient(conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()
	s.streamClients.Inc()

	logger := s.logger.With("client_id", c.id)
	logger.Info("Stream client connected", "remote_addr", r.RemoteAddr)

	unsubscribe := s.store.Subscribe(c.push)
	c.push(s.store.Snapshot())

	go func() {
		defer s.wg.Done()
		s.writeLoop(c, logger)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(c)
		unsubscribe()
		c.close()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		s.streamClients.Dec()
		logger.Info("Stream client disconnected")
	}()
}

func (s *Server) writeLoop(c *streamClient, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
			snap, ok := c.take()
			if !ok {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(stateView(snap)); err != nil {
				logger.Debug("Stream write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop discards client messages and returns once the connection fails or
// stops answering pings.
func (s *Server) readLoop(c *streamClient) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
