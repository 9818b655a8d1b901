package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftguard/driftguard/internal/api"
	"github.com/driftguard/driftguard/internal/store"
)

// Tunables for the per-connection read/write pumps.
const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// outBufSize is the per-session outbound frame buffer depth.
	outBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; CORS policy belongs to the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients on every broadcast tick.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub fans the current snapshot out to every connected WebSocket client on
// a fixed interval.
//
// Session lifecycle rule: the hub is the only closer of a session's
// outbound channel, and it closes only under the write lock after marking
// the session gone. Broadcast sends happen under the read lock, so a send
// can never interleave with a close.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// session is one connected client: its connection and outbound frame queue.
type session struct {
	conn *websocket.Conn
	out  chan []byte

	// gone is set under Hub.mu when the session is detached; it makes
	// detach idempotent between the disconnect path and the slow-client
	// eviction path.
	gone bool
}

// New creates a Hub that reads from st and broadcasts every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		sessions: make(map[*session]struct{}),
	}
}

// Run drives the broadcast ticker. It blocks until ctx is cancelled, then
// detaches every session.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.detachAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects. The current snapshot is queued before the session becomes
// visible to the broadcaster, so the client has data immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	s := &session{conn: conn, out: make(chan []byte, outBufSize)}
	if frame, err := h.frame(); err == nil {
		s.out <- frame
	}

	h.attach(s)
	defer h.detach(s)

	go s.writeLoop()
	s.readLoop() // blocks until the connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// --- session lifecycle ------------------------------------------------------

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

// detach removes the session and closes its outbound queue. Safe to call
// from both the disconnect path and the eviction path; only the first call
// closes.
func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.gone {
		return
	}
	s.gone = true
	delete(h.sessions, s)
	close(s.out)
}

func (h *Hub) detachAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.gone = true
		delete(h.sessions, s)
		close(s.out)
	}
}

// --- broadcasting -----------------------------------------------------------

// broadcast queues the current snapshot frame on every session. Sends stay
// under the read lock; closing requires the write lock, so a session seen
// here cannot have a closed queue. Sessions whose buffer is full have
// stopped draining and are evicted once the lock is released.
func (h *Hub) broadcast() {
	frame, err := h.frame()
	if err != nil {
		return
	}

	var saturated []*session
	h.mu.RLock()
	for s := range h.sessions {
		select {
		case s.out <- frame:
		default:
			saturated = append(saturated, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range saturated {
		h.detach(s)
	}
}

// frame encodes the broadcast message, same schema as GET /api/v1/snapshot.
func (h *Hub) frame() ([]byte, error) {
	return json.Marshal(Message{
		Event: "snapshot",
		Data:  api.BuildSnapshot(h.store),
	})
}

// --- per-session pumps ------------------------------------------------------

// writeLoop forwards queued frames to the connection and keeps it alive
// with pings. It exits when the queue is closed or a write fails.
func (s *session) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Detached by the hub.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames (pong, close) and detects disconnects.
// Clients send no data frames; anything readable beyond the limit is an
// error and ends the session.
func (s *session) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
