package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// subscriber is one websocket connection. Only its writer goroutine
// touches conn for writes.
type subscriber struct {
	userID string
	conn   *websocket.Conn
	send   chan api.ChangeEvent
}

// wants reports whether the event may be shown to this user at now: their
// own capsules, and public ones of others that are already unlocked.
func (s *subscriber) wants(ev api.ChangeEvent, now time.Time) bool {
	if ev.OwnerID == s.userID {
		return true
	}
	return ev.Visibility == "public" && (ev.UnlockAt == nil || !now.Before(*ev.UnlockAt))
}

// Hub pushes change events from a Bus to websocket subscribers.
type Hub struct {
	bus      Bus
	clock    clock.Clock
	log      logging.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub(bus Bus, clk clock.Clock, log logging.Logger) *Hub {
	return &Hub{
		bus:   bus,
		clock: clk,
		log:   log.With("module", "events_hub"),
		subs:  make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are native apps and authenticate with a bearer
			// token, so there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run relays bus events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ch, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range ch {
		h.deliver(ctx, ev)
	}
	return nil
}

func (h *Hub) deliver(ctx context.Context, ev api.ChangeEvent) {
	now := h.clock.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(ev, now) {
			continue
		}
		select {
		case s.send <- ev:
		default:
			// The client reconciles on reconnect, so a lagging one just
			// misses the push.
			h.log.Warn(ctx, "subscriber lagging, event dropped", "user_id", s.userID, "capsule_id", ev.CapsuleID)
		}
	}
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Serve upgrades the request and streams events for userID until the
// connection drops.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{userID: userID, conn: conn, send: make(chan api.ChangeEvent, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.log.Debug(r.Context(), "subscriber connected", "user_id", userID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(s)
	}()
	h.readPump(s)

	h.mu.Lock()
	delete(h.subs, s)
	close(s.send)
	h.mu.Unlock()
	<-done
	h.log.Debug(r.Context(), "subscriber disconnected", "user_id", userID)
}

// readPump discards client messages and keeps the read deadline moving
// with pongs. It returns when the connection fails.
func (h *Hub) readPump(s *subscriber) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
