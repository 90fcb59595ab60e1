package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sentinel-sim/internal/sim"
)

// mailbox is a one-slot, latest-wins hand-off between the broadcaster and a
// single connection. A pending snapshot is replaced by a newer one, never
// queued behind it.
type mailbox struct {
	mu      sync.Mutex
	pending *sim.Snapshot
	last    uint64
	notify  chan struct{}
	done    <-chan struct{}
}

func newMailbox(done <-chan struct{}) *mailbox {
	return &mailbox{notify: make(chan struct{}, 1), done: done}
}

// deliver is the broadcaster callback.
func (m *mailbox) deliver(s sim.Snapshot) error {
	select {
	case <-m.done:
		return sim.ErrSubscriberClosed
	default:
	}
	m.mu.Lock()
	if s.Version() <= m.last {
		m.mu.Unlock()
		return nil
	}
	m.pending = &s
	m.last = s.Version()
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// seen records a snapshot sent outside the mailbox so older ones are dropped.
func (m *mailbox) seen(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.last {
		m.last = v
		m.pending = nil
	}
}

func (m *mailbox) take() (sim.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return sim.Snapshot{}, false
	}
	s := *m.pending
	m.pending = nil
	return s, true
}

// follow subscribes a mailbox, sends the current snapshot, then every newer
// one until ctx ends or send fails.
func (s *Server) follow(ctx context.Context, send func(sim.Snapshot) error) error {
	mb := newMailbox(ctx.Done())
	unsubscribe := s.engine.Subscribe(mb.deliver)
	defer unsubscribe()

	cur := s.engine.Snapshot()
	mb.seen(cur.Version())
	if err := send(cur); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.notify:
			snap, ok := mb.take()
			if !ok {
				continue
			}
			if err := send(snap); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err := s.follow(r.Context(), func(snap sim.Snapshot) error {
		b, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		return rc.Flush()
	})
	s.log.Debug("stream closed", "remote", r.RemoteAddr, "err", err)
}

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// the read side only exists to notice the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.follow(ctx, func(snap sim.Snapshot) error {
		b, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, b)
	})
	s.log.Debug("websocket closed", "remote", r.RemoteAddr, "err", err)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
