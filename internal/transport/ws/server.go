// Package ws serves a live session over websocket: clients subscribe to
// notifications, push commands for the next tick and read committed state.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tactica.ai/internal/protocol"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/driver"
	"tactica.ai/internal/sim/notify"
)

const (
	defaultQueue = 64
	maxQueue     = 1024
)

type Server struct {
	session *driver.Session
	queue   *command.Queue
	log     *log.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewServer serves s. Commands go into q, which the session's driver drains at
// the start of every tick.
func NewServer(s *driver.Session, q *command.Queue, logger *log.Logger) *Server {
	return &Server{
		session: s,
		queue:   q,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int64 { return s.clients.Load() }

// subscriber buffers notifications for one client. The sim goroutine never
// waits on it: when the buffer is full the oldest notification is dropped.
type subscriber struct {
	kinds   []string
	notes   chan notify.Notification
	dropped atomic.Uint64
}

func newSubscriber(kinds []string, size int) *subscriber {
	return &subscriber{kinds: kinds, notes: make(chan notify.Notification, size)}
}

func (c *subscriber) offer(n notify.Notification) {
	if !protocol.WantsKind(c.kinds, n.Kind) {
		return
	}
	for {
		select {
		case c.notes <- n:
			return
		default:
		}
		select {
		case <-c.notes:
			c.dropped.Add(1)
		default:
		}
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, sub := s.handshake(conn)
		if sub == nil {
			return
		}
		unsubscribe := s.session.Bus().SubscribeAll(sub.offer)
		defer unsubscribe()
		s.clients.Add(1)
		defer s.clients.Add(-1)
		s.log.Printf("client %s subscribed kinds=%v", clientID, sub.kinds)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		replies := make(chan any, 16)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.writeLoop(ctx, cancel, conn, sub, replies)
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			select {
			case replies <- s.handle(msg):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		wg.Wait()
		s.log.Printf("client %s disconnected dropped=%d", clientID, sub.dropped.Load())
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *subscriber, replies <-chan any) {
	for {
		var out any
		select {
		case <-ctx.Done():
			return
		case n := <-sub.notes:
			out = protocol.NotifyMsg{
				Type:            protocol.TypeNotify,
				ProtocolVersion: protocol.Version,
				Notification:    n,
				Dropped:         sub.dropped.Swap(0),
			}
		case out = <-replies:
		}
		if err := writeJSON(conn, out); err != nil {
			cancel()
			return
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, *subscriber) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
		return "", nil
	}
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return "", nil
	}
	if sub.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	size := sub.MaxQueue
	if size <= 0 {
		size = defaultQueue
	}
	if size > maxQueue {
		size = maxQueue
	}

	clientID := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        clientID,
		SessionID:       s.session.ID(),
		Level:           s.session.Level().ID,
		Seed:            s.session.Seed(),
		TickRateHz:      int(time.Second / s.session.Clock().Step()),
		Kinds:           sub.Kinds,
	}
	if st := s.session.Latest(); st != nil {
		welcome.Tick = st.Tick
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return clientID, newSubscriber(sub.Kinds, size)
}

// handle answers one client message with an ACK or a STATE.
func (s *Server) handle(msg []byte) any {
	tick := s.tick()
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewReject("", protocol.ErrProtoBadRequest, "malformed message", tick)
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewReject("", protocol.ErrProtoVersion, "bad protocol_version", tick)
	}

	switch base.Type {
	case protocol.TypeCommand:
		var cm protocol.CommandMsg
		if err := json.Unmarshal(msg, &cm); err != nil {
			return protocol.NewReject("", protocol.ErrProtoBadRequest, err.Error(), tick)
		}
		return s.pushCommand(cm, tick)
	case protocol.TypeStateReq:
		var req protocol.StateReqMsg
		_ = json.Unmarshal(msg, &req)
		st, ack := s.State(req.ReqID)
		if ack != nil {
			return *ack
		}
		return st
	}
	return protocol.NewReject("", protocol.ErrProtoBadRequest, "unexpected "+base.Type, tick)
}

func (s *Server) pushCommand(cm protocol.CommandMsg, tick uint64) protocol.AckMsg {
	if st := s.session.Latest(); st != nil && st.LevelState == "ended" {
		return protocol.NewReject(cm.ReqID, protocol.ErrSessionEnded, "level ended", tick)
	}
	if err := s.queue.Push(cm.Command); err != nil {
		if errors.Is(err, command.ErrQueueFull) {
			return protocol.NewReject(cm.ReqID, protocol.ErrQueueFull, err.Error(), tick)
		}
		return protocol.NewReject(cm.ReqID, protocol.ErrBadRequest, err.Error(), tick)
	}
	return protocol.NewAck(cm.ReqID, tick)
}

func (s *Server) tick() uint64 {
	if st := s.session.Latest(); st != nil {
		return st.Tick
	}
	return 0
}

// State renders the last committed tick, or a rejection when none exists.
func (s *Server) State(reqID string) (protocol.StateMsg, *protocol.AckMsg) {
	st := s.session.Latest()
	if st == nil {
		ack := protocol.NewReject(reqID, protocol.ErrSessionNoState, "no committed tick", 0)
		return protocol.StateMsg{}, &ack
	}
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		SessionID:       st.Session,
		Level:           st.Level,
		Tick:            st.Tick,
		LevelState:      st.LevelState,
		Digest:          st.Digest,
		Actors:          st.Actors,
		Vars:            st.Vars,
		Fired:           st.Fired,
		EndReason:       st.EndReason,
	}, nil
}

// StateHandler serves the last committed tick as JSON over plain HTTP.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		st, ack := s.State("")
		if ack != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(ack)
			return
		}
		_ = json.NewEncoder(rw).Encode(st)
	}
}

type clockStatus struct {
	Paused bool   `json:"paused"`
	Tick   uint64 `json:"tick"`
}

// ClockHandler reports the host clock and, on POST ?op=pause|resume, holds or
// releases it. A held clock emits no ticks at all: commands wait in the queue
// and the level's own pause state is untouched.
func (s *Server) ClockHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		clk := s.session.Clock()
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			switch op := r.URL.Query().Get("op"); op {
			case "pause":
				clk.Pause()
			case "resume":
				clk.Resume()
			default:
				http.Error(rw, "op must be pause or resume", http.StatusBadRequest)
				return
			}
			s.log.Printf("clock %s by %s", r.URL.Query().Get("op"), r.RemoteAddr)
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		out := clockStatus{Paused: clk.Paused()}
		if st := s.session.Latest(); st != nil {
			out.Tick = st.Tick
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
