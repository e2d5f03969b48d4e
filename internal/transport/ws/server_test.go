package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tactica.ai/internal/protocol"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/driver"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
)

const testLevel = `{
  "id": "arena",
  "seed": 3,
  "units": [{"tag": "hero", "kind": "knight", "camp": 1, "hp": 5}]
}`

func newTestServer(t *testing.T, q *command.Queue) (*Server, *driver.Session) {
	t.Helper()
	lv, err := level.ParseLevel([]byte(testLevel), level.FormatJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, err := driver.NewSession(driver.SessionConfig{ID: "s-1", Level: lv})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return NewServer(s, q, log.New(io.Discard, "", 0)), s
}

func dial(t *testing.T, srv *Server, sub protocol.SubscribeMsg) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	sub.Type, sub.ProtocolVersion = protocol.TypeSubscribe, protocol.Version
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var w protocol.WelcomeMsg
	read(t, conn, &w)
	if w.Type != protocol.TypeWelcome {
		t.Fatalf("welcome=%+v", w)
	}
	return conn, w
}

func read(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func cmdMsg(id string, c command.Command) protocol.CommandMsg {
	return protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: id, Command: c}
}

func TestHandshakeAndCommands(t *testing.T) {
	q := command.NewQueue(1)
	srv, _ := newTestServer(t, q)
	conn, w := dial(t, srv, protocol.SubscribeMsg{ClientName: "hud"})
	if w.SessionID != "s-1" || w.Level != "arena" || w.Seed != 3 || w.TickRateHz != 20 || w.ClientID == "" {
		t.Fatalf("welcome=%+v", w)
	}

	send(t, conn, cmdMsg("c1", command.Command{Kind: command.KindSignal, Name: "go"}))
	var ack protocol.AckMsg
	read(t, conn, &ack)
	if ack.AckFor != "c1" || !ack.Accepted {
		t.Fatalf("ack=%+v", ack)
	}
	if q.Len() != 1 {
		t.Fatalf("queue len=%d", q.Len())
	}

	send(t, conn, cmdMsg("c2", command.Command{Kind: command.KindSignal, Name: "again"}))
	read(t, conn, &ack)
	if ack.Accepted || ack.Code != protocol.ErrQueueFull {
		t.Fatalf("full queue ack=%+v", ack)
	}

	send(t, conn, cmdMsg("c3", command.Command{Kind: command.KindMove}))
	read(t, conn, &ack)
	if ack.Accepted || ack.Code != protocol.ErrBadRequest || ack.AckFor != "c3" {
		t.Fatalf("invalid command ack=%+v", ack)
	}

	send(t, conn, map[string]string{"type": "DANCE", "protocol_version": protocol.Version})
	read(t, conn, &ack)
	if ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown type ack=%+v", ack)
	}
}

func TestNotificationsAndState(t *testing.T) {
	srv, s := newTestServer(t, command.NewQueue(0))
	conn, _ := dial(t, srv, protocol.SubscribeMsg{Kinds: []string{"trigger_fired", "custom"}})

	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Bus().Publish(notify.Notification{Kind: notify.KindMessage, Text: "filtered"})
	s.Bus().Publish(notify.Notification{Kind: notify.KindCustom, Name: "ping"})

	var n protocol.NotifyMsg
	read(t, conn, &n)
	if n.Notification.Kind != notify.KindCustom || n.Notification.Name != "ping" {
		t.Fatalf("notify=%+v", n)
	}

	if _, err := s.Step(nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	send(t, conn, protocol.StateReqMsg{Type: protocol.TypeStateReq, ProtocolVersion: protocol.Version, ReqID: "r1"})
	var st protocol.StateMsg
	read(t, conn, &st)
	if st.Type != protocol.TypeState || st.ReqID != "r1" || st.Tick != 0 || st.LevelState != "running" || len(st.Actors) != 1 {
		t.Fatalf("state=%+v", st)
	}
	if st.Digest != s.Latest().Digest {
		t.Fatalf("digest %s want %s", st.Digest, s.Latest().Digest)
	}
}

func TestEndedSessionRejectsCommands(t *testing.T) {
	srv, s := newTestServer(t, command.NewQueue(0))
	if _, err := s.Step([]command.Command{{Kind: command.KindEnd, Name: "done"}}); err != nil {
		t.Fatalf("step: %v", err)
	}
	ack := srv.pushCommand(cmdMsg("late", command.Command{Kind: command.KindSignal, Name: "x"}), 0)
	if ack.Accepted || ack.Code != protocol.ErrSessionEnded {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestStateHandler(t *testing.T) {
	srv, _ := newTestServer(t, command.NewQueue(0))
	rec := httptest.NewRecorder()
	srv.StateHandler()(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var st protocol.StateMsg
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SessionID != "s-1" || st.Level != "arena" {
		t.Fatalf("state=%+v", st)
	}

	rec = httptest.NewRecorder()
	srv.StateHandler()(rec, httptest.NewRequest(http.MethodPost, "/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status=%d", rec.Code)
	}
}

func TestClockHandlerHoldsTicks(t *testing.T) {
	srv, s := newTestServer(t, command.NewQueue(0))
	call := func(method, target string) (int, clockStatus) {
		rec := httptest.NewRecorder()
		srv.ClockHandler()(rec, httptest.NewRequest(method, target, nil))
		var st clockStatus
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		return rec.Code, st
	}

	if code, st := call(http.MethodPost, "/clock?op=pause"); code != http.StatusOK || !st.Paused {
		t.Fatalf("pause: code=%d status=%+v", code, st)
	}
	if n := s.Clock().Advance(time.Second); n != 0 {
		t.Fatalf("held clock emitted %d ticks", n)
	}
	if code, st := call(http.MethodGet, "/clock"); code != http.StatusOK || !st.Paused {
		t.Fatalf("get: code=%d status=%+v", code, st)
	}
	if code, st := call(http.MethodPost, "/clock?op=resume"); code != http.StatusOK || st.Paused {
		t.Fatalf("resume: code=%d status=%+v", code, st)
	}
	if n := s.Clock().Advance(100 * time.Millisecond); n != 2 {
		t.Fatalf("released clock emitted %d ticks want 2", n)
	}
	if code, _ := call(http.MethodPost, "/clock?op=stop"); code != http.StatusBadRequest {
		t.Fatalf("bad op code=%d", code)
	}
	if code, _ := call(http.MethodPut, "/clock"); code != http.StatusMethodNotAllowed {
		t.Fatalf("put code=%d", code)
	}
}

func TestSubscriberDropsOldest(t *testing.T) {
	sub := newSubscriber(nil, 2)
	for i := 1; i <= 5; i++ {
		sub.offer(notify.Notification{Kind: notify.KindCustom, Tick: uint64(i)})
	}
	if got := sub.dropped.Load(); got != 3 {
		t.Fatalf("dropped=%d", got)
	}
	if a, b := <-sub.notes, <-sub.notes; a.Tick != 4 || b.Tick != 5 {
		t.Fatalf("kept ticks %d,%d", a.Tick, b.Tick)
	}
}
