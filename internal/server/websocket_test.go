package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/runner"
	"github.com/michaelbrown/pyexec/internal/sandbox"
)

type wsTestReply struct {
	Status   int            `json:"status"`
	Degraded bool           `json:"degraded"`
	Body     map[string]any `json:"body"`
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/execute/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) wsTestReply {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wsTestReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func TestWebSocketExecute(t *testing.T) {
	sb := &fakeSandbox{out: &sandbox.Outcome{Stdout: "hi\n" + runner.Marker + `[1, 2]` + "\n", Degraded: true}}
	s := testServer(t, sb, Options{})
	conn := dial(t, s)

	reply := roundTrip(t, conn, script)
	if reply.Status != 200 {
		t.Fatalf("status = %d, body %v", reply.Status, reply.Body)
	}
	if !reply.Degraded {
		t.Error("degraded = false, want true")
	}
	res, ok := reply.Body["result"].([]any)
	if !ok || len(res) != 2 {
		t.Errorf("result = %v", reply.Body["result"])
	}
	if reply.Body["stdout"] != "hi" {
		t.Errorf("stdout = %q", reply.Body["stdout"])
	}

	// the connection stays open for further submissions
	reply = roundTrip(t, conn, `{"script": ""}`)
	if reply.Status != 400 || reply.Body["error"] != executor.MsgScriptRequired {
		t.Errorf("second reply = %+v", reply)
	}
	reply = roundTrip(t, conn, `not json`)
	if reply.Status != 400 || reply.Body["error"] != executor.MsgInvalidJSON {
		t.Errorf("third reply = %+v", reply)
	}
	if got := sb.calls.Load(); got != 1 {
		t.Errorf("sandbox calls = %d, want 1", got)
	}
}

func TestWebSocketBinaryMessage(t *testing.T) {
	s := testServer(t, succeed(runner.Marker+"1\n"), Options{})
	conn := dial(t, s)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(script)); err != nil {
		t.Fatal(err)
	}
	var reply wsTestReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Status != 400 || reply.Body["error"] != executor.MsgInvalidJSON {
		t.Errorf("reply = %+v", reply)
	}
}

func TestConnManagerCloseAll(t *testing.T) {
	s := testServer(t, succeed(runner.Marker+"1\n"), Options{})
	conn := dial(t, s)

	// a completed round trip means the handler has registered the conn
	roundTrip(t, conn, script)
	if n := s.conns.Len(); n != 1 {
		t.Fatalf("open connections = %d, want 1", n)
	}

	s.conns.CloseAll()
	if n := s.conns.Len(); n != 0 {
		t.Errorf("open connections after CloseAll = %d", n)
	}

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after CloseAll = %v, want going-away close", err)
	}
}
