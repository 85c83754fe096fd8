package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pyexec/internal/executor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same trust boundary as POST /execute
	},
}

// wsReply answers one submission with what POST /execute would have sent.
type wsReply struct {
	Status   int  `json:"status"`
	Degraded bool `json:"degraded,omitempty"`
	Body     any  `json:"body"`
}

// handleExecuteWS runs every text message as a submission, one at a time,
// replying in order.
func (s *Server) handleExecuteWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.maxBody)
	id := s.conns.Add(conn)
	defer s.conns.Remove(id)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var out outcome
		if mt != websocket.TextMessage {
			e := executor.InputError(executor.MsgInvalidJSON)
			out = outcome{status: e.Kind.HTTPStatus(), body: e}
		} else {
			out = s.run(data)
		}

		if err := s.wsWriteJSON(conn, wsReply{Status: out.status, Degraded: out.degraded, Body: out.body}); err != nil {
			return
		}
	}
}

func (s *Server) wsWriteJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("websocket marshal failed", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("websocket write failed", "error", err)
		return err
	}
	return nil
}
