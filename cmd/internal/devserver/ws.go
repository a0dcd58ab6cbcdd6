package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	rtv1 "arcsync/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsSendQueue       = 64
	wsMaxPingFailures = 3
)

// handleWS upgrades an authenticated request and streams change events.
// Clients only listen; any data frame from the client closes the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p, fail := s.authenticate(r)
	if fail != nil {
		writeError(w, http.StatusUnauthorized, fail.code, fail.msg)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{rtv1.Subprotocol},
	})
	if err != nil {
		s.log.Error("devserver.ws.accept_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != rtv1.Subprotocol {
		s.log.Info("devserver.ws.reject.subprotocol", "got", sp)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	connID, err := randomHex(10)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}
	client := NewClient(p.userID, connID, wsSendQueue)
	s.hub.Join(client)
	defer s.hub.Leave(client)

	ctx := conn.CloseRead(r.Context())

	ack, err := rtv1.New(rtv1.TypeHelloAck, "", s.now(), rtv1.HelloAckPayload{SessionID: connID})
	if err != nil || writeFrame(ctx, conn, ack, s.cfg.WriteTimeout) != nil {
		return
	}

	ping := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ping.Stop()
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case env := <-client.Send:
			if err := writeFrame(ctx, conn, env, s.cfg.WriteTimeout); err != nil {
				s.log.Info("devserver.ws.write_failed", "session_id", connID, "err", err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= wsMaxPingFailures {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func writeFrame(parent context.Context, conn *websocket.Conn, env rtv1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// Connected reports how many websocket sessions userID holds.
func (s *Server) Connected(userID string) int { return s.hub.Connected(userID) }
