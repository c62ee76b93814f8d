package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/recovery"
)

// Subprotocol is negotiated on /probe/ws.
const Subprotocol = "echoprobe"

// wsInit opens a probe stream.
type wsInit struct {
	Type       string `json:"type"`
	Address    string `json:"address"`
	Identifier int    `json:"identifier"`
	TimeoutMS  int    `json:"timeout_ms"`
}

// wsEcho asks for one probe.
type wsEcho struct {
	Type     string `json:"type"`
	Sequence int    `json:"sequence"`
}

// wsResult answers a wsEcho.
type wsResult struct {
	Type string `json:"type"`
	ProbeResult
}

// handleProbeWebSocket streams probes over a WebSocket.
// The client sends {"type":"init","address":...} once, then one
// {"type":"echo","sequence":N} per probe; every echo is answered with a
// "reply" or "error" message.
func (s *Server) handleProbeWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		http.Error(w, "probing not available", http.StatusServiceUnavailable)
		return
	}

	// Disable write deadline for long-lived WebSocket connections
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", logging.KeyError, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	_, initData, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "failed to read init message")
		return
	}

	var init wsInit
	if err := json.Unmarshal(initData, &init); err != nil || init.Type != "init" {
		conn.Close(websocket.StatusProtocolError, "expected init message")
		return
	}
	if _, err := icmp.ParseAddress(init.Address); err != nil {
		sendInitAck(ctx, conn, err.Error())
		conn.Close(websocket.StatusPolicyViolation, "invalid address")
		return
	}
	if init.Identifier < 0 || init.Identifier > 0xffff {
		sendInitAck(ctx, conn, "identifier out of range")
		conn.Close(websocket.StatusPolicyViolation, "invalid identifier")
		return
	}
	if err := sendInitAck(ctx, conn, ""); err != nil {
		return
	}

	identifier := uint16(init.Identifier)
	timeout := time.Duration(init.TimeoutMS) * time.Millisecond
	logger := s.logger.With(logging.KeyAddress, init.Address)
	logger.Debug("probe stream opened")

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan uint16, 16)

	var wg sync.WaitGroup

	// WebSocket -> prober
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer close(requests)
		defer recovery.RecoverWithLog(logger, "health.ws.read")

		for {
			_, data, err := conn.Read(streamCtx)
			if err != nil {
				return
			}

			var echo wsEcho
			if err := json.Unmarshal(data, &echo); err != nil || echo.Type != "echo" {
				continue
			}
			if echo.Sequence < 0 || echo.Sequence > 0xffff {
				continue
			}

			select {
			case requests <- uint16(echo.Sequence):
			case <-streamCtx.Done():
				return
			}
		}
	}()

	// prober -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer recovery.RecoverWithLog(logger, "health.ws.probe")

		for seq := range requests {
			reply, err := s.prober.Probe(streamCtx, init.Address, identifier, seq, timeout)
			msg := wsResult{Type: "reply", ProbeResult: NewProbeResult(init.Address, identifier, seq, reply, err)}
			if err != nil {
				msg.Type = "error"
			}

			data, _ := json.Marshal(msg)
			if err := conn.Write(streamCtx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}()

	<-streamCtx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	logger.Debug("probe stream closed")
}

// sendInitAck answers the init message; a non-empty errMsg reports failure.
func sendInitAck(ctx context.Context, conn *websocket.Conn, errMsg string) error {
	resp := map[string]interface{}{
		"type":    "init_ack",
		"success": errMsg == "",
	}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	data, _ := json.Marshal(resp)
	return conn.Write(ctx, websocket.MessageText, data)
}
