package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"service-hub/internal/domain/user"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/jwt"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ConnectWorker handles WebSocket connections from worker sessions.
// Route: GET /ws/worker/{worker_id}
func (gw *Gateway) ConnectWorker(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer gw.writeLocks.Delete(conn)

	// 2) Auth deadline for the first frame
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		gw.log.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		_ = gw.sendAuthError(conn, "internal server error")
		return
	}

	// 3) First-frame JWT auth
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		gw.log.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		_ = gw.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}
	if msgType != websocket.TextMessage {
		gw.log.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		_ = gw.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, gw.jwtMgr, user.RoleWorker)
	if err != nil {
		gw.log.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		_ = gw.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	// 4) Path param must match the subject in claims
	if wid := r.PathValue("worker_id"); wid != "" && wid != res.Claims.Subject {
		gw.log.Error(r.Context(), "ws_auth_failed", "Worker ID mismatch", nil, map[string]any{
			"path_worker_id": wid,
			"token_subject":  res.Claims.Subject,
		})
		_ = gw.sendAuthError(conn, "worker ID mismatch")
		return
	}
	workerID := res.Claims.Subject

	// 5) Ack the handshake before any events flow
	if err := gw.sendAuthSuccess(conn, "worker_id", workerID); err != nil {
		gw.log.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	gw.log.Info(r.Context(), "ws_connected", "Worker WebSocket connected",
		map[string]any{"worker_id": workerID})

	// 6) Keep the read deadline fed by pongs
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// 7) Ping loop under the per-connection writer lock
	stopPing := gw.startPingLoop(conn, map[string]any{"worker_id": workerID})
	defer stopPing()

	// 8) Register for outbound dispatch; unregister on exit
	gw.registerWorker(workerID, conn)
	defer gw.removeWorker(workerID, conn)

	// 9) Read loop: route worker telemetry
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				gw.log.Error(r.Context(), "ws_unexpected_close", "Worker connection closed unexpectedly", err,
					map[string]any{"worker_id": workerID})
				gw.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				gw.log.Info(r.Context(), "ws_connection_closed", "Worker connection closed normally",
					map[string]any{"worker_id": workerID})
				gw.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		var env contracts.WSEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch env.Type {
		case contracts.EventWorkerLocation:
			gw.relayWorkerLocation(r.Context(), workerID, env)

		case contracts.EventNavigationStarted,
			contracts.EventNavigationArrived,
			contracts.EventNavigationEnded,
			contracts.EventWorkStarted,
			contracts.EventWorkCompleted:
			gw.relayWorkerAdvisory(r.Context(), workerID, env)

		default:
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// startPingLoop pings the socket every pingPeriod until stop is called or a
// write fails (which also closes the socket to unblock the reader).
func (gw *Gateway) startPingLoop(conn *websocket.Conn, logFields map[string]any) func() {
	ticker := time.NewTicker(pingPeriod)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu := gw.lockOf(conn)
				mu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
				mu.Unlock()
				if err != nil {
					_ = conn.Close()
					gw.log.Error(context.Background(), "ws_ping_failed", "Failed to send ping", err, logFields)
					return
				}
			}
		}
	}()

	return func() { close(done) }
}
