package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"service-hub/internal/domain/user"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/jwt"

	"github.com/gorilla/websocket"
)

// ConnectCustomer handles WebSocket connections from customer sessions.
// Route: GET /ws/customer/{customer_id}
func (gw *Gateway) ConnectCustomer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer gw.writeLocks.Delete(conn)

	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		gw.log.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		_ = gw.sendAuthError(conn, "internal server error")
		return
	}

	mt, first, err := conn.ReadMessage()
	if err != nil {
		gw.log.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		_ = gw.sendAuthError(conn, "authentication timeout: please send auth message within 10 seconds")
		return
	}
	if mt != websocket.TextMessage {
		gw.log.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		_ = gw.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(first, gw.jwtMgr, user.RoleCustomer)
	if err != nil {
		gw.log.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		_ = gw.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	if cid := r.PathValue("customer_id"); cid != "" && cid != res.Claims.Subject {
		gw.log.Error(r.Context(), "ws_auth_failed", "Customer ID mismatch", nil, map[string]any{
			"path_customer_id": cid,
			"token_subject":    res.Claims.Subject,
		})
		_ = gw.sendAuthError(conn, "customer ID mismatch")
		return
	}
	customerID := res.Claims.Subject

	if err := gw.sendAuthSuccess(conn, "customer_id", customerID); err != nil {
		gw.log.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	gw.log.Info(r.Context(), "ws_connected", "Customer WebSocket connected",
		map[string]any{"customer_id": customerID})

	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	stopPing := gw.startPingLoop(conn, map[string]any{"customer_id": customerID})
	defer stopPing()

	gw.registerCustomer(customerID, conn)
	defer gw.removeCustomer(customerID, conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				gw.log.Error(r.Context(), "ws_unexpected_close", "Customer connection closed unexpectedly", err,
					map[string]any{"customer_id": customerID})
				gw.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				gw.log.Info(r.Context(), "ws_connection_closed", "Customer connection closed normally",
					map[string]any{"customer_id": customerID})
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
		case contracts.EventUserLocation:
			gw.relayCustomerLocation(r.Context(), customerID, env)

		default:
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}
