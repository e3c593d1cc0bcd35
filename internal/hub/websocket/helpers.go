package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (gw *Gateway) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := gw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	gw.writeLocks.Delete(conn)
}

// wsWriteMessage sets a short write deadline and writes a message under the
// per-connection lock. The ping loop and event broadcasts share the writer.
func (gw *Gateway) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := gw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the write mutex for a specific connection.
func (gw *Gateway) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := gw.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := gw.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage.
func (gw *Gateway) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return gw.wsWriteMessage(conn, websocket.TextMessage, payload)
}

// ----- registries -----

// SendToWorker delivers one envelope to a connected worker session.
func (gw *Gateway) SendToWorker(workerID string, msg any) error {
	v, ok := gw.workerConns.Load(workerID)
	if !ok {
		return fmt.Errorf("worker %s not connected", workerID)
	}
	return gw.writeJSON(v.(*websocket.Conn), msg)
}

// SendToCustomer delivers one envelope to a connected customer session.
func (gw *Gateway) SendToCustomer(customerID string, msg any) error {
	v, ok := gw.customerConns.Load(customerID)
	if !ok {
		return fmt.Errorf("customer %s not connected", customerID)
	}
	return gw.writeJSON(v.(*websocket.Conn), msg)
}

// IsWorkerConnected reports whether a worker session is currently attached.
func (gw *Gateway) IsWorkerConnected(workerID string) bool {
	_, ok := gw.workerConns.Load(workerID)
	return ok
}

// ConnectedWorkers returns the ids of all attached worker sessions.
func (gw *Gateway) ConnectedWorkers() []string {
	var ids []string
	gw.workerConns.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

func (gw *Gateway) registerWorker(workerID string, conn *websocket.Conn) {
	if old, ok := gw.workerConns.Load(workerID); ok {
		_ = old.(*websocket.Conn).Close()
	}
	gw.workerConns.Store(workerID, conn)
}

func (gw *Gateway) removeWorker(workerID string, conn *websocket.Conn) {
	// only remove our own registration; a newer socket may have replaced it
	if cur, ok := gw.workerConns.Load(workerID); ok && cur.(*websocket.Conn) == conn {
		gw.workerConns.Delete(workerID)
	}
	gw.log.Info(context.Background(), "worker_ws_removed", "Worker WebSocket connection removed",
		map[string]any{"worker_id": workerID})
}

func (gw *Gateway) registerCustomer(customerID string, conn *websocket.Conn) {
	if old, ok := gw.customerConns.Load(customerID); ok {
		_ = old.(*websocket.Conn).Close()
	}
	gw.customerConns.Store(customerID, conn)
}

func (gw *Gateway) removeCustomer(customerID string, conn *websocket.Conn) {
	if cur, ok := gw.customerConns.Load(customerID); ok && cur.(*websocket.Conn) == conn {
		gw.customerConns.Delete(customerID)
	}
	gw.log.Info(context.Background(), "customer_ws_removed", "Customer WebSocket connection removed",
		map[string]any{"customer_id": customerID})
}

// ----- auth replies -----

func (gw *Gateway) sendAuthError(conn *websocket.Conn, message string) error {
	return gw.writeJSON(conn, map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
}

func (gw *Gateway) sendAuthSuccess(conn *websocket.Conn, idField, id string) error {
	return gw.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		idField:     id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
