package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"service-hub/internal/domain/user"
	"service-hub/internal/general/jwt"
	"service-hub/internal/general/logger"
	"service-hub/internal/hub/service"
	"service-hub/internal/hub/websocket"
)

// HubHTTPHandler adapts HTTP requests to the DispatchService.
type HubHTTPHandler struct {
	svc     *service.DispatchService
	log     *logger.Logger
	auth    *jwt.Manager
	gateway *websocket.Gateway
}

// NewHubHTTPHandler wires an HTTP handler around the DispatchService.
func NewHubHTTPHandler(
	svc *service.DispatchService,
	log *logger.Logger,
	auth *jwt.Manager,
	gateway *websocket.Gateway,
) *HubHTTPHandler {
	return &HubHTTPHandler{svc: svc, log: log, auth: auth, gateway: gateway}
}

// RegisterRoutes mounts the booking endpoints on the provided mux.
func (handler *HubHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleCreateBooking),
	)
	mux.HandleFunc("GET /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleWorker)(handler.handleListBookings),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleWorker)(handler.handleAccept),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/reject",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleWorker)(handler.handleReject),
	)
	mux.HandleFunc("PATCH /bookings/{booking_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleWorker)(handler.handleUpdateStatus),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleCancel),
	)

	// WebSocket endpoints authenticate with the first frame, not middleware
	mux.HandleFunc("GET /ws/worker/{worker_id}", handler.gateway.ConnectWorker)
	mux.HandleFunc("GET /ws/customer/{customer_id}", handler.gateway.ConnectCustomer)

	mux.HandleFunc("GET /health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- token issuing (development convenience) -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *HubHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.log.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

func (handler *HubHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- shared helpers -----

func (handler *HubHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.log.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *HubHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusConflict {
		action = "acceptance_conflict"
	}
	handler.log.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *HubHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.log.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
