package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/jwt"
	"service-hub/internal/hub/service"

	"github.com/jackc/pgx/v5"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// handleCreateBooking creates a PENDING booking and dispatches it to eligible
// workers. POST /bookings, customer only.
func (handler *HubHTTPHandler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var rec contracts.BookingRecord
	if err := dec.Decode(&rec); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(rec.Category) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "category is required", nil)
		return
	}
	if strings.TrimSpace(rec.ServiceName) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "service_name is required", nil)
		return
	}

	in := service.CreateBookingInput{
		CustomerID:  claims.Subject, // never trust a customer_id from the body
		Category:    rec.Category,
		ServiceName: rec.ServiceName,
		Address:     rec.Address,
		Price:       rec.Price,
		ScheduledAt: rec.ScheduledAt,
	}
	if rec.Coordinate != nil {
		in.Coordinate = &booking.GeoPoint{Lat: rec.Coordinate.Lat, Lng: rec.Coordinate.Lng}
		if in.Address == "" {
			in.Address = rec.Coordinate.Address
		}
	}

	b, err := handler.svc.CreateBooking(ctx, in)
	if err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to create booking")
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, contracts.ToBookingRecord(b))
}

// handleListBookings returns the authoritative snapshot for the caller.
// GET /bookings, customer or worker.
func (handler *HubHTTPHandler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	bs, err := handler.svc.ListBookings(ctx, claims.Role, claims.Subject)
	if err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to list bookings")
		return
	}

	records := make([]contracts.BookingRecord, 0, len(bs))
	for _, b := range bs {
		records = append(records, contracts.ToBookingRecord(b))
	}

	type listResponse struct {
		Bookings []contracts.BookingRecord `json:"bookings"`
	}
	handler.jsonResponse(ctx, w, http.StatusOK, listResponse{Bookings: records})
}

// handleAccept claims a pending booking for the authenticated worker.
// POST /bookings/{booking_id}/accept, worker only. A lost race is 409.
func (handler *HubHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	bookingID := r.PathValue("booking_id")
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	b, err := handler.svc.Accept(ctx, bookingID, claims.Subject)
	if err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to accept booking")
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.ToBookingRecord(b))
}

// handleReject records the worker's decline; the booking stays pending for
// everyone else. POST /bookings/{booking_id}/reject, worker only.
func (handler *HubHTTPHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	bookingID := r.PathValue("booking_id")
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	if err := handler.svc.Reject(ctx, bookingID, claims.Subject); err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to reject booking")
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "rejected"})
}

// handleUpdateStatus performs a lifecycle transition on behalf of the
// assigned worker. PATCH /bookings/{booking_id}/status, worker only.
func (handler *HubHTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	bookingID := r.PathValue("booking_id")
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Unknown status", err)
		return
	}

	b, err := handler.svc.UpdateStatus(ctx, bookingID, claims.Subject, status)
	if err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to update booking status")
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.ToBookingRecord(b))
}

// handleCancel withdraws the caller's booking.
// POST /bookings/{booking_id}/cancel, customer only.
func (handler *HubHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwtClaims(r)

	bookingID := r.PathValue("booking_id")
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req struct {
		Reason string `json:"reason"`
	}
	// an empty body is a cancel with no reason
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := handler.svc.Cancel(ctx, bookingID, claims.Subject, req.Reason)
	if err != nil {
		handler.writeServiceError(ctx, w, err, "Failed to cancel booking")
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.ToBookingRecord(b))
}

// writeServiceError maps service-level failures to status codes. The 409 on
// a lost acceptance race is part of the client contract.
func (handler *HubHTTPHandler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrBookingTaken):
		handler.httpError(ctx, w, http.StatusConflict, "Booking already taken", err)
	case errors.Is(err, service.ErrNotEligible):
		handler.httpError(ctx, w, http.StatusForbidden, "Worker not verified for this category", err)
	case errors.Is(err, service.ErrNotAuthorized):
		handler.httpError(ctx, w, http.StatusForbidden, "Not authorized for this booking", err)
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		handler.httpError(ctx, w, http.StatusUnprocessableEntity, "Invalid status transition", err)
	case errors.Is(err, pgx.ErrNoRows):
		handler.httpError(ctx, w, http.StatusNotFound, "Booking not found", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, fallback, err)
	}
}

// jwtClaims returns the claims injected by the auth middleware.
func jwtClaims(r *http.Request) *jwt.Claims {
	return jwt.RequireClaims(r)
}
