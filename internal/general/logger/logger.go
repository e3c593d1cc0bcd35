// Package logger writes single-line JSON log entries to stdout.
//
// Every entry carries the service name and hostname, plus the request and
// booking correlation ids when the context holds them. Log collectors key
// on the `action` field, so actions are short snake_case event names
// (booking_created, ws_auth_failed) rather than free-form text.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

type level string

const (
	levelDebug level = "DEBUG"
	levelInfo  level = "INFO"
	levelError level = "ERROR"
)

// ErrorObject carries the error message and stack for ERROR entries.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// LogEntry is the on-wire shape of one log line.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`
	Level     string       `json:"level"`
	Service   string       `json:"service"`
	Action    string       `json:"action"`
	Message   string       `json:"message"`
	Hostname  string       `json:"hostname"`
	RequestID string       `json:"request_id,omitempty"`
	BookingID string       `json:"booking_id,omitempty"`
	Details   any          `json:"details,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

type Logger struct {
	service  string
	hostname string
	mu       sync.Mutex // serializes stdout writes so lines never interleave
}

// New creates a logger for the named service.
func New(service string) *Logger {
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	return &Logger{service: service, hostname: hn}
}

func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.log(ctx, levelDebug, action, msg, details, nil)
}

func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.log(ctx, levelInfo, action, msg, details, nil)
}

// Error attaches the error message and a stack trace to the entry.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.log(ctx, levelError, action, msg, details, &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	})
}

func (l *Logger) log(ctx context.Context, lv level, action, msg string, details any, errObj *ErrorObject) {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "unspecified"
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(lv),
		Service:   l.service,
		Action:    action,
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: fromCtx(ctx, ctxKeyRequestID),
		BookingID: fromCtx(ctx, ctxKeyBookingID),
		Details:   details,
		Error:     errObj,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, err := json.Marshal(entry); err == nil {
		fmt.Println(string(b))
		return
	}

	// Details is the only field that can fail to marshal; drop it and retry.
	entry.Details = nil
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
		return
	}
	fmt.Println(string(b))
}

// ------------ Correlation ids -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "servicehub_request_id"
	ctxKeyBookingID ctxKey = "servicehub_booking_id"
)

// WithRequestID returns a context whose log entries carry request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithBookingID returns a context whose log entries carry booking_id.
func (l *Logger) WithBookingID(ctx context.Context, bookingID string) context.Context {
	if strings.TrimSpace(bookingID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyBookingID, bookingID)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
