package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// useObservedLogger installs an observer core as the process-wide logger for the test.
func useObservedLogger(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	resetLoggerForTest(t)
	core, recorded := observer.New(zapcore.DebugLevel)
	loggerOnce.Do(func() {
		baseLogger = zap.New(core)
	})
	return recorded
}

func withRequestID(id string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestAccessLoggerUsesRequestLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	access := AccessLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/tea", nil)
	req = req.WithContext(WithLogger(req.Context(), logger))
	resp := httptest.NewRecorder()

	access.ServeHTTP(resp, req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "request completed" {
		t.Fatalf("unexpected log message: %s", entry.Message)
	}

	fields := fieldMap(entry)
	if f, ok := fields["status"]; !ok || f.Integer != http.StatusTeapot {
		t.Fatalf("expected status 418, got %+v", f)
	}
	if f, ok := fields["path"]; !ok || f.String != "/tea" {
		t.Fatalf("expected path '/tea', got %+v", f)
	}
	if f, ok := fields["method"]; !ok || f.String != http.MethodGet {
		t.Fatalf("expected method GET, got %+v", f)
	}
	if f, ok := fields["bytes"]; !ok || f.Integer != int64(len("short and stout")) {
		t.Fatalf("expected bytes 15, got %+v", f)
	}
	if f, ok := fields["duration"]; !ok || time.Duration(f.Integer) < 10*time.Millisecond {
		t.Fatalf("expected duration >= 10ms, got %+v", f)
	}
}

func TestAccessLoggerDefaultsStatusWhenNothingWritten(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	access := AccessLogger()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/empty", nil)
	req = req.WithContext(WithLogger(req.Context(), zap.New(core)))
	access.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if f := fieldMap(entries[0])["status"]; f.Integer != http.StatusOK {
		t.Fatalf("expected status 200, got %+v", f)
	}
}

func TestRequestLoggerAddsRequestID(t *testing.T) {
	recorded := useObservedLogger(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LogInfo(r.Context(), "inside handler")
		w.WriteHeader(http.StatusOK)
	})
	handler := withRequestID("test-request-id", RequestLogger()(inner))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	entries := recorded.FilterMessage("inside handler").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if f := fieldMap(entries[0])["requestId"]; f.String != "test-request-id" {
		t.Fatalf("expected requestId test-request-id, got %+v", f)
	}
}

func TestRequestLoggerWithTraceparent(t *testing.T) {
	recorded := useObservedLogger(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LogInfo(r.Context(), "traced")
	})
	handler := withRequestID("req-1", RequestLogger()(inner))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("traceparent", "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.FilterMessage("traced").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := fieldMap(entries[0])
	if f := fields["traceId"]; f.String != "3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected traceId: %+v", f)
	}
	if f := fields["spanId"]; f.String != "08f067aa0ba902b7" {
		t.Fatalf("unexpected spanId: %+v", f)
	}
	if f, ok := fields["traceSampled"]; !ok || f.Integer != 1 {
		t.Fatalf("expected traceSampled true, got %+v", f)
	}
	if f := fields["requestId"]; f.String != "req-1" {
		t.Fatalf("expected requestId req-1, got %+v", f)
	}
}

func TestRequestLoggerWithoutCorrelationUsesGlobalLogger(t *testing.T) {
	useObservedLogger(t)

	var got *zap.Logger
	handler := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LoggerFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != Logger() {
		t.Fatal("expected request logger to be the global logger when no fields apply")
	}
}
