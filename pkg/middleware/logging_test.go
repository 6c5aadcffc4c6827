package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestRequestLogger_LogsGenerationRequest(t *testing.T) {
	logger, logs := observedLogger(t)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`data: {"type":"token","token":"Mira"}` + "\n\n"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/42/generate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "http request" {
		t.Errorf("message = %q, want %q", entry.Message, "http request")
	}
	fields := entry.ContextMap()
	if fields["path"] != "/api/campaigns/42/generate" {
		t.Errorf("path = %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v, want %d", fields["status"], http.StatusOK)
	}
	if fields["bytes"].(int64) == 0 {
		t.Error("expected bytes written to be recorded")
	}
}

func TestRequestLogger_NilLoggerPassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/drafts", nil))

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_CapturesErrorStatus(t *testing.T) {
	logger, logs := observedLogger(t)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusInternalServerError) // ignored: headers already sent
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/drafts/missing", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := logs.All()[0]
	if got := entry.ContextMap()["status"]; got != int64(http.StatusNotFound) {
		t.Errorf("status = %v, want %d", got, http.StatusNotFound)
	}
}

func TestStatusRecorder_WriteImpliesOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	if _, err := sr.Write([]byte("ok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sr.wrote {
		t.Error("implicit WriteHeader expected on first Write")
	}
	if sr.status != http.StatusOK {
		t.Errorf("status = %d, want %d", sr.status, http.StatusOK)
	}
}

func TestStatusRecorder_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	sr.WriteHeader(http.StatusUnprocessableEntity)
	sr.WriteHeader(http.StatusOK)

	if sr.status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", sr.status, http.StatusUnprocessableEntity)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("recorded status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

// flushCounter counts Flush calls behind a plain recorder.
type flushCounter struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushCounter) Flush() { f.flushes++ }

func TestRequestLogger_KeepsFlusherForSSE(t *testing.T) {
	logger, _ := observedLogger(t)

	inner := &flushCounter{ResponseRecorder: httptest.NewRecorder()}
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("flusher must survive the logging wrapper")
		}
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"type\":\"token\",\"token\":\"t%d\"}\n\n", i)
			flusher.Flush()
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	handler.ServeHTTP(inner, req)

	if inner.flushes != 3 {
		t.Errorf("flushes = %d, want 3", inner.flushes)
	}
}
