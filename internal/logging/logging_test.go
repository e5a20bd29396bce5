package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestMiddlewareSetsRequestIDHeaderAndLogsFinish(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	handler := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := FromContext(r.Context())
		logger.Info().Msg("handler_ran")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/foo", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header to be set")
	}
	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}

	out := buf.String()
	if !strings.Contains(out, "handler_ran") {
		t.Errorf("expected handler's own log line to appear, got: %s", out)
	}
	if !strings.Contains(out, "request_finished") {
		t.Errorf("expected request_finished event, got: %s", out)
	}
	if !strings.Contains(out, `"status_code":418`) {
		t.Errorf("expected status_code 418 logged, got: %s", out)
	}
}

func TestMiddlewareRecoversAndLogsRequestFailedOnPanic(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	handler := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/foo", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d after a recovered panic", rr.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(buf.String(), "request_failed") {
		t.Errorf("expected request_failed event, got: %s", buf.String())
	}
}

func TestFromContextWithoutLoggerIsDisabled(t *testing.T) {
	logger := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if logger.GetLevel() != zerolog.Disabled {
		t.Errorf("expected a disabled no-op logger, got level %v", logger.GetLevel())
	}
}
