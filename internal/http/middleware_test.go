package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"elcedro/backend/internal/logger"
)

func TestRequestLoggerScopesContext(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("info", &buf)
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped := logger.FromContext(r.Context())
		scoped.Info().Msg("inside handler")
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/kpis", nil))

	out := buf.String()
	if !strings.Contains(out, "inside handler") {
		t.Fatalf("handler log missing from output: %s", out)
	}
	if !strings.Contains(out, `"path":"/api/v1/kpis"`) {
		t.Errorf("request fields not attached to scoped logger: %s", out)
	}
	if !strings.Contains(out, `"status":204`) {
		t.Errorf("completion log missing: %s", out)
	}
}
