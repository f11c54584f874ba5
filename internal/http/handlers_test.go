package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"elcedro/backend/internal/cache"
	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/ingest"
	"elcedro/backend/internal/prefs"
	"elcedro/backend/internal/service"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	data := "Año,Mes,Almacen,Vendedor,Tipo,Documento,Familia,Marca,Cantidad,Sub Total,Total,Descuento $,Utilidad $,es_rem\n" +
		"2024,1,General,JUAN,Contado,F-1,11,COMEX,2,100,116,0,30,0\n" +
		"2024,2,Express,ANA,Crédito,F-2,12,TRUPER,1,200,232,0,50,0\n"
	if err := os.WriteFile(filepath.Join(dir, "ventas.csv"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := catalog.New([]catalog.Entry{
		{ID: "11", Name: "PINTURAS"},
		{ID: "12", Name: "HERRAMIENTAS"},
	})
	loader := ingest.NewLoader(cat, zerolog.Nop())
	svc := service.New(loader, dir, cache.NewMemory(), 30*time.Minute, nil, prefs.NewMemoryStore(), zerolog.Nop())
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewRouter(NewHandler(svc), zerolog.Nop())
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDatasetMeta(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet, "/api/v1/dataset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var meta service.Meta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Lines != 2 || len(meta.Families) != 2 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestKPIsEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet,
		"/api/v1/kpis?year=2024&month_start=1&month_end=2&with_tax=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var k map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &k); err != nil {
		t.Fatal(err)
	}
	if k["current"]["sales"] != 348.0 {
		t.Errorf("sales = %v, want 348", k["current"]["sales"])
	}
}

func TestKPIsRequiresYear(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet, "/api/v1/kpis", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestKPIsRejectsBadMonths(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet,
		"/api/v1/kpis?year=2024&month_start=5&month_end=2", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBreakdownEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet,
		"/api/v1/breakdown/family?year=2024&with_tax=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["value"] != "HERRAMIENTAS" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestBreakdownUnknownDimension(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet,
		"/api/v1/breakdown/client?year=2024", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet,
		"/api/v1/transactions?year=2024&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		Total int               `json:"total"`
		Lines []json.RawMessage `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || len(out.Lines) != 1 {
		t.Fatalf("total=%d lines=%d, want 2/1", out.Total, len(out.Lines))
	}
}

func TestViewsRoundTrip(t *testing.T) {
	h := newTestServer(t)
	body := `{"spec":{"year":2024,"month_start":1,"month_end":3,"branch":"EXPRESS"}}`
	rec := doRequest(t, h, http.MethodPut, "/api/v1/views/q1-express", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/views/q1-express", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view prefs.SavedView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Spec.Branch != "EXPRESS" || view.Spec.MonthEnd != 3 {
		t.Fatalf("view = %+v", view)
	}
	rec = doRequest(t, h, http.MethodDelete, "/api/v1/views/q1-express", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/views/q1-express", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestViewNotFound(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet, "/api/v1/views/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
