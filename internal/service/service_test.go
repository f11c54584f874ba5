package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"elcedro/backend/internal/cache"
	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/ingest"
	"elcedro/backend/internal/prefs"
)

const fixtureHeader = "Año,Mes,Almacen,Vendedor,Tipo,Documento,Familia,Marca,Cantidad,Sub Total,Total,Descuento $,Utilidad $,es_rem\n"

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	data := fixtureHeader +
		"2024,1,General,JUAN,Contado,F-1,11,COMEX,2,100,116,0,30,0\n" +
		"2024,1,General,ANA,Crédito,F-2,12,TRUPER,1,200,232,0,50,0\n" +
		"2023,1,General,JUAN,Contado,F-9,11,COMEX,1,80,92.8,0,20,0\n"
	if err := os.WriteFile(filepath.Join(dir, "ventas.csv"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := catalog.New([]catalog.Entry{
		{ID: "11", Name: "PINTURAS"},
		{ID: "12", Name: "HERRAMIENTAS"},
	})
	loader := ingest.NewLoader(cat, zerolog.Nop())
	return New(loader, dir, cache.NewMemory(), 30*time.Minute, nil, prefs.NewMemoryStore(), zerolog.Nop())
}

func TestRefreshAndMeta(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Meta(); err != ErrNoData {
		t.Fatalf("Meta before refresh: err = %v, want ErrNoData", err)
	}
	rep, err := s.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Lines != 3 {
		t.Fatalf("ingested lines = %d, want 3", rep.Lines)
	}
	meta, err := s.Meta()
	if err != nil {
		t.Fatal(err)
	}
	if meta.Version == "" || meta.Lines != 3 {
		t.Fatalf("meta = %+v", meta)
	}
	if len(meta.Years) != 2 || meta.Years[0] != 2023 {
		t.Fatalf("years = %v", meta.Years)
	}
}

func TestRefreshRotatesVersion(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	v1 := s.Snapshot().Version
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if v2 := s.Snapshot().Version; v2 == v1 {
		t.Fatal("dataset version did not rotate on refresh")
	}
}

func TestKPIPayload(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	f := domain.FilterSpec{Year: 2024, MonthStart: 1, MonthEnd: 12, WithTax: true}
	payload, err := s.KPIPayload(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	var rep KPIReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		t.Fatal(err)
	}
	if got := float64(rep.Current.Sales); got != 348 {
		t.Errorf("sales = %v, want 348", got)
	}
	if got := float64(rep.Current.Transactions); got != 2 {
		t.Errorf("transactions = %v, want 2", got)
	}
	if got := float64(rep.Previous.Sales); got != 92.8 {
		t.Errorf("prior sales = %v, want 92.8", got)
	}

	// second call must be a cache hit with an identical payload
	again, err := s.KPIPayload(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(payload) {
		t.Error("cached payload differs from computed payload")
	}
}

func TestEmptyFilterNaNAsNull(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	f := domain.FilterSpec{Year: 2030, MonthStart: 1, MonthEnd: 12}
	payload, err := s.KPIPayload(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("payload not valid JSON: %v\n%s", err, payload)
	}
	cur := raw["current"]
	if cur["margin"] != nil {
		t.Errorf("margin = %v, want null", cur["margin"])
	}
	if cur["sales"] != 0.0 {
		t.Errorf("sales = %v, want 0", cur["sales"])
	}
}

func TestBreakdownPayloadRejectsUnknownDimension(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BreakdownPayload(ctx, domain.FilterSpec{Year: 2024}, "client", 0, false); err == nil {
		t.Fatal("expected error for unknown dimension")
	}
}

func TestTransactionsPaging(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	f := domain.FilterSpec{Year: 2024, MonthStart: 1, MonthEnd: 12}
	page, total, err := s.Transactions(f, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(page) != 1 {
		t.Fatalf("total=%d page=%d, want 2/1", total, len(page))
	}
	page, _, err = s.Transactions(f, 10, 5)
	if err != nil || len(page) != 0 {
		t.Fatalf("past-end page = %d lines, err %v", len(page), err)
	}
}

func TestDefaultWindow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	f, err := s.DefaultWindow()
	if err != nil {
		t.Fatal(err)
	}
	if f.Year != 2024 || f.MonthStart != -11 || f.MonthEnd != 1 {
		t.Fatalf("window = %d [%d..%d], want 2024 [-11..1]", f.Year, f.MonthStart, f.MonthEnd)
	}
}

func TestPutViewValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.PutView(ctx, prefs.SavedView{Name: "  "}); err == nil {
		t.Fatal("expected error for empty name")
	}
	bad := prefs.SavedView{Name: "x", Spec: domain.FilterSpec{MonthStart: 5, MonthEnd: 2}}
	if err := s.PutView(ctx, bad); err == nil {
		t.Fatal("expected error for inverted month range")
	}
	good := prefs.SavedView{Name: "enero", Spec: domain.FilterSpec{Year: 2024, MonthStart: 1, MonthEnd: 1}}
	if err := s.PutView(ctx, good); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetView(ctx, "enero")
	if err != nil {
		t.Fatal(err)
	}
	if got.Spec.Branch != domain.BranchAll {
		t.Errorf("stored view not normalized: %+v", got.Spec)
	}
}
