package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/recon"
)

const salesHeader = "Año,Mes,Almacen,Vendedor,Tipo,Documento,Familia,Marca,Cantidad,Sub Total,Total,Descuento $,Utilidad $,es_rem\n"

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testLoader() *Loader {
	cat := catalog.New([]catalog.Entry{
		{ID: "11", Name: "PINTURAS"},
		{ID: "12", Name: "HERRAMIENTAS"},
	})
	return NewLoader(cat, zerolog.Nop())
}

func TestLoadDirRepeatedTotal(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "ventas_2024.csv", salesHeader+
		"2024,1,General,JUAN,Contado,F-1,11,TRUPER,2,50,118,0,10,0\n"+
		"2024,1,General,JUAN,Contado,F-1,12,TRUPER,1,30,118,0,6,0\n"+
		"2024,1,General,JUAN,Contado,F-1,11,TRUPER,1,20,118,0,4,0\n")

	ds, rep, err := testLoader().LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(ds.Lines))
	}
	if rep.Batches[0].Convention != recon.ConventionRepeated {
		t.Fatalf("convention = %s, want repeated-total", rep.Batches[0].Convention)
	}
	var sum float64
	for _, l := range ds.Lines {
		sum += l.TotalAlloc
	}
	if math.Abs(sum-118) > 1e-9 {
		t.Errorf("alloc sum = %v, want 118", sum)
	}
	if ds.Lines[0].Family != "PINTURAS" || ds.Lines[1].Family != "HERRAMIENTAS" {
		t.Errorf("families not resolved: %q, %q", ds.Lines[0].Family, ds.Lines[1].Family)
	}
	if ds.Lines[0].Branch != domain.BranchGeneral {
		t.Errorf("branch = %q, want GENERAL", ds.Lines[0].Branch)
	}
	if ds.Version == "" {
		t.Error("dataset version not set")
	}
}

func TestLoadDirSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "good.csv", salesHeader+
		"2024,2,Express,ANA,Crédito,N-9,11,SIN MARCA,1,100,100,0,20,0\n")
	writeFixture(t, dir, "bad.xlsx", "this is not a workbook")
	writeFixture(t, dir, "notes.txt", "ignored entirely")

	ds, rep, err := testLoader().LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0] != "bad.xlsx" {
		t.Fatalf("skipped = %v, want [bad.xlsx]", rep.Skipped)
	}
	if len(ds.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(ds.Lines))
	}
	if ds.Lines[0].Kind != domain.KindCredit {
		t.Errorf("kind = %q, want CREDITO", ds.Lines[0].Kind)
	}
	if ds.SkippedFiles != 1 || ds.SourceFiles != 1 {
		t.Errorf("file counts = %d/%d, want 1/1", ds.SourceFiles, ds.SkippedFiles)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	ds, rep, err := testLoader().LoadDir(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !ds.Empty() {
		t.Error("dataset not empty")
	}
	if rep.Lines != 0 {
		t.Errorf("report lines = %d, want 0", rep.Lines)
	}
}

func TestLoadDirMissing(t *testing.T) {
	_, _, err := testLoader().LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestBuildLinesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "min.csv", salesHeader+
		"2024,3,Adelitas,,Contado,F-7,,,1,10,10,0,2,0\n")

	ds, _, err := testLoader().LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	l := ds.Lines[0]
	if l.Family != domain.NoFamily {
		t.Errorf("family = %q, want %q", l.Family, domain.NoFamily)
	}
	if l.Brand != domain.NoBrand {
		t.Errorf("brand = %q, want %q", l.Brand, domain.NoBrand)
	}
	if l.Salesperson != domain.NoSalesperson {
		t.Errorf("salesperson = %q, want %q", l.Salesperson, domain.NoSalesperson)
	}
	if l.DocKey != "2024|3|ADELITAS|F-7|CONTADO" {
		t.Errorf("doc key = %q", l.DocKey)
	}
}

func TestNumericFamilyNamesBlanked(t *testing.T) {
	lines := []domain.TransactionLine{
		{Family: "11"},
		{Family: "11.0"},
		{Family: "PINTURAS"},
	}
	blankNumericFamilies(lines)
	if lines[0].Family != "" || lines[1].Family != "" {
		t.Errorf("numeric names not blanked: %q, %q", lines[0].Family, lines[1].Family)
	}
	if lines[2].Family != "PINTURAS" {
		t.Errorf("real name blanked: %q", lines[2].Family)
	}
}

func TestSelectorsExcludeBlanks(t *testing.T) {
	lines := []domain.TransactionLine{
		{Year: 2024, Family: "PINTURAS", Brand: "TRUPER"},
		{Year: 2023, Family: "", Brand: "TRUPER"},
	}
	years, families, brands := selectors(lines)
	if len(years) != 2 || years[0] != 2023 {
		t.Errorf("years = %v", years)
	}
	if len(families) != 1 || families[0] != "PINTURAS" {
		t.Errorf("families = %v", families)
	}
	if len(brands) != 1 {
		t.Errorf("brands = %v", brands)
	}
}
