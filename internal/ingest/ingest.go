// Package ingest loads the monthly sales export files from the data directory
// and unions them into one immutable dataset. Each file is a batch: column
// detection, family resolution and total reconciliation all run per batch
// before the union.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/normalize"
	"elcedro/backend/internal/recon"
)

// column aliases, matched against cleaned headers.
var columnAliases = map[string][]string{
	"year":        {"ANO", "ANIO", "YEAR"},
	"month":       {"MES", "MONTH"},
	"branch":      {"ALMACEN", "SUCURSAL", "TIENDA"},
	"salesperson": {"VENDEDOR"},
	"client":      {"CLIENTE"},
	"tipo":        {"TIPO"},
	"document":    {"DOCUMENTO", "FOLIO"},
	"familyid":    {"ID FAMILIA", "IDFAMILIA", "FAMILIA ID", "FAMILIAID", "CSE PROD"},
	"family":      {"FAMILIA", "FAMILIA NOMBRE"},
	"brand":       {"MARCA"},
	"quantity":    {"CANTIDAD"},
	"unitcost":    {"COSTO ENTRADA", "COSTO"},
	"subtotal":    {"SUB TOTAL", "SUBTOTAL"},
	"total":       {"TOTAL"},
	"discount":    {"DESCUENTO"},
	"profit":      {"UTILIDAD"},
	"isreturn":    {"ES REM"},
	"sameday":     {"FACTURA DEL DIA"},
	"creditnote":  {"NOTA FACTURADA"},
	"canceled":    {"CANCELADO"},
}

// skuAliases is ordered: the first present column wins.
var skuAliases = []string{"ARTICULO", "CVE PROD", "SKU", "CLAVE", "CODBAR", "DESCRIPCION"}

// Batch is one raw source file, header plus data rows.
type Batch struct {
	Name   string
	Header []string
	Rows   [][]string
}

// BatchReport summarizes what happened to one ingested file.
type BatchReport struct {
	File       string           `json:"file"`
	Rows       int              `json:"rows"`
	Recon      recon.Report     `json:"recon"`
	Convention recon.Convention `json:"convention"`
}

// Report summarizes a whole ingestion pass.
type Report struct {
	Batches  []BatchReport `json:"batches"`
	Skipped  []string      `json:"skipped"`
	Lines    int           `json:"lines"`
	Duration time.Duration `json:"duration"`
}

// Loader reads data files and assembles datasets.
type Loader struct {
	catalog *catalog.Catalog
	log     zerolog.Logger
}

func NewLoader(cat *catalog.Catalog, log zerolog.Logger) *Loader {
	return &Loader{catalog: cat, log: log}
}

// LoadDir reads every .xlsx/.xlsm/.csv file in dir and unions them into a
// dataset. Files that fail to parse are skipped and logged; an unreadable
// directory is an error. An empty directory yields a valid empty dataset.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*domain.Dataset, *Report, error) {
	start := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}

	rep := &Report{}
	var all []domain.TransactionLine
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".xlsx" && ext != ".xlsm" && ext != ".csv" {
			continue
		}
		path := filepath.Join(dir, name)
		batch, err := ReadFile(path)
		if err != nil {
			l.log.Warn().Err(err).Str("file", name).Msg("skipping unparseable file")
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		lines, reconRep, err := l.buildLines(batch)
		if err != nil {
			l.log.Warn().Err(err).Str("file", name).Msg("skipping file with unusable layout")
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		rep.Batches = append(rep.Batches, BatchReport{
			File:       name,
			Rows:       len(lines),
			Recon:      reconRep,
			Convention: reconRep.Convention,
		})
		l.log.Info().
			Str("file", name).
			Int("rows", len(lines)).
			Str("convention", string(reconRep.Convention)).
			Msg("ingested batch")
		all = append(all, lines...)
	}

	blankNumericFamilies(all)

	ds := &domain.Dataset{
		Version:      uuid.NewString(),
		Lines:        all,
		LoadedAt:     time.Now(),
		SourceFiles:  len(rep.Batches),
		SkippedFiles: len(rep.Skipped),
	}
	ds.Years, ds.Families, ds.Brands = selectors(all)
	rep.Lines = len(all)
	rep.Duration = time.Since(start)
	return ds, rep, nil
}

// ReadFile parses one source file into a raw batch. The first sheet of an
// Excel workbook is used.
func ReadFile(path string) (Batch, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readExcel(path)
	case ".csv":
		return readCSV(path)
	default:
		return Batch{}, fmt.Errorf("unsupported file type: %s", path)
	}
}

func readExcel(path string) (Batch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return Batch{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return Batch{}, fmt.Errorf("%s: empty sheet", path)
	}
	return Batch{Name: filepath.Base(path), Header: rows[0], Rows: rows[1:]}, nil
}

func readCSV(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return Batch{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return Batch{}, fmt.Errorf("%s: empty file", path)
	}
	return Batch{Name: filepath.Base(path), Header: rows[0], Rows: rows[1:]}, nil
}

// buildLines turns a raw batch into transaction lines, resolves families
// through the catalog and allocates document totals.
func (l *Loader) buildLines(batch Batch) ([]domain.TransactionLine, recon.Report, error) {
	cols := mapColumns(batch.Header)
	if _, ok := cols["total"]; !ok {
		if _, ok := cols["subtotal"]; !ok {
			return nil, recon.Report{}, fmt.Errorf("%s: no total or subtotal column", batch.Name)
		}
	}
	skuCol := -1
	for _, alias := range skuAliases {
		if i := indexOfClean(batch.Header, alias); i >= 0 {
			skuCol = i
			break
		}
	}
	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	// The family dimension may arrive as a dedicated ID column, a name
	// column, or one ambiguous column carrying either. The resolver sorts
	// the ambiguity out per batch.
	var idRaw, nameRaw []string
	_, idExplicit := cols["familyid"]
	if idExplicit {
		idRaw = make([]string, len(batch.Rows))
		for i, row := range batch.Rows {
			idRaw[i] = cell(row, "familyid")
		}
	}
	if _, ok := cols["family"]; ok {
		nameRaw = make([]string, len(batch.Rows))
		for i, row := range batch.Rows {
			nameRaw[i] = cell(row, "family")
		}
	}
	if idRaw == nil && nameRaw != nil {
		// the single ambiguous column goes in as ids so the resolver
		// can run its mostly-numeric test on it
		idRaw, nameRaw = nameRaw, nil
	}
	if idRaw == nil {
		idRaw = make([]string, len(batch.Rows))
	}
	famIDs, famNames := l.catalog.Resolve(idRaw, nameRaw, idExplicit)

	lines := make([]domain.TransactionLine, 0, len(batch.Rows))
	for i, row := range batch.Rows {
		if isBlankRow(row) {
			continue
		}
		tl := domain.TransactionLine{
			Year:        normalize.ParseInt(cell(row, "year")),
			Month:       normalize.ParseInt(cell(row, "month")),
			BranchRaw:   strings.TrimSpace(cell(row, "branch")),
			Document:    strings.TrimSpace(cell(row, "document")),
			FamilyID:    famIDs[i],
			Family:      famNames[i],
			Brand:       strings.TrimSpace(cell(row, "brand")),
			Salesperson: strings.TrimSpace(cell(row, "salesperson")),
			Quantity:    normalize.ParseNumber(cell(row, "quantity")),
			UnitCost:    normalize.ParseNumber(cell(row, "unitcost")),
			Subtotal:    normalize.ParseNumber(cell(row, "subtotal")),
			Total:       normalize.ParseNumber(cell(row, "total")),
			Discount:    normalize.ParseNumber(cell(row, "discount")),
			Profit:      normalize.ParseNumber(cell(row, "profit")),
			IsReturn:    normalize.ParseBool(cell(row, "isreturn")),
			SameDay:     normalize.ParseBool(cell(row, "sameday")),
			CreditNote:  normalize.ParseBool(cell(row, "creditnote")),
			Canceled:    normalize.ParseBool(cell(row, "canceled")),
		}
		tl.Branch = normalize.CanonicalBranch(tl.BranchRaw)
		tl.Kind = normalize.ClassifyKind(cell(row, "tipo"))
		if skuCol >= 0 && skuCol < len(row) {
			tl.SKU = strings.TrimSpace(row[skuCol])
		}
		if tl.Family == "" {
			tl.Family = domain.NoFamily
			tl.FamilyID = ""
		}
		if tl.Brand == "" {
			tl.Brand = domain.NoBrand
		}
		if tl.Salesperson == "" {
			tl.Salesperson = domain.NoSalesperson
		}
		if tl.Year > 0 && tl.Month >= 1 && tl.Month <= 12 && tl.Document != "" {
			tl.DocKey = recon.DocKey(tl.Year, tl.Month, tl.Branch, tl.Document, tl.Kind)
		}
		lines = append(lines, tl)
	}
	reconRep := recon.AllocateTotals(lines)
	return lines, reconRep, nil
}

// blankNumericFamilies clears family names that are just ID digits. Those
// lines stay in every total, but the blank name keeps them out of selector
// lists and family groupings.
func blankNumericFamilies(lines []domain.TransactionLine) {
	for i := range lines {
		if lines[i].Family != "" && normalize.IsNumericLike(lines[i].Family) {
			lines[i].Family = ""
		}
	}
}

func selectors(lines []domain.TransactionLine) (years []int, families, brands []string) {
	ySet := map[int]bool{}
	fSet := map[string]bool{}
	bSet := map[string]bool{}
	for _, l := range lines {
		if l.Year > 0 {
			ySet[l.Year] = true
		}
		if l.Family != "" {
			fSet[l.Family] = true
		}
		if l.Brand != "" {
			bSet[l.Brand] = true
		}
	}
	for y := range ySet {
		years = append(years, y)
	}
	sort.Ints(years)
	for f := range fSet {
		families = append(families, f)
	}
	sort.Strings(families)
	for b := range bSet {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	return years, families, brands
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for key, aliases := range columnAliases {
		for _, alias := range aliases {
			if i := indexOfClean(header, alias); i >= 0 {
				cols[key] = i
				break
			}
		}
	}
	return cols
}

func indexOfClean(header []string, cleanAlias string) int {
	for i, h := range header {
		if normalize.CleanText(h) == cleanAlias {
			return i
		}
	}
	return -1
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
