// Package catalog loads the product family catalog and resolves the ambiguous
// family column of the sales exports, which may carry family IDs, family
// names, or a mix of both.
package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/normalize"
)

// MostlyNumericThreshold is the fraction of non-empty values that must look
// numeric for a column to be treated as ID-bearing.
const MostlyNumericThreshold = 0.80

// idHeaderAliases and nameHeaderAliases are matched against cleaned headers,
// in priority order.
var (
	idHeaderAliases = []string{
		"ID", "IDFAMILIA", "ID FAMILIA", "FAMILIAID", "FAMILIA ID", "CSE PROD",
	}
	nameHeaderAliases = []string{
		"FAMILIA", "NOMBRE", "NOMBRE FAMILIA",
		"DESCRIPCION", "DESC", "DESCFAMILIA", "DESC FAMILIA",
	}
)

// sentinel names never treated as resolvable catalog entries.
var sentinels = map[string]bool{
	"SIN FAMILIA":  true,
	"OTROS":        true,
	"SIN MARCA":    true,
	"SIN VENDEDOR": true,
	"TODAS":        true,
}

// Entry is one catalog row after normalization.
type Entry struct {
	ID   string
	Name string
}

// Catalog maps normalized family IDs to display names and cleaned names back
// to IDs. A nil Catalog is valid and resolves everything by pass-through.
type Catalog struct {
	byID      map[string]string
	idByClean map[string]string
	entries   []Entry
}

// New builds a catalog from raw (id, name) pairs. Later duplicates of an ID or
// a cleaned name are ignored so the first occurrence wins.
func New(entries []Entry) *Catalog {
	c := &Catalog{
		byID:      make(map[string]string, len(entries)),
		idByClean: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		id := normalize.NormalizeID(e.ID)
		name := strings.TrimSpace(e.Name)
		if id == "" || name == "" {
			continue
		}
		if _, dup := c.byID[id]; dup {
			continue
		}
		c.byID[id] = name
		c.entries = append(c.entries, Entry{ID: id, Name: name})
		clean := normalize.CleanText(name)
		if clean != "" && !sentinels[clean] {
			if _, dup := c.idByClean[clean]; !dup {
				c.idByClean[clean] = id
			}
		}
	}
	return c
}

// Len reports the number of usable catalog entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// NameByID looks up the display name for a normalized ID.
func (c *Catalog) NameByID(id string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.byID[normalize.NormalizeID(id)]
	return name, ok
}

// IDByName looks up the ID for a cleaned display name. Sentinel names never
// resolve.
func (c *Catalog) IDByName(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	id, ok := c.idByClean[normalize.CleanText(name)]
	return id, ok
}

// Load reads a catalog file. ".xlsx"/".xlsm" go through excelize, anything
// else is parsed as CSV. An empty path returns a nil catalog, which is valid.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadExcel(path)
	default:
		return loadCSV(path)
	}
}

func loadExcel(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	for _, name := range f.GetSheetList() {
		if normalize.CleanText(name) == "CAT FAMILIA" {
			sheet = name
			break
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read catalog sheet %s: %w", sheet, err)
	}
	return fromRows(rows, path)
}

func loadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return fromRows(rows, path)
}

func fromRows(rows [][]string, path string) (*Catalog, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("catalog %s: no data rows", path)
	}
	header := rows[0]
	idCol := findColumn(header, idHeaderAliases)
	nameCol := findColumn(header, nameHeaderAliases)
	if idCol < 0 && nameCol < 0 && len(header) >= 2 {
		// headerless or unrecognized layout: first column is the id,
		// second the name
		idCol, nameCol = 0, 1
	}
	if idCol < 0 || nameCol < 0 || idCol == nameCol {
		return nil, fmt.Errorf("catalog %s: id/name columns not found in header %v", path, header)
	}
	entries := make([]Entry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		entries = append(entries, Entry{ID: row[idCol], Name: row[nameCol]})
	}
	return New(entries), nil
}

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range header {
			if normalize.CleanText(h) == alias {
				return i
			}
		}
	}
	return -1
}

// MostlyNumeric reports whether at least MostlyNumericThreshold of the
// non-empty values look like integers (optionally float-formatted). An
// all-empty column is not numeric.
func MostlyNumeric(values []string) bool {
	var nonEmpty, numeric int
	for _, v := range values {
		t := strings.TrimSpace(v)
		if t == "" {
			continue
		}
		nonEmpty++
		if normalize.IsNumericLike(t) {
			numeric++
		}
	}
	if nonEmpty == 0 {
		return false
	}
	return float64(numeric)/float64(nonEmpty) >= MostlyNumericThreshold
}

// Resolve resolves the family dimension for a batch of rows. ids and names are
// the raw values of the detected ID column and name column; either slice may
// be nil when its column is absent. idExplicit tells the resolver the ids slice
// came from a dedicated ID column; otherwise it holds the ambiguous family
// column and the resolver decides itself, via the mostly-numeric test, whether
// the values are IDs or names. The returned slices hold the resolved family ID
// and display name per row.
//
// On the ID path, display names come from a trusted name column if one exists
// and is not itself numeric, otherwise from the catalog; IDs the catalog does
// not know resolve to the OTROS sentinel, and with no catalog at all the ID
// passes through as the name. On the name path, IDs are reverse-looked-up from
// cleaned names, best effort.
func (c *Catalog) Resolve(ids, names []string, idExplicit bool) (outIDs, outNames []string) {
	n := len(ids)
	if len(names) > n {
		n = len(names)
	}
	outIDs = make([]string, n)
	outNames = make([]string, n)

	hasIDCol := len(ids) > 0 && (idExplicit || MostlyNumeric(ids))
	trustNames := hasAnyText(names) && !MostlyNumeric(names)
	for i := 0; i < n; i++ {
		var rawID, rawName string
		if i < len(ids) {
			rawID = strings.TrimSpace(ids[i])
		}
		if i < len(names) {
			rawName = strings.TrimSpace(names[i])
		}
		switch {
		case hasIDCol:
			id := normalize.NormalizeID(rawID)
			outIDs[i] = id
			switch {
			case id == "":
				outNames[i] = ""
			case trustNames && rawName != "":
				outNames[i] = rawName
			default:
				if name, ok := c.NameByID(id); ok {
					outNames[i] = name
				} else if c.Len() > 0 {
					outNames[i] = domain.OtherFamily
				} else {
					outNames[i] = id
				}
			}
		case rawName != "":
			outNames[i] = rawName
			if id, ok := c.IDByName(rawName); ok {
				outIDs[i] = id
			} else {
				outIDs[i] = normalize.NormalizeID(rawName)
			}
		case rawID != "":
			// name column absent, id column not numeric enough: the
			// "id" values are really names.
			outNames[i] = rawID
			if id, ok := c.IDByName(rawID); ok {
				outIDs[i] = id
			} else {
				outIDs[i] = normalize.NormalizeID(rawID)
			}
		default:
			outIDs[i] = ""
			outNames[i] = ""
		}
	}
	return outIDs, outNames
}

func hasAnyText(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
