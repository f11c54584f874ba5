package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical branch keys. CONSOLIDADO is the pseudo-branch covering all stores.
const (
	BranchAll       = "CONSOLIDADO"
	BranchGeneral   = "GENERAL"
	BranchExpress   = "EXPRESS"
	BranchSanAgust  = "SAN AGUST"
	BranchAdelitas  = "ADELITAS"
	BranchHIlustres = "H ILUSTRES"
)

var Branches = []string{
	BranchAll,
	BranchGeneral,
	BranchExpress,
	BranchSanAgust,
	BranchAdelitas,
	BranchHIlustres,
}

// Transaction kinds as classified from the raw "Tipo" field.
const (
	KindCash   = "CONTADO"
	KindCredit = "CREDITO"
)

// Sentinels for failed resolution. These are real values, distinct from
// null/absence, so degraded rows stay visible in aggregates.
const (
	NoFamily      = "SIN FAMILIA"
	OtherFamily   = "OTROS"
	NoBrand       = "SIN MARCA"
	NoSalesperson = "SIN VENDEDOR"
	AllValues     = "TODAS"
)

// DefaultFloorAreas holds the sales floor area (m2) per canonical branch.
// Overridable through the areas config file.
var DefaultFloorAreas = map[string]float64{
	BranchGeneral:   1538,
	BranchExpress:   369,
	BranchSanAgust:  870,
	BranchAdelitas:  348,
	BranchHIlustres: 100,
	BranchAll:       3225,
}

var MonthNames = [13]string{"",
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// Metric is a float64 whose NaN/Inf values marshal as JSON null. Ratio metrics
// with an undefined denominator are NaN, never zero and never an error.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = Metric(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse metric %q: %w", s, err)
	}
	*m = Metric(f)
	return nil
}

// IsNaN reports whether the metric is undefined.
func (m Metric) IsNaN() bool { return math.IsNaN(float64(m)) }

// TransactionLine is one sold line item of one sales document. Lines are
// immutable after ingestion; a refresh rebuilds the whole dataset.
type TransactionLine struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Branch      string  `json:"branch"`
	BranchRaw   string  `json:"branch_raw,omitempty"`
	Document    string  `json:"document"`
	Kind        string  `json:"kind"`
	DocKey      string  `json:"doc_key"`
	FamilyID    string  `json:"family_id,omitempty"`
	Family      string  `json:"family,omitempty"`
	Brand       string  `json:"brand"`
	Salesperson string  `json:"salesperson"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	Subtotal    float64 `json:"subtotal"`
	Total       float64 `json:"total"`
	TotalAlloc  float64 `json:"total_alloc"`
	Discount    float64 `json:"discount"`
	Profit      float64 `json:"profit"`
	IsReturn    bool    `json:"is_return,omitempty"`
	SameDay     bool    `json:"same_day_invoice,omitempty"`
	CreditNote  bool    `json:"credit_note,omitempty"`
	Canceled    bool    `json:"canceled,omitempty"`
}

// Dataset is the unioned, read-only result of one ingestion pass. Version
// changes on every refresh and keys all memoized query results.
type Dataset struct {
	Version      string            `json:"version"`
	Lines        []TransactionLine `json:"-"`
	Years        []int             `json:"years"`
	Families     []string          `json:"families"`
	Brands       []string          `json:"brands"`
	LoadedAt     time.Time         `json:"loaded_at"`
	SourceFiles  int               `json:"source_files"`
	SkippedFiles int               `json:"skipped_files"`
}

// Empty reports whether the dataset holds no transaction lines.
func (d *Dataset) Empty() bool { return d == nil || len(d.Lines) == 0 }

// FilterSpec is the immutable filter configuration passed into every
// aggregation call. MonthStart may be zero or negative: month m with m <= 0
// means month m+12 of Year-1 (a trailing window crossing the year boundary).
type FilterSpec struct {
	Year           int    `json:"year"`
	MonthStart     int    `json:"month_start"`
	MonthEnd       int    `json:"month_end"`
	Branch         string `json:"branch"`
	Family         string `json:"family"`
	Brand          string `json:"brand"`
	IncludeReturns bool   `json:"include_returns"`
	ExcludeCredit  bool   `json:"exclude_credit"`
	WithTax        bool   `json:"with_tax"`
}

// Normalize fills the "all" defaults for empty dimension values.
func (f FilterSpec) Normalize() FilterSpec {
	if strings.TrimSpace(f.Branch) == "" {
		f.Branch = BranchAll
	}
	if strings.TrimSpace(f.Family) == "" {
		f.Family = AllValues
	}
	if strings.TrimSpace(f.Brand) == "" {
		f.Brand = AllValues
	}
	return f
}

// Key returns a canonical string form of the filter, used in memoization keys.
func (f FilterSpec) Key() string {
	f = f.Normalize()
	return fmt.Sprintf("y=%d|m=%d..%d|suc=%s|fam=%s|mar=%s|rem=%t|nocred=%t|iva=%t",
		f.Year, f.MonthStart, f.MonthEnd, f.Branch, f.Family, f.Brand,
		f.IncludeReturns, f.ExcludeCredit, f.WithTax)
}

// WithYear returns a copy of the filter pointing at another year.
func (f FilterSpec) WithYear(year int) FilterSpec {
	f.Year = year
	return f
}

// WithMonths returns a copy of the filter with another month range.
func (f FilterSpec) WithMonths(start, end int) FilterSpec {
	f.MonthStart = start
	f.MonthEnd = end
	return f
}

// KPIBundle is a snapshot of aggregate metrics over one filtered slice.
// Recomputed from scratch on every filter application.
type KPIBundle struct {
	Sales        Metric `json:"sales"`
	SalesCash    Metric `json:"sales_cash"`
	SalesCredit  Metric `json:"sales_credit"`
	Profit       Metric `json:"profit"`
	Subtotal     Metric `json:"subtotal"`
	Margin       Metric `json:"margin"`
	Transactions Metric `json:"transactions"`
	Ticket       Metric `json:"ticket"`
	Discount     Metric `json:"discount"`
	DiscountPct  Metric `json:"discount_pct"`
	Salespeople  Metric `json:"salespeople"`
	SalesPerM2   Metric `json:"sales_per_m2"`
	ProfitPerM2  Metric `json:"profit_per_m2"`
}

// MonthlyRow is one calendar month of the monthly summary, with year-over-year
// deltas against the equivalent month one year earlier. Flow metrics compare as
// ratios; margin and discount compare as percentage-point differences.
type MonthlyRow struct {
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	MonthName    string `json:"month_name"`
	SalesCash    Metric `json:"sales_cash"`
	SalesCredit  Metric `json:"sales_credit"`
	SalesTotal   Metric `json:"sales_total"`
	Profit       Metric `json:"profit"`
	Subtotal     Metric `json:"subtotal"`
	Margin       Metric `json:"margin"`
	Transactions Metric `json:"transactions"`
	Ticket       Metric `json:"ticket"`
	DiscountPct  Metric `json:"discount_pct"`
	Salespeople  Metric `json:"salespeople"`

	YoYSales        Metric `json:"yoy_sales"`
	YoYSalesCash    Metric `json:"yoy_sales_cash"`
	YoYSalesCredit  Metric `json:"yoy_sales_credit"`
	YoYProfit       Metric `json:"yoy_profit"`
	YoYTransactions Metric `json:"yoy_transactions"`
	YoYTicket       Metric `json:"yoy_ticket"`
	MarginDeltaPP   Metric `json:"yoy_margin_pp"`
	DiscountDeltaPP Metric `json:"yoy_discount_pp"`
}

// BreakdownRow is one dimension value (family, brand or salesperson) ranked by
// current-period sales, with prior-period values and YoY deltas. Dimension
// values active only in the prior period are not emitted.
type BreakdownRow struct {
	Value        string `json:"value"`
	Sales        Metric `json:"sales"`
	Profit       Metric `json:"profit"`
	Subtotal     Metric `json:"subtotal"`
	Margin       Metric `json:"margin"`
	Transactions Metric `json:"transactions"`
	PrevSales    Metric `json:"prev_sales"`
	PrevProfit   Metric `json:"prev_profit"`
	YoYSales     Metric `json:"yoy_sales"`
	YoYProfit    Metric `json:"yoy_profit"`
	YoYTxns      Metric `json:"yoy_transactions"`
	MarginDelta  Metric `json:"yoy_margin_pp"`
}

// VendorRow is the per-salesperson productivity breakdown.
type VendorRow struct {
	Salesperson   string `json:"salesperson"`
	Sales         Metric `json:"sales"`
	SalesCash     Metric `json:"sales_cash"`
	SalesCredit   Metric `json:"sales_credit"`
	Profit        Metric `json:"profit"`
	Subtotal      Metric `json:"subtotal"`
	Margin        Metric `json:"margin"`
	Transactions  Metric `json:"transactions"`
	Ticket        Metric `json:"ticket"`
	Lines         int    `json:"lines"`
	UniqueSKUs    int    `json:"unique_skus"`
	SKUsPerTicket Metric `json:"skus_per_ticket"`
	YoYSales      Metric `json:"yoy_sales"`
	YoYProfit     Metric `json:"yoy_profit"`
	YoYTxns       Metric `json:"yoy_transactions"`
	YoYTicket     Metric `json:"yoy_ticket"`
	MarginDelta   Metric `json:"yoy_margin_pp"`
}
