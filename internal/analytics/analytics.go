// Package analytics computes KPI bundles, monthly summaries and dimensional
// breakdowns over an immutable slice of transaction lines. Everything here is
// a pure function of (lines, filter); no state, no I/O.
package analytics

import (
	"math"
	"sort"

	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/normalize"
)

// Salesperson labels excluded from the active-salespeople count, matched on
// the cleaned form.
var excludedSalespeople = map[string]bool{
	"TODOS":      true,
	"SUPERVISOR": true,
}

func excludedSalesperson(name string) bool {
	return name == "" || excludedSalespeople[normalize.CleanText(name)]
}

const (
	// DefaultBreakdownTopN caps dimensional breakdowns.
	DefaultBreakdownTopN = 20
	// DefaultVendorTopN caps the salesperson table.
	DefaultVendorTopN = 30
)

// safeDiv divides a by b, returning NaN when the denominator is not positive
// in magnitude. Consumers render NaN as null, never as zero.
func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return math.NaN()
	}
	return a / b
}

// yoy is the year-over-year ratio delta: cur/prev - 1, NaN-guarded.
func yoy(cur, prev float64) float64 {
	if math.IsNaN(cur) || math.IsNaN(prev) {
		return math.NaN()
	}
	return safeDiv(cur, prev) - 1
}

// ppDelta is the percentage-point difference between two ratio metrics.
func ppDelta(cur, prev float64) float64 {
	if math.IsNaN(cur) || math.IsNaN(prev) {
		return math.NaN()
	}
	return (cur - prev) * 100
}

// inWindow reports whether (year, month) falls inside the filter's window,
// including the prior-year part of a window whose MonthStart is <= 0.
func inWindow(f domain.FilterSpec, year, month int) bool {
	if f.MonthStart >= 1 {
		return year == f.Year && month >= f.MonthStart && month <= f.MonthEnd
	}
	// trailing window crossing the year boundary
	if year == f.Year-1 {
		return month >= f.MonthStart+12 && month <= 12
	}
	return year == f.Year && month >= 1 && month <= f.MonthEnd
}

// Filter applies the full filter chain and returns the matching lines. The
// CONSOLIDADO branch matches every branch; TODAS matches every family/brand.
func Filter(lines []domain.TransactionLine, f domain.FilterSpec) []domain.TransactionLine {
	f = f.Normalize()
	out := make([]domain.TransactionLine, 0, len(lines))
	for _, l := range lines {
		if !inWindow(f, l.Year, l.Month) {
			continue
		}
		if f.Branch != domain.BranchAll && l.Branch != f.Branch {
			continue
		}
		if f.Family != domain.AllValues && l.Family != f.Family {
			continue
		}
		if f.Brand != domain.AllValues && l.Brand != f.Brand {
			continue
		}
		if !f.IncludeReturns && l.IsReturn {
			continue
		}
		if f.ExcludeCredit && l.Kind != domain.KindCash {
			continue
		}
		out = append(out, l)
	}
	return out
}

// sales returns the revenue measure for one line under the tax toggle.
func sales(l domain.TransactionLine, withTax bool) float64 {
	if withTax {
		return l.TotalAlloc
	}
	return l.Subtotal
}

// KPIs aggregates the filtered slice into the headline bundle. area is the
// floor area (m2) for the filter's branch; pass 0 when unknown and the per-m2
// metrics come back NaN.
func KPIs(lines []domain.TransactionLine, f domain.FilterSpec, area float64) domain.KPIBundle {
	f = f.Normalize()
	var (
		salesTotal, cash, credit   float64
		profit, subtotal, discount float64
		docs                       = map[string]bool{}
		people                     = map[string]bool{}
	)
	for _, l := range lines {
		v := sales(l, f.WithTax)
		salesTotal += v
		if l.Kind == domain.KindCredit {
			credit += v
		} else {
			cash += v
		}
		profit += l.Profit
		subtotal += l.Subtotal
		discount += l.Discount
		if l.DocKey != "" {
			docs[l.DocKey] = true
		}
		if !excludedSalesperson(l.Salesperson) {
			people[l.Salesperson] = true
		}
	}
	txns := float64(len(docs))
	k := domain.KPIBundle{
		Sales:        domain.Metric(salesTotal),
		SalesCash:    domain.Metric(cash),
		SalesCredit:  domain.Metric(credit),
		Profit:       domain.Metric(profit),
		Subtotal:     domain.Metric(subtotal),
		Margin:       domain.Metric(safeDiv(profit, subtotal)),
		Transactions: domain.Metric(txns),
		Ticket:       domain.Metric(safeDiv(salesTotal, txns)),
		Discount:     domain.Metric(discount),
		Salespeople:  domain.Metric(float64(len(people))),
		SalesPerM2:   domain.Metric(safeDiv(salesTotal, area)),
		ProfitPerM2:  domain.Metric(safeDiv(profit, area)),
		DiscountPct:  domain.Metric(safeDiv(discount, subtotal)),
	}
	return k
}

// monthAgg is the per-month accumulator shared by the summary paths.
type monthAgg struct {
	cash, credit, total float64
	profit, subtotal    float64
	discount            float64
	docs                map[string]bool
	people              map[string]bool
}

func newMonthAgg() *monthAgg {
	return &monthAgg{docs: map[string]bool{}, people: map[string]bool{}}
}

func (a *monthAgg) add(l domain.TransactionLine, withTax bool) {
	v := sales(l, withTax)
	a.total += v
	if l.Kind == domain.KindCredit {
		a.credit += v
	} else {
		a.cash += v
	}
	a.profit += l.Profit
	a.subtotal += l.Subtotal
	a.discount += l.Discount
	if l.DocKey != "" {
		a.docs[l.DocKey] = true
	}
	if !excludedSalesperson(l.Salesperson) {
		a.people[l.Salesperson] = true
	}
}

func (a *monthAgg) row(year, month int) domain.MonthlyRow {
	txns := float64(len(a.docs))
	r := domain.MonthlyRow{
		Year:         year,
		Month:        month,
		MonthName:    domain.MonthNames[month],
		SalesCash:    domain.Metric(a.cash),
		SalesCredit:  domain.Metric(a.credit),
		SalesTotal:   domain.Metric(a.total),
		Profit:       domain.Metric(a.profit),
		Subtotal:     domain.Metric(a.subtotal),
		Margin:       domain.Metric(safeDiv(a.profit, a.subtotal)),
		Transactions: domain.Metric(txns),
		Ticket:       domain.Metric(safeDiv(a.total, txns)),
		Salespeople:  domain.Metric(float64(len(a.people))),
		DiscountPct:  domain.Metric(safeDiv(a.discount, a.subtotal)),
	}
	nan := domain.Metric(math.NaN())
	r.YoYSales, r.YoYSalesCash, r.YoYSalesCredit = nan, nan, nan
	r.YoYProfit, r.YoYTransactions, r.YoYTicket = nan, nan, nan
	r.MarginDeltaPP, r.DiscountDeltaPP = nan, nan
	return r
}

// MonthlySummary aggregates one calendar year month by month. All 12 months
// are always emitted; months with no activity carry zero flows and NaN ratio
// metrics. The filter's window does not apply here, only its dimensions and
// toggles.
func MonthlySummary(lines []domain.TransactionLine, f domain.FilterSpec) []domain.MonthlyRow {
	yearly := f.WithMonths(1, 12)
	cur := aggregateByMonth(Filter(lines, yearly), yearly.WithTax)
	prev := aggregateByMonth(Filter(lines, yearly.WithYear(f.Year-1)), yearly.WithTax)

	out := make([]domain.MonthlyRow, 0, 12)
	for m := 1; m <= 12; m++ {
		a, ok := cur[m]
		if !ok {
			a = newMonthAgg()
		}
		r := a.row(f.Year, m)
		if p, ok := prev[m]; ok {
			attachYoY(&r, p.row(f.Year-1, m))
		}
		out = append(out, r)
	}
	return out
}

// MonthlyWindow aggregates the filter's month window in chronological order.
// A MonthStart <= 0 produces a window crossing the year boundary: the
// prior-year months come first, untouched by any merging with the same month
// number of the current year. Each row compares against the same month one
// year before it.
func MonthlyWindow(lines []domain.TransactionLine, f domain.FilterSpec) []domain.MonthlyRow {
	f = f.Normalize()
	type ym struct{ year, month int }
	var span []ym
	if f.MonthStart >= 1 {
		for m := f.MonthStart; m <= f.MonthEnd; m++ {
			span = append(span, ym{f.Year, m})
		}
	} else {
		for m := f.MonthStart + 12; m <= 12; m++ {
			span = append(span, ym{f.Year - 1, m})
		}
		for m := 1; m <= f.MonthEnd; m++ {
			span = append(span, ym{f.Year, m})
		}
	}

	byYM := make(map[[2]int]*monthAgg)
	prior := make(map[[2]int]*monthAgg)
	for _, l := range Filter(lines, f) {
		k := [2]int{l.Year, l.Month}
		if byYM[k] == nil {
			byYM[k] = newMonthAgg()
		}
		byYM[k].add(l, f.WithTax)
	}
	// comparison period: one year before every window month
	for _, l := range lines {
		matched := false
		for _, s := range span {
			if l.Year == s.year-1 && l.Month == s.month {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !passesDimensions(l, f) {
			continue
		}
		k := [2]int{l.Year, l.Month}
		if prior[k] == nil {
			prior[k] = newMonthAgg()
		}
		prior[k].add(l, f.WithTax)
	}

	out := make([]domain.MonthlyRow, 0, len(span))
	for _, s := range span {
		a := byYM[[2]int{s.year, s.month}]
		if a == nil {
			a = newMonthAgg()
		}
		r := a.row(s.year, s.month)
		if p := prior[[2]int{s.year - 1, s.month}]; p != nil {
			attachYoY(&r, p.row(s.year-1, s.month))
		}
		out = append(out, r)
	}
	return out
}

// passesDimensions applies the non-window part of the filter to one line.
func passesDimensions(l domain.TransactionLine, f domain.FilterSpec) bool {
	if f.Branch != domain.BranchAll && l.Branch != f.Branch {
		return false
	}
	if f.Family != domain.AllValues && l.Family != f.Family {
		return false
	}
	if f.Brand != domain.AllValues && l.Brand != f.Brand {
		return false
	}
	if !f.IncludeReturns && l.IsReturn {
		return false
	}
	if f.ExcludeCredit && l.Kind != domain.KindCash {
		return false
	}
	return true
}

func aggregateByMonth(lines []domain.TransactionLine, withTax bool) map[int]*monthAgg {
	out := make(map[int]*monthAgg)
	for _, l := range lines {
		if out[l.Month] == nil {
			out[l.Month] = newMonthAgg()
		}
		out[l.Month].add(l, withTax)
	}
	return out
}

func attachYoY(cur *domain.MonthlyRow, prev domain.MonthlyRow) {
	cur.YoYSales = domain.Metric(yoy(float64(cur.SalesTotal), float64(prev.SalesTotal)))
	cur.YoYSalesCash = domain.Metric(yoy(float64(cur.SalesCash), float64(prev.SalesCash)))
	cur.YoYSalesCredit = domain.Metric(yoy(float64(cur.SalesCredit), float64(prev.SalesCredit)))
	cur.YoYProfit = domain.Metric(yoy(float64(cur.Profit), float64(prev.Profit)))
	cur.YoYTransactions = domain.Metric(yoy(float64(cur.Transactions), float64(prev.Transactions)))
	cur.YoYTicket = domain.Metric(yoy(float64(cur.Ticket), float64(prev.Ticket)))
	cur.MarginDeltaPP = domain.Metric(ppDelta(float64(cur.Margin), float64(prev.Margin)))
	cur.DiscountDeltaPP = domain.Metric(ppDelta(float64(cur.DiscountPct), float64(prev.DiscountPct)))
}

// Dimension selects the grouping column of a breakdown.
type Dimension string

const (
	DimFamily      Dimension = "family"
	DimBrand       Dimension = "brand"
	DimSalesperson Dimension = "salesperson"
	DimBranch      Dimension = "branch"
)

func dimValue(l domain.TransactionLine, dim Dimension) string {
	switch dim {
	case DimFamily:
		return l.Family
	case DimBrand:
		return l.Brand
	case DimSalesperson:
		return l.Salesperson
	case DimBranch:
		return l.Branch
	}
	return ""
}

type dimAgg struct {
	sales, profit, subtotal float64
	docs                    map[string]bool
}

func aggregateByDim(lines []domain.TransactionLine, dim Dimension, withTax bool) map[string]*dimAgg {
	out := make(map[string]*dimAgg)
	for _, l := range lines {
		v := dimValue(l, dim)
		if v == "" {
			// blanked numeric family names stay out of groupings
			continue
		}
		a := out[v]
		if a == nil {
			a = &dimAgg{docs: map[string]bool{}}
			out[v] = a
		}
		a.sales += sales(l, withTax)
		a.profit += l.Profit
		a.subtotal += l.Subtotal
		if l.DocKey != "" {
			a.docs[l.DocKey] = true
		}
	}
	return out
}

// Breakdown groups the filtered window by one dimension and attaches
// prior-year comparisons, sorted by current sales descending and capped at
// topN (<= 0 means DefaultBreakdownTopN). When excludeOther is set the OTROS
// bucket is dropped from the ranking.
func Breakdown(lines []domain.TransactionLine, f domain.FilterSpec, dim Dimension, topN int, excludeOther bool) []domain.BreakdownRow {
	f = f.Normalize()
	if topN <= 0 {
		topN = DefaultBreakdownTopN
	}
	cur := aggregateByDim(Filter(lines, f), dim, f.WithTax)
	prev := aggregateByDim(Filter(lines, f.WithYear(f.Year-1)), dim, f.WithTax)

	nan := math.NaN()
	rows := make([]domain.BreakdownRow, 0, len(cur))
	for v, a := range cur {
		if excludeOther && v == domain.OtherFamily {
			continue
		}
		r := domain.BreakdownRow{
			Value:        v,
			Sales:        domain.Metric(a.sales),
			Profit:       domain.Metric(a.profit),
			Subtotal:     domain.Metric(a.subtotal),
			Margin:       domain.Metric(safeDiv(a.profit, a.subtotal)),
			Transactions: domain.Metric(float64(len(a.docs))),
			PrevSales:    domain.Metric(nan),
			PrevProfit:   domain.Metric(nan),
			YoYSales:     domain.Metric(nan),
			YoYProfit:    domain.Metric(nan),
			YoYTxns:      domain.Metric(nan),
			MarginDelta:  domain.Metric(nan),
		}
		if p, ok := prev[v]; ok {
			r.PrevSales = domain.Metric(p.sales)
			r.PrevProfit = domain.Metric(p.profit)
			r.YoYSales = domain.Metric(yoy(a.sales, p.sales))
			r.YoYProfit = domain.Metric(yoy(a.profit, p.profit))
			r.YoYTxns = domain.Metric(yoy(float64(len(a.docs)), float64(len(p.docs))))
			r.MarginDelta = domain.Metric(ppDelta(safeDiv(a.profit, a.subtotal), safeDiv(p.profit, p.subtotal)))
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := float64(rows[i].Sales), float64(rows[j].Sales)
		if si != sj {
			return si > sj
		}
		return rows[i].Value < rows[j].Value
	})
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

type vendorAgg struct {
	sales, cash, credit float64
	profit, subtotal    float64
	lines               int
	docs                map[string]bool
	skus                map[string]bool
}

func aggregateVendors(lines []domain.TransactionLine, withTax bool) map[string]*vendorAgg {
	out := make(map[string]*vendorAgg)
	for _, l := range lines {
		if excludedSalesperson(l.Salesperson) {
			continue
		}
		a := out[l.Salesperson]
		if a == nil {
			a = &vendorAgg{docs: map[string]bool{}, skus: map[string]bool{}}
			out[l.Salesperson] = a
		}
		v := sales(l, withTax)
		a.sales += v
		if l.Kind == domain.KindCredit {
			a.credit += v
		} else {
			a.cash += v
		}
		a.profit += l.Profit
		a.subtotal += l.Subtotal
		a.lines++
		if l.DocKey != "" {
			a.docs[l.DocKey] = true
		}
		if l.SKU != "" {
			a.skus[l.SKU] = true
		}
	}
	return out
}

// VendorMetrics builds the per-salesperson productivity table over the
// filtered window, with prior-year comparisons, sorted by sales descending
// and capped at topN (<= 0 means DefaultVendorTopN).
func VendorMetrics(lines []domain.TransactionLine, f domain.FilterSpec, topN int) []domain.VendorRow {
	f = f.Normalize()
	if topN <= 0 {
		topN = DefaultVendorTopN
	}
	cur := aggregateVendors(Filter(lines, f), f.WithTax)
	prev := aggregateVendors(Filter(lines, f.WithYear(f.Year-1)), f.WithTax)

	nan := math.NaN()
	rows := make([]domain.VendorRow, 0, len(cur))
	for name, a := range cur {
		txns := float64(len(a.docs))
		skusPerTicket := safeDiv(float64(len(a.skus)), txns)
		if math.IsNaN(skusPerTicket) || len(a.skus) == 0 {
			skusPerTicket = safeDiv(float64(a.lines), txns)
		}
		r := domain.VendorRow{
			Salesperson:   name,
			Sales:         domain.Metric(a.sales),
			SalesCash:     domain.Metric(a.cash),
			SalesCredit:   domain.Metric(a.credit),
			Profit:        domain.Metric(a.profit),
			Subtotal:      domain.Metric(a.subtotal),
			Margin:        domain.Metric(safeDiv(a.profit, a.subtotal)),
			Transactions:  domain.Metric(txns),
			Ticket:        domain.Metric(safeDiv(a.sales, txns)),
			Lines:         a.lines,
			UniqueSKUs:    len(a.skus),
			SKUsPerTicket: domain.Metric(skusPerTicket),
			YoYSales:      domain.Metric(nan),
			YoYProfit:     domain.Metric(nan),
			YoYTxns:       domain.Metric(nan),
			YoYTicket:     domain.Metric(nan),
			MarginDelta:   domain.Metric(nan),
		}
		if p, ok := prev[name]; ok {
			pTxns := float64(len(p.docs))
			r.YoYSales = domain.Metric(yoy(a.sales, p.sales))
			r.YoYProfit = domain.Metric(yoy(a.profit, p.profit))
			r.YoYTxns = domain.Metric(yoy(txns, pTxns))
			r.YoYTicket = domain.Metric(yoy(safeDiv(a.sales, txns), safeDiv(p.sales, pTxns)))
			r.MarginDelta = domain.Metric(ppDelta(safeDiv(a.profit, a.subtotal), safeDiv(p.profit, p.subtotal)))
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := float64(rows[i].Sales), float64(rows[j].Sales)
		if si != sj {
			return si > sj
		}
		return rows[i].Salesperson < rows[j].Salesperson
	})
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

// ActiveSalespeople counts distinct salespeople in the slice, excluding the
// TODOS and SUPERVISOR labels.
func ActiveSalespeople(lines []domain.TransactionLine) int {
	set := map[string]bool{}
	for _, l := range lines {
		if !excludedSalesperson(l.Salesperson) {
			set[l.Salesperson] = true
		}
	}
	return len(set)
}

// LastMonth returns the latest (year, month) present in the lines, or false
// when there is no dated data.
func LastMonth(lines []domain.TransactionLine) (year, month int, ok bool) {
	for _, l := range lines {
		if l.Year <= 0 || l.Month < 1 || l.Month > 12 {
			continue
		}
		if l.Year > year || (l.Year == year && l.Month > month) {
			year, month = l.Year, l.Month
		}
	}
	return year, month, year > 0
}

// DefaultWindow builds the trailing-13-month filter window ending at the
// latest month in the data.
func DefaultWindow(lines []domain.TransactionLine) (domain.FilterSpec, bool) {
	year, month, ok := LastMonth(lines)
	if !ok {
		return domain.FilterSpec{}, false
	}
	f := domain.FilterSpec{Year: year, MonthStart: month - 12, MonthEnd: month}
	return f.Normalize(), true
}
