// Package recon reconciles document-level totals against line-level subtotals.
// Point-of-sale exports come in two conventions: the document total repeated on
// every line of the document, or a total already split per line. Detection runs
// per source batch and the chosen convention applies to the whole batch.
package recon

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"elcedro/backend/internal/domain"
)

// RepeatedShareThreshold is the fraction of multi-line documents that must look
// repeated-total for a batch to be prorated.
const RepeatedShareThreshold = 0.90

// Convention names a batch's detected total convention.
type Convention string

const (
	ConventionRepeated Convention = "repeated-total"
	ConventionSplit    Convention = "already-split"
)

// DocKey builds the composite document identity. All five components are
// required; the canonical branch and kind must already be normalized.
func DocKey(year, month int, branch, document, kind string) string {
	return strings.Join([]string{
		strconv.Itoa(year),
		strconv.Itoa(month),
		branch,
		document,
		kind,
	}, "|")
}

// Report describes what AllocateTotals did to one batch.
type Report struct {
	Convention    Convention `json:"convention"`
	RepeatedShare float64    `json:"repeated_share"`
	Documents     int        `json:"documents"`
	MultiLineDocs int        `json:"multi_line_docs"`
	Fallback      int        `json:"fallback_lines"`
}

// DetectConvention inspects the batch and reports which total convention it
// follows. Only documents with more than one line are evidence; if none exist
// the batch counts as already-split, which makes allocation a no-op on data
// that was already correct.
func DetectConvention(lines []domain.TransactionLine) (Convention, Report) {
	groups := groupByDoc(lines)
	rep := Report{Documents: len(groups)}
	for _, idx := range groups {
		if len(idx) < 2 {
			continue
		}
		rep.MultiLineDocs++
		if looksRepeated(lines, idx) {
			rep.RepeatedShare++
		}
	}
	if rep.MultiLineDocs > 0 {
		rep.RepeatedShare /= float64(rep.MultiLineDocs)
	}
	if rep.MultiLineDocs > 0 && rep.RepeatedShare >= RepeatedShareThreshold {
		rep.Convention = ConventionRepeated
	} else {
		rep.Convention = ConventionSplit
	}
	return rep.Convention, rep
}

// looksRepeated reports whether every Total in the document equals the first
// one within tolerance.
func looksRepeated(lines []domain.TransactionLine, idx []int) bool {
	first := lines[idx[0]].Total
	for _, i := range idx[1:] {
		if !nearlyEqual(lines[i].Total, first) {
			return false
		}
	}
	return true
}

// AllocateTotals fills TotalAlloc on every line in the batch. Under the
// repeated-total convention the document total is prorated across lines by
// subtotal weight; under already-split the raw Total passes through. Lines
// with an empty DocKey fall back to their own Total. The input slice is
// mutated in place.
func AllocateTotals(lines []domain.TransactionLine) Report {
	conv, rep := DetectConvention(lines)
	if conv == ConventionSplit {
		for i := range lines {
			lines[i].TotalAlloc = lines[i].Total
		}
		return rep
	}
	groups := groupByDoc(lines)
	for i := range lines {
		if lines[i].DocKey == "" {
			lines[i].TotalAlloc = lines[i].Total
			rep.Fallback++
		}
	}
	for _, idx := range groups {
		docTotal := lines[idx[0]].Total
		var sumSub float64
		for _, i := range idx {
			sumSub += lines[i].Subtotal
		}
		factor := 1.0
		if sumSub != 0 {
			factor = docTotal / sumSub
		}
		if math.IsNaN(factor) || math.IsInf(factor, 0) {
			factor = 1.0
		}
		for _, i := range idx {
			lines[i].TotalAlloc = lines[i].Subtotal * factor
		}
	}
	return rep
}

// SafeSumPerKey sums values per document key, collapsing the repeated-total
// artifact: when a key has multiple identical values whose naive sum equals
// value*count, the single value is taken instead of the sum.
func SafeSumPerKey(keys []string, values []float64) (map[string]float64, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("recon: %d keys vs %d values", len(keys), len(values))
	}
	type acc struct {
		first  float64
		sum    float64
		count  int
		unique bool
	}
	byKey := make(map[string]*acc, len(keys))
	for i, k := range keys {
		a, ok := byKey[k]
		if !ok {
			byKey[k] = &acc{first: values[i], sum: values[i], count: 1, unique: true}
			continue
		}
		a.sum += values[i]
		a.count++
		if a.unique && !nearlyEqual(values[i], a.first) {
			a.unique = false
		}
	}
	out := make(map[string]float64, len(byKey))
	for k, a := range byKey {
		if a.count > 1 && a.unique &&
			math.Abs(a.sum-a.first*float64(a.count)) <= math.Abs(a.first)*1e-9+1e-6 {
			out[k] = a.first
		} else {
			out[k] = a.sum
		}
	}
	return out, nil
}

func groupByDoc(lines []domain.TransactionLine) map[string][]int {
	groups := make(map[string][]int)
	for i := range lines {
		if lines[i].DocKey == "" {
			continue
		}
		groups[lines[i].DocKey] = append(groups[lines[i].DocKey], i)
	}
	return groups
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= math.Abs(b)*1e-9+1e-6
}
