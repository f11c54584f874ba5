// Package normalize canonicalizes free-form text and identifiers coming out of
// the point-of-sale exports, so that values that differ only in encoding,
// accents, spacing or numeric formatting compare equal.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	numericLikeRe = regexp.MustCompile(`^\d+(\.0+)?$`)
	punctRe       = regexp.MustCompile(`[.\-_/]`)
	nonAlnumRe    = regexp.MustCompile(`[^A-Z0-9 ]`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// scrubRune handles the stealth characters the exports carry before any other
// processing: zero-width marks are deleted, the non-breaking space family
// becomes a regular space so word boundaries survive.
func scrubRune(r rune) rune {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return -1
	case '\u00a0', '\u2007', '\u202f':
		return ' '
	}
	return r
}

// CleanText canonicalizes a raw text value: scrubs stealth characters,
// removes diacritics, uppercases, turns separator punctuation into spaces,
// drops everything outside [A-Z0-9 ] and collapses runs of whitespace.
// CleanText is idempotent.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	decomposed := norm.NFKD.String(strings.Map(scrubRune, s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.ToUpper(b.String())
	out = punctRe.ReplaceAllString(out, " ")
	out = nonAlnumRe.ReplaceAllString(out, " ")
	out = spacesRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// NormalizeID canonicalizes an identifier that may arrive as text or as a
// float-formatted number. "1.0" and "1" normalize to the same "1"; values
// within 1e-9 of an integer drop their fractional part. Non-numeric input is
// trimmed and returned as text.
func NormalizeID(s string) string {
	t := strings.TrimSpace(strings.Map(scrubRune, s))
	if t == "" {
		return ""
	}
	numText := strings.ReplaceAll(t, ",", ".")
	f, err := strconv.ParseFloat(numText, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return t
	}
	r := math.Round(f)
	if math.Abs(f-r) < 1e-9 {
		return strconv.FormatFloat(r, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsNumericLike reports whether a cleaned value is an integer, optionally with
// a trailing ".0..." fraction. Used to detect ID-bearing columns and ID-shaped
// names that leaked into name fields.
func IsNumericLike(s string) bool {
	return numericLikeRe.MatchString(strings.TrimSpace(s))
}

// CanonicalBranch maps a raw store label onto its canonical branch key. Rules
// apply in priority order on the cleaned label; a label matching no rule passes
// through cleaned, so unknown branches stay visible instead of being absorbed.
func CanonicalBranch(raw string) string {
	c := CleanText(raw)
	switch {
	case strings.Contains(c, "SAN AGUST"):
		return "SAN AGUST"
	case strings.Contains(c, "ILUST"):
		return "H ILUSTRES"
	case strings.Contains(c, "EXPRES"):
		return "EXPRESS"
	case strings.HasPrefix(c, "H "):
		return "H ILUSTRES"
	case c == "GRAL" || c == "GENERAL":
		return "GENERAL"
	}
	return c
}

// ClassifyKind classifies a raw document type as credit or cash. Anything whose
// cleaned form mentions CRED is credit; everything else, including empty, is
// cash.
func ClassifyKind(rawTipo string) string {
	if strings.Contains(CleanText(rawTipo), "CRED") {
		return "CREDITO"
	}
	return "CONTADO"
}

// ParseNumber coerces a raw numeric cell to float64. Thousands separators and
// currency symbols are tolerated; unparseable input yields 0.
func ParseNumber(s string) float64 {
	t := strings.TrimSpace(strings.Map(scrubRune, s))
	if t == "" {
		return 0
	}
	t = strings.TrimPrefix(t, "$")
	t = strings.ReplaceAll(t, " ", "")
	if strings.Contains(t, ".") {
		t = strings.ReplaceAll(t, ",", "")
	} else {
		t = strings.ReplaceAll(t, ",", ".")
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseInt coerces a raw cell to int, accepting float-formatted integers.
func ParseInt(s string) int {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0
	}
	if n, err := strconv.Atoi(t); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(t, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

// ParseBool coerces the export's flag columns (0/1, true/false, si/no) to bool.
func ParseBool(s string) bool {
	switch CleanText(s) {
	case "", "0", "NO", "FALSE", "F":
		return false
	}
	return true
}
