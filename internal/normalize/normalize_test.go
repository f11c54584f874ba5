package normalize

import "testing"

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"accents stripped", "Papelería", "PAPELERIA"},
		{"separators to spaces", "PINT.ESMALTE-BASE_AGUA/LT", "PINT ESMALTE BASE AGUA LT"},
		{"zero width removed", "FERRE\u200bTERIA", "FERRETERIA"},
		{"nbsp becomes space", "SAN\u00a0AGUSTIN", "SAN AGUSTIN"},
		{"narrow nbsp becomes space", "1\u202f250", "1 250"},
		{"collapse whitespace", "  HOGAR   Y\tJARDIN ", "HOGAR Y JARDIN"},
		{"symbols dropped", "CLAVOS 2\" (CAJA)", "CLAVOS 2 CAJA"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.in); got != tc.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	inputs := []string{"Papelería", "PINT.ESMALTE/LT", "  a  b  ", "ÑANDÚ ® 2024"}
	for _, in := range inputs {
		once := CleanText(in)
		if twice := CleanText(once); twice != once {
			t.Fatalf("CleanText not idempotent on %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1.0", "1"},
		{"1", "1"},
		{"0011.00", "11"},
		{"3,5", "3.5"},
		{" 42 ", "42"},
		{"ABC-12", "ABC-12"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.in); got != tc.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsNumericLike(t *testing.T) {
	for _, s := range []string{"11", "11.0", "11.000"} {
		if !IsNumericLike(s) {
			t.Errorf("IsNumericLike(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"11.5", "PINTURA", "11A", ""} {
		if IsNumericLike(s) {
			t.Errorf("IsNumericLike(%q) = true, want false", s)
		}
	}
}

func TestCanonicalBranch(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Sucursal San Agustín", "SAN AGUST"},
		{"Sucursal San\u00a0Agustín", "SAN AGUST"},
		{"H. Ilustres", "H ILUSTRES"},
		{"ilustres centro", "H ILUSTRES"},
		{"Express Norte", "EXPRESS"},
		{"H CENTRO", "H ILUSTRES"},
		{"GRAL", "GENERAL"},
		{"General", "GENERAL"},
		{"Adelitas", "ADELITAS"},
		{"BODEGA NUEVA", "BODEGA NUEVA"},
	}
	for _, tc := range cases {
		if got := CanonicalBranch(tc.in); got != tc.want {
			t.Errorf("CanonicalBranch(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyKind(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Crédito", "CREDITO"},
		{"VENTA CREDITO", "CREDITO"},
		{"Contado", "CONTADO"},
		{"factura", "CONTADO"},
		{"", "CONTADO"},
	}
	for _, tc := range cases {
		if got := ClassifyKind(tc.in); got != tc.want {
			t.Errorf("ClassifyKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"118", 118},
		{"1,250.50", 1250.5},
		{"3,5", 3.5},
		{"$99.90", 99.9},
		{"1\u202f250", 1250},
		{"n/a", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := ParseNumber(tc.in); got != tc.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
