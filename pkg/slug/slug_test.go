package slug

import "testing"

func TestMake(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Color", want: "color"},
		{in: "  Talla XL  ", want: "talla-xl"},
		{in: "Café con Leche", want: "cafe-con-leche"},
		{in: "Tamaño / Pequeño", want: "tamano-pequeno"},
		{in: "--Already--Slug--", want: "already-slug"},
		{in: "100% Algodón", want: "100-algodon"},
		{in: "¡!", want: ""},
	}
	for _, tc := range cases {
		if got := Make(tc.in); got != tc.want {
			t.Errorf("Make(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
