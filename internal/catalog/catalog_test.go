package catalog_test

import (
	"errors"
	"testing"

	"github.com/npsb/npswitch/internal/catalog"
)

func TestLookupKnownFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		number   int
		format   catalog.Format
		encoding catalog.Encoding
		max      int
		class    catalog.Class
	}{
		{2, catalog.LLVAR, catalog.BCD, 19, catalog.N},
		{4, catalog.Fixed, catalog.BCD, 12, catalog.N},
		{11, catalog.Fixed, catalog.BCD, 6, catalog.N},
		{39, catalog.Fixed, catalog.ASCII, 2, catalog.AN},
		{46, catalog.LLLVAR, catalog.ASCII, 999, catalog.ANS},
		{52, catalog.Fixed, catalog.Binary, 16, catalog.B},
		{128, catalog.Fixed, catalog.Binary, 16, catalog.B},
	}

	for _, tc := range cases {
		def, err := catalog.Lookup(tc.number)
		if err != nil {
			t.Fatalf("Lookup(%d): unexpected error: %v", tc.number, err)
		}
		if def.Format != tc.format || def.Encoding != tc.encoding ||
			def.MaxLength != tc.max || def.Class != tc.class {
			t.Errorf("Lookup(%d) = %+v, want format=%v encoding=%v max=%d class=%v",
				tc.number, def, tc.format, tc.encoding, tc.max, tc.class)
		}
	}
}

func TestLookupUnknownField(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 0, 200, 9999} {
		_, err := catalog.Lookup(n)
		if !errors.Is(err, catalog.ErrUnknownField) {
			t.Errorf("Lookup(%d): expected ErrUnknownField, got %v", n, err)
		}
	}
}
