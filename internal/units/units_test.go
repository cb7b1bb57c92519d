package units

import (
	"errors"
	"math"
	"testing"

	"pasteleria/backend/internal/domain"
)

func TestToBaseFactors(t *testing.T) {
	cases := []struct {
		unit domain.Unit
		in   float64
		want float64
	}{
		{domain.UnitGram, 250, 250},
		{domain.UnitKilogram, 1.5, 1500},
		{domain.UnitMilliliter, 330, 330},
		{domain.UnitLiter, 2, 2000},
		{domain.UnitCount, 12, 12},
	}
	for _, tc := range cases {
		got, err := ToBase(tc.in, tc.unit)
		if err != nil {
			t.Fatalf("ToBase(%v, %s): %v", tc.in, tc.unit, err)
		}
		if got != tc.want {
			t.Fatalf("ToBase(%v, %s) = %v, want %v", tc.in, tc.unit, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []float64{0, 0.25, 1, 3.75, 1000, 12345.678}
	for _, u := range []domain.Unit{domain.UnitGram, domain.UnitKilogram, domain.UnitMilliliter, domain.UnitLiter, domain.UnitCount} {
		for _, v := range values {
			base, err := ToBase(v, u)
			if err != nil {
				t.Fatalf("ToBase(%v, %s): %v", v, u, err)
			}
			back, err := FromBase(base, u)
			if err != nil {
				t.Fatalf("FromBase(%v, %s): %v", base, u, err)
			}
			if math.Abs(back-v) > 1e-9 {
				t.Fatalf("round trip %v via %s drifted to %v", v, u, back)
			}
		}
	}
}

func TestConvertAcrossFamiliesFails(t *testing.T) {
	if _, err := Convert(100, domain.UnitGram, domain.UnitMilliliter); !errors.Is(err, ErrIncompatibleUnit) {
		t.Fatalf("expected ErrIncompatibleUnit, got %v", err)
	}
	if _, err := Convert(1, domain.UnitKilogram, domain.UnitCount); !errors.Is(err, ErrIncompatibleUnit) {
		t.Fatalf("expected ErrIncompatibleUnit, got %v", err)
	}
}

func TestConvertWithinFamily(t *testing.T) {
	got, err := Convert(2500, domain.UnitGram, domain.UnitKilogram)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("2500 g = %v kg, want 2.5", got)
	}
}

func TestUnknownUnit(t *testing.T) {
	if _, err := ToBase(1, "oz"); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
	if Compatible("oz", domain.UnitGram) {
		t.Fatalf("unknown unit must not be compatible with anything")
	}
}
