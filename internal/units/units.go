// Package units normalizes quantities across the three measurement families
// the bakery works with: mass (base gram), volume (base milliliter) and
// count (base unit). All stored stock and usage values are base-unit values;
// only the edges of the system deal in display units.
package units

import (
	"errors"
	"fmt"

	"pasteleria/backend/internal/domain"
)

var (
	ErrUnknownUnit      = errors.New("unknown unit")
	ErrIncompatibleUnit = errors.New("incompatible unit families")
)

type Family string

const (
	FamilyMass   Family = "mass"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

type factor struct {
	family Family
	toBase float64
}

var factors = map[domain.Unit]factor{
	domain.UnitGram:       {FamilyMass, 1},
	domain.UnitKilogram:   {FamilyMass, 1000},
	domain.UnitMilliliter: {FamilyVolume, 1},
	domain.UnitLiter:      {FamilyVolume, 1000},
	domain.UnitCount:      {FamilyCount, 1},
}

func FamilyOf(u domain.Unit) (Family, error) {
	f, ok := factors[u]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return f.family, nil
}

// ToBase converts a display-unit quantity to its family's base unit.
func ToBase(quantity float64, u domain.Unit) (float64, error) {
	f, ok := factors[u]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return quantity * f.toBase, nil
}

// FromBase converts a base-unit quantity to the given display unit.
func FromBase(baseQuantity float64, u domain.Unit) (float64, error) {
	f, ok := factors[u]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return baseQuantity / f.toBase, nil
}

// Convert moves a quantity between two units of the same family. Converting
// across families (e.g. grams to milliliters) is undefined and rejected.
func Convert(quantity float64, from domain.Unit, to domain.Unit) (float64, error) {
	ff, ok := factors[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
	}
	ft, ok := factors[to]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	if ff.family != ft.family {
		return 0, fmt.Errorf("%w: %s -> %s", ErrIncompatibleUnit, from, to)
	}
	return quantity * ff.toBase / ft.toBase, nil
}

// Compatible reports whether two units share a family.
func Compatible(a domain.Unit, b domain.Unit) bool {
	fa, okA := factors[a]
	fb, okB := factors[b]
	return okA && okB && fa.family == fb.family
}
