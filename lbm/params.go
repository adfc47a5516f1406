package lbm

import (
	"fmt"
	"math"
)

// Params are the tunable physics parameters of a domain. Omega is the BGK
// relaxation rate (1/tau); the stable operating range is 0 < omega <= 2 with
// practical values noticeably below 2, but values inside (0, 2] are a
// documented precondition rather than an enforced invariant: only
// non-finite or non-positive rates are rejected.
type Params struct {
	Omega         float32
	InletVelocity [2]float32
	// InletFraction sets the height of the centered inlet window on the
	// left column as a fraction of Ny, clamped off the wall rows.
	InletFraction float32
}

// DefaultParams returns the reference configuration: omega 1.7 and a gentle
// horizontal inflow through a window covering half of the left column.
func DefaultParams() Params {
	return Params{
		Omega:         1.7,
		InletVelocity: [2]float32{0.10, 0},
		InletFraction: 0.5,
	}
}

// Validate reports the first structurally invalid parameter.
func (p Params) Validate() error {
	if !(p.Omega > 0) || math.IsInf(float64(p.Omega), 0) {
		return fmt.Errorf("relaxation rate must be finite and positive, got %v", p.Omega)
	}
	for _, c := range p.InletVelocity {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return fmt.Errorf("inlet velocity must be finite, got (%v, %v)",
				p.InletVelocity[0], p.InletVelocity[1])
		}
	}
	if !(p.InletFraction > 0) || p.InletFraction > 1 {
		return fmt.Errorf("inlet fraction must be in (0, 1], got %v", p.InletFraction)
	}
	return nil
}
