package lbm

import "errors"

// Failure kinds surfaced by backends. Capability and allocation failures are
// fatal to domain creation; dispatch failures are fatal for the tick and
// propagated to the caller.
var (
	ErrUnsupported = errors.New("compute backend lacks a required capability")
	ErrAllocation  = errors.New("compute resource allocation failed")
)

// Desc is everything a backend needs to allocate device state for a domain.
// The mask slice is the initial classification; backends copy it, they do not
// alias it.
type Desc struct {
	Nx, Ny int
	Mask   []CellKind
}

// Compute is a data-parallel backend holding the device-resident simulation
// state: the half-precision distribution buffer, the mask, and the
// macroscopic field. One logical task runs per lattice cell with no ordering
// guarantees inside a pass; every method is called from the single
// orchestration thread between passes.
type Compute interface {
	// Init seeds the distribution buffer and macroscopic field from the
	// mask (parity 0 layout). Idempotent; doubles as the full reset.
	Init(p Params) error

	// Step runs the outlet pre-pass and one stream/collide pass at the
	// given parity, with a completion barrier before returning.
	Step(parity int, p Params) error

	// WriteMask commits merged row-interval edits to the device mask.
	WriteMask(edits []MaskEdit) error

	// WriteMacroscopic overwrites the persisted macroscopic state of the
	// listed cells (used to anchor inlet cells and freshly painted
	// non-fluid cells).
	WriteMacroscopic(cells []int, rho, ux, uy float32) error

	// ReadMacroscopic copies the current field into the caller's slices,
	// which must each hold Nx*Ny entries.
	ReadMacroscopic(rho, ux, uy []float32) error

	// Release frees device resources; the backend is unusable afterwards.
	Release()
}

// Factory builds a backend for a domain description, probing capabilities
// before any allocation.
type Factory func(Desc) (Compute, error)
