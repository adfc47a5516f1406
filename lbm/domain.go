package lbm

import (
	"fmt"
	"sync"
)

// Domain owns one running simulation: the backend-resident buffers, the
// host-side mask mirror, and the parity/tick bookkeeping. All device work is
// issued from whichever single goroutine calls into the domain; the mutex
// only serializes the visualization and painting collaborators against the
// tick loop, never work inside a pass.
type Domain struct {
	mu      sync.Mutex
	lat     Lattice
	params  Params
	backend Compute
	mask    []CellKind
	rho     []float32
	ux, uy  []float32
	parity  int
	tick    uint64
}

// New validates the configuration, derives the base geometry, allocates
// backend resources, and runs the initialization pass once. On any failure
// every resource created so far is released and no half-initialized domain
// escapes.
func New(nx, ny int, p Params, factory Factory) (*Domain, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if nx < 3 || ny < 3 {
		return nil, fmt.Errorf("%w: grid %dx%d below minimum 3x3", ErrUnsupported, nx, ny)
	}

	mask := BaseMask(nx, ny, p.InletFraction)
	backend, err := factory(Desc{Nx: nx, Ny: ny, Mask: mask})
	if err != nil {
		return nil, fmt.Errorf("backend creation failed: %w", err)
	}

	d := &Domain{
		lat:     NewLattice(nx, ny),
		params:  p,
		backend: backend,
		mask:    mask,
		rho:     make([]float32, nx*ny),
		ux:      make([]float32, nx*ny),
		uy:      make([]float32, nx*ny),
	}
	if err := backend.Init(p); err != nil {
		backend.Release()
		return nil, fmt.Errorf("init pass failed: %w", err)
	}
	return d, nil
}

// Nx returns the lattice width.
func (d *Domain) Nx() int { return d.lat.Nx }

// Ny returns the lattice height.
func (d *Domain) Ny() int { return d.lat.Ny }

// Tick returns the number of completed step passes since the last reset.
func (d *Domain) Tick() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

// Step runs one stream/collide tick. The parity flag advances only after the
// backend reports the pass complete, so a failed tick leaves the domain
// resumable at the same state.
func (d *Domain) Step() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step()
}

func (d *Domain) step() error {
	if err := d.backend.Step(d.parity, d.params); err != nil {
		return fmt.Errorf("step pass at tick %d: %w", d.tick, err)
	}
	d.parity ^= 1
	d.tick++
	return nil
}

// Run executes n consecutive ticks, stopping at the first failure.
func (d *Domain) Run(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		if err := d.step(); err != nil {
			return err
		}
	}
	return nil
}

// Reset re-runs the initialization pass on the current mask without touching
// any allocation, rewinding parity and tick to zero.
func (d *Domain) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.backend.Init(d.params); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	d.parity = 0
	d.tick = 0
	return nil
}

// ResetMask restores the deterministic base geometry, discarding every
// painted edit, and re-anchors the macroscopic state of the boundary cells.
// The distribution buffer keeps running in place; call Reset for a clean
// restart of the flow itself.
func (d *Domain) ResetMask() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	base := BaseMask(d.lat.Nx, d.lat.Ny, d.params.InletFraction)
	copy(d.mask, base)
	if err := d.backend.WriteMask(maskRuns(base, d.lat.Nx, d.lat.Ny)); err != nil {
		return fmt.Errorf("mask reset failed: %w", err)
	}
	return d.anchorBoundaries()
}

// ApplyMaskEdits clamps, merges, and commits a batch of painted intervals to
// the host mirror and the device mask between ticks. Painted solid and
// equilibrium cells get their macroscopic state pinned to rest so stale flow
// values never leak through the (now inert or Dirichlet) cells.
func (d *Domain) ApplyMaskEdits(edits []MaskEdit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	merged := MergeEdits(edits, d.lat.Nx, d.lat.Ny)
	if len(merged) == 0 {
		return nil
	}
	var pinned []int
	for _, e := range merged {
		base := e.Row * d.lat.Nx
		for x := e.X0; x <= e.X1; x++ {
			d.mask[base+x] = e.Kind
			if e.Kind != Fluid {
				pinned = append(pinned, base+x)
			}
		}
	}
	if err := d.backend.WriteMask(merged); err != nil {
		return fmt.Errorf("mask edit failed: %w", err)
	}
	if len(pinned) > 0 {
		if err := d.backend.WriteMacroscopic(pinned, 1, 0, 0); err != nil {
			return fmt.Errorf("mask edit failed: %w", err)
		}
	}
	return nil
}

// SetRelaxationRate replaces omega for subsequent ticks.
func (d *Domain) SetRelaxationRate(omega float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.params
	next.Omega = omega
	if err := next.Validate(); err != nil {
		return err
	}
	d.params = next
	return nil
}

// SetInletVelocity changes the injected velocity and rewrites the persisted
// macroscopic state of the inlet cells, taking effect on the next tick.
func (d *Domain) SetInletVelocity(ux, uy float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.params
	next.InletVelocity = [2]float32{ux, uy}
	if err := next.Validate(); err != nil {
		return err
	}
	d.params = next
	cells := MovingInletCells(d.mask, d.lat.Nx, d.lat.Ny)
	if len(cells) == 0 {
		return nil
	}
	return d.backend.WriteMacroscopic(cells, 1, ux, uy)
}

// Macroscopic reads back the current field into domain-owned slices and
// returns them together with the parity an external reader of the raw
// populations would need to interpret slot ownership. The slices are valid
// until the next call and must be treated as read-only.
func (d *Domain) Macroscopic() (rho, ux, uy []float32, parity int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.backend.ReadMacroscopic(d.rho, d.ux, d.uy); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("macroscopic read failed: %w", err)
	}
	return d.rho, d.ux, d.uy, d.parity, nil
}

// Mask returns a copy of the current classification grid.
func (d *Domain) Mask() []CellKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CellKind, len(d.mask))
	copy(out, d.mask)
	return out
}

// Close releases backend resources.
func (d *Domain) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend != nil {
		d.backend.Release()
		d.backend = nil
	}
}

// anchorBoundaries rewrites the persisted macroscopic state of every
// equilibrium cell: moving inlet cells carry the injected velocity,
// everything else, window edges included, rests at unit density.
func (d *Domain) anchorBoundaries() error {
	moving := make(map[int]bool)
	for _, n := range MovingInletCells(d.mask, d.lat.Nx, d.lat.Ny) {
		moving[n] = true
	}
	var inlet, rest []int
	for n, k := range d.mask {
		if k != EquilibriumBoundary {
			continue
		}
		if moving[n] {
			inlet = append(inlet, n)
		} else {
			rest = append(rest, n)
		}
	}
	if len(inlet) > 0 {
		v := d.params.InletVelocity
		if err := d.backend.WriteMacroscopic(inlet, 1, v[0], v[1]); err != nil {
			return err
		}
	}
	if len(rest) > 0 {
		if err := d.backend.WriteMacroscopic(rest, 1, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// maskRuns flattens a full mask into maximal per-row interval edits, the
// form WriteMask consumes.
func maskRuns(mask []CellKind, nx, ny int) []MaskEdit {
	var runs []MaskEdit
	for y := 0; y < ny; y++ {
		row := mask[y*nx : (y+1)*nx]
		for x := 0; x < nx; {
			kind := row[x]
			start := x
			for x < nx && row[x] == kind {
				x++
			}
			runs = append(runs, MaskEdit{Row: y, X0: start, X1: x - 1, Kind: kind})
		}
	}
	return runs
}
