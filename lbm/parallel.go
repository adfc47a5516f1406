package lbm

import (
	"fmt"
	"runtime"
	"sync"
)

// bufferAlign rounds the distribution buffer to a hardware-friendly byte
// boundary so the same sizing works for device allocations.
const bufferAlign = 64

// alignedSlots returns the number of uint16 slots for cells lattice cells,
// rounded up to bufferAlign bytes.
func alignedSlots(cells int) int {
	bytes := (Q*cells*2 + bufferAlign - 1) / bufferAlign * bufferAlign
	return bytes / 2
}

// Parallel executes the solver on the host with one logical task per cell,
// sharded by rows across worker goroutines. It is the reference backend: the
// same per-cell kernels the GL shaders mirror, run under the same
// no-shared-slot discipline, with a worker join as the completion barrier.
type Parallel struct {
	lat     Lattice
	f       []uint16
	mask    []CellKind
	rho     []float32
	ux, uy  []float32
	workers int
}

// NewParallel allocates host-side buffers for the described domain.
func NewParallel(d Desc) (Compute, error) {
	if d.Nx < 3 || d.Ny < 3 {
		return nil, fmt.Errorf("%w: grid %dx%d below minimum 3x3", ErrUnsupported, d.Nx, d.Ny)
	}
	cells := d.Nx * d.Ny
	if len(d.Mask) != cells {
		return nil, fmt.Errorf("%w: mask length %d for %d cells", ErrAllocation, len(d.Mask), cells)
	}
	b := &Parallel{
		lat:     NewLattice(d.Nx, d.Ny),
		f:       make([]uint16, alignedSlots(cells)),
		mask:    make([]CellKind, cells),
		rho:     make([]float32, cells),
		ux:      make([]float32, cells),
		uy:      make([]float32, cells),
		workers: runtime.NumCPU(),
	}
	copy(b.mask, d.Mask)
	return b, nil
}

// forEachRow runs fn over every row, split into contiguous bands across the
// worker pool, and joins before returning.
func (b *Parallel) forEachRow(fn func(y int)) {
	workers := b.workers
	if workers > b.lat.Ny {
		workers = b.lat.Ny
	}
	if workers <= 1 {
		for y := 0; y < b.lat.Ny; y++ {
			fn(y)
		}
		return
	}
	var wg sync.WaitGroup
	rowsPer := (b.lat.Ny + workers - 1) / workers
	for w := 0; w < workers; w++ {
		y0 := w * rowsPer
		y1 := y0 + rowsPer
		if y1 > b.lat.Ny {
			y1 = b.lat.Ny
		}
		if y0 >= y1 {
			break
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				fn(y)
			}
		}(y0, y1)
	}
	wg.Wait()
}

func (b *Parallel) Init(p Params) error {
	b.forEachRow(func(y int) {
		base := y * b.lat.Nx
		for x := 0; x < b.lat.Nx; x++ {
			b.initCell(base+x, p)
		}
	})
	return nil
}

func (b *Parallel) Step(parity int, p Params) error {
	b.outletPass()
	b.forEachRow(func(y int) {
		base := y * b.lat.Nx
		for x := 0; x < b.lat.Nx; x++ {
			b.stepCell(base+x, parity, p)
		}
	})
	return nil
}

func (b *Parallel) WriteMask(edits []MaskEdit) error {
	for _, e := range edits {
		base := e.Row * b.lat.Nx
		for x := e.X0; x <= e.X1; x++ {
			b.mask[base+x] = e.Kind
		}
	}
	return nil
}

func (b *Parallel) WriteMacroscopic(cells []int, rho, ux, uy float32) error {
	for _, n := range cells {
		if n < 0 || n >= b.lat.Cells {
			continue
		}
		b.rho[n] = rho
		b.ux[n] = ux
		b.uy[n] = uy
	}
	return nil
}

func (b *Parallel) ReadMacroscopic(rho, ux, uy []float32) error {
	if len(rho) != b.lat.Cells || len(ux) != b.lat.Cells || len(uy) != b.lat.Cells {
		return fmt.Errorf("macroscopic read needs %d entries per field", b.lat.Cells)
	}
	copy(rho, b.rho)
	copy(ux, b.ux)
	copy(uy, b.uy)
	return nil
}

func (b *Parallel) Release() {
	b.f = nil
	b.mask = nil
	b.rho, b.ux, b.uy = nil, nil, nil
}
