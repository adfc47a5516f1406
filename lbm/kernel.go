package lbm

// Per-cell kernel bodies shared by the parallel backend. The GL backend
// mirrors these exactly in its compute shader sources; any change here must
// be carried into both.

// initCell seeds one cell: macroscopic state derived from the mask, then the
// shifted equilibrium encoded into all nine of the cell's own slots. With the
// parity reset to 0, the first pass pulls the even directions from the
// neighbors' freshly written slots, which reproduces the uniform start state.
func (b *Parallel) initCell(n int, p Params) {
	rho := float32(1.0)
	var ux, uy float32
	if b.mask[n] == EquilibriumBoundary {
		if x, y := b.lat.Coords(n); x == 0 && movingInlet(b.mask, b.lat, y) {
			ux = p.InletVelocity[0]
			uy = p.InletVelocity[1]
		}
	}
	b.rho[n] = rho
	b.ux[n] = ux
	b.uy[n] = uy

	feq := Equilibrium(rho, ux, uy)
	for d := 0; d < Q; d++ {
		b.f[d*b.lat.Cells+n] = EncodeDDF(feq[d])
	}
}

// stepCell runs one Esoteric-Pull stream/collide update for cell n. Solid
// cells exit before touching memory; their slots advance only through the
// writes of adjacent fluid cells, which is what turns the store pattern into
// bounce-back. All arithmetic is float32, only the stored populations are
// half precision.
func (b *Parallel) stepCell(n, parity int, p Params) {
	kind := b.mask[n]
	if kind == Solid {
		return
	}

	var fh [Q]float32
	var slots [Q]int
	slots[0] = n
	fh[0] = DecodeDDF(b.f[n])
	for i := 1; i < Q; i += 2 {
		slots[i] = b.lat.LoadSlot(n, i, parity)
		slots[i+1] = b.lat.LoadSlot(n, i+1, parity)
		fh[i] = DecodeDDF(b.f[slots[i]])
		fh[i+1] = DecodeDDF(b.f[slots[i+1]])
	}

	if kind == EquilibriumBoundary {
		// Dirichlet condition: the persisted macroscopic state wins and
		// the cell relaxes fully to its equilibrium (omega = 1).
		fh = Equilibrium(b.rho[n], b.ux[n], b.uy[n])
	} else {
		rho, ux, uy := Moments(&fh)
		b.rho[n] = rho
		b.ux[n] = ux
		b.uy[n] = uy
		feq := Equilibrium(rho, ux, uy)
		for d := 0; d < Q; d++ {
			fh[d] += p.Omega * (feq[d] - fh[d])
		}
	}

	// The store slots for this parity are exactly the load slots read
	// above, so the pass mutates the buffer strictly in place.
	b.f[n] = EncodeDDF(fh[0])
	for i := 1; i < Q; i += 2 {
		b.f[b.lat.StoreSlot(n, i, parity)] = EncodeDDF(fh[i])
		b.f[b.lat.StoreSlot(n, i+1, parity)] = EncodeDDF(fh[i+1])
	}
}

// outletPass applies the outflow condition to every equilibrium cell of the
// rightmost column: velocity is zero-gradient (copied from the fluid-side
// neighbor) while density stays anchored at 1. The outlet is the only place
// the pressure level is fixed; copying rho as well would leave the whole
// domain unanchored and let mass drift tick over tick. Runs as its own pass
// so the main pass never reads another cell's macroscopic state.
func (b *Parallel) outletPass() {
	nx := b.lat.Nx
	for y := 0; y < b.lat.Ny; y++ {
		n := b.lat.Index(nx-1, y)
		if b.mask[n] != EquilibriumBoundary {
			continue
		}
		src := b.lat.Index(nx-2, y)
		b.rho[n] = 1
		b.ux[n] = b.ux[src]
		b.uy[n] = b.uy[src]
	}
}
