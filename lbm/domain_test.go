package lbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// captureFactory builds parallel backends and exposes the last one created,
// so scenario tests can inspect device-side state directly.
func captureFactory(backend **Parallel) Factory {
	return func(d Desc) (Compute, error) {
		c, err := NewParallel(d)
		if err == nil {
			*backend = c.(*Parallel)
		}
		return c, err
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	p := DefaultParams()

	bad := p
	bad.Omega = 0
	_, err := New(64, 64, bad, NewParallel)
	require.Error(t, err)

	bad = p
	bad.Omega = float32(math.Inf(1))
	_, err = New(64, 64, bad, NewParallel)
	require.Error(t, err)

	_, err = New(2, 64, p, NewParallel)
	require.ErrorIs(t, err, ErrUnsupported)
}

// Omega beyond the stable range is a documented precondition, not an
// enforced invariant: the domain accepts it silently.
func TestOmegaAboveTwoAccepted(t *testing.T) {
	p := DefaultParams()
	p.Omega = 2.5
	d, err := New(32, 32, p, NewParallel)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.SetRelaxationRate(3))
	require.Error(t, d.SetRelaxationRate(-1))
}

func TestInitIdempotent(t *testing.T) {
	p := DefaultParams()
	c, err := NewParallel(Desc{Nx: 48, Ny: 32, Mask: BaseMask(48, 32, p.InletFraction)})
	require.NoError(t, err)
	b := c.(*Parallel)

	require.NoError(t, b.Init(p))
	first := append([]uint16(nil), b.f...)
	firstRho := append([]float32(nil), b.rho...)

	require.NoError(t, b.Init(p))
	require.Equal(t, first, b.f, "second init must be bit-identical")
	require.Equal(t, firstRho, b.rho)
}

func TestStepAdvancesTickAndResetRewinds(t *testing.T) {
	d, err := New(32, 32, DefaultParams(), NewParallel)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Run(5))
	require.Equal(t, uint64(5), d.Tick())

	_, _, _, parity, err := d.Macroscopic()
	require.NoError(t, err)
	require.Equal(t, 1, parity)

	require.NoError(t, d.Reset())
	require.Equal(t, uint64(0), d.Tick())
	_, _, _, parity, err = d.Macroscopic()
	require.NoError(t, err)
	require.Equal(t, 0, parity)
}

func TestSetInletVelocityRewritesInletCells(t *testing.T) {
	var b *Parallel
	d, err := New(48, 48, DefaultParams(), captureFactory(&b))
	require.NoError(t, err)
	defer d.Close()

	mask := d.Mask()
	moving := MovingInletCells(mask, 48, 48)
	require.NotEmpty(t, moving)

	require.NoError(t, d.SetInletVelocity(0.07, 0.01))
	for _, n := range moving {
		require.Equal(t, float32(0.07), b.ux[n])
		require.Equal(t, float32(0.01), b.uy[n])
		require.Equal(t, float32(1), b.rho[n])
	}

	// the window-edge cells never carry the injected velocity
	isMoving := make(map[int]bool, len(moving))
	for _, n := range moving {
		isMoving[n] = true
	}
	edges := 0
	for _, n := range InletCells(mask, 48, 48) {
		if isMoving[n] {
			continue
		}
		edges++
		require.Zero(t, b.ux[n], "window-edge inlet cell %d must stay at rest", n)
		require.Zero(t, b.uy[n], "window-edge inlet cell %d must stay at rest", n)
	}
	require.Equal(t, 2, edges)
}

// totalMass sums the physical mass held in every storage slot plus the unit
// shift carried per cell.
func totalMass(b *Parallel) float64 {
	var m float64
	for _, p := range b.f[:Q*b.lat.Cells] {
		m += float64(DecodeDDF(p))
	}
	return m + float64(b.lat.Cells)
}

// In a fully walled box with no inlet or outlet the scheme must conserve
// mass, including populations temporarily parked in wall slots by the
// bounce-back write pattern.
func TestMassConservationClosedDomain(t *testing.T) {
	const nx, ny = 32, 32
	mask := make([]CellKind, nx*ny)
	lat := NewLattice(nx, ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			if x == 0 || y == 0 || x == nx-1 || y == ny-1 {
				mask[lat.Index(x, y)] = Solid
			}
		}
	}

	p := DefaultParams()
	p.Omega = 1.5
	c, err := NewParallel(Desc{Nx: nx, Ny: ny, Mask: mask})
	require.NoError(t, err)
	b := c.(*Parallel)
	require.NoError(t, b.Init(p))

	// drop a dense moving blob into the quiet box
	feq := Equilibrium(1.08, 0.03, 0)
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			n := lat.Index(x, y)
			for d := 0; d < Q; d++ {
				b.f[d*lat.Cells+n] = EncodeDDF(feq[d])
			}
		}
	}

	before := totalMass(b)
	parity := 0
	for tick := 0; tick < 100; tick++ {
		require.NoError(t, b.Step(parity, p))
		parity ^= 1
	}
	after := totalMass(b)
	// tolerance covers half-precision storage rounding accumulated over
	// 100 ticks; the scheme itself is exactly conservative
	require.InDelta(t, before, after, 0.25)
}

// A 64x64 channel (full-height inlet at u=(0.05,0), open outlet, no
// obstacle) integrated for 1000 ticks. The flow is still developing at that
// point, so the acceptance envelope against the analytic parabola is
// deliberately wide: normalized profile within 0.25 RMS / 0.4 max.
// Density must hold [0.99, 1.01] everywhere, and keep holding it over a
// second thousand ticks: with the outlet anchoring the pressure level there
// is no secular mass drift for the bound to erode against.
func TestPoiseuilleChannel(t *testing.T) {
	const nx, ny = 64, 64
	p := DefaultParams()
	p.Omega = 0.8
	p.InletVelocity = [2]float32{0.05, 0}
	p.InletFraction = 1

	d, err := New(nx, ny, p, NewParallel)
	require.NoError(t, err)
	defer d.Close()

	// clear the base geometry's obstacle disk, then restart cleanly
	var clear []MaskEdit
	for y := ny/2 - 10; y <= ny/2+10; y++ {
		clear = append(clear, MaskEdit{Row: y, X0: nx/2 - 10, X1: nx/2 + 10, Kind: Fluid})
	}
	require.NoError(t, d.ApplyMaskEdits(clear))
	require.NoError(t, d.Reset())
	require.NoError(t, d.Run(1000))

	rho, ux, _, _, err := d.Macroscopic()
	require.NoError(t, err)

	for n, r := range rho {
		require.GreaterOrEqual(t, float64(r), 0.99, "cell %d", n)
		require.LessOrEqual(t, float64(r), 1.01, "cell %d", n)
	}

	profile := make([]float64, 0, ny-2)
	for y := 1; y < ny-1; y++ {
		profile = append(profile, float64(ux[y*nx+nx/2]))
	}
	peak := floats.Max(profile)
	require.Greater(t, peak, 0.02, "bulk flow failed to develop")

	var sumSq, maxDev float64
	for i, u := range profile {
		yhat := (float64(i) + 0.5) / float64(ny-2)
		want := 4 * yhat * (1 - yhat)
		dev := math.Abs(u/peak - want)
		sumSq += dev * dev
		if dev > maxDev {
			maxDev = dev
		}
		require.Greater(t, u, -0.005, "backflow at row %d", i+1)
	}
	rms := math.Sqrt(sumSq / float64(len(profile)))
	require.Less(t, rms, 0.25, "profile RMS deviation from parabola")
	require.Less(t, maxDev, 0.4, "profile max deviation from parabola")

	// symmetric about the centerline
	for i := 0; i < len(profile)/2; i++ {
		require.InDelta(t, profile[i], profile[len(profile)-1-i], 0.1*peak,
			"asymmetry at row offset %d", i)
	}

	// run on: the density bound must not degrade with time
	require.NoError(t, d.Run(1000))
	rho, _, _, _, err = d.Macroscopic()
	require.NoError(t, err)
	for n, r := range rho {
		require.GreaterOrEqual(t, float64(r), 0.99, "cell %d after 2000 ticks", n)
		require.LessOrEqual(t, float64(r), 1.01, "cell %d after 2000 ticks", n)
	}
}

// The outlet fixes the pressure level: after any number of ticks the
// rightmost-column equilibrium cells read back exactly unit density.
func TestOutletAnchorsDensity(t *testing.T) {
	const nx, ny = 48, 32
	d, err := New(nx, ny, DefaultParams(), NewParallel)
	require.NoError(t, err)
	defer d.Close()
	lat := NewLattice(nx, ny)

	require.NoError(t, d.Run(50))

	rho, _, _, _, err := d.Macroscopic()
	require.NoError(t, err)
	mask := d.Mask()
	outlet := 0
	for y := 0; y < ny; y++ {
		n := lat.Index(nx-1, y)
		if mask[n] != EquilibriumBoundary {
			continue
		}
		outlet++
		require.Equal(t, float32(1), rho[n], "outlet cell (%d,%d)", nx-1, y)
	}
	require.Equal(t, ny-2, outlet)
}

// Painting a solid disk mid-run freezes its cells: their stored populations
// never advance again and the read-back velocity inside is exactly zero,
// while flow keeps moving just outside.
func TestPaintedDiskFreezesCells(t *testing.T) {
	const nx, ny = 64, 64
	var b *Parallel
	d, err := New(nx, ny, DefaultParams(), captureFactory(&b))
	require.NoError(t, err)
	defer d.Close()
	lat := NewLattice(nx, ny)

	require.NoError(t, d.Run(50))

	const cx, cy, r = 16, 32, 4
	var paint []MaskEdit
	for dy := -r; dy <= r; dy++ {
		span := int(math.Sqrt(float64(r*r - dy*dy)))
		paint = append(paint, MaskEdit{Row: cy + dy, X0: cx - span, X1: cx + span, Kind: Solid})
	}
	require.NoError(t, d.ApplyMaskEdits(paint))

	// cells whose whole neighborhood is painted: no fluid write can reach
	// their slots anymore
	var interior []int
	for dy := -(r - 2); dy <= r-2; dy++ {
		for dx := -(r - 2); dx <= r-2; dx++ {
			if dx*dx+dy*dy <= (r-2)*(r-2) {
				interior = append(interior, lat.Index(cx+dx, cy+dy))
			}
		}
	}
	require.NotEmpty(t, interior)
	snapshot := make(map[int][Q]uint16, len(interior))
	for _, n := range interior {
		var slots [Q]uint16
		for dir := 0; dir < Q; dir++ {
			slots[dir] = b.f[dir*lat.Cells+n]
		}
		snapshot[n] = slots
	}

	require.NoError(t, d.Run(100))

	for _, n := range interior {
		var slots [Q]uint16
		for dir := 0; dir < Q; dir++ {
			slots[dir] = b.f[dir*lat.Cells+n]
		}
		require.Equal(t, snapshot[n], slots, "populations of frozen cell %d advanced", n)
	}

	_, ux, uy, _, err := d.Macroscopic()
	require.NoError(t, err)
	mask := d.Mask()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			n := lat.Index(cx+dx, cy+dy)
			require.Equal(t, Solid, mask[n])
			require.Zero(t, ux[n], "velocity inside painted disk, cell %d", n)
			require.Zero(t, uy[n], "velocity inside painted disk, cell %d", n)
		}
	}

	// immediately outside the disk the flow keeps moving
	outside := lat.Index(cx, cy-r-2)
	speed := math.Hypot(float64(ux[outside]), float64(uy[outside]))
	require.Greater(t, speed, 1e-4, "flow stalled outside the painted disk")
}
