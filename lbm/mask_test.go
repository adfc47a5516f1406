package lbm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseMaskGeometry(t *testing.T) {
	const nx, ny = 64, 48
	mask := BaseMask(nx, ny, 0.5)
	lat := NewLattice(nx, ny)

	for x := 0; x < nx; x++ {
		require.Equal(t, Solid, mask[lat.Index(x, 0)], "bottom wall at x=%d", x)
		require.Equal(t, Solid, mask[lat.Index(x, ny-1)], "top wall at x=%d", x)
	}
	for y := 1; y < ny-1; y++ {
		require.Equal(t, EquilibriumBoundary, mask[lat.Index(nx-1, y)], "outlet at y=%d", y)
		left := mask[lat.Index(0, y)]
		require.True(t, left == Solid || left == EquilibriumBoundary, "left column at y=%d", y)
	}

	// inlet window: centered, height round(ny*fraction), off the walls
	inlet := 0
	for y := 1; y < ny-1; y++ {
		if mask[lat.Index(0, y)] == EquilibriumBoundary {
			inlet++
		}
	}
	require.Equal(t, 24, inlet)

	// obstacle disk: solid, centered, radius min(nx,ny)/8
	r := ny / 8
	require.Equal(t, Solid, mask[lat.Index(nx/2, ny/2)])
	require.Equal(t, Solid, mask[lat.Index(nx/2+r, ny/2)])
	require.Equal(t, Fluid, mask[lat.Index(nx/2+r+1, ny/2)])
	require.Equal(t, Fluid, mask[lat.Index(nx/2+r, ny/2+r)])

	// never both solid and equilibrium
	for n, k := range mask {
		require.Contains(t, []CellKind{Fluid, Solid, EquilibriumBoundary}, k, "cell %d", n)
	}
}

func TestBaseMaskDeterministic(t *testing.T) {
	a := BaseMask(96, 64, 0.4)
	b := BaseMask(96, 64, 0.4)
	require.Equal(t, a, b)
}

// The injected velocity is carried only by inlet cells flanked by inlet
// cells: the window edges rest, whether the window ends at another inlet gap
// or directly at the wall rows (full-height inlet).
func TestMovingInletCellsExcludesWindowEdges(t *testing.T) {
	const nx, ny = 64, 48
	mask := BaseMask(nx, ny, 0.5)
	lat := NewLattice(nx, ny)

	inlet := InletCells(mask, nx, ny)
	moving := MovingInletCells(mask, nx, ny)
	require.Len(t, inlet, 24)
	require.Len(t, moving, 22)

	isMoving := make(map[int]bool, len(moving))
	for _, n := range moving {
		isMoving[n] = true
	}
	require.False(t, isMoving[lat.Index(0, 12)], "lower window edge")
	require.False(t, isMoving[lat.Index(0, 35)], "upper window edge")
	require.True(t, isMoving[lat.Index(0, 13)])
	require.True(t, isMoving[lat.Index(0, 34)])

	// full-height window: the wall-adjacent rows are the edges
	full := BaseMask(32, 32, 1)
	require.Len(t, InletCells(full, 32, 32), 30)
	movingFull := MovingInletCells(full, 32, 32)
	require.Len(t, movingFull, 28)
	flat := NewLattice(32, 32)
	for _, n := range movingFull {
		_, y := flat.Coords(n)
		require.Greater(t, y, 1)
		require.Less(t, y, 30)
	}
}

func TestMaskKindStrings(t *testing.T) {
	require.Equal(t, "fluid", Fluid.String())
	require.Equal(t, "solid", Solid.String())
	require.Equal(t, "equilibrium", EquilibriumBoundary.String())
}

func TestMergeEditsCoalescesPerRow(t *testing.T) {
	edits := []MaskEdit{
		{Row: 3, X0: 2, X1: 5, Kind: Solid},
		{Row: 3, X0: 4, X1: 9, Kind: Solid},
		{Row: 3, X0: 10, X1: 12, Kind: Solid}, // adjacent, same kind
		{Row: 5, X0: 0, X1: 1, Kind: Fluid},
	}
	merged := MergeEdits(edits, 16, 8)
	require.Equal(t, []MaskEdit{
		{Row: 3, X0: 2, X1: 12, Kind: Solid},
		{Row: 5, X0: 0, X1: 1, Kind: Fluid},
	}, merged)
}

func TestMergeEditsLaterKindWins(t *testing.T) {
	edits := []MaskEdit{
		{Row: 1, X0: 0, X1: 7, Kind: Solid},
		{Row: 1, X0: 3, X1: 4, Kind: Fluid},
	}
	merged := MergeEdits(edits, 8, 4)
	require.Equal(t, []MaskEdit{
		{Row: 1, X0: 0, X1: 2, Kind: Solid},
		{Row: 1, X0: 3, X1: 4, Kind: Fluid},
		{Row: 1, X0: 5, X1: 7, Kind: Solid},
	}, merged)
}

// Out-of-range indices clamp instead of failing.
func TestMergeEditsClamps(t *testing.T) {
	edits := []MaskEdit{
		{Row: 2, X0: -10, X1: 100, Kind: Solid},
		{Row: -1, X0: 0, X1: 3, Kind: Solid}, // fully outside, dropped
		{Row: 9, X0: 0, X1: 3, Kind: Solid},  // fully outside, dropped
		{Row: 4, X0: 6, X1: 2, Kind: Solid},  // inverted, dropped
	}
	merged := MergeEdits(edits, 8, 8)
	require.Equal(t, []MaskEdit{{Row: 2, X0: 0, X1: 7, Kind: Solid}}, merged)
}

func TestMaskRunsRoundTrip(t *testing.T) {
	mask := BaseMask(32, 24, 0.5)
	rebuilt := make([]CellKind, len(mask))
	for _, e := range maskRuns(mask, 32, 24) {
		for x := e.X0; x <= e.X1; x++ {
			rebuilt[e.Row*32+x] = e.Kind
		}
	}
	require.Equal(t, mask, rebuilt)
}
