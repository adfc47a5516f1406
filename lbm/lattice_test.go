package lbm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOppositePairing(t *testing.T) {
	require.Equal(t, 0, Opposite(0))
	for d := 1; d < Q; d++ {
		o := Opposite(d)
		require.Equal(t, d, Opposite(o), "opposite must be an involution")
		require.Equal(t, -Cx[d], Cx[o], "direction %d", d)
		require.Equal(t, -Cy[d], Cy[o], "direction %d", d)
	}
	// pairs are (1,2),(3,4),(5,6),(7,8)
	for i := 1; i < Q; i += 2 {
		require.Equal(t, i+1, Opposite(i))
	}
}

func TestNeighborWraparound(t *testing.T) {
	lat := NewLattice(5, 4)
	tests := []struct {
		x, y, dir    int
		wantX, wantY int
	}{
		{0, 0, 2, 4, 0},  // -x wraps
		{4, 0, 1, 0, 0},  // +x wraps
		{2, 3, 3, 2, 0},  // +y wraps
		{2, 0, 4, 2, 3},  // -y wraps
		{2, 2, 5, 3, 3},  // diagonal
		{0, 0, 6, 4, 3},  // diagonal wraps both
	}
	for _, tc := range tests {
		got := lat.Neighbor(lat.Index(tc.x, tc.y), tc.dir)
		require.Equal(t, lat.Index(tc.wantX, tc.wantY), got,
			"neighbor of (%d,%d) in dir %d", tc.x, tc.y, tc.dir)
	}
}

// Every pass must touch each of the 9*C slots exactly once as a load target
// and exactly once as a store target, and per cell the two sets must agree,
// otherwise slot ownership would be ambiguous under unordered execution.
func TestSlotOwnershipBijection(t *testing.T) {
	lat := NewLattice(7, 5)
	for parity := 0; parity <= 1; parity++ {
		loads := make([]int, Q*lat.Cells)
		stores := make([]int, Q*lat.Cells)
		for n := 0; n < lat.Cells; n++ {
			cellLoads := make(map[int]bool)
			cellStores := make(map[int]bool)
			for d := 0; d < Q; d++ {
				ls := lat.LoadSlot(n, d, parity)
				ss := lat.StoreSlot(n, d, parity)
				require.GreaterOrEqual(t, ls, 0)
				require.Less(t, ls, Q*lat.Cells)
				loads[ls]++
				stores[ss]++
				cellLoads[ls] = true
				cellStores[ss] = true
			}
			require.Equal(t, cellLoads, cellStores,
				"cell %d parity %d reads and writes different slot sets", n, parity)
		}
		for slot := range loads {
			require.Equal(t, 1, loads[slot], "slot %d load count, parity %d", slot, parity)
			require.Equal(t, 1, stores[slot], "slot %d store count, parity %d", slot, parity)
		}
	}
}

// A population stored along dir at parity p must be the population loaded
// along dir by the neighbor in that direction at parity 1-p: two consecutive
// ticks implement one full streaming step.
func TestParityStreamingIdentity(t *testing.T) {
	lat := NewLattice(6, 6)
	for parity := 0; parity <= 1; parity++ {
		for n := 0; n < lat.Cells; n++ {
			for d := 1; d < Q; d++ {
				dst := lat.Neighbor(n, d)
				require.Equal(t,
					lat.StoreSlot(n, d, parity),
					lat.LoadSlot(dst, d, 1-parity),
					"cell %d dir %d parity %d", n, d, parity)
			}
			require.Equal(t, lat.StoreSlot(n, 0, parity), lat.LoadSlot(n, 0, 1-parity))
		}
	}
}
