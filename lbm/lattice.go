package lbm

// D2Q9 velocity set. Direction 0 is the rest population; directions are laid
// out as opposite pairs (1,2)=(+x,-x), (3,4)=(+y,-y), (5,6)=(+x+y,-x-y),
// (7,8)=(+x-y,-x+y) so that Opposite(i) flips the low bit of i-1.
const Q = 9

var (
	// Cx, Cy are the lattice direction offsets.
	Cx = [Q]int{0, 1, -1, 0, 0, 1, -1, 1, -1}
	Cy = [Q]int{0, 0, 0, 1, -1, 1, -1, -1, 1}

	// Weights are the D2Q9 lattice weights: 4/9 rest, 1/9 axis, 1/36 diagonal.
	Weights = [Q]float32{
		4.0 / 9.0,
		1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0, 1.0 / 9.0,
		1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0,
	}
)

// Opposite returns the direction index pointing the other way.
func Opposite(dir int) int {
	if dir == 0 {
		return 0
	}
	if dir%2 == 1 {
		return dir + 1
	}
	return dir - 1
}

// Lattice describes the rectangular grid and owns all index arithmetic for
// the structure-of-arrays distribution buffer, including the Esoteric-Pull
// slot addressing that entangles streaming with storage parity.
type Lattice struct {
	Nx, Ny int
	Cells  int
}

// NewLattice builds index arithmetic for an Nx-by-Ny grid.
func NewLattice(nx, ny int) Lattice {
	return Lattice{Nx: nx, Ny: ny, Cells: nx * ny}
}

// Index returns the flat cell index for grid coordinates (x, y).
func (l Lattice) Index(x, y int) int { return y*l.Nx + x }

// Coords is the inverse of Index.
func (l Lattice) Coords(n int) (x, y int) { return n % l.Nx, n / l.Nx }

// Neighbor returns the flat index of the cell one step away in direction dir,
// with periodic wraparound. The reference geometry walls every lattice edge,
// so the wraparound is never observable in the flow field.
func (l Lattice) Neighbor(n, dir int) int {
	x, y := l.Coords(n)
	x += Cx[dir]
	y += Cy[dir]
	if x < 0 {
		x += l.Nx
	} else if x >= l.Nx {
		x -= l.Nx
	}
	if y < 0 {
		y += l.Ny
	} else if y >= l.Ny {
		y -= l.Ny
	}
	return l.Index(x, y)
}

// LoadSlot returns the buffer index a cell reads for the population arriving
// along dir during a pass with the given parity. Odd directions read one of
// the cell's own paired slots; even directions read from the neighbor in the
// paired odd direction (pull streaming, since c[i+1] = -c[i]).
func (l Lattice) LoadSlot(n, dir, parity int) int {
	if dir == 0 {
		return n
	}
	if dir%2 == 1 {
		if parity == 0 {
			return dir*l.Cells + n
		}
		return (dir+1)*l.Cells + n
	}
	j := l.Neighbor(n, dir-1)
	if parity == 0 {
		return dir*l.Cells + j
	}
	return (dir-1)*l.Cells + j
}

// StoreSlot returns the buffer index a cell writes for its post-collision
// population in dir. The store pattern mirrors the next parity's load
// pattern, so per cell and pass the store slot set equals the load slot set:
// the pass updates the buffer strictly in place, and a write aimed at a solid
// neighbor parks the population in the solid's slots until the opposite
// direction reads it back two ticks later (implicit bounce-back).
func (l Lattice) StoreSlot(n, dir, parity int) int {
	if dir == 0 {
		return n
	}
	if dir%2 == 1 {
		j := l.Neighbor(n, dir)
		if parity == 0 {
			return (dir+1)*l.Cells + j
		}
		return dir*l.Cells + j
	}
	if parity == 0 {
		return (dir-1)*l.Cells + n
	}
	return dir*l.Cells + n
}
