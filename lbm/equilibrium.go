package lbm

// Equilibrium computes the nine shifted BGK/D2Q9 equilibrium populations for
// density rho and velocity (ux, uy). The populations are shifted by -wi, so
// the rho-1 contribution is carried separately and added last per direction;
// composing it any earlier would subtract two nearly equal numbers for states
// near rho=1 and lose most of the significand.
func Equilibrium(rho, ux, uy float32) [Q]float32 {
	const (
		w0 = 4.0 / 9.0
		ws = 1.0 / 9.0
		we = 1.0 / 36.0
	)
	c3 := -3.0 * (ux*ux + uy*uy)
	rhom1 := rho - 1.0
	ux *= 3.0
	uy *= 3.0
	u0 := ux + uy
	u1 := ux - uy

	var feq [Q]float32
	feq[0] = w0 * (rho*(0.5*c3) + rhom1)
	feq[1] = ws * (rho*(0.5*(ux*ux+c3)+ux) + rhom1)
	feq[2] = ws * (rho*(0.5*(ux*ux+c3)-ux) + rhom1)
	feq[3] = ws * (rho*(0.5*(uy*uy+c3)+uy) + rhom1)
	feq[4] = ws * (rho*(0.5*(uy*uy+c3)-uy) + rhom1)
	feq[5] = we * (rho*(0.5*(u0*u0+c3)+u0) + rhom1)
	feq[6] = we * (rho*(0.5*(u0*u0+c3)-u0) + rhom1)
	feq[7] = we * (rho*(0.5*(u1*u1+c3)+u1) + rhom1)
	feq[8] = we * (rho*(0.5*(u1*u1+c3)-u1) + rhom1)
	return feq
}

// Moments reduces nine shifted populations to density and velocity. The sums
// pair opposite directions before accumulating so cancellation stays
// controlled, and the unit shift rejoins rho only at the end.
func Moments(fh *[Q]float32) (rho, ux, uy float32) {
	rho = ((fh[1] + fh[2]) + (fh[3] + fh[4])) +
		((fh[5] + fh[6]) + (fh[7] + fh[8])) + fh[0]
	ux = (fh[1] - fh[2]) + (fh[5] - fh[6]) + (fh[7] - fh[8])
	uy = (fh[3] - fh[4]) + (fh[5] - fh[6]) - (fh[7] - fh[8])
	rho += 1.0
	ux /= rho
	uy /= rho
	return rho, ux, uy
}
