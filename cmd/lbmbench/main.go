// lbmbench runs the solver headless on the in-process backend and reports
// throughput, so performance work does not need a display or a GPU.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lbmflow/lbm"
)

func main() {
	var (
		nx     = flag.Int("nx", 256, "Lattice width in cells")
		ny     = flag.Int("ny", 256, "Lattice height in cells")
		omega  = flag.Float64("omega", 1.7, "BGK relaxation rate")
		ticks  = flag.Int("ticks", 1000, "Ticks per run")
		runs   = flag.Int("runs", 5, "Number of timed runs")
		warmup = flag.Int("warmup", 100, "Warmup ticks before timing")
	)
	flag.Parse()

	params := lbm.DefaultParams()
	params.Omega = float32(*omega)

	dom, err := lbm.New(*nx, *ny, params, lbm.NewParallel)
	if err != nil {
		log.Fatalf("Failed to initialize domain: %v", err)
	}
	defer dom.Close()

	fmt.Printf("Grid %dx%d, omega %.3f, %d ticks x %d runs\n",
		*nx, *ny, *omega, *ticks, *runs)

	if err := dom.Run(*warmup); err != nil {
		log.Fatalf("Warmup failed: %v", err)
	}

	cells := float64(*nx * *ny)
	mlups := make([]float64, *runs)
	for r := 0; r < *runs; r++ {
		start := time.Now()
		if err := dom.Run(*ticks); err != nil {
			log.Fatalf("Run %d failed: %v", r, err)
		}
		elapsed := time.Since(start).Seconds()
		mlups[r] = float64(*ticks) * cells / elapsed / 1e6
		fmt.Printf("  run %d: %.2f MLUPS\n", r, mlups[r])
	}

	mean, std := stat.MeanStdDev(mlups, nil)
	fmt.Printf("MLUPS: mean %.2f, stddev %.2f, best %.2f\n",
		mean, std, floats.Max(mlups))

	rho, ux, uy, _, err := dom.Macroscopic()
	if err != nil {
		log.Fatalf("Readback failed: %v", err)
	}
	rho64 := make([]float64, len(rho))
	for i, v := range rho {
		rho64[i] = float64(v)
	}
	peak := 0.0
	for i := range ux {
		s := float64(ux[i])*float64(ux[i]) + float64(uy[i])*float64(uy[i])
		if s > peak {
			peak = s
		}
	}
	fmt.Printf("Field after %d ticks: rho in [%.4f, %.4f], peak |u| %.4f\n",
		dom.Tick(), floats.Min(rho64), floats.Max(rho64), math.Sqrt(peak))
}
