package main

import (
	"flag"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"lbmflow/config"
	"lbmflow/lbm"
)

// setFlags reports which flags were explicitly set on fs.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func main() {
	runtime.LockOSThread()

	var (
		configPath = flag.String("config", "settings.json", "Path to settings file")
		nx         = flag.Int("nx", 0, "Lattice width in cells (overrides settings)")
		ny         = flag.Int("ny", 0, "Lattice height in cells (overrides settings)")
		omega      = flag.Float64("omega", 0, "BGK relaxation rate (overrides settings)")
		ux         = flag.Float64("ux", 0, "Inlet velocity x component")
		uy         = flag.Float64("uy", 0, "Inlet velocity y component")
		width      = flag.Int("width", 0, "Window width")
		height     = flag.Int("height", 0, "Window height")
		backend    = flag.String("backend", "", "Compute backend (gl, cpu)")
		serve      = flag.Bool("serve", false, "Start the websocket field server")
	)
	flag.Parse()
	set := setFlags(flag.CommandLine)

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *nx > 0 {
		settings.Grid.Nx = *nx
	}
	if *ny > 0 {
		settings.Grid.Ny = *ny
	}
	if *omega > 0 {
		settings.Physics.Omega = float32(*omega)
	}
	// velocity components can legitimately be negative or zero, so presence
	// on the command line decides, not the value
	if set["ux"] {
		settings.Physics.InletVelocityX = float32(*ux)
	}
	if set["uy"] {
		settings.Physics.InletVelocityY = float32(*uy)
	}
	if *width > 0 {
		settings.Display.Width = *width
	}
	if *height > 0 {
		settings.Display.Height = *height
	}
	if *backend != "" {
		settings.Backend.Name = *backend
	}
	if *serve {
		settings.Server.Enabled = true
	}

	fmt.Println("=== Lattice Boltzmann Flow Simulator ===")
	fmt.Printf("Grid: %dx%d cells\n", settings.Grid.Nx, settings.Grid.Ny)
	fmt.Printf("Omega: %.3f, inlet velocity (%.3f, %.3f)\n",
		settings.Physics.Omega, settings.Physics.InletVelocityX, settings.Physics.InletVelocityY)
	fmt.Printf("Backend: %s\n", settings.Backend.Name)

	// The window must exist before the GL backend can compile its shaders:
	// both share the context owned by the renderer.
	renderer, err := NewFieldRenderer(settings.Display.Width, settings.Display.Height,
		settings.Grid.Nx, settings.Grid.Ny, "LBM Flow")
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer renderer.Terminate()
	renderer.SetSpeedScale(settings.Display.SpeedScale)

	params := lbm.Params{
		Omega:         settings.Physics.Omega,
		InletVelocity: [2]float32{settings.Physics.InletVelocityX, settings.Physics.InletVelocityY},
		InletFraction: settings.Physics.InletFraction,
	}

	var factory lbm.Factory
	switch settings.Backend.Name {
	case "gl":
		factory = newGLCompute
	case "cpu":
		factory = lbm.NewParallel
	default:
		log.Fatalf("Unknown backend: %s", settings.Backend.Name)
	}

	dom, err := lbm.New(settings.Grid.Nx, settings.Grid.Ny, params, factory)
	if err != nil {
		log.Fatalf("Failed to initialize domain: %v", err)
	}
	defer dom.Close()

	painter := NewPainter(renderer, settings.Grid.Nx, settings.Grid.Ny,
		settings.Display.BrushRadius)

	var server *FieldServer
	if settings.Server.Enabled {
		server = NewFieldServer(settings.Grid.Nx, settings.Grid.Ny,
			fmt.Sprintf(":%d", settings.Server.Port), settings.Physics.Omega)
		go server.Start()
	}

	paused := false
	renderer.Window().SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeySpace:
			paused = !paused
		case glfw.KeyR:
			if err := dom.Reset(); err != nil {
				log.Println("reset failed:", err)
			}
		case glfw.KeyC:
			if err := dom.ResetMask(); err != nil {
				log.Println("mask reset failed:", err)
			}
		case glfw.KeyEqual:
			settings.Display.BrushRadius++
			painter.SetRadius(settings.Display.BrushRadius)
		case glfw.KeyMinus:
			if settings.Display.BrushRadius > 1 {
				settings.Display.BrushRadius--
				painter.SetRadius(settings.Display.BrushRadius)
			}
		}
	})

	fmt.Println("\nControls:")
	fmt.Println("  Left mouse: Paint solid material")
	fmt.Println("  Right mouse: Restore fluid")
	fmt.Println("  +/-: Brush size")
	fmt.Println("  Space: Pause")
	fmt.Println("  R: Reset flow  C: Reset mask")
	fmt.Println("  ESC: Exit")
	fmt.Println("\nStarting simulation...")

	frameCount := 0
	tickCount := uint64(0)
	lastFPSTime := time.Now()
	lastBroadcast := time.Now()
	broadcastInterval := time.Duration(settings.Server.UpdateIntervalMs) * time.Millisecond

	for !renderer.ShouldClose() {
		renderer.PollEvents()

		if _, err := painter.Flush(dom); err != nil {
			log.Println("mask edit failed:", err)
		}
		if server != nil {
			server.Drain(dom)
		}

		if !paused {
			if err := dom.Run(settings.Display.StepsPerFrame); err != nil {
				log.Fatalf("Simulation step failed: %v", err)
			}
		}

		rho, uxf, uyf, _, err := dom.Macroscopic()
		if err != nil {
			log.Fatalf("Readback failed: %v", err)
		}
		renderer.Update(rho, uxf, uyf, dom.Mask())
		renderer.Render()

		if server != nil && server.HasClients() && time.Since(lastBroadcast) >= broadcastInterval {
			server.Broadcast(dom)
			lastBroadcast = time.Now()
		}

		frameCount++
		now := time.Now()
		if elapsed := now.Sub(lastFPSTime).Seconds(); elapsed >= 1.0 {
			fps := float64(frameCount) / elapsed
			ticks := dom.Tick() - tickCount
			mlups := float64(ticks) * float64(settings.Grid.Nx*settings.Grid.Ny) / elapsed / 1e6
			fmt.Printf("\rFPS: %.1f | Tick: %d | %.1f MLUPS    ", fps, dom.Tick(), mlups)
			frameCount = 0
			tickCount = dom.Tick()
			lastFPSTime = now
		}
	}
	fmt.Println("\nShutting down.")
}
