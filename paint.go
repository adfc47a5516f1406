package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"lbmflow/lbm"
)

// Painter turns cursor input into mask edits. Left button paints solid
// material, right button restores fluid. Edits queue up and are handed to
// the domain between ticks so the update never races a running pass.
type Painter struct {
	renderer *FieldRenderer
	nx, ny   int

	radius  int
	pending []lbm.MaskEdit

	leftDown  bool
	rightDown bool
}

// NewPainter wires cursor and mouse-button callbacks onto the renderer's
// window.
func NewPainter(r *FieldRenderer, nx, ny, radius int) *Painter {
	p := &Painter{renderer: r, nx: nx, ny: ny, radius: radius}

	win := r.Window()
	win.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		pressed := action == glfw.Press
		switch button {
		case glfw.MouseButtonLeft:
			p.leftDown = pressed
		case glfw.MouseButtonRight:
			p.rightDown = pressed
		}
		if pressed {
			p.stamp(w.GetCursorPos())
		}
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, mx, my float64) {
		if p.leftDown || p.rightDown {
			p.stamp(mx, my)
		}
	})
	return p
}

// SetRadius changes the brush radius in lattice cells.
func (p *Painter) SetRadius(radius int) {
	if radius >= 0 {
		p.radius = radius
	}
}

// stamp appends the row intervals of a disk around the cursor to the queue.
func (p *Painter) stamp(mx, my float64) {
	cx, cy, ok := p.renderer.CellAt(mx, my)
	if !ok {
		return
	}
	kind := lbm.Solid
	if p.rightDown && !p.leftDown {
		kind = lbm.Fluid
	}
	p.pending = append(p.pending, diskEdits(cx, cy, p.radius, p.nx, p.ny, kind)...)
}

// diskEdits decomposes a filled disk into per-row inclusive intervals,
// clamped to the lattice.
func diskEdits(cx, cy, r, nx, ny int, kind lbm.CellKind) []lbm.MaskEdit {
	edits := make([]lbm.MaskEdit, 0, 2*r+1)
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= ny {
			continue
		}
		span := 0
		for span*span+dy*dy <= r*r {
			span++
		}
		span--
		x0, x1 := cx-span, cx+span
		if x0 < 0 {
			x0 = 0
		}
		if x1 >= nx {
			x1 = nx - 1
		}
		if x0 > x1 {
			continue
		}
		edits = append(edits, lbm.MaskEdit{Row: y, X0: x0, X1: x1, Kind: kind})
	}
	return edits
}

// Flush applies queued edits to the domain and clears the queue. Returns
// the number of edits applied.
func (p *Painter) Flush(dom *lbm.Domain) (int, error) {
	if len(p.pending) == 0 {
		return 0, nil
	}
	edits := p.pending
	p.pending = p.pending[:0]
	if err := dom.ApplyMaskEdits(edits); err != nil {
		return 0, err
	}
	return len(edits), nil
}
