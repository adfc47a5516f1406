package main

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"

	"lbmflow/lbm"
)

// glCompute implements lbm.Compute on OpenGL 4.3 compute shaders. All state
// lives in SSBOs: the distribution buffer stores one encoded half-precision
// population per 32-bit word (packHalf2x16 keeps the low half), so every
// slot stays individually addressable without read-modify-write hazards.
type glCompute struct {
	nx, ny int
	cells  int

	initProgram   uint32
	stepProgram   uint32
	outletProgram uint32

	fSSBO    uint32
	maskSSBO uint32
	rhoSSBO  uint32
	uxSSBO   uint32
	uySSBO   uint32

	groupsX, groupsY int

	rowScratch []uint32
}

// Workgroup tiling: 16x16 threads per group, ceil-divided over the grid.
const (
	workGroupDim    = 16
	outletGroupSize = 64
)

const shaderCommon = `
const ivec2 C[9] = ivec2[9](
	ivec2(0, 0),
	ivec2(1, 0), ivec2(-1, 0),
	ivec2(0, 1), ivec2(0, -1),
	ivec2(1, 1), ivec2(-1, -1),
	ivec2(1, -1), ivec2(-1, 1));

const uint MASK_SOLID = 1u;
const uint MASK_EQUILIBRIUM = 2u;

float decodeDDF(uint p) { return unpackHalf2x16(p).x * (1.0 / 32768.0); }
uint encodeDDF(float v) { return packHalf2x16(vec2(v * 32768.0, 0.0)); }

int cellIndex(ivec2 q) { return q.y * nx + q.x; }

int neighborIndex(ivec2 q, int dir) {
	ivec2 r = q + C[dir];
	r.x = (r.x + nx) % nx;
	r.y = (r.y + ny) % ny;
	return cellIndex(r);
}

void equilibrium(float r, float vx, float vy, out float feq[9]) {
	float c3 = -3.0 * (vx * vx + vy * vy);
	float rhom1 = r - 1.0;
	vx *= 3.0;
	vy *= 3.0;
	float u0 = vx + vy;
	float u1 = vx - vy;
	feq[0] = (4.0 / 9.0) * (r * (0.5 * c3) + rhom1);
	feq[1] = (1.0 / 9.0) * (r * (0.5 * (vx * vx + c3) + vx) + rhom1);
	feq[2] = (1.0 / 9.0) * (r * (0.5 * (vx * vx + c3) - vx) + rhom1);
	feq[3] = (1.0 / 9.0) * (r * (0.5 * (vy * vy + c3) + vy) + rhom1);
	feq[4] = (1.0 / 9.0) * (r * (0.5 * (vy * vy + c3) - vy) + rhom1);
	feq[5] = (1.0 / 36.0) * (r * (0.5 * (u0 * u0 + c3) + u0) + rhom1);
	feq[6] = (1.0 / 36.0) * (r * (0.5 * (u0 * u0 + c3) - u0) + rhom1);
	feq[7] = (1.0 / 36.0) * (r * (0.5 * (u1 * u1 + c3) + u1) + rhom1);
	feq[8] = (1.0 / 36.0) * (r * (0.5 * (u1 * u1 + c3) - u1) + rhom1);
}
`

// initShader seeds the macroscopic field from the mask and encodes the
// shifted equilibrium into all nine slots of each cell (parity 0 layout).
const initShader = `#version 430 core

layout(local_size_x = 16, local_size_y = 16) in;

layout(std430, binding = 0) buffer FBuf { uint f[]; };
layout(std430, binding = 1) readonly buffer MaskBuf { uint mask[]; };
layout(std430, binding = 2) buffer RhoBuf { float rho[]; };
layout(std430, binding = 3) buffer UxBuf { float ux[]; };
layout(std430, binding = 4) buffer UyBuf { float uy[]; };

uniform int nx;
uniform int ny;
uniform float inletUx;
uniform float inletUy;
` + shaderCommon + `
void main() {
	ivec2 q = ivec2(gl_GlobalInvocationID.xy);
	if (q.x >= nx || q.y >= ny) return;
	int n = cellIndex(q);
	int cells = nx * ny;

	float r = 1.0;
	float vx = 0.0;
	float vy = 0.0;
	// only inlet cells flanked by inlet cells move; window edges stay at rest
	if (mask[n] == MASK_EQUILIBRIUM && q.x == 0 && q.y > 0 && q.y < ny - 1 &&
		mask[n - nx] == MASK_EQUILIBRIUM && mask[n + nx] == MASK_EQUILIBRIUM) {
		vx = inletUx;
		vy = inletUy;
	}
	rho[n] = r;
	ux[n] = vx;
	uy[n] = vy;

	float feq[9];
	equilibrium(r, vx, vy, feq);
	for (int d = 0; d < 9; d++) {
		f[d * cells + n] = encodeDDF(feq[d]);
	}
}
`

// stepShader is the Esoteric-Pull stream/collide pass. It mirrors the
// lbm.Lattice slot addressing and the per-cell kernel in lbm/kernel.go
// exactly; the two must change together.
const stepShader = `#version 430 core

layout(local_size_x = 16, local_size_y = 16) in;

layout(std430, binding = 0) buffer FBuf { uint f[]; };
layout(std430, binding = 1) readonly buffer MaskBuf { uint mask[]; };
layout(std430, binding = 2) buffer RhoBuf { float rho[]; };
layout(std430, binding = 3) buffer UxBuf { float ux[]; };
layout(std430, binding = 4) buffer UyBuf { float uy[]; };

uniform int nx;
uniform int ny;
uniform int parity;
uniform float omega;
` + shaderCommon + `
int loadSlot(ivec2 q, int n, int dir, int cells) {
	if (dir == 0) return n;
	if (dir % 2 == 1) {
		return (parity == 0 ? dir : dir + 1) * cells + n;
	}
	int j = neighborIndex(q, dir - 1);
	return (parity == 0 ? dir : dir - 1) * cells + j;
}

int storeSlot(ivec2 q, int n, int dir, int cells) {
	if (dir == 0) return n;
	if (dir % 2 == 1) {
		int j = neighborIndex(q, dir);
		return (parity == 0 ? dir + 1 : dir) * cells + j;
	}
	return (parity == 0 ? dir - 1 : dir) * cells + n;
}

void main() {
	ivec2 q = ivec2(gl_GlobalInvocationID.xy);
	if (q.x >= nx || q.y >= ny) return;
	int n = cellIndex(q);
	uint kind = mask[n];
	if (kind == MASK_SOLID) return;
	int cells = nx * ny;

	float fh[9];
	for (int d = 0; d < 9; d++) {
		fh[d] = decodeDDF(f[loadSlot(q, n, d, cells)]);
	}

	if (kind == MASK_EQUILIBRIUM) {
		equilibrium(rho[n], ux[n], uy[n], fh);
	} else {
		float r = ((fh[1] + fh[2]) + (fh[3] + fh[4])) +
			((fh[5] + fh[6]) + (fh[7] + fh[8])) + fh[0];
		float vx = (fh[1] - fh[2]) + (fh[5] - fh[6]) + (fh[7] - fh[8]);
		float vy = (fh[3] - fh[4]) + (fh[5] - fh[6]) - (fh[7] - fh[8]);
		r += 1.0;
		vx /= r;
		vy /= r;
		rho[n] = r;
		ux[n] = vx;
		uy[n] = vy;
		float feq[9];
		equilibrium(r, vx, vy, feq);
		for (int d = 0; d < 9; d++) {
			fh[d] += omega * (feq[d] - fh[d]);
		}
	}

	for (int d = 0; d < 9; d++) {
		f[storeSlot(q, n, d, cells)] = encodeDDF(fh[d]);
	}
}
`

// outletShader applies the outflow condition: equilibrium cells of the
// rightmost column take their interior neighbor's velocity while density
// stays anchored at 1, fixing the domain's pressure level. Separate pass so
// the step shader never reads another cell's macroscopics.
const outletShader = `#version 430 core

layout(local_size_x = 64) in;

layout(std430, binding = 1) readonly buffer MaskBuf { uint mask[]; };
layout(std430, binding = 2) buffer RhoBuf { float rho[]; };
layout(std430, binding = 3) buffer UxB { float ux[]; };
layout(std430, binding = 4) buffer UyB { float uy[]; };

uniform int nx;
uniform int ny;

const uint MASK_EQUILIBRIUM = 2u;

void main() {
	int y = int(gl_GlobalInvocationID.x);
	if (y >= ny) return;
	int n = y * nx + nx - 1;
	if (mask[n] != MASK_EQUILIBRIUM) return;
	int src = n - 1;
	rho[n] = 1.0;
	ux[n] = ux[src];
	uy[n] = uy[src];
}
`

// newGLCompute probes device limits, compiles the three pipelines, and
// allocates the SSBOs. Requires a current OpenGL 4.3 context on the calling
// thread.
func newGLCompute(d lbm.Desc) (lbm.Compute, error) {
	cells := d.Nx * d.Ny
	fBytes := alignUp(cells*9*4, 64)

	var maxSSBO int32
	gl.GetIntegerv(gl.MAX_SHADER_STORAGE_BLOCK_SIZE, &maxSSBO)
	if int(maxSSBO) < fBytes {
		return nil, fmt.Errorf("%w: distribution buffer needs %d bytes, device SSBO limit is %d",
			lbm.ErrUnsupported, fBytes, maxSSBO)
	}
	var maxGroupsX, maxGroupsY int32
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, 0, &maxGroupsX)
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, 1, &maxGroupsY)
	groupsX := (d.Nx + workGroupDim - 1) / workGroupDim
	groupsY := (d.Ny + workGroupDim - 1) / workGroupDim
	if int(maxGroupsX) < groupsX || int(maxGroupsY) < groupsY {
		return nil, fmt.Errorf("%w: grid %dx%d needs %dx%d work groups, device limit is %dx%d",
			lbm.ErrUnsupported, d.Nx, d.Ny, groupsX, groupsY, maxGroupsX, maxGroupsY)
	}

	c := &glCompute{
		nx:         d.Nx,
		ny:         d.Ny,
		cells:      cells,
		groupsX:    groupsX,
		groupsY:    groupsY,
		rowScratch: make([]uint32, d.Nx),
	}

	var err error
	if c.initProgram, err = compileComputeShader(initShader); err != nil {
		c.Release()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	if c.stepProgram, err = compileComputeShader(stepShader); err != nil {
		c.Release()
		return nil, fmt.Errorf("step pipeline: %w", err)
	}
	if c.outletProgram, err = compileComputeShader(outletShader); err != nil {
		c.Release()
		return nil, fmt.Errorf("outlet pipeline: %w", err)
	}

	maskData := make([]uint32, cells)
	for i, k := range d.Mask {
		maskData[i] = uint32(k)
	}
	if err := c.allocBuffers(fBytes, maskData); err != nil {
		c.Release()
		return nil, err
	}

	fmt.Printf("GL compute ready: %dx%d lattice, %d KiB DDF buffer, %dx%d work groups\n",
		d.Nx, d.Ny, fBytes/1024, groupsX, groupsY)
	return c, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func (c *glCompute) allocBuffers(fBytes int, maskData []uint32) error {
	gl.GetError() // clear stale flags

	makeSSBO := func(size int, data unsafe.Pointer) uint32 {
		var ssbo uint32
		gl.GenBuffers(1, &ssbo)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, data, gl.DYNAMIC_COPY)
		return ssbo
	}

	c.fSSBO = makeSSBO(fBytes, nil)
	c.maskSSBO = makeSSBO(len(maskData)*4, gl.Ptr(maskData))
	c.rhoSSBO = makeSSBO(c.cells*4, nil)
	c.uxSSBO = makeSSBO(c.cells*4, nil)
	c.uySSBO = makeSSBO(c.cells*4, nil)

	if glErr := gl.GetError(); glErr != gl.NO_ERROR {
		return fmt.Errorf("%w: buffer allocation returned GL error %#x", lbm.ErrAllocation, glErr)
	}
	return nil
}

// compileComputeShader compiles and links a single compute shader program.
func compileComputeShader(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)

	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(infoLog))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute shader compilation failed: %s", infoLog)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(infoLog))
		gl.DeleteShader(shader)
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("compute program link failed: %s", infoLog)
	}

	gl.DeleteShader(shader)
	return program, nil
}

func (c *glCompute) bindBuffers() {
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, c.fSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, c.maskSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, c.rhoSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, c.uxSSBO)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 4, c.uySSBO)
}

func (c *glCompute) setGridUniforms(program uint32) {
	gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("nx\x00")), int32(c.nx))
	gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("ny\x00")), int32(c.ny))
}

func (c *glCompute) Init(p lbm.Params) error {
	c.bindBuffers()
	gl.UseProgram(c.initProgram)
	c.setGridUniforms(c.initProgram)
	gl.Uniform1f(gl.GetUniformLocation(c.initProgram, gl.Str("inletUx\x00")), p.InletVelocity[0])
	gl.Uniform1f(gl.GetUniformLocation(c.initProgram, gl.Str("inletUy\x00")), p.InletVelocity[1])
	gl.DispatchCompute(uint32(c.groupsX), uint32(c.groupsY), 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	return glStatus("init pass")
}

func (c *glCompute) Step(parity int, p lbm.Params) error {
	c.bindBuffers()

	gl.UseProgram(c.outletProgram)
	c.setGridUniforms(c.outletProgram)
	gl.DispatchCompute(uint32((c.ny+outletGroupSize-1)/outletGroupSize), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)

	gl.UseProgram(c.stepProgram)
	c.setGridUniforms(c.stepProgram)
	gl.Uniform1i(gl.GetUniformLocation(c.stepProgram, gl.Str("parity\x00")), int32(parity))
	gl.Uniform1f(gl.GetUniformLocation(c.stepProgram, gl.Str("omega\x00")), p.Omega)
	gl.DispatchCompute(uint32(c.groupsX), uint32(c.groupsY), 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	return glStatus("step pass")
}

func (c *glCompute) WriteMask(edits []lbm.MaskEdit) error {
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, c.maskSSBO)
	for _, e := range edits {
		count := e.X1 - e.X0 + 1
		row := c.rowScratch[:count]
		for i := range row {
			row[i] = uint32(e.Kind)
		}
		offset := (e.Row*c.nx + e.X0) * 4
		gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, offset, count*4, gl.Ptr(row))
	}
	return glStatus("mask write")
}

func (c *glCompute) WriteMacroscopic(cells []int, rho, ux, uy float32) error {
	write := func(ssbo uint32, v float32) {
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
		for _, n := range cells {
			if n < 0 || n >= c.cells {
				continue
			}
			gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, n*4, 4, gl.Ptr(&v))
		}
	}
	write(c.rhoSSBO, rho)
	write(c.uxSSBO, ux)
	write(c.uySSBO, uy)
	return glStatus("macroscopic write")
}

func (c *glCompute) ReadMacroscopic(rho, ux, uy []float32) error {
	if len(rho) != c.cells || len(ux) != c.cells || len(uy) != c.cells {
		return fmt.Errorf("macroscopic read needs %d entries per field", c.cells)
	}
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
	read := func(ssbo uint32, dst []float32) {
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
		gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(dst)*4, gl.Ptr(dst))
	}
	read(c.rhoSSBO, rho)
	read(c.uxSSBO, ux)
	read(c.uySSBO, uy)
	return glStatus("macroscopic read")
}

func (c *glCompute) Release() {
	for _, p := range []uint32{c.initProgram, c.stepProgram, c.outletProgram} {
		if p != 0 {
			gl.DeleteProgram(p)
		}
	}
	c.initProgram, c.stepProgram, c.outletProgram = 0, 0, 0
	for _, b := range []uint32{c.fSSBO, c.maskSSBO, c.rhoSSBO, c.uxSSBO, c.uySSBO} {
		if b != 0 {
			gl.DeleteBuffers(1, &b)
		}
	}
	c.fSSBO, c.maskSSBO, c.rhoSSBO, c.uxSSBO, c.uySSBO = 0, 0, 0, 0, 0
}

// glStatus converts a pending GL error flag into a tick-fatal error.
func glStatus(op string) error {
	if glErr := gl.GetError(); glErr != gl.NO_ERROR {
		return fmt.Errorf("%s failed with GL error %#x", op, glErr)
	}
	return nil
}
