package main

import (
	"fmt"
	"math"
	"runtime"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"lbmflow/lbm"
)

// FieldRenderer owns the GLFW window and draws the macroscopic field as a
// color-mapped fullscreen quad: flow speed drives the color ramp, solid and
// boundary cells get flat overlay colors.
type FieldRenderer struct {
	window *glfw.Window

	program uint32
	quadVAO uint32
	quadVBO uint32
	texture uint32

	nx, ny int
	pixels []float32

	// letterbox transform keeping the lattice aspect ratio
	model  mgl32.Mat4
	sx, sy float32

	width, height int

	speedScale float32
}

const fieldVertexShader = `#version 430 core
layout(location = 0) in vec2 pos;
layout(location = 1) in vec2 uv;
uniform mat4 model;
out vec2 texCoord;
void main() {
	texCoord = uv;
	gl_Position = model * vec4(pos, 0.0, 1.0);
}
` + "\x00"

// Fragment shader: r holds normalized speed, g holds density deviation, b
// holds the mask kind. Fluid goes dark blue -> cyan -> yellow -> red with
// speed; solids render slate gray, equilibrium boundaries dark green.
const fieldFragmentShader = `#version 430 core
in vec2 texCoord;
out vec4 fragColor;
uniform sampler2D field;

vec3 ramp(float t) {
	t = clamp(t, 0.0, 1.0);
	if (t < 0.33) return mix(vec3(0.05, 0.05, 0.25), vec3(0.0, 0.7, 0.9), t / 0.33);
	if (t < 0.66) return mix(vec3(0.0, 0.7, 0.9), vec3(0.95, 0.9, 0.1), (t - 0.33) / 0.33);
	return mix(vec3(0.95, 0.9, 0.1), vec3(0.9, 0.1, 0.05), (t - 0.66) / 0.34);
}

void main() {
	vec3 texel = texture(field, texCoord).rgb;
	float kind = texel.b;
	if (kind > 1.5) {
		fragColor = vec4(0.1, 0.35, 0.15, 1.0);
		return;
	}
	if (kind > 0.5) {
		fragColor = vec4(0.35, 0.35, 0.4, 1.0);
		return;
	}
	fragColor = vec4(ramp(texel.r), 1.0);
}
` + "\x00"

// NewFieldRenderer opens the window, acquires a 4.3 core context, and builds
// the presentation pipeline for an nx-by-ny field.
func NewFieldRenderer(width, height, nx, ny int, title string) (*FieldRenderer, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %v", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to initialize OpenGL: %v", err)
	}
	fmt.Println("OpenGL version:", gl.GoStr(gl.GetString(gl.VERSION)))

	r := &FieldRenderer{
		window:     window,
		nx:         nx,
		ny:         ny,
		pixels:     make([]float32, nx*ny*3),
		width:      width,
		height:     height,
		speedScale: 0.2,
	}

	if r.program, err = compileRenderProgram(fieldVertexShader, fieldFragmentShader); err != nil {
		glfw.Terminate()
		return nil, err
	}
	r.createQuad()
	r.createTexture()
	r.updateLetterbox()

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		r.width, r.height = w, h
		gl.Viewport(0, 0, int32(w), int32(h))
		r.updateLetterbox()
	})

	gl.ClearColor(0.02, 0.02, 0.05, 1.0)
	return r, nil
}

func (r *FieldRenderer) createQuad() {
	quad := []float32{
		// pos        // uv
		-1, -1, 0, 0,
		1, -1, 1, 0,
		1, 1, 1, 1,
		-1, -1, 0, 0,
		1, 1, 1, 1,
		-1, 1, 0, 1,
	}
	gl.GenVertexArrays(1, &r.quadVAO)
	gl.GenBuffers(1, &r.quadVBO)
	gl.BindVertexArray(r.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 16, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, 16, gl.PtrOffset(8))
	gl.BindVertexArray(0)
}

func (r *FieldRenderer) createTexture() {
	gl.GenTextures(1, &r.texture)
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB32F, int32(r.nx), int32(r.ny), 0,
		gl.RGB, gl.FLOAT, nil)
}

func (r *FieldRenderer) updateLetterbox() {
	fieldAspect := float32(r.nx) / float32(r.ny)
	windowAspect := float32(r.width) / float32(r.height)
	r.sx, r.sy = 1, 1
	if windowAspect > fieldAspect {
		r.sx = fieldAspect / windowAspect
	} else {
		r.sy = windowAspect / fieldAspect
	}
	r.model = mgl32.Scale3D(r.sx, r.sy, 1)
}

// Update repacks the macroscopic field and mask into the display texture.
func (r *FieldRenderer) Update(rho, ux, uy []float32, mask []lbm.CellKind) {
	scale := r.speedScale
	for n := 0; n < r.nx*r.ny; n++ {
		speed := float32(math.Hypot(float64(ux[n]), float64(uy[n])))
		r.pixels[n*3] = speed / scale
		r.pixels[n*3+1] = rho[n] - 1
		r.pixels[n*3+2] = float32(mask[n])
	}
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(r.nx), int32(r.ny),
		gl.RGB, gl.FLOAT, gl.Ptr(r.pixels))
}

// SetSpeedScale adjusts the speed that maps to the top of the color ramp.
func (r *FieldRenderer) SetSpeedScale(s float32) {
	if s > 0 {
		r.speedScale = s
	}
}

// Render draws the current texture.
func (r *FieldRenderer) Render() {
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(r.program)
	gl.UniformMatrix4fv(gl.GetUniformLocation(r.program, gl.Str("model\x00")),
		1, false, &r.model[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	r.window.SwapBuffers()
}

// CellAt maps a window-space cursor position to lattice coordinates,
// inverting the letterbox transform. ok is false outside the field.
func (r *FieldRenderer) CellAt(mx, my float64) (x, y int, ok bool) {
	ndcX := 2*float32(mx)/float32(r.width) - 1
	ndcY := 1 - 2*float32(my)/float32(r.height)
	fx := (ndcX/r.sx + 1) / 2
	fy := (ndcY/r.sy + 1) / 2
	if fx < 0 || fx >= 1 || fy < 0 || fy >= 1 {
		return 0, 0, false
	}
	return int(fx * float32(r.nx)), int(fy * float32(r.ny)), true
}

// ShouldClose reports whether the window close flag is set.
func (r *FieldRenderer) ShouldClose() bool { return r.window.ShouldClose() }

// PollEvents pumps the window event queue.
func (r *FieldRenderer) PollEvents() { glfw.PollEvents() }

// Window exposes the underlying GLFW window for input callbacks.
func (r *FieldRenderer) Window() *glfw.Window { return r.window }

// Terminate tears down GL objects and the windowing system.
func (r *FieldRenderer) Terminate() {
	gl.DeleteProgram(r.program)
	gl.DeleteVertexArrays(1, &r.quadVAO)
	gl.DeleteBuffers(1, &r.quadVBO)
	gl.DeleteTextures(1, &r.texture)
	glfw.Terminate()
}

// compileRenderProgram links a vertex+fragment pipeline.
func compileRenderProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	compile := func(src string, kind uint32) (uint32, error) {
		shader := gl.CreateShader(kind)
		csource, free := gl.Strs(src)
		gl.ShaderSource(shader, 1, csource, nil)
		free()
		gl.CompileShader(shader)
		var status int32
		gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
		if status == gl.FALSE {
			var logLength int32
			gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
			infoLog := make([]byte, logLength+1)
			gl.GetShaderInfoLog(shader, logLength, nil, &infoLog[0])
			gl.DeleteShader(shader)
			return 0, fmt.Errorf("shader compilation failed: %s", infoLog)
		}
		return shader, nil
	}

	vs, err := compile(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compile(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := make([]byte, logLength+1)
		gl.GetProgramInfoLog(program, logLength, nil, &infoLog[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("render program link failed: %s", infoLog)
	}
	return program, nil
}
