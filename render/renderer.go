// Package render draws the two-texture cross-fade with OpenGL ES 2.
//
// A FadeRenderer must be created and used on the thread that owns the
// current GL context.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v3.1/gles2"

	"github.com/photonicat/photonicat2_slideshow/decoder"
)

// ErrShader is returned when the fade program fails to compile or link.
// There is no fallback program.
var ErrShader = errors.New("render: shader build failed")

type FadeRenderer struct {
	program  uint32
	vbo      uint32
	posLoc   uint32
	uvLoc    uint32
	fadeLoc  int32
	textures [2]uint32

	width, height int32
}

// New builds the program, quad and both texture objects for a viewport of
// width x height.
func New(width, height int) (*FadeRenderer, error) {
	if err := gles2.Init(); err != nil {
		return nil, fmt.Errorf("render: init gles2: %w", err)
	}

	program, err := linkProgram(vertexShader, fragmentShader)
	if err != nil {
		return nil, err
	}
	r := &FadeRenderer{program: program}
	r.Resize(width, height)

	r.posLoc = uint32(gles2.GetAttribLocation(program, gles2.Str("a_pos\x00")))
	r.uvLoc = uint32(gles2.GetAttribLocation(program, gles2.Str("a_uv\x00")))
	r.fadeLoc = gles2.GetUniformLocation(program, gles2.Str("u_fade\x00"))

	gles2.UseProgram(program)
	gles2.Uniform1i(gles2.GetUniformLocation(program, gles2.Str("u_tex0\x00")), 0)
	gles2.Uniform1i(gles2.GetUniformLocation(program, gles2.Str("u_tex1\x00")), 1)

	gles2.GenBuffers(1, &r.vbo)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, r.vbo)
	gles2.BufferData(gles2.ARRAY_BUFFER, len(quad)*4, gles2.Ptr(quad), gles2.STATIC_DRAW)

	for i := range r.textures {
		gles2.GenTextures(1, &r.textures[i])
		gles2.BindTexture(gles2.TEXTURE_2D, r.textures[i])
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MIN_FILTER, gles2.LINEAR)
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MAG_FILTER, gles2.LINEAR)
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_S, gles2.CLAMP_TO_EDGE)
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_T, gles2.CLAMP_TO_EDGE)
	}
	gles2.ClearColor(0, 0, 0, 1)

	if err := glError("setup"); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func compileShader(kind uint32, source string) (uint32, error) {
	shader := gles2.CreateShader(kind)
	csources, free := gles2.Strs(source)
	gles2.ShaderSource(shader, 1, csources, nil)
	free()
	gles2.CompileShader(shader)

	var status int32
	gles2.GetShaderiv(shader, gles2.COMPILE_STATUS, &status)
	if status == gles2.FALSE {
		var logLength int32
		gles2.GetShaderiv(shader, gles2.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gles2.GetShaderInfoLog(shader, logLength, nil, gles2.Str(msg))
		gles2.DeleteShader(shader)
		return 0, fmt.Errorf("%w: compile: %s", ErrShader, strings.TrimRight(msg, "\x00"))
	}
	return shader, nil
}

func linkProgram(vsrc, fsrc string) (uint32, error) {
	vs, err := compileShader(gles2.VERTEX_SHADER, vsrc)
	if err != nil {
		return 0, err
	}
	defer gles2.DeleteShader(vs)
	fs, err := compileShader(gles2.FRAGMENT_SHADER, fsrc)
	if err != nil {
		return 0, err
	}
	defer gles2.DeleteShader(fs)

	program := gles2.CreateProgram()
	gles2.AttachShader(program, vs)
	gles2.AttachShader(program, fs)
	gles2.LinkProgram(program)

	var status int32
	gles2.GetProgramiv(program, gles2.LINK_STATUS, &status)
	if status == gles2.FALSE {
		var logLength int32
		gles2.GetProgramiv(program, gles2.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gles2.GetProgramInfoLog(program, logLength, nil, gles2.Str(msg))
		gles2.DeleteProgram(program)
		return 0, fmt.Errorf("%w: link: %s", ErrShader, strings.TrimRight(msg, "\x00"))
	}
	return program, nil
}

// pixelFormat maps a decoded channel count to GL format and row alignment.
func pixelFormat(channels int) (format uint32, align int32, err error) {
	switch channels {
	case 3:
		return gles2.RGB, 1, nil
	case 4:
		return gles2.RGBA, 4, nil
	}
	return 0, 0, fmt.Errorf("render: unsupported channel count %d", channels)
}

// texImage holds the arguments of one full glTexImage2D call.
type texImage struct {
	width, height int32
	format        uint32
	align         int32
}

// texImageFor describes the upload of img. Every upload respecifies the
// whole texture; glTexSubImage2D leaves the texture unchanged on the
// Raspberry Pi driver.
func texImageFor(img *decoder.Image) (texImage, error) {
	if img == nil {
		return texImage{}, errors.New("render: nil image")
	}
	if !img.Valid() {
		return texImage{}, fmt.Errorf("render: invalid image %dx%dx%d", img.Width, img.Height, img.Channels)
	}
	format, align, err := pixelFormat(img.Channels)
	if err != nil {
		return texImage{}, err
	}
	return texImage{width: int32(img.Width), height: int32(img.Height), format: format, align: align}, nil
}

// Upload replaces the contents of texture slot 0 or 1.
func (r *FadeRenderer) Upload(slot int, img *decoder.Image) error {
	if slot < 0 || slot > 1 {
		return fmt.Errorf("render: bad slot %d", slot)
	}
	ti, err := texImageFor(img)
	if err != nil {
		return err
	}

	gles2.ActiveTexture(gles2.TEXTURE0 + uint32(slot))
	gles2.BindTexture(gles2.TEXTURE_2D, r.textures[slot])
	gles2.PixelStorei(gles2.UNPACK_ALIGNMENT, ti.align)
	gles2.TexImage2D(gles2.TEXTURE_2D, 0, int32(ti.format), ti.width, ti.height, 0,
		ti.format, gles2.UNSIGNED_BYTE, gles2.Ptr(img.Pix))
	return glError(fmt.Sprintf("upload slot %d", slot))
}

// Render draws one frame blended by fade into the current draw surface.
// The caller presents it.
func (r *FadeRenderer) Render(fade float32) error {
	gles2.Viewport(0, 0, r.width, r.height)
	gles2.Clear(gles2.COLOR_BUFFER_BIT)
	gles2.UseProgram(r.program)
	gles2.Uniform1f(r.fadeLoc, clamp01(fade))

	for i := range r.textures {
		gles2.ActiveTexture(gles2.TEXTURE0 + uint32(i))
		gles2.BindTexture(gles2.TEXTURE_2D, r.textures[i])
	}

	gles2.BindBuffer(gles2.ARRAY_BUFFER, r.vbo)
	gles2.EnableVertexAttribArray(r.posLoc)
	gles2.VertexAttribPointerWithOffset(r.posLoc, 2, gles2.FLOAT, false, quadStride, 0)
	gles2.EnableVertexAttribArray(r.uvLoc)
	gles2.VertexAttribPointerWithOffset(r.uvLoc, 2, gles2.FLOAT, false, quadStride, 2*4)
	gles2.DrawArrays(gles2.TRIANGLE_STRIP, 0, quadVertices)

	return glError("render")
}

func (r *FadeRenderer) Resize(width, height int) {
	r.width, r.height = int32(width), int32(height)
}

func (r *FadeRenderer) Close() {
	for i := range r.textures {
		if r.textures[i] != 0 {
			gles2.DeleteTextures(1, &r.textures[i])
			r.textures[i] = 0
		}
	}
	if r.vbo != 0 {
		gles2.DeleteBuffers(1, &r.vbo)
		r.vbo = 0
	}
	if r.program != 0 {
		gles2.DeleteProgram(r.program)
		r.program = 0
	}
}

func glError(op string) error {
	if code := gles2.GetError(); code != gles2.NO_ERROR {
		return fmt.Errorf("render: %s: gl error 0x%04x", op, code)
	}
	return nil
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
