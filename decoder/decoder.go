// Package decoder turns compressed image bytes into raw pixel buffers.
//
// Backends register themselves by name so the binary can pick one from
// configuration:
//
//	func init() {
//	    decoder.Register("turbojpeg", newTurboJPEG)
//	}
//
//	dec, err := decoder.New("turbojpeg")
package decoder

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
)

// ErrDecode marks a per-file failure: the bytes are not an image this
// backend understands. Callers treat it as recoverable.
var ErrDecode = errors.New("decoder: cannot decode image")

// ErrUnknownBackend is returned by New for names nobody registered.
var ErrUnknownBackend = errors.New("decoder: unknown backend")

// Image is a tightly packed pixel buffer, rows top to bottom.
type Image struct {
	Pix      []byte
	Width    int
	Height   int
	Channels int // 3 for RGB, 4 for RGBA
}

// Decoder decodes a whole compressed file held in memory.
type Decoder interface {
	Decode(data []byte) (*Image, error)
}

// Factory creates a decoder backend.
type Factory func() (Decoder, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. Registering the same
// name twice replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New creates the backend registered under name.
func New(name string) (Decoder, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, name, Names())
	}
	return f()
}

// Names lists registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromRGBA wraps an RGBA image without copying when its rows are packed.
func FromRGBA(img *image.RGBA) *Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w*4 && b.Min == (image.Point{}) {
		return &Image{Pix: img.Pix[:w*h*4], Width: w, Height: h, Channels: 4}
	}
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		start := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(pix[y*w*4:(y+1)*w*4], img.Pix[start:start+w*4])
	}
	return &Image{Pix: pix, Width: w, Height: h, Channels: 4}
}

// RGBA returns the pixels as an *image.RGBA. Four channel buffers are
// shared, three channel buffers are expanded with opaque alpha.
func (m *Image) RGBA() *image.RGBA {
	rect := image.Rect(0, 0, m.Width, m.Height)
	if m.Channels == 4 {
		return &image.RGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: rect}
	}
	out := image.NewRGBA(rect)
	n := m.Width * m.Height
	for i := 0; i < n; i++ {
		out.Pix[i*4] = m.Pix[i*3]
		out.Pix[i*4+1] = m.Pix[i*3+1]
		out.Pix[i*4+2] = m.Pix[i*3+2]
		out.Pix[i*4+3] = 255
	}
	return out
}

// Valid reports whether the buffer length matches the declared geometry.
func (m *Image) Valid() bool {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return false
	}
	if m.Channels != 3 && m.Channels != 4 {
		return false
	}
	return len(m.Pix) >= m.Width*m.Height*m.Channels
}
