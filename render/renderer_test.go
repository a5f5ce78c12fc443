package render

import (
	"strings"
	"testing"

	"github.com/go-gl/gl/v3.1/gles2"

	"github.com/photonicat/photonicat2_slideshow/decoder"
)

func TestPixelFormat(t *testing.T) {
	tests := []struct {
		channels int
		format   uint32
		align    int32
		wantErr  bool
	}{
		{3, gles2.RGB, 1, false},
		{4, gles2.RGBA, 4, false},
		{1, 0, 0, true},
	}
	for _, tt := range tests {
		format, align, err := pixelFormat(tt.channels)
		if (err != nil) != tt.wantErr {
			t.Errorf("pixelFormat(%d): err %v", tt.channels, err)
			continue
		}
		if format != tt.format || align != tt.align {
			t.Errorf("pixelFormat(%d) = %#x, %d; want %#x, %d", tt.channels, format, align, tt.format, tt.align)
		}
	}
}

func TestQuadMapsTopRowToTop(t *testing.T) {
	if len(quad) != quadVertices*quadStride/4 {
		t.Fatalf("quad has %d floats", len(quad))
	}
	for i := 0; i < quadVertices; i++ {
		y, v := quad[i*4+1], quad[i*4+3]
		// y=+1 (top of screen) must sample v=0 (first uploaded row)
		if (y > 0) != (v == 0) {
			t.Errorf("vertex %d: y=%v v=%v", i, y, v)
		}
	}
}

func TestShaderSourcesAreTerminated(t *testing.T) {
	for name, src := range map[string]string{"vertex": vertexShader, "fragment": fragmentShader} {
		if !strings.HasSuffix(src, "\x00") {
			t.Errorf("%s shader is not NUL terminated", name)
		}
	}
	if !strings.Contains(fragmentShader, "u_fade") {
		t.Error("fragment shader lacks the fade uniform")
	}
}

func TestClamp01(t *testing.T) {
	for in, want := range map[float32]float32{-0.5: 0, 0: 0, 0.3: 0.3, 1: 1, 2: 1} {
		if got := clamp01(in); got != want {
			t.Errorf("clamp01(%v) = %v", in, got)
		}
	}
}

func TestTexImageForRespecifiesEveryUpload(t *testing.T) {
	rgb := &decoder.Image{Pix: make([]byte, 8*6*3), Width: 8, Height: 6, Channels: 3}
	rgba := &decoder.Image{Pix: make([]byte, 8*6*4), Width: 8, Height: 6, Channels: 4}
	want := []texImage{
		{width: 8, height: 6, format: gles2.RGB, align: 1},
		{width: 8, height: 6, format: gles2.RGB, align: 1},
		{width: 8, height: 6, format: gles2.RGBA, align: 4},
		{width: 8, height: 6, format: gles2.RGBA, align: 4},
	}
	// same-size uploads in a row still describe the full image
	for i, img := range []*decoder.Image{rgb, rgb, rgba, rgba} {
		got, err := texImageFor(img)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		if got != want[i] {
			t.Errorf("upload %d: got %+v, want %+v", i, got, want[i])
		}
	}
}

func TestTexImageForRejectsBadImages(t *testing.T) {
	tests := map[string]*decoder.Image{
		"nil":       nil,
		"empty":     {},
		"short":     {Pix: make([]byte, 5), Width: 2, Height: 2, Channels: 3},
		"grayscale": {Pix: make([]byte, 4), Width: 2, Height: 2, Channels: 1},
	}
	for name, img := range tests {
		if _, err := texImageFor(img); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
