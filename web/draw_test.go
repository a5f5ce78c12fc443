package web

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

func TestMixInto(t *testing.T) {
	red := solid(4, 4, color.RGBA{200, 0, 0, 255})
	blue := solid(4, 4, color.RGBA{0, 0, 200, 255})
	tests := []struct {
		t    float32
		want color.RGBA
	}{
		{0, color.RGBA{200, 0, 0, 255}},
		{1, color.RGBA{0, 0, 200, 255}},
		{0.5, color.RGBA{100, 0, 100, 255}},
		{-1, color.RGBA{200, 0, 0, 255}},
		{2, color.RGBA{0, 0, 200, 255}},
	}
	for _, tt := range tests {
		frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
		mixInto(frame, red, blue, tt.t)
		if got := frame.RGBAAt(2, 2); got != tt.want {
			t.Errorf("t=%v: got %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestProgressOf(t *testing.T) {
	tests := []struct {
		name string
		st   slideshow.Status
		want float64
	}{
		{"display half", slideshow.Status{Phase: slideshow.Display, Elapsed: 30 * time.Second, Display: time.Minute}, 0.5},
		{"display over", slideshow.Status{Phase: slideshow.Display, Elapsed: 2 * time.Minute, Display: time.Minute}, 1},
		{"zero display", slideshow.Status{Phase: slideshow.Display}, 1},
		{"fading", slideshow.Status{Phase: slideshow.Fading, Progress: 0.25}, 0.25},
	}
	for _, tt := range tests {
		if got := progressOf(tt.st); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPreviewWithoutThumbnails(t *testing.T) {
	frame := Preview(slideshow.Status{}, nil, 0)
	if got := frame.RGBAAt(PreviewWidth/2, PreviewHeight/2); got != colorBlack {
		t.Errorf("center pixel %v, want black", got)
	}
}

func TestBadge(t *testing.T) {
	for _, paused := range []bool{false, true} {
		img, err := renderBadge(slideshow.Display, paused)
		if err != nil {
			t.Fatal(err)
		}
		if img.RGBAAt(badgeSize/2, badgeSize/2).A == 0 {
			t.Errorf("paused=%v: badge is empty", paused)
		}
	}
}

func TestDrawLineClipped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c := color.RGBA{255, 255, 255, 255}
	drawLine(img, -5, 5, 15, 5, c)
	for x := 0; x < 10; x++ {
		if img.RGBAAt(x, 5) != c {
			t.Fatalf("pixel %d not drawn", x)
		}
	}
}

func TestLoadGraph(t *testing.T) {
	now := time.Now()
	samples := []slideshow.LoadSample{
		{Timestamp: now, Decode: 100 * time.Millisecond},
		{Timestamp: now.Add(time.Minute), Decode: 800 * time.Millisecond},
	}
	img := solid(graphWidth, graphHeight, colorBlack)
	drawLoadGraph(img, 0, 0, graphWidth, graphHeight, samples)
	// the last sample is the maximum, so the line ends top right
	if got := img.RGBAAt(graphWidth-1, 0); got.R != 255 {
		t.Errorf("top right %v, want the slow colour", got)
	}
}

func TestBlendColors(t *testing.T) {
	tests := []struct {
		name     string
		bg, fg   color.RGBA
		expected color.RGBA
	}{
		{"opaque foreground", color.RGBA{100, 100, 100, 255}, color.RGBA{200, 50, 75, 255}, color.RGBA{200, 50, 75, 255}},
		{"transparent foreground", color.RGBA{100, 100, 100, 255}, color.RGBA{200, 50, 75, 0}, color.RGBA{100, 100, 100, 255}},
		{"alpha keeps the larger", color.RGBA{0, 0, 0, 0}, color.RGBA{10, 20, 30, 255}, color.RGBA{10, 20, 30, 255}},
	}
	for _, tt := range tests {
		if got := blendColors(tt.bg, tt.fg); got != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.expected)
		}
	}
}
