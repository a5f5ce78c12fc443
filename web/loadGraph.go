package web

import (
	"image"
	"image/color"
	"math"
	"time"

	"golang.org/x/image/font/basicfont"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

// Latency bands for colouring the graph.
const (
	slowLoad = 500 * time.Millisecond
	fastLoad = 150 * time.Millisecond
)

// drawLoadGraph plots the total load time of each recorded image over the
// sample window.
func drawLoadGraph(img *image.RGBA, x, y, width, height int, samples []slideshow.LoadSample) {
	if width <= 0 || height <= 0 {
		return
	}
	if len(samples) < 2 {
		drawGraphPlaceholder(img, x, y, width, height)
		return
	}

	maxLoad := samples[0].Total()
	for _, s := range samples {
		if s.Total() > maxLoad {
			maxLoad = s.Total()
		}
	}
	if maxLoad < 100*time.Millisecond {
		maxLoad = 100 * time.Millisecond
	}

	shade(img, x, y, width, height, color.RGBA{0, 0, 0, 120})

	timeRange := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	if timeRange <= 0 {
		timeRange = time.Second
	}
	for i := 1; i < len(samples); i++ {
		t1 := samples[i-1].Timestamp.Sub(samples[0].Timestamp)
		t2 := samples[i].Timestamp.Sub(samples[0].Timestamp)
		x1 := x + int(float64(width-1)*float64(t1)/float64(timeRange))
		x2 := x + int(float64(width-1)*float64(t2)/float64(timeRange))
		y1 := y + height - 1 - int(float64(height-1)*float64(samples[i-1].Total())/float64(maxLoad))
		y2 := y + height - 1 - int(float64(height-1)*float64(samples[i].Total())/float64(maxLoad))
		drawLine(img, x1, y1, x2, y2, latencyColor((samples[i-1].Total()+samples[i].Total())/2))
	}
	drawText(img, fmtMillis(maxLoad), x+2, y+1, basicfont.Face7x13, color.RGBA{200, 200, 200, 255})
}

func latencyColor(d time.Duration) color.RGBA {
	switch {
	case d > slowLoad:
		return color.RGBA{255, 100, 100, 220}
	case d > fastLoad:
		return color.RGBA{255, 255, 100, 220}
	default:
		return color.RGBA{100, 255, 100, 220}
	}
}

func drawGraphPlaceholder(img *image.RGBA, x, y, width, height int) {
	shade(img, x, y, width, height, color.RGBA{0, 0, 0, 60})
	base := y + height - 1
	for dx := 0; dx < width; dx++ {
		if image.Pt(x+dx, base).In(img.Bounds()) {
			img.SetRGBA(x+dx, base, color.RGBA{80, 80, 80, 255})
		}
	}
}

func shade(img *image.RGBA, x, y, width, height int, c color.RGBA) {
	r := image.Rect(x, y, x+width, y+height).Intersect(img.Bounds())
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			img.SetRGBA(px, py, blendColors(img.RGBAAt(px, py), c))
		}
	}
}

// drawLine is Bresenham's algorithm, clipped to the image.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, clr color.RGBA) {
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		if image.Pt(x0, y0).In(img.Bounds()) {
			img.SetRGBA(x0, y0, clr)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func blendColors(bg, fg color.RGBA) color.RGBA {
	alpha := float64(fg.A) / 255.0
	inv := 1.0 - alpha
	return color.RGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*inv),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*inv),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*inv),
		A: uint8(math.Max(float64(bg.A), float64(fg.A))),
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
