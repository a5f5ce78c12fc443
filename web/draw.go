package web

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"time"

	svg "github.com/ajstarks/svgo"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/photonicat/photonicat2_slideshow/decoder"
	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

const (
	PreviewWidth  = 320
	PreviewHeight = 240

	footerHeight = 18
	graphWidth   = 80
	graphHeight  = 40
	badgeSize    = 24
)

var (
	colorBlack = color.RGBA{0, 0, 0, 255}
	colorWhite = color.RGBA{255, 255, 255, 255}
	colorGrey  = color.RGBA{80, 80, 80, 255}
	colorGreen = color.RGBA{60, 200, 90, 255}
	colorAmber = color.RGBA{240, 170, 40, 255}
)

// Preview draws a small CPU rendition of what is on screen: the two slot
// thumbnails mixed at the current fade, a status badge, a progress bar and
// the load latency graph.
func Preview(st slideshow.Status, samples []slideshow.LoadSample, fps float64) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, PreviewWidth, PreviewHeight))
	drawRect(frame, 0, 0, PreviewWidth, PreviewHeight, colorBlack)

	area := image.Rect(0, 0, PreviewWidth, PreviewHeight-footerHeight)
	a := fitThumb(st.Slots[0].Thumb, area)
	b := fitThumb(st.Slots[1].Thumb, area)
	mixInto(frame, a, b, st.Scalar)

	if badge, err := renderBadge(st.Phase, st.Paused); err == nil {
		compositeAt(frame, badge, PreviewWidth-badgeSize-4, 4)
	}
	drawLoadGraph(frame, 4, 4, graphWidth, graphHeight, samples)

	drawProgress(frame, 0, PreviewHeight-footerHeight, PreviewWidth, 4, progressOf(st))
	label := filepath.Base(st.CurrentPath())
	if st.CurrentPath() == "" {
		label = "-"
	}
	label = fmt.Sprintf("%d/%d %s  %.0ffps", st.Current+1, st.Images, label, fps)
	drawText(frame, label, 4, PreviewHeight-footerHeight+5, basicfont.Face7x13, colorWhite)
	return frame
}

// progressOf is how far the bar is filled: the display timer while
// showing, the raw fade while fading.
func progressOf(st slideshow.Status) float64 {
	if st.Phase == slideshow.Fading {
		return float64(st.Progress)
	}
	if st.Display <= 0 {
		return 1
	}
	return math.Min(1, float64(st.Elapsed)/float64(st.Display))
}

// fitThumb scales thumb into area keeping its aspect ratio. Missing
// thumbnails come back as a black canvas.
func fitThumb(thumb *image.RGBA, area image.Rectangle) *image.RGBA {
	canvas := image.NewRGBA(area)
	drawRect(canvas, 0, 0, area.Dx(), area.Dy(), colorBlack)
	if thumb == nil {
		return canvas
	}
	b := thumb.Bounds()
	dst := decoder.ContainRect(b.Dx(), b.Dy(), area.Dx(), area.Dy())
	draw.ApproxBiLinear.Scale(canvas, dst, thumb, b, draw.Src, nil)
	return canvas
}

// mixInto writes a*(1-t) + b*t into frame, the same blend the fragment
// shader applies between slot 0 and slot 1.
func mixInto(frame, a, b *image.RGBA, t float32) {
	t = float32(math.Max(0, math.Min(1, float64(t))))
	bounds := a.Bounds().Intersect(b.Bounds()).Intersect(frame.Bounds())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p, q := a.RGBAAt(x, y), b.RGBAAt(x, y)
			frame.SetRGBA(x, y, color.RGBA{
				R: lerp(p.R, q.R, t),
				G: lerp(p.G, q.G, t),
				B: lerp(p.B, q.B, t),
				A: 255,
			})
		}
	}
}

func lerp(a, b uint8, t float32) uint8 {
	return uint8(math.Round(float64(float32(a)*(1-t) + float32(b)*t)))
}

// badgeSVG describes the play state icon.
func badgeSVG(phase slideshow.Phase, paused bool) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(badgeSize, badgeSize)
	fill := "fill:" + hex(colorGreen)
	if phase == slideshow.Fading {
		fill = "fill:" + hex(colorAmber)
	}
	canvas.Roundrect(0, 0, badgeSize, badgeSize, 5, 5, "fill:"+hex(colorGrey))
	if paused {
		canvas.Rect(7, 6, 4, 12, "fill:white")
		canvas.Rect(13, 6, 4, 12, "fill:white")
	} else {
		canvas.Polygon([]int{8, 8, 18}, []int{6, 18, 12}, fill)
	}
	canvas.End()
	return buf.Bytes()
}

func renderBadge(phase slideshow.Phase, paused bool) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(badgeSVG(phase, paused)))
	if err != nil {
		return nil, fmt.Errorf("badge: %w", err)
	}
	icon.SetTarget(0, 0, badgeSize, badgeSize)
	img := image.NewRGBA(image.Rect(0, 0, badgeSize, badgeSize))
	scanner := rasterx.NewScannerGV(badgeSize, badgeSize, img, img.Bounds())
	dasher := rasterx.NewDasher(badgeSize, badgeSize, scanner)
	icon.Draw(dasher, 1.0)
	return img, nil
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func drawProgress(frame *image.RGBA, x, y, w, h int, progress float64) {
	gc := draw2dimg.NewGraphicContext(frame)
	gc.SetFillColor(colorGrey)
	drawRoundedRect(gc, float64(x), float64(y), float64(w), float64(h), float64(h)/2)
	gc.Fill()

	filled := float64(w) * math.Max(0, math.Min(1, progress))
	if filled < float64(h) {
		return
	}
	gc.SetFillColor(colorGreen)
	drawRoundedRect(gc, float64(x), float64(y), filled, float64(h), float64(h)/2)
	gc.Fill()
}

// drawRoundedRect traces a closed rounded rectangle path; angles are in
// radians.
func drawRoundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64) {
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.ArcTo(x+w-r, y+r, r, r, -math.Pi/2, math.Pi/2)
	gc.LineTo(x+w, y+h-r)
	gc.ArcTo(x+w-r, y+h-r, r, r, 0, math.Pi/2)
	gc.LineTo(x+r, y+h)
	gc.ArcTo(x+r, y+h-r, r, r, math.Pi/2, math.Pi/2)
	gc.LineTo(x, y+r)
	gc.ArcTo(x+r, y+r, r, r, math.Pi, math.Pi/2)
	gc.Close()
}

func drawRect(img *image.RGBA, x0, y0, width, height int, c color.RGBA) {
	for y := y0; y < y0+height; y++ {
		for x := x0; x < x0+width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// compositeAt alpha blends img over frame with its top left at (x0, y0).
func compositeAt(frame, img *image.RGBA, x0, y0 int) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			src := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			if src.A == 0 {
				continue
			}
			if src.A == 255 {
				frame.SetRGBA(x0+x, y0+y, src)
				continue
			}
			frame.SetRGBA(x0+x, y0+y, blendColors(frame.RGBAAt(x0+x, y0+y), src))
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, face font.Face, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Round()),
	}
	d.DrawString(text)
}

// fmtMillis renders d for graph labels.
func fmtMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
