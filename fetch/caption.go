package fetch

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captionHeader carries one caption line per header value.
const captionHeader = "X-Caption"

const (
	captionPadding = 10
	captionSpacing = 3
	captionShade   = 180
	captionFalloff = 16
	captionQuality = 90
)

// captionJPEG burns lines into the bottom-left corner of a JPEG over a
// dark band that fades out at its edges. The text is drawn with a bitmap
// face and scaled with the image height.
func captionJPEG(data []byte, lines []string) ([]byte, error) {
	lines = nonEmpty(lines)
	if len(lines) == 0 {
		return data, nil
	}
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("caption: decode: %w", err)
	}
	sb := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(img, img.Bounds(), src, sb.Min, draw.Src)

	scale := max(1, img.Bounds().Dy()/360)
	mask := textMask(lines)
	w, h := mask.Bounds().Dx()*scale, mask.Bounds().Dy()*scale
	box := image.Rect(0, img.Bounds().Dy()-h, w, img.Bounds().Dy())

	shade(img, box, captionFalloff*scale)

	scaled := image.NewAlpha(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	draw.DrawMask(img, box, image.White, image.Point{}, scaled, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: captionQuality}); err != nil {
		return nil, fmt.Errorf("caption: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// textMask draws lines with padding into an unscaled coverage mask.
func textMask(lines []string) *image.Alpha {
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()
	width := 0
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	height := len(lines)*lineHeight + (len(lines)-1)*captionSpacing
	mask := image.NewAlpha(image.Rect(0, 0, width+2*captionPadding, height+2*captionPadding))

	d := &font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	y := captionPadding
	for _, l := range lines {
		d.Dot = fixed.P(captionPadding, y+face.Metrics().Ascent.Round())
		d.DrawString(l)
		y += lineHeight + captionSpacing
	}
	return mask
}

// shade darkens box fully and the falloff pixels around it linearly less.
func shade(img *image.RGBA, box image.Rectangle, falloff int) {
	area := image.Rect(box.Min.X-falloff, box.Min.Y-falloff, box.Max.X+falloff, box.Max.Y+falloff).Intersect(img.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			d := max(outside(x, box.Min.X, box.Max.X), outside(y, box.Min.Y, box.Max.Y))
			if d >= falloff {
				continue
			}
			a := captionShade * (falloff - d) / falloff
			c := img.RGBAAt(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(int(c.R) * (255 - a) / 255),
				G: uint8(int(c.G) * (255 - a) / 255),
				B: uint8(int(c.B) * (255 - a) / 255),
				A: c.A,
			})
		}
	}
}

// outside is the distance of v from the half-open range [lo, hi).
func outside(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo - v
	case v >= hi:
		return v - hi + 1
	}
	return 0
}

func nonEmpty(lines []string) []string {
	var out []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
