package decoder

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

type FitMode string

const (
	// FitContain scales to fit inside the screen and pads with black bars.
	FitContain FitMode = "contain"
	// FitStretch scales to exactly the screen size, ignoring aspect.
	FitStretch FitMode = "stretch"
	// FitNone passes decoded pixels through; the shader stretches them.
	FitNone FitMode = "none"
)

// ParseFitMode validates a fit mode name.
func ParseFitMode(s string) (FitMode, error) {
	switch m := FitMode(s); m {
	case FitContain, FitStretch, FitNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown fit mode %q", s)
}

// ScalerByName maps a config name to an x/image interpolator.
func ScalerByName(name string) (draw.Interpolator, error) {
	switch name {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "", "approx":
		return draw.ApproxBiLinear, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "catmullrom":
		return draw.CatmullRom, nil
	}
	return nil, fmt.Errorf("unknown scaler %q", name)
}

// Fit wraps a decoder and resamples its output to the screen size so
// both texture slots always hold images of the same geometry.
type Fit struct {
	Decoder Decoder
	Width   int
	Height  int
	Mode    FitMode
	Scaler  draw.Scaler
}

func (f *Fit) Decode(data []byte) (*Image, error) {
	img, err := f.Decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	if f.Mode == FitNone || f.Width <= 0 || f.Height <= 0 {
		return img, nil
	}
	if img.Width == f.Width && img.Height == f.Height {
		return img, nil
	}

	scaler := f.Scaler
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	target := dst.Bounds()
	if f.Mode == FitContain {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		target = ContainRect(img.Width, img.Height, f.Width, f.Height)
	}
	src := img.RGBA()
	scaler.Scale(dst, target, src, src.Bounds(), draw.Src, nil)
	return FromRGBA(dst), nil
}

// ContainRect returns the centered rectangle of a w×h image scaled to fit
// inside a screenW×screenH screen with its aspect ratio preserved.
func ContainRect(w, h, screenW, screenH int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rect(0, 0, screenW, screenH)
	}
	scale := math.Min(float64(screenW)/float64(w), float64(screenH)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	x := (screenW - nw) / 2
	y := (screenH - nh) / 2
	return image.Rect(x, y, x+nw, y+nh)
}
