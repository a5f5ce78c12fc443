//go:build !linux || !cgo

package main

import (
	"errors"

	"github.com/photonicat/photonicat2_slideshow/config"
	"github.com/photonicat/photonicat2_slideshow/display"
)

func openKMS(config.Config) (display.Platform, error) {
	return nil, errors.New("kms platform needs linux and cgo, use PLATFORM=sdl")
}
