//go:build linux && cgo

package main

import (
	"github.com/charmbracelet/log"

	"github.com/photonicat/photonicat2_slideshow/config"
	"github.com/photonicat/photonicat2_slideshow/display"
	"github.com/photonicat/photonicat2_slideshow/display/kms"
	"github.com/photonicat/photonicat2_slideshow/display/kms/hw"
)

func openKMS(cfg config.Config) (display.Platform, error) {
	dev, err := hw.Open(cfg.DRMDevice, log.Default().WithPrefix("drm"))
	if err != nil {
		return nil, err
	}
	return kms.NewPresenter(dev, cfg.FenceTimeout, log.Default().WithPrefix("kms")), nil
}
