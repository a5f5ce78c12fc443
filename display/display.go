// Package display connects the fade renderer to an output: a desktop
// window or the bare KMS plane. Every platform exposes the same frame
// cycle so the slideshow never knows which one it drives.
package display

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

// Platform owns the GL context and the surface frames are drawn into.
//
// Acquire blocks until the next frame may be rendered; on KMS that is the
// GPU wait on the previous scanout fence. Present hands the finished frame
// to the display.
type Platform interface {
	Size() (width, height int)
	Acquire() error
	Present() error
	Close() error
}

// EventSource is implemented by platforms that own an input channel,
// such as a window. Poll must not block.
type EventSource interface {
	PollEvents() (cmds []slideshow.Command, exposed bool)
}

// Drawer renders one cross-faded frame into the current surface.
type Drawer interface {
	Render(fade float32) error
}

// Screen runs the acquire, render, present cycle. It implements
// slideshow.Screen.
type Screen struct {
	platform Platform
	drawer   Drawer

	frames    atomic.Uint64
	fpsMilli  atomic.Uint64
	start     time.Time
	lastCount uint64
}

func NewScreen(p Platform, d Drawer) *Screen {
	return &Screen{platform: p, drawer: d, start: time.Now()}
}

func (s *Screen) Show(fade float32) error {
	if err := s.platform.Acquire(); err != nil {
		return fmt.Errorf("display: acquire: %w", err)
	}
	if err := s.drawer.Render(fade); err != nil {
		return err
	}
	if err := s.platform.Present(); err != nil {
		return fmt.Errorf("display: present: %w", err)
	}

	frames := s.frames.Add(1)
	if frames-s.lastCount >= 10 {
		elapsed := time.Since(s.start)
		if elapsed > 0 {
			s.fpsMilli.Store(uint64(float64(frames-s.lastCount) / elapsed.Seconds() * 1000))
		}
		s.start = time.Now()
		s.lastCount = frames
	}
	return nil
}

// Frames is the number of frames presented so far. Safe from any goroutine.
func (s *Screen) Frames() uint64 { return s.frames.Load() }

// FPS is the rate over the last ten presented frames. Safe from any
// goroutine.
func (s *Screen) FPS() float64 { return float64(s.fpsMilli.Load()) / 1000 }
