// Package sdl runs the slideshow in a fullscreen desktop window with an
// OpenGL ES 2 context. The window also delivers keyboard and quit events.
package sdl

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

type Window struct {
	window  *sdl.Window
	context sdl.GLContext
	log     *log.Logger

	width, height int
	// OnResize is called from PollEvents when the drawable size changes.
	OnResize func(width, height int)
}

// Open creates the window and makes its GL context current on the calling
// thread.
func Open(title string, logger *log.Logger) (*Window, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("sdl")
	}
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("sdl: init: %w", err)
	}
	w := &Window{log: logger}
	fail := func(err error) (*Window, error) {
		w.Close()
		return nil, err
	}

	for attr, value := range map[sdl.GLattr]int{
		sdl.GL_CONTEXT_PROFILE_MASK:  sdl.GL_CONTEXT_PROFILE_ES,
		sdl.GL_CONTEXT_MAJOR_VERSION: 2,
		sdl.GL_CONTEXT_MINOR_VERSION: 0,
		sdl.GL_DOUBLEBUFFER:          1,
	} {
		if err := sdl.GLSetAttribute(attr, value); err != nil {
			return fail(fmt.Errorf("sdl: gl attribute %d: %w", attr, err))
		}
	}

	var err error
	w.window, err = sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, 0, 0,
		sdl.WINDOW_OPENGL|sdl.WINDOW_FULLSCREEN_DESKTOP)
	if err != nil {
		return fail(fmt.Errorf("sdl: create window: %w", err))
	}
	w.context, err = w.window.GLCreateContext()
	if err != nil {
		return fail(fmt.Errorf("sdl: create gl context: %w", err))
	}
	if err := w.window.GLMakeCurrent(w.context); err != nil {
		return fail(fmt.Errorf("sdl: make current: %w", err))
	}
	if err := sdl.GLSetSwapInterval(1); err != nil {
		w.log.Warn("vsync unavailable", "err", err)
	}
	if _, err := sdl.ShowCursor(sdl.DISABLE); err != nil {
		w.log.Debug("cannot hide cursor", "err", err)
	}

	dw, dh := w.window.GLGetDrawableSize()
	w.width, w.height = int(dw), int(dh)
	w.log.Info("window ready", "width", w.width, "height", w.height)
	return w, nil
}

func (w *Window) Size() (int, int) { return w.width, w.height }

// Acquire has nothing to wait for; the swap interval paces the loop.
func (w *Window) Acquire() error { return nil }

func (w *Window) Present() error {
	w.window.GLSwap()
	return nil
}

// PollEvents drains the SDL queue without blocking.
func (w *Window) PollEvents() (cmds []slideshow.Command, exposed bool) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			cmds = append(cmds, slideshow.Quit)
		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			if cmd, ok := commandForKey(e.Keysym.Sym); ok {
				cmds = append(cmds, cmd)
			}
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_EXPOSED:
				exposed = true
			case sdl.WINDOWEVENT_CLOSE:
				cmds = append(cmds, slideshow.Quit)
			case sdl.WINDOWEVENT_SIZE_CHANGED:
				dw, dh := w.window.GLGetDrawableSize()
				w.width, w.height = int(dw), int(dh)
				if w.OnResize != nil {
					w.OnResize(w.width, w.height)
				}
				exposed = true
			}
		}
	}
	return cmds, exposed
}

func commandForKey(sym sdl.Keycode) (slideshow.Command, bool) {
	switch sym {
	case sdl.K_SPACE:
		return slideshow.TogglePause, true
	case sdl.K_LEFT:
		return slideshow.Prev, true
	case sdl.K_RIGHT:
		return slideshow.Next, true
	case sdl.K_ESCAPE, sdl.K_q:
		return slideshow.Quit, true
	}
	return 0, false
}

func (w *Window) Close() error {
	if w.context != nil {
		sdl.GLDeleteContext(w.context)
		w.context = nil
	}
	var err error
	if w.window != nil {
		err = w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
	return err
}
