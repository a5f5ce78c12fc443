// Package input turns key presses from an evdev device into slideshow
// commands.
package input

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	evdev "github.com/holoplot/go-evdev"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

const queueSize = 16

// CommandFor maps a key press to a command. Releases and autorepeat are
// ignored.
func CommandFor(ev *evdev.InputEvent) (slideshow.Command, bool) {
	if ev.Type != evdev.EV_KEY || ev.Value != 1 {
		return 0, false
	}
	switch ev.Code {
	case evdev.KEY_SPACE, evdev.KEY_PLAYPAUSE:
		return slideshow.TogglePause, true
	case evdev.KEY_LEFT:
		return slideshow.Prev, true
	case evdev.KEY_RIGHT, evdev.KEY_POWER:
		return slideshow.Next, true
	case evdev.KEY_ESC, evdev.KEY_Q:
		return slideshow.Quit, true
	}
	return 0, false
}

type eventSource interface {
	ReadOne() (*evdev.InputEvent, error)
}

// Reader reads one device on its own goroutine and queues commands for
// the loop.
type Reader struct {
	src    eventSource
	dev    *evdev.InputDevice
	out    chan slideshow.Command
	closed atomic.Bool
	log    *log.Logger
}

// Open opens device, given as a /dev/input path or a device name such as
// "rk805 pwrkey". With grab set, other readers stop seeing its events.
func Open(device string, grab bool, logger *log.Logger) (*Reader, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("input")
	}
	path, err := resolve(device)
	if err != nil {
		return nil, err
	}
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: open %s: %w", path, err)
	}
	if grab {
		if err := dev.Grab(); err != nil {
			logger.Warn("failed to grab device", "path", path, "err", err)
		}
	}
	name, _ := dev.Name()
	logger.Info("using input device", "path", path, "name", name)

	r := newReader(dev, logger)
	r.dev = dev
	return r, nil
}

func resolve(device string) (string, error) {
	if strings.HasPrefix(device, "/") {
		return device, nil
	}
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("input: list devices: %w", err)
	}
	for _, p := range paths {
		if p.Name == device {
			return p.Path, nil
		}
	}
	return "", fmt.Errorf("input: no device named %q", device)
}

func newReader(src eventSource, logger *log.Logger) *Reader {
	return &Reader{
		src: src,
		out: make(chan slideshow.Command, queueSize),
		log: logger,
	}
}

// Commands is drained by the loop once per iteration.
func (r *Reader) Commands() <-chan slideshow.Command { return r.out }

// Run reads events until Close. Start it on its own goroutine.
func (r *Reader) Run() {
	defer close(r.out)
	for !r.closed.Load() {
		ev, err := r.src.ReadOne()
		if err != nil {
			if r.closed.Load() || errors.Is(err, errReaderDone) {
				return
			}
			r.log.Warn("read error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		cmd, ok := CommandFor(ev)
		if !ok {
			continue
		}
		r.log.Debug("key", "code", evdev.CodeName(ev.Type, ev.Code), "cmd", cmd)
		select {
		case r.out <- cmd:
		default:
			r.log.Warn("command queue full, dropping", "cmd", cmd)
		}
	}
}

// errReaderDone lets a source end Run without a device to close.
var errReaderDone = errors.New("input: source exhausted")

func (r *Reader) Close() error {
	r.closed.Store(true)
	if r.dev == nil {
		return nil
	}
	r.dev.Ungrab()
	return r.dev.Close()
}

// Drain returns every queued command without blocking.
func Drain(ch <-chan slideshow.Command) []slideshow.Command {
	var cmds []slideshow.Command
	for {
		select {
		case cmd, ok := <-ch:
			if !ok {
				return cmds
			}
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}
