package slideshow

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/photonicat/photonicat2_slideshow/catalog"
)

type Phase int

const (
	Display Phase = iota
	Fading
)

func (p Phase) String() string {
	switch p {
	case Display:
		return "display"
	case Fading:
		return "fading"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Command is a user request coming from a keyboard, an SDL window or the
// HTTP control endpoint.
type Command int

const (
	TogglePause Command = iota + 1
	Next
	Prev
	Quit
)

func (c Command) String() string {
	switch c {
	case TogglePause:
		return "pause"
	case Next:
		return "next"
	case Prev:
		return "prev"
	case Quit:
		return "quit"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand accepts the names produced by String.
func ParseCommand(s string) (Command, error) {
	for _, c := range []Command{TogglePause, Next, Prev, Quit} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// Screen draws one composited frame with the given fixed-slot fade scalar.
type Screen interface {
	Show(fade float32) error
}

type Timing struct {
	Display time.Duration
	Fade    time.Duration
	// SkipCut starts skip-triggered fades at full progress.
	SkipCut bool
}

// TickResult tells the loop whether a frame was produced and whether it
// may sleep before the next tick.
type TickResult struct {
	Drawn bool
	Idle  bool
}

// Machine is the DISPLAY/FADING state machine. All methods must be called
// from the loop thread.
type Machine struct {
	timing Timing
	pair   *TexturePair
	cat    *catalog.Catalog
	screen Screen
	log    *log.Logger

	phase   Phase
	elapsed time.Duration
	fade    float32
	paused  bool
	frames  uint64
}

func NewMachine(timing Timing, pair *TexturePair, cat *catalog.Catalog, screen Screen, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default().WithPrefix("slideshow")
	}
	return &Machine{
		timing: timing,
		pair:   pair,
		cat:    cat,
		screen: screen,
		log:    logger,
	}
}

// Start loads the first image and draws it.
func (m *Machine) Start() error {
	if err := m.pair.LoadInitial(); err != nil {
		return err
	}
	m.log.Info("showing", "path", m.cat.CurrentPath(), "images", m.cat.Len())
	return m.draw()
}

func (m *Machine) draw() error {
	if err := m.screen.Show(m.pair.FadeFor(m.fade)); err != nil {
		return err
	}
	m.frames++
	return nil
}

// Tick advances the machine by dt. Negative dt counts as zero.
func (m *Machine) Tick(dt time.Duration) (TickResult, error) {
	var res TickResult
	if dt < 0 {
		dt = 0
	}
	if err := m.pair.Poll(); err != nil {
		return res, err
	}

	switch m.phase {
	case Display:
		if m.paused {
			res.Idle = true
			return res, nil
		}
		m.elapsed += dt
		if m.elapsed >= m.timing.Display {
			if err := m.pair.Advance(Forward); err != nil {
				return res, err
			}
			m.enterFading(0)
			return res, nil
		}
		if !m.pair.Prefetched() && m.elapsed >= m.timing.Display/2 {
			if err := m.pair.StartPrefetch(); err != nil {
				return res, err
			}
		}
		res.Idle = true

	case Fading:
		m.elapsed += dt
		m.fade = m.fadeProgress()
		if err := m.draw(); err != nil {
			return res, err
		}
		res.Drawn = true
		if m.fade >= 1 {
			if err := m.finishFade(); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (m *Machine) fadeProgress() float32 {
	if m.timing.Fade <= 0 {
		return 1
	}
	f := float32(m.elapsed.Seconds() / m.timing.Fade.Seconds())
	if f > 1 {
		return 1
	}
	return f
}

func (m *Machine) enterFading(start time.Duration) {
	m.phase = Fading
	m.elapsed = start
	m.fade = 0
}

// finishFade swaps slot roles, then refreshes the catalog.
func (m *Machine) finishFade() error {
	m.pair.CommitSwap()
	m.phase = Display
	m.elapsed = 0
	m.fade = 0
	m.log.Info("showing", "path", m.cat.CurrentPath())
	return m.cat.Scan()
}

// Handle applies a user command. Skips arriving mid-fade are dropped.
func (m *Machine) Handle(cmd Command) error {
	switch cmd {
	case TogglePause:
		m.paused = !m.paused
		m.log.Info("pause toggled", "paused", m.paused)
	case Next, Prev:
		if m.phase == Fading {
			m.log.Debug("skip ignored during fade", "cmd", cmd)
			return nil
		}
		dir := Forward
		if cmd == Prev {
			dir = Backward
		}
		if err := m.pair.Advance(dir); err != nil {
			return err
		}
		var start time.Duration
		if m.timing.SkipCut {
			start = m.timing.Fade
		}
		m.enterFading(start)
	}
	return nil
}

// Redraw repeats the last frame, for windows that were exposed.
func (m *Machine) Redraw() error { return m.draw() }

func (m *Machine) Paused() bool { return m.paused }

func (m *Machine) Phase() Phase { return m.phase }

// Status is a point-in-time view of the slideshow for the web API.
type Status struct {
	Phase      Phase         `json:"phase"`
	Paused     bool          `json:"paused"`
	Elapsed    time.Duration `json:"elapsed"`
	Display    time.Duration `json:"display"`
	Fade       time.Duration `json:"fade"`
	Progress   float32       `json:"progress"`
	Scalar     float32       `json:"scalar"`
	Active     int           `json:"active"`
	Prefetched bool          `json:"prefetched"`
	Slots      [2]Slot       `json:"slots"`
	Images     int           `json:"images"`
	Current    int           `json:"current"`
	Broken     int           `json:"broken"`
	Frames     uint64        `json:"frames"`
}

// CurrentPath is the file in the active slot.
func (s Status) CurrentPath() string { return s.Slots[s.Active].Path }

func (m *Machine) Status() Status {
	return Status{
		Phase:      m.phase,
		Paused:     m.paused,
		Elapsed:    m.elapsed,
		Display:    m.timing.Display,
		Fade:       m.timing.Fade,
		Progress:   m.fade,
		Scalar:     m.pair.FadeFor(m.fade),
		Active:     m.pair.Active(),
		Prefetched: m.pair.Prefetched(),
		Slots:      m.pair.Slots(),
		Images:     m.cat.Len(),
		Current:    m.cat.Current(),
		Broken:     m.cat.BrokenCount(),
		Frames:     m.frames,
	}
}
