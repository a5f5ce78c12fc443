// Package led drives the pause indicator LED on a GPIO line.
package led

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator is lit while the slideshow is paused. A nil pin makes every
// call a no-op.
type Indicator struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
	log *log.Logger
}

// Open looks up GPIO line n. A negative n, a failed host init or an unknown
// line all yield a no-op indicator.
func Open(n int, logger *log.Logger) *Indicator {
	if logger == nil {
		logger = log.Default().WithPrefix("led")
	}
	if n < 0 {
		logger.Debug("pause indicator disabled")
		return New(nil, logger)
	}
	if _, err := host.Init(); err != nil {
		logger.Warn("gpio host init failed, indicator disabled", "err", err)
		return New(nil, logger)
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if pin == nil {
		pin = gpioreg.ByName(strconv.Itoa(n))
	}
	if pin == nil {
		logger.Warn("gpio line not found, indicator disabled", "gpio", n)
		return New(nil, logger)
	}
	logger.Info("pause indicator", "pin", pin.Name())
	return New(pin, logger)
}

// New wraps pin and drives it low.
func New(pin gpio.PinOut, logger *log.Logger) *Indicator {
	i := &Indicator{pin: pin, log: logger}
	i.write(false)
	return i
}

// Set lights or clears the LED. Repeated calls with the same value do not
// touch the line.
func (i *Indicator) Set(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if on == i.on {
		return
	}
	i.on = on
	i.write(on)
}

func (i *Indicator) write(on bool) {
	if i.pin == nil {
		return
	}
	if err := i.pin.Out(gpio.Level(on)); err != nil {
		i.log.Warn("gpio write failed", "pin", i.pin.Name(), "err", err)
	}
}

func (i *Indicator) On() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

// Close drives the line low.
func (i *Indicator) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.on = false
	if i.pin == nil {
		return nil
	}
	return i.pin.Out(gpio.Low)
}
