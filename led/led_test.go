package led

import (
	"testing"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestIndicatorFollowsPause(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO23", Num: 23, L: gpio.High}
	ind := New(pin, log.Default())
	if pin.L != gpio.Low {
		t.Fatalf("new indicator left line %v", pin.L)
	}

	steps := []struct {
		on   bool
		want gpio.Level
	}{
		{true, gpio.High},
		{true, gpio.High},
		{false, gpio.Low},
		{true, gpio.High},
	}
	for i, s := range steps {
		ind.Set(s.on)
		if pin.L != s.want {
			t.Errorf("step %d: line %v, want %v", i, pin.L, s.want)
		}
		if ind.On() != s.on {
			t.Errorf("step %d: On() = %v", i, ind.On())
		}
	}

	if err := ind.Close(); err != nil {
		t.Fatal(err)
	}
	if pin.L != gpio.Low {
		t.Errorf("line %v after Close, want Low", pin.L)
	}
}

func TestDisabledIndicator(t *testing.T) {
	ind := Open(-1, log.Default())
	ind.Set(true)
	if !ind.On() {
		t.Error("state should still be tracked")
	}
	if err := ind.Close(); err != nil {
		t.Error(err)
	}
}
