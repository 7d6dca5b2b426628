package device

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
)

// GPIOTorch is a CaptureDevice for a camera module whose illumination
// LED is switched by a GPIO line (e.g. through a MOSFET on a Raspberry Pi).
// The module has fixed focus, so it reports no focus or exposure controls.
//
// The torch mode is read back from the pin, so it reflects the hardware
// even if something else drove the line.
type GPIOTorch struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool

	lock   sync.Mutex
	mu     sync.Mutex
	locked bool
}

// NewGPIOTorch configures pin as an output and switches the LED off.
// If activeLow is true the LED lights when the line is LOW.
func NewGPIOTorch(g gpio.Driver, pin int, activeLow bool) (*GPIOTorch, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup torch pin %d: %w", pin, err)
	}
	t := &GPIOTorch{gpio: g, pin: pin, activeLow: activeLow}
	if err := g.WritePin(pin, t.levelFor(TorchOff)); err != nil {
		return nil, fmt.Errorf("switch torch off: %w", err)
	}
	debug.Verbose("Torch: GPIO pin %d (active low: %v)", pin, activeLow)
	return t, nil
}

func (t *GPIOTorch) LockForConfiguration() error {
	if !t.lock.TryLock() {
		return ErrLocked
	}
	t.mu.Lock()
	t.locked = true
	t.mu.Unlock()
	return nil
}

func (t *GPIOTorch) UnlockForConfiguration() {
	t.mu.Lock()
	wasLocked := t.locked
	t.locked = false
	t.mu.Unlock()
	if wasLocked {
		t.lock.Unlock()
	}
}

func (t *GPIOTorch) HasTorch() bool { return true }

// TorchMode reads the pin. A read failure reports TorchAuto, which
// callers treat as an indeterminate state.
func (t *GPIOTorch) TorchMode() TorchMode {
	level, err := t.gpio.ReadPin(t.pin)
	if err != nil {
		debug.Error(fmt.Errorf("read torch pin %d: %w", t.pin, err))
		return TorchAuto
	}
	if level == t.levelFor(TorchOn) {
		return TorchOn
	}
	return TorchOff
}

func (t *GPIOTorch) SetTorchMode(mode TorchMode) error {
	t.mu.Lock()
	locked := t.locked
	t.mu.Unlock()
	if !locked {
		return errNotLocked
	}
	if mode != TorchOn && mode != TorchOff {
		return fmt.Errorf("torch mode %s not supported", mode)
	}
	return t.gpio.WritePin(t.pin, t.levelFor(mode))
}

func (t *GPIOTorch) IsFocusPointOfInterestSupported() bool     { return false }
func (t *GPIOTorch) IsFocusModeSupported(FocusMode) bool       { return false }
func (t *GPIOTorch) SetFocusPointOfInterest(Point) error       { return errUnsupported }
func (t *GPIOTorch) SetFocusMode(FocusMode) error              { return errUnsupported }
func (t *GPIOTorch) IsExposurePointOfInterestSupported() bool  { return false }
func (t *GPIOTorch) IsExposureModeSupported(ExposureMode) bool { return false }
func (t *GPIOTorch) SetExposurePointOfInterest(Point) error    { return errUnsupported }
func (t *GPIOTorch) SetExposureMode(ExposureMode) error        { return errUnsupported }

// Close switches the LED off. The GPIO driver is owned by the caller.
func (t *GPIOTorch) Close() error {
	debug.Trace("Torch: closing, LED off")
	return t.gpio.WritePin(t.pin, t.levelFor(TorchOff))
}

func (t *GPIOTorch) levelFor(mode TorchMode) gpio.Level {
	on := mode == TorchOn
	if t.activeLow {
		on = !on
	}
	return gpio.Level(on)
}
