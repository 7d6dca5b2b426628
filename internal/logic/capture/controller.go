package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/device"
)

// ErrInputDeviceUnavailable is returned by focus operations when no
// capture device is bound.
var ErrInputDeviceUnavailable = errors.New("capture input device unavailable")

// FlashState is the result of a torch toggle.
type FlashState int

const (
	FlashOn FlashState = iota
	FlashOff
	FlashUnavailable
	FlashUnknown
)

func (s FlashState) String() string {
	switch s {
	case FlashOn:
		return "on"
	case FlashOff:
		return "off"
	case FlashUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// configLock holds a device's configuration lock until Release.
// Release unlocks at most once, however many times it is called.
type configLock struct {
	dev  device.CaptureDevice
	once sync.Once
}

func acquireConfiguration(dev device.CaptureDevice) (*configLock, error) {
	if err := dev.LockForConfiguration(); err != nil {
		return nil, fmt.Errorf("lock device for configuration: %w", err)
	}
	debug.Lock("locked")
	return &configLock{dev: dev}, nil
}

func (l *configLock) Release() {
	l.once.Do(func() {
		l.dev.UnlockForConfiguration()
		debug.Lock("unlocked")
	})
}

// Controller mediates every mutation of the capture device's torch,
// focus and exposure settings.
type Controller struct {
	dev device.CaptureDevice
}

// NewController creates a controller for dev. dev may be nil when the
// system has no camera.
func NewController(dev device.CaptureDevice) *Controller {
	return &Controller{dev: dev}
}

// ToggleFlash switches the torch between on and off. It never fails:
// a missing torch reports FlashUnavailable, anything else that goes wrong
// reports FlashUnknown.
func (c *Controller) ToggleFlash() FlashState {
	if c.dev == nil || !c.dev.HasTorch() {
		return FlashUnavailable
	}

	lock, err := acquireConfiguration(c.dev)
	if err != nil {
		debug.Verbose("Flash: %v", err)
		return FlashUnknown
	}
	defer lock.Release()

	var next device.TorchMode
	var state FlashState
	switch c.dev.TorchMode() {
	case device.TorchOn:
		next, state = device.TorchOff, FlashOff
	case device.TorchOff:
		next, state = device.TorchOn, FlashOn
	default:
		return FlashUnknown
	}

	if err := c.dev.SetTorchMode(next); err != nil {
		debug.Error(fmt.Errorf("set torch mode %s: %w", next, err))
		return FlashUnknown
	}
	debug.Flash(state)
	return state
}

// SetFocusPoint points focus and exposure metering at p. Focus and exposure
// are applied independently, each only if the device supports it.
func (c *Controller) SetFocusPoint(p device.Point) error {
	if c.dev == nil {
		return ErrInputDeviceUnavailable
	}

	lock, err := acquireConfiguration(c.dev)
	if err != nil {
		return err
	}
	defer lock.Release()

	if c.dev.IsFocusPointOfInterestSupported() && c.dev.IsFocusModeSupported(device.AutoFocus) {
		logSetter("focus point", c.dev.SetFocusPointOfInterest(p))
		logSetter("focus mode", c.dev.SetFocusMode(device.AutoFocus))
	} else {
		debug.Verbose("Focus: point of interest not supported, skipped")
	}

	if c.dev.IsExposurePointOfInterestSupported() && c.dev.IsExposureModeSupported(device.ContinuousAutoExposure) {
		logSetter("exposure point", c.dev.SetExposurePointOfInterest(p))
		logSetter("exposure mode", c.dev.SetExposureMode(device.ContinuousAutoExposure))
	} else {
		debug.Verbose("Exposure: point of interest not supported, skipped")
	}

	debug.Live("Focus point set to (%.3f, %.3f)", p.X, p.Y)
	return nil
}

// ResetFocusToAuto restores continuous auto focus and exposure.
func (c *Controller) ResetFocusToAuto() error {
	if c.dev == nil {
		return ErrInputDeviceUnavailable
	}

	lock, err := acquireConfiguration(c.dev)
	if err != nil {
		return err
	}
	defer lock.Release()

	if c.dev.IsFocusPointOfInterestSupported() && c.dev.IsFocusModeSupported(device.ContinuousAutoFocus) {
		logSetter("focus mode", c.dev.SetFocusMode(device.ContinuousAutoFocus))
	}

	if c.dev.IsExposurePointOfInterestSupported() && c.dev.IsExposureModeSupported(device.ContinuousAutoExposure) {
		logSetter("exposure mode", c.dev.SetExposureMode(device.ContinuousAutoExposure))
	}

	debug.Live("Focus reset to automatic")
	return nil
}

// Setter failures while the lock is held are not reported to the caller.
func logSetter(what string, err error) {
	if err != nil {
		debug.Error(fmt.Errorf("set %s: %w", what, err))
	}
}
