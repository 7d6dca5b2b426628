package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/device"
	"github.com/cjeanneret/ScanGo/internal/hw/sensor"
	"github.com/cjeanneret/ScanGo/internal/logic/orientation"
)

// ErrSessionActive is returned by NewContext while another context is open.
var ErrSessionActive = errors.New("a capture session is already active")

// Only one Context may be open per process.
var active atomic.Bool

// Default timings for RemoveFocusIndicator.
const (
	DefaultFadeDelay    = 1 * time.Second
	DefaultFadeDuration = 300 * time.Millisecond
	fadeSteps           = 10
)

// FocusIndicator is a transient overlay shown where the user tapped to focus.
type FocusIndicator interface {
	SetAlpha(alpha float64)
	Remove()
}

// Options configures a Context.
type Options struct {
	Accelerometer sensor.Accelerometer  // nil: orientation is never sampled
	Rotation      sensor.RotationSource // nil: no landscape override

	Threshold      float64       // 0: orientation.DefaultThreshold
	SampleInterval time.Duration // 0: orientation.DefaultInterval

	DisableAutoScan bool

	FadeDelay    time.Duration // 0: DefaultFadeDelay
	FadeDuration time.Duration // 0: DefaultFadeDuration
}

// Context is the state shared by everything taking part in a capture
// session: the bound device, the editing and auto scan flags, and the
// orientation to apply to the captured image. All accessors are safe for
// concurrent use; the orientation is written from the sensor goroutine.
type Context struct {
	id         uuid.UUID
	dev        device.CaptureDevice
	controller *Controller
	accel      sensor.Accelerometer
	estimator  *orientation.Estimator

	editing  atomic.Bool
	autoScan atomic.Bool
	orient   atomic.Int32

	fadeDelay    time.Duration
	fadeDuration time.Duration

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewContext opens the capture session bound to dev. dev may be nil when
// the system has no camera. The context must be closed to release the
// device and allow a new session.
func NewContext(dev device.CaptureDevice, opts Options) (*Context, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}

	c := &Context{
		id:           uuid.New(),
		dev:          dev,
		controller:   NewController(dev),
		accel:        opts.Accelerometer,
		fadeDelay:    opts.FadeDelay,
		fadeDuration: opts.FadeDuration,
		done:         make(chan struct{}),
	}
	if c.fadeDelay <= 0 {
		c.fadeDelay = DefaultFadeDelay
	}
	if c.fadeDuration <= 0 {
		c.fadeDuration = DefaultFadeDuration
	}
	c.autoScan.Store(!opts.DisableAutoScan)
	c.orient.Store(int32(orientation.Up))

	c.estimator = orientation.NewEstimator(opts.Accelerometer, opts.Rotation, c,
		orientation.WithThreshold(opts.Threshold),
		orientation.WithInterval(opts.SampleInterval),
	)

	debug.Info("Capture session %s opened (device bound: %v)", c.id, dev != nil)
	return c, nil
}

// ID identifies the session in logs.
func (c *Context) ID() uuid.UUID { return c.id }

// HasDevice reports whether a capture device is bound.
func (c *Context) HasDevice() bool { return c.dev != nil }

// Metering returns the bound device's focus and exposure reporter, if the
// device has one.
func (c *Context) Metering() (device.Metering, bool) {
	m, ok := c.dev.(device.Metering)
	return m, ok
}

// IsEditing reports whether the user has left the live scan screen.
func (c *Context) IsEditing() bool { return c.editing.Load() }

func (c *Context) SetEditing(v bool) { c.editing.Store(v) }

// IsAutoScanEnabled reports whether a detected rectangle may be captured
// automatically.
func (c *Context) IsAutoScanEnabled() bool { return c.autoScan.Load() }

func (c *Context) SetAutoScanEnabled(v bool) { c.autoScan.Store(v) }

// ImageOrientation is the orientation to apply to the captured image.
// It is Up until the first orientation sample completes.
func (c *Context) ImageOrientation() orientation.Orientation {
	return orientation.Orientation(c.orient.Load())
}

// SetImageOrientation stores o. It implements orientation.Sink.
func (c *Context) SetImageOrientation(o orientation.Orientation) {
	c.orient.Store(int32(o))
}

// ToggleFlash switches the device torch. See Controller.ToggleFlash.
func (c *Context) ToggleFlash() FlashState {
	return c.controller.ToggleFlash()
}

// SetFocusPoint sets focus and exposure to the tapped point.
func (c *Context) SetFocusPoint(p device.Point) error {
	return c.controller.SetFocusPoint(p)
}

// ResetFocusToAuto restores automatic focus and exposure.
func (c *Context) ResetFocusToAuto() error {
	return c.controller.ResetFocusToAuto()
}

// RefreshImageOrientation samples the accelerometer once. It returns
// immediately; the orientation is updated when the reading arrives.
func (c *Context) RefreshImageOrientation() {
	c.estimator.Refresh()
}

// RemoveFocusIndicator removes view, after fading it out if animated.
// The animation runs in the background; the call never blocks. view must
// not wrap a nil pointer. Closing the context cuts a running fade short and
// removes the view at once.
func (c *Context) RemoveFocusIndicator(view FocusIndicator, animated bool) {
	if view == nil {
		return
	}
	if !animated {
		view.Remove()
		return
	}

	delay, step := c.fadeDelay, c.fadeDuration/fadeSteps
	go func() {
		defer view.Remove()
		if !c.sleep(delay) {
			return
		}
		for i := 1; i <= fadeSteps; i++ {
			if !c.sleep(step) {
				return
			}
			view.SetAlpha(1 - float64(i)/fadeSteps)
		}
	}()
}

// sleep waits d and reports false if the context was closed meanwhile.
func (c *Context) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.done:
		return false
	}
}

// Close switches off orientation sampling, releases the device and ends
// the session. It is safe to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.accel != nil {
			c.accel.Stop()
		}
		if c.dev != nil {
			c.closeErr = c.dev.Close()
		}
		active.Store(false)
		debug.Info("Capture session %s closed", c.id)
	})
	return c.closeErr
}
