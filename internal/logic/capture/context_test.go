package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/ScanGo/internal/hw/device"
	"github.com/cjeanneret/ScanGo/internal/hw/sensor"
	"github.com/cjeanneret/ScanGo/internal/logic/orientation"
)

func newTestContext(t *testing.T, dev device.CaptureDevice, opts Options) *Context {
	t.Helper()
	c, err := NewContext(dev, opts)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestContext_Defaults(t *testing.T) {
	c := newTestContext(t, nil, Options{})

	if c.IsEditing() {
		t.Error("IsEditing should default to false")
	}
	if !c.IsAutoScanEnabled() {
		t.Error("IsAutoScanEnabled should default to true")
	}
	if c.ImageOrientation() != orientation.Up {
		t.Errorf("ImageOrientation = %s, want up", c.ImageOrientation())
	}
	if c.HasDevice() {
		t.Error("HasDevice should be false without a device")
	}
	if c.ID().String() == "" {
		t.Error("session should have an ID")
	}
}

func TestContext_DisableAutoScan(t *testing.T) {
	c := newTestContext(t, nil, Options{DisableAutoScan: true})
	if c.IsAutoScanEnabled() {
		t.Error("auto scan should be disabled")
	}
	c.SetAutoScanEnabled(true)
	if !c.IsAutoScanEnabled() {
		t.Error("auto scan should be enabled after SetAutoScanEnabled(true)")
	}
	c.SetEditing(true)
	if !c.IsEditing() {
		t.Error("IsEditing should be true after SetEditing(true)")
	}
}

func TestContext_SingleSession(t *testing.T) {
	c := newTestContext(t, nil, Options{})

	if _, err := NewContext(nil, Options{}); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second NewContext err = %v, want ErrSessionActive", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c2, err := NewContext(nil, Options{})
	if err != nil {
		t.Fatalf("NewContext after Close: %v", err)
	}
	c2.Close()
}

func TestContext_CloseReleasesDeviceOnce(t *testing.T) {
	d := fullDevice()
	c, err := NewContext(d, Options{})
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	c.Close()
	if d.closed != 1 {
		t.Errorf("device closed %d times, want 1", d.closed)
	}
}

func TestContext_NoDeviceFocusFails(t *testing.T) {
	c := newTestContext(t, nil, Options{})
	if err := c.SetFocusPoint(device.Point{X: 0.5, Y: 0.5}); !errors.Is(err, ErrInputDeviceUnavailable) {
		t.Errorf("SetFocusPoint err = %v, want ErrInputDeviceUnavailable", err)
	}
	if err := c.ResetFocusToAuto(); !errors.Is(err, ErrInputDeviceUnavailable) {
		t.Errorf("ResetFocusToAuto err = %v, want ErrInputDeviceUnavailable", err)
	}
	if got := c.ToggleFlash(); got != FlashUnavailable {
		t.Errorf("ToggleFlash = %s, want unavailable", got)
	}
}

func TestContext_ToggleFlashEndToEnd(t *testing.T) {
	d := fullDevice()
	c := newTestContext(t, d, Options{})

	if got := c.ToggleFlash(); got != FlashOn {
		t.Fatalf("ToggleFlash = %s, want on", got)
	}
	if d.torchMode != device.TorchOn {
		t.Errorf("torch = %s, want on", d.torchMode)
	}
	if got := c.ToggleFlash(); got != FlashOff {
		t.Errorf("ToggleFlash = %s, want off", got)
	}
}

func waitOrientation(t *testing.T, c *Context, want orientation.Orientation) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.ImageOrientation() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("orientation = %s, want %s", c.ImageOrientation(), want)
}

func TestContext_RefreshOrientationWithOverride(t *testing.T) {
	c := newTestContext(t, nil, Options{
		Accelerometer:  sensor.NewStatic(sensor.Reading{X: -0.5}),
		Rotation:       sensor.FixedRotation(sensor.LandscapeRight),
		SampleInterval: time.Millisecond,
	})

	c.RefreshImageOrientation()
	waitOrientation(t, c, orientation.Left)
}

func TestContext_RefreshOrientationFromAccelerometer(t *testing.T) {
	rot := sensor.NewRotationVar(sensor.Portrait)
	c := newTestContext(t, nil, Options{
		Accelerometer:  sensor.NewStatic(sensor.Reading{X: -0.5}),
		Rotation:       rot,
		SampleInterval: time.Millisecond,
	})

	c.RefreshImageOrientation()
	waitOrientation(t, c, orientation.Right)
}

func TestContext_RefreshWithoutSensorKeepsValue(t *testing.T) {
	c := newTestContext(t, nil, Options{Accelerometer: sensor.NewUnavailable()})
	c.SetImageOrientation(orientation.Left)

	c.RefreshImageOrientation()
	time.Sleep(10 * time.Millisecond)

	if c.ImageOrientation() != orientation.Left {
		t.Errorf("orientation = %s, want left (unchanged)", c.ImageOrientation())
	}
}

// fakeIndicator records alpha changes and removal.
type fakeIndicator struct {
	mu      sync.Mutex
	alphas  []float64
	removed chan struct{}
}

func newFakeIndicator() *fakeIndicator {
	return &fakeIndicator{removed: make(chan struct{})}
}

func (f *fakeIndicator) SetAlpha(a float64) {
	f.mu.Lock()
	f.alphas = append(f.alphas, a)
	f.mu.Unlock()
}

func (f *fakeIndicator) Remove() { close(f.removed) }

func TestContext_RemoveFocusIndicatorImmediate(t *testing.T) {
	c := newTestContext(t, nil, Options{})
	ind := newFakeIndicator()

	c.RemoveFocusIndicator(ind, false)

	select {
	case <-ind.removed:
	default:
		t.Fatal("indicator should be removed synchronously")
	}
	if len(ind.alphas) != 0 {
		t.Errorf("alphas = %v, want no fade", ind.alphas)
	}
}

func TestContext_RemoveFocusIndicatorAnimated(t *testing.T) {
	c := newTestContext(t, nil, Options{
		FadeDelay:    5 * time.Millisecond,
		FadeDuration: 10 * time.Millisecond,
	})
	ind := newFakeIndicator()

	start := time.Now()
	c.RemoveFocusIndicator(ind, true)
	if time.Since(start) > 5*time.Millisecond {
		t.Error("RemoveFocusIndicator should not block")
	}

	select {
	case <-ind.removed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for removal")
	}

	ind.mu.Lock()
	defer ind.mu.Unlock()
	if len(ind.alphas) == 0 {
		t.Fatal("expected fade steps")
	}
	if last := ind.alphas[len(ind.alphas)-1]; last != 0 {
		t.Errorf("final alpha = %v, want 0", last)
	}
}

func TestContext_CloseCutsFadeShort(t *testing.T) {
	c := newTestContext(t, nil, Options{
		FadeDelay:    time.Hour,
		FadeDuration: time.Hour,
	})
	ind := newFakeIndicator()
	c.RemoveFocusIndicator(ind, true)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-ind.removed:
	case <-time.After(time.Second):
		t.Fatal("closing the context should remove a fading indicator")
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if len(ind.alphas) != 0 {
		t.Errorf("alphas = %v, want no fade after Close", ind.alphas)
	}
}

func TestContext_RemoveFocusIndicatorNil(t *testing.T) {
	c := newTestContext(t, nil, Options{})
	c.RemoveFocusIndicator(nil, true)
}

func TestContext_ConcurrentOrientationAccess(t *testing.T) {
	c := newTestContext(t, nil, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.SetImageOrientation(orientation.Orientation(i % 3))
		}(i)
		go func() {
			defer wg.Done()
			_ = c.ImageOrientation()
		}()
	}
	wg.Wait()
}
