package capture

import (
	"errors"
	"testing"

	"github.com/cjeanneret/ScanGo/internal/hw/device"
)

// recordingDevice is a CaptureDevice that records every call.
type recordingDevice struct {
	torch     bool
	torchMode device.TorchMode

	focusPOI      bool
	focusModes    map[device.FocusMode]bool
	exposurePOI   bool
	exposureModes map[device.ExposureMode]bool

	lockErr   error
	setErr    error
	locks     int
	unlocks   int
	held      bool
	mutations []string
	closed    int
}

func (d *recordingDevice) LockForConfiguration() error {
	d.locks++
	if d.lockErr != nil {
		return d.lockErr
	}
	d.held = true
	return nil
}

func (d *recordingDevice) UnlockForConfiguration() {
	d.unlocks++
	d.held = false
}

func (d *recordingDevice) record(m string) error {
	if !d.held {
		m += " (unlocked!)"
	}
	d.mutations = append(d.mutations, m)
	return d.setErr
}

func (d *recordingDevice) HasTorch() bool              { return d.torch }
func (d *recordingDevice) TorchMode() device.TorchMode { return d.torchMode }

func (d *recordingDevice) SetTorchMode(m device.TorchMode) error {
	err := d.record("torch " + m.String())
	if err == nil {
		d.torchMode = m
	}
	return err
}

func (d *recordingDevice) IsFocusPointOfInterestSupported() bool { return d.focusPOI }
func (d *recordingDevice) IsFocusModeSupported(m device.FocusMode) bool {
	return d.focusModes[m]
}
func (d *recordingDevice) SetFocusPointOfInterest(device.Point) error { return d.record("focus point") }
func (d *recordingDevice) SetFocusMode(m device.FocusMode) error {
	if m == device.AutoFocus {
		return d.record("focus auto")
	}
	return d.record("focus continuous")
}

func (d *recordingDevice) IsExposurePointOfInterestSupported() bool { return d.exposurePOI }
func (d *recordingDevice) IsExposureModeSupported(m device.ExposureMode) bool {
	return d.exposureModes[m]
}
func (d *recordingDevice) SetExposurePointOfInterest(device.Point) error {
	return d.record("exposure point")
}
func (d *recordingDevice) SetExposureMode(device.ExposureMode) error {
	return d.record("exposure continuous")
}

func (d *recordingDevice) Close() error {
	d.closed++
	return nil
}

func fullDevice() *recordingDevice {
	return &recordingDevice{
		torch:    true,
		focusPOI: true,
		focusModes: map[device.FocusMode]bool{
			device.AutoFocus:           true,
			device.ContinuousAutoFocus: true,
		},
		exposurePOI: true,
		exposureModes: map[device.ExposureMode]bool{
			device.ContinuousAutoExposure: true,
		},
	}
}

func assertBalancedLock(t *testing.T, d *recordingDevice, wantLocks int) {
	t.Helper()
	if d.locks != wantLocks {
		t.Errorf("locks = %d, want %d", d.locks, wantLocks)
	}
	wantUnlocks := wantLocks
	if d.lockErr != nil {
		wantUnlocks = 0
	}
	if d.unlocks != wantUnlocks {
		t.Errorf("unlocks = %d, want %d", d.unlocks, wantUnlocks)
	}
}

func TestToggleFlash_TransitionTable(t *testing.T) {
	cases := []struct {
		name      string
		mode      device.TorchMode
		want      FlashState
		wantMode  device.TorchMode
		mutations int
	}{
		{"on_to_off", device.TorchOn, FlashOff, device.TorchOff, 1},
		{"off_to_on", device.TorchOff, FlashOn, device.TorchOn, 1},
		{"auto_unknown", device.TorchAuto, FlashUnknown, device.TorchAuto, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := fullDevice()
			d.torchMode = tc.mode

			got := NewController(d).ToggleFlash()
			if got != tc.want {
				t.Errorf("ToggleFlash = %s, want %s", got, tc.want)
			}
			if d.torchMode != tc.wantMode {
				t.Errorf("torch mode = %s, want %s", d.torchMode, tc.wantMode)
			}
			if len(d.mutations) != tc.mutations {
				t.Errorf("mutations = %v, want %d", d.mutations, tc.mutations)
			}
			assertBalancedLock(t, d, 1)
		})
	}
}

func TestToggleFlash_Unavailable(t *testing.T) {
	if got := NewController(nil).ToggleFlash(); got != FlashUnavailable {
		t.Errorf("no device: ToggleFlash = %s, want unavailable", got)
	}

	d := fullDevice()
	d.torch = false
	if got := NewController(d).ToggleFlash(); got != FlashUnavailable {
		t.Errorf("no torch: ToggleFlash = %s, want unavailable", got)
	}
	if d.locks != 0 || len(d.mutations) != 0 {
		t.Errorf("no torch: locks=%d mutations=%v, want none", d.locks, d.mutations)
	}
}

func TestToggleFlash_LockFailure(t *testing.T) {
	d := fullDevice()
	d.lockErr = device.ErrLocked

	if got := NewController(d).ToggleFlash(); got != FlashUnknown {
		t.Errorf("ToggleFlash = %s, want unknown", got)
	}
	if len(d.mutations) != 0 {
		t.Errorf("mutations = %v, want none", d.mutations)
	}
	assertBalancedLock(t, d, 1)
}

func TestToggleFlash_SetterFailureReleasesLock(t *testing.T) {
	d := fullDevice()
	d.setErr = errors.New("i2c timeout")

	if got := NewController(d).ToggleFlash(); got != FlashUnknown {
		t.Errorf("ToggleFlash = %s, want unknown", got)
	}
	assertBalancedLock(t, d, 1)
}

func TestToggleFlash_RoundTrip(t *testing.T) {
	d := fullDevice()
	c := NewController(d)

	if got := c.ToggleFlash(); got != FlashOn {
		t.Fatalf("first toggle = %s, want on", got)
	}
	if d.torchMode != device.TorchOn {
		t.Errorf("torch mode = %s, want on", d.torchMode)
	}
	if got := c.ToggleFlash(); got != FlashOff {
		t.Errorf("second toggle = %s, want off", got)
	}
	assertBalancedLock(t, d, 2)
}

func TestSetFocusPoint_NoDevice(t *testing.T) {
	err := NewController(nil).SetFocusPoint(device.Point{X: 0.5, Y: 0.5})
	if !errors.Is(err, ErrInputDeviceUnavailable) {
		t.Errorf("err = %v, want ErrInputDeviceUnavailable", err)
	}
	if err := NewController(nil).ResetFocusToAuto(); !errors.Is(err, ErrInputDeviceUnavailable) {
		t.Errorf("reset err = %v, want ErrInputDeviceUnavailable", err)
	}
}

func TestSetFocusPoint_LockFailure(t *testing.T) {
	d := fullDevice()
	d.lockErr = device.ErrLocked

	err := NewController(d).SetFocusPoint(device.Point{X: 0.2, Y: 0.8})
	if !errors.Is(err, device.ErrLocked) {
		t.Errorf("err = %v, want wrapped ErrLocked", err)
	}
	if len(d.mutations) != 0 {
		t.Errorf("mutations = %v, want none", d.mutations)
	}
	assertBalancedLock(t, d, 1)
}

func TestSetFocusPoint_IndependentCapabilities(t *testing.T) {
	cases := []struct {
		name   string
		adjust func(d *recordingDevice)
		want   []string
	}{
		{
			name:   "both",
			adjust: func(d *recordingDevice) {},
			want:   []string{"focus point", "focus auto", "exposure point", "exposure continuous"},
		},
		{
			name:   "focus_only",
			adjust: func(d *recordingDevice) { d.exposurePOI = false },
			want:   []string{"focus point", "focus auto"},
		},
		{
			name:   "exposure_only",
			adjust: func(d *recordingDevice) { delete(d.focusModes, device.AutoFocus) },
			want:   []string{"exposure point", "exposure continuous"},
		},
		{
			name: "neither",
			adjust: func(d *recordingDevice) {
				d.focusPOI = false
				delete(d.exposureModes, device.ContinuousAutoExposure)
			},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := fullDevice()
			tc.adjust(d)

			if err := NewController(d).SetFocusPoint(device.Point{X: 0.1, Y: 0.9}); err != nil {
				t.Fatalf("SetFocusPoint: %v", err)
			}
			if len(d.mutations) != len(tc.want) {
				t.Fatalf("mutations = %v, want %v", d.mutations, tc.want)
			}
			for i := range tc.want {
				if d.mutations[i] != tc.want[i] {
					t.Errorf("mutation %d = %q, want %q", i, d.mutations[i], tc.want[i])
				}
			}
			assertBalancedLock(t, d, 1)
		})
	}
}

func TestSetFocusPoint_SetterFailureIsAbsorbed(t *testing.T) {
	d := fullDevice()
	d.setErr = errors.New("unsupported")

	if err := NewController(d).SetFocusPoint(device.Point{}); err != nil {
		t.Errorf("SetFocusPoint = %v, want nil", err)
	}
	assertBalancedLock(t, d, 1)
}

func TestResetFocusToAuto(t *testing.T) {
	d := fullDevice()
	if err := NewController(d).ResetFocusToAuto(); err != nil {
		t.Fatalf("ResetFocusToAuto: %v", err)
	}
	want := []string{"focus continuous", "exposure continuous"}
	if len(d.mutations) != len(want) {
		t.Fatalf("mutations = %v, want %v", d.mutations, want)
	}
	for i := range want {
		if d.mutations[i] != want[i] {
			t.Errorf("mutation %d = %q, want %q", i, d.mutations[i], want[i])
		}
	}
	assertBalancedLock(t, d, 1)
}

func TestResetFocusToAuto_LockFailure(t *testing.T) {
	d := fullDevice()
	d.lockErr = errors.New("busy")
	if err := NewController(d).ResetFocusToAuto(); err == nil {
		t.Error("expected lock error")
	}
	if len(d.mutations) != 0 {
		t.Errorf("mutations = %v, want none", d.mutations)
	}
}

func TestConfigLock_ReleaseOnce(t *testing.T) {
	d := fullDevice()
	lock, err := acquireConfiguration(d)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lock.Release()
	lock.Release()
	if d.unlocks != 1 {
		t.Errorf("unlocks = %d, want 1", d.unlocks)
	}
}

func TestController_WithSimulatedDevice(t *testing.T) {
	sim := device.NewSimulated(device.FullCapabilities())
	c := NewController(sim)

	if got := c.ToggleFlash(); got != FlashOn {
		t.Errorf("ToggleFlash = %s, want on", got)
	}
	if err := c.SetFocusPoint(device.Point{X: 0.25, Y: 0.75}); err != nil {
		t.Fatalf("SetFocusPoint: %v", err)
	}
	p, mode := sim.Focus()
	if p != (device.Point{X: 0.25, Y: 0.75}) || mode != device.AutoFocus {
		t.Errorf("focus = %+v/%v, want (0.25,0.75)/AutoFocus", p, mode)
	}
	ep, emode := sim.Exposure()
	if ep != (device.Point{X: 0.25, Y: 0.75}) || emode != device.ContinuousAutoExposure {
		t.Errorf("exposure = %+v/%v", ep, emode)
	}

	if err := c.ResetFocusToAuto(); err != nil {
		t.Fatalf("ResetFocusToAuto: %v", err)
	}
	if _, mode := sim.Focus(); mode != device.ContinuousAutoFocus {
		t.Errorf("focus mode = %v, want ContinuousAutoFocus", mode)
	}

	// The lock must be free again after every call.
	if err := sim.LockForConfiguration(); err != nil {
		t.Errorf("lock after operations: %v", err)
	}
	sim.UnlockForConfiguration()
}

func TestController_HeldLockOnSimulatedDevice(t *testing.T) {
	sim := device.NewSimulated(device.FullCapabilities())
	if err := sim.LockForConfiguration(); err != nil {
		t.Fatal(err)
	}
	defer sim.UnlockForConfiguration()

	c := NewController(sim)
	if got := c.ToggleFlash(); got != FlashUnknown {
		t.Errorf("ToggleFlash = %s, want unknown", got)
	}
	if err := c.SetFocusPoint(device.Point{}); !errors.Is(err, device.ErrLocked) {
		t.Errorf("SetFocusPoint err = %v, want ErrLocked", err)
	}
}
