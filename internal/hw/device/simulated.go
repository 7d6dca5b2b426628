package device

import (
	"sync"

	"github.com/cjeanneret/ScanGo/internal/debug"
)

// Capabilities lists what a Simulated device supports.
type Capabilities struct {
	Torch                   bool
	FocusPointOfInterest    bool
	FocusModes              []FocusMode
	ExposurePointOfInterest bool
	ExposureModes           []ExposureMode
}

// FullCapabilities is a device with a torch and every focus/exposure control.
func FullCapabilities() Capabilities {
	return Capabilities{
		Torch:                   true,
		FocusPointOfInterest:    true,
		FocusModes:              []FocusMode{FocusLocked, AutoFocus, ContinuousAutoFocus},
		ExposurePointOfInterest: true,
		ExposureModes:           []ExposureMode{ExposureLocked, AutoExpose, ContinuousAutoExposure},
	}
}

// Simulated is an in-memory CaptureDevice used for development without
// camera hardware. Setters fail unless the configuration lock is held.
type Simulated struct {
	caps Capabilities
	lock sync.Mutex

	mu            sync.Mutex
	locked        bool
	torch         TorchMode
	focusPoint    Point
	focusMode     FocusMode
	exposurePoint Point
	exposureMode  ExposureMode
}

// NewSimulated creates a simulated device with the given capabilities.
// Focus and exposure start in their continuous modes, centred.
func NewSimulated(caps Capabilities) *Simulated {
	debug.Info("Using SIMULATED capture device")
	return &Simulated{
		caps:          caps,
		focusPoint:    Point{X: 0.5, Y: 0.5},
		focusMode:     ContinuousAutoFocus,
		exposurePoint: Point{X: 0.5, Y: 0.5},
		exposureMode:  ContinuousAutoExposure,
	}
}

func (s *Simulated) LockForConfiguration() error {
	if !s.lock.TryLock() {
		return ErrLocked
	}
	s.mu.Lock()
	s.locked = true
	s.mu.Unlock()
	return nil
}

func (s *Simulated) UnlockForConfiguration() {
	s.mu.Lock()
	wasLocked := s.locked
	s.locked = false
	s.mu.Unlock()
	if wasLocked {
		s.lock.Unlock()
	}
}

func (s *Simulated) HasTorch() bool { return s.caps.Torch }

func (s *Simulated) TorchMode() TorchMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torch
}

func (s *Simulated) SetTorchMode(mode TorchMode) error {
	return s.mutate(func() { s.torch = mode })
}

func (s *Simulated) IsFocusPointOfInterestSupported() bool { return s.caps.FocusPointOfInterest }

func (s *Simulated) IsFocusModeSupported(mode FocusMode) bool {
	for _, m := range s.caps.FocusModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *Simulated) SetFocusPointOfInterest(p Point) error {
	return s.mutate(func() { s.focusPoint = p })
}

func (s *Simulated) SetFocusMode(mode FocusMode) error {
	return s.mutate(func() { s.focusMode = mode })
}

func (s *Simulated) IsExposurePointOfInterestSupported() bool {
	return s.caps.ExposurePointOfInterest
}

func (s *Simulated) IsExposureModeSupported(mode ExposureMode) bool {
	for _, m := range s.caps.ExposureModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *Simulated) SetExposurePointOfInterest(p Point) error {
	return s.mutate(func() { s.exposurePoint = p })
}

func (s *Simulated) SetExposureMode(mode ExposureMode) error {
	return s.mutate(func() { s.exposureMode = mode })
}

// Focus returns the current focus point and mode.
func (s *Simulated) Focus() (Point, FocusMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focusPoint, s.focusMode
}

// Exposure returns the current exposure point and mode.
func (s *Simulated) Exposure() (Point, ExposureMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposurePoint, s.exposureMode
}

func (s *Simulated) Close() error {
	debug.Trace("Simulated device closed")
	return nil
}

func (s *Simulated) mutate(apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return errNotLocked
	}
	apply()
	return nil
}
