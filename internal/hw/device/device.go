package device

import "errors"

// ErrLocked is returned by LockForConfiguration when another caller
// already holds the configuration lock.
var ErrLocked = errors.New("device configuration is locked")

var (
	errNotLocked   = errors.New("device configuration is not locked")
	errUnsupported = errors.New("control not supported by device")
)

// TorchMode is the hardware state of the continuous illumination LED.
type TorchMode int

const (
	TorchOff TorchMode = iota
	TorchOn
	TorchAuto
)

func (m TorchMode) String() string {
	switch m {
	case TorchOff:
		return "off"
	case TorchOn:
		return "on"
	case TorchAuto:
		return "auto"
	default:
		return "invalid"
	}
}

// FocusMode selects how the lens focuses.
type FocusMode int

const (
	FocusLocked FocusMode = iota
	AutoFocus
	ContinuousAutoFocus
)

func (m FocusMode) String() string {
	switch m {
	case FocusLocked:
		return "locked"
	case AutoFocus:
		return "auto"
	case ContinuousAutoFocus:
		return "continuous_auto"
	default:
		return "invalid"
	}
}

// ExposureMode selects how exposure is metered.
type ExposureMode int

const (
	ExposureLocked ExposureMode = iota
	AutoExpose
	ContinuousAutoExposure
	ExposureCustom
)

func (m ExposureMode) String() string {
	switch m {
	case ExposureLocked:
		return "locked"
	case AutoExpose:
		return "auto"
	case ContinuousAutoExposure:
		return "continuous_auto"
	case ExposureCustom:
		return "custom"
	default:
		return "invalid"
	}
}

// Point is a normalized coordinate on the camera's field of view.
// (0,0) is the top left corner, (1,1) the bottom right.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CaptureDevice is the high-level interface to the physical camera
// controls. Every setter must be called between LockForConfiguration
// and UnlockForConfiguration.
type CaptureDevice interface {
	// LockForConfiguration acquires exclusive access to the settings.
	// It does not block; a held lock yields an error.
	LockForConfiguration() error
	UnlockForConfiguration()

	HasTorch() bool
	TorchMode() TorchMode
	SetTorchMode(mode TorchMode) error

	IsFocusPointOfInterestSupported() bool
	IsFocusModeSupported(mode FocusMode) bool
	SetFocusPointOfInterest(p Point) error
	SetFocusMode(mode FocusMode) error

	IsExposurePointOfInterestSupported() bool
	IsExposureModeSupported(mode ExposureMode) bool
	SetExposurePointOfInterest(p Point) error
	SetExposureMode(mode ExposureMode) error

	// Close releases the device handle.
	Close() error
}

// Metering is implemented by devices that can report their current focus
// and exposure settings.
type Metering interface {
	Focus() (Point, FocusMode)
	Exposure() (Point, ExposureMode)
}
