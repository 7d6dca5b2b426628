package sensor

import (
	"fmt"
	"strings"
	"time"
)

// Reading is one accelerometer sample in units of g along the device axes.
type Reading struct {
	X, Y, Z float64
	Time    time.Time
}

// Handler receives accelerometer samples. It is called on the sensor's
// own goroutine, never on the caller's.
type Handler func(r Reading, err error)

// Accelerometer is the abstract accelerometer used for orientation.
type Accelerometer interface {
	// Available reports whether the sensor exists.
	Available() bool
	// Start begins delivering samples to h every interval until Stop.
	Start(interval time.Duration, h Handler) error
	// Stop ends delivery. It is safe to call from inside the handler
	// and more than once.
	Stop()
}

// Rotation is the coarse device rotation reported by the system.
type Rotation int

const (
	RotationUnknown Rotation = iota
	Portrait
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
	FaceUp
	FaceDown
)

var rotationNames = map[Rotation]string{
	RotationUnknown:    "unknown",
	Portrait:           "portrait",
	PortraitUpsideDown: "portrait_upside_down",
	LandscapeLeft:      "landscape_left",
	LandscapeRight:     "landscape_right",
	FaceUp:             "face_up",
	FaceDown:           "face_down",
}

func (r Rotation) String() string {
	if name, ok := rotationNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRotation parses the snake_case rotation names used in config files
// and the control API. An empty string is RotationUnknown.
func ParseRotation(s string) (Rotation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RotationUnknown, nil
	}
	for r, name := range rotationNames {
		if name == s {
			return r, nil
		}
	}
	return RotationUnknown, fmt.Errorf("unknown rotation %q", s)
}

// RotationSource reports the current discrete device rotation.
type RotationSource interface {
	Rotation() Rotation
}
