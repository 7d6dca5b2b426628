package orientation

import (
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/sensor"
)

// Orientation is the orientation applied to a captured image.
type Orientation int

const (
	Up Orientation = iota
	Left
	Right
)

func (o Orientation) String() string {
	switch o {
	case Up:
		return "up"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "invalid"
	}
}

const (
	// DefaultThreshold is the minimum |x| acceleration (in g) classified
	// as landscape. Higher values favour portrait.
	DefaultThreshold = 0.35

	// DefaultInterval is the sampling interval. Only one sample is used,
	// so it is kept short to get a result immediately.
	DefaultInterval = 10 * time.Millisecond
)

// Classify maps the X axis acceleration to an orientation.
// Readings between the thresholds resolve to Up: upside-down use is rare
// and an upside-down scan is worse than a misclassified one.
func Classify(x, threshold float64) Orientation {
	switch {
	case x >= threshold:
		return Left
	case x <= -threshold:
		return Right
	default:
		return Up
	}
}

// ApplyRotationOverride lets a landscape rotation reported by the system
// win over the accelerometer. The mapping is inverted (landscape left
// gives Right) because the two sources disagree on handedness.
// Portrait and flat rotations are ignored: only the accelerometer works
// when portrait lock is enabled.
func ApplyRotationOverride(o Orientation, r sensor.Rotation) Orientation {
	switch r {
	case sensor.LandscapeLeft:
		return Right
	case sensor.LandscapeRight:
		return Left
	default:
		return o
	}
}

// Sink receives estimated orientations.
type Sink interface {
	SetImageOrientation(o Orientation)
}

// Estimator takes one-shot accelerometer samples and classifies them.
type Estimator struct {
	accel     sensor.Accelerometer
	rotation  sensor.RotationSource
	sink      Sink
	threshold float64
	interval  time.Duration
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(e *Estimator) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.interval = d
		}
	}
}

// NewEstimator creates an estimator writing its results to sink.
// rotation may be nil, in which case no override is applied.
func NewEstimator(accel sensor.Accelerometer, rotation sensor.RotationSource, sink Sink, opts ...Option) *Estimator {
	e := &Estimator{
		accel:     accel,
		rotation:  rotation,
		sink:      sink,
		threshold: DefaultThreshold,
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh starts a one-shot sample and returns immediately. The result is
// written to the sink from the sensor goroutine once the first valid
// reading arrives. If the sensor is missing or never delivers, the sink is
// never called.
func (e *Estimator) Refresh() {
	if e.accel == nil || !e.accel.Available() {
		debug.Verbose("Orientation: accelerometer unavailable, keeping previous value")
		return
	}

	var once sync.Once
	err := e.accel.Start(e.interval, func(r sensor.Reading, err error) {
		if err != nil {
			debug.Trace("Orientation: sample error: %v", err)
			return
		}
		once.Do(func() {
			raw := Classify(r.X, e.threshold)
			e.accel.Stop()

			final := raw
			if e.rotation != nil {
				final = ApplyRotationOverride(raw, e.rotation.Rotation())
			}
			debug.Orientation(r.X, raw, final)
			e.sink.SetImageOrientation(final)
		})
	})
	if err != nil {
		debug.Verbose("Orientation: start accelerometer: %v", err)
	}
}
