package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
)

// standardGravity converts m/s² (the IIO unit) to g.
const standardGravity = 9.80665

var errUnavailable = errors.New("accelerometer not available")

// IIO reads a Linux industrial-I/O accelerometer through sysfs,
// e.g. /sys/bus/iio/devices/iio:device0.
type IIO struct {
	dir string

	mu   sync.Mutex
	stop chan struct{}
}

// NewIIO returns an accelerometer backed by the IIO device directory dir.
func NewIIO(dir string) *IIO {
	return &IIO{dir: dir}
}

// Available reports whether the device exposes a raw X axis channel.
func (a *IIO) Available() bool {
	_, err := os.Stat(filepath.Join(a.dir, "in_accel_x_raw"))
	return err == nil
}

func (a *IIO) Start(interval time.Duration, h Handler) error {
	if !a.Available() {
		return errUnavailable
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		return errStarted
	}
	stop := make(chan struct{})
	a.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				r, err := a.read()
				r.Time = now
				if err == nil {
					debug.Trace("Accelerometer (iio): x=%.3f y=%.3f z=%.3f", r.X, r.Y, r.Z)
				}
				h(r, err)
			}
		}
	}()
	return nil
}

func (a *IIO) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
}

func (a *IIO) read() (Reading, error) {
	var r Reading
	axes := []struct {
		name string
		dst  *float64
	}{
		{"x", &r.X},
		{"y", &r.Y},
		{"z", &r.Z},
	}
	for _, axis := range axes {
		raw, err := a.readFloat("in_accel_" + axis.name + "_raw")
		if err != nil {
			return Reading{}, err
		}
		scale, err := a.scale(axis.name)
		if err != nil {
			return Reading{}, err
		}
		*axis.dst = raw * scale / standardGravity
	}
	return r, nil
}

// scale prefers the per-axis scale file and falls back to the shared one.
func (a *IIO) scale(axis string) (float64, error) {
	if v, err := a.readFloat("in_accel_" + axis + "_scale"); err == nil {
		return v, nil
	}
	return a.readFloat("in_accel_scale")
}

func (a *IIO) readFloat(name string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
