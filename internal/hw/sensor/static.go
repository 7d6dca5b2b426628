package sensor

import (
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
)

var errStarted = errors.New("accelerometer already started")

// Static is an accelerometer that keeps reporting the same reading.
// Used for development on a PC and in tests.
type Static struct {
	reading   Reading
	available bool

	mu   sync.Mutex
	stop chan struct{}
}

// NewStatic returns an available accelerometer reporting r.
func NewStatic(r Reading) *Static {
	return &Static{reading: r, available: true}
}

// NewUnavailable returns an accelerometer that reports no hardware.
func NewUnavailable() *Static {
	return &Static{}
}

func (s *Static) Available() bool { return s.available }

func (s *Static) Start(interval time.Duration, h Handler) error {
	if !s.available {
		return errUnavailable
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errStarted
	}
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				r := s.reading
				r.Time = now
				debug.Trace("Accelerometer (static): x=%.3f y=%.3f z=%.3f", r.X, r.Y, r.Z)
				h(r, nil)
			}
		}
	}()
	return nil
}

func (s *Static) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
