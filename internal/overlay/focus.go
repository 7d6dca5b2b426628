package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// DefaultFocusSize is the side of the focus indicator square.
const DefaultFocusSize = 75

// FocusIndicator is the square briefly shown where the user tapped to focus.
type FocusIndicator struct {
	frame image.Rectangle

	mu        sync.Mutex
	alpha     float64
	removed   chan struct{}
	closeOnce sync.Once
}

// NewFocusIndicator centres an indicator of side size on p.
func NewFocusIndicator(p image.Point, size int) *FocusIndicator {
	if size <= 0 {
		size = DefaultFocusSize
	}
	origin := p.Sub(image.Pt(size/2, size/2))
	return &FocusIndicator{
		frame:   image.Rectangle{Min: origin, Max: origin.Add(image.Pt(size, size))},
		alpha:   1,
		removed: make(chan struct{}),
	}
}

func (f *FocusIndicator) Frame() image.Rectangle { return f.frame }

// SetAlpha sets the opacity, clamped to [0, 1].
func (f *FocusIndicator) SetAlpha(a float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alpha = math.Max(0, math.Min(1, a))
}

func (f *FocusIndicator) Alpha() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alpha
}

// Remove detaches the indicator. Further calls do nothing.
func (f *FocusIndicator) Remove() {
	f.closeOnce.Do(func() { close(f.removed) })
}

// Removed is closed once the indicator has been removed.
func (f *FocusIndicator) Removed() <-chan struct{} { return f.removed }

// Draw strokes the square outline into dst unless removed.
func (f *FocusIndicator) Draw(dst draw.Image) {
	select {
	case <-f.removed:
		return
	default:
	}

	w, h := f.frame.Dx(), f.frame.Dy()
	a := uint8(math.Round(f.Alpha() * 0xff))
	if a == 0 || w < 3 || h < 3 {
		return
	}

	z := vector.NewRasterizer(w, h)
	rect(z, 0, 0, float32(w), float32(h), false)
	rect(z, 1, 1, float32(w-1), float32(h-1), true)
	buf := image.NewRGBA(image.Rect(0, 0, w, h))
	z.Draw(buf, buf.Bounds(), image.NewUniform(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: a}), image.Point{})
	draw.Draw(dst, f.frame, buf, image.Point{}, draw.Over)
}

func rect(z *vector.Rasterizer, x0, y0, x1, y1 float32, reverse bool) {
	z.MoveTo(x0, y0)
	if reverse {
		z.LineTo(x0, y1)
		z.LineTo(x1, y1)
		z.LineTo(x1, y0)
	} else {
		z.LineTo(x1, y0)
		z.LineTo(x1, y1)
		z.LineTo(x0, y1)
	}
	z.ClosePath()
}
