package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
)

// CornerPosition identifies a vertex of a quadrilateral.
type CornerPosition int

const (
	TopLeft CornerPosition = iota
	TopRight
	BottomRight
	BottomLeft
)

// Positions lists every corner in clockwise order from the top left.
var Positions = [4]CornerPosition{TopLeft, TopRight, BottomRight, BottomLeft}

var positionNames = [4]string{"topLeft", "topRight", "bottomRight", "bottomLeft"}

func (p CornerPosition) String() string {
	if p < TopLeft || p > BottomLeft {
		return "invalid"
	}
	return positionNames[p]
}

// ParseCornerPosition parses the names produced by CornerPosition.String.
func ParseCornerPosition(s string) (CornerPosition, error) {
	for i, name := range positionNames {
		if name == s {
			return CornerPosition(i), nil
		}
	}
	return 0, fmt.Errorf("unknown corner position %q", s)
}

// CornerView is the draggable circular handle drawn on one corner of a
// detected document boundary. While highlighted it shows an image,
// typically a magnified crop under the user's finger.
type CornerView struct {
	position  CornerPosition
	lineWidth float64
	stroke    color.Color

	mu           sync.Mutex
	frame        image.Rectangle
	highlighted  bool
	image        image.Image
	needsDisplay bool
}

// CornerOption configures a CornerView.
type CornerOption func(*CornerView)

// WithLineWidth sets the circle stroke width (default 1).
func WithLineWidth(w float64) CornerOption {
	return func(v *CornerView) {
		if w > 0 {
			v.lineWidth = w
		}
	}
}

// NewCornerView creates a corner view for position laid out in frame.
func NewCornerView(frame image.Rectangle, position CornerPosition, opts ...CornerOption) *CornerView {
	v := &CornerView{
		position:     position,
		lineWidth:    1,
		stroke:       color.White,
		frame:        frame.Canon(),
		needsDisplay: true,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Position returns the corner this view marks. It never changes.
func (v *CornerView) Position() CornerPosition { return v.position }

// Frame returns the view's frame in its parent's coordinates.
func (v *CornerView) Frame() image.Rectangle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// Layout moves or resizes the view. The circle follows on the next Draw.
func (v *CornerView) Layout(frame image.Rectangle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	frame = frame.Canon()
	if frame.Size() != v.frame.Size() {
		v.needsDisplay = true
	}
	v.frame = frame
}

// Radius is the clipping radius of the view: half its current width.
func (v *CornerView) Radius() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return float64(v.frame.Dx()) / 2
}

// IsHighlighted reports whether the view currently shows its image.
func (v *CornerView) IsHighlighted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.highlighted
}

// HighlightImage returns the image shown while highlighted, or nil.
func (v *CornerView) HighlightImage() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.image
}

// NeedsDisplay reports whether a redraw was requested since the last Draw.
func (v *CornerView) NeedsDisplay() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.needsDisplay
}

// Highlight shows img on top of the circle from the next Draw on.
func (v *CornerView) Highlight(img image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlighted = true
	v.image = img
	v.needsDisplay = true
}

// Reset drops the highlight image and returns to the plain circle.
func (v *CornerView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlighted = false
	v.image = nil
	v.needsDisplay = true
}

// Draw paints the view into dst at its frame.
func (v *CornerView) Draw(dst draw.Image) {
	frame := v.Frame()
	draw.Draw(dst, frame, v.Render(), image.Point{}, draw.Over)
}

// Render paints the view into a new transparent image the size of its
// frame: a circle inscribed in the bounds inset by the line width, with a
// clear fill, then the highlight image scaled to the bounds and clipped to
// the view's round shape.
func (v *CornerView) Render() *image.RGBA {
	v.mu.Lock()
	frame, img, lw, stroke := v.frame, v.image, v.lineWidth, v.stroke
	v.needsDisplay = false
	v.mu.Unlock()

	w, h := frame.Dx(), frame.Dy()
	buf := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return buf
	}

	cx, cy := float32(w)/2, float32(h)/2
	rx, ry := float32(w)/2-float32(lw), float32(h)/2-float32(lw)
	half := float32(lw) / 2

	ring := vector.NewRasterizer(w, h)
	ellipse(ring, cx, cy, rx+half, ry+half, false)
	if rx > half && ry > half {
		ellipse(ring, cx, cy, rx-half, ry-half, true)
	}
	ring.Draw(buf, buf.Bounds(), image.NewUniform(stroke), image.Point{})

	if img == nil {
		return buf
	}

	// Clip to the view's round bounds, radius = width / 2.
	clip := vector.NewRasterizer(w, h)
	ellipse(clip, cx, cy, float32(w)/2, float32(w)/2, false)
	mask := image.NewAlpha(buf.Bounds())
	clip.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	scaled := imaging.Resize(img, w, h, imaging.Linear)
	draw.DrawMask(buf, buf.Bounds(), scaled, image.Point{}, mask, image.Point{}, draw.Over)
	return buf
}

const ellipseSegments = 96

// ellipse adds a closed elliptical path to z. Paths added with opposite
// winding cancel out, which is how the ring's hole is cut.
func ellipse(z *vector.Rasterizer, cx, cy, rx, ry float32, reverse bool) {
	for i := 0; i <= ellipseSegments; i++ {
		t := 2 * math.Pi * float64(i) / ellipseSegments
		if reverse {
			t = -t
		}
		x := cx + rx*float32(math.Cos(t))
		y := cy + ry*float32(math.Sin(t))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}
