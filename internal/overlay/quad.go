package overlay

import "image"

// Quadrilateral is a detected document boundary in view coordinates.
type Quadrilateral struct {
	TopLeft     image.Point
	TopRight    image.Point
	BottomRight image.Point
	BottomLeft  image.Point
}

// Corner returns the vertex at p.
func (q Quadrilateral) Corner(p CornerPosition) image.Point {
	switch p {
	case TopRight:
		return q.TopRight
	case BottomRight:
		return q.BottomRight
	case BottomLeft:
		return q.BottomLeft
	default:
		return q.TopLeft
	}
}

// CornerFrame is the square of side size centred on the vertex at p.
func (q Quadrilateral) CornerFrame(p CornerPosition, size int) image.Rectangle {
	c := q.Corner(p)
	origin := c.Sub(image.Pt(size/2, size/2))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(size, size))}
}

// NewCornerViews creates one view per vertex, in Positions order.
func NewCornerViews(q Quadrilateral, size int, opts ...CornerOption) [4]*CornerView {
	var views [4]*CornerView
	for i, p := range Positions {
		views[i] = NewCornerView(q.CornerFrame(p, size), p, opts...)
	}
	return views
}

// LayoutCorners moves each view back onto its vertex of q.
func LayoutCorners(views [4]*CornerView, q Quadrilateral, size int) {
	for _, v := range views {
		if v != nil {
			v.Layout(q.CornerFrame(v.Position(), size))
		}
	}
}
