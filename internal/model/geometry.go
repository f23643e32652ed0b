package model

import (
	"math"

	"github.com/paulmach/orb"
)

// Drawing metrics in scene units.
const (
	PenWidth       = 1.0
	SelPenWidth    = 3.0
	Radius         = 5.0
	BoxWidth       = 100.0
	BoxHeight      = 60.0
	BoxInset       = 12.0
	CircleDiameter = BoxHeight / 2
	TextMargin     = 2.5
	RasterX        = 0.125 * BoxWidth
	RasterY        = 0.125 * BoxHeight
	CellWidth      = 1.25 * BoxWidth
	CellHeight     = 1.25 * BoxHeight
)

// Rastered snaps p to the nearest raster point.
func Rastered(p orb.Point) orb.Point {
	return orb.Point{
		math.Floor(p[0]/RasterX+0.5) * RasterX,
		math.Floor(p[1]/RasterY+0.5) * RasterY,
	}
}

// ToCellPos returns the top-left corner of the layout cell containing p.
func ToCellPos(p orb.Point) orb.Point {
	return orb.Point{
		CellWidth * math.Floor(p[0]/CellWidth),
		CellHeight * math.Floor(p[1]/CellHeight),
	}
}

// Add returns a + b.
func Add(a, b orb.Point) orb.Point { return orb.Point{a[0] + b[0], a[1] + b[1]} }

// Sub returns a - b.
func Sub(a, b orb.Point) orb.Point { return orb.Point{a[0] - b[0], a[1] - b[1]} }

// ManhattanLength is |x| + |y|.
func ManhattanLength(p orb.Point) float64 { return math.Abs(p[0]) + math.Abs(p[1]) }

// Translate returns a copy of pts moved by d.
func Translate(pts []orb.Point, d orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = Add(p, d)
	}
	return out
}

// CenteredBox is a w by h rectangle centred on c.
func CenteredBox(c orb.Point, w, h float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{c[0] - w/2, c[1] - h/2},
		Max: orb.Point{c[0] + w/2, c[1] + h/2},
	}
}

// Rect is a w by h rectangle with its top-left corner at p.
func Rect(p orb.Point, w, h float64) orb.Bound {
	return orb.Bound{Min: p, Max: orb.Point{p[0] + w, p[1] + h}}
}
