// Package tile provides the structured tile address used as cache and
// scheduler key across the engine.
package tile

import "fmt"

// Address identifies a map tile in the XYZ scheme. It is a value type and is
// compared and hashed by value, so it can be used directly as a map key.
type Address struct {
	Zoom int
	X    int
	Y    int
}

// MaxZoom bounds the tile grid. Beyond it, world pixel values lose usable
// float64 mantissa precision.
const MaxZoom = 23

// Count returns the number of tiles along one axis at the given zoom level.
func Count(zoom int) int {
	return 1 << zoom
}

// WrapX wraps an x index into [0, 2^zoom). The tile grid wraps in longitude,
// so an index one past the antimeridian comes back around.
func WrapX(x, zoom int) int {
	n := Count(zoom)
	x %= n
	if x < 0 {
		x += n
	}
	return x
}

// ClampY clamps a y index into [0, 2^zoom). Latitude does not wrap; the
// Mercator range already excludes the poles.
func ClampY(y, zoom int) int {
	n := Count(zoom)
	if y < 0 {
		return 0
	}
	if y >= n {
		return n - 1
	}
	return y
}

// At builds a normalized Address: x wrapped, y clamped to the zoom's grid.
func At(zoom, x, y int) Address {
	return Address{Zoom: zoom, X: WrapX(x, zoom), Y: ClampY(y, zoom)}
}

// Ancestor returns the address of the tile covering a at depth levels up.
// Depth 1 is the direct parent.
func (a Address) Ancestor(depth int) Address {
	return Address{Zoom: a.Zoom - depth, X: a.X >> depth, Y: a.Y >> depth}
}

// Valid reports whether the address lies on the grid of a supported zoom
// level.
func (a Address) Valid() bool {
	if a.Zoom < 0 || a.Zoom > MaxZoom {
		return false
	}
	n := Count(a.Zoom)
	return a.X >= 0 && a.X < n && a.Y >= 0 && a.Y < n
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Zoom, a.X, a.Y)
}
