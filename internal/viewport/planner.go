// Package viewport computes the set of tiles a camera position needs.
package viewport

import (
	"github.com/bauervision/eidomap/internal/projection"
	"github.com/bauervision/eidomap/internal/tile"
)

// Compute returns the addresses needed for a camera centered at the given
// world pixel at zoom. The result is a square of radius halfTiles around the
// center tile, one ring wider when prefetch is on. X wraps across the
// longitude seam, y is clamped at the poles, and duplicates produced by
// wrapping at low zooms are dropped. Order is row-major and deterministic.
func Compute(centerX, centerY float64, zoom, halfTiles int, prefetch bool) []tile.Address {
	cx, cy := projection.WorldPixelToTile(centerX, centerY)

	r := halfTiles
	if prefetch {
		r++
	}

	side := 2*r + 1
	needed := make([]tile.Address, 0, side*side)
	seen := make(map[tile.Address]struct{}, side*side)

	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			a := tile.At(zoom, cx+dx, cy+dy)
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			needed = append(needed, a)
		}
	}
	return needed
}
