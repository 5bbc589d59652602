// Package fallback resolves provisional imagery for tiles that are not yet
// cached by cropping a cached coarser-zoom ancestor.
package fallback

import (
	"image"

	"github.com/bauervision/eidomap/internal/tile"
)

// CropRect is a normalized sub-rectangle of a tile image. U and V locate the
// top-left corner in [0, 1); W and H are the fractional extent. V flips when
// the resolver is configured for bottom-left image origins.
type CropRect struct {
	U float64
	V float64
	W float64
	H float64
}

// FullCrop covers a whole tile image.
func FullCrop() CropRect {
	return CropRect{U: 0, V: 0, W: 1, H: 1}
}

// Cache is the read surface the resolver probes. Probes count as recency
// touches, which keeps ancestors that are actively standing in for children
// warm in the cache.
type Cache interface {
	Get(tile.Address) (image.Image, bool)
}

// Resolver searches cached ancestors of a missing tile.
type Resolver struct {
	cache        Cache
	minZoom      int
	bottomOrigin bool
}

// New creates a resolver. minZoom bounds the ancestor walk; bottomOrigin
// selects the v-origin convention of the crop rectangles handed to the
// display layer.
func New(cache Cache, minZoom int, bottomOrigin bool) *Resolver {
	return &Resolver{cache: cache, minZoom: minZoom, bottomOrigin: bottomOrigin}
}

// Resolve walks ancestors of addr from depth 1 to maxDepth, stopping at the
// configured minimum zoom, and returns the first cached ancestor image with
// the crop rectangle covering addr's area within it. At depth d the ancestor
// subdivides into a 2^d grid and the crop is the (x mod 2^d, y mod 2^d) cell.
func (r *Resolver) Resolve(addr tile.Address, maxDepth int) (image.Image, CropRect, bool) {
	for d := 1; d <= maxDepth; d++ {
		if addr.Zoom-d < r.minZoom {
			break
		}

		img, ok := r.cache.Get(addr.Ancestor(d))
		if !ok {
			continue
		}

		cells := 1 << d
		size := 1 / float64(cells)
		crop := CropRect{
			U: float64(addr.X&(cells-1)) * size,
			V: float64(addr.Y&(cells-1)) * size,
			W: size,
			H: size,
		}
		if r.bottomOrigin {
			crop.V = 1 - crop.V - crop.H
		}
		return img, crop, true
	}
	return nil, CropRect{}, false
}
