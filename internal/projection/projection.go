// Package projection implements spherical Web-Mercator math: conversions
// between geographic coordinates, zoom-dependent world pixel coordinates and
// tile indices. All functions are pure and safe to call from any goroutine.
package projection

import (
	"math"

	"github.com/bauervision/eidomap/internal/tile"
)

const (
	// TileSize is the edge length of a map tile in pixels. The world at zoom z
	// is a square of TileSize * 2^z pixels.
	TileSize = 256

	// MaxLatitude is the Mercator latitude limit.
	MaxLatitude = 85.05112878

	// MaxZoom bounds the zoom so world pixel values keep usable float64
	// mantissa precision.
	MaxZoom = tile.MaxZoom
)

// GeoPoint is a geographic coordinate. Lat is in degrees within the Mercator
// range, Lon in degrees wrapped to (-180, 180].
type GeoPoint struct {
	Lat float64
	Lon float64
}

// ClampLat clamps a latitude to the Mercator range.
func ClampLat(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// WrapLon wraps a longitude to (-180, 180].
func WrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon <= 0 {
		lon += 360
	}
	return lon - 180
}

// WorldSize returns the edge length of the world in pixels at the given zoom.
func WorldSize(zoom int) float64 {
	return float64(TileSize) * float64(int64(1)<<zoom)
}

// LatLonToWorldPixel projects a geographic coordinate to world pixel
// coordinates at the given zoom. Latitude is clamped and longitude wrapped
// before projecting.
func LatLonToWorldPixel(lat, lon float64, zoom int) (x, y float64) {
	lat = ClampLat(lat)
	lon = WrapLon(lon)
	size := WorldSize(zoom)

	latRad := lat * math.Pi / 180
	x = (lon + 180) / 360 * size
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * size
	return x, y
}

// WorldPixelToLatLon is the inverse projection. The result is re-clamped and
// re-wrapped to guard against floating round-trip drift.
func WorldPixelToLatLon(x, y float64, zoom int) GeoPoint {
	size := WorldSize(zoom)

	lon := x/size*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/size)))
	lat := latRad * 180 / math.Pi

	return GeoPoint{Lat: ClampLat(lat), Lon: WrapLon(lon)}
}

// WorldPixelToTile returns the tile index containing a world pixel. The zoom
// is already baked into the pixel value.
func WorldPixelToTile(x, y float64) (tileX, tileY int) {
	return int(math.Floor(x / TileSize)), int(math.Floor(y / TileSize))
}

// TileBounds returns the north-west and south-east corners of a tile, derived
// by inverse-projecting its pixel-space rectangle.
func TileBounds(a tile.Address) (nw, se GeoPoint) {
	x0 := float64(a.X) * TileSize
	y0 := float64(a.Y) * TileSize
	nw = WorldPixelToLatLon(x0, y0, a.Zoom)
	se = WorldPixelToLatLon(x0+TileSize, y0+TileSize, a.Zoom)
	return nw, se
}
