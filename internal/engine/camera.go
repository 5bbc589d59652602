package engine

import (
	"math"

	"github.com/bauervision/eidomap/internal/projection"
)

// Camera is the single source of truth for where the map is looking: a world
// pixel center in the coordinate space of Zoom. Owned and mutated exclusively
// by the engine goroutine.
type Camera struct {
	CenterX float64
	CenterY float64
	Zoom    int
}

// GeoCenter returns the camera center as a geographic coordinate.
func (c Camera) GeoCenter() projection.GeoPoint {
	return projection.WorldPixelToLatLon(c.CenterX, c.CenterY, c.Zoom)
}

func (e *Engine) clampZoom(zoom int) int {
	if zoom < e.cfg.MinZoom {
		return e.cfg.MinZoom
	}
	if zoom > e.cfg.MaxZoom {
		return e.cfg.MaxZoom
	}
	return zoom
}

// setCenter repositions the camera. Camera parameters are clamped and
// wrapped, never rejected; the epoch advances exactly once per effective
// zoom-level change.
func (e *Engine) setCenter(lat, lon float64, zoom int) {
	zoom = e.clampZoom(zoom)
	if zoom != e.cam.Zoom {
		e.epoch++
	}

	x, y := projection.LatLonToWorldPixel(lat, lon, zoom)
	e.cam = Camera{CenterX: x, CenterY: y, Zoom: zoom}

	e.log.Debug("camera set",
		"lat", projection.ClampLat(lat), "lon", projection.WrapLon(lon),
		"zoom", zoom, "epoch", e.epoch)
	e.rebuild()
}

// pan shifts the camera by a pixel delta, wrapping x across the longitude
// seam and clamping y at the poles.
func (e *Engine) pan(dx, dy float64) {
	size := projection.WorldSize(e.cam.Zoom)

	x := math.Mod(e.cam.CenterX+dx, size)
	if x < 0 {
		x += size
	}
	y := math.Min(math.Max(e.cam.CenterY+dy, 0), size)

	e.cam.CenterX = x
	e.cam.CenterY = y

	e.touchInteraction()
	e.rebuild()
}

// setZoom changes zoom around the current geographic center.
func (e *Engine) setZoom(zoom int) {
	zoom = e.clampZoom(zoom)
	if zoom == e.cam.Zoom {
		return
	}
	gp := e.cam.GeoCenter()
	e.touchInteraction()
	e.setCenter(gp.Lat, gp.Lon, zoom)
}
