package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/bauervision/eidomap/internal/engine"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/logger"
)

// MapUseCase exposes the engine to the transport layer. Every call marshals
// through the engine's own goroutine; the use case holds no state.
type MapUseCase struct {
	engine *engine.Engine
	logger logger.Logger
}

func NewMapUseCase(e *engine.Engine, l logger.Logger) *MapUseCase {
	return &MapUseCase{
		engine: e,
		logger: l,
	}
}

// CachedTilePNG returns the cached tile at z/x/y encoded as PNG. The second
// return is false when the tile is not cached.
func (uc *MapUseCase) CachedTilePNG(ctx context.Context, z, x, y int) ([]byte, bool, error) {
	addr := tile.Address{Zoom: z, X: x, Y: y}
	if !addr.Valid() {
		return nil, false, fmt.Errorf("invalid tile address %s", addr)
	}

	img, ok, err := uc.engine.CachedTile(ctx, addr)
	if err != nil {
		uc.logger.Error("cache lookup failed", "addr", addr.String(), "error", err)
		return nil, false, err
	}
	if !ok {
		uc.logger.Debug("tile not cached", "addr", addr.String())
		return nil, false, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		uc.logger.Error("failed to encode tile", "addr", addr.String(), "error", err)
		return nil, false, fmt.Errorf("encoding tile %s: %w", addr, err)
	}
	return buf.Bytes(), true, nil
}

// SetCamera points the camera at a geographic position. Out-of-range values
// are clamped by the engine.
func (uc *MapUseCase) SetCamera(lat, lon float64, zoom int) {
	uc.logger.Debug("set camera", "lat", lat, "lon", lon, "zoom", zoom)
	uc.engine.SetCenter(lat, lon, zoom)
}

// Pan moves the camera by a world pixel delta.
func (uc *MapUseCase) Pan(dx, dy float64) {
	uc.logger.Debug("pan camera", "dx", dx, "dy", dy)
	uc.engine.Pan(dx, dy)
}

// Zoom steps the zoom level by delta around the current center.
func (uc *MapUseCase) Zoom(delta int) {
	uc.logger.Debug("zoom camera", "delta", delta)
	uc.engine.ZoomBy(delta)
}

// MarkInteracting signals active user interaction to the engine.
func (uc *MapUseCase) MarkInteracting() {
	uc.engine.MarkInteracting()
}

// Status reports the engine's current snapshot.
func (uc *MapUseCase) Status(ctx context.Context) (engine.Status, error) {
	return uc.engine.Status(ctx)
}
