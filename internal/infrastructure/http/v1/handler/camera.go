package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setCameraRequest struct {
	Lat  float64 `json:"lat" validate:"min=-90,max=90"`
	Lon  float64 `json:"lon" validate:"min=-360,max=360"`
	Zoom int     `json:"zoom" validate:"min=0,max=23"`
}

type panRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type zoomRequest struct {
	Delta int `json:"delta" validate:"required,min=-23,max=23"`
}

// SetCamera points the camera at a position. Values the engine can clamp are
// accepted as-is; only structurally nonsensical requests are rejected.
func (h *Handler) SetCamera(c *gin.Context) {
	l := loggerFrom(c)

	var req setCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid camera request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mapUseCase.SetCamera(req.Lat, req.Lon, req.Zoom)
	h.RespondWithJSON(c, http.StatusOK, "camera set", nil)
}

// Pan moves the camera by a world pixel delta.
func (h *Handler) Pan(c *gin.Context) {
	var req panRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.mapUseCase.Pan(req.DX, req.DY)
	h.mapUseCase.MarkInteracting()
	h.RespondWithJSON(c, http.StatusOK, "camera panned", nil)
}

// Zoom steps the zoom level around the current center.
func (h *Handler) Zoom(c *gin.Context) {
	l := loggerFrom(c)

	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid zoom request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mapUseCase.Zoom(req.Delta)
	h.mapUseCase.MarkInteracting()
	h.RespondWithJSON(c, http.StatusOK, "zoom changed", nil)
}

// Status reports the engine snapshot.
func (h *Handler) Status(c *gin.Context) {
	l := loggerFrom(c)

	st, err := h.mapUseCase.Status(c.Request.Context())
	if err != nil {
		l.Error("failed to read engine status", "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "engine status", st)
}
