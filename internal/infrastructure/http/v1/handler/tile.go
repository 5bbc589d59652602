package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bauervision/eidomap/pkg/logger"
)

// Tile serves a tile from the engine's cache. It never fetches: tiles enter
// the cache through camera-driven streaming, and a miss here is a plain 404.
func (h *Handler) Tile(c *gin.Context) {
	l := loggerFrom(c)

	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "z should be integer"})
		return
	}

	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x should be integer"})
		return
	}

	y, err := strconv.Atoi(c.Param("y"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "y should be integer"})
		return
	}

	data, ok, err := h.mapUseCase.CachedTilePNG(c.Request.Context(), z, x, y)
	if err != nil {
		l.Error("failed to read tile", "z", z, "x", x, "y", y, "error", err)
		h.RespondWithInternalServerError(c)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not cached"})
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

func loggerFrom(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.NewNop()
}
