package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bauervision/eidomap/internal/infrastructure/http/v1/handler"
	"github.com/bauervision/eidomap/pkg/logger"
	"github.com/bauervision/eidomap/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, tracing bool, serviceName string) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(ginZapLogger(l))
	if tracing {
		r.Use(telemetry.GinMiddleware(serviceName))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/status", handler.Status)
	v1.GET("/tile/:z/:x/:y", handler.Tile)
	v1.POST("/camera", handler.SetCamera)
	v1.POST("/camera/pan", handler.Pan)
	v1.POST("/camera/zoom", handler.Zoom)

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
