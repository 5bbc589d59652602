package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bauervision/eidomap/internal/engine"
	v1 "github.com/bauervision/eidomap/internal/infrastructure/http/v1"
	"github.com/bauervision/eidomap/internal/infrastructure/http/v1/handler"
	"github.com/bauervision/eidomap/internal/source"
	"github.com/bauervision/eidomap/internal/usecase"
	"github.com/bauervision/eidomap/pkg/config"
	"github.com/bauervision/eidomap/pkg/http_server"
	"github.com/bauervision/eidomap/pkg/logger"
	"github.com/bauervision/eidomap/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				l.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	fetcher, err := source.New(source.Config{
		Kind:           cfg.Tiles.Source,
		URLTemplate:    cfg.Tiles.URLTemplate,
		UserAgent:      cfg.Tiles.UserAgent,
		Timeout:        cfg.Tiles.Timeout,
		ProviderBase:   cfg.Tiles.ProviderBase,
		StyleID:        cfg.Tiles.StyleID,
		AccessToken:    cfg.Tiles.AccessToken,
		TileSize:       cfg.Tiles.TileSize,
		LowResTileSize: cfg.Tiles.LowResTileSize,
	}, l)
	if err != nil {
		l.Fatal("failed to initialize tile source", "error", err)
	}

	eng := engine.New(engine.Config{
		MinZoom:              cfg.Engine.MinZoom,
		MaxZoom:              cfg.Engine.MaxZoom,
		HalfTiles:            cfg.Engine.HalfTiles,
		PrefetchRing:         cfg.Engine.PrefetchRing,
		MaxConcurrentFetches: cfg.Engine.MaxConcurrentFetches,
		MaxCachedTiles:       cfg.Engine.MaxCachedTiles,
		FallbackDepth:        cfg.Engine.FallbackDepth,
		DeferredTrim:         cfg.Engine.DeferredTrim,
		TrimDelay:            cfg.Engine.TrimDelay,
		LowResWhileMoving:    cfg.Engine.LowResWhileMoving,
		InteractingHold:      cfg.Engine.InteractingHold,
		VOriginBottom:        cfg.Engine.VOriginBottom,
	}, fetcher, nil, l)

	go eng.Run(ctx)
	eng.SetCenter(cfg.Engine.StartLat, cfg.Engine.StartLon, cfg.Engine.StartZoom)

	validate := validator.New()
	mapUseCase := usecase.NewMapUseCase(eng, l)
	h := handler.NewHandler(validate, mapUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router)

	l.Info("starting http server...", "address", httpServer.Addr)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	case <-ctx.Done():
		l.Info("received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	}

	l.Info("application shutdown completed")
}
