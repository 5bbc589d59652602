package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Engine    Engine    `envPrefix:"ENGINE_"`
		Tiles     Tiles     `envPrefix:"TILES_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"eidomap-engine"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}

	// Engine holds the streaming and cache parameters of the map engine.
	Engine struct {
		MinZoom              int           `env:"MIN_ZOOM" envDefault:"3"`
		MaxZoom              int           `env:"MAX_ZOOM" envDefault:"19"`
		HalfTiles            int           `env:"HALF_TILES" envDefault:"2"`
		PrefetchRing         bool          `env:"PREFETCH_RING" envDefault:"true"`
		MaxConcurrentFetches int           `env:"MAX_CONCURRENT_FETCHES" envDefault:"8"`
		MaxCachedTiles       int           `env:"MAX_CACHED_TILES" envDefault:"512"`
		FallbackDepth        int           `env:"FALLBACK_DEPTH" envDefault:"4"`
		DeferredTrim         bool          `env:"DEFERRED_TRIM" envDefault:"true"`
		TrimDelay            time.Duration `env:"TRIM_DELAY" envDefault:"450ms"`
		LowResWhileMoving    bool          `env:"LOW_RES_WHILE_MOVING" envDefault:"false"`
		InteractingHold      time.Duration `env:"INTERACTING_HOLD" envDefault:"600ms"`
		VOriginBottom        bool          `env:"V_ORIGIN_BOTTOM" envDefault:"false"`
		StartLat             float64       `env:"START_LAT" envDefault:"38.8895"`
		StartLon             float64       `env:"START_LON" envDefault:"-77.0353"`
		StartZoom            int           `env:"START_ZOOM" envDefault:"12"`
	}

	// Tiles selects and parameterizes the upstream tile source.
	Tiles struct {
		Source         string        `env:"SOURCE" envDefault:"template"`
		URLTemplate    string        `env:"URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		UserAgent      string        `env:"USER_AGENT" envDefault:"EidoMap/1.0 (https://github.com/bauervision/eidomap)"`
		Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
		ProviderBase   string        `env:"PROVIDER_BASE" envDefault:"https://api.mapbox.com/styles/v1"`
		StyleID        string        `env:"STYLE_ID" envDefault:"mapbox/dark-v11"`
		AccessToken    string        `env:"ACCESS_TOKEN" envDefault:""`
		TileSize       int           `env:"TILE_SIZE" envDefault:"512"`
		LowResTileSize int           `env:"LOW_RES_TILE_SIZE" envDefault:"256"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
