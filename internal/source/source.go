// Package source fetches and decodes tiles from remote tile servers. Two URL
// strategies are supported side by side: a generic {z}/{x}/{y} template and a
// commercial provider layout with style id, access token and a per-request
// server-side tile size.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	// Tile servers return png, jpeg or webp depending on style and
	// negotiation; register all three decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/bauervision/eidomap/internal/fetch"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/logger"
)

var (
	// ErrNetwork marks transport and HTTP-status failures.
	ErrNetwork = errors.New("source: network failure")

	// ErrDecode marks responses whose bytes are not a valid image.
	ErrDecode = errors.New("source: decode failure")
)

// Config parameterizes a tile source. Kind selects the strategy.
type Config struct {
	Kind        string // "template" or "provider"
	URLTemplate string
	UserAgent   string
	Timeout     time.Duration

	ProviderBase   string
	StyleID        string
	AccessToken    string
	TileSize       int
	LowResTileSize int
}

// New builds the fetcher selected by cfg.Kind.
func New(cfg Config, log logger.Logger) (fetch.Fetcher, error) {
	switch cfg.Kind {
	case "template":
		log.Info("using template tile source", "template", cfg.URLTemplate)
		return NewTemplate(cfg, log)
	case "provider":
		log.Info("using provider tile source",
			"base", cfg.ProviderBase, "style", cfg.StyleID, "tile_size", cfg.TileSize)
		return NewProvider(cfg, log)
	default:
		return nil, fmt.Errorf("unknown tile source kind: %s (supported: template, provider)", cfg.Kind)
	}
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doFetch performs the GET and decodes the body. Every failure maps to one of
// the two local error kinds; callers log and move on, nothing propagates into
// viewport logic.
func doFetch(ctx context.Context, client *http.Client, url, userAgent string, addr tile.Address) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %v: %v", ErrNetwork, addr, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "image/webp,image/png,image/*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %v: %v", ErrNetwork, addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %v: status %d", ErrNetwork, addr, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %v: %v", ErrDecode, addr, err)
	}
	return img, nil
}
