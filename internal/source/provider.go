package source

import (
	"context"
	"fmt"
	"image"
	"net/http"

	"github.com/bauervision/eidomap/internal/fetch"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/logger"
)

// Provider fetches tiles from a commercial style server. The URL carries a
// style identifier, an access token and a server-side tile pixel size; the
// size switches to the low-res variant per request while the viewport is
// interacting.
type Provider struct {
	base       string
	styleID    string
	token      string
	tileSize   int
	lowResSize int
	userAgent  string
	client     *http.Client
	log        logger.Logger
}

var _ fetch.Fetcher = (*Provider)(nil)

func NewProvider(cfg Config, log logger.Logger) (*Provider, error) {
	if cfg.StyleID == "" {
		return nil, fmt.Errorf("provider tile source requires a style id")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("provider tile source requires an access token")
	}
	p := &Provider{
		base:       cfg.ProviderBase,
		styleID:    cfg.StyleID,
		token:      cfg.AccessToken,
		tileSize:   cfg.TileSize,
		lowResSize: cfg.LowResTileSize,
		userAgent:  cfg.UserAgent,
		client:     newClient(cfg.Timeout),
		log:        log,
	}
	if p.tileSize != 256 && p.tileSize != 512 {
		p.tileSize = 512
	}
	if p.lowResSize != 256 && p.lowResSize != 512 {
		p.lowResSize = 256
	}
	return p, nil
}

// URL builds the style-server URL for addr at the given tile size.
func (s *Provider) URL(addr tile.Address, size int) string {
	return fmt.Sprintf("%s/%s/tiles/%d/%d/%d/%d?access_token=%s",
		s.base, s.styleID, size, addr.Zoom, addr.X, addr.Y, s.token)
}

func (s *Provider) FetchTile(ctx context.Context, addr tile.Address, opts fetch.Options) (image.Image, error) {
	size := s.tileSize
	if opts.LowRes {
		size = s.lowResSize
	}
	url := s.URL(addr, size)
	s.log.Debug("fetching tile", "addr", addr.String(), "size", size)
	return doFetch(ctx, s.client, url, s.userAgent, addr)
}
