package source

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/bauervision/eidomap/internal/fetch"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/logger"
)

// Template fetches tiles from a URL template with {z}/{x}/{y} placeholders.
type Template struct {
	pattern   string
	userAgent string
	client    *http.Client
	log       logger.Logger
}

var _ fetch.Fetcher = (*Template)(nil)

// NewTemplate validates the template and builds the source.
func NewTemplate(cfg Config, log logger.Logger) (*Template, error) {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(cfg.URLTemplate, p) {
			return nil, fmt.Errorf("invalid url template %q: placeholder %v not found", cfg.URLTemplate, p)
		}
	}
	return &Template{
		pattern:   cfg.URLTemplate,
		userAgent: cfg.UserAgent,
		client:    newClient(cfg.Timeout),
		log:       log,
	}, nil
}

// URL substitutes addr into the template.
func (s *Template) URL(addr tile.Address) string {
	result := s.pattern
	result = strings.ReplaceAll(result, "{z}", strconv.Itoa(addr.Zoom))
	result = strings.ReplaceAll(result, "{x}", strconv.Itoa(addr.X))
	result = strings.ReplaceAll(result, "{y}", strconv.Itoa(addr.Y))
	return result
}

// FetchTile downloads and decodes addr. Template servers have a single tile
// size, so the low-res option is ignored.
func (s *Template) FetchTile(ctx context.Context, addr tile.Address, _ fetch.Options) (image.Image, error) {
	url := s.URL(addr)
	s.log.Debug("fetching tile", "addr", addr.String(), "url", url)
	return doFetch(ctx, s.client, url, s.userAgent, addr)
}
