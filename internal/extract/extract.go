// Package extract resolves embed URLs into playable stream sources by
// talking directly to the embed hosts.
package extract

import (
	"context"
	"net/http"

	"ani-tui/internal/media"
)

// Extractor resolves embed URLs into playable streams.
type Extractor interface {
	Extract(ctx context.Context, embedURL, quality string) (*media.StreamSource, error)
}

// New returns the extractor for embeds framed by referer.
func New(client *http.Client, referer string) Extractor {
	return NewMegaCloud(client, referer)
}
