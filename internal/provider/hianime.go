package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"ani-tui/internal/extract"
	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
)

// HiAnime implements the Provider interface for the HiAnime site.
type HiAnime struct {
	base      string // e.g., "https://hianime.to"
	client    *http.Client
	mode      string
	quality   string
	extractor extract.Extractor
	log       zerolog.Logger
}

// NewHiAnime creates a new HiAnime provider.
func NewHiAnime(opts Options) *HiAnime {
	opts = opts.withDefaults()
	base := opts.baseURL("hianime", "https://hianime.to")
	return &HiAnime{
		base:      base,
		client:    opts.Client,
		mode:      opts.Mode,
		quality:   opts.Quality,
		extractor: extract.New(opts.Client, base+"/"),
		log:       opts.Logger.With().Str("provider", "hianime").Logger(),
	}
}

func (h *HiAnime) Name() string { return "hianime" }

// ajaxEnvelope is the JSON wrapper around HTML fragments on /ajax endpoints.
type ajaxEnvelope struct {
	Status bool   `json:"status"`
	HTML   string `json:"html"`
}

// Search returns matching shows from the first search page.
func (h *HiAnime) Search(ctx context.Context, query string) ([]Result, error) {
	doc, err := h.fetchDocument(ctx, httputil.BuildURL(h.base, url.Values{"keyword": {query}}, "search"))
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	results := parseSearchResults(doc)
	for i := range results {
		if results[i].Thumbnail != "" && httputil.ValidateURL(results[i].Thumbnail) != nil {
			results[i].Thumbnail = ""
		}
	}
	return results, nil
}

// ListEpisodes returns the episodes of a show slug such as "naruto-677".
func (h *HiAnime) ListEpisodes(ctx context.Context, showID string) ([]EpisodeRef, error) {
	if err := httputil.ValidateID(showID); err != nil {
		return nil, fmt.Errorf("%w: show ID: %w", media.ErrParse, err)
	}
	numID := extractNumericID(showID)
	if numID == "" {
		return nil, fmt.Errorf("%w: cannot extract numeric ID from %q", media.ErrParse, showID)
	}

	doc, err := h.fetchFragment(ctx, httputil.BuildURL(h.base, nil, "ajax", "v2", "episode", "list", numID))
	if err != nil {
		return nil, fmt.Errorf("listing episodes of %s: %w", showID, err)
	}
	return parseEpisodeList(doc), nil
}

// ExtractStream walks the episode's servers of the configured mode until one
// embed yields a stream.
func (h *HiAnime) ExtractStream(ctx context.Context, episodeID string) (*media.StreamSource, error) {
	if err := httputil.ValidateNumericID(episodeID); err != nil {
		return nil, fmt.Errorf("%w: episode ID: %w", media.ErrParse, err)
	}

	doc, err := h.fetchFragment(ctx, httputil.BuildURL(h.base, url.Values{"episodeId": {episodeID}}, "ajax", "v2", "episode", "servers"))
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	servers := parseServers(doc, h.mode)
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no %s servers for episode %s", media.ErrNoStream, h.mode, episodeID)
	}

	var errs []error
	for _, srv := range servers {
		stream, err := h.fromServer(ctx, srv)
		if err == nil {
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		h.log.Debug().Str("server", srv.Name).Err(err).Msg("server failed")
		errs = append(errs, fmt.Errorf("%s: %w", srv.Name, err))
	}
	return nil, fmt.Errorf("%w: episode %s: %w", media.ErrNoStream, episodeID, errors.Join(errs...))
}

func (h *HiAnime) fromServer(ctx context.Context, srv hianimeServer) (*media.StreamSource, error) {
	if err := httputil.ValidateNumericID(srv.ID); err != nil {
		return nil, fmt.Errorf("%w: server ID: %w", media.ErrParse, err)
	}

	// {"type":"iframe","link":"https://megacloud.blog/embed-2/v3/e-1/...","server":4}
	var embed struct {
		Type string `json:"type"`
		Link string `json:"link"`
	}
	sourcesURL := httputil.BuildURL(h.base, url.Values{"id": {srv.ID}}, "ajax", "v2", "episode", "sources")
	if err := httputil.GetJSON(ctx, h.client, sourcesURL, h.ajaxHeaders(), &embed); err != nil {
		return nil, fmt.Errorf("getting embed URL: %w", err)
	}
	if embed.Link == "" {
		return nil, fmt.Errorf("%w: server %s returned no embed", media.ErrNoStream, srv.Name)
	}

	stream, err := h.extractor.Extract(ctx, embed.Link, h.quality)
	if err != nil {
		return nil, err
	}
	stream.Provider = h.Name()
	if stream.ResolvedAt.IsZero() {
		stream.ResolvedAt = time.Now()
	}
	return stream, nil
}

func (h *HiAnime) ajaxHeaders() map[string]string {
	return map[string]string{
		"Referer":          h.base + "/",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// fetchDocument fetches a URL and parses it into a goquery Document.
func (h *HiAnime) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := httputil.Get(ctx, h.client, pageURL, map[string]string{"Referer": h.base + "/"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %w", media.ErrParse, err)
	}
	return doc, nil
}

// fetchFragment fetches an ajax endpoint and parses the HTML it wraps.
func (h *HiAnime) fetchFragment(ctx context.Context, ajaxURL string) (*goquery.Document, error) {
	var env ajaxEnvelope
	if err := httputil.GetJSON(ctx, h.client, ajaxURL, h.ajaxHeaders(), &env); err != nil {
		return nil, err
	}
	if env.HTML == "" {
		return nil, fmt.Errorf("%w: empty fragment from %s", media.ErrParse, ajaxURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(env.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing fragment: %w", media.ErrParse, err)
	}
	return doc, nil
}
