package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
)

// Consumet implements the Provider interface on top of a consumet API
// instance, which fronts several anime sites behind one JSON shape.
type Consumet struct {
	client  *http.Client
	apiURL  string
	source  string // consumet anime provider, e.g. "gogoanime"
	mode    string
	quality string
	log     zerolog.Logger
}

// NewConsumet creates a new Consumet provider.
func NewConsumet(opts Options) *Consumet {
	opts = opts.withDefaults()
	source := opts.ConsumetSource
	if source == "" {
		source = "gogoanime"
	}
	return &Consumet{
		client:  opts.Client,
		apiURL:  opts.baseURL("consumet", "https://api.consumet.org"),
		source:  source,
		mode:    opts.Mode,
		quality: opts.Quality,
		log:     opts.Logger.With().Str("provider", "consumet").Str("source", source).Logger(),
	}
}

func (c *Consumet) Name() string { return "consumet" }

// consumetTitle accepts both a plain string and the {romaji, english, native} object.
type consumetTitle struct {
	Primary string
	Others  []string
}

func (t *consumetTitle) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Primary = s
		return nil
	}
	var obj struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	names := []string{obj.Romaji, obj.English, obj.Native}
	for _, n := range names {
		if n == "" {
			continue
		}
		if t.Primary == "" {
			t.Primary = n
		} else if n != t.Primary {
			t.Others = append(t.Others, n)
		}
	}
	return nil
}

type consumetSearchResponse struct {
	Results []struct {
		ID            string        `json:"id"`
		Title         consumetTitle `json:"title"`
		Image         string        `json:"image"`
		SubOrDub      string        `json:"subOrDub"`
		TotalEpisodes int           `json:"totalEpisodes"`
	} `json:"results"`
}

type consumetInfoResponse struct {
	ID       string `json:"id"`
	Episodes []struct {
		ID     string  `json:"id"`
		Number float64 `json:"number"`
	} `json:"episodes"`
}

// consumetWatchResponse represents the JSON from the watch endpoint.
type consumetWatchResponse struct {
	Headers map[string]string `json:"headers"`
	Sources []struct {
		URL     string `json:"url"`
		Quality string `json:"quality"`
		IsM3U8  bool   `json:"isM3U8"`
	} `json:"sources"`
	Subtitles []struct {
		URL      string `json:"url"`
		Language string `json:"lang"`
	} `json:"subtitles"`
}

// Search returns matching shows, dropping entries of the other mode when the
// source labels them.
func (c *Consumet) Search(ctx context.Context, query string) ([]Result, error) {
	var resp consumetSearchResponse
	if err := httputil.GetJSON(ctx, c.client, httputil.BuildURL(c.apiURL, nil, "anime", c.source, query), nil, &resp); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []Result
	for _, r := range resp.Results {
		if r.ID == "" || r.Title.Primary == "" {
			continue
		}
		if r.SubOrDub != "" && !strings.EqualFold(r.SubOrDub, c.mode) {
			continue
		}
		results = append(results, Result{
			ID:        r.ID,
			Title:     r.Title.Primary,
			AltTitles: r.Title.Others,
			Thumbnail: r.Image,
			Episodes:  r.TotalEpisodes,
		})
	}
	return results, nil
}

// ListEpisodes returns the integer-numbered episodes of a show.
func (c *Consumet) ListEpisodes(ctx context.Context, showID string) ([]EpisodeRef, error) {
	if err := httputil.ValidateID(showID); err != nil {
		return nil, fmt.Errorf("%w: show ID: %w", media.ErrParse, err)
	}

	var resp consumetInfoResponse
	if err := httputil.GetJSON(ctx, c.client, httputil.BuildURL(c.apiURL, nil, "anime", c.source, "info", showID), nil, &resp); err != nil {
		return nil, fmt.Errorf("listing episodes of %s: %w", showID, err)
	}

	var episodes []EpisodeRef
	for _, e := range resp.Episodes {
		if e.ID == "" || e.Number <= 0 || e.Number != math.Trunc(e.Number) {
			continue
		}
		episodes = append(episodes, EpisodeRef{Number: int(e.Number), ID: e.ID})
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	return episodes, nil
}

// ExtractStream resolves an episode through the watch endpoint.
func (c *Consumet) ExtractStream(ctx context.Context, episodeID string) (*media.StreamSource, error) {
	if err := httputil.ValidateID(episodeID); err != nil {
		return nil, fmt.Errorf("%w: episode ID: %w", media.ErrParse, err)
	}

	var resp consumetWatchResponse
	if err := httputil.GetJSON(ctx, c.client, httputil.BuildURL(c.apiURL, nil, "anime", c.source, "watch", episodeID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching sources of %s: %w", episodeID, err)
	}

	cands := make([]candidate, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		cands = append(cands, candidate{URL: s.URL, Label: s.Quality})
	}
	chosen, ok := pickQuality(cands, c.quality)
	if !ok {
		return nil, fmt.Errorf("%w: no sources returned for %s", media.ErrNoStream, episodeID)
	}

	var subtitles []media.Subtitle
	for _, sub := range resp.Subtitles {
		if sub.URL == "" || strings.EqualFold(sub.Language, "thumbnails") {
			continue
		}
		subtitles = append(subtitles, media.Subtitle{
			Language: sub.Language,
			Label:    sub.Language,
			URL:      sub.URL,
		})
	}

	headers := map[string]string{"User-Agent": httputil.UserAgent}
	for k, v := range resp.Headers {
		headers[k] = v
	}

	return &media.StreamSource{
		URL:        chosen.URL,
		Headers:    headers,
		Quality:    chosen.Label,
		Subtitles:  subtitles,
		Provider:   c.Name(),
		ResolvedAt: time.Now(),
	}, nil
}
