package provider

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
)

const (
	allanimeAPI       = "https://api.allanime.day/api"
	allanimeSite      = "https://allanime.day"
	allanimeReferer   = "https://allanime.to"
	allanimeThumbBase = "https://wp.youtube-anime.com/aln.youtube-anime.com/"

	allanimeSearchGQL = `query($search: SearchInput, $limit: Int, $page: Int, $translationType: VaildTranslationTypeEnumType, $countryOrigin: VaildCountryOriginEnumType) {
	shows(search: $search, limit: $limit, page: $page, translationType: $translationType, countryOrigin: $countryOrigin) {
		edges { _id name englishName nativeName thumbnail availableEpisodes __typename }
	}
}`
	allanimeEpisodesGQL = `query ($showId: String!) { show( _id: $showId ) { _id availableEpisodesDetail }}`
	allanimeSourcesGQL  = `query ($showId: String!, $translationType: VaildTranslationTypeEnumType!, $episodeString: String!) { episode( showId: $showId translationType: $translationType episodeString: $episodeString ) { episodeString sourceUrls }}`
)

// AllAnime implements the Provider interface for the AllAnime GraphQL API.
type AllAnime struct {
	client  *http.Client
	api     string
	site    string
	mode    string
	quality string
	log     zerolog.Logger
}

// NewAllAnime creates a new AllAnime provider.
func NewAllAnime(opts Options) *AllAnime {
	opts = opts.withDefaults()
	a := &AllAnime{
		client:  opts.Client,
		api:     allanimeAPI,
		site:    allanimeSite,
		mode:    opts.Mode,
		quality: opts.Quality,
		log:     opts.Logger.With().Str("provider", "allanime").Logger(),
	}
	if u := opts.baseURL("allanime", ""); u != "" {
		a.api = u + "/api"
		a.site = u
	}
	return a
}

func (a *AllAnime) Name() string { return "allanime" }

type allanimeSearchResponse struct {
	Data struct {
		Shows struct {
			Edges []struct {
				ID                string         `json:"_id"`
				Name              string         `json:"name"`
				EnglishName       string         `json:"englishName"`
				NativeName        string         `json:"nativeName"`
				Thumbnail         string         `json:"thumbnail"`
				AvailableEpisodes map[string]int `json:"availableEpisodes"`
			} `json:"edges"`
		} `json:"shows"`
	} `json:"data"`
}

type allanimeEpisodesResponse struct {
	Data struct {
		Show *struct {
			ID                      string              `json:"_id"`
			AvailableEpisodesDetail map[string][]string `json:"availableEpisodesDetail"`
		} `json:"show"`
	} `json:"data"`
}

type allanimeSourcesResponse struct {
	Data struct {
		Episode *struct {
			EpisodeString string `json:"episodeString"`
			SourceURLs    []struct {
				SourceURL  string  `json:"sourceUrl"`
				Priority   float64 `json:"priority"`
				SourceName string  `json:"sourceName"`
				Type       string  `json:"type"`
			} `json:"sourceUrls"`
		} `json:"episode"`
	} `json:"data"`
}

type allanimeLinksResponse struct {
	Links []struct {
		Link          string            `json:"link"`
		ResolutionStr string            `json:"resolutionStr"`
		HLS           bool              `json:"hls"`
		Headers       map[string]string `json:"headers"`
	} `json:"links"`
}

// Search returns shows that have episodes in the configured mode.
func (a *AllAnime) Search(ctx context.Context, query string) ([]Result, error) {
	variables := map[string]any{
		"search": map[string]any{
			"allowAdult":   false,
			"allowUnknown": false,
			"query":        query,
		},
		"limit":           40,
		"page":            1,
		"translationType": a.mode,
		"countryOrigin":   "ALL",
	}

	var resp allanimeSearchResponse
	if err := a.graphql(ctx, allanimeSearchGQL, variables, &resp); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []Result
	for _, e := range resp.Data.Shows.Edges {
		if e.ID == "" || e.Name == "" || e.AvailableEpisodes[a.mode] == 0 {
			continue
		}
		var alts []string
		for _, alt := range []string{e.EnglishName, e.NativeName} {
			if alt != "" && alt != e.Name {
				alts = append(alts, alt)
			}
		}
		results = append(results, Result{
			ID:        e.ID,
			Title:     e.Name,
			AltTitles: alts,
			Thumbnail: a.thumbnailURL(e.Thumbnail),
			Episodes:  e.AvailableEpisodes[a.mode],
		})
	}
	return results, nil
}

// ListEpisodes returns the integer-numbered episodes available in the configured mode.
func (a *AllAnime) ListEpisodes(ctx context.Context, showID string) ([]EpisodeRef, error) {
	if err := httputil.ValidateID(showID); err != nil {
		return nil, fmt.Errorf("%w: show ID: %w", media.ErrParse, err)
	}

	var resp allanimeEpisodesResponse
	if err := a.graphql(ctx, allanimeEpisodesGQL, map[string]any{"showId": showID}, &resp); err != nil {
		return nil, fmt.Errorf("listing episodes of %s: %w", showID, err)
	}
	if resp.Data.Show == nil {
		return nil, fmt.Errorf("%w: show %s", media.ErrNotFound, showID)
	}

	var episodes []EpisodeRef
	for _, label := range resp.Data.Show.AvailableEpisodesDetail[a.mode] {
		n, err := strconv.Atoi(strings.TrimSpace(label))
		if err != nil || n <= 0 {
			continue
		}
		episodes = append(episodes, EpisodeRef{Number: n, ID: showID + ":" + label})
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	return episodes, nil
}

// ExtractStream resolves "showID:episode" into a direct link, trying the
// episode's sources by descending priority.
func (a *AllAnime) ExtractStream(ctx context.Context, episodeID string) (*media.StreamSource, error) {
	showID, episode, ok := strings.Cut(episodeID, ":")
	if !ok || showID == "" || episode == "" {
		return nil, fmt.Errorf("%w: malformed episode ID %q", media.ErrParse, episodeID)
	}

	variables := map[string]any{
		"showId":          showID,
		"translationType": a.mode,
		"episodeString":   episode,
	}
	var resp allanimeSourcesResponse
	if err := a.graphql(ctx, allanimeSourcesGQL, variables, &resp); err != nil {
		return nil, fmt.Errorf("fetching sources of %s: %w", episodeID, err)
	}
	if resp.Data.Episode == nil {
		return nil, fmt.Errorf("%w: episode %s", media.ErrNotFound, episodeID)
	}

	sources := resp.Data.Episode.SourceURLs
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Priority > sources[j].Priority })

	var errs []error
	for _, src := range sources {
		if !strings.HasPrefix(src.SourceURL, "--") {
			continue
		}
		linkURL, err := a.decodeSourceURL(src.SourceURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.SourceName, err))
			continue
		}

		stream, err := a.fetchLinks(ctx, linkURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			a.log.Debug().Str("source", src.SourceName).Err(err).Msg("source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.SourceName, err))
			continue
		}
		return stream, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: episode %s: %w", media.ErrNoStream, episodeID, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: episode %s has no direct sources", media.ErrNoStream, episodeID)
}

func (a *AllAnime) fetchLinks(ctx context.Context, linkURL string) (*media.StreamSource, error) {
	var links allanimeLinksResponse
	if err := httputil.GetJSON(ctx, a.client, linkURL, map[string]string{"Referer": allanimeReferer}, &links); err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, len(links.Links))
	for _, l := range links.Links {
		label := l.ResolutionStr
		if l.HLS && label == "" {
			label = "hls"
		}
		cands = append(cands, candidate{URL: l.Link, Label: label, Headers: l.Headers})
	}

	chosen, ok := pickQuality(cands, a.quality)
	if !ok {
		return nil, fmt.Errorf("%w: no links in %s", media.ErrNoStream, linkURL)
	}

	headers := map[string]string{"Referer": allanimeReferer, "User-Agent": httputil.UserAgent}
	for k, v := range chosen.Headers {
		headers[k] = v
	}
	return &media.StreamSource{
		URL:        chosen.URL,
		Headers:    headers,
		Quality:    chosen.Label,
		Provider:   a.Name(),
		ResolvedAt: time.Now(),
	}, nil
}

func (a *AllAnime) graphql(ctx context.Context, query string, variables any, out any) error {
	vars, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}
	q := url.Values{"variables": {string(vars)}, "query": {query}}
	return httputil.GetJSON(ctx, a.client, a.api+"?"+q.Encode(), map[string]string{"Referer": allanimeReferer}, out)
}

// decodeSourceURL unmasks an obfuscated "--" source: hex pairs, each byte
// XOR 56. Clock endpoints are rewritten to their JSON form and relative
// paths are resolved against the site.
func (a *AllAnime) decodeSourceURL(masked string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(masked, "--"))
	if err != nil {
		return "", fmt.Errorf("%w: source URL: %w", media.ErrParse, err)
	}
	for i := range raw {
		raw[i] ^= 56
	}

	decoded := string(raw)
	if !strings.Contains(decoded, "/clock.json") {
		decoded = strings.Replace(decoded, "/clock", "/clock.json", 1)
	}
	if strings.HasPrefix(decoded, "/") {
		decoded = a.site + decoded
	}
	return decoded, nil
}

func (a *AllAnime) thumbnailURL(thumb string) string {
	if thumb == "" || strings.HasPrefix(thumb, "https://") {
		return thumb
	}
	if strings.HasPrefix(thumb, "http://") {
		return ""
	}
	return allanimeThumbBase + strings.TrimPrefix(thumb, "/")
}
