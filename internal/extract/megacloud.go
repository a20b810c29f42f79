package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
)

const megacloudKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

var embedPrefixPattern = regexp.MustCompile(`^embed-\d+$`)

// MegaCloud extracts streams from MegaCloud embed URLs, the host HiAnime
// serves its episodes through.
type MegaCloud struct {
	client  *http.Client
	referer string // page the embed is framed by
	keysURL string
	keys    *cache.Cache
	now     func() time.Time
}

// NewMegaCloud creates a MegaCloud extractor. referer is the site that frames
// the embed, e.g. "https://hianime.to/".
func NewMegaCloud(client *http.Client, referer string) *MegaCloud {
	return &MegaCloud{
		client:  client,
		referer: referer,
		keysURL: megacloudKeysURL,
		keys:    cache.New(time.Hour, 2*time.Hour),
		now:     time.Now,
	}
}

type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []track         `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type track struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

type source struct {
	File string `json:"file"`
	Type string `json:"type"`
}

// Extract resolves an embed URL into a playable stream.
func (m *MegaCloud) Extract(ctx context.Context, embedURL, quality string) (*media.StreamSource, error) {
	if err := httputil.ValidateURL(embedURL); err != nil {
		return nil, fmt.Errorf("%w: embed URL: %w", media.ErrParse, err)
	}

	domain, prefix, sourceID, err := parseEmbedURL(embedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrParse, err)
	}

	pageURL := fmt.Sprintf("https://%s/%s/v3/e-1/%s?z=", domain, prefix, sourceID)
	page, err := httputil.GetBody(ctx, m.client, pageURL, map[string]string{"Referer": m.referer}, 0)
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}

	clientKey, err := extractClientKey(string(page))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrParse, err)
	}

	sourcesURL := fmt.Sprintf("https://%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		domain, prefix, url.QueryEscape(sourceID), url.QueryEscape(clientKey))

	var resp sourcesResponse
	err = httputil.GetJSON(ctx, m.client, sourcesURL, map[string]string{
		"Referer":          embedURL,
		"X-Requested-With": "XMLHttpRequest",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching sources: %w", err)
	}

	sources, err := m.decodeSources(ctx, resp, clientKey)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: embed %s listed no sources", media.ErrNoStream, sourceID)
	}

	chosen := sources[0]
	for _, s := range sources {
		if quality != "" && strings.Contains(s.File, quality) {
			chosen = s
			break
		}
	}

	var subtitles []media.Subtitle
	for _, t := range resp.Tracks {
		if t.Kind != "captions" || t.File == "" {
			continue
		}
		subtitles = append(subtitles, media.Subtitle{
			Language: t.Label,
			Label:    t.Label,
			URL:      t.File,
		})
	}

	origin := "https://" + domain
	return &media.StreamSource{
		URL: chosen.File,
		Headers: map[string]string{
			"Referer":    origin + "/",
			"Origin":     origin,
			"User-Agent": httputil.UserAgent,
		},
		Quality:    "auto",
		Subtitles:  subtitles,
		ResolvedAt: m.now(),
	}, nil
}

// decodeSources returns the source list, decrypting it when the embed host
// marks it encrypted.
func (m *MegaCloud) decodeSources(ctx context.Context, resp sourcesResponse, clientKey string) ([]source, error) {
	var sources []source

	if !resp.Encrypted {
		if err := json.Unmarshal(resp.Sources, &sources); err != nil {
			return nil, fmt.Errorf("%w: plaintext sources: %w", media.ErrParse, err)
		}
		return sources, nil
	}

	var encrypted string
	if err := json.Unmarshal(resp.Sources, &encrypted); err != nil {
		return nil, fmt.Errorf("%w: encrypted sources: %w", media.ErrParse, err)
	}

	megaKey, err := m.megacloudKey(ctx)
	if err != nil {
		return nil, err
	}

	plain := decryptSrc2(encrypted, clientKey, megaKey)
	if plain == "" {
		m.keys.Delete("mega")
		return nil, fmt.Errorf("%w: decryption returned nothing", media.ErrParse)
	}
	if err := json.Unmarshal([]byte(plain), &sources); err != nil {
		return nil, fmt.Errorf("%w: decrypted sources: %w", media.ErrParse, err)
	}
	return sources, nil
}

// megacloudKey returns the published decryption key, cached for an hour.
func (m *MegaCloud) megacloudKey(ctx context.Context) (string, error) {
	if v, ok := m.keys.Get("mega"); ok {
		return v.(string), nil
	}

	var keys map[string]string
	if err := httputil.GetJSON(ctx, m.client, m.keysURL, nil, &keys); err != nil {
		return "", fmt.Errorf("fetching megacloud keys: %w", err)
	}

	key, ok := keys["mega"]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: mega key missing from keys document", media.ErrParse)
	}
	m.keys.SetDefault("mega", key)
	return key, nil
}

// parseEmbedURL extracts domain, embed prefix, and source ID from an embed URL.
// Example: https://megacloud.blog/embed-2/v3/e-1/AbCdEf?k=1 -> ("megacloud.blog", "embed-2", "AbCdEf")
func parseEmbedURL(embedURL string) (domain, embedPrefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	embedPrefix = parts[0]
	if !embedPrefixPattern.MatchString(embedPrefix) {
		embedPrefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("could not extract source ID from %q", embedURL)
	}

	return u.Host, embedPrefix, sourceID, nil
}
