// Package provider defines the interface for anime content providers
// and their implementations.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
)

// Result is one search hit as a provider reports it, before merging.
type Result struct {
	ID        string   // Provider show ID
	Title     string   // Title as displayed by the provider
	AltTitles []string // Other names the provider lists (English, Japanese, ...)
	Thumbnail string   // Poster URL
	Episodes  int      // Advertised episode count, 0 when unknown
}

// EpisodeRef pairs an episode number with the provider's episode ID.
type EpisodeRef struct {
	Number int
	ID     string
}

// Provider is the interface every scraping backend implements.
// Errors wrap media.ErrNetwork, media.ErrParse, media.ErrNotFound or
// media.ErrNoStream.
type Provider interface {
	// Name returns the configuration name of the provider.
	Name() string

	// Search returns matching shows for a query.
	Search(ctx context.Context, query string) ([]Result, error)

	// ListEpisodes returns the episodes of a show. A stale show ID yields media.ErrNotFound.
	ListEpisodes(ctx context.Context, showID string) ([]EpisodeRef, error)

	// ExtractStream resolves an episode into a playable source.
	ExtractStream(ctx context.Context, episodeID string) (*media.StreamSource, error)
}

// Options configures provider construction.
type Options struct {
	Client  *http.Client
	Logger  zerolog.Logger
	Quality string // best, worst, 1080, 720, 480, 360
	Mode    string // sub or dub

	// Base URL overrides, keyed by provider name. Used by the consumet
	// provider for its API instance and by tests.
	BaseURLs map[string]string

	ConsumetSource string
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = httputil.NewClient()
	}
	if o.Mode == "" {
		o.Mode = "sub"
	}
	if o.Quality == "" {
		o.Quality = "best"
	}
	return o
}

func (o Options) baseURL(name, fallback string) string {
	if u, ok := o.BaseURLs[name]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return fallback
}

type constructor func(Options) Provider

var registry = map[string]constructor{
	"allanime": func(o Options) Provider { return NewAllAnime(o) },
	"hianime":  func(o Options) Provider { return NewHiAnime(o) },
	"consumet": func(o Options) Provider { return NewConsumet(o) },
}

// Names returns the registered provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a provider by name.
func New(name string, opts Options) (Provider, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(opts.withDefaults()), nil
}

// NewAll creates the named providers in the given order.
func NewAll(names []string, opts Options) ([]Provider, error) {
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		p, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
