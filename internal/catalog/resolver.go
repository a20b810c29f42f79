// Package catalog turns provider search results and episode lists into
// canonical shows and episodes, fanning out to every configured provider.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"ani-tui/internal/media"
	"ani-tui/internal/provider"
)

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

// DefaultTimeout bounds each provider call when no timeout is configured.
const DefaultTimeout = 8 * time.Second

// Resolver resolves queries into shows and shows into episodes. It keeps
// every show and episode list it produced, keyed by canonical show ID.
type Resolver struct {
	providers []provider.Provider
	timeout   time.Duration
	log       zerolog.Logger

	mu       sync.RWMutex
	shows    map[string]media.Show
	episodes map[string][]media.Episode
}

// NewResolver creates a resolver over providers, in priority order.
func NewResolver(providers []provider.Provider, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		providers: providers,
		timeout:   timeout,
		log:       log.With().Str("component", "catalog").Logger(),
		shows:     make(map[string]media.Show),
		episodes:  make(map[string][]media.Episode),
	}
}

// Search queries every provider concurrently and merges the results into
// canonical shows. A provider that fails contributes nothing; when no
// provider finds anything the result is empty and the error nil.
func (r *Resolver) Search(ctx context.Context, query string) ([]media.Show, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	slots := make([][]provider.Result, len(r.providers))
	var g errgroup.Group
	for i, p := range r.providers {
		g.Go(func() error {
			results, err := call(ctx, r, p, "search", func(cctx context.Context) ([]provider.Result, error) {
				return p.Search(cctx, query)
			})
			if err == nil {
				slots[i] = results
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shows := mergeResults(r.names(), slots)

	r.mu.Lock()
	for i, s := range shows {
		if existing, ok := r.shows[s.ID]; ok {
			s = mergeShow(existing, s)
			shows[i] = s
		}
		r.shows[s.ID] = s
	}
	r.mu.Unlock()

	r.log.Debug().Str("query", query).Int("shows", len(shows)).Msg("search merged")
	return shows, nil
}

// Episodes returns the canonical episode list of show, ascending by number.
// Only providers the show carries an ID for are queried. A list resolved
// earlier in the session is returned without querying again.
func (r *Resolver) Episodes(ctx context.Context, show media.Show) ([]media.Episode, error) {
	if eps, ok := r.CachedEpisodes(show.ID); ok {
		return eps, nil
	}

	eligible := lo.Filter(r.providers, func(p provider.Provider, _ int) bool {
		return show.HasProvider(p.Name())
	})
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: %s has no provider IDs", media.ErrNoEpisodes, show.Title)
	}

	slots := make([][]provider.EpisodeRef, len(eligible))
	errs := make([]error, len(eligible))
	var g errgroup.Group
	for i, p := range eligible {
		showID := show.ProviderIDs[p.Name()]
		g.Go(func() error {
			refs, err := call(ctx, r, p, "episodes", func(cctx context.Context) ([]provider.EpisodeRef, error) {
				return p.ListEpisodes(cctx, showID)
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p.Name(), err)
				return nil
			}
			slots[i] = refs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	episodes := unionEpisodes(show.ID, eligible, slots)
	if len(episodes) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("%w for %s: %w", media.ErrNoEpisodes, show.Title, err)
		}
		return nil, fmt.Errorf("%w for %s", media.ErrNoEpisodes, show.Title)
	}

	r.mu.Lock()
	r.episodes[show.ID] = episodes
	if _, ok := r.shows[show.ID]; !ok {
		r.shows[show.ID] = show
	}
	r.mu.Unlock()

	return episodes, nil
}

// CachedEpisodes returns the episode list resolved earlier for a show.
func (r *Resolver) CachedEpisodes(showID string) ([]media.Episode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps, ok := r.episodes[showID]
	return eps, ok
}

// Show returns a show seen in an earlier search.
func (r *Resolver) Show(id string) (media.Show, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shows[id]
	return s, ok
}

// call runs fn under the per-provider timeout. Failures are logged and a
// timeout is reported as a network error.
func call[T any](ctx context.Context, r *Resolver, p provider.Provider, op string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(cctx)
	if err == nil {
		r.log.Debug().Str("provider", p.Name()).Str("op", op).Dur("took", time.Since(start)).Msg("provider call")
		return v, nil
	}
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, media.ErrNetwork) {
		err = fmt.Errorf("%w: %s timed out after %s: %w", media.ErrNetwork, p.Name(), r.timeout, err)
	}
	r.log.Warn().Str("provider", p.Name()).Str("op", op).Err(err).Msg("provider failed")
	return zero, err
}

func (r *Resolver) names() []string {
	return lo.Map(r.providers, func(p provider.Provider, _ int) string { return p.Name() })
}

// unionEpisodes merges per-provider episode lists by number. A provider
// listing the same number twice keeps its first ID.
func unionEpisodes(showID string, providers []provider.Provider, slots [][]provider.EpisodeRef) []media.Episode {
	byNumber := make(map[int]*media.Episode)
	for i, refs := range slots {
		name := providers[i].Name()
		for _, ref := range refs {
			if ref.Number <= 0 || ref.ID == "" {
				continue
			}
			ep, ok := byNumber[ref.Number]
			if !ok {
				ep = &media.Episode{ShowID: showID, Number: ref.Number, ProviderIDs: map[string]string{}}
				byNumber[ref.Number] = ep
			}
			if _, seen := ep.ProviderIDs[name]; !seen {
				ep.ProviderIDs[name] = ref.ID
			}
		}
	}

	episodes := make([]media.Episode, 0, len(byNumber))
	for _, ep := range byNumber {
		episodes = append(episodes, *ep)
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	return episodes
}
