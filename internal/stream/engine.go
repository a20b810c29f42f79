// Package stream resolves episodes into playable sources, falling back
// across providers and caching what it found.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"ani-tui/internal/media"
	"ani-tui/internal/provider"
)

// Strategy selects how providers are tried.
type Strategy string

const (
	// Sequential tries providers one at a time in priority order.
	Sequential Strategy = "sequential"
	// Race starts every eligible provider at once and keeps the first success.
	Race Strategy = "race"
)

var errLoadFailed = errors.New("stream failed to load in the player")

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL     = 20 * time.Minute
	DefaultTimeout = 8 * time.Second
)

// Options configures an Engine.
type Options struct {
	TTL      time.Duration // cache lifetime of a resolved source
	Timeout  time.Duration // bound on each provider attempt
	Strategy Strategy
	Logger   zerolog.Logger
}

// Engine resolves episodes to stream sources. It is safe for concurrent use.
type Engine struct {
	providers []provider.Provider
	ttl       time.Duration
	timeout   time.Duration
	strategy  Strategy
	log       zerolog.Logger
	cache     *cache.Cache
	now       func() time.Time

	mu       sync.Mutex
	excluded map[string]map[string]bool // cache key -> providers that must not be used again
	source   map[string]string          // cache key -> provider of the cached source
}

// NewEngine creates an engine over providers, in priority order.
func NewEngine(providers []provider.Provider, opts Options) *Engine {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Strategy == "" {
		opts.Strategy = Sequential
	}
	return &Engine{
		providers: providers,
		ttl:       opts.TTL,
		timeout:   opts.Timeout,
		strategy:  opts.Strategy,
		log:       opts.Logger.With().Str("component", "stream").Logger(),
		cache:     cache.New(opts.TTL, opts.TTL/2),
		now:       time.Now,
		excluded:  make(map[string]map[string]bool),
		source:    make(map[string]string),
	}
}

func cacheKey(ep media.Episode) string {
	return fmt.Sprintf("%s/%d", ep.ShowID, ep.Number)
}

// Resolve returns a playable source for ep. A cached, unexpired source is
// returned as is. Otherwise providers are tried and the first success is
// cached; provider failures are logged, and only when every eligible
// provider failed is an error wrapping media.ErrNoStream returned.
func (e *Engine) Resolve(ctx context.Context, ep media.Episode) (*media.StreamSource, error) {
	key := cacheKey(ep)

	if v, ok := e.cache.Get(key); ok {
		src := v.(*media.StreamSource)
		if !src.Expired(e.now()) {
			return src, nil
		}
		e.cache.Delete(key)
	}

	eligible, excluded := e.eligible(key, ep)
	if len(eligible) == 0 {
		if len(excluded) == 0 {
			return nil, fmt.Errorf("%w: no provider offers episode %d of %s", media.ErrNoStream, ep.Number, ep.ShowID)
		}
		// Every provider already failed to load this episode. The
		// exclusions are dropped so the next pick tries them again.
		e.mu.Lock()
		delete(e.excluded, key)
		e.mu.Unlock()
		return nil, exhausted(ep, excluded, lo.Map(excluded, func(p provider.Provider, _ int) error {
			return fmt.Errorf("%s: %w", p.Name(), errLoadFailed)
		}))
	}

	var (
		src *media.StreamSource
		err error
	)
	if e.strategy == Race && len(eligible) > 1 {
		src, err = e.race(ctx, ep, eligible)
	} else {
		src, err = e.sequential(ctx, ep, eligible)
	}
	if err != nil {
		return nil, err
	}

	e.store(key, src)
	return src, nil
}

// ForceResolve drops the cached source of ep, excludes the provider that
// produced it for this episode, and resolves again.
func (e *Engine) ForceResolve(ctx context.Context, ep media.Episode) (*media.StreamSource, error) {
	key := cacheKey(ep)

	e.mu.Lock()
	if name, ok := e.source[key]; ok {
		if e.excluded[key] == nil {
			e.excluded[key] = make(map[string]bool)
		}
		e.excluded[key][name] = true
		delete(e.source, key)
		e.log.Debug().Str("provider", name).Str("episode", key).Msg("excluding provider")
	}
	e.mu.Unlock()

	e.cache.Delete(key)
	return e.Resolve(ctx, ep)
}

// Invalidate drops the cached source of ep.
func (e *Engine) Invalidate(ep media.Episode) {
	key := cacheKey(ep)
	e.cache.Delete(key)

	e.mu.Lock()
	delete(e.source, key)
	e.mu.Unlock()
}

// eligible splits the providers offering ep into those that may be tried
// and those excluded after a failed load.
func (e *Engine) eligible(key string, ep media.Episode) (usable, excluded []provider.Provider) {
	e.mu.Lock()
	skip := e.excluded[key]
	e.mu.Unlock()

	offering := lo.Filter(e.providers, func(p provider.Provider, _ int) bool {
		_, has := ep.ProviderIDs[p.Name()]
		return has
	})
	excluded, usable = lo.FilterReject(offering, func(p provider.Provider, _ int) bool {
		return skip[p.Name()]
	})
	return usable, excluded
}

// store caches src and remembers its provider so ForceResolve can exclude
// it. A source already past its expiry is not cached.
func (e *Engine) store(key string, src *media.StreamSource) {
	e.mu.Lock()
	e.source[key] = src.Provider
	e.mu.Unlock()

	ttl := e.ttl
	if !src.ExpiresAt.IsZero() {
		ttl = min(ttl, src.ExpiresAt.Sub(e.now()))
	}
	if ttl > 0 {
		e.cache.Set(key, src, ttl)
	}
}

func (e *Engine) sequential(ctx context.Context, ep media.Episode, eligible []provider.Provider) (*media.StreamSource, error) {
	errs := make([]error, 0, len(eligible))
	for _, p := range eligible {
		src, err := e.attempt(ctx, p, ep)
		if err == nil {
			return src, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, exhausted(ep, eligible, errs)
}

func (e *Engine) race(ctx context.Context, ep media.Episode, eligible []provider.Provider) (*media.StreamSource, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once   sync.Once
		winner *media.StreamSource
		errs   = make([]error, len(eligible))
		g      errgroup.Group
	)
	for i, p := range eligible {
		g.Go(func() error {
			src, err := e.attempt(rctx, p, ep)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p.Name(), err)
				return nil
			}
			once.Do(func() {
				winner = src
				cancel()
			})
			return nil
		})
	}
	_ = g.Wait()

	if winner != nil {
		return winner, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, exhausted(ep, eligible, lo.Compact(errs))
}

// attempt runs one provider under its own timeout. A timeout is reported as
// a network error.
func (e *Engine) attempt(ctx context.Context, p provider.Provider, ep media.Episode) (*media.StreamSource, error) {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	src, err := p.ExtractStream(actx, ep.ProviderIDs[p.Name()])
	if err == nil && (src == nil || src.URL == "") {
		err = fmt.Errorf("%w: empty source", media.ErrNoStream)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, media.ErrNetwork) {
			err = fmt.Errorf("%w: timed out after %s: %w", media.ErrNetwork, e.timeout, err)
		}
		e.log.Warn().
			Str("provider", p.Name()).
			Str("show", ep.ShowID).
			Int("episode", ep.Number).
			Err(err).
			Msg("stream extraction failed")
		return nil, err
	}

	if src.Provider == "" {
		src.Provider = p.Name()
	}
	if src.ResolvedAt.IsZero() {
		src.ResolvedAt = e.now()
	}
	e.log.Debug().
		Str("provider", p.Name()).
		Int("episode", ep.Number).
		Str("quality", src.Quality).
		Dur("took", time.Since(start)).
		Msg("stream resolved")
	return src, nil
}

func exhausted(ep media.Episode, attempted []provider.Provider, errs []error) error {
	names := lo.Map(attempted, func(p provider.Provider, _ int) string { return p.Name() })
	return fmt.Errorf("%w for episode %d: every provider was attempted (%s): %w",
		media.ErrNoStream, ep.Number, strings.Join(names, ", "), errors.Join(errs...))
}
