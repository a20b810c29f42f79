package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ani-tui/internal/media"
	"ani-tui/internal/provider"
)

type fakeProvider struct {
	name  string
	url   string
	err   error
	delay time.Duration
	block bool
	calls atomic.Int32
	ids   chan string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(context.Context, string) ([]provider.Result, error) { return nil, nil }

func (f *fakeProvider) ListEpisodes(context.Context, string) ([]provider.EpisodeRef, error) {
	return nil, nil
}

func (f *fakeProvider) ExtractStream(ctx context.Context, id string) (*media.StreamSource, error) {
	f.calls.Add(1)
	if f.ids != nil {
		f.ids <- id
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &media.StreamSource{URL: f.url, Quality: "auto"}, nil
}

func episode(n int, providers ...string) media.Episode {
	ids := make(map[string]string, len(providers))
	for _, p := range providers {
		ids[p] = fmt.Sprintf("%s-ep-%d", p, n)
	}
	return media.Episode{ShowID: "naruto", Number: n, ProviderIDs: ids}
}

func newEngine(opts Options, providers ...provider.Provider) (*Engine, *bytes.Buffer) {
	var buf bytes.Buffer
	opts.Logger = zerolog.New(&buf)
	return NewEngine(providers, opts), &buf
}

func TestResolveCacheHit(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	e, _ := newEngine(Options{}, a)
	ep := episode(1, "a")

	first, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	second, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.Equal(t, "a", first.Provider)
	assert.False(t, first.ResolvedAt.IsZero())
}

func TestResolveFallsBackOnParseError(t *testing.T) {
	a := &fakeProvider{name: "a", err: fmt.Errorf("%w: sources missing", media.ErrParse)}
	b := &fakeProvider{name: "b", url: "https://cdn.example/b.m3u8"}
	e, logs := newEngine(Options{}, a, b)

	src, err := e.Resolve(context.Background(), episode(3, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", src.Provider)
	assert.Equal(t, "https://cdn.example/b.m3u8", src.URL)

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"provider":"a"`)
	assert.Contains(t, logs.String(), "sources missing")
}

func TestResolveSkipsProvidersWithoutEpisode(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	b := &fakeProvider{name: "b", url: "https://cdn.example/b.m3u8"}
	e, _ := newEngine(Options{}, a, b)

	src, err := e.Resolve(context.Background(), episode(13, "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", src.Provider)
	assert.Zero(t, a.calls.Load())
}

func TestResolveTimeoutIsNetworkError(t *testing.T) {
	slow := &fakeProvider{name: "slow", block: true}
	fast := &fakeProvider{name: "fast", url: "https://cdn.example/f.m3u8"}
	e, logs := newEngine(Options{Timeout: 20 * time.Millisecond}, slow, fast)

	src, err := e.Resolve(context.Background(), episode(1, "slow", "fast"))
	require.NoError(t, err)
	assert.Equal(t, "fast", src.Provider)
	assert.Contains(t, logs.String(), media.ErrNetwork.Error())
}

func TestResolveAllFail(t *testing.T) {
	a := &fakeProvider{name: "a", err: media.ErrNotFound}
	b := &fakeProvider{name: "b", err: fmt.Errorf("%w: 503", media.ErrNetwork)}
	e, _ := newEngine(Options{}, a, b)

	_, err := e.Resolve(context.Background(), episode(1, "a", "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrNoStream))
	assert.Contains(t, err.Error(), "(a, b)")

	// Failures are not cached.
	b.err = nil
	b.url = "https://cdn.example/b.m3u8"
	src, err := e.Resolve(context.Background(), episode(1, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", src.Provider)
}

func TestResolveCancelled(t *testing.T) {
	a := &fakeProvider{name: "a", block: true}
	b := &fakeProvider{name: "b", url: "https://cdn.example/b.m3u8"}
	e, _ := newEngine(Options{Timeout: time.Minute}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Resolve(ctx, episode(1, "a", "b"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.calls.Load())
}

func TestForceResolveExcludesFailedProvider(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	b := &fakeProvider{name: "b", url: "https://cdn.example/b.m3u8"}
	e, _ := newEngine(Options{}, a, b)
	ep := episode(5, "a", "b")

	first, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	require.Equal(t, "a", first.Provider)

	second, err := e.ForceResolve(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Provider)
	assert.EqualValues(t, 1, a.calls.Load())

	// The exclusion is scoped to episode 5.
	other, err := e.Resolve(context.Background(), episode(6, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", other.Provider)

	// Once every provider is excluded nothing is left to try.
	_, err = e.ForceResolve(context.Background(), ep)
	assert.ErrorIs(t, err, media.ErrNoStream)
	assert.Contains(t, err.Error(), "every provider was attempted (a, b)")
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestResolveRetriesAfterExclusionsRunOut(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	e, _ := newEngine(Options{}, a)
	ep := episode(1, "a")

	_, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)

	_, err = e.ForceResolve(context.Background(), ep)
	require.ErrorIs(t, err, media.ErrNoStream)
	assert.Contains(t, err.Error(), "every provider was attempted (a)")
	assert.Contains(t, err.Error(), "failed to load")
	assert.EqualValues(t, 1, a.calls.Load())

	// a later pick of the same episode asks the provider again
	src, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, "a", src.Provider)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestResolveEpisodeWithoutProviders(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	e, _ := newEngine(Options{}, a)

	_, err := e.Resolve(context.Background(), episode(1, "b"))
	require.ErrorIs(t, err, media.ErrNoStream)
	assert.Contains(t, err.Error(), "no provider offers episode 1")
	assert.Zero(t, a.calls.Load())
}

func TestInvalidate(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	e, _ := newEngine(Options{}, a)
	ep := episode(1, "a")

	_, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	e.Invalidate(ep)
	src, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)

	assert.EqualValues(t, 2, a.calls.Load())
	assert.Equal(t, "a", src.Provider, "invalidation does not exclude the provider")
}

func TestResolveHonoursSourceExpiry(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8"}
	e, _ := newEngine(Options{}, a)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	ep := episode(1, "a")

	src, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	src.ExpiresAt = now.Add(time.Minute)

	now = now.Add(2 * time.Minute)
	again, err := e.Resolve(context.Background(), ep)
	require.NoError(t, err)
	assert.NotSame(t, src, again)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestRaceTakesFirstSuccess(t *testing.T) {
	slow := &fakeProvider{name: "slow", url: "https://cdn.example/slow.m3u8", delay: time.Second}
	fast := &fakeProvider{name: "fast", url: "https://cdn.example/fast.m3u8", delay: 10 * time.Millisecond}
	e, _ := newEngine(Options{Strategy: Race}, slow, fast)

	start := time.Now()
	src, err := e.Resolve(context.Background(), episode(1, "slow", "fast"))
	require.NoError(t, err)
	assert.Equal(t, "fast", src.Provider)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRaceAllFail(t *testing.T) {
	a := &fakeProvider{name: "a", err: media.ErrParse}
	b := &fakeProvider{name: "b", err: media.ErrNoStream}
	e, _ := newEngine(Options{Strategy: Race}, a, b)

	_, err := e.Resolve(context.Background(), episode(1, "a", "b"))
	assert.ErrorIs(t, err, media.ErrNoStream)
	assert.ErrorIs(t, err, media.ErrParse)
}

func TestResolvePassesProviderEpisodeID(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://cdn.example/a.m3u8", ids: make(chan string, 1)}
	e, _ := newEngine(Options{}, a)

	_, err := e.Resolve(context.Background(), episode(7, "a"))
	require.NoError(t, err)
	assert.Equal(t, "a-ep-7", <-a.ids)
}
