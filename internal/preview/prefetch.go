// Package preview downloads show thumbnails in the background and renders
// them inside the finder's preview pane.
package preview

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"ani-tui/internal/httputil"
)

const (
	defaultWorkers = 4
	maxImageBytes  = 5 << 20
)

// Path returns where the thumbnail of item idx is published inside dir.
func Path(dir string, idx int) string {
	return filepath.Join(dir, strconv.Itoa(idx)+".img")
}

// Prefetcher fills a directory with the thumbnails of the list currently
// on screen. Each call to Start begins a new generation; downloads that
// finish after their generation was replaced are discarded.
type Prefetcher struct {
	fs      afero.Fs
	dir     string
	client  *http.Client
	workers int
	log     zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrefetcher returns a prefetcher publishing into dir on fsys.
func NewPrefetcher(fsys afero.Fs, dir string, client *http.Client, log zerolog.Logger) *Prefetcher {
	return &Prefetcher{
		fs:      fsys,
		dir:     dir,
		client:  client,
		workers: defaultWorkers,
		log:     log.With().Str("component", "preview").Logger(),
	}
}

// Dir is the directory thumbnails are published into.
func (p *Prefetcher) Dir() string { return p.dir }

// Start replaces the current batch with urls, where urls[i] is the
// thumbnail of list item i. Empty entries are skipped. Start returns
// immediately with the new generation number.
func (p *Prefetcher) Start(ctx context.Context, urls []string) uint64 {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.clearLocked()
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for i, u := range urls {
			if u == "" {
				continue
			}
			g.Go(func() error {
				p.fetch(ctx, gen, i, u)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return gen
}

// Cancel aborts the running batch without waiting. Downloads still in
// flight are discarded when they finish.
func (p *Prefetcher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
}

// Stop cancels the running batch and waits for its workers.
func (p *Prefetcher) Stop() {
	p.Cancel()
	p.wg.Wait()
}

// Wait blocks until every started batch has finished.
func (p *Prefetcher) Wait() { p.wg.Wait() }

func (p *Prefetcher) current(gen uint64) bool {
	return p.gen == gen
}

func (p *Prefetcher) fetch(ctx context.Context, gen uint64, idx int, rawURL string) {
	log := p.log.With().Int("index", idx).Str("url", rawURL).Logger()

	if err := httputil.ValidateURL(rawURL); err != nil {
		log.Debug().Err(err).Msg("skipping thumbnail")
		return
	}
	body, err := httputil.GetBody(ctx, p.client, rawURL, nil, maxImageBytes)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Msg("thumbnail download failed")
		}
		return
	}

	if err := p.fs.MkdirAll(p.dir, 0o700); err != nil {
		log.Warn().Err(err).Msg("creating preview directory")
		return
	}
	tmp, err := afero.TempFile(p.fs, p.dir, ".thumb-*")
	if err != nil {
		log.Warn().Err(err).Msg("creating thumbnail file")
		return
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(body)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = p.fs.Remove(tmpName)
		log.Warn().Err(fmt.Errorf("writing thumbnail: %w", firstErr(werr, cerr))).Msg("thumbnail dropped")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.current(gen) {
		_ = p.fs.Remove(tmpName)
		return
	}
	if err := p.fs.Rename(tmpName, Path(p.dir, idx)); err != nil {
		_ = p.fs.Remove(tmpName)
		log.Warn().Err(err).Msg("publishing thumbnail")
	}
}

// clearLocked removes the thumbnails of the previous generation.
func (p *Prefetcher) clearLocked() {
	matches, err := afero.Glob(p.fs, filepath.Join(p.dir, "*.img"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = p.fs.Remove(m)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
