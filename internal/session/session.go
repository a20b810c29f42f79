// Package session drives one interactive run: search, browse, resolve,
// play and navigate. Each step runs under its own child context that is
// cancelled when the step is left.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"ani-tui/internal/catalog"
	"ani-tui/internal/media"
	"ani-tui/internal/player"
	"ani-tui/internal/subtitle"
	"ani-tui/internal/ui"
)

// State is a node of the session state machine.
type State int

const (
	Idle State = iota
	Searching
	Browsing
	ResolvingStream
	Playing
	Advancing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Browsing:
		return "browsing"
	case ResolvingStream:
		return "resolving stream"
	case Playing:
		return "playing"
	case Advancing:
		return "advancing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Selector presents menus and reads queries.
type Selector interface {
	Select(ctx context.Context, menu ui.Menu) (int, error)
	Input(ctx context.Context, prompt string) (string, error)
}

// Catalog finds shows and their episode lists.
type Catalog interface {
	Search(ctx context.Context, query string) ([]media.Show, error)
	Episodes(ctx context.Context, show media.Show) ([]media.Episode, error)
}

// Streams turns episodes into playable sources.
type Streams interface {
	Resolve(ctx context.Context, ep media.Episode) (*media.StreamSource, error)
	ForceResolve(ctx context.Context, ep media.Episode) (*media.StreamSource, error)
}

// History stores resume points.
type History interface {
	RecordProgress(show media.Show, episode int, position float64) error
	Get(showID string) (mo.Option[media.HistoryEntry], error)
}

// Prefetcher downloads thumbnails in the background.
type Prefetcher interface {
	Start(ctx context.Context, urls []string) uint64
	Cancel()
	Dir() string
}

// Reporter shows notices and step failures to the user.
type Reporter interface {
	Notice(msg string)
	Failure(err error)
}

// SpinFunc runs fn while showing progress titled title.
type SpinFunc func(ctx context.Context, title string, fn func(context.Context) error) error

// Options wires a Session to its collaborators. Catalog, Streams, Player
// and Selector are required.
type Options struct {
	Catalog    Catalog
	Streams    Streams
	Player     player.Player
	Selector   Selector
	History    History    // nil disables history
	Reporter   Reporter   // nil discards reports
	Prefetcher Prefetcher // nil disables thumbnails
	Spin       SpinFunc   // nil runs steps without feedback

	// PreviewCommand builds the finder preview command for a thumbnail dir.
	PreviewCommand func(dir string) string

	SubsLanguage string
	NoSubs       bool
	Continue     bool // jump to the saved episode of a show picked from search
	Logger       zerolog.Logger
}

// post-playback menu entries
const (
	actionNext     = "Next episode"
	actionReplay   = "Replay"
	actionPrevious = "Previous episode"
	actionSelect   = "Select episode"
	actionSearch   = "Search again"
	actionQuit     = "Quit"
)

// resumePoint is a saved position applied when its episode is played.
type resumePoint struct {
	episode  int
	position float64
}

// Session is one interactive run. It is not safe for concurrent use.
type Session struct {
	opts Options
	log  zerolog.Logger

	state State
	query string

	shows    []media.Show
	show     media.Show
	episodes []media.Episode // retained while browsing the same show
	cursor   int
	source   *media.StreamSource
	resume   mo.Option[resumePoint]
}

// New returns a session in the Idle state.
func New(opts Options) *Session {
	if opts.Reporter == nil {
		opts.Reporter = discard{}
	}
	if opts.Spin == nil {
		opts.Spin = func(ctx context.Context, _ string, fn func(context.Context) error) error { return fn(ctx) }
	}
	return &Session{
		opts: opts,
		log:  opts.Logger.With().Str("component", "session").Logger(),
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Run searches for query (prompting when empty) and drives the session
// until the user quits or cancels. It returns nil once back in Idle;
// errors are reserved for collaborators that cannot work at all.
func (s *Session) Run(ctx context.Context, query string) error {
	s.query = query
	s.setState(Searching)
	return s.loop(ctx)
}

// Resume continues the show of entry at its saved episode and position.
func (s *Session) Resume(ctx context.Context, entry media.HistoryEntry) error {
	s.setState(Searching)
	if err := s.findShow(ctx, entry); err != nil {
		return err
	}
	if s.state != Browsing || s.episodes == nil {
		return s.loop(ctx)
	}
	if idx, ok := s.episodeIndex(entry.EpisodeNumber); ok {
		s.cursor = idx
		s.resume = mo.Some(resumePoint{episode: entry.EpisodeNumber, position: entry.PositionSeconds})
		s.setState(ResolvingStream)
	} else {
		s.opts.Reporter.Notice(fmt.Sprintf("episode %d is no longer listed, pick another", entry.EpisodeNumber))
	}
	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	for s.state != Idle {
		if ctx.Err() != nil {
			s.setState(Idle)
			break
		}
		if err := s.handleState(ctx); err != nil {
			s.setState(Idle)
			return err
		}
	}
	return nil
}

func (s *Session) handleState(ctx context.Context) error {
	switch s.state {
	case Searching:
		return s.handleSearching(ctx)
	case Browsing:
		return s.handleBrowsing(ctx)
	case ResolvingStream:
		return s.handleResolving(ctx)
	case Playing:
		return s.handlePlaying(ctx)
	case Advancing:
		return s.handleAdvancing(ctx)
	}
	return nil
}

func (s *Session) setState(next State) {
	if s.state != next {
		s.log.Debug().Stringer("from", s.state).Stringer("to", next).Msg("transition")
	}
	s.state = next
}

// handleSearching runs the catalog search. No results is a notice, not a
// failure.
func (s *Session) handleSearching(ctx context.Context) error {
	if s.query == "" {
		q, err := s.opts.Selector.Input(ctx, "Search anime")
		if err != nil {
			return s.abort(ctx, err)
		}
		s.query = q
	}

	shows, err := s.search(ctx, s.query)
	if err != nil {
		return s.fail(ctx, media.StepSearch, err, Idle)
	}
	if len(shows) == 0 {
		s.opts.Reporter.Failure(media.AtStep(media.StepSearch, fmt.Errorf("%w for %q", media.ErrNoResults, s.query)))
		s.setState(Idle)
		return nil
	}

	s.shows = shows
	s.show = media.Show{}
	s.episodes = nil
	s.setState(Browsing)
	return nil
}

func (s *Session) search(ctx context.Context, query string) ([]media.Show, error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var shows []media.Show
	err := s.opts.Spin(stepCtx, "Searching for "+query, func(ctx context.Context) error {
		var err error
		shows, err = s.opts.Catalog.Search(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return shows, nil
}

// handleBrowsing lets the user pick a show (unless an episode list is
// retained) and then an episode.
func (s *Session) handleBrowsing(ctx context.Context) error {
	if s.episodes == nil {
		if err := s.pickShow(ctx); err != nil {
			return s.abort(ctx, err)
		}
		if s.state != Browsing || s.episodes == nil {
			return nil
		}
		if s.opts.Continue && s.jumpToSaved() {
			return nil
		}
	}

	idx, err := s.opts.Selector.Select(ctx, ui.Menu{
		Prompt: "Select episode",
		Header: s.show.Title,
		Items: lo.Map(s.episodes, func(ep media.Episode, _ int) string {
			return fmt.Sprintf("Episode %d", ep.Number)
		}),
	})
	if err != nil {
		return s.abort(ctx, err)
	}
	s.cursor = idx
	s.setState(ResolvingStream)
	return nil
}

func (s *Session) pickShow(ctx context.Context) error {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	menu := ui.Menu{
		Prompt: "Select show",
		Items: lo.Map(s.shows, func(show media.Show, _ int) string {
			if show.Episodes > 0 {
				return fmt.Sprintf("%s (%d episodes)", show.Title, show.Episodes)
			}
			return show.Title
		}),
	}
	if p := s.opts.Prefetcher; p != nil {
		p.Start(stepCtx, lo.Map(s.shows, func(show media.Show, _ int) string { return show.Thumbnail }))
		if s.opts.PreviewCommand != nil {
			menu.Preview = s.opts.PreviewCommand(p.Dir())
		}
	}

	idx, err := s.opts.Selector.Select(stepCtx, menu)
	if p := s.opts.Prefetcher; p != nil {
		// thumbnails are only wanted while the show menu is open
		p.Cancel()
	}
	if err != nil {
		return err
	}
	s.show = s.shows[idx]
	return s.loadEpisodes(stepCtx)
}

// loadEpisodes fetches the episode list of s.show. NoEpisodesFound keeps
// the session in Browsing with the show list.
func (s *Session) loadEpisodes(ctx context.Context) error {
	var episodes []media.Episode
	err := s.opts.Spin(ctx, "Loading episodes of "+s.show.Title, func(ctx context.Context) error {
		var err error
		episodes, err = s.opts.Catalog.Episodes(ctx, s.show)
		if err == nil && len(episodes) == 0 {
			err = fmt.Errorf("%w for %s", media.ErrNoEpisodes, s.show.Title)
		}
		return err
	})
	if err != nil {
		if isCancel(ctx, err) {
			return err
		}
		s.opts.Reporter.Failure(media.AtStep(media.StepEpisodes, err))
		s.episodes = nil
		return nil
	}
	s.episodes = episodes
	s.cursor = 0
	return nil
}

// jumpToSaved moves the cursor to the saved episode of s.show.
func (s *Session) jumpToSaved() bool {
	if s.opts.History == nil {
		return false
	}
	saved, err := s.opts.History.Get(s.show.ID)
	if err != nil {
		s.log.Warn().Err(err).Msg("reading history")
		return false
	}
	entry, ok := saved.Get()
	if !ok {
		return false
	}
	idx, ok := s.episodeIndex(entry.EpisodeNumber)
	if !ok {
		return false
	}
	s.cursor = idx
	s.resume = mo.Some(resumePoint{episode: entry.EpisodeNumber, position: entry.PositionSeconds})
	s.setState(ResolvingStream)
	return true
}

func (s *Session) handleResolving(ctx context.Context) error {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ep := s.episodes[s.cursor]
	var src *media.StreamSource
	err := s.opts.Spin(stepCtx, fmt.Sprintf("Resolving episode %d", ep.Number), func(ctx context.Context) error {
		var err error
		src, err = s.opts.Streams.Resolve(ctx, ep)
		return err
	})
	if err != nil {
		return s.fail(ctx, media.StepStream, err, Browsing)
	}
	s.source = src
	s.setState(Playing)
	return nil
}

func (s *Session) handlePlaying(ctx context.Context) error {
	ep := s.episodes[s.cursor]
	startAt := 0.0
	if rp, ok := s.resume.Get(); ok && rp.episode == ep.Number {
		startAt = rp.position
	}
	s.resume = mo.None[resumePoint]()

	s.record(ep.Number, startAt)

	title := fmt.Sprintf("%s - Episode %d", s.show.Title, ep.Number)
	for {
		sub := subtitle.Pick(s.source.Subtitles, s.opts.SubsLanguage, s.opts.NoSubs)
		res, err := s.opts.Player.Play(ctx, player.NewRequest(s.source, title, startAt, sub))
		if err != nil {
			return s.fail(ctx, media.StepPlayback, err, Browsing)
		}
		if !res.LoadFailed {
			pos := res.Position
			if pos <= 0 {
				pos = startAt
			}
			s.record(ep.Number, pos)
			s.setState(Advancing)
			return nil
		}

		s.log.Info().Str("provider", s.source.Provider).Int("episode", ep.Number).Msg("stream failed to load, re-resolving")
		src, err := s.forceResolve(ctx, ep)
		if err != nil {
			return s.fail(ctx, media.StepStream, err, Browsing)
		}
		s.source = src
	}
}

func (s *Session) forceResolve(ctx context.Context, ep media.Episode) (*media.StreamSource, error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var src *media.StreamSource
	err := s.opts.Spin(stepCtx, fmt.Sprintf("Retrying episode %d with another provider", ep.Number), func(ctx context.Context) error {
		var err error
		src, err = s.opts.Streams.ForceResolve(ctx, ep)
		return err
	})
	return src, err
}

// handleAdvancing shows the post-playback menu and moves the cursor inside
// the retained episode list.
func (s *Session) handleAdvancing(ctx context.Context) error {
	var actions []string
	if s.cursor+1 < len(s.episodes) {
		actions = append(actions, actionNext)
	}
	actions = append(actions, actionReplay)
	if s.cursor > 0 {
		actions = append(actions, actionPrevious)
	}
	actions = append(actions, actionSelect, actionSearch, actionQuit)

	idx, err := s.opts.Selector.Select(ctx, ui.Menu{
		Prompt: "Next",
		Header: fmt.Sprintf("%s - Episode %d", s.show.Title, s.episodes[s.cursor].Number),
		Items:  actions,
	})
	if err != nil {
		return s.abort(ctx, err)
	}

	switch actions[idx] {
	case actionNext:
		s.cursor++
		s.setState(ResolvingStream)
	case actionPrevious:
		s.cursor--
		s.setState(ResolvingStream)
	case actionReplay:
		s.setState(ResolvingStream)
	case actionSelect:
		s.setState(Browsing)
	case actionSearch:
		s.query = ""
		s.shows = nil
		s.episodes = nil
		s.setState(Searching)
	case actionQuit:
		s.setState(Idle)
	}
	return nil
}

// findShow searches for the title of entry and selects the show with the
// same canonical id, or the closest title.
func (s *Session) findShow(ctx context.Context, entry media.HistoryEntry) error {
	shows, err := s.search(ctx, entry.Title)
	if err != nil {
		return s.fail(ctx, media.StepSearch, err, Idle)
	}
	show, ok := lo.Find(shows, func(sh media.Show) bool { return sh.ID == entry.ShowID })
	if !ok {
		show, ok = catalog.Closest(shows, entry.Title)
	}
	if !ok {
		s.opts.Reporter.Failure(media.AtStep(media.StepSearch, fmt.Errorf("%w for %q", media.ErrNoResults, entry.Title)))
		s.setState(Idle)
		return nil
	}

	s.shows = shows
	s.show = show
	s.setState(Browsing)

	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.loadEpisodes(stepCtx); err != nil {
		return s.abort(ctx, err)
	}
	return nil
}

func (s *Session) episodeIndex(number int) (int, bool) {
	idx := slices.IndexFunc(s.episodes, func(ep media.Episode) bool { return ep.Number == number })
	return idx, idx >= 0
}

func (s *Session) record(episode int, position float64) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.RecordProgress(s.show, episode, position); err != nil {
		s.log.Warn().Err(err).Str("show", s.show.ID).Msg("recording progress")
		s.opts.Reporter.Notice("could not save progress: " + err.Error())
	}
}

// fail reports err for step and moves to next. Cancellation moves to
// Idle without a report.
func (s *Session) fail(ctx context.Context, step media.Step, err error, next State) error {
	if isCancel(ctx, err) {
		s.setState(Idle)
		return nil
	}
	s.opts.Reporter.Failure(media.AtStep(step, err))
	s.setState(next)
	return nil
}

// abort handles errors from steps that can only end the session. A user
// abort or cancellation returns to Idle; anything else is returned.
func (s *Session) abort(ctx context.Context, err error) error {
	if isCancel(ctx, err) {
		s.setState(Idle)
		return nil
	}
	return err
}

func isCancel(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, ui.ErrNoSelection) || errors.Is(err, context.Canceled)
}

type discard struct{}

func (discard) Notice(string)  {}
func (discard) Failure(error) {}
