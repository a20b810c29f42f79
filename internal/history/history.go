// Package history keeps the resume record of every show the user watched.
// The store is a small JSON document; every operation takes an exclusive
// lock file and replaces the document atomically (temp file + rename).
package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/mo"
	"github.com/spf13/afero"

	"ani-tui/internal/media"
)

const (
	formatVersion = 1

	// A lock file older than this is left over from a crashed process.
	staleLockAge    = 10 * time.Second
	defaultLockWait = 15 * time.Second
	lockPoll        = 20 * time.Millisecond
)

// ErrLocked is returned when the lock file could not be taken in time.
var ErrLocked = errors.New("history file is locked by another process")

type document struct {
	Version int                  `json:"version"`
	Entries []media.HistoryEntry `json:"entries"`
}

// Store reads and writes the history file.
type Store struct {
	fs       afero.Fs
	path     string
	now      func() time.Time
	lockWait time.Duration

	mu sync.Mutex
}

// New returns a store for the history file at path on fsys.
func New(fsys afero.Fs, path string) *Store {
	return &Store{fs: fsys, path: path, now: time.Now, lockWait: defaultLockWait}
}

// Path returns the location of the history file.
func (s *Store) Path() string { return s.path }

// RecordProgress creates or overwrites the entry of show.
func (s *Store) RecordProgress(show media.Show, episode int, position float64) error {
	if show.ID == "" {
		return fmt.Errorf("recording progress: show has no ID")
	}
	entry := media.HistoryEntry{
		ShowID:          show.ID,
		Title:           show.Title,
		EpisodeNumber:   episode,
		PositionSeconds: max(position, 0),
		UpdatedAt:       s.now().UTC().Round(0),
	}

	return s.update(func(entries []media.HistoryEntry) []media.HistoryEntry {
		for i, e := range entries {
			if e.ShowID == entry.ShowID {
				entries[i] = entry
				return entries
			}
		}
		return append(entries, entry)
	})
}

// ContinueWatching returns every entry, most recently updated first.
func (s *Store) ContinueWatching() ([]media.HistoryEntry, error) {
	var entries []media.HistoryEntry
	err := s.view(func(all []media.HistoryEntry) {
		entries = all
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Get returns the entry of a show. A show never watched is mo.None, not an error.
func (s *Store) Get(showID string) (mo.Option[media.HistoryEntry], error) {
	found := mo.None[media.HistoryEntry]()
	err := s.view(func(all []media.HistoryEntry) {
		for _, e := range all {
			if e.ShowID == showID {
				found = mo.Some(e)
				return
			}
		}
	})
	return found, err
}

// Search returns the entries whose title fuzzily matches query, most
// recently updated first. An empty query matches everything.
func (s *Store) Search(query string) ([]media.HistoryEntry, error) {
	entries, err := s.ContinueWatching()
	if err != nil || query == "" {
		return entries, err
	}

	var matched []media.HistoryEntry
	for _, e := range entries {
		if fuzzy.MatchNormalizedFold(query, e.Title) || fuzzy.MatchNormalizedFold(query, e.ShowID) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Remove deletes the entry of a show. It reports whether one existed.
func (s *Store) Remove(showID string) (bool, error) {
	removed := false
	err := s.update(func(entries []media.HistoryEntry) []media.HistoryEntry {
		kept := entries[:0]
		for _, e := range entries {
			if e.ShowID == showID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		return kept
	})
	return removed, err
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	return s.update(func([]media.HistoryEntry) []media.HistoryEntry { return nil })
}

// FormatForDisplay renders entries as finder lines.
func FormatForDisplay(entries []media.HistoryEntry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s - episode %d", e.Title, e.EpisodeNumber)
		if e.PositionSeconds > 0 {
			line += " [" + FormatPosition(e.PositionSeconds) + "]"
		}
		items = append(items, line)
	}
	return items
}

// FormatPosition renders seconds as m:ss or h:mm:ss.
func FormatPosition(seconds float64) string {
	total := int(seconds)
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

func (s *Store) view(fn func([]media.HistoryEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	fn(doc.Entries)
	return nil
}

func (s *Store) update(fn func([]media.HistoryEntry) []media.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Entries = fn(doc.Entries)
	return s.save(doc)
}

func (s *Store) load() (document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{Version: formatVersion}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("reading history: %w", err)
	}
	if len(data) == 0 {
		return document{Version: formatVersion}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parsing history %s: %w", s.path, err)
	}
	if doc.Version != formatVersion {
		return document{}, fmt.Errorf("history %s: unsupported version %d", s.path, doc.Version)
	}
	return doc, nil
}

// save writes doc atomically: write to a temp file, then rename.
func (s *Store) save(doc document) error {
	doc.Version = formatVersion
	if doc.Entries == nil {
		doc.Entries = []media.HistoryEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "history-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		s.fs.Remove(tmpPath)
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("renaming history file: %w", err)
	}
	return nil
}

// lock takes the lock file next to the history file, breaking it when stale.
// The file holds a token unique to this holder; a lock is only removed while
// it still holds the token that was read, so a lock another process took
// in the meantime is left alone.
func (s *Store) lock() (func(), error) {
	lockPath := s.path + ".lock"
	if err := s.fs.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	token := fmt.Sprintf("%d-%d\n", os.Getpid(), time.Now().UnixNano())
	deadline := time.Now().Add(s.lockWait)
	for {
		f, err := s.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := f.WriteString(token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				s.fs.Remove(lockPath)
				return nil, fmt.Errorf("writing history lock: %w", errors.Join(werr, cerr))
			}
			return func() { s.removeLock(lockPath, token) }, nil
		}
		if !errors.Is(err, fs.ErrExist) && !errors.Is(err, afero.ErrFileExists) {
			return nil, fmt.Errorf("taking history lock: %w", err)
		}

		if held, stale := s.staleLock(lockPath); stale {
			s.removeLock(lockPath, held)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		time.Sleep(lockPoll)
	}
}

// staleLock reports whether the lock at path is old enough to break, along
// with the token it holds.
func (s *Store) staleLock(path string) (string, bool) {
	info, err := s.fs.Stat(path)
	if err != nil || time.Since(info.ModTime()) <= staleLockAge {
		return "", false
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// removeLock deletes the lock at path if it still holds token.
func (s *Store) removeLock(path, token string) bool {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil || string(data) != token {
		return false
	}
	return s.fs.Remove(path) == nil
}
