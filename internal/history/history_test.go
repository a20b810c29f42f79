package history

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ani-tui/internal/media"
)

const testPath = "/data/ani-tui/history.json"

func newTestStore(t *testing.T) (*Store, afero.Fs, *time.Time) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s := New(fsys, testPath)
	now := time.Date(2026, 10, 19, 20, 15, 30, 123456789, time.FixedZone("CEST", 2*3600))
	s.now = func() time.Time { return now }
	return s, fsys, &now
}

func naruto() media.Show {
	return media.Show{ID: "naruto", Title: "Naruto", NormalizedTitle: "naruto"}
}

func TestRecordProgressOverwrites(t *testing.T) {
	s, _, now := newTestStore(t)

	require.NoError(t, s.RecordProgress(naruto(), 3, 120))
	*now = now.Add(time.Minute)
	require.NoError(t, s.RecordProgress(naruto(), 4, 30.5))

	entries, err := s.ContinueWatching()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].EpisodeNumber)
	assert.Equal(t, 30.5, entries[0].PositionSeconds)
}

func TestRoundTrip(t *testing.T) {
	s, fsys, now := newTestStore(t)
	require.NoError(t, s.RecordProgress(naruto(), 7, 1234.25))

	// A second store over the same file reads back exactly what was written.
	other := New(fsys, testPath)
	got, err := other.Get("naruto")
	require.NoError(t, err)
	entry, ok := got.Get()
	require.True(t, ok)

	assert.Equal(t, media.HistoryEntry{
		ShowID:          "naruto",
		Title:           "Naruto",
		EpisodeNumber:   7,
		PositionSeconds: 1234.25,
		UpdatedAt:       now.UTC(),
	}, entry)
	assert.Equal(t, time.UTC, entry.UpdatedAt.Location())
}

func TestFileFormat(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	require.NoError(t, s.RecordProgress(naruto(), 1, 0))

	data, err := afero.ReadFile(fsys, testPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 1`)
	assert.Contains(t, string(data), `"show_id": "naruto"`)
	assert.Contains(t, string(data), `"updated_at": "2026-10-19T18:15:30.123456789Z"`)

	exists, err := afero.Exists(fsys, testPath+".lock")
	require.NoError(t, err)
	assert.False(t, exists, "lock is released after the operation")
}

func TestGetMissing(t *testing.T) {
	s, _, _ := newTestStore(t)

	got, err := s.Get("never-watched")
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())
}

func TestContinueWatchingOrder(t *testing.T) {
	s, _, now := newTestStore(t)

	for _, title := range []string{"Bleach", "Naruto", "One Piece"} {
		show := media.Show{ID: strings.ToLower(title), Title: title}
		require.NoError(t, s.RecordProgress(show, 1, 0))
		*now = now.Add(time.Second)
	}
	*now = now.Add(time.Second)
	require.NoError(t, s.RecordProgress(media.Show{ID: "bleach", Title: "Bleach"}, 2, 0))

	entries, err := s.ContinueWatching()
	require.NoError(t, err)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ShowID)
	}
	assert.Equal(t, []string{"bleach", "one piece", "naruto"}, ids)
}

func TestRemoveAndClear(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.RecordProgress(naruto(), 1, 0))
	require.NoError(t, s.RecordProgress(media.Show{ID: "bleach", Title: "Bleach"}, 1, 0))

	removed, err := s.Remove("naruto")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove("naruto")
	require.NoError(t, err)
	assert.False(t, removed)

	entries, err := s.ContinueWatching()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bleach", entries[0].ShowID)

	require.NoError(t, s.Clear())
	entries, err = s.ContinueWatching()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearch(t *testing.T) {
	s, _, _ := newTestStore(t)
	for _, title := range []string{"Naruto Shippuden", "Fullmetal Alchemist: Brotherhood", "Frieren"} {
		require.NoError(t, s.RecordProgress(media.Show{ID: strings.ToLower(title), Title: title}, 1, 0))
	}

	got, err := s.Search("fma")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fullmetal Alchemist: Brotherhood", got[0].Title)

	got, err = s.Search("NARUTO")
	require.NoError(t, err)
	require.Len(t, got, 1)

	all, err := s.Search("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCorruptFile(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	require.NoError(t, afero.WriteFile(fsys, testPath, []byte("{not json"), 0o600))

	_, err := s.ContinueWatching()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing history")
}

func TestUnsupportedVersion(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	require.NoError(t, afero.WriteFile(fsys, testPath, []byte(`{"version":2,"entries":[]}`), 0o600))

	_, err := s.Get("naruto")
	assert.ErrorContains(t, err, "unsupported version 2")
}

func TestHeldLockTimesOut(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	s.lockWait = 50 * time.Millisecond
	require.NoError(t, afero.WriteFile(fsys, testPath+".lock", []byte("1\n"), 0o600))

	err := s.RecordProgress(naruto(), 1, 0)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStaleLockIsBroken(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	lockPath := testPath + ".lock"
	require.NoError(t, afero.WriteFile(fsys, lockPath, []byte("1\n"), 0o600))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, fsys.Chtimes(lockPath, old, old))

	require.NoError(t, s.RecordProgress(naruto(), 1, 0))
}

func TestStaleLockBreakSparesNewerLock(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	lockPath := testPath + ".lock"
	require.NoError(t, afero.WriteFile(fsys, lockPath, []byte("41-1\n"), 0o600))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, fsys.Chtimes(lockPath, old, old))

	held, stale := s.staleLock(lockPath)
	require.True(t, stale)
	assert.Equal(t, "41-1\n", held)

	// another process broke the same stale lock first and took it
	require.NoError(t, fsys.Remove(lockPath))
	require.NoError(t, afero.WriteFile(fsys, lockPath, []byte("42-2\n"), 0o600))

	assert.False(t, s.removeLock(lockPath, held))
	got, err := afero.ReadFile(fsys, lockPath)
	require.NoError(t, err)
	assert.Equal(t, "42-2\n", string(got))
}

func TestUnlockLeavesForeignLock(t *testing.T) {
	s, fsys, _ := newTestStore(t)
	lockPath := testPath + ".lock"

	unlock, err := s.lock()
	require.NoError(t, err)

	// our lock was broken as stale and someone else holds it now
	require.NoError(t, afero.WriteFile(fsys, lockPath, []byte("42-2\n"), 0o600))
	unlock()

	exists, err := afero.Exists(fsys, lockPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	s := New(afero.NewOsFs(), path)

	require.NoError(t, s.RecordProgress(naruto(), 2, 61))
	got, err := s.Get("naruto")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MustGet().EpisodeNumber)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "history-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are renamed away")
}

func TestFormatForDisplay(t *testing.T) {
	lines := FormatForDisplay([]media.HistoryEntry{
		{Title: "Naruto", EpisodeNumber: 4},
		{Title: "One Piece", EpisodeNumber: 1000, PositionSeconds: 3725},
		{Title: "Frieren", EpisodeNumber: 2, PositionSeconds: 95},
	})
	assert.Equal(t, []string{
		"Naruto - episode 4",
		"One Piece - episode 1000 [1:02:05]",
		"Frieren - episode 2 [1:35]",
	}, lines)
}
