// Package media defines shared types for the ani-tui application.
package media

import "time"

// Show is a canonical show merged from one or more providers.
type Show struct {
	ID              string            // Canonical ID, equal to NormalizedTitle
	Title           string            // Title as first reported, in the first provider's casing
	NormalizedTitle string            // Case/punctuation-insensitive dedup key
	Aliases         []string          // Every raw title seen, insertion ordered, no duplicates
	ProviderIDs     map[string]string // Provider name -> provider show ID
	Thumbnail       string            // Poster URL, first non-empty wins
	Episodes        int               // Largest episode count advertised by any provider
}

// HasProvider reports whether the show carries an ID for the named provider.
func (s Show) HasProvider(name string) bool {
	_, ok := s.ProviderIDs[name]
	return ok
}

// Episode is a canonical, numbered episode of a Show.
type Episode struct {
	ShowID      string
	Number      int               // Positive, gaps allowed
	ProviderIDs map[string]string // Provider name -> provider episode ID
}

// StreamSource is a playable media location. It is never persisted.
type StreamSource struct {
	URL        string            // m3u8 or direct video URL
	Headers    map[string]string // Headers the player must send (Referer, User-Agent, ...)
	Quality    string            // Resolved quality label, e.g. "1080p" or "auto"
	Subtitles  []Subtitle        // Available subtitle tracks
	Provider   string            // Provider that produced the source
	ResolvedAt time.Time
	ExpiresAt  time.Time // Zero when the provider imposes no expiry
}

// Expired reports whether the source is past its provider-imposed expiry.
func (s *StreamSource) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Subtitle represents a subtitle track.
type Subtitle struct {
	Language string // e.g., "English"
	Label    string // Display label, e.g., "English - SDH"
	URL      string // URL to the subtitle file (usually VTT)
}

// HistoryEntry is the resume record for one show.
type HistoryEntry struct {
	ShowID          string    `json:"show_id"`
	Title           string    `json:"title"`
	EpisodeNumber   int       `json:"episode_number"`
	PositionSeconds float64   `json:"position_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
}
