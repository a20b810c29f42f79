// Package subtitle picks the subtitle track to hand to the player.
// Providers label tracks inconsistently ("English", "eng", "en - SDH"),
// so matching accepts the common ISO codes of a language too.
package subtitle

import (
	"strings"
	"unicode"

	"github.com/samber/lo"

	"ani-tui/internal/media"
)

// codes maps a language name to the short codes providers use for it.
var codes = map[string][]string{
	"english":    {"en", "eng"},
	"spanish":    {"es", "spa", "español"},
	"portuguese": {"pt", "por", "pt-br", "português"},
	"french":     {"fr", "fre", "fra", "français"},
	"german":     {"de", "ger", "deu", "deutsch"},
	"italian":    {"it", "ita", "italiano"},
	"arabic":     {"ar", "ara"},
	"russian":    {"ru", "rus"},
	"indonesian": {"id", "ind"},
	"japanese":   {"ja", "jpn"},
}

// Filter returns subtitles matching the preferred language (case-insensitive).
// An empty language matches every track.
func Filter(subtitles []media.Subtitle, language string) []media.Subtitle {
	if language == "" {
		return subtitles
	}

	lang := strings.ToLower(strings.TrimSpace(language))
	return lo.Filter(subtitles, func(sub media.Subtitle, _ int) bool {
		return matches(sub, lang)
	})
}

// BestMatch returns the best track for language, preferring tracks that
// are not SDH/CC variants.
func BestMatch(subtitles []media.Subtitle, language string) (media.Subtitle, bool) {
	filtered := Filter(subtitles, language)
	if len(filtered) == 0 {
		return media.Subtitle{}, false
	}

	if sub, ok := lo.Find(filtered, func(sub media.Subtitle) bool { return !hearingImpaired(sub) }); ok {
		return sub, true
	}
	return filtered[0], true
}

// Pick returns the URL of the track to load, or "" when subtitles are
// disabled or none matches.
func Pick(subtitles []media.Subtitle, language string, disabled bool) string {
	if disabled {
		return ""
	}
	sub, ok := BestMatch(subtitles, language)
	if !ok {
		return ""
	}
	return sub.URL
}

func matches(sub media.Subtitle, lang string) bool {
	label := strings.ToLower(sub.Label)
	language := strings.ToLower(sub.Language)
	if strings.Contains(language, lang) || strings.Contains(label, lang) {
		return true
	}

	// Short codes only match whole words so "en" never matches "French".
	return lo.ContainsBy(append(words(language), words(label)...), func(field string) bool {
		return lo.Contains(codes[lang], field)
	})
}

func hearingImpaired(sub media.Subtitle) bool {
	fields := words(strings.ToLower(sub.Label))
	return lo.Contains(fields, "sdh") || lo.Contains(fields, "cc")
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
}
