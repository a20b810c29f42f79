package catalog

import (
	"strings"
	"unicode"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ani-tui/internal/media"
)

// NormalizeTitle returns the dedup key for a title: Unicode case folded,
// diacritics stripped, everything but letters and digits removed.
// "Naruto", "NARUTO" and "Naruto!" share the key "naruto".
func NormalizeTitle(title string) string {
	// Casers and transform chains are stateful, so each call builds its own.
	folder := cases.Fold()
	folded := folder.String(title)
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, folded)
	if err != nil {
		stripped = strings.ToLower(title)
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		// Titles made only of punctuation keep a usable key.
		return strings.Join(strings.Fields(folded), " ")
	}
	return b.String()
}

// Closest returns the show whose normalized title or alias is nearest to
// title by edit distance.
func Closest(shows []media.Show, title string) (media.Show, bool) {
	if len(shows) == 0 {
		return media.Show{}, false
	}
	key := NormalizeTitle(title)

	distance := func(s media.Show) int {
		best := levenshtein.Distance(key, s.NormalizedTitle)
		for _, alias := range s.Aliases {
			best = min(best, levenshtein.Distance(key, NormalizeTitle(alias)))
		}
		return best
	}

	return lo.MinBy(shows, func(a, b media.Show) bool {
		return distance(a) < distance(b)
	}), true
}
