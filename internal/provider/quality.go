package provider

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// candidate is one playable link a provider offers for an episode.
type candidate struct {
	URL     string
	Label   string // "1080p", "auto", "hls", "default", ...
	Headers map[string]string
}

// height returns the vertical resolution encoded in the label, 0 when the
// label carries none (adaptive streams).
func (c candidate) height() int {
	digits := strings.TrimFunc(c.Label, func(r rune) bool { return !unicode.IsDigit(r) })
	if i := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }); i >= 0 {
		digits = digits[:i]
	}
	h, _ := strconv.Atoi(digits)
	return h
}

func (c candidate) adaptive() bool {
	return lo.Contains([]string{"auto", "hls", "default", "backup"}, strings.ToLower(c.Label)) || c.height() == 0
}

// pickQuality chooses a link for the preferred quality: "best" takes the
// highest resolution, "worst" the lowest, a number takes that resolution.
// Without a resolution match an adaptive stream is preferred, then the first link.
func pickQuality(cands []candidate, preferred string) (candidate, bool) {
	usable := lo.Filter(cands, func(c candidate, _ int) bool { return c.URL != "" })
	if len(usable) == 0 {
		return candidate{}, false
	}

	var (
		best, worst candidate
		found       bool
	)
	for _, c := range usable {
		h := c.height()
		if h == 0 {
			continue
		}
		if !found || h > best.height() {
			best = c
		}
		if !found || h < worst.height() {
			worst = c
		}
		found = true
	}

	switch preferred {
	case "best", "":
		if found {
			return best, true
		}
	case "worst":
		if found {
			return worst, true
		}
	default:
		want, _ := strconv.Atoi(strings.TrimSuffix(preferred, "p"))
		for _, c := range usable {
			if want > 0 && c.height() == want {
				return c, true
			}
		}
	}

	if c, ok := lo.Find(usable, candidate.adaptive); ok {
		return c, true
	}
	if found {
		return best, true
	}
	return usable[0], true
}
