package catalog

import (
	"maps"
	"slices"

	"ani-tui/internal/media"
	"ani-tui/internal/provider"
)

// mergeResults folds per-provider search results into canonical shows.
// slots[i] holds the results of names[i]; the output order is provider
// order, then result order within a provider.
func mergeResults(names []string, slots [][]provider.Result) []media.Show {
	index := make(map[string]int)
	shows := []media.Show{}

	for i, results := range slots {
		for _, res := range results {
			incoming := showFromResult(names[i], res)
			if j, ok := index[incoming.ID]; ok {
				shows[j] = mergeShow(shows[j], incoming)
				continue
			}
			index[incoming.ID] = len(shows)
			shows = append(shows, incoming)
		}
	}
	return shows
}

func showFromResult(providerName string, res provider.Result) media.Show {
	key := NormalizeTitle(res.Title)
	s := media.Show{
		ID:              key,
		Title:           res.Title,
		NormalizedTitle: key,
		ProviderIDs:     map[string]string{providerName: res.ID},
		Thumbnail:       res.Thumbnail,
		Episodes:        res.Episodes,
	}
	s.Aliases = appendIfMissing(s.Aliases, res.Title)
	for _, alt := range res.AltTitles {
		s.Aliases = appendIfMissing(s.Aliases, alt)
	}
	return s
}

// mergeShow folds incoming into base. base keeps its title; aliases and
// provider IDs are unioned with the first ID per provider winning; the
// largest advertised episode count is kept. Merging a show into itself
// changes nothing.
func mergeShow(base, incoming media.Show) media.Show {
	base.Aliases = slices.Clone(base.Aliases)
	for _, alias := range incoming.Aliases {
		base.Aliases = appendIfMissing(base.Aliases, alias)
	}

	ids := maps.Clone(base.ProviderIDs)
	if ids == nil {
		ids = make(map[string]string, len(incoming.ProviderIDs))
	}
	for name, id := range incoming.ProviderIDs {
		if _, ok := ids[name]; !ok {
			ids[name] = id
		}
	}
	base.ProviderIDs = ids

	if base.Thumbnail == "" {
		base.Thumbnail = incoming.Thumbnail
	}
	base.Episodes = max(base.Episodes, incoming.Episodes)
	return base
}

func appendIfMissing(slice []string, v string) []string {
	if v == "" || slices.Contains(slice, v) {
		return slice
	}
	return append(slice, v)
}
