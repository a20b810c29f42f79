package provider

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// hianimeServer is one streaming server offered for an episode.
type hianimeServer struct {
	ID   string // data-id, passed to the sources endpoint
	Name string // HD-1, HD-2, ...
	Type string // sub, dub, raw
}

// parseSearchResults extracts result cards from a HiAnime search page.
// Uses DOM parsing so markup in titles is never interpreted.
func parseSearchResults(doc *goquery.Document) []Result {
	var results []Result

	doc.Find(".film_list-wrap .flw-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".film-detail .film-name a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		id := extractID(href)
		if title == "" || id == "" {
			return
		}

		r := Result{ID: id, Title: title}
		if jname := strings.TrimSpace(link.AttrOr("data-jname", "")); jname != "" && jname != title {
			r.AltTitles = append(r.AltTitles, jname)
		}

		img := s.Find(".film-poster img").First()
		r.Thumbnail = img.AttrOr("data-src", img.AttrOr("src", ""))

		sub, _ := strconv.Atoi(strings.TrimSpace(s.Find(".tick-sub").First().Text()))
		dub, _ := strconv.Atoi(strings.TrimSpace(s.Find(".tick-dub").First().Text()))
		r.Episodes = max(sub, dub)

		results = append(results, r)
	})

	return results
}

// parseEpisodeList extracts numbered episodes from the episode list fragment.
func parseEpisodeList(doc *goquery.Document) []EpisodeRef {
	var episodes []EpisodeRef

	doc.Find(".ep-item").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-id")
		if !ok || id == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(s.AttrOr("data-number", "")))
		if err != nil || n <= 0 {
			return
		}
		episodes = append(episodes, EpisodeRef{Number: n, ID: id})
	})

	return episodes
}

// parseServers extracts the servers of the given type from the servers fragment.
func parseServers(doc *goquery.Document, mode string) []hianimeServer {
	var servers []hianimeServer

	doc.Find(".server-item").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-id")
		if !ok || id == "" {
			return
		}
		typ := strings.ToLower(s.AttrOr("data-type", ""))
		if mode != "" && typ != mode {
			return
		}
		servers = append(servers, hianimeServer{
			ID:   id,
			Name: strings.TrimSpace(s.Text()),
			Type: typ,
		})
	})

	return servers
}

// extractID extracts the show slug from a card link.
// e.g., "/naruto-677?ref=search" -> "naruto-677"
func extractID(urlPath string) string {
	id := strings.TrimPrefix(urlPath, "/")
	if idx := strings.IndexAny(id, "?#"); idx != -1 {
		id = id[:idx]
	}
	id = strings.TrimPrefix(id, "watch/")
	return id
}

// extractNumericID extracts the trailing numeric ID from a slug.
// e.g., "naruto-677" -> "677"
func extractNumericID(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err == nil {
		return last
	}
	return ""
}
