package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ani-tui/internal/media"
)

func newConsumetServer(t *testing.T, mode string) *Consumet {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/anime/gogoanime/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/anime/gogoanime/one piece" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"results":[
			{"id":"one-piece","title":"One Piece","image":"https://img.example/op.png","subOrDub":"sub"},
			{"id":"one-piece-dub","title":"One Piece (Dub)","subOrDub":"dub"},
			{"id":"one-piece-film-red","title":{"romaji":"One Piece Film: Red","english":"One Piece Film Red"}}
		]}`))
	})
	mux.HandleFunc("/anime/gogoanime/info/one-piece", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"one-piece","episodes":[
			{"id":"one-piece-episode-2","number":2},
			{"id":"one-piece-episode-1","number":1},
			{"id":"one-piece-episode-1-5","number":1.5}
		]}`))
	})
	mux.HandleFunc("/anime/gogoanime/watch/one-piece-episode-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"headers":{"Referer":"https://gogo.example/"},
			"sources":[
				{"url":"https://cdn.example/op1-360.m3u8","quality":"360p","isM3U8":true},
				{"url":"https://cdn.example/op1-720.m3u8","quality":"720p","isM3U8":true},
				{"url":"https://cdn.example/op1.m3u8","quality":"default","isM3U8":true}
			],
			"subtitles":[
				{"url":"https://cdn.example/en.vtt","lang":"English"},
				{"url":"https://cdn.example/thumbs.vtt","lang":"thumbnails"}
			]
		}`))
	})
	mux.HandleFunc("/anime/gogoanime/watch/empty-episode-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sources":[]}`))
	})

	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	return NewConsumet(Options{
		Client:   srv.Client(),
		Mode:     mode,
		Quality:  "720",
		BaseURLs: map[string]string{"consumet": srv.URL + "/"},
	})
}

func TestConsumetSearch(t *testing.T) {
	c := newConsumetServer(t, "sub")

	results, err := c.Search(context.Background(), "one piece")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "one-piece", results[0].ID)
	assert.Equal(t, "One Piece", results[0].Title)
	assert.Equal(t, "One Piece Film: Red", results[1].Title)
	assert.Equal(t, []string{"One Piece Film Red"}, results[1].AltTitles)
}

func TestConsumetSearchDub(t *testing.T) {
	c := newConsumetServer(t, "dub")

	results, err := c.Search(context.Background(), "one piece")
	require.NoError(t, err)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"one-piece-dub", "one-piece-film-red"}, ids)
}

func TestConsumetListEpisodes(t *testing.T) {
	c := newConsumetServer(t, "sub")

	episodes, err := c.ListEpisodes(context.Background(), "one-piece")
	require.NoError(t, err)
	assert.Equal(t, []EpisodeRef{
		{Number: 1, ID: "one-piece-episode-1"},
		{Number: 2, ID: "one-piece-episode-2"},
	}, episodes)
}

func TestConsumetListEpisodesUnknownShow(t *testing.T) {
	c := newConsumetServer(t, "sub")

	_, err := c.ListEpisodes(context.Background(), "missing-show")
	assert.True(t, errors.Is(err, media.ErrNotFound), "got %v", err)
}

func TestConsumetExtractStream(t *testing.T) {
	c := newConsumetServer(t, "sub")

	stream, err := c.ExtractStream(context.Background(), "one-piece-episode-1")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/op1-720.m3u8", stream.URL)
	assert.Equal(t, "720p", stream.Quality)
	assert.Equal(t, "consumet", stream.Provider)
	assert.Equal(t, "https://gogo.example/", stream.Headers["Referer"])
	require.Len(t, stream.Subtitles, 1)
	assert.Equal(t, "English", stream.Subtitles[0].Language)
}

func TestConsumetExtractStreamNoSources(t *testing.T) {
	c := newConsumetServer(t, "sub")

	_, err := c.ExtractStream(context.Background(), "empty-episode-1")
	assert.True(t, errors.Is(err, media.ErrNoStream), "got %v", err)
}
