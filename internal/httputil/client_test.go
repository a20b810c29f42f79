package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ani-tui/internal/media"
)

func TestGetClassifiesFailures(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "https://allanime.to", r.Header.Get("Referer"))
			assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
			w.Write([]byte(`{"name":"Frieren"}`))
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.Write([]byte(`{"name":`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	client := srv.Client()
	ctx := context.Background()

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, GetJSON(ctx, client, srv.URL+"/ok", map[string]string{"Referer": "https://allanime.to"}, &out))
	assert.Equal(t, "Frieren", out.Name)

	_, err := Get(ctx, client, srv.URL+"/missing", nil)
	assert.True(t, errors.Is(err, media.ErrNotFound), "got %v", err)

	_, err = Get(ctx, client, srv.URL+"/gateway", nil)
	assert.True(t, errors.Is(err, media.ErrNetwork), "got %v", err)

	err = GetJSON(ctx, client, srv.URL+"/broken", nil, &out)
	assert.True(t, errors.Is(err, media.ErrParse), "got %v", err)
}

func TestGetHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Get(ctx, srv.Client(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGetRejectsPlainHTTP(t *testing.T) {
	_, err := Get(context.Background(), NewClient(), "http://example.com", nil)
	assert.Error(t, err)
}
