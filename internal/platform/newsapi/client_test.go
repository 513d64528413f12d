package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.NotEmpty(t, r.URL.Query().Get("q"))

		w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{
					"source": {"name": "Newswire"},
					"title": "Fed signals rate cut",
					"description": "Dovish tone in the minutes.",
					"url": "https://example.com/a1",
					"publishedAt": "2026-08-28T12:00:00Z"
				},
				{
					"source": {"name": "Wire"},
					"title": "",
					"url": "https://example.com/skipped",
					"publishedAt": "2026-08-28T12:01:00Z"
				}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	items, err := c.FetchHeadlines(context.Background(), "", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/a1", items[0].ID)
	assert.Equal(t, "Fed signals rate cut", items[0].Title)
	assert.Equal(t, "Newswire", items[0].Source)
	assert.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), items[0].PublishedAt)
}

func TestFetchHeadlinesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad")
	_, err := c.FetchHeadlines(context.Background(), "crypto", time.Time{}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}
