package ytvideodata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		url string
		id  string
		err error
	}{
		{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", id: "dQw4w9WgXcQ"},
		{url: "youtube.com/watch?feature=share&v=dQw4w9WgXcQ", id: "dQw4w9WgXcQ"},
		{url: "https://youtu.be/dQw4w9WgXcQ?t=42", id: "dQw4w9WgXcQ"},
		{url: "http://youtube.com/embed/a-b_c-d_e-f", id: "a-b_c-d_e-f"},
		{url: "https://vimeo.com/123", err: ErrInvalidURL},
		{url: "https://youtu.be/short", err: ErrInvalidURL},
		{url: "", err: ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, err := ParseVideoID(tt.url)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, IsVideoURL(tt.url))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.True(t, IsVideoURL(tt.url))
		})
	}
}

func TestGetFallsBackToPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Some Song</title></head><body><span><link itemprop="name" content="Some Artist"></span></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(time.Second)
	c.oembedBase = srv.URL + "/oembed"
	c.pageBase = srv.URL + "/page/"

	data, err := c.Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Some Song", data.Title)
	assert.Equal(t, "Some Artist", data.AuthorName)
	assert.Contains(t, data.ThumbnailUrl, "dQw4w9WgXcQ")
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	c.oembedBase = srv.URL

	_, err := c.Get(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}
