package net

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	body, ct, err := Fetch(context.Background(), srv.URL+"/home.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", ct)

	_, _, err = Fetch(context.Background(), srv.URL+"/missing.png")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestFetch_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsNetworkURL(t *testing.T) {
	assert.True(t, IsNetworkURL("http://example.com/a.png"))
	assert.True(t, IsNetworkURL("https://example.com/a.png"))
	assert.False(t, IsNetworkURL("data:image/png;base64,AAAA"))
	assert.False(t, IsNetworkURL("/tmp/a.png"))
}
