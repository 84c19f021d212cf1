package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_OK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "StockwatchBot")
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(Options{}, nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, string(res.Body), "hello")
	assert.Contains(t, res.ContentType, "text/html")
}

func TestFetcher_NotFoundStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(Options{}, nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetcher_TimeoutYieldsTypedResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewFetcher(Options{Timeout: 50 * time.Millisecond}, nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Zero(t, res.StatusCode)
}

func TestFetcher_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved here"))
	})

	f := NewFetcher(Options{}, nil)
	res, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", res.URL)
	assert.Contains(t, string(res.Body), "moved here")
}

func TestFetcher_BadURL(t *testing.T) {
	t.Parallel()

	f := NewFetcher(Options{}, nil)
	_, err := f.Fetch(context.Background(), "://notaurl")
	assert.Error(t, err)
}

func TestFetcher_BodyCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	f := NewFetcher(Options{MaxBodyBytes: 1024}, nil)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, 1024)
}

func TestHostLimiter_SpacesRequests(t *testing.T) {
	t.Parallel()

	h := NewHostLimiter(80 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx, "vendor.example"))
	start := time.Now()
	require.NoError(t, h.Wait(ctx, "vendor.example"))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestHostLimiter_IndependentHosts(t *testing.T) {
	t.Parallel()

	h := NewHostLimiter(500 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx, "a.example"))
	start := time.Now()
	require.NoError(t, h.Wait(ctx, "b.example"))
	assert.Less(t, time.Since(start), 200*time.Millisecond, "different host must not wait")
}

func TestHostLimiter_SinceLastAndReset(t *testing.T) {
	t.Parallel()

	h := NewHostLimiter(time.Millisecond)
	assert.Negative(t, h.SinceLast("never.example"))

	h.Record("seen.example")
	assert.GreaterOrEqual(t, h.SinceLast("seen.example"), time.Duration(0))

	h.Reset()
	assert.Negative(t, h.SinceLast("seen.example"))
}
