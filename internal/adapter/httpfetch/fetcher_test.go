package httpfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/repository"
)

func newTestClient(t *testing.T, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		FetchTimeout: 2 * time.Second,
		ProbeTimeout: 2 * time.Second,
		MaxRedirects: 3,
		MaxBodyBytes: 1024,
		UserAgent:    "TestBot/1.0",
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func newSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>ua=%s</title></head></html>", r.UserAgent())
	})
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/hop/"), "%d", &n)
		if n == 0 {
			http.Redirect(w, r, "/page", http.StatusMovedPermanently)
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("a", 4096)))
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/nohead", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_HTMLPage(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)

	res, err := c.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, res.IsHTML())
	assert.False(t, res.TooLarge)
	assert.Zero(t, res.RedirectHops)
	assert.Contains(t, string(res.Body), "ua=TestBot/1.0")
	assert.Equal(t, int64(len(res.Body)), res.SizeBytes)
}

func TestFetch_FollowsRedirectsAndCountsHops(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)

	res, err := c.Fetch(context.Background(), srv.URL+"/hop/1")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/page", res.FinalURL)
	assert.Equal(t, srv.URL+"/hop/1", res.RequestedURL)
	assert.Equal(t, 2, res.RedirectHops)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)

	_, err := c.Fetch(context.Background(), srv.URL+"/hop/5")
	assert.ErrorIs(t, err, repository.ErrTooManyRedirects)
}

func TestFetch_OversizedBodyIsDiscarded(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)

	res, err := c.Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.True(t, res.TooLarge)
	assert.Nil(t, res.Body)
	assert.Greater(t, res.SizeBytes, int64(1024))
}

func TestFetch_NonHTMLAndErrorStatusAreResults(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)

	res, err := c.Fetch(context.Background(), srv.URL+"/pdf")
	require.NoError(t, err)
	assert.False(t, res.IsHTML())

	res, err = c.Fetch(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFetch_Timeout(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, func(o *Options) { o.FetchTimeout = 50 * time.Millisecond })

	_, err := c.Fetch(context.Background(), srv.URL+"/slow")
	assert.ErrorIs(t, err, repository.ErrFetchTimeout)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := newSite(t)
	addr := srv.URL
	srv.Close()
	c := newTestClient(t, nil)

	_, err := c.Fetch(context.Background(), addr+"/page")
	assert.ErrorIs(t, err, repository.ErrFetchFailed)
}

func TestProbe(t *testing.T) {
	srv := newSite(t)
	c := newTestClient(t, nil)
	ctx := context.Background()

	res, err := c.Probe(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = c.Probe(ctx, srv.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = c.Probe(ctx, srv.URL+"/nohead")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode, "GET fallback after 405")

	res, err = c.Probe(ctx, srv.URL+"/hop/0")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RedirectHops)
	assert.Equal(t, srv.URL+"/page", res.FinalURL)
}

func TestRotator(t *testing.T) {
	r, err := NewRotator([]string{"http://p1:8080", "http://p2:8080"}, "")
	require.NoError(t, err)

	first, _ := r.Proxy(nil)
	second, _ := r.Proxy(nil)
	third, _ := r.Proxy(nil)
	assert.Equal(t, "p1:8080", first.Host)
	assert.Equal(t, "p2:8080", second.Host)
	assert.Equal(t, "p1:8080", third.Host)
	assert.Contains(t, browserUserAgents, r.UserAgent())

	none, err := NewRotator(nil, "Fixed/1.0")
	require.NoError(t, err)
	p, err := none.Proxy(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "Fixed/1.0", none.UserAgent())
}

func TestHostLimiter(t *testing.T) {
	assert.Nil(t, newHostLimiter(0))
	assert.NoError(t, (*hostLimiter)(nil).Wait(context.Background(), "example.com"))

	l := newHostLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Wait(ctx, "a.example"))
	assert.Error(t, l.Wait(ctx, "a.example"), "second token needs a full second")
	assert.NoError(t, l.Wait(context.Background(), "b.example"), "hosts are limited independently")
}
