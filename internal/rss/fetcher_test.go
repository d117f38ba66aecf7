package rss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProxy serves the allorigins-style /get endpoint with fixed feed content.
func newProxy(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"contents": content})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxyURL(t *testing.T) {
	got, err := ProxyURL("https://allorigins.hexlet.app/", "https://example.com/rss?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://allorigins.hexlet.app/get?disableCache=true&url=https%3A%2F%2Fexample.com%2Frss%3Fx%3D1", got)
}

func TestFetchThroughProxy(t *testing.T) {
	var gotURL, gotCache, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		gotCache = r.URL.Query().Get("disableCache")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"contents":"<rss/>","status":{"http_code":200}}`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{ProxyURL: srv.URL, UserAgent: "test-agent"})
	content, err := f.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)

	assert.Equal(t, "<rss/>", content)
	assert.Equal(t, "https://example.com/rss", gotURL)
	assert.Equal(t, "true", gotCache)
	assert.Equal(t, "test-agent", gotUA)
}

func TestFetchDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSSFeed)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{})
	ch, err := f.FetchChannel(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Test Blog", ch.Title)
	assert.Len(t, ch.Items, 3)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{ProxyURL: srv.URL})
	_, err := f.Fetch(context.Background(), "https://example.com/rss")
	require.Error(t, err)

	var nerr *NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, http.StatusBadGateway, nerr.StatusCode)
	assert.Equal(t, model.ErrorNetwork, Classify(err))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(FetcherConfig{ProxyURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "https://example.com/rss")
	require.Error(t, err)
	assert.Equal(t, model.ErrorNetwork, Classify(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewFetcher(FetcherConfig{ProxyURL: addr})
	_, err := f.Fetch(context.Background(), "https://example.com/rss")
	assert.Equal(t, model.ErrorNetwork, Classify(err))
}

func TestFetchMalformedProxyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{ProxyURL: srv.URL})
	_, err := f.Fetch(context.Background(), "https://example.com/rss")
	assert.Equal(t, model.ErrorNetwork, Classify(err))
}

func TestFetchChannelParsingError(t *testing.T) {
	srv := newProxy(t, "definitely not a feed")

	f := NewFetcher(FetcherConfig{ProxyURL: srv.URL})
	_, err := f.FetchChannel(context.Background(), "https://example.com/rss")
	assert.Equal(t, model.ErrorRSS, Classify(err))
}

func TestFetchLimitedSerializesPerHost(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, testRSSFeed)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{PerHost: 1, HostDelay: time.Millisecond})
	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := f.FetchLimited(context.Background(), srv.URL)
			done <- err
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, model.ErrorNone, Classify(nil))
	assert.Equal(t, model.ErrorUnknown, Classify(errors.New("something else")))
	assert.Equal(t, model.ErrorRSS, Classify(fmt.Errorf("wrapped: %w", &ParsingError{Reason: "x"})))
}
