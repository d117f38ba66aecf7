package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/rssagg/internal/app"
	"github.com/bryan-buckman/rssagg/internal/config"
	"github.com/bryan-buckman/rssagg/internal/metrics"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Example</title><description>Example feed</description>
  <item><title>Hello</title><link>https://example.com/hello</link><description>Hello body</description></item>
</channel></rss>`

type fixture struct {
	app *app.App
	srv *Server
	web *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "https://example.com/rss" {
			http.Error(w, "upstream failed", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"contents": helloFeed})
	}))
	t.Cleanup(proxy.Close)

	cfg := config.Default()
	cfg.Proxy.URL = proxy.URL
	cfg.Poll.Disabled = true

	reg := prometheus.NewRegistry()
	a, err := app.New(context.Background(), cfg, app.Options{Metrics: metrics.New(reg)})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	s, err := New(a, reg)
	require.NoError(t, err)
	web := httptest.NewServer(s.Handler())
	t.Cleanup(web.Close)
	return &fixture{app: a, srv: s, web: web}
}

func (f *fixture) addFeed(t *testing.T) model.Post {
	t.Helper()
	require.Equal(t, model.ErrorNone, f.app.Submit(context.Background(), "https://example.com/rss"))
	return f.app.Store().GetState().Posts[0]
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHomePage(t *testing.T) {
	f := setup(t)
	f.addFeed(t)

	resp, err := http.Get(f.web.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, `class="rss-form`)
	assert.Contains(t, body, `data-region="feeds"`)
	assert.Contains(t, body, "Example feed")
	assert.Contains(t, body, "Hello")
	assert.NotContains(t, body, "show d-block")
}

func TestSubmitAPIValidationError(t *testing.T) {
	f := setup(t)

	resp := postJSON(t, f.web.URL+"/api/feeds", map[string]string{"url": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "notUrl", out["error"])
	assert.Equal(t, "Link must be a valid URL", out["message"])
}

func TestSubmitAPIAccepted(t *testing.T) {
	f := setup(t)

	resp := postJSON(t, f.web.URL+"/api/feeds", map[string]string{"url": "https://example.com/rss"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(f.app.Store().GetState().Feeds) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitAPIBadJSON(t *testing.T) {
	f := setup(t)
	resp, err := http.Post(f.web.URL+"/api/feeds", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitFormRedirects(t *testing.T) {
	f := setup(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.PostForm(f.web.URL+"/feeds", url.Values{"url": {"https://example.com/rss"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Len(t, f.app.Store().GetState().Feeds, 1)
}

func TestOpenPostAPI(t *testing.T) {
	f := setup(t)
	post := f.addFeed(t)

	resp := postJSON(t, f.web.URL+"/api/posts/"+post.ID+"/open", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, f.app.Store().GetState().IsSeen(post.ID))

	resp = postJSON(t, f.web.URL+"/api/posts/missing/open", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, f.web.URL+"/api/modal/close", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.app.Store().GetState().Modal.PostID)
}

func TestPostPageShowsModal(t *testing.T) {
	f := setup(t)
	post := f.addFeed(t)

	resp, err := http.Get(f.web.URL + "/posts/" + post.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "show d-block")
	assert.Contains(t, body, "Hello body")
	assert.Contains(t, body, "fw-normal link-secondary")

	resp, err = http.Get(f.web.URL + "/posts/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateEndpoint(t *testing.T) {
	f := setup(t)
	post := f.addFeed(t)
	require.NoError(t, f.app.OpenPost(post.ID))

	resp, err := http.Get(f.web.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Feeds, 1)
	assert.Len(t, out.Posts, 1)
	assert.Equal(t, []string{post.ID}, out.SeenPosts)
	assert.Equal(t, model.LoadingIdle, out.LoadingProcess.Status)
	assert.Equal(t, post.ID, out.Modal.PostID)
}

func TestRegionEndpoint(t *testing.T) {
	f := setup(t)
	f.addFeed(t)

	resp, err := http.Get(f.web.URL + "/api/regions/posts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Hello")

	resp, err = http.Get(f.web.URL + "/api/regions/sidebar")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshEndpoint(t *testing.T) {
	f := setup(t)
	f.addFeed(t)

	resp := postJSON(t, f.web.URL+"/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, float64(1), out["feeds"])
	assert.Equal(t, float64(0), out["new_posts"])
}

func TestOPMLImportAndExport(t *testing.T) {
	f := setup(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("opml", "subs.opml")
	require.NoError(t, err)
	io.WriteString(fw, `<opml version="2.0"><body><outline text="Ex" xmlUrl="https://example.com/rss"/></body></opml>`)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.web.URL+"/api/opml/import", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, f.app.Store().GetState().Feeds, 1)

	resp, err = http.Get(f.web.URL + "/api/opml/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, readBody(t, resp), `xmlUrl="https://example.com/rss"`)
}

func TestOPMLImportWithoutFile(t *testing.T) {
	f := setup(t)
	resp := postJSON(t, f.web.URL+"/api/opml/import", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t)
	f.addFeed(t)

	resp, err := http.Get(f.web.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := readBody(t, resp)
	assert.Contains(t, body, `rssagg_submissions_total{outcome="ok"} 1`)
	assert.Contains(t, body, "rssagg_tracked_feeds 1")
}

func TestStaticAssets(t *testing.T) {
	f := setup(t)
	resp, err := http.Get(f.web.URL + "/static/app.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketReceivesRegions(t *testing.T) {
	f := setup(t)

	wsURL := "ws" + strings.TrimPrefix(f.web.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.srv.Hub().Count() == 1 }, time.Second, 5*time.Millisecond)

	f.addFeed(t)

	seen := map[string]string{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for seen["posts"] == "" {
		var msg RegionMessage
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Region] = msg.HTML
	}
	assert.Contains(t, seen["feeds"], "Example feed")
	assert.Contains(t, seen["posts"], "Hello")
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	h := NewHub()
	queue := h.AddClient("slow")
	for i := 0; i < clientBuffer+5; i++ {
		h.Broadcast("posts", "x")
	}
	assert.Len(t, queue, clientBuffer)

	h.RemoveClient("slow")
	h.RemoveClient("slow")
	assert.Equal(t, 0, h.Count())
}
