package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const oneItemRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
  <item><title>Commission votes on budget</title><link>/news/budget</link></item>
</channel></rss>`

// hitServer serves fixed responses by request URI and counts every request.
type hitServer struct {
	mu     sync.Mutex
	hits   map[string]int
	routes map[string]http.HandlerFunc
	*httptest.Server
}

func newHitServer(t *testing.T, routes map[string]http.HandlerFunc) *hitServer {
	t.Helper()
	s := &hitServer{hits: make(map[string]int), routes: routes}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.RequestURI()]++
		s.mu.Unlock()
		if h, ok := s.routes[r.URL.RequestURI()]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *hitServer) count(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri]
}

func (s *hitServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

func serve(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func newTestResolver(t *testing.T, timeout time.Duration, discover bool) *Resolver {
	return NewResolver(NewHTTPClient(timeout, 0, "countywire-test"), discover, zaptest.NewLogger(t))
}

func TestCandidatesExplicitFirst(t *testing.T) {
	src := catalog.Source{
		FeedURL:  "https://news.example.com/custom.rss",
		Homepage: "https://news.example.com/local/index.html",
	}
	got := Candidates(src)
	require.NotEmpty(t, got)
	assert.Equal(t, "https://news.example.com/custom.rss", got[0])
	assert.Equal(t, "https://news.example.com/feed", got[1])
	assert.Contains(t, got, "https://news.example.com/?feed=rss2")
	assert.Contains(t, got, "https://news.example.com/feeds/posts/default")

	noFeed := Candidates(catalog.Source{Homepage: "https://news.example.com"})
	assert.Equal(t, "https://news.example.com/feed", noFeed[0])
}

func TestResolveStopsAtFirstParseableCandidate(t *testing.T) {
	srv := newHitServer(t, map[string]http.HandlerFunc{
		"/a": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"/feed":  serve(oneItemRSS),
		"/feed/": serve(oneItemRSS),
	})
	src := catalog.Source{State: "FL", County: "Bay", Name: "Herald", FeedURL: srv.URL + "/a", Homepage: srv.URL}

	feed, err := newTestResolver(t, time.Second, true).Resolve(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/feed", feed.URL)
	assert.Equal(t, 2, feed.Attempts)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, srv.URL+"/news/budget", feed.Items[0].Link)
	assert.Equal(t, 1, srv.count("/a"))
	assert.Equal(t, 0, srv.count("/feed/"))
	assert.Equal(t, 2, srv.total())
}

func TestResolveSkipsUnparseableAndEmptyFeeds(t *testing.T) {
	srv := newHitServer(t, map[string]http.HandlerFunc{
		"/explicit": serve(`<html><body>moved</body></html>`),
		"/feed":     serve(`<?xml version="1.0"?><rss version="2.0"><channel><title>empty</title></channel></rss>`),
		"/rss":      serve(oneItemRSS),
	})
	src := catalog.Source{Name: "Gazette", FeedURL: srv.URL + "/explicit", Homepage: srv.URL}

	feed, err := newTestResolver(t, time.Second, false).Resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/rss", feed.URL)
}

func TestResolveTreatsTimeoutAsNextCandidate(t *testing.T) {
	srv := newHitServer(t, map[string]http.HandlerFunc{
		"/slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
		"/feed": serve(oneItemRSS),
	})
	src := catalog.Source{Name: "Slow", FeedURL: srv.URL + "/slow", Homepage: srv.URL}

	feed, err := newTestResolver(t, 100*time.Millisecond, false).Resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/feed", feed.URL)
}

func TestResolveNotFound(t *testing.T) {
	srv := newHitServer(t, nil)
	src := catalog.Source{Name: "Dead", Homepage: srv.URL}

	_, err := newTestResolver(t, time.Second, false).Resolve(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedNotFound))
	assert.Equal(t, len(conventionalFeedPaths), srv.total())
}

func TestResolveDiscoversAdvertisedFeed(t *testing.T) {
	page := `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" title="News" href="/custom/news.xml">
</head><body>home</body></html>`
	srv := newHitServer(t, map[string]http.HandlerFunc{
		"/":                serve(page),
		"/custom/news.xml": serve(oneItemRSS),
	})
	src := catalog.Source{Name: "Weekly", Homepage: srv.URL + "/"}

	feed, err := newTestResolver(t, time.Second, true).Resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/custom/news.xml", feed.URL)

	_, err = newTestResolver(t, time.Second, false).Resolve(context.Background(), src)
	assert.ErrorIs(t, err, ErrFeedNotFound)
}

func TestSourceFeedFetch(t *testing.T) {
	srv := newHitServer(t, map[string]http.HandlerFunc{"/feed": serve(oneItemRSS)})
	unit := &SourceFeed{
		Resolver: newTestResolver(t, time.Second, false),
		Source:   catalog.Source{State: "FL", County: "Bay", Name: "Herald", Homepage: srv.URL},
	}

	items, err := unit.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/feed", unit.ResolvedURL)
	assert.Equal(t, "feed:FL/Bay/Herald", unit.Name())
}
