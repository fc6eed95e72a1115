package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/LJTian/countywire/internal/catalog"
	"go.uber.org/zap"
)

// ErrFeedNotFound means no candidate of a source produced a parseable feed
// this run. It is an expected outcome, not a failure.
var ErrFeedNotFound = errors.New("no fetchable feed found")

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.5"

// conventionalFeedPaths are probed against the homepage after the explicit
// feed URL: common suffixes, then WordPress, Joomla and Blogger endpoints.
var conventionalFeedPaths = []string{
	"/feed",
	"/feed/",
	"/rss",
	"/rss.xml",
	"/feed.xml",
	"/atom.xml",
	"/index.xml",
	"/?feed=rss2",
	"/index.php?format=feed&type=rss",
	"/feeds/posts/default",
}

// ResolvedFeed is the first candidate that yielded at least one item.
type ResolvedFeed struct {
	URL      string
	Raw      []byte
	Items    []Draft
	Attempts int
}

type Resolver struct {
	http             *HTTPClient
	discoverFromHTML bool
	log              *zap.Logger
}

func NewResolver(client *HTTPClient, discoverFromHTML bool, log *zap.Logger) *Resolver {
	return &Resolver{http: client, discoverFromHTML: discoverFromHTML, log: log}
}

// Candidates returns the ordered, de-duplicated probe list for a source:
// the explicit feed URL first, then conventional paths under the homepage.
func Candidates(src catalog.Source) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	add(src.FeedURL)
	if base := siteRoot(src.Homepage); base != "" {
		for _, p := range conventionalFeedPaths {
			add(base + p)
		}
	}
	return out
}

// Resolve probes candidates strictly in order and returns the first one the
// normalizer can turn into items. Failed probes move on to the next candidate.
func (r *Resolver) Resolve(ctx context.Context, src catalog.Source) (*ResolvedFeed, error) {
	log := r.log.With(zap.String("source", src.Key()))

	attempts := 0
	tried := make(map[string]struct{})
	probeAll := func(candidates []string) *ResolvedFeed {
		for _, candidate := range candidates {
			if _, ok := tried[candidate]; ok {
				continue
			}
			tried[candidate] = struct{}{}
			attempts++
			if feed := r.probe(ctx, log, candidate); feed != nil {
				return feed
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return nil
	}

	if feed := probeAll(Candidates(src)); feed != nil {
		feed.Attempts = attempts
		return feed, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", src.Key(), err)
	}

	if r.discoverFromHTML && src.Homepage != "" {
		if feed := probeAll(r.advertisedFeeds(ctx, log, src.Homepage)); feed != nil {
			feed.Attempts = attempts
			return feed, nil
		}
	}

	return nil, fmt.Errorf("resolve %s after %d candidates: %w", src.Key(), attempts, ErrFeedNotFound)
}

func (r *Resolver) probe(ctx context.Context, log *zap.Logger, candidate string) *ResolvedFeed {
	body, err := r.http.Get(ctx, candidate, feedAccept)
	if err != nil {
		log.Debug("feed candidate failed", zap.String("url", candidate), zap.Error(err))
		return nil
	}
	items, err := Normalize(body)
	if err != nil {
		log.Debug("feed candidate not parseable", zap.String("url", candidate), zap.Error(err))
		return nil
	}
	if len(items) == 0 {
		log.Debug("feed candidate has no items", zap.String("url", candidate))
		return nil
	}
	resolveLinks(candidate, items)
	return &ResolvedFeed{URL: candidate, Raw: body, Items: items}
}

// siteRoot reduces a homepage URL to scheme://host so conventional paths are
// not appended to a deep link.
func siteRoot(homepage string) string {
	u, err := url.Parse(strings.TrimSpace(homepage))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// resolveLinks turns relative item links into absolute ones against the feed URL.
func resolveLinks(feedURL string, items []Draft) {
	base, err := url.Parse(feedURL)
	if err != nil {
		return
	}
	for i := range items {
		if items[i].Link == "" {
			continue
		}
		ref, err := url.Parse(items[i].Link)
		if err != nil || ref.IsAbs() {
			continue
		}
		items[i].Link = base.ResolveReference(ref).String()
	}
}
