package collector

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// ErrUnknownDialect is returned for documents that are neither RSS nor Atom.
var ErrUnknownDialect = errors.New("unrecognized feed dialect")

const (
	dialectRSS  = "rss"
	dialectAtom = "atom"
)

// timestampLayouts covers the dates seen in the wild that gofeed leaves
// unparsed (mostly Dublin Core dc:date and sloppy pubDate values).
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize parses a feed document in either dialect into drafts ordered
// newest first, unknown timestamps last. Entries without both title and link
// are dropped.
func Normalize(raw []byte) ([]Draft, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(raw)) {
	case gofeed.FeedTypeRSS:
		return normalizeRSS(raw)
	case gofeed.FeedTypeAtom:
		return normalizeAtom(raw)
	default:
		return nil, ErrUnknownDialect
	}
}

func normalizeRSS(raw []byte) ([]Draft, error) {
	fp := &rss.Parser{}
	feed, err := fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	drafts := make([]Draft, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		d := Draft{
			Title:   strings.TrimSpace(it.Title),
			Link:    rssLink(it),
			Summary: firstNonEmpty(it.Description, it.Content),
			Extra:   map[string]any{"origin": "feed", "dialect": dialectRSS},
		}
		d.PublishedAt = it.PubDateParsed
		if d.PublishedAt == nil {
			d.PublishedAt = parseTimestamp(it.PubDate)
		}
		if d.PublishedAt == nil && it.DublinCoreExt != nil {
			for _, v := range it.DublinCoreExt.Date {
				if d.PublishedAt = parseTimestamp(v); d.PublishedAt != nil {
					break
				}
			}
		}
		if d.Title == "" && d.Link == "" {
			continue
		}
		drafts = append(drafts, d)
	}
	sortNullsLast(drafts)
	return drafts, nil
}

func rssLink(it *rss.Item) string {
	if link := strings.TrimSpace(it.Link); link != "" {
		return link
	}
	if it.GUID != nil && !strings.EqualFold(it.GUID.IsPermalink, "false") {
		if v := strings.TrimSpace(it.GUID.Value); strings.HasPrefix(v, "http") {
			return v
		}
	}
	return ""
}

func normalizeAtom(raw []byte) ([]Draft, error) {
	fp := &atom.Parser{}
	feed, err := fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	drafts := make([]Draft, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e == nil {
			continue
		}
		d := Draft{
			Title: strings.TrimSpace(e.Title),
			Link:  alternateLink(e.Links),
			Extra: map[string]any{"origin": "feed", "dialect": dialectAtom},
		}
		d.Summary = e.Summary
		if d.Summary == "" && e.Content != nil {
			d.Summary = e.Content.Value
		}
		switch {
		case e.PublishedParsed != nil:
			d.PublishedAt = e.PublishedParsed
		case parseTimestamp(e.Published) != nil:
			d.PublishedAt = parseTimestamp(e.Published)
		case e.UpdatedParsed != nil:
			d.PublishedAt = e.UpdatedParsed
		default:
			d.PublishedAt = parseTimestamp(e.Updated)
		}
		if d.Title == "" && d.Link == "" {
			continue
		}
		drafts = append(drafts, d)
	}
	sortNullsLast(drafts)
	return drafts, nil
}

// alternateLink picks the human-readable link of an Atom entry: an explicit
// rel="alternate" (preferring text/html), else a link without rel, which Atom
// defines as alternate. Other relations (self, edit, enclosure, related) are
// never used.
func alternateLink(links []*atom.Link) string {
	var alternate, implicit string
	for _, l := range links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		href := strings.TrimSpace(l.Href)
		rel := strings.ToLower(strings.TrimSpace(l.Rel))
		switch rel {
		case "alternate":
			t := strings.ToLower(l.Type)
			if t == "" || strings.Contains(t, "html") {
				return href
			}
			if alternate == "" {
				alternate = href
			}
		case "":
			if implicit == "" {
				implicit = href
			}
		}
	}
	if alternate != "" {
		return alternate
	}
	return implicit
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// sortNullsLast orders drafts newest first and keeps unknown timestamps at
// the end in document order.
func sortNullsLast(drafts []Draft) {
	sort.SliceStable(drafts, func(i, j int) bool {
		a, b := drafts[i].PublishedAt, drafts[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
