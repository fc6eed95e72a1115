package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/countywire/internal/catalog"
)

// ErrQueryTooShort is returned before any request is made for queries the
// search index would reject with a non-JSON payload.
var ErrQueryTooShort = errors.New("search query shorter than minimum keyword length")

// SearchTimeLayout is the compact UTC window format the index expects.
const SearchTimeLayout = "20060102150405"

var seenDateLayouts = []string{"20060102T150405Z", SearchTimeLayout}

type SearchAdapter struct {
	http          *HTTPClient
	endpoint      string
	maxRecords    int
	minKeywordLen int
}

func NewSearchAdapter(client *HTTPClient, endpoint string, maxRecords, minKeywordLen int) *SearchAdapter {
	return &SearchAdapter{
		http:          client,
		endpoint:      endpoint,
		maxRecords:    maxRecords,
		minKeywordLen: minKeywordLen,
	}
}

type searchResponse struct {
	Articles []searchArticle `json:"articles"`
}

type searchArticle struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	SeenDate    string `json:"seendate"`
	SocialImage string `json:"socialimage"`
	Domain      string `json:"domain"`
	Language    string `json:"language"`
	Summary     string `json:"summary"`
}

// Search runs one query over [start, end) and maps the articles to drafts.
func (a *SearchAdapter) Search(ctx context.Context, region catalog.Region, query string, start, end time.Time) ([]Draft, error) {
	if utf8.RuneCountInString(keywordText(query)) < a.minKeywordLen {
		return nil, fmt.Errorf("%q: %w", query, ErrQueryTooShort)
	}

	reqURL, err := a.requestURL(query, start, end)
	if err != nil {
		return nil, err
	}

	body, err := a.http.Get(ctx, reqURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("search %s %q: %w", region, query, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("search %s %q: non-JSON response: %w", region, query, err)
	}

	drafts := make([]Draft, 0, len(resp.Articles))
	for _, art := range resp.Articles {
		d := Draft{
			Title:       strings.TrimSpace(art.Title),
			Link:        strings.TrimSpace(art.URL),
			Summary:     art.Summary,
			PublishedAt: parseSeenDate(art.SeenDate),
			Extra: map[string]any{
				"origin": "search",
				"query":  query,
			},
		}
		if d.Title == "" && d.Link == "" {
			continue
		}
		if art.Domain != "" {
			d.Extra["domain"] = art.Domain
		}
		if art.SocialImage != "" {
			d.Extra["image"] = art.SocialImage
		}
		if art.Language != "" {
			d.Extra["language"] = art.Language
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (a *SearchAdapter) requestURL(query string, start, end time.Time) (string, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return "", fmt.Errorf("search endpoint %q: %w", a.endpoint, err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("mode", "ArtList")
	q.Set("format", "json")
	q.Set("sort", "DateDesc")
	q.Set("maxrecords", strconv.Itoa(a.maxRecords))
	q.Set("startdatetime", start.UTC().Format(SearchTimeLayout))
	q.Set("enddatetime", end.UTC().Format(SearchTimeLayout))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// keywordText is the query without quoting, as the index measures it.
func keywordText(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(query, `"`, ""))
}

func parseSeenDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range seenDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
