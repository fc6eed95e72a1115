package collector

import (
	"context"
	"strings"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// advertisedFeeds visits the homepage once and returns the RSS/Atom URLs it
// advertises through <link rel="alternate">, in document order.
func (r *Resolver) advertisedFeeds(ctx context.Context, log *zap.Logger, homepage string) []string {
	if err := r.http.Wait(ctx); err != nil {
		return nil
	}

	c := colly.NewCollector(
		colly.UserAgent(r.http.userAgent),
		colly.MaxBodySize(maxResponseBytes),
	)
	c.SetRequestTimeout(r.http.timeout)

	var found []string
	c.OnHTML(`link[rel="alternate"]`, func(e *colly.HTMLElement) {
		if !isFeedType(e.Attr("type")) {
			return
		}
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		if abs := e.Request.AbsoluteURL(href); abs != "" {
			found = append(found, abs)
		}
	})

	if err := c.Visit(homepage); err != nil {
		log.Debug("homepage discovery failed", zap.String("url", homepage), zap.Error(err))
		return nil
	}
	if len(found) > 0 {
		log.Debug("homepage advertises feeds", zap.String("url", homepage), zap.Strings("feeds", found))
	}
	return found
}

func isFeedType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "rss+xml") || strings.Contains(t, "atom+xml")
}
