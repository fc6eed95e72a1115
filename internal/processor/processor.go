package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LJTian/countywire/internal/collector"
	"github.com/PuerkitoBio/goquery"
)

// DefaultSummaryLimit keeps stored summaries to a short snippet, never the article body.
const DefaultSummaryLimit = 300

// Item is the canonical item handed to the writer.
type Item struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
	Signature   string
	Extra       map[string]any
}

// SimpleProcessor cleans drafts and derives their content signature. It keeps
// input order and does no deduplication; the writer owns that.
type SimpleProcessor struct {
	summaryLimit int
}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{summaryLimit: DefaultSummaryLimit}
}

func (p *SimpleProcessor) Process(drafts []collector.Draft) []Item {
	out := make([]Item, 0, len(drafts))
	for _, d := range drafts {
		title := collapseSpace(d.Title)
		link := strings.TrimSpace(d.Link)
		if title == "" && link == "" {
			continue
		}
		var published *time.Time
		if d.PublishedAt != nil && !d.PublishedAt.IsZero() {
			t := d.PublishedAt.UTC()
			published = &t
		}
		out = append(out, Item{
			Title:       title,
			Link:        link,
			Summary:     truncateRunes(plainText(d.Summary), p.summaryLimit),
			PublishedAt: published,
			Signature:   Signature(title, link),
			Extra:       d.Extra,
		})
	}
	return out
}

// Signature is the dedup key of an item within its source: sha1 over the
// trimmed title and link.
func Signature(title, link string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(h.Sum(nil))
}

// plainText strips markup from feed descriptions.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to limit runes and marks the cut with an ellipsis.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit])) + "…"
}
