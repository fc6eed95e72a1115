package processor

import (
	"strings"
	"testing"
	"time"

	"github.com/LJTian/countywire/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureDeterministicAndDistinct(t *testing.T) {
	a1 := Signature("Title", "https://example.com/a")
	a2 := Signature("  Title ", "https://example.com/a ")
	b := Signature("Title", "https://example.com/b")
	swapped := Signature("https://example.com/a", "Title")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.NotEqual(t, a1, swapped)
	assert.Len(t, a1, 40)
}

func TestTruncateRunes(t *testing.T) {
	out := truncateRunes("Café council approves new downtown parking plan", 4)
	assert.Equal(t, "Café…", out)
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Empty(t, truncateRunes("anything", 0))
}

func TestProcessCleansAndSigns(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))
	zero := time.Time{}
	drafts := []collector.Draft{
		{
			Title:       "  Storm   damage\n report ",
			Link:        " https://example.com/storm ",
			Summary:     "<p>Trees down on <b>23rd Street</b>&amp; Hwy 231</p>",
			PublishedAt: &now,
		},
		{Title: "", Link: ""},
		{Title: "Zero time", Link: "https://example.com/zero", PublishedAt: &zero},
		{Title: "Long", Link: "https://example.com/long", Summary: strings.Repeat("x", 400)},
	}

	items := NewSimpleProcessor().Process(drafts)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "Storm damage report", first.Title)
	assert.Equal(t, "https://example.com/storm", first.Link)
	assert.Equal(t, "Trees down on 23rd Street& Hwy 231", first.Summary)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, time.UTC, first.PublishedAt.Location())
	assert.Equal(t, Signature("Storm damage report", "https://example.com/storm"), first.Signature)

	assert.Nil(t, items[1].PublishedAt)
	assert.Len(t, []rune(items[2].Summary), DefaultSummaryLimit+1)
}

func TestProcessKeepsDuplicatesForWriter(t *testing.T) {
	d := collector.Draft{Title: "Same", Link: "https://example.com/same"}
	items := NewSimpleProcessor().Process([]collector.Draft{d, d})
	require.Len(t, items, 2)
	assert.Equal(t, items[0].Signature, items[1].Signature)
}
