package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Bay County Local</title>
    <item>
      <title>No date one</title>
      <link>https://example.com/undated-1</link>
    </item>
    <item>
      <title>Older story</title>
      <link>https://example.com/older</link>
      <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
      <description>&lt;p&gt;School board &lt;b&gt;meets&lt;/b&gt;&lt;/p&gt;</description>
    </item>
    <item>
      <title>Bad date</title>
      <link>https://example.com/bad-date</link>
      <pubDate>sometime last week</pubDate>
    </item>
    <item>
      <title>Newer story</title>
      <link>https://example.com/newer</link>
      <pubDate>Tue, 02 Jan 2024 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Dublin core dated</title>
      <link>https://example.com/dc</link>
      <dc:date>2024-01-01T18:00:00Z</dc:date>
    </item>
    <item>
      <description>neither title nor link</description>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>County Atom</title>
  <entry>
    <title>Typed links</title>
    <link rel="self" href="https://example.com/api/entries/1"/>
    <link rel="enclosure" type="image/jpeg" href="https://example.com/img/1.jpg"/>
    <link rel="alternate" type="text/html" href="https://example.com/stories/1"/>
    <published>2024-01-02T10:00:00Z</published>
    <summary>Road closures announced</summary>
  </entry>
  <entry>
    <title>Implicit alternate</title>
    <link rel="edit" href="https://example.com/edit/2"/>
    <link href="https://example.com/stories/2"/>
    <updated>2024-01-03T10:00:00Z</updated>
  </entry>
  <entry>
    <title>Only self link</title>
    <link rel="self" href="https://example.com/api/entries/3"/>
  </entry>
</feed>`

func TestNormalizeRSSOrdersUnknownTimestampsLast(t *testing.T) {
	drafts, err := Normalize([]byte(rssFixture))
	require.NoError(t, err)
	require.Len(t, drafts, 5)

	titles := make([]string, len(drafts))
	for i, d := range drafts {
		titles[i] = d.Title
	}
	assert.Equal(t, []string{"Newer story", "Dublin core dated", "Older story", "No date one", "Bad date"}, titles)

	assert.Nil(t, drafts[3].PublishedAt)
	assert.Nil(t, drafts[4].PublishedAt)
	require.NotNil(t, drafts[1].PublishedAt)
	assert.True(t, drafts[1].PublishedAt.Equal(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, "rss", drafts[0].Extra["dialect"])
}

func TestNormalizeAtomSelectsAlternateLink(t *testing.T) {
	drafts, err := Normalize([]byte(atomFixture))
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	byTitle := make(map[string]Draft)
	for _, d := range drafts {
		byTitle[d.Title] = d
	}

	assert.Equal(t, "https://example.com/stories/1", byTitle["Typed links"].Link)
	assert.Equal(t, "Road closures announced", byTitle["Typed links"].Summary)
	assert.Equal(t, "https://example.com/stories/2", byTitle["Implicit alternate"].Link)
	assert.Empty(t, byTitle["Only self link"].Link)

	// updated is the fallback timestamp, so the implicit-alternate entry sorts first.
	assert.Equal(t, "Implicit alternate", drafts[0].Title)
	assert.Equal(t, "Only self link", drafts[2].Title)
}

func TestAlternateLinkPrefersHTML(t *testing.T) {
	drafts, err := Normalize([]byte(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Two alternates</title>
    <link rel="alternate" type="application/pdf" href="https://example.com/a.pdf"/>
    <link rel="alternate" type="text/html" href="https://example.com/a.html"/>
  </entry>
</feed>`))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "https://example.com/a.html", drafts[0].Link)
}

func TestNormalizeRSSFallsBackToPermalinkGUID(t *testing.T) {
	drafts, err := Normalize([]byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
  <item><title>Guid only</title><guid>https://example.com/guid</guid></item>
  <item><title>Opaque guid</title><guid isPermaLink="false">https://example.com/opaque</guid></item>
</channel></rss>`))
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "https://example.com/guid", drafts[0].Link)
	assert.Empty(t, drafts[1].Link)
}

func TestNormalizeRejectsUnknownDialect(t *testing.T) {
	_, err := Normalize([]byte(`<!DOCTYPE html><html><body>not a feed</body></html>`))
	assert.ErrorIs(t, err, ErrUnknownDialect)

	_, err = Normalize([]byte(`{"items": []}`))
	assert.Error(t, err)
}
