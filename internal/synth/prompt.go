package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/LJTian/countywire/internal/generator"
	"github.com/LJTian/countywire/internal/storage"
)

// PromptVersion is stored with every story so output can be traced to the
// instructions that produced it.
const PromptVersion = "roundup-v1"

const promptSummaryRunes = 280

const systemPrompt = `You are a local news editor writing a short roundup for one county.
Write only from the numbered sources below. Do not invent facts, names, numbers or quotes.
Cite sources by their number. If the sources disagree, say so.
Reply with a single JSON object and nothing else:
{"title": string, "dek": string, "bullets": [string], "body_markdown": string, "used_source_indexes": [int]}
used_source_indexes lists the 1-based numbers of the sources you relied on.`

// buildPrompt returns the conversation for one region and window.
func buildPrompt(region catalog.Region, w Window, items []storage.RegionItem) []generator.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "County: %s County, %s\n", region.County, catalog.StateName(region.State))
	fmt.Fprintf(&b, "Window: %s to %s (UTC)\n\nSources:\n", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	for i, it := range items {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, oneLine(it.Title))
		if it.SourceName != "" {
			fmt.Fprintf(&b, "Source: %s\n", it.SourceName)
		}
		if it.PublishedAt != nil {
			fmt.Fprintf(&b, "Published: %s\n", it.PublishedAt.UTC().Format(time.RFC3339))
		}
		if it.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", it.URL)
		}
		if s := truncate(oneLine(it.Summary), promptSummaryRunes); s != "" {
			fmt.Fprintf(&b, "Summary: %s\n", s)
		}
	}
	return []generator.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit])) + "…"
}
