package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/LJTian/countywire/internal/storage"
)

const (
	maxBullets        = 8
	fallbackCitations = 6
)

// ErrInvalidPayload is returned when the generated text is not a usable story.
var ErrInvalidPayload = errors.New("invalid story payload")

// Payload is the JSON document the model is asked to return.
type Payload struct {
	Title             string   `json:"title"`
	Dek               string   `json:"dek"`
	Bullets           []string `json:"bullets"`
	BodyMarkdown      string   `json:"body_markdown"`
	UsedSourceIndexes []int    `json:"used_source_indexes"`
}

// ParsePayload decodes and validates generated text. Markdown code fences and
// chatter around the JSON object are tolerated.
func ParsePayload(raw string) (Payload, error) {
	text := stripFences(raw)
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		text = text[i : j+1]
	}

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	p.Title = strings.TrimSpace(p.Title)
	p.Dek = strings.TrimSpace(p.Dek)
	p.BodyMarkdown = strings.TrimSpace(p.BodyMarkdown)
	if p.Title == "" {
		return Payload{}, fmt.Errorf("%w: missing title", ErrInvalidPayload)
	}
	if p.BodyMarkdown == "" {
		return Payload{}, fmt.Errorf("%w: missing body_markdown", ErrInvalidPayload)
	}

	bullets := make([]string, 0, len(p.Bullets))
	for _, b := range p.Bullets {
		if b = strings.TrimSpace(b); b != "" {
			bullets = append(bullets, b)
		}
		if len(bullets) == maxBullets {
			break
		}
	}
	p.Bullets = bullets
	return p, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// SelectCitations maps 1-based indexes into the prompt items. Out-of-range
// and repeated indexes are ignored; when nothing usable remains the first
// prompt items are cited in prompt order.
func SelectCitations(promptItems []storage.RegionItem, used []int) []storage.StoryCitation {
	seen := make(map[int]bool, len(used))
	var picked []storage.RegionItem
	for _, idx := range used {
		if idx < 1 || idx > len(promptItems) || seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, promptItems[idx-1])
	}
	if len(picked) == 0 {
		n := min(fallbackCitations, len(promptItems))
		picked = promptItems[:n]
	}

	out := make([]storage.StoryCitation, 0, len(picked))
	for i, it := range picked {
		out = append(out, storage.StoryCitation{
			ItemID:      it.ID,
			Position:    i + 1,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
		})
	}
	return out
}
