package synth

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		title   string
	}{
		{name: "plain", raw: `{"title":"A","body_markdown":"B"}`, title: "A"},
		{name: "fenced", raw: "```json\n{\"title\":\"A\",\"body_markdown\":\"B\"}\n```", title: "A"},
		{name: "chatter", raw: "Here you go:\n{\"title\":\" A \",\"body_markdown\":\"B\"}\nThanks", title: "A"},
		{name: "missing title", raw: `{"body_markdown":"B"}`, wantErr: true},
		{name: "missing body", raw: `{"title":"A","body_markdown":"  "}`, wantErr: true},
		{name: "not json", raw: "no story today", wantErr: true},
		{name: "wrong type", raw: `{"title":"A","body_markdown":"B","used_source_indexes":"1,2"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, p.Title)
		})
	}
}

func TestParsePayloadCapsBullets(t *testing.T) {
	bullets := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		bullets = append(bullets, fmt.Sprintf("%q", fmt.Sprintf("b%d", i)))
	}
	raw := `{"title":"A","body_markdown":"B","bullets":[" ", ` + strings.Join(bullets, ",") + `]}`
	p, err := ParsePayload(raw)
	require.NoError(t, err)
	require.Len(t, p.Bullets, maxBullets)
	assert.Equal(t, "b0", p.Bullets[0])
}

func TestSelectCitations(t *testing.T) {
	items := regionItems(8)

	got := SelectCitations(items, []int{3, 0, 3, 9, 1, -2})
	require.Len(t, got, 2)
	assert.Equal(t, items[2].ID, got[0].ItemID)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, items[0].ID, got[1].ItemID)
	assert.Equal(t, items[0].URL, got[1].URL)
	assert.Equal(t, items[0].PublishedAt, got[1].PublishedAt)

	fallback := SelectCitations(items, []int{42})
	require.Len(t, fallback, fallbackCitations)
	assert.Equal(t, items[5].ID, fallback[5].ItemID)

	few := SelectCitations(items[:3], nil)
	assert.Len(t, few, 3)
}
