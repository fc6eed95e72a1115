package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePostsConversation(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text":"{\"title\":\"x\"}"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "roundup-model", time.Second)
	text, err := c.Generate(context.Background(), []Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "items"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, text)
	assert.Equal(t, "roundup-model", got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestGenerateAcceptsChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, "", "m", time.Second).Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestGenerateErrors(t *testing.T) {
	_, err := NewClient("", "", "m", time.Second).Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(200 * time.Millisecond)
			return
		}
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`{"text":"  "}`))
			return
		}
		http.Error(w, strings.Repeat("overloaded ", 500), http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err = NewClient(srv.URL, "", "m", time.Second).Generate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Less(t, len(err.Error()), 1200)

	_, err = NewClient(srv.URL+"/empty", "", "m", time.Second).Generate(context.Background(), nil)
	assert.ErrorContains(t, err, "empty text")

	_, err = NewClient(srv.URL+"/slow", "", "m", 50*time.Millisecond).Generate(context.Background(), nil)
	assert.Error(t, err)
}
