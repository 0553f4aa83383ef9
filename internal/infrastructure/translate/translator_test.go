package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/domain"
)

type upperBackend struct {
	mu     sync.Mutex
	calls  int
	failOn string
	delay  func(chunk string) time.Duration
}

func (b *upperBackend) TranslateChunk(ctx context.Context, chunk, targetLang string) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	if b.delay != nil {
		select {
		case <-time.After(b.delay(chunk)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if b.failOn != "" && strings.Contains(chunk, b.failOn) {
		return "", errors.New("quota exceeded")
	}
	return targetLang + ":" + strings.ToUpper(chunk), nil
}

func TestSplitChunks(t *testing.T) {
	cases := []struct {
		text string
		size int
		want []string
	}{
		{"", 3, nil},
		{"abc", 3, []string{"abc"}},
		{"abcdefg", 3, []string{"abc", "def", "g"}},
		{"ภาษาไทย", 2, []string{"ภา", "ษา", "ไท", "ย"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SplitChunks(tc.text, tc.size), tc.text)
	}
}

func TestSplitChunksCountAndRejoin(t *testing.T) {
	text := strings.Repeat("word ", 2437)
	for _, size := range []int{1, 7, 100, 5000, 20000} {
		chunks := SplitChunks(text, size)
		assert.Len(t, chunks, (len(text)+size-1)/size)
		assert.Equal(t, text, strings.Join(chunks, ""))
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), size)
		}
	}
}

func TestTranslateJoinsInChunkOrder(t *testing.T) {
	backend := &upperBackend{delay: func(chunk string) time.Duration {
		// later chunks finish first
		if strings.HasPrefix(chunk, "ab") {
			return 30 * time.Millisecond
		}
		return 0
	}}
	tr := New(backend, Options{ChunkSize: 3})

	out, err := tr.Translate(context.Background(), "abcdefgh", "th")
	require.NoError(t, err)
	assert.Equal(t, "th:ABC th:DEF th:GH", out)
	assert.Equal(t, 3, backend.calls)
}

func TestTranslateEmptyTextSkipsBackend(t *testing.T) {
	backend := &upperBackend{}
	out, err := New(backend, Options{}).Translate(context.Background(), "", "th")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, backend.calls)
}

func TestTranslateChunkFailureAbortsWholeText(t *testing.T) {
	backend := &upperBackend{failOn: "d"}
	out, err := New(backend, Options{ChunkSize: 3}).Translate(context.Background(), "abcdefgh", "th")

	assert.Empty(t, out)
	var trErr *domain.TranslationError
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, 1, trErr.Chunk)
}

func TestTranslatePerChunkTimeout(t *testing.T) {
	backend := &upperBackend{delay: func(string) time.Duration { return time.Second }}
	_, err := New(backend, Options{Timeout: 20 * time.Millisecond}).Translate(context.Background(), "slow", "th")

	var trErr *domain.TranslationError
	require.True(t, errors.As(err, &trErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGoogleClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/language/translate/v2", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var req struct {
			Q      []string `json:"q"`
			Target string   `json:"target"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"translations":[{"translatedText":"%s-%s &amp; co"}]}}`, req.Target, req.Q[0])
	}))
	defer server.Close()

	client, err := NewGoogleClient(context.Background(), config.TranslatorConfig{
		APIKey:   "secret",
		Endpoint: server.URL + "/language/translate/",
	})
	require.NoError(t, err)

	out, err := client.TranslateChunk(context.Background(), "hello", "th")
	require.NoError(t, err)
	assert.Equal(t, "th-hello & co", out)
}

func TestGoogleClientRequiresKey(t *testing.T) {
	_, err := NewGoogleClient(context.Background(), config.TranslatorConfig{})
	assert.Error(t, err)
}

func TestChatGPTClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, `"th"`)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" สวัสดี \n"}}]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.TranslatorConfig{APIKey: "sk-test", Endpoint: server.URL, Model: "gpt-test"}, server.Client())
	out, err := client.TranslateChunk(context.Background(), "hello", "th")
	require.NoError(t, err)
	assert.Equal(t, "สวัสดี", out)
}

func TestChatGPTClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewChatGPTClient(config.TranslatorConfig{}, server.Client()).TranslateChunk(context.Background(), "x", "th")
	assert.Error(t, err)
	assert.Zero(t, hits.Load())

	_, err = NewChatGPTClient(config.TranslatorConfig{APIKey: "k", Endpoint: server.URL}, server.Client()).TranslateChunk(context.Background(), "x", "th")
	assert.ErrorContains(t, err, "rate limited")
}

func TestLibreClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auto", req["source"])
		assert.Equal(t, "key", req["api_key"])
		if req["q"] == "fail" {
			_, _ = w.Write([]byte(`{"error":"unsupported"}`))
			return
		}
		_, _ = w.Write([]byte(`{"translatedText":"` + req["target"] + `:` + req["q"] + `"}`))
	}))
	defer server.Close()

	client := NewLibreClient(config.TranslatorConfig{APIKey: "key", Endpoint: server.URL + "/"}, server.Client())
	out, err := client.TranslateChunk(context.Background(), "hello", "th")
	require.NoError(t, err)
	assert.Equal(t, "th:hello", out)

	_, err = client.TranslateChunk(context.Background(), "fail", "th")
	assert.ErrorContains(t, err, "unsupported")
}
