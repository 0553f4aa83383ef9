package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsHarvester/internal/domain"
)

func TestHTTPFetcherFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><body><div class="ready">ok</div></body></html>`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(Options{Client: server.Client(), UserAgent: "test-agent"})

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ready")

	_, err = f.FetchWhenReady(context.Background(), server.URL, ".ready")
	assert.NoError(t, err)

	_, err = f.FetchWhenReady(context.Background(), server.URL, ".missing")
	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, server.URL, fetchErr.URL)
}

func TestHTTPFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f := NewHTTPFetcher(Options{Client: server.Client()})
	_, err := f.Fetch(context.Background(), server.URL)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.ErrorContains(t, err, "404")
}

func TestHTTPFetcherTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(Options{Client: server.Client(), Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestHTTPFetcherBoundsSessions(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer server.Close()

	f := NewHTTPFetcher(Options{Client: server.Client(), MaxSessions: 2})

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = f.Fetch(context.Background(), server.URL)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
