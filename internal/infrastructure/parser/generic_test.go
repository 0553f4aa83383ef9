package parser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsHarvester/internal/infrastructure/fetcher"
	"NewsHarvester/internal/logging"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Security Weekly</title>
<item><title>Ransomware hits port</title><link>https://news.example.com/ransomware</link>
<pubDate>Thu, 15 Oct 2026 08:00:00 GMT</pubDate></item>
<item><title>Sponsored</title><link>https://ads.example.net/buy</link></item>
<item><title>Ransomware hits port</title><link>https://news.example.com/ransomware</link></item>
</channel></rss>`

func TestGenericCollectFeed(t *testing.T) {
	server := newSite(t, map[string]string{"/feed.xml": sampleFeed})
	f := fetcher.NewHTTPFetcher(fetcher.Options{Client: server.Client(), Timeout: 5 * time.Second})
	adapter := NewGenericAdapter(f, map[string]string{"feed": "true", "excludeLinks": "ads.example.net"}, logging.Discard())

	entries, err := adapter.CollectLinks(context.Background(), server.URL+"/feed.xml")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://news.example.com/ransomware", entries[0].URL)
	assert.Equal(t, "Ransomware hits port", entries[0].Title)
	assert.Equal(t, "Oct 15, 2026", entries[0].DateText)
}

func TestGenericCollectHTMLListing(t *testing.T) {
	server := newSite(t, map[string]string{
		"/news":   `<html><body><article><a href="/n/1">One - Oct 15, 2026</a></article><a class="older" href="/news/2">Older</a></body></html>`,
		"/news/2": `<html><body><article><a href="/n/2">Two</a></article></body></html>`,
	})
	f := fetcher.NewHTTPFetcher(fetcher.Options{Client: server.Client(), Timeout: 5 * time.Second})
	adapter := NewGenericAdapter(f, map[string]string{"nextSelector": "a.older"}, logging.Discard())

	entries, err := adapter.CollectLinks(context.Background(), server.URL+"/news")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, server.URL+"/n/1", entries[0].URL)
	assert.Equal(t, "Oct 15, 2026", entries[0].DateText)
	assert.Equal(t, server.URL+"/n/2", entries[1].URL)
	assert.True(t, entries[1].PublishedOn.IsZero())
}

func TestGenericExtract(t *testing.T) {
	paragraph := strings.Repeat("Attackers exploited an unpatched gateway to move laterally across the network, according to incident responders. ", 4)
	page := `<html><head><title>Breach report | Example News</title>
<meta property="article:published_time" content="2026-10-14T22:10:00Z">
</head><body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Breach report</h1>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
<aside class="promo"><p>Subscribe now</p></aside>
</article>
</body></html>`
	server := newSite(t, map[string]string{"/story": page})
	f := fetcher.NewHTTPFetcher(fetcher.Options{Client: server.Client(), Timeout: 5 * time.Second})
	adapter := NewGenericAdapter(f, map[string]string{"titleSelector": "h1", "noise": ".promo"}, logging.Discard())

	draft, err := adapter.Extract(context.Background(), server.URL+"/story")
	require.NoError(t, err)
	assert.Equal(t, "Breach report", draft.Title)
	assert.Equal(t, "Oct 14, 2026", draft.Date)
	assert.Contains(t, draft.BodyText, "Attackers exploited an unpatched gateway")
	assert.NotContains(t, draft.BodyText, "Subscribe now")
	assert.Equal(t, server.URL+"/story", draft.SourceURL)
}

func TestGenericTrendingWithoutSelector(t *testing.T) {
	adapter := NewGenericAdapter(nil, nil, logging.Discard())

	snapshot, err := adapter.Trending(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, snapshot.Trending)
}
