package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/ports"
)

const libreEndpoint = "https://libretranslate.com"

// LibreClient talks to a LibreTranslate server.
type LibreClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ChunkTranslator = (*LibreClient)(nil)

// NewLibreClient creates a reusable HTTP client.
func NewLibreClient(cfg config.TranslatorConfig, httpClient *http.Client) *LibreClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = libreEndpoint
	}
	return &LibreClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}
}

// TranslateChunk detects the source language server-side.
func (c *LibreClient) TranslateChunk(ctx context.Context, chunk, targetLang string) (string, error) {
	payload := map[string]any{
		"q":      chunk,
		"source": "auto",
		"target": targetLang,
		"format": "text",
	}
	if c.apiKey != "" {
		payload["api_key"] = c.apiKey
	}

	var resp struct {
		TranslatedText string `json:"translatedText"`
		Error          string `json:"error"`
	}
	if err := c.post(ctx, "/translate", payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("libretranslate: %s", resp.Error)
	}
	return resp.TranslatedText, nil
}

func (c *LibreClient) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
