package translate

import (
	"context"
	"fmt"
	"html"

	"google.golang.org/api/option"
	gtranslate "google.golang.org/api/translate/v2"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/ports"
)

const googleEndpoint = "https://translation.googleapis.com/language/translate/"

// GoogleClient calls the Cloud Translation v2 API with an API key.
type GoogleClient struct {
	svc *gtranslate.Service
}

var _ ports.ChunkTranslator = (*GoogleClient)(nil)

// NewGoogleClient builds the service from configuration.
func NewGoogleClient(ctx context.Context, cfg config.TranslatorConfig) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google translator requires an api key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleEndpoint
	}

	svc, err := gtranslate.NewService(ctx, option.WithAPIKey(cfg.APIKey), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

// TranslateChunk translates one plain-text chunk.
func (c *GoogleClient) TranslateChunk(ctx context.Context, chunk, targetLang string) (string, error) {
	resp, err := c.svc.Translations.Translate(&gtranslate.TranslateTextRequest{
		Q:      []string{chunk},
		Target: targetLang,
		Format: "text",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("google translate: empty response")
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}
