package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/ports"
)

const (
	chatGPTEndpoint = "https://api.openai.com/v1/chat/completions"
	chatGPTModel    = "gpt-4o-mini"
)

// ChatGPTClient translates chunks through an OpenAI-compatible chat completions API.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ChunkTranslator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.TranslatorConfig, httpClient *http.Client) *ChatGPTClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint, model := cfg.Endpoint, cfg.Model
	if endpoint == "" {
		endpoint = chatGPTEndpoint
	}
	if model == "" {
		model = chatGPTModel
	}
	return &ChatGPTClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// TranslateChunk asks the model for a bare translation of chunk.
func (c *ChatGPTClient) TranslateChunk(ctx context.Context, chunk, targetLang string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt(targetLang)},
			{"role": "user", "content": chunk},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chatgpt returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func systemPrompt(targetLang string) string {
	return fmt.Sprintf("Translate the user's text into the language with code %q. "+
		"Reply with the translation only and keep any HTML tags unchanged.", targetLang)
}
