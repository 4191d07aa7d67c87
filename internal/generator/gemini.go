package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiError is a non-2xx answer from the Gemini API.
type GeminiError struct {
	Status int
	Body   string
}

func (e *GeminiError) Error() string {
	return fmt.Sprintf("Gemini API error: %d - %s", e.Status, e.Body)
}

// Gemini calls the generateContent endpoint of one model.
type Gemini struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewGemini(baseURL, apiKey, model string, client *http.Client) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gemini{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Complete returns the text of the first candidate.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &GeminiError{Status: resp.StatusCode, Body: string(body)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return text.String(), nil
}
