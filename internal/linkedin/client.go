// Package linkedin talks to the LinkedIn REST API and OAuth endpoints.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultAPIURL = "https://api.linkedin.com/v2"

// maxErrorBody bounds how much of a failed response is kept in ProviderError.
const maxErrorBody = 4 << 10

// Health is the client's view of the provider after its last call.
type Health struct {
	Healthy     bool      `json:"healthy"`
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
}

// Client is a LinkedIn REST client. Calls are never retried.
type Client struct {
	logger  *zap.SugaredLogger
	client  *http.Client
	baseURL string

	mu     sync.RWMutex
	health Health
}

// NewClient creates a client against baseURL. A nil httpClient gets a plain
// client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		logger:  logger,
		client:  httpClient,
		baseURL: baseURL,
		health: Health{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

// Health returns the current provider health.
func (c *Client) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

func (c *Client) updateHealth(healthy bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.health.Healthy = healthy
	if healthy {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
	} else if err != nil {
		c.health.LastError = err.Error()
	}
}

// FetchProfile returns the OpenID userinfo of the token's member.
func (c *Client) FetchProfile(ctx context.Context, token string) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, token, http.MethodGet, "/userinfo", nil, &profile); err != nil {
		return nil, err
	}
	if profile.Sub == "" {
		return nil, fmt.Errorf("userinfo without sub: %w", ErrMalformedResponse)
	}
	return &profile, nil
}

// SubmitTextPost creates a text-only share authored by the member sub.
func (c *Client) SubmitTextPost(ctx context.Context, token, author, text string, visibility Visibility) (*PostResult, error) {
	return c.createPost(ctx, token, author, text, "NONE", nil, visibility)
}

// SubmitImagePost registers an upload, sends the image bytes to the returned
// upload URL and then creates an IMAGE share referencing the asset.
func (c *Client) SubmitImagePost(ctx context.Context, token, author string, post ImagePost) (*PostResult, error) {
	asset, uploadURL, err := c.registerUpload(ctx, token, author)
	if err != nil {
		return nil, err
	}
	if err := c.uploadImage(ctx, token, uploadURL, post.Image, post.ContentType); err != nil {
		return nil, err
	}

	alt := post.AltText
	if alt == "" {
		alt = "Image"
	}
	return c.createPost(ctx, token, author, post.Text, "IMAGE", []media{{
		Status: "READY",
		Media:  asset,
		Title:  &textValue{Text: alt},
	}}, post.Visibility)
}

// SubmitArticlePost creates an ARTICLE share pointing at an external URL.
func (c *Client) SubmitArticlePost(ctx context.Context, token, author string, post ArticlePost) (*PostResult, error) {
	m := media{
		Status:      "READY",
		OriginalURL: post.URL,
	}
	if post.Title != "" {
		m.Title = &textValue{Text: post.Title}
	}
	if post.Description != "" {
		m.Description = &textValue{Text: post.Description}
	}
	return c.createPost(ctx, token, author, post.Text, "ARTICLE", []media{m}, post.Visibility)
}

func (c *Client) createPost(ctx context.Context, token, author, text, category string, items []media, visibility Visibility) (*PostResult, error) {
	if visibility == "" {
		visibility = VisibilityPublic
	}
	body := ugcPost{
		Author:         AuthorURN(author),
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			shareContentKey: {
				ShareCommentary:    textValue{Text: text},
				ShareMediaCategory: category,
				Media:              items,
			},
		},
		Visibility: map[string]Visibility{visibilityKey: visibility},
	}

	var result PostResult
	if err := c.do(ctx, token, http.MethodPost, "/ugcPosts", body, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("ugcPosts without id: %w", ErrMalformedResponse)
	}
	c.logger.Debugw("Created LinkedIn post", "id", result.ID, "category", category)
	return &result, nil
}

func (c *Client) registerUpload(ctx context.Context, token, author string) (asset, uploadURL string, err error) {
	var req registerUploadRequest
	req.RegisterUploadRequest.Recipes = []string{feedshareImageRecipe}
	req.RegisterUploadRequest.Owner = AuthorURN(author)
	req.RegisterUploadRequest.ServiceRelationships = []serviceRelationship{{
		RelationshipType: "OWNER",
		Identifier:       "urn:li:userGeneratedContent",
	}}

	var resp registerUploadResponse
	if err := c.do(ctx, token, http.MethodPost, "/assets?action=registerUpload", req, &resp); err != nil {
		return "", "", err
	}
	mechanism, ok := resp.Value.UploadMechanism[uploadMechanismKey]
	if !ok || mechanism.UploadURL == "" || resp.Value.Asset == "" {
		return "", "", fmt.Errorf("registerUpload without upload url: %w", ErrMalformedResponse)
	}
	return resp.Value.Asset, mechanism.UploadURL, nil
}

func (c *Client) uploadImage(ctx context.Context, token, uploadURL string, image []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.updateHealth(false, err)
		return fmt.Errorf("image upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &ProviderError{Status: resp.StatusCode, Body: "Image upload failed: " + string(body)}
		c.updateHealth(false, err)
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(restliHeader, restliVersion)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.updateHealth(false, err)
		return fmt.Errorf("LinkedIn %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &ProviderError{Status: resp.StatusCode, Body: string(raw)}
		// a rejected token says nothing about provider health
		if resp.StatusCode >= 500 {
			c.updateHealth(false, err)
		}
		c.logger.Warnw("LinkedIn API error", "method", method, "path", path, "status", resp.StatusCode)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.updateHealth(false, err)
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	c.updateHealth(true, nil)
	c.logger.Debugw("LinkedIn call", "method", method, "path", path, "duration", time.Since(start))
	return nil
}
