package posts

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/postmaster/postmaster-backend/internal/db/entities"
)

const (
	defaultImageType = "image/jpeg"
	maxImageBytes    = 10 << 20
)

// Content is what gets submitted to LinkedIn for one post.
type Content struct {
	Text        string
	Image       []byte
	ContentType string
	AltText     string
	ArticleURL  string
	Title       string
}

// Assembler turns a stored post into submittable content. Only the first
// image is fetched.
type Assembler struct {
	client *http.Client
}

func NewAssembler(client *http.Client) *Assembler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Assembler{client: client}
}

// ComposeText appends the hashtags to the body as "#a #b" after a blank line.
func ComposeText(body string, hashtags []string) string {
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
			tags = append(tags, "#"+tag)
		}
	}
	if len(tags) == 0 {
		return body
	}
	return body + "\n\n" + strings.Join(tags, " ")
}

func (a *Assembler) Assemble(ctx context.Context, post *entities.Post) (*Content, error) {
	content := &Content{
		Text:    ComposeText(post.Content, post.Hashtags),
		AltText: post.Title,
		Title:   post.Title,
	}
	if post.ArticleURL != nil {
		content.ArticleURL = *post.ArticleURL
	}
	if len(post.Images) == 0 {
		return content, nil
	}

	data, contentType, err := a.fetch(ctx, post.Images[0])
	if err != nil {
		return nil, err
	}
	content.Image = data
	content.ContentType = contentType
	return content, nil
}

func (a *Assembler) fetch(ctx context.Context, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &AssetFetchError{URL: url, Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", &AssetFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &AssetFetchError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", &AssetFetchError{URL: url, Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, "", &AssetFetchError{URL: url, Err: fmt.Errorf("image exceeds %d bytes", maxImageBytes)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultImageType
	}
	return data, contentType, nil
}

// decodeDataURL handles the inline images produced by demo-mode uploads.
func decodeDataURL(raw string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", &AssetFetchError{URL: "data:", Err: fmt.Errorf("malformed data url")}
	}

	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if contentType == "" {
		contentType = defaultImageType
	}

	var (
		data []byte
		err  error
	)
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
	} else {
		var s string
		s, err = neturl.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return nil, "", &AssetFetchError{URL: "data:", Err: err}
	}
	return data, contentType, nil
}
