package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ObjectStoreError is a non-2xx answer from the storage REST API.
type ObjectStoreError struct {
	Status int
	Body   string
}

func (e *ObjectStoreError) Error() string {
	return fmt.Sprintf("storage API error: %d - %s", e.Status, e.Body)
}

// ObjectStore talks to a Supabase-compatible storage REST API with a
// service key.
type ObjectStore struct {
	client     *http.Client
	baseURL    string
	serviceKey string
	bucket     string
}

func NewObjectStore(baseURL, serviceKey, bucket string, client *http.Client) *ObjectStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &ObjectStore{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
	}
}

func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// PublicURL is where a stored object can be read without credentials.
func (s *ObjectStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path)
}

// Put stores data at path. Existing objects are never overwritten.
func (s *ObjectStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	return s.do(req)
}

type bucketRequest struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Public           bool     `json:"public"`
	AllowedMimeTypes []string `json:"allowed_mime_types"`
	FileSizeLimit    int64    `json:"file_size_limit"`
}

// EnsureBucket creates the public image bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	payload, err := json.Marshal(bucketRequest{
		ID:               s.bucket,
		Name:             s.bucket,
		Public:           true,
		AllowedMimeTypes: AllowedTypes,
		FileSizeLimit:    MaxFileSize,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/storage/v1/bucket", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	err = s.do(req)
	var serr *ObjectStoreError
	if errors.As(err, &serr) && (serr.Status == http.StatusConflict || strings.Contains(serr.Body, "already exists")) {
		return nil
	}
	return err
}

func (s *ObjectStore) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &ObjectStoreError{Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
