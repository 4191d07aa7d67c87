// Package storage validates image uploads and stores them in object
// storage, or returns an inline placeholder when storage is unavailable.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/metrics"
)

const MaxFileSize = 10 << 20

var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

var (
	ErrNoFile      = apperr.New(apperr.CodeInvalidInput, "No file provided")
	ErrInvalidType = apperr.New(apperr.CodeInvalidInput, "Invalid file type. Only JPEG, PNG, WebP, and GIF are allowed.")
	ErrTooLarge    = apperr.New(apperr.CodeInvalidInput, "File too large. Maximum size is 10MB.")
)

// Upload modes
const (
	ModeReal = "real"
	ModeDemo = "demo"
)

// File is one uploaded form file.
type File struct {
	Name string
	Type string
	Size int64
	Body io.Reader
}

type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	IsReal   bool   `json:"isReal"`
}

// Putter writes objects and reports where they can be read.
type Putter interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
	PublicURL(path string) string
}

type Uploader struct {
	store   Putter
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
	suffix  func() string
}

type Option func(*Uploader)

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) { u.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// NewUploader builds an uploader. A nil store puts it in demo mode.
func NewUploader(store Putter, logger *zap.SugaredLogger, opts ...Option) *Uploader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	u := &Uploader{
		store:  store,
		logger: logger,
		now:    time.Now,
		suffix: func() string { return strconv.FormatUint(rand.Uint64(), 36) },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func allowed(contentType string) bool {
	for _, t := range AllowedTypes {
		if contentType == t {
			return true
		}
	}
	return false
}

// Upload validates f and stores it under the user's folder.
func (u *Uploader) Upload(ctx context.Context, userID string, f *File) (*Result, error) {
	if f == nil || f.Body == nil {
		return nil, ErrNoFile
	}
	if !allowed(f.Type) {
		return nil, ErrInvalidType
	}
	if f.Size > MaxFileSize {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(f.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	if !allowed(mimetype.Detect(data).String()) {
		return nil, ErrInvalidType
	}

	result := &Result{Filename: f.Name, Size: f.Size, Type: f.Type}
	if u.store != nil {
		key := u.objectPath(userID, f.Name)
		err := u.store.Put(ctx, key, f.Type, data)
		if err == nil {
			result.URL = u.store.PublicURL(key)
			result.IsReal = true
			u.record(ctx, ModeReal)
			return result, nil
		}
		u.logger.Warnw("real upload failed, using demo mode", "user_id", userID, "error", err)
	}

	result.URL, err = Placeholder(f.Name, f.Size)
	if err != nil {
		return nil, err
	}
	u.record(ctx, ModeDemo)
	return result, nil
}

func (u *Uploader) objectPath(userID, filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = filename
	}
	return fmt.Sprintf("%s/%d-%s.%s", userID, u.now().UnixMilli(), u.suffix(), ext)
}

func (u *Uploader) record(ctx context.Context, mode string) {
	if u.metrics != nil {
		u.metrics.RecordUpload(ctx, mode)
	}
}

var placeholderSVG = template.Must(template.New("placeholder").Parse(`<svg width="400" height="300" xmlns="http://www.w3.org/2000/svg">
  <rect width="400" height="300" fill="#10b981"/>
  <text x="200" y="150" font-family="Arial, sans-serif" font-size="16" fill="white" text-anchor="middle" dominant-baseline="middle">📷 {{.Name}}</text>
  <text x="200" y="180" font-family="Arial, sans-serif" font-size="12" fill="rgba(255,255,255,0.8)" text-anchor="middle" dominant-baseline="middle">Demo Mode - {{.KB}}KB</text>
</svg>`))

// Placeholder renders a 400x300 SVG naming the file, as a data URL.
func Placeholder(name string, size int64) (string, error) {
	var buf bytes.Buffer
	err := placeholderSVG.Execute(&buf, struct {
		Name string
		KB   int64
	}{Name: xmlEscape(name), KB: (size + 512) / 1024})
	if err != nil {
		return "", fmt.Errorf("render placeholder: %w", err)
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
