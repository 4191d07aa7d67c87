// Package generator drafts LinkedIn posts with Gemini and falls back to
// canned content when the model is unavailable.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/metrics"
)

// Generation sources
const (
	SourceGemini   = "gemini"
	SourceDemo     = "demo"
	SourceFallback = "fallback"
)

var (
	ErrMissingFields = apperr.New(apperr.CodeInvalidInput, "Missing required fields: topic, tone, length")
	ErrInvalidKey    = apperr.New(apperr.CodeGeneration, "Gemini API key is invalid. Please check your configuration.")
	ErrRateLimited   = apperr.New(apperr.CodeGeneration, "Gemini API rate limit exceeded. Please try again later.")
)

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Request struct {
	Topic           string `json:"topic"`
	Tone            string `json:"tone"`
	Length          string `json:"length"`
	IncludeHashtags bool   `json:"includeHashtags"`
	IncludeQuestion bool   `json:"includeQuestion"`
	TargetAudience  string `json:"targetAudience,omitempty"`
}

// Draft is a generated post that has not been saved yet.
type Draft struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Hashtags      []string  `json:"hashtags"`
	SuggestedTime time.Time `json:"suggestedTime"`
	Source        string    `json:"-"`
}

type modelReply struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

type Generator struct {
	completer Completer
	catalogue *catalogue
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

type Option func(*Generator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New builds a generator. A nil completer puts it in demo mode.
func New(completer Completer, logger *zap.SugaredLogger, opts ...Option) (*Generator, error) {
	cat, err := loadCatalogue(promptsYAML)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g := &Generator{
		completer: completer,
		catalogue: cat,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// DemoMode reports whether drafts come from canned templates only.
func (g *Generator) DemoMode() bool {
	return g.completer == nil
}

func (g *Generator) validate(req Request) error {
	if strings.TrimSpace(req.Topic) == "" || req.Tone == "" || req.Length == "" {
		return ErrMissingFields
	}
	if _, ok := g.catalogue.tones[req.Tone]; !ok {
		return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("Invalid tone: %s", req.Tone))
	}
	if _, ok := g.catalogue.lengths[req.Length]; !ok {
		return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("Invalid length: %s", req.Length))
	}
	return nil
}

// Generate drafts a post for req.
func (g *Generator) Generate(ctx context.Context, req Request) (*Draft, error) {
	if err := g.validate(req); err != nil {
		return nil, err
	}

	var (
		draft *Draft
		err   error
	)
	if g.completer == nil {
		draft, err = g.demo(req)
	} else {
		draft, err = g.fromModel(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	now := g.now()
	draft.ID = fmt.Sprintf("temp-%d", now.UnixMilli())
	draft.Status = "generated"
	draft.SuggestedTime = SuggestedTime(now)
	if g.metrics != nil {
		g.metrics.RecordGeneration(ctx, draft.Source)
	}
	return draft, nil
}

func (g *Generator) fromModel(ctx context.Context, req Request) (*Draft, error) {
	prompt, err := g.catalogue.prompt(req)
	if err != nil {
		return nil, err
	}

	text, err := g.completer.Complete(ctx, prompt)
	if err == nil {
		var reply *modelReply
		if reply, err = parseReply(text); err == nil {
			hashtags := []string{}
			if req.IncludeHashtags && reply.Hashtags != nil {
				hashtags = reply.Hashtags
			}
			return &Draft{Title: reply.Title, Content: reply.Content, Hashtags: hashtags, Source: SourceGemini}, nil
		}
	}

	if mapped := mapModelError(err); mapped != nil {
		g.logger.Warnw("gemini rejected request", "error", err)
		return nil, mapped
	}
	g.logger.Warnw("gemini generation failed, using fallback", "error", err)
	return g.fallback(req)
}

func mapModelError(err error) error {
	var gerr *GeminiError
	if errors.As(err, &gerr) {
		switch gerr.Status {
		case 401, 403:
			return apperr.WrapWithCode(err, apperr.CodeGeneration, apperr.MessageOf(ErrInvalidKey))
		case 429:
			return apperr.WrapWithCode(err, apperr.CodeGeneration, apperr.MessageOf(ErrRateLimited))
		}
	}
	if err != nil && strings.Contains(err.Error(), "API key") {
		return apperr.WrapWithCode(err, apperr.CodeGeneration, apperr.MessageOf(ErrInvalidKey))
	}
	return nil
}

// parseReply pulls the outermost {...} block out of free text.
func parseReply(text string) (*modelReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON found in response")
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	return &reply, nil
}

func (g *Generator) demo(req Request) (*Draft, error) {
	title, err := g.catalogue.render("demo.title", req)
	if err != nil {
		return nil, err
	}
	body := "demo.general"
	if req.Tone == "storytelling" {
		body = "demo.story"
	}
	content, err := g.catalogue.render(body, req)
	if err != nil {
		return nil, err
	}
	return &Draft{
		Title:    title,
		Content:  content,
		Hashtags: g.cannedHashtags(req, g.catalogue.demoHashtags),
		Source:   SourceDemo,
	}, nil
}

func (g *Generator) fallback(req Request) (*Draft, error) {
	title, err := g.catalogue.render("fallback.title", req)
	if err != nil {
		return nil, err
	}
	content, err := g.catalogue.render("fallback.body", req)
	if err != nil {
		return nil, err
	}
	return &Draft{
		Title:    title,
		Content:  content,
		Hashtags: g.cannedHashtags(req, g.catalogue.fallbackHashtags),
		Source:   SourceFallback,
	}, nil
}

func (g *Generator) cannedHashtags(req Request, base []string) []string {
	if !req.IncludeHashtags {
		return []string{}
	}
	tags := append([]string{}, base...)
	return append(tags, strings.Join(strings.Fields(req.Topic), ""))
}

// SuggestedTime picks the next Tuesday-to-Thursday slot: 13:00 when now is
// late morning, 9:00 otherwise.
func SuggestedTime(now time.Time) time.Time {
	day := int(now.Weekday())
	target := day
	if day == int(time.Friday) || day == int(time.Saturday) || day == int(time.Sunday) || day == int(time.Monday) {
		target = int(time.Tuesday)
	}
	hour := 9
	if h := now.Hour(); h >= 10 && h < 15 {
		hour = 13
	}
	date := now.AddDate(0, 0, (target-day+7)%7)
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, now.Location())
}
