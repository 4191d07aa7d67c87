package posts

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/events"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/repository"
)

// Publish triggers
const (
	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

var errNotConnected = apperr.New(apperr.CodeAccountNotConnected, "LinkedIn not connected")

// Resolver picks and tracks the account a post is published with.
type Resolver interface {
	Resolve(ctx context.Context, owner, accountID string) (*entities.LinkedInAccount, error)
	Touch(ctx context.Context, accountID string, at time.Time)
}

// Submitter creates shares on LinkedIn.
type Submitter interface {
	SubmitTextPost(ctx context.Context, token, author, text string, visibility linkedin.Visibility) (*linkedin.PostResult, error)
	SubmitImagePost(ctx context.Context, token, author string, post linkedin.ImagePost) (*linkedin.PostResult, error)
	SubmitArticlePost(ctx context.Context, token, author string, post linkedin.ArticlePost) (*linkedin.PostResult, error)
}

// ContentAssembler builds submittable content for a post.
type ContentAssembler interface {
	Assemble(ctx context.Context, post *entities.Post) (*Content, error)
}

// Result is the outcome of one publish attempt.
type Result struct {
	Success        bool   `json:"success"`
	LinkedInPostID string `json:"linkedinPostId,omitempty"`
	Error          string `json:"error,omitempty"`
}

type Publisher struct {
	repo       *repository.Repository
	resolver   Resolver
	assembler  ContentAssembler
	submitter  Submitter
	notifier   events.Notifier
	invalidate Invalidator
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
	now        func() time.Time
}

type PublisherOption func(*Publisher)

func WithNotifier(n events.Notifier) PublisherOption {
	return func(p *Publisher) { p.notifier = n }
}

func WithInvalidator(i Invalidator) PublisherOption {
	return func(p *Publisher) { p.invalidate = i }
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(repo *repository.Repository, resolver Resolver, assembler ContentAssembler, submitter Submitter, logger *zap.SugaredLogger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &Publisher{
		repo:      repo,
		resolver:  resolver,
		assembler: assembler,
		submitter: submitter,
		notifier:  events.Discard,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish publishes the owner's post now. Precondition failures (missing
// post, wrong status, no account) leave the post untouched. Once claimed, the
// post ends up published or failed, and a failure is also returned as error.
func (p *Publisher) Publish(ctx context.Context, owner, postID, accountID string) (*Result, error) {
	post, err := p.repo.Posts.Get(ctx, owner, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to fetch post")
	}
	switch post.Status {
	case entities.StatusPublished:
		return nil, ErrAlreadyPublished
	case entities.StatusPublishing:
		return nil, ErrPublishInProgress
	}

	account, err := p.resolver.Resolve(ctx, owner, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errNotConnected
	}

	claimed, err := p.repo.Posts.Claim(ctx, owner, postID, post.Status)
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeDatabase, "Failed to claim post")
	}
	if !claimed {
		return nil, ErrPublishInProgress
	}
	post.Status = entities.StatusPublishing

	return p.publishWith(ctx, post, account, TriggerManual)
}

// PublishClaimed publishes a post the caller already moved to publishing.
// The returned result is never nil.
func (p *Publisher) PublishClaimed(ctx context.Context, post *entities.Post, accountID, trigger string) *Result {
	account, err := p.resolver.Resolve(ctx, post.UserID, accountID)
	if err == nil && account == nil {
		err = errNotConnected
	}
	if err != nil {
		return p.fail(ctx, post, trigger, err, p.now())
	}
	res, _ := p.publishWith(ctx, post, account, trigger)
	return res
}

func (p *Publisher) publishWith(ctx context.Context, post *entities.Post, account *entities.LinkedInAccount, trigger string) (*Result, error) {
	start := p.now()

	content, err := p.assembler.Assemble(ctx, post)
	if err != nil {
		return p.fail(ctx, post, trigger, err, start), classify(err)
	}

	submitted, err := p.submit(ctx, account, content)
	if err != nil {
		return p.fail(ctx, post, trigger, err, start), classify(err)
	}

	// the outcome must land even if the caller has gone away
	ctx = context.WithoutCancel(ctx)
	publishedAt := p.now()
	if err := p.repo.Posts.MarkPublished(ctx, post.ID, submitted.ID, account.ID, publishedAt); err != nil {
		// the share exists on LinkedIn either way
		p.logger.Errorw("Failed to record published post", "post", post.ID, "linkedinPostId", submitted.ID, "error", err)
	}
	p.resolver.Touch(ctx, account.ID, publishedAt)

	p.record(ctx, trigger, "published", start)
	p.logger.Infow("Post published", "user", post.UserID, "post", post.ID, "account", account.ID, "linkedinPostId", submitted.ID, "trigger", trigger)
	p.changed(ctx, post.UserID, events.Notification{
		Type:      events.TypePostPublished,
		Level:     events.LevelSuccess,
		Title:     "Post published",
		Message:   post.Title,
		PostID:    post.ID,
		AccountID: account.ID,
	})
	return &Result{Success: true, LinkedInPostID: submitted.ID}, nil
}

func (p *Publisher) submit(ctx context.Context, account *entities.LinkedInAccount, c *Content) (*linkedin.PostResult, error) {
	token, author := account.AccessToken, account.LinkedInID
	switch {
	case len(c.Image) > 0:
		return p.submitter.SubmitImagePost(ctx, token, author, linkedin.ImagePost{
			Text:        c.Text,
			Image:       c.Image,
			ContentType: c.ContentType,
			AltText:     c.AltText,
			Visibility:  linkedin.VisibilityPublic,
		})
	case c.ArticleURL != "":
		return p.submitter.SubmitArticlePost(ctx, token, author, linkedin.ArticlePost{
			Text:       c.Text,
			URL:        c.ArticleURL,
			Title:      c.Title,
			Visibility: linkedin.VisibilityPublic,
		})
	default:
		return p.submitter.SubmitTextPost(ctx, token, author, c.Text, linkedin.VisibilityPublic)
	}
}

func (p *Publisher) fail(ctx context.Context, post *entities.Post, trigger string, cause error, start time.Time) *Result {
	ctx = context.WithoutCancel(ctx)
	if err := p.repo.Posts.MarkFailed(ctx, post.ID); err != nil {
		p.logger.Errorw("Failed to record failed post", "post", post.ID, "error", err)
	}

	msg := apperr.MessageOf(cause)
	p.record(ctx, trigger, "failed", start)
	p.logger.Warnw("Post publish failed", "user", post.UserID, "post", post.ID, "trigger", trigger, "error", cause)
	p.changed(ctx, post.UserID, events.Notification{
		Type:    events.TypePostFailed,
		Level:   events.LevelError,
		Title:   "Publishing failed",
		Message: msg,
		PostID:  post.ID,
	})
	return &Result{Success: false, Error: msg}
}

func (p *Publisher) record(ctx context.Context, trigger, outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordPublish(ctx, trigger, outcome, p.now().Sub(start))
	}
}

func (p *Publisher) changed(ctx context.Context, owner string, n events.Notification) {
	if p.invalidate != nil {
		p.invalidate.Invalidate(ctx, owner)
	}
	p.notifier.Notify(ctx, owner, n)
}

// classify gives publish failures their HTTP-facing code.
func classify(err error) error {
	var (
		assetErr    *AssetFetchError
		providerErr *linkedin.ProviderError
	)
	switch {
	case errors.As(err, &assetErr):
		return apperr.WrapWithCode(err, apperr.CodeAssetFetch, err.Error())
	case errors.As(err, &providerErr):
		return apperr.WrapWithCode(err, apperr.CodeProvider, err.Error())
	}
	return apperr.WrapWithCode(err, apperr.CodeProvider, err.Error())
}
