package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/accounts"
	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/dashboard"
	"github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/generator"
	"github.com/postmaster/postmaster-backend/internal/jobs"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/posts"
	"github.com/postmaster/postmaster-backend/internal/repository"
	"github.com/postmaster/postmaster-backend/internal/storage"
	"github.com/postmaster/postmaster-backend/internal/store"
	"github.com/postmaster/postmaster-backend/internal/ws"
	memkv "github.com/postmaster/postmaster-backend/pkg/kv/memory"
)

const testOrigin = "https://app.example"

// fakeLinkedIn serves the token, userinfo and ugcPosts endpoints.
type fakeLinkedIn struct {
	srv     *httptest.Server
	shares  atomic.Int32
	failUGC atomic.Bool
}

func newFakeLinkedIn(t *testing.T) *fakeLinkedIn {
	t.Helper()
	f := &fakeLinkedIn{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth/token":
			_ = r.ParseForm()
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"li-token","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			_, _ = w.Write([]byte(`{"sub":"member-1","given_name":"Ada","family_name":"Lovelace"}`))
		case "/ugcPosts":
			if f.failUGC.Load() {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"message":"duplicate"}`))
				return
			}
			n := f.shares.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"urn:li:share:` + strconv.Itoa(int(n)) + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

type testServer struct {
	router   http.Handler
	repo     *repository.Repository
	verifier *auth.Verifier
	linkedin *fakeLinkedIn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	database := db.NewInMemoryDatabase()
	require.NoError(t, database.Connect(ctx))
	require.NoError(t, database.Migrate(ctx, db.AllSchemas()))
	repo := repository.NewRepository(database, nil)

	m := metrics.NewForTest()
	cache := store.NewInMemoryCache(nil, m)
	leases := memkv.New(time.Minute)
	t.Cleanup(func() { _ = leases.Close() })

	fake := newFakeLinkedIn(t)
	client := linkedin.NewClient(fake.srv.URL, fake.srv.Client(), nil)
	oauth := linkedin.NewOAuth(linkedin.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  testOrigin + "/v1/auth/linkedin/callback",
		AuthURL:      fake.srv.URL + "/oauth/authorize",
		TokenURL:     fake.srv.URL + "/oauth/token",
	}, fake.srv.Client())

	dash := dashboard.NewService(repo, cache, time.Minute, nil)
	accts := accounts.NewService(repo, client, oauth, nil, accounts.WithInvalidator(dash))
	publisher := posts.NewPublisher(repo, accts, posts.NewAssembler(fake.srv.Client()), client, nil,
		posts.WithInvalidator(dash), posts.WithMetrics(m))
	gen, err := generator.New(nil, nil)
	require.NoError(t, err)
	sweeper := jobs.NewSweeper(repo, publisher, leases, nil, m, nil, jobs.SweeperConfig{
		Interval: time.Minute,
		LeaseTTL: time.Minute,
	})

	verifier := auth.NewVerifier("test-secret", "", "pm_session")
	h := NewHandler(Deps{
		Posts:        posts.NewService(repo, dash, nil),
		Publisher:    publisher,
		Accounts:     accts,
		Generator:    gen,
		Uploader:     storage.NewUploader(nil, nil),
		Dashboard:    dash,
		Sweeper:      sweeper,
		LinkedIn:     client,
		WSHub:        ws.NewHub(cache, []string{testOrigin}, nil, m),
		SSEHandler:   ws.NewSSEHandler(cache, nil),
		Verifier:     verifier,
		Checks:       map[string]Pinger{"cache": cache},
		PublicOrigin: testOrigin,
	}, nil)

	return &testServer{
		router:   h.Routes(NewMiddleware(nil, m), []string{testOrigin}, 0, nil),
		repo:     repo,
		verifier: verifier,
		linkedin: fake,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.verifier.Issue(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as userID; an empty userID sends no credentials.
func (s *testServer) do(t *testing.T, userID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) connect(t *testing.T, userID string) *entities.LinkedInAccount {
	t.Helper()
	account, err := s.repo.Accounts.Upsert(context.Background(), &entities.LinkedInAccount{
		UserID: userID, LinkedInID: "member-" + userID, AccessToken: "li-token", DisplayName: "Ada",
	}, true)
	require.NoError(t, err)
	return account
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decodeBody[ErrorResponse](t, rec).Error
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, "", http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[ReadyResponse](t, rec)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["cache"])
	assert.True(t, ready.LinkedIn.Healthy)
}

func TestAuthenticatedRoutesRejectAnonymous(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/posts", "/v1/linkedin/accounts", "/v1/dashboard", "/v1/linkedin/connect"} {
		rec := s.do(t, "", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Unauthorized", errorOf(t, rec), path)
	}
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{
		"title":    "Launch",
		"content":  "We shipped",
		"hashtags": []string{"#go", "release"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[PostResponse](t, rec).Post
	assert.Equal(t, entities.StatusDraft, created.Status)

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{
		"title": "Later", "content": "x", "status": "scheduled",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "scheduled needs scheduledAt")

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{
		"title": "Bad", "content": "x", "status": "published",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "clients cannot create published posts")

	rec = s.do(t, "u2", http.MethodGet, "/v1/posts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "posts are owner scoped")

	when := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec = s.do(t, "u1", http.MethodPut, "/v1/posts/"+created.ID, map[string]interface{}{
		"title": "Launch day", "status": "scheduled", "scheduledAt": when,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[PostResponse](t, rec).Post
	assert.Equal(t, "Launch day", updated.Title)
	assert.Equal(t, entities.StatusScheduled, updated.Status)
	require.NotNil(t, updated.ScheduledAt)
	assert.True(t, when.Equal(*updated.ScheduledAt))

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/"+created.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decodeBody[PostResponse](t, rec).Post
	assert.Equal(t, "Launch day (Copy)", dup.Title)
	assert.Equal(t, entities.StatusDraft, dup.Status)

	rec = s.do(t, "u1", http.MethodGet, "/v1/posts?status=draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	drafts := decodeBody[PostsResponse](t, rec).Posts
	require.Len(t, drafts, 1)
	assert.Equal(t, dup.ID, drafts[0].ID)

	rec = s.do(t, "u1", http.MethodDelete, "/v1/posts/"+dup.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SuccessResponse](t, rec).Success)

	rec = s.do(t, "u1", http.MethodGet, "/v1/posts/"+dup.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishPost(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Post ID is required", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{"postId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Post not found", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{"title": "Hello", "content": "world"})
	require.Equal(t, http.StatusCreated, rec.Code)
	post := decodeBody[PostResponse](t, rec).Post

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{"postId": post.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "LinkedIn not connected", errorOf(t, rec))

	got, err := s.repo.Posts.Get(context.Background(), "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDraft, got.Status, "precondition failures leave the post untouched")

	account := s.connect(t, "u1")
	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{"postId": post.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[posts.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "urn:li:share:1", res.LinkedInPostID)

	got, err = s.repo.Posts.Get(context.Background(), "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPublished, got.Status)
	require.NotNil(t, got.LinkedInAccountID)
	assert.Equal(t, account.ID, *got.LinkedInAccountID)

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{"postId": post.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Post is already published", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodPut, "/v1/posts/"+post.ID, map[string]string{"title": "edit"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "published posts are read only")
}

func TestPublishPostProviderFailure(t *testing.T) {
	s := newTestServer(t)
	s.connect(t, "u1")
	s.linkedin.failUGC.Store(true)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{"title": "Hello", "content": "world"})
	require.Equal(t, http.StatusCreated, rec.Code)
	post := decodeBody[PostResponse](t, rec).Post

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/publish", map[string]string{"postId": post.ID})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorOf(t, rec), "LinkedIn API error: 422")

	got, err := s.repo.Posts.Get(context.Background(), "u1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, got.Status)
}

func TestSweepPosts(t *testing.T) {
	s := newTestServer(t)
	s.connect(t, "u1")

	past := time.Now().Add(-time.Minute)
	_, err := s.repo.Posts.Create(context.Background(), &entities.Post{
		UserID: "u1", Title: "due", Content: "now", Status: entities.StatusScheduled, ScheduledAt: &past,
	})
	require.NoError(t, err)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[jobs.SweepResult](t, rec)
	assert.Equal(t, 1, res.Published)
	assert.Zero(t, res.Failed)
}

func TestLinkedInConnectFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodGet, "/v1/linkedin/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, err := url.Parse(decodeBody[ConnectResponse](t, rec).AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "u1", authURL.Query().Get("state"))
	assert.Equal(t, "client", authURL.Query().Get("client_id"))

	callback := func(userID, query string) *url.URL {
		rec := s.do(t, userID, http.MethodGet, "/v1/auth/linkedin/callback?"+query, nil)
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, testOrigin+"/dashboard", loc.Scheme+"://"+loc.Host+loc.Path)
		return loc
	}

	tests := []struct {
		name   string
		user   string
		query  string
		result string
	}{
		{"provider error", "u1", "error=user_cancelled_login", "user_cancelled_login"},
		{"missing code", "u1", "state=u1", "missing_params"},
		{"no session", "", "code=good-code&state=u1", "invalid_state"},
		{"state mismatch", "u1", "code=good-code&state=u2", "invalid_state"},
		{"bad code", "u1", "code=bad&state=u1", "token_exchange_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := callback(tt.user, tt.query)
			assert.Equal(t, tt.result, loc.Query().Get("error"))
		})
	}

	n, err := s.repo.Accounts.CountActive(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n, "failed callbacks write nothing")

	loc := callback("u1", "code=good-code&state=u1")
	assert.Equal(t, "connected", loc.Query().Get("linkedin"))

	rec = s.do(t, "u1", http.MethodGet, "/v1/linkedin/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[AccountsResponse](t, rec).Accounts
	require.Len(t, list, 1)
	assert.Equal(t, "Ada Lovelace", list[0].DisplayName)
	assert.True(t, list[0].IsPrimary)
	assert.NotContains(t, rec.Body.String(), "li-token", "tokens never leave the server")

	rec = s.do(t, "u1", http.MethodGet, "/v1/linkedin/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member-1", decodeBody[TestConnectionResponse](t, rec).Profile.Sub)

	rec = s.do(t, "u1", http.MethodDelete, "/v1/linkedin/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	n, err = s.repo.Accounts.CountActive(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	rec = s.do(t, "u1", http.MethodGet, "/v1/linkedin/test", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "LinkedIn not connected", errorOf(t, rec))
}

func TestAccountManagement(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	first := s.connect(t, "u1")
	second, err := s.repo.Accounts.Upsert(ctx, &entities.LinkedInAccount{
		UserID: "u1", LinkedInID: "other", AccessToken: "t", DisplayName: "Bea",
	}, false)
	require.NoError(t, err)

	rec := s.do(t, "u1", http.MethodPatch, "/v1/linkedin/accounts", AccountRequest{AccountID: second.ID, Action: "rename"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodPost, "/v1/linkedin/set-primary", AccountRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Account ID is required", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodPatch, "/v1/linkedin/accounts", AccountRequest{AccountID: second.ID, Action: "setPrimary"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[AccountResponse](t, rec)
	assert.True(t, resp.Account.IsPrimary)
	assert.NotNil(t, resp.Account.LastUsedAt, "PATCH records use")

	primary, err := s.repo.Accounts.Primary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, primary.ID)

	rec = s.do(t, "u2", http.MethodDelete, "/v1/linkedin/accounts", AccountRequest{AccountID: second.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Account not found", errorOf(t, rec))

	rec = s.do(t, "u1", http.MethodDelete, "/v1/linkedin/accounts", AccountRequest{AccountID: second.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	primary, err = s.repo.Accounts.Primary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, primary.ID, "removing the primary promotes another account")
}

func TestGeneratePostDemoMode(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts/generate", map[string]string{"topic": "Remote work"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "u1", http.MethodPost, "/v1/posts/generate", generator.Request{
		Topic: "Remote work", Tone: "professional", Length: "short", IncludeHashtags: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft := decodeBody[generator.Draft](t, rec)
	assert.True(t, strings.HasPrefix(draft.ID, "temp-"))
	assert.Equal(t, "generated", draft.Status)
	assert.NotEmpty(t, draft.Content)
	assert.Contains(t, draft.Hashtags, "Remotework")
}

func multipartUpload(t *testing.T, s *testServer, field, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, "u1"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...)

	rec := multipartUpload(t, s, "", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", errorOf(t, rec))

	rec = multipartUpload(t, s, "file", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, storage.ErrInvalidType.Error(), errorOf(t, rec))

	rec = multipartUpload(t, s, "file", "cat.png", "image/png", png)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[storage.Result](t, rec)
	assert.False(t, res.IsReal, "no storage configured")
	assert.True(t, strings.HasPrefix(res.URL, "data:image/svg+xml;base64,"))
	assert.Equal(t, "cat.png", res.Filename)
}

func TestDashboardSummary(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{"title": "a", "content": "b"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "u1", http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[dashboard.Summary](t, rec)
	assert.Equal(t, int64(1), summary.Stats.Total)
	assert.Equal(t, int64(1), summary.Stats.Drafts)
	assert.Len(t, summary.RecentPosts, 1)

	// writes invalidate the cached summary
	rec = s.do(t, "u1", http.MethodPost, "/v1/posts", map[string]interface{}{"title": "c", "content": "d"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, "u1", http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[dashboard.Summary](t, rec).Stats.Total)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/posts", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
