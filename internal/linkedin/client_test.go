package linkedin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), nil), srv
}

func TestFetchProfile(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/userinfo", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		_, _ = w.Write([]byte(`{"sub":"abc","given_name":"Ada","family_name":"Lovelace","picture":"https://p"}`))
	})

	profile, err := client.FetchProfile(t.Context(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "abc", profile.Sub)
	assert.Equal(t, "Ada Lovelace", profile.DisplayName())
	assert.True(t, client.Health().Healthy)
}

func TestProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"expired"}`))
	})

	_, err := client.FetchProfile(t.Context(), "tok")
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.Status)
	assert.Equal(t, `LinkedIn API error: 401 - {"message":"expired"}`, err.Error())
	assert.True(t, IsUnauthorized(err))
	assert.True(t, client.Health().Healthy, "auth failures do not mark the provider down")
}

func TestProviderErrorMarksUnhealthyOnServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.SubmitTextPost(t.Context(), "tok", "abc", "hi", "")
	require.Error(t, err)
	health := client.Health()
	assert.False(t, health.Healthy)
	assert.Contains(t, health.LastError, "502")
}

func TestSubmitTextPost(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ugcPosts", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, "urn:li:person:abc", body["author"])
		assert.Equal(t, "PUBLISHED", body["lifecycleState"])
		share := body["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
		assert.Equal(t, "NONE", share["shareMediaCategory"])
		assert.Equal(t, "hello", share["shareCommentary"].(map[string]interface{})["text"])
		assert.NotContains(t, share, "media")
		assert.Equal(t, "PUBLIC", body["visibility"].(map[string]interface{})["com.linkedin.ugc.MemberNetworkVisibility"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:1"}`))
	})

	res, err := client.SubmitTextPost(t.Context(), "tok", "abc", "hello", VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", res.ID)
}

func TestSubmitImagePost(t *testing.T) {
	var calls []string
	var srv *httptest.Server
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/assets":
			assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))
			var body registerUploadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"urn:li:digitalmediaRecipe:feedshare-image"}, body.RegisterUploadRequest.Recipes)
			assert.Equal(t, "urn:li:person:abc", body.RegisterUploadRequest.Owner)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"value": map[string]interface{}{
					"asset": "urn:li:digitalmediaAsset:9",
					"uploadMechanism": map[string]interface{}{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
							"uploadUrl": srv.URL + "/upload/9",
						},
					},
				},
			})
		case r.URL.Path == "/upload/9":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			data, _ := io.ReadAll(r.Body)
			assert.Equal(t, []byte{1, 2, 3}, data)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/ugcPosts":
			var body ugcPost
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			share := body.SpecificContent[shareContentKey]
			assert.Equal(t, "IMAGE", share.ShareMediaCategory)
			require.Len(t, share.Media, 1)
			assert.Equal(t, "urn:li:digitalmediaAsset:9", share.Media[0].Media)
			assert.Equal(t, "READY", share.Media[0].Status)
			assert.Equal(t, "Image", share.Media[0].Title.Text)
			_, _ = w.Write([]byte(`{"id":"urn:li:share:2"}`))
		default:
			t.Errorf("unexpected call %s", r.URL)
		}
	})

	res, err := client.SubmitImagePost(t.Context(), "tok", "abc", ImagePost{
		Text: "pic", Image: []byte{1, 2, 3}, ContentType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:2", res.ID)
	assert.Equal(t, []string{"POST /assets", "PUT /upload/9", "POST /ugcPosts"}, calls)
}

func TestSubmitImagePostUploadFailure(t *testing.T) {
	var srv *httptest.Server
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets":
			_, _ = w.Write([]byte(`{"value":{"asset":"a","uploadMechanism":{"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"` + srv.URL + `/up"}}}}`))
		case "/up":
			w.WriteHeader(http.StatusForbidden)
		default:
			t.Errorf("post must not be created after a failed upload")
		}
	})

	_, err := client.SubmitImagePost(t.Context(), "tok", "abc", ImagePost{Image: []byte{1}})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.Status)
	assert.Contains(t, err.Error(), "Image upload failed")
}

func TestSubmitArticlePost(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body ugcPost
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		share := body.SpecificContent[shareContentKey]
		assert.Equal(t, "ARTICLE", share.ShareMediaCategory)
		require.Len(t, share.Media, 1)
		assert.Equal(t, "https://example.com/a", share.Media[0].OriginalURL)
		assert.Equal(t, "Title", share.Media[0].Title.Text)
		assert.Nil(t, share.Media[0].Description)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:3"}`))
	})

	res, err := client.SubmitArticlePost(t.Context(), "tok", "abc", ArticlePost{
		Text: "read", URL: "https://example.com/a", Title: "Title",
	})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:3", res.ID)
}

func TestOAuth(t *testing.T) {
	t.Run("missing settings", func(t *testing.T) {
		_, err := NewOAuth(OAuthConfig{RedirectURI: "x"}, nil).AuthCodeURL("u1")
		assert.ErrorIs(t, err, ErrClientIDMissing)
		_, err = NewOAuth(OAuthConfig{ClientID: "id"}, nil).AuthCodeURL("u1")
		assert.ErrorIs(t, err, ErrRedirectURIMissing)
	})

	t.Run("authorize url", func(t *testing.T) {
		raw, err := NewOAuth(OAuthConfig{ClientID: "id", RedirectURI: "https://app/cb"}, nil).AuthCodeURL("u1")
		require.NoError(t, err)
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "www.linkedin.com", u.Host)
		q := u.Query()
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "id", q.Get("client_id"))
		assert.Equal(t, "https://app/cb", q.Get("redirect_uri"))
		assert.Equal(t, "u1", q.Get("state"))
		assert.Equal(t, "openid profile w_member_social", q.Get("scope"))
	})

	t.Run("exchange", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "c0de", r.PostForm.Get("code"))
			assert.Equal(t, "id", r.PostForm.Get("client_id"))
			assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600}`))
		}))
		defer srv.Close()

		o := NewOAuth(OAuthConfig{
			ClientID: "id", ClientSecret: "secret", RedirectURI: "https://app/cb", TokenURL: srv.URL,
		}, srv.Client())
		tok, err := o.Exchange(t.Context(), "c0de")
		require.NoError(t, err)
		assert.Equal(t, "at", tok.AccessToken)
		assert.False(t, tok.ExpiresAt.IsZero())
	})
}
