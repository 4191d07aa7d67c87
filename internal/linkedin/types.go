package linkedin

import "time"

// Visibility of a member share.
type Visibility string

const (
	VisibilityPublic      Visibility = "PUBLIC"
	VisibilityConnections Visibility = "CONNECTIONS"
)

const (
	restliHeader  = "X-Restli-Protocol-Version"
	restliVersion = "2.0.0"

	shareContentKey    = "com.linkedin.ugc.ShareContent"
	visibilityKey      = "com.linkedin.ugc.MemberNetworkVisibility"
	uploadMechanismKey = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

	feedshareImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
)

// Profile is the OpenID Connect userinfo document.
type Profile struct {
	Sub        string `json:"sub"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Email      string `json:"email,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Locale     any    `json:"locale,omitempty"`
}

// DisplayName prefers the full name and falls back to given + family.
func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.GivenName + " " + p.FamilyName
}

// AuthorURN is the person URN used as post author and asset owner.
func AuthorURN(sub string) string {
	return "urn:li:person:" + sub
}

// PostResult identifies a created UGC post.
type PostResult struct {
	ID string `json:"id"`
}

// Token is the outcome of an authorization code exchange.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// ImagePost describes a share with one uploaded image.
type ImagePost struct {
	Text        string
	Image       []byte
	ContentType string
	AltText     string
	Visibility  Visibility
}

// ArticlePost describes a share of an external link.
type ArticlePost struct {
	Text        string
	URL         string
	Title       string
	Description string
	Visibility  Visibility
}

type textValue struct {
	Text string `json:"text"`
}

type media struct {
	Status      string     `json:"status"`
	Media       string     `json:"media,omitempty"`
	OriginalURL string     `json:"originalUrl,omitempty"`
	Title       *textValue `json:"title,omitempty"`
	Description *textValue `json:"description,omitempty"`
}

type shareContent struct {
	ShareCommentary    textValue `json:"shareCommentary"`
	ShareMediaCategory string    `json:"shareMediaCategory"`
	Media              []media   `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]Visibility   `json:"visibility"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type registerUploadRequest struct {
	RegisterUploadRequest struct {
		Recipes              []string              `json:"recipes"`
		Owner                string                `json:"owner"`
		ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
	} `json:"registerUploadRequest"`
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string `json:"uploadUrl"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}
