package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TikTok endpoints.
const (
	TikTokAuthURL = "https://www.tiktok.com/v2/auth/authorize/"
	TikTokAPIURL  = "https://open-api.tiktok.com"
	tiktokScope   = "user.info.basic,video.publish"
)

// TikTokClient links TikTok accounts. TikTok wraps every response in an
// envelope whose message must read "success".
type TikTokClient struct {
	opts ClientOptions
	http *http.Client

	AuthURL string
	APIURL  string
}

// NewTikTokClient creates a client against the public TikTok endpoints.
func NewTikTokClient(opts ClientOptions) *TikTokClient {
	return &TikTokClient{
		opts:    opts,
		http:    opts.httpClient(),
		AuthURL: TikTokAuthURL,
		APIURL:  TikTokAPIURL,
	}
}

func (c *TikTokClient) Provider() Provider { return ProviderTikTok }

func (c *TikTokClient) AuthCodeURL(state string) string {
	conf := &oauth2.Config{
		ClientID:    c.opts.ClientID,
		RedirectURL: c.opts.RedirectURL,
		Scopes:      []string{tiktokScope},
		Endpoint:    oauth2.Endpoint{AuthURL: c.AuthURL},
	}
	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("client_key", c.opts.ClientID))
}

type tiktokEnvelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (e tiktokEnvelope[T]) check() error {
	if e.Message != "success" {
		return fmt.Errorf("tiktok responded with message %q", e.Message)
	}
	return nil
}

func (c *TikTokClient) Exchange(ctx context.Context, code string) (*Token, error) {
	body := map[string]string{
		"client_key":    c.opts.ClientID,
		"client_secret": c.opts.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
		"redirect_uri":  c.opts.RedirectURL,
	}

	var resp tiktokEnvelope[struct {
		AccessToken string `json:"access_token"`
		OpenID      string `json:"open_id"`
	}]
	if err := postJSON(ctx, c.http, c.APIURL+"/oauth/access_token/", body, &resp, nil); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if resp.Data.AccessToken == "" || resp.Data.OpenID == "" {
		return nil, errors.New("token response missing access_token or open_id")
	}

	return &Token{
		AccessToken: resp.Data.AccessToken,
		Profile:     &Identity{AccountID: resp.Data.OpenID},
	}, nil
}

func (c *TikTokClient) Identify(ctx context.Context, tok *Token) (*Identity, error) {
	if tok.Profile == nil || tok.Profile.AccountID == "" {
		return nil, errors.New("token carries no open_id")
	}
	openID := tok.Profile.AccountID

	body := map[string]string{
		"open_id":      openID,
		"access_token": tok.AccessToken,
	}
	var resp tiktokEnvelope[struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}]
	err := postJSON(ctx, c.http, c.APIURL+"/oauth/userinfo/", body, &resp, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	})
	if err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}

	name := resp.Data.Username
	if name == "" {
		name = resp.Data.DisplayName
	}
	return &Identity{
		AccountID:   openID,
		Name:        "@" + name,
		AccessToken: tok.AccessToken,
	}, nil
}
