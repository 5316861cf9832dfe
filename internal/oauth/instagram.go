package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// Instagram endpoints.
const (
	InstagramAuthURL  = "https://api.instagram.com/oauth/authorize"
	InstagramTokenURL = "https://api.instagram.com/oauth/access_token"
	InstagramGraphURL = "https://graph.instagram.com"
	instagramScope    = "instagram_business_basic,instagram_business_content_publish"
)

// InstagramClient links Instagram business accounts.
type InstagramClient struct {
	opts ClientOptions
	http *http.Client

	AuthURL  string
	TokenURL string
	GraphURL string
}

// NewInstagramClient creates a client against the public Instagram endpoints.
func NewInstagramClient(opts ClientOptions) *InstagramClient {
	return &InstagramClient{
		opts:     opts,
		http:     opts.httpClient(),
		AuthURL:  InstagramAuthURL,
		TokenURL: InstagramTokenURL,
		GraphURL: InstagramGraphURL,
	}
}

func (c *InstagramClient) Provider() Provider { return ProviderInstagram }

func (c *InstagramClient) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		RedirectURL:  c.opts.RedirectURL,
		Scopes:       []string{instagramScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *InstagramClient) AuthCodeURL(state string) string {
	return c.config().AuthCodeURL(state)
}

// Exchange posts the code form-encoded with the credentials in the body.
func (c *InstagramClient) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.config().Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: tok.AccessToken}, nil
}

// ExchangeLongLived trades a short-lived token for a long-lived one.
func (c *InstagramClient) ExchangeLongLived(ctx context.Context, tok *Token) (*Token, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	query := url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {c.opts.ClientSecret},
		"access_token":  {tok.AccessToken},
	}
	if err := getJSON(ctx, c.http, c.GraphURL+"/access_token", query, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &Token{AccessToken: resp.AccessToken}, nil
}

func (c *InstagramClient) Identify(ctx context.Context, tok *Token) (*Identity, error) {
	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	query := url.Values{
		"fields":       {"id,username"},
		"access_token": {tok.AccessToken},
	}
	if err := getJSON(ctx, c.http, c.GraphURL+"/me", query, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.New("profile response missing id")
	}
	return &Identity{
		AccountID:   resp.ID,
		Name:        "@" + resp.Username,
		AccessToken: tok.AccessToken,
	}, nil
}
