package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// Facebook endpoints, Graph API v17.0.
const (
	FacebookAuthURL  = "https://www.facebook.com/v17.0/dialog/oauth"
	FacebookGraphURL = "https://graph.facebook.com/v17.0"
	facebookScope    = "pages_show_list,pages_read_engagement,pages_manage_posts,publish_to_groups"
)

// ErrNoFacebookPage is returned when the user manages no matching page.
var ErrNoFacebookPage = errors.New("no facebook page available")

// FacebookClient links a Facebook page. The stored token is the page
// access token, not the user token.
type FacebookClient struct {
	opts ClientOptions
	http *http.Client

	AuthURL  string
	GraphURL string
	// PageID selects the page to link. Empty picks the first page listed.
	PageID string
}

// NewFacebookClient creates a client against the public Graph API.
func NewFacebookClient(opts ClientOptions) *FacebookClient {
	return &FacebookClient{
		opts:     opts,
		http:     opts.httpClient(),
		AuthURL:  FacebookAuthURL,
		GraphURL: FacebookGraphURL,
	}
}

func (c *FacebookClient) Provider() Provider { return ProviderFacebook }

func (c *FacebookClient) AuthCodeURL(state string) string {
	conf := &oauth2.Config{
		ClientID:    c.opts.ClientID,
		RedirectURL: c.opts.RedirectURL,
		Scopes:      []string{facebookScope},
		Endpoint:    oauth2.Endpoint{AuthURL: c.AuthURL},
	}
	return conf.AuthCodeURL(state)
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *FacebookClient) token(ctx context.Context, query url.Values) (*Token, error) {
	var resp facebookTokenResponse
	if err := getJSON(ctx, c.http, c.GraphURL+"/oauth/access_token", query, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &Token{AccessToken: resp.AccessToken}, nil
}

// Exchange trades the code for a short-lived user token.
func (c *FacebookClient) Exchange(ctx context.Context, code string) (*Token, error) {
	return c.token(ctx, url.Values{
		"client_id":     {c.opts.ClientID},
		"client_secret": {c.opts.ClientSecret},
		"redirect_uri":  {c.opts.RedirectURL},
		"code":          {code},
	})
}

// ExchangeLongLived trades a short-lived user token for a long-lived one.
func (c *FacebookClient) ExchangeLongLived(ctx context.Context, tok *Token) (*Token, error) {
	return c.token(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.opts.ClientID},
		"client_secret":     {c.opts.ClientSecret},
		"fb_exchange_token": {tok.AccessToken},
	})
}

type facebookPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// Identify lists the pages the user manages and picks one.
func (c *FacebookClient) Identify(ctx context.Context, tok *Token) (*Identity, error) {
	var resp struct {
		Data []facebookPage `json:"data"`
	}
	err := getJSON(ctx, c.http, c.GraphURL+"/me/accounts", url.Values{"access_token": {tok.AccessToken}}, &resp)
	if err != nil {
		return nil, err
	}

	page, err := c.selectPage(resp.Data)
	if err != nil {
		return nil, err
	}
	return &Identity{
		AccountID:   page.ID,
		Name:        page.Name,
		AccessToken: page.AccessToken,
	}, nil
}

func (c *FacebookClient) selectPage(pages []facebookPage) (*facebookPage, error) {
	if len(pages) == 0 {
		return nil, ErrNoFacebookPage
	}
	if c.PageID == "" {
		return &pages[0], nil
	}
	for i := range pages {
		if pages[i].ID == c.PageID {
			return &pages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: page %s not managed by user", ErrNoFacebookPage, c.PageID)
}
