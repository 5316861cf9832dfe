package oauth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
)

// Notion OAuth endpoints.
const (
	NotionAuthURL  = "https://api.notion.com/v1/oauth/authorize"
	NotionTokenURL = "https://api.notion.com/v1/oauth/token"
)

// NotionClient links Notion workspaces. Notion returns the workspace
// identity with the token, so Identify makes no network call.
type NotionClient struct {
	opts ClientOptions
	http *http.Client

	AuthURL  string
	TokenURL string
}

// NewNotionClient creates a client against the public Notion endpoints.
func NewNotionClient(opts ClientOptions) *NotionClient {
	return &NotionClient{
		opts:     opts,
		http:     opts.httpClient(),
		AuthURL:  NotionAuthURL,
		TokenURL: NotionTokenURL,
	}
}

func (c *NotionClient) Provider() Provider { return ProviderNotion }

func (c *NotionClient) AuthCodeURL(state string) string {
	conf := &oauth2.Config{
		ClientID:    c.opts.ClientID,
		RedirectURL: c.opts.RedirectURL,
		Endpoint:    oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL},
	}
	return conf.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user"))
}

type notionTokenResponse struct {
	AccessToken   string  `json:"access_token"`
	BotID         string  `json:"bot_id"`
	WorkspaceID   string  `json:"workspace_id"`
	WorkspaceName string  `json:"workspace_name"`
	WorkspaceIcon *string `json:"workspace_icon"`
}

// Exchange posts the code as JSON with the client credentials in a basic
// authorization header.
func (c *NotionClient) Exchange(ctx context.Context, code string) (*Token, error) {
	body := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.opts.RedirectURL,
	}

	var resp notionTokenResponse
	err := postJSON(ctx, c.http, c.TokenURL, body, &resp, func(req *http.Request) {
		req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}

	profile := &Identity{
		AccountID:   resp.WorkspaceID,
		Name:        resp.WorkspaceName,
		BotID:       resp.BotID,
		AccessToken: resp.AccessToken,
	}
	if resp.WorkspaceIcon != nil {
		profile.Icon = *resp.WorkspaceIcon
	}
	return &Token{AccessToken: resp.AccessToken, Profile: profile}, nil
}

func (c *NotionClient) Identify(_ context.Context, tok *Token) (*Identity, error) {
	if tok.Profile == nil || tok.Profile.AccountID == "" {
		return nil, errors.New("token response missing workspace_id")
	}
	id := *tok.Profile
	if id.Name == "" {
		id.Name = "Notion workspace"
	}
	return &id, nil
}
