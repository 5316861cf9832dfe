package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fuomag9/notionsocial/internal/config"
)

// Provider identifies an external OAuth provider.
type Provider string

const (
	ProviderNotion    Provider = "notion"
	ProviderFacebook  Provider = "facebook"
	ProviderInstagram Provider = "instagram"
	ProviderTikTok    Provider = "tiktok"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderNotion, ProviderFacebook, ProviderInstagram, ProviderTikTok}

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProvider, name)
}

// IsSocial reports whether linking p produces a social account rather than
// a Notion workspace.
func (p Provider) IsSocial() bool {
	return p != ProviderNotion
}

// Token is the result of an authorization code exchange.
type Token struct {
	AccessToken string
	// Profile carries identity fields returned alongside the token by
	// providers that have no separate identity call.
	Profile *Identity
}

// Identity is the external account an access token belongs to.
type Identity struct {
	AccountID string
	Name      string
	Icon      string
	BotID     string
	// AccessToken is the token to persist. It differs from the exchanged
	// token when the provider hands out a narrower one, such as a Facebook
	// page token.
	AccessToken string
}

// Client speaks one provider's authorization code flow.
type Client interface {
	Provider() Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Token, error)
	Identify(ctx context.Context, tok *Token) (*Identity, error)
}

// LongLivedExchanger is implemented by providers whose code exchange yields
// a short-lived token that can be traded for a long-lived one.
type LongLivedExchanger interface {
	ExchangeLongLived(ctx context.Context, tok *Token) (*Token, error)
}

// ClientOptions holds what every provider client needs.
type ClientOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

func (o ClientOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// NotionCallbackPath and SocialCallbackPath are where providers send the
// browser back to.
const (
	NotionCallbackPath = "/api/notion/auth/callback"
	socialCallbackPath = "/api/social/auth/%s/callback"
)

// SocialCallbackPath returns the callback path of a social provider.
func SocialCallbackPath(p Provider) string {
	return fmt.Sprintf(socialCallbackPath, p)
}

// NewClients builds a client for every provider with credentials configured.
func NewClients(cfg *config.Config) []Client {
	httpClient := &http.Client{Timeout: cfg.OAuth.HTTPTimeout}
	base := cfg.PublicURL()

	opts := func(p config.ProviderConfig, path string) ClientOptions {
		return ClientOptions{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  base + path,
			HTTPClient:   httpClient,
		}
	}

	var clients []Client
	if cfg.Notion.Enabled() {
		clients = append(clients, NewNotionClient(opts(cfg.Notion, NotionCallbackPath)))
	}
	if cfg.Facebook.Enabled() {
		fb := NewFacebookClient(opts(cfg.Facebook, SocialCallbackPath(ProviderFacebook)))
		fb.PageID = cfg.OAuth.FacebookPageID
		clients = append(clients, fb)
	}
	if cfg.Instagram.Enabled() {
		clients = append(clients, NewInstagramClient(opts(cfg.Instagram, SocialCallbackPath(ProviderInstagram))))
	}
	if cfg.TikTok.Enabled() {
		clients = append(clients, NewTikTokClient(opts(cfg.TikTok, SocialCallbackPath(ProviderTikTok))))
	}
	return clients
}
