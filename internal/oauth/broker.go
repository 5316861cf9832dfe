package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

// DefaultStateTTL is how long a user has to finish a flow.
const DefaultStateTTL = 10 * time.Minute

// EventConnectionUpdated is published after a workspace or account is linked.
const EventConnectionUpdated = "connection.updated"

// Stores is the persistence the broker needs.
type Stores interface {
	store.StateStore
	store.WorkspaceStore
	store.AccountStore
}

// Publisher pushes live events to a user's open dashboards.
type Publisher interface {
	Publish(userID, eventType string, payload any)
}

// Options tunes a Broker.
type Options struct {
	StateTTL time.Duration
	// RequireLongLivedToken fails the flow when the long-lived exchange
	// fails instead of keeping the short-lived token.
	RequireLongLivedToken bool
	Events                Publisher
	Now                   func() time.Time
}

// Callback holds the query parameters of a provider callback.
type Callback struct {
	Code  string
	State string
	Error string
}

// Connection is what a completed flow linked.
type Connection struct {
	Provider  Provider                `json:"provider"`
	Workspace *models.NotionWorkspace `json:"workspace,omitempty"`
	Account   *models.SocialAccount   `json:"account,omitempty"`
}

// Broker runs the authorization code flow of every configured provider.
type Broker struct {
	clients map[Provider]Client
	stores  Stores
	opts    Options
	log     zerolog.Logger
}

// NewBroker creates a broker for the given provider clients.
func NewBroker(stores Stores, clients []Client, opts Options, log zerolog.Logger) *Broker {
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Broker{
		clients: make(map[Provider]Client, len(clients)),
		stores:  stores,
		opts:    opts,
		log:     log.With().Str("component", "oauth").Logger(),
	}
	for _, c := range clients {
		b.clients[c.Provider()] = c
	}
	return b
}

// Enabled reports whether p has a configured client.
func (b *Broker) Enabled(p Provider) bool {
	_, ok := b.clients[p]
	return ok
}

func (b *Broker) client(p Provider) (Client, error) {
	c, ok := b.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return c, nil
}

// Begin persists a fresh state for userID and p and returns the provider
// authorization URL to redirect the browser to.
func (b *Broker) Begin(ctx context.Context, userID string, p Provider) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}
	c, err := b.client(p)
	if err != nil {
		return "", err
	}

	token, err := GenerateState()
	if err != nil {
		return "", err
	}

	now := b.opts.Now()
	state := &models.AuthorizationState{
		SubjectKey: SubjectKey(userID, p),
		Token:      token,
		ExpiresAt:  now.Add(b.opts.StateTTL),
		CreatedAt:  now,
	}
	if err := b.stores.CreateState(ctx, state); err != nil {
		return "", fmt.Errorf("failed to persist state: %w", err)
	}

	b.log.Debug().Str("provider", string(p)).Str("user_id", userID).Msg("Authorization started")
	return c.AuthCodeURL(token), nil
}

// Complete verifies the callback state, exchanges the code and links the
// resulting workspace or account to userID. The state is consumed whatever
// the outcome once it has been looked up.
func (b *Broker) Complete(ctx context.Context, userID string, p Provider, cb Callback) (*Connection, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	log := b.log.With().Str("provider", string(p)).Str("user_id", userID).Logger()

	if cb.Error != "" {
		log.Warn().Str("provider_error", cb.Error).Msg("Provider reported an error on callback")
		return nil, &ProviderDeniedError{Code: sanitizeProviderCode(cb.Error)}
	}

	c, err := b.client(p)
	if err != nil {
		return nil, err
	}

	if err := b.verifyState(ctx, userID, p, cb.State); err != nil {
		log.Warn().Err(err).Msg("State verification failed")
		return nil, err
	}

	if cb.Code == "" {
		log.Warn().Msg("Callback carried no authorization code")
		return nil, fmt.Errorf("%w: missing code", ErrTokenExchange)
	}

	tok, err := c.Exchange(ctx, cb.Code)
	if err != nil {
		log.Error().Err(err).Msg("Token exchange failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	if ex, ok := c.(LongLivedExchanger); ok {
		long, err := ex.ExchangeLongLived(ctx, tok)
		switch {
		case err == nil:
			long.Profile = tok.Profile
			tok = long
		case b.opts.RequireLongLivedToken:
			log.Error().Err(err).Msg("Long-lived token exchange failed")
			return nil, fmt.Errorf("%w: long-lived exchange: %v", ErrTokenExchange, err)
		default:
			log.Warn().Err(err).Msg("Long-lived token exchange failed, keeping short-lived token")
		}
	}

	ident, err := c.Identify(ctx, tok)
	if err != nil {
		log.Error().Err(err).Msg("Identity retrieval failed")
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	if ident.AccessToken == "" {
		ident.AccessToken = tok.AccessToken
	}

	conn, err := b.link(ctx, userID, p, ident)
	if err != nil {
		log.Error().Err(err).Msg("Failed to store connection")
		return nil, err
	}

	log.Info().Str("account_id", ident.AccountID).Msg("Connection linked")
	if b.opts.Events != nil {
		b.opts.Events.Publish(userID, EventConnectionUpdated, conn)
	}
	return conn, nil
}

// verifyState consumes the state and checks it had not expired.
func (b *Broker) verifyState(ctx context.Context, userID string, p Provider, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing state", ErrInvalidState)
	}

	state, err := b.stores.ConsumeState(ctx, SubjectKey(userID, p), token)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: unknown state", ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("failed to consume state: %w", err)
	}

	if state.Expired(b.opts.Now()) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidState, state.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (b *Broker) link(ctx context.Context, userID string, p Provider, ident *Identity) (*Connection, error) {
	now := b.opts.Now()

	if !p.IsSocial() {
		ws := &models.NotionWorkspace{
			UserID:      userID,
			NotionID:    ident.AccountID,
			Name:        ident.Name,
			BotID:       ident.BotID,
			AccessToken: ident.AccessToken,
			Status:      models.StatusConnected,
			LastSync:    now,
		}
		if ident.Icon != "" {
			icon := ident.Icon
			ws.Icon = &icon
		}
		saved, err := b.stores.UpsertWorkspace(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("failed to store workspace: %w", err)
		}
		return &Connection{Provider: p, Workspace: saved}, nil
	}

	acct := &models.SocialAccount{
		UserID:    userID,
		Platform:  string(p),
		AccountID: ident.AccountID,
		Name:      ident.Name,
		Token:     ident.AccessToken,
		Status:    models.StatusConnected,
		LastSync:  now,
	}
	saved, err := b.stores.UpsertAccount(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}
	return &Connection{Provider: p, Account: saved}, nil
}
