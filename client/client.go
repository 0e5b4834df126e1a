// Package client is the SSO relying-party core. It ties the provider
// registry, flow state, token and session managers and the cross-process
// syncer into one façade: build an authorization URL, complete the
// callback, and from then on hand out valid access tokens.
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/broadcast"
	"github.com/jrsteele09/go-sso-client/events"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/providers"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

// Stores groups the persistence backends the client writes to. Memory and
// Redis implementations ship in their packages; any Repo implementation
// works.
type Stores struct {
	Flows    authstate.Repo
	Tokens   token.Repo
	Sessions sessions.Repo
}

// Client is the SSO client core. It owns its managers; consumers interact
// with the core and subscribe to Events for lifecycle notifications.
type Client struct {
	registry   *providers.Registry
	flows      authstate.Repo
	tokens     *token.Manager
	sessionMgr *sessions.Manager
	syncer     *broadcast.Syncer
	notifier   sessions.RemoteNotifier
	stream     *events.Stream
	httpClient *http.Client
	logger     zerolog.Logger
	nowFunc    func() time.Time

	mu            sync.RWMutex
	oidcProviders map[string]*oidc.Provider

	cancelEventSub func()
}

type clientOptions struct {
	httpClient     *http.Client
	logger         zerolog.Logger
	nowFunc        func() time.Time
	sessionTimeout time.Duration
	autoRefresh    bool
	refreshMargin  time.Duration
	denylist       token.Denylist
	notifier       sessions.RemoteNotifier
	bus            broadcast.Bus
	origin         string
	allowedOrigins []string
}

// Option defines a function type to modify the Client instance.
type Option func(*clientOptions)

// WithHTTPClient overrides the HTTP client used for all provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.nowFunc = now
	}
}

// WithSessionTimeout sets the session lifetime.
func WithSessionTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.sessionTimeout = timeout
	}
}

// WithAutoRefresh enables or disables proactive token refresh.
func WithAutoRefresh(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoRefresh = enabled
	}
}

// WithRefreshMargin sets how long before expiry the proactive refresh fires.
func WithRefreshMargin(margin time.Duration) Option {
	return func(o *clientOptions) {
		o.refreshMargin = margin
	}
}

// WithDenylist replaces the default in-memory revoked-token denylist.
func WithDenylist(d token.Denylist) Option {
	return func(o *clientOptions) {
		o.denylist = d
	}
}

// WithSessionNotifier wires the server-facing session liveness/teardown hook.
func WithSessionNotifier(n sessions.RemoteNotifier) Option {
	return func(o *clientOptions) {
		o.notifier = n
	}
}

// WithBroadcast wires cross-process sync over the given bus. origin
// identifies this deployment; allowedOrigins lists additional origins whose
// messages are trusted.
func WithBroadcast(bus broadcast.Bus, origin string, allowedOrigins ...string) Option {
	return func(o *clientOptions) {
		o.bus = bus
		o.origin = origin
		o.allowedOrigins = allowedOrigins
	}
}

// New builds the client core. Configuration problems fail here, before any
// flow starts; a returned Client is fully initialized.
func New(registry *providers.Registry, stores Stores, options ...Option) (*Client, error) {
	if registry == nil || len(registry.List()) == 0 {
		return nil, ssoerrors.Configuration("no_providers", "at least one provider must be registered", ssoerrors.ErrInvalidProvider)
	}
	if stores.Flows == nil {
		return nil, ssoerrors.Configuration("missing_store", "flow store is required", nil)
	}
	if stores.Tokens == nil {
		return nil, ssoerrors.Configuration("missing_store", "token store is required", nil)
	}
	if stores.Sessions == nil {
		return nil, ssoerrors.Configuration("missing_store", "session store is required", nil)
	}

	opts := clientOptions{
		httpClient:     http.DefaultClient,
		logger:         log.Logger,
		nowFunc:        time.Now,
		sessionTimeout: time.Hour,
		autoRefresh:    true,
		refreshMargin:  5 * time.Minute,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.bus != nil && opts.origin == "" {
		return nil, ssoerrors.Configuration("missing_origin", "broadcast requires an origin", nil)
	}

	c := &Client{
		registry:      registry,
		flows:         stores.Flows,
		notifier:      opts.notifier,
		stream:        events.NewStream(),
		httpClient:    opts.httpClient,
		logger:        opts.logger,
		nowFunc:       opts.nowFunc,
		oidcProviders: make(map[string]*oidc.Provider),
	}

	tokenOptions := []token.ManagerOption{
		token.WithAutoRefresh(opts.autoRefresh),
		token.WithRefreshMargin(opts.refreshMargin),
		token.WithNowFunc(opts.nowFunc),
		token.WithEvents(c.stream),
		token.WithLogger(opts.logger),
	}
	if opts.denylist != nil {
		tokenOptions = append(tokenOptions, token.WithDenylist(opts.denylist))
	}
	tokens, err := token.NewManager(stores.Tokens, c, tokenOptions...)
	if err != nil {
		return nil, ssoerrors.Configuration("token_manager", "failed to initialize token manager", err)
	}
	c.tokens = tokens

	sessionOptions := []sessions.ManagerOption{
		sessions.WithTimeout(opts.sessionTimeout),
		sessions.WithNowFunc(opts.nowFunc),
		sessions.WithEvents(c.stream),
		sessions.WithLogger(opts.logger),
	}
	if opts.notifier != nil {
		sessionOptions = append(sessionOptions, sessions.WithNotifier(opts.notifier))
	}
	sessionMgr, err := sessions.NewManager(stores.Sessions, sessionOptions...)
	if err != nil {
		tokens.Close()
		return nil, ssoerrors.Configuration("session_manager", "failed to initialize session manager", err)
	}
	c.sessionMgr = sessionMgr

	if opts.bus != nil {
		syncer, err := broadcast.NewSyncer(opts.bus, opts.origin,
			broadcast.WithAllowedOrigins(opts.allowedOrigins),
			broadcast.WithTokenManager(tokens),
			broadcast.WithSessionManager(sessionMgr),
			broadcast.WithEvents(c.stream),
			broadcast.WithLogger(opts.logger),
		)
		if err != nil {
			tokens.Close()
			sessionMgr.Close()
			return nil, ssoerrors.Configuration("broadcast", "failed to initialize syncer", err)
		}
		if err := syncer.Start(); err != nil {
			tokens.Close()
			sessionMgr.Close()
			return nil, ssoerrors.Configuration("broadcast", "failed to start syncer", err)
		}
		c.syncer = syncer

		// Locally refreshed tokens are shared with peers. Peer-applied tokens
		// publish token.stored, not token.refreshed, so this cannot loop.
		c.cancelEventSub = c.stream.Subscribe(func(e events.Event) {
			if e.Type != events.TokenRefreshed {
				return
			}
			ctx := context.Background()
			tok, err := tokens.Token(ctx)
			if err != nil || tok == nil {
				return
			}
			if err := syncer.BroadcastTokenRefresh(ctx, *tok); err != nil {
				opts.logger.Warn().Err(err).Msg("failed to broadcast token refresh")
			}
		})
	}

	return c, nil
}

// Events returns the lifecycle notification stream.
func (c *Client) Events() *events.Stream {
	return c.stream
}

// Tokens returns the token manager for direct lifecycle access.
func (c *Client) Tokens() *token.Manager {
	return c.tokens
}

// Sessions returns the session manager for direct lifecycle access.
func (c *Client) Sessions() *sessions.Manager {
	return c.sessionMgr
}

// Close tears down timers, tickers and the bus subscription. Stored state
// is left untouched.
func (c *Client) Close() {
	if c.cancelEventSub != nil {
		c.cancelEventSub()
	}
	if c.syncer != nil {
		c.syncer.Close()
	}
	c.tokens.Close()
	c.sessionMgr.Close()
}

// oauthContext makes golang.org/x/oauth2 and go-oidc use the client's HTTP
// client for their outbound calls.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)
}

// oidcProvider returns the cached OIDC provider for cfg, running discovery
// on first use.
func (c *Client) oidcProvider(ctx context.Context, cfg providers.Config) (*oidc.Provider, error) {
	c.mu.RLock()
	provider, exists := c.oidcProviders[cfg.ID]
	c.mu.RUnlock()
	if exists {
		return provider, nil
	}

	provider, err := oidc.NewProvider(c.oauthContext(ctx), cfg.Issuer)
	if err != nil {
		return nil, ssoerrors.Network("discovery_failed", "OIDC discovery for provider "+cfg.ID+" failed", err)
	}

	c.mu.Lock()
	c.oidcProviders[cfg.ID] = provider
	c.mu.Unlock()
	return provider, nil
}
