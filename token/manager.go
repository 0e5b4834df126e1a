package token

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-sso-client/events"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

// defaultRefreshMargin is how long before expiry the proactive refresh
// fires. Five minutes, matching common provider guidance.
const defaultRefreshMargin = 5 * time.Minute

// Manager owns the token record. All mutation goes through Set/Clear/
// Refresh/Revoke; reads re-hit the repo every time because another process
// sharing the storage backend may have replaced the record.
type Manager struct {
	repo          Repo
	refresher     Refresher
	denylist      Denylist
	stream        *events.Stream
	logger        zerolog.Logger
	autoRefresh   bool
	refreshMargin time.Duration
	nowFunc       func() time.Time

	group singleflight.Group

	mu              sync.Mutex
	refreshTimer    *time.Timer
	lastExpiredMark time.Time
	closed          bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithAutoRefresh enables or disables proactive scheduled refresh.
func WithAutoRefresh(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.autoRefresh = enabled
	}
}

// WithRefreshMargin overrides the proactive refresh safety margin.
func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = margin
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithDenylist replaces the default in-memory denylist.
func WithDenylist(d Denylist) ManagerOption {
	return func(m *Manager) {
		m.denylist = d
	}
}

// WithEvents attaches the notification stream.
func WithEvents(s *events.Stream) ManagerOption {
	return func(m *Manager) {
		m.stream = s
	}
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager initializes a Manager with its repository and the Refresher
// that performs provider-facing calls.
func NewManager(repo Repo, refresher Refresher, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewManager] refresher is required")
	}

	m := &Manager{
		repo:          repo,
		refresher:     refresher,
		denylist:      NewInMemoryDenylist(),
		logger:        log.Logger,
		autoRefresh:   true,
		refreshMargin: defaultRefreshMargin,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Set validates and persists a new token record, replacing any previous one,
// and (re)schedules the proactive refresh. ExpiresAt is derived from
// ExpiresIn when the caller did not set it.
func (m *Manager) Set(ctx context.Context, tok Token) error {
	now := m.nowFunc()
	tok.StoredAt = now
	if tok.ExpiresAt.IsZero() && tok.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	if err := m.Validate(tok); err != nil {
		return errors.Wrap(err, "[Manager.Set] invalid token")
	}
	if err := m.repo.Upsert(ctx, &tok); err != nil {
		return errors.Wrap(err, "[Manager.Set] repo.Upsert")
	}

	m.scheduleRefresh(tok)
	m.stream.Publish(events.Event{Type: events.TokenStored, ProviderID: tok.ProviderID})
	return nil
}

// Token returns the stored record, or nil when nothing is stored. Expiry is
// not applied here; AccessToken is the expiry-aware accessor.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	tok, err := m.repo.Get(ctx)
	if errors.Is(err, ssoerrors.ErrNoToken) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Token] repo.Get")
	}
	return tok, nil
}

// AccessToken returns the access token only while it is unexpired and not
// denylisted; otherwise it returns "". Lazy expiry: a record that kept its
// refresh token survives so Refresh can still redeem it, a record without
// one is cleared outright.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.repo.Get(ctx)
	if errors.Is(err, ssoerrors.ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "[Manager.AccessToken] repo.Get")
	}

	if tok.Expired(m.nowFunc()) {
		if tok.RefreshToken == "" {
			if err := m.repo.Delete(ctx); err != nil {
				return "", errors.Wrap(err, "[Manager.AccessToken] repo.Delete")
			}
		}
		m.publishExpiredOnce(*tok)
		return "", nil
	}

	if m.denylist.Contains(ctx, tok.AccessToken) {
		if err := m.repo.Delete(ctx); err != nil {
			return "", errors.Wrap(err, "[Manager.AccessToken] repo.Delete")
		}
		return "", nil
	}

	return tok.AccessToken, nil
}

// Validate performs structural validation: access token and token type must
// be present, and a known expiry must not have passed. Signature
// verification is the core's job (ID tokens, against the issuer's JWKS);
// this is deliberately shape-only.
func (m *Manager) Validate(tok Token) error {
	if tok.AccessToken == "" {
		return errors.Wrap(ssoerrors.ErrInvalidToken, "[Manager.Validate] missing access_token")
	}
	if tok.TokenType == "" {
		return errors.Wrap(ssoerrors.ErrInvalidToken, "[Manager.Validate] missing token_type")
	}

	now := m.nowFunc()
	if tok.Expired(now) {
		return errors.Wrap(ssoerrors.ErrTokenExpired, "[Manager.Validate] expires_at passed")
	}

	// JWT access tokens carry their own exp; use it as an extra hint when no
	// explicit expiry was supplied. Unparseable tokens are treated as opaque.
	if tok.ExpiresAt.IsZero() {
		if exp, ok := jwtExpiry(tok.AccessToken); ok && !now.Before(exp) {
			return errors.Wrap(ssoerrors.ErrTokenExpired, "[Manager.Validate] JWT exp passed")
		}
	}
	return nil
}

// Refresh redeems the stored refresh token for a new record. Concurrent
// callers join a single in-flight request rather than racing the token
// endpoint. On failure the stored record is left untouched.
func (m *Manager) Refresh(ctx context.Context) (*Token, error) {
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

func (m *Manager) refresh(ctx context.Context) (*Token, error) {
	current, err := m.repo.Get(ctx)
	if errors.Is(err, ssoerrors.ErrNoToken) {
		return nil, ssoerrors.Token("no_refresh_token", "no token stored", ssoerrors.ErrNoRefreshToken)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.refresh] repo.Get")
	}
	if current.RefreshToken == "" {
		return nil, ssoerrors.Token("no_refresh_token", "stored token has no refresh_token", ssoerrors.ErrNoRefreshToken)
	}

	refreshed, err := m.refresher.Refresh(ctx, current.ProviderID, current.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.refresh] provider refresh")
	}

	// Providers may omit the refresh token when it does not rotate.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	if refreshed.ProviderID == "" {
		refreshed.ProviderID = current.ProviderID
	}

	// Stale-write guard: if another writer replaced the record while our
	// network call was in flight, their newer state wins.
	if latest, err := m.repo.Get(ctx); err == nil && !latest.StoredAt.Equal(current.StoredAt) {
		return latest, nil
	}

	if err := m.Set(ctx, refreshed); err != nil {
		return nil, errors.Wrap(err, "[Manager.refresh] store refreshed token")
	}
	m.stream.Publish(events.Event{Type: events.TokenRefreshed, ProviderID: refreshed.ProviderID})

	stored, err := m.repo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.refresh] re-read refreshed token")
	}
	return stored, nil
}

// Clear removes the stored record and cancels any pending scheduled refresh.
// Idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	m.cancelScheduledRefresh()
	if err := m.repo.Delete(ctx); err != nil {
		return errors.Wrap(err, "[Manager.Clear] repo.Delete")
	}
	m.stream.Publish(events.Event{Type: events.TokenCleared})
	return nil
}

// Revoke notifies the provider best-effort and then clears local state
// unconditionally; local deauthorization never depends on network success.
// rawToken defaults to the stored access token.
func (m *Manager) Revoke(ctx context.Context, rawToken string) error {
	tok, err := m.Token(ctx)
	if err != nil {
		return err
	}

	providerID := ""
	exp := m.nowFunc().Add(24 * time.Hour)
	if tok != nil {
		providerID = tok.ProviderID
		if !tok.ExpiresAt.IsZero() {
			exp = tok.ExpiresAt
		}
		if rawToken == "" {
			rawToken = tok.AccessToken
		}
	}

	if rawToken != "" {
		if err := m.refresher.Revoke(ctx, providerID, rawToken); err != nil {
			m.logger.Warn().Err(err).Msg("remote token revocation failed; clearing locally anyway")
		}
		if err := m.denylist.Add(ctx, rawToken, exp); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record token in denylist")
		}
		m.stream.Publish(events.Event{Type: events.TokenRevoked, ProviderID: providerID})
	}

	return m.Clear(ctx)
}

// Close cancels the scheduled refresh and prevents new ones. The repo is
// left untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func (m *Manager) scheduleRefresh(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.closed || !m.autoRefresh || tok.RefreshToken == "" || tok.ExpiresAt.IsZero() {
		return
	}

	// A margin larger than the remaining lifetime means the token is about
	// to lapse: refresh immediately instead of never.
	delay := tok.ExpiresAt.Sub(m.nowFunc()) - m.refreshMargin
	if delay < 0 {
		delay = 0
	}

	m.refreshTimer = time.AfterFunc(delay, func() {
		if _, err := m.Refresh(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("scheduled token refresh failed; token left for next manual or lazy check")
		}
	})
}

func (m *Manager) cancelScheduledRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

// publishExpiredOnce emits token.expired once per stored record, keyed by
// its StoredAt stamp, so repeated lazy reads do not flood subscribers.
func (m *Manager) publishExpiredOnce(tok Token) {
	m.mu.Lock()
	already := m.lastExpiredMark.Equal(tok.StoredAt)
	if !already {
		m.lastExpiredMark = tok.StoredAt
	}
	m.mu.Unlock()

	if !already {
		m.stream.Publish(events.Event{Type: events.TokenExpired, ProviderID: tok.ProviderID})
	}
}

func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
