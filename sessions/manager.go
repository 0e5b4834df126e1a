package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-sso-client/events"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
)

const (
	defaultTimeout          = time.Hour
	defaultActivityInterval = 60 * time.Second
	defaultLivenessInterval = 5 * time.Minute
)

// RemoteNotifier is the optional server-facing half of the session
// lifecycle. Alive asks whether the server still considers the session
// live; Ended tells it the session was torn down locally. Both are
// best-effort: network failure never invalidates a local session.
type RemoteNotifier interface {
	Alive(ctx context.Context, sessionID string) (bool, error)
	Ended(ctx context.Context, sessionID string) error
}

// Manager owns the session record. Create replaces any previous session and
// starts the background activity and liveness tickers; Destroy and Close
// stop them.
type Manager struct {
	repo             Repo
	notifier         RemoteNotifier
	stream           *events.Stream
	logger           zerolog.Logger
	timeout          time.Duration
	activityInterval time.Duration
	livenessInterval time.Duration
	nowFunc          func() time.Time

	mu             sync.Mutex
	stopTickers    chan struct{}
	lastExpiredID  string
	lastInactiveID string
	closed         bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithTimeout sets the session lifetime used by Create and Extend.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithNotifier attaches the server-facing liveness/teardown hook.
func WithNotifier(n RemoteNotifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
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

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithTickerIntervals overrides the activity and liveness ticker periods
// (primarily for testing).
func WithTickerIntervals(activity, liveness time.Duration) ManagerOption {
	return func(m *Manager) {
		m.activityInterval = activity
		m.livenessInterval = liveness
	}
}

// NewManager initializes a Manager with its repository.
func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}

	m := &Manager{
		repo:             repo,
		logger:           log.Logger,
		timeout:          defaultTimeout,
		activityInterval: defaultActivityInterval,
		livenessInterval: defaultLivenessInterval,
		nowFunc:          time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Create establishes a new session, replacing any previous one. The caller
// supplies identity fields (UserID, ClientID, ProviderID, RememberMe,
// IPAddress, UserAgent); the Manager stamps id, times and the active flag.
func (m *Manager) Create(ctx context.Context, partial Session) (*Session, error) {
	now := m.nowFunc()
	partial.ID = uuid.NewString()
	partial.AuthenticatedAt = now
	partial.LastActivity = now
	partial.ExpiresAt = now.Add(m.timeout)
	partial.Active = true

	if err := m.repo.Upsert(ctx, &partial); err != nil {
		return nil, errors.Wrap(err, "[Manager.Create] repo.Upsert")
	}

	m.startTickers()
	m.stream.Publish(events.Event{Type: events.SessionCreated, SessionID: partial.ID, ProviderID: partial.ProviderID})
	return &partial, nil
}

// Current returns the live session. Expired and inactive sessions are
// terminal: the record is removed, the matching event fires once, and a
// sentinel error identifies which end the session met.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	s, err := m.repo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Current] repo.Get")
	}

	if s.Expired(m.nowFunc()) {
		if err := m.repo.Delete(ctx); err != nil {
			return nil, errors.Wrap(err, "[Manager.Current] repo.Delete")
		}
		m.stopBackgroundTickers()
		m.publishTerminalOnce(events.SessionExpired, s)
		return nil, errors.Wrap(ssoerrors.ErrSessionExpired, "[Manager.Current]")
	}

	if !s.Active {
		if err := m.repo.Delete(ctx); err != nil {
			return nil, errors.Wrap(err, "[Manager.Current] repo.Delete")
		}
		m.stopBackgroundTickers()
		m.publishTerminalOnce(events.SessionInactive, s)
		return nil, errors.Wrap(ssoerrors.ErrSessionInactive, "[Manager.Current]")
	}

	return s, nil
}

// UpdateActivity bumps last_activity without touching the expiry. No-op
// when no session is stored or the session has already expired; expired
// records belong to Current, which finalizes them.
func (m *Manager) UpdateActivity(ctx context.Context) error {
	s, err := m.repo.Get(ctx)
	if errors.Is(err, ssoerrors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Manager.UpdateActivity] repo.Get")
	}

	if s.Expired(m.nowFunc()) {
		return nil
	}

	s.LastActivity = m.nowFunc()
	if err := m.repo.Upsert(ctx, s); err != nil {
		return errors.Wrap(err, "[Manager.UpdateActivity] repo.Upsert")
	}
	return nil
}

// Extend pushes the expiry out by the configured timeout from now. It is
// the sliding-expiry operation; plain activity updates never move the
// expiry.
func (m *Manager) Extend(ctx context.Context) (*Session, error) {
	s, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := m.nowFunc()
	s.ExpiresAt = now.Add(m.timeout)
	s.LastActivity = now
	if err := m.repo.Upsert(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Manager.Extend] repo.Upsert")
	}

	m.stream.Publish(events.Event{Type: events.SessionExtended, SessionID: s.ID, ProviderID: s.ProviderID})
	return s, nil
}

// Validate reports whether a live, active session exists. Success counts as
// activity.
func (m *Manager) Validate(ctx context.Context) (bool, error) {
	_, err := m.Current(ctx)
	if errors.Is(err, ssoerrors.ErrSessionNotFound) ||
		errors.Is(err, ssoerrors.ErrSessionExpired) ||
		errors.Is(err, ssoerrors.ErrSessionInactive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := m.UpdateActivity(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy tears the session down: best-effort server notification, then an
// unconditional local clear. Idempotent.
func (m *Manager) Destroy(ctx context.Context) error {
	m.stopBackgroundTickers()

	s, err := m.repo.Get(ctx)
	if errors.Is(err, ssoerrors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Manager.Destroy] repo.Get")
	}

	if m.notifier != nil {
		if err := m.notifier.Ended(ctx, s.ID); err != nil {
			m.logger.Warn().Err(err).Str("sessionID", s.ID).Msg("remote session teardown failed; clearing locally anyway")
		}
	}

	if err := m.repo.Delete(ctx); err != nil {
		return errors.Wrap(err, "[Manager.Destroy] repo.Delete")
	}

	m.stream.Publish(events.Event{Type: events.SessionDestroyed, SessionID: s.ID, ProviderID: s.ProviderID})
	return nil
}

// Close stops the background tickers and prevents new ones. The repo is
// left untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.stopTickers != nil {
		close(m.stopTickers)
		m.stopTickers = nil
	}
}

func (m *Manager) startTickers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.stopTickers != nil {
		close(m.stopTickers)
	}
	stop := make(chan struct{})
	m.stopTickers = stop

	go m.runTickers(stop)
}

func (m *Manager) stopBackgroundTickers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopTickers != nil {
		close(m.stopTickers)
		m.stopTickers = nil
	}
}

// runTickers drives the two background checks: the activity ticker records
// that the process is alive, the liveness ticker re-checks expiry and asks
// the server (when a notifier is wired) whether the session still exists
// remotely.
func (m *Manager) runTickers(stop <-chan struct{}) {
	activity := time.NewTicker(m.activityInterval)
	liveness := time.NewTicker(m.livenessInterval)
	defer activity.Stop()
	defer liveness.Stop()

	for {
		select {
		case <-stop:
			return
		case <-activity.C:
			if err := m.UpdateActivity(context.Background()); err != nil {
				m.logger.Warn().Err(err).Msg("session activity update failed")
			}
		case <-liveness.C:
			m.livenessCheck(context.Background())
		}
	}
}

func (m *Manager) livenessCheck(ctx context.Context) {
	s, err := m.Current(ctx)
	if err != nil {
		// Expiry and inactivity were already handled (and published) by
		// Current; anything else is storage trouble worth a warning.
		if !errors.Is(err, ssoerrors.ErrSessionNotFound) &&
			!errors.Is(err, ssoerrors.ErrSessionExpired) &&
			!errors.Is(err, ssoerrors.ErrSessionInactive) {
			m.logger.Warn().Err(err).Msg("session liveness check failed")
		}
		return
	}

	if m.notifier == nil {
		return
	}

	alive, err := m.notifier.Alive(ctx, s.ID)
	if err != nil {
		// Unreachable server keeps the local session; degraded, not dead.
		m.logger.Debug().Err(err).Msg("session liveness endpoint unreachable; keeping local session")
		return
	}
	if alive {
		return
	}

	s.Active = false
	if err := m.repo.Upsert(ctx, s); err != nil {
		m.logger.Warn().Err(err).Msg("failed to mark session inactive")
		return
	}
	// Next Current observes Active=false and finalizes the teardown; do it
	// now so subscribers hear about it promptly.
	if _, err := m.Current(ctx); err != nil && !errors.Is(err, ssoerrors.ErrSessionInactive) {
		m.logger.Warn().Err(err).Msg("failed to finalize inactive session")
	}
}

// publishTerminalOnce emits a terminal session event once per session id, so
// repeated reads after expiry do not flood subscribers.
func (m *Manager) publishTerminalOnce(t events.Type, s *Session) {
	m.mu.Lock()
	var already bool
	switch t {
	case events.SessionExpired:
		already = m.lastExpiredID == s.ID
		m.lastExpiredID = s.ID
	case events.SessionInactive:
		already = m.lastInactiveID == s.ID
		m.lastInactiveID = s.ID
	}
	m.mu.Unlock()

	if !already {
		m.stream.Publish(events.Event{Type: t, SessionID: s.ID, ProviderID: s.ProviderID})
	}
}
