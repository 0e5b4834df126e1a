package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

const defaultRequestTimeout = 5 * time.Second

// Syncer applies peer messages to the local stores and shares local state
// changes with peers. Each Syncer has a unique sender id so it never reacts
// to its own messages, and an origin allow-list so it never reacts to
// messages from deployments it does not trust. An empty allow-list means
// self-origin only.
type Syncer struct {
	bus            Bus
	origin         string
	allowed        map[string]struct{}
	senderID       string
	tokens         *token.Manager
	sessionsMgr    *sessions.Manager
	stream         *events.Stream
	logger         zerolog.Logger
	requestTimeout time.Duration

	mu        sync.Mutex
	pending   map[string]chan Message
	cancelSub func()
}

// SyncerOption defines a function type to modify the Syncer instance.
type SyncerOption func(*Syncer)

// WithAllowedOrigins adds origins whose messages are trusted in addition to
// the Syncer's own origin.
func WithAllowedOrigins(origins []string) SyncerOption {
	return func(s *Syncer) {
		for _, o := range origins {
			s.allowed[o] = struct{}{}
		}
	}
}

// WithTokenManager wires the token store peer messages are applied to.
func WithTokenManager(m *token.Manager) SyncerOption {
	return func(s *Syncer) {
		s.tokens = m
	}
}

// WithSessionManager wires the session store peer messages are applied to.
func WithSessionManager(m *sessions.Manager) SyncerOption {
	return func(s *Syncer) {
		s.sessionsMgr = m
	}
}

// WithEvents attaches the notification stream.
func WithEvents(stream *events.Stream) SyncerOption {
	return func(s *Syncer) {
		s.stream = stream
	}
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithRequestTimeout overrides how long RequestSessionStatus waits for a
// peer response.
func WithRequestTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.requestTimeout = d
	}
}

// NewSyncer creates a Syncer. Start must be called before it reacts to peer
// messages.
func NewSyncer(bus Bus, origin string, options ...SyncerOption) (*Syncer, error) {
	if bus == nil {
		return nil, errors.New("[NewSyncer] bus is required")
	}
	if origin == "" {
		return nil, errors.New("[NewSyncer] origin is required")
	}

	s := &Syncer{
		bus:            bus,
		origin:         origin,
		allowed:        make(map[string]struct{}),
		senderID:       uuid.NewString(),
		logger:         log.Logger,
		requestTimeout: defaultRequestTimeout,
		pending:        make(map[string]chan Message),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Start subscribes to the bus. Idempotent.
func (s *Syncer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelSub != nil {
		return nil
	}
	cancel, err := s.bus.Subscribe(s.handle)
	if err != nil {
		return errors.Wrap(err, "[Syncer.Start] bus.Subscribe")
	}
	s.cancelSub = cancel
	return nil
}

// Close detaches from the bus. The bus itself is owned by the caller.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
}

// BroadcastLogout tells peers to clear their authentication state.
func (s *Syncer) BroadcastLogout(ctx context.Context) error {
	return s.publish(ctx, Message{Type: Logout})
}

// BroadcastTokenRefresh shares a refreshed token with peers.
func (s *Syncer) BroadcastTokenRefresh(ctx context.Context, tok token.Token) error {
	return s.publish(ctx, Message{Type: TokenRefresh, Token: &tok, ExpiresAt: tok.ExpiresAt})
}

// RequestSessionStatus asks peers whether an authenticated session exists.
// It resolves false when no peer answers within the configured timeout, so
// a lone process never hangs waiting for peers it does not have. When the
// answering peer shares its token, the token is adopted under the same
// staleness rule as a broadcast refresh, so a fresh process starts
// authenticated instead of redoing the flow.
func (s *Syncer) RequestSessionStatus(ctx context.Context) (bool, error) {
	requestID := uuid.NewString()
	replies := make(chan Message, 1)

	s.mu.Lock()
	s.pending[requestID] = replies
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	if err := s.publish(ctx, Message{Type: SessionRequest, RequestID: requestID}); err != nil {
		return false, err
	}

	timer := time.NewTimer(s.requestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, errors.Wrap(ctx.Err(), "[Syncer.RequestSessionStatus]")
	case <-timer.C:
		return false, nil
	case msg := <-replies:
		if msg.Authenticated {
			s.applyTokenRefresh(ctx, msg)
		}
		return msg.Authenticated, nil
	}
}

func (s *Syncer) publish(ctx context.Context, msg Message) error {
	msg.Origin = s.origin
	msg.SenderID = s.senderID
	if err := s.bus.Publish(ctx, msg); err != nil {
		return errors.Wrap(err, "[Syncer.publish] bus.Publish")
	}
	return nil
}

func (s *Syncer) handle(msg Message) {
	if msg.SenderID == s.senderID {
		return
	}
	if !s.trusted(msg.Origin) {
		s.logger.Warn().Str("origin", msg.Origin).Str("type", string(msg.Type)).Msg("dropping broadcast message from unrecognized origin")
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case SessionRequest:
		s.answerSessionRequest(ctx, msg)
	case SessionResponse:
		s.deliverResponse(msg)
	case Logout:
		s.applyLogout(ctx)
	case TokenRefresh:
		s.applyTokenRefresh(ctx, msg)
	default:
		s.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring broadcast message of unknown type")
	}
}

func (s *Syncer) trusted(origin string) bool {
	if origin == s.origin {
		return true
	}
	_, ok := s.allowed[origin]
	return ok
}

func (s *Syncer) answerSessionRequest(ctx context.Context, msg Message) {
	response := Message{Type: SessionResponse, RequestID: msg.RequestID}

	if s.sessionsMgr != nil {
		if sess, err := s.sessionsMgr.Current(ctx); err == nil {
			response.Authenticated = true
			response.SessionID = sess.ID
			response.ExpiresAt = sess.ExpiresAt
		}
	}
	if response.Authenticated && s.tokens != nil {
		if tok, err := s.tokens.Token(ctx); err == nil && tok != nil {
			response.Token = tok
		}
	}

	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to answer session status request")
	}
}

func (s *Syncer) deliverResponse(msg Message) {
	s.mu.Lock()
	replies, ok := s.pending[msg.RequestID]
	s.mu.Unlock()

	if !ok {
		return
	}
	select {
	case replies <- msg:
	default: // first answer wins
	}
}

func (s *Syncer) applyLogout(ctx context.Context) {
	if s.tokens != nil {
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear tokens after peer logout")
		}
	}
	if s.sessionsMgr != nil {
		if err := s.sessionsMgr.Destroy(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to destroy session after peer logout")
		}
	}
	s.stream.Publish(events.Event{Type: events.LogoutBroadcast})
}

// applyTokenRefresh stores the peer's token unless ours is at least as new.
// Timestamps come from the peers' clocks, so across machines this is a best
// effort ordering, not a guarantee.
func (s *Syncer) applyTokenRefresh(ctx context.Context, msg Message) {
	if s.tokens == nil || msg.Token == nil {
		return
	}

	if current, err := s.tokens.Token(ctx); err == nil && current != nil {
		if !msg.Token.StoredAt.After(current.StoredAt) {
			return
		}
	}

	if err := s.tokens.Set(ctx, *msg.Token); err != nil {
		s.logger.Warn().Err(err).Msg("failed to apply peer token refresh")
	}
}
