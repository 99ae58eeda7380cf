package credentials

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/logging"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateRefreshInFlight
	StateRequiresReauthorization
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRefreshInFlight:
		return "refresh_in_flight"
	case StateRequiresReauthorization:
		return "requires_reauthorization"
	}
	return "unknown"
}

// terminalCodes are OAuth error codes meaning the refresh token will never work again.
var terminalCodes = map[string]bool{
	"invalid_grant":       true,
	"unauthorized_client": true,
	"invalid_client":      true,
}

// Manager owns one refreshable credential.
type Manager struct {
	cfg        Config
	oauth      *oauth2.Config
	store      TokenStore
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
	httpClient *http.Client

	mu          sync.RWMutex
	state       State
	token       *oauth2.Token
	lastRefresh time.Time
	client      *http.Client

	refreshGroup singleflight.Group
	terminalOnce sync.Once
	terminal     chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenStore sets where tokens are loaded from and saved to.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHTTPClient sets the client used for the token exchange and as the base
// transport of the client handed out by Client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// New returns an uninitialized Manager.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		oauth:      cfg.OAuthConfig(),
		store:      NewMemoryStore(nil),
		logger:     slog.Default(),
		now:        time.Now,
		httpClient: http.DefaultClient,
		terminal:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, "credentials")
	return m
}

// Initialize loads the credential and moves the manager to Ready. Calling it
// again after success is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return nil
	}
	if err := m.cfg.validate(); err != nil {
		m.logger.Info("google calendar integration not configured", logging.Err(err))
		return err
	}

	token := &oauth2.Token{
		AccessToken:  m.cfg.AccessToken,
		RefreshToken: m.cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	stored, err := m.store.Load(ctx)
	switch {
	case err == nil && stored.RefreshToken != "":
		token = stored
		m.logger.Debug("loaded persisted token")
	case err != nil && !errors.Is(err, ErrNoToken):
		m.logger.Warn("failed to load persisted token, using configured seed", logging.Err(err))
	}

	if token.RefreshToken == "" {
		return &ConfigurationError{Field: "GOOGLE_REFRESH_TOKEN", Reason: "refresh token is required"}
	}

	m.token = token
	m.lastRefresh = m.now()
	m.state = StateReady
	m.client = &http.Client{
		Transport: &oauth2.Transport{
			Source: currentTokenSource{m: m},
			Base:   m.httpClient.Transport,
		},
		Timeout: m.httpClient.Timeout,
	}
	m.metrics.SetReauthorizationRequired(ctx, false)

	m.logger.Info("credential manager initialized",
		slog.Duration("refresh_interval", m.cfg.interval()),
		slog.Bool("has_access_token", token.AccessToken != ""))
	return nil
}

// currentTokenSource hands out the manager's token as it is right now. It never
// refreshes; that is the manager's job.
type currentTokenSource struct {
	m *Manager
}

func (s currentTokenSource) Token() (*oauth2.Token, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	if s.m.token == nil {
		return nil, ErrNotInitialized
	}
	return copyToken(s.m.token), nil
}

// Client returns the authenticated handle. When the last successful refresh is
// older than the interval it refreshes first; a failed refresh is logged and the
// existing handle is returned anyway. Only the terminal state is an error.
func (m *Manager) Client(ctx context.Context) (*http.Client, error) {
	m.mu.RLock()
	state, client, due := m.state, m.client, m.refreshDueLocked()
	m.mu.RUnlock()

	switch state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateRequiresReauthorization:
		return nil, ErrReauthorizationRequired
	}

	if due {
		if err := m.Refresh(ctx); err != nil {
			if errors.Is(err, ErrReauthorizationRequired) {
				return nil, err
			}
			m.logger.Warn("proactive refresh failed, using current token", logging.Err(err))
		}
	}
	return client, nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent calls
// share a single exchange.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	switch state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateRequiresReauthorization:
		return ErrReauthorizationRequired
	}

	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateRequiresReauthorization {
		m.mu.Unlock()
		return ErrReauthorizationRequired
	}
	m.state = StateRefreshInFlight
	refreshToken := m.token.RefreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		return m.fail(ctx, &RefreshError{Terminal: true, Err: errors.New("no refresh token available")})
	}

	m.logger.Debug("refreshing access token")

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	fresh, err := m.oauth.TokenSource(exchangeCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return m.fail(ctx, classifyRefreshError(err))
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = refreshToken
	}

	m.mu.Lock()
	m.token = fresh
	m.lastRefresh = m.now()
	m.state = StateReady
	m.mu.Unlock()

	if err := m.store.Save(ctx, fresh); err != nil {
		m.logger.Warn("failed to persist refreshed token", logging.Err(err))
	}

	m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshResultSuccess)
	m.logger.Info("access token refreshed",
		logging.Status(logging.StatusSuccess),
		slog.Time("expires", fresh.Expiry),
		slog.Bool("refresh_token_rotated", fresh.RefreshToken != refreshToken))
	return nil
}

// fail records a refresh failure and applies the state transition it implies.
func (m *Manager) fail(ctx context.Context, rerr *RefreshError) error {
	m.mu.Lock()
	if rerr.Terminal {
		m.state = StateRequiresReauthorization
	} else {
		m.state = StateReady
	}
	m.mu.Unlock()

	if !rerr.Terminal {
		m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshResultTransient)
		m.logger.Warn("access token refresh failed", logging.Status(logging.StatusError), logging.Err(rerr))
		return rerr
	}

	m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshResultTerminal)
	m.metrics.SetReauthorizationRequired(ctx, true)
	m.logger.Error("refresh token rejected, manual re-authorization required",
		slog.String("oauth_error", rerr.Code),
		logging.Err(rerr))
	m.terminalOnce.Do(func() { close(m.terminal) })
	return rerr
}

// classifyRefreshError splits token endpoint failures into terminal and transient.
func classifyRefreshError(err error) *RefreshError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			// Some endpoints only put the code in the body.
			for c := range terminalCodes {
				if strings.Contains(string(re.Body), c) {
					code = c
					break
				}
			}
		}
		return &RefreshError{Terminal: terminalCodes[code], Code: code, Err: err}
	}
	return &RefreshError{Err: err}
}

// Run refreshes the credential every interval until ctx is done. It returns
// ErrReauthorizationRequired as soon as the manager becomes terminal, whichever
// path caused it, and nil on cancellation.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state == StateUninitialized {
		return ErrNotInitialized
	}

	interval := m.cfg.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("proactive refresh started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.terminal:
			return ErrReauthorizationRequired
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && errors.Is(err, ErrReauthorizationRequired) {
				return ErrReauthorizationRequired
			}
		}
	}
}

// Reauthorization is closed once the manager reaches the terminal state.
func (m *Manager) Reauthorization() <-chan struct{} {
	return m.terminal
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) refreshDueLocked() bool {
	if m.token == nil || m.token.AccessToken == "" {
		return true
	}
	return m.now().Sub(m.lastRefresh) > m.cfg.interval()
}

// Status is a snapshot for health endpoints and operator tools.
type Status struct {
	State                   string        `json:"state"`
	Initialized             bool          `json:"initialized"`
	LastRefresh             *time.Time    `json:"lastRefresh,omitempty"`
	TimeSinceRefresh        time.Duration `json:"timeSinceRefresh,omitempty"`
	RefreshInterval         time.Duration `json:"refreshInterval"`
	NeedsRefresh            bool          `json:"needsRefresh"`
	HasRefreshToken         bool          `json:"hasRefreshToken"`
	AccessTokenExpiry       *time.Time    `json:"accessTokenExpiry,omitempty"`
	RequiresReauthorization bool          `json:"requiresReauthorization"`
}

// Status returns the current credential status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		State:                   m.state.String(),
		Initialized:             m.state != StateUninitialized,
		RefreshInterval:         m.cfg.interval(),
		RequiresReauthorization: m.state == StateRequiresReauthorization,
	}
	if !st.Initialized {
		st.NeedsRefresh = true
		return st
	}

	last := m.lastRefresh
	st.LastRefresh = &last
	st.TimeSinceRefresh = m.now().Sub(last)
	st.NeedsRefresh = m.refreshDueLocked()
	st.HasRefreshToken = m.token != nil && m.token.RefreshToken != ""
	if m.token != nil && !m.token.Expiry.IsZero() {
		exp := m.token.Expiry
		st.AccessTokenExpiry = &exp
	}
	return st
}
