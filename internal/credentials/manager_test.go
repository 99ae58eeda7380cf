package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer is a fake Google token endpoint.
type tokenServer struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	handler func(w http.ResponseWriter, r *http.Request, n int32)
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.handler = respondToken("fresh-access", "")
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		ts.mu.Lock()
		h := ts.handler
		ts.mu.Unlock()
		h(w, r, n)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) set(h func(w http.ResponseWriter, r *http.Request, n int32)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.handler = h
}

func respondToken(access, refresh string) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, r *http.Request, _ int32) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		body := `{"access_token":"` + access + `","token_type":"Bearer","expires_in":3600`
		if refresh != "" {
			body += `,"refresh_token":"` + refresh + `"`
		}
		_, _ = w.Write([]byte(body + "}"))
	}
}

func respondError(status int, code string) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
	}
}

func testConfig(tokenURL string) Config {
	return Config{
		Enabled:         true,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RefreshToken:    "seed-refresh",
		AccessToken:     "seed-access",
		RefreshInterval: 50 * time.Minute,
		TokenURL:        tokenURL,
	}
}

func newTestManager(t *testing.T, ts *tokenServer, opts ...Option) *Manager {
	t.Helper()
	all := append([]Option{WithHTTPClient(ts.Client())}, opts...)
	m := New(testConfig(ts.URL), all...)
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestInitialize_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		disabled  bool
	}{
		{name: "disabled", mutate: func(c *Config) { c.Enabled = false }, wantField: "GOOGLE_CALENDAR_ENABLED", disabled: true},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantField: "GOOGLE_CLIENT_ID"},
		{name: "missing client secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantField: "GOOGLE_CLIENT_SECRET"},
		{name: "missing refresh token", mutate: func(c *Config) { c.RefreshToken = "" }, wantField: "GOOGLE_REFRESH_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://127.0.0.1:0")
			tt.mutate(&cfg)
			m := New(cfg)

			err := m.Initialize(context.Background())
			require.Error(t, err)

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, tt.disabled, errors.Is(err, ErrDisabled))
			assert.Equal(t, StateUninitialized, m.State())
		})
	}
}

func TestInitialize_PrefersStoredToken(t *testing.T) {
	store := NewMemoryStore(&oauth2.Token{AccessToken: "stored-access", RefreshToken: "stored-refresh"})
	cfg := testConfig("http://127.0.0.1:0")
	cfg.RefreshToken = ""
	m := New(cfg, WithTokenStore(store))

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, StateReady, m.State())

	tok, err := currentTokenSource{m: m}.Token()
	require.NoError(t, err)
	assert.Equal(t, "stored-refresh", tok.RefreshToken)
	assert.Equal(t, "stored-access", tok.AccessToken)
}

func TestOperations_BeforeInitialize(t *testing.T) {
	m := New(testConfig("http://127.0.0.1:0"))
	_, err := m.Client(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.Refresh(context.Background()), ErrNotInitialized)
	assert.ErrorIs(t, m.Run(context.Background()), ErrNotInitialized)
	assert.False(t, m.Status().Initialized)
}

func TestRefresh_Success(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(func(w http.ResponseWriter, r *http.Request, n int32) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "seed-refresh", r.PostForm.Get("refresh_token"))
		respondToken("fresh-access", "")(w, r, n)
	})
	store := NewMemoryStore(nil)
	m := newTestManager(t, ts, WithTokenStore(store))

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, 1, store.Saves())

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "seed-refresh", saved.RefreshToken, "refresh token survives when not rotated")
}

func TestRefresh_RotatedRefreshTokenIsKept(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondToken("a2", "rotated-refresh"))
	store := NewMemoryStore(nil)
	m := newTestManager(t, ts, WithTokenStore(store))

	require.NoError(t, m.Refresh(context.Background()))
	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh", saved.RefreshToken)
}

func TestRefresh_Terminal(t *testing.T) {
	for _, code := range []string{"invalid_grant", "unauthorized_client", "invalid_client"} {
		t.Run(code, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.set(respondError(http.StatusBadRequest, code))
			m := newTestManager(t, ts)

			err := m.Refresh(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrReauthorizationRequired)

			var rerr *RefreshError
			require.ErrorAs(t, err, &rerr)
			assert.True(t, rerr.Terminal)
			assert.Equal(t, code, rerr.Code)

			assert.Equal(t, StateRequiresReauthorization, m.State())
			select {
			case <-m.Reauthorization():
			default:
				t.Fatal("reauthorization channel not closed")
			}

			calls := ts.calls.Load()
			assert.ErrorIs(t, m.Refresh(context.Background()), ErrReauthorizationRequired)
			assert.Equal(t, calls, ts.calls.Load(), "terminal state does no network I/O")

			_, err = m.Client(context.Background())
			assert.ErrorIs(t, err, ErrReauthorizationRequired)
			assert.True(t, m.Status().RequiresReauthorization)
		})
	}
}

func TestRefresh_Transient(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondError(http.StatusServiceUnavailable, "backend_error"))
	m := newTestManager(t, ts)

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReauthorizationRequired)

	var rerr *RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Terminal)
	assert.Equal(t, StateReady, m.State())

	ts.set(respondToken("recovered", ""))
	require.NoError(t, m.Refresh(context.Background()))
}

func TestRefresh_ConcurrentCallsShareOneExchange(t *testing.T) {
	ts := newTokenServer(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ts.set(func(w http.ResponseWriter, r *http.Request, n int32) {
		once.Do(func() { close(entered) })
		<-release
		respondToken("shared", "")(w, r, n)
	})
	m := newTestManager(t, ts)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- m.Refresh(context.Background())
	}()
	<-entered
	assert.Equal(t, StateRefreshInFlight, m.State())

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Refresh(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestClient_UsesCurrentToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondToken("second-access", ""))

	var mu sync.Mutex
	var seen []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	m := newTestManager(t, ts)
	ctx := context.Background()

	client, err := m.Client(ctx)
	require.NoError(t, err)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, m.Refresh(ctx))

	// Same handle, new token.
	resp, err = client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer seed-access", "Bearer second-access"}, seen)
}

func TestClient_RefreshesWhenStale(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := newTestManager(t, ts, WithClock(clock))

	_, err := m.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), ts.calls.Load(), "fresh token is not refreshed")

	now = now.Add(51 * time.Minute)
	assert.True(t, m.Status().NeedsRefresh)
	_, err = m.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.False(t, m.Status().NeedsRefresh)
}

func TestClient_StaleRefreshFailureReturnsHandle(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondError(http.StatusInternalServerError, "internal_failure"))
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m := newTestManager(t, ts, WithClock(func() time.Time { return now }))

	now = now.Add(2 * time.Hour)
	client, err := m.Client(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, StateReady, m.State())
}

func TestRun_ReturnsOnTerminalFromOtherPath(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondError(http.StatusBadRequest, "invalid_grant"))
	m := newTestManager(t, ts)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	// The gateway path hits the terminal failure, not the timer.
	_ = m.Refresh(context.Background())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrReauthorizationRequired)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_TickRefreshesAndStopsOnCancel(t *testing.T) {
	ts := newTokenServer(t)
	cfg := testConfig(ts.URL)
	cfg.RefreshInterval = 10 * time.Millisecond
	m := New(cfg, WithHTTPClient(ts.Client()))
	require.NoError(t, m.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return ts.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_TransientFailureKeepsRunning(t *testing.T) {
	ts := newTokenServer(t)
	ts.set(respondError(http.StatusServiceUnavailable, "unavailable"))
	cfg := testConfig(ts.URL)
	cfg.RefreshInterval = 10 * time.Millisecond
	m := New(cfg, WithHTTPClient(ts.Client()))
	require.NoError(t, m.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Run(ctx))
	assert.GreaterOrEqual(t, ts.calls.Load(), int32(2))
	assert.Equal(t, StateReady, m.State())
}

func TestStatus(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m := newTestManager(t, ts, WithClock(func() time.Time { return now }))

	now = now.Add(10 * time.Minute)
	st := m.Status()
	assert.Equal(t, "ready", st.State)
	assert.True(t, st.Initialized)
	assert.True(t, st.HasRefreshToken)
	assert.False(t, st.NeedsRefresh)
	assert.Equal(t, 10*time.Minute, st.TimeSinceRefresh)
	assert.Equal(t, 50*time.Minute, st.RefreshInterval)
	assert.Nil(t, st.AccessTokenExpiry)

	require.NoError(t, m.Refresh(context.Background()))
	assert.NotNil(t, m.Status().AccessTokenExpiry)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "refresh_in_flight", StateRefreshInFlight.String())
	assert.Equal(t, "requires_reauthorization", StateRequiresReauthorization.String())
	assert.Equal(t, "unknown", State(42).String())
}
