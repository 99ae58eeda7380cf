package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "google-credentials.json")
	s := NewFileStore(path)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	expiry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &oauth2.Token{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tok.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToken)
}

func TestFileStore_DefaultPath(t *testing.T) {
	s := NewFileStore("")
	assert.Equal(t, DefaultTokenPath(), s.Path())
	assert.True(t, strings.HasSuffix(s.Path(), filepath.Join("milestonesync", "google-credentials.json")))
}

func TestMemoryStore_Copies(t *testing.T) {
	orig := &oauth2.Token{AccessToken: "a"}
	s := NewMemoryStore(orig)
	orig.AccessToken = "changed"

	tok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	store := NewMemoryStore(nil)
	tok, err := ExchangeCode(context.Background(), testConfig(srv.URL), " the-code\n", store, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", saved.AccessToken)
}

func TestExchangeCode_Validation(t *testing.T) {
	_, err := ExchangeCode(context.Background(), testConfig("http://127.0.0.1:0"), "  ", NewMemoryStore(nil), nil)
	assert.Error(t, err)

	cfg := testConfig("http://127.0.0.1:0")
	cfg.ClientSecret = ""
	_, err = ExchangeCode(context.Background(), cfg, "code", NewMemoryStore(nil), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestAuthCodeURL(t *testing.T) {
	u := AuthCodeURL(testConfig(""))
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "prompt=consent")
	assert.Contains(t, u, "calendar")
}

func TestReauthorizationNotice(t *testing.T) {
	n := ReauthorizationNotice("/data/tok.json")
	assert.Contains(t, n, "milestonesync auth")
	assert.Contains(t, n, "/data/tok.json")
	assert.Contains(t, ReauthorizationNotice(""), "GOOGLE_REFRESH_TOKEN")
}
