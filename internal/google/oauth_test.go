package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// memStore is an in-memory TokenStore.
type memStore struct {
	tok   *oauth2.Token
	saves int
}

func (m *memStore) Load() (*oauth2.Token, error) { return m.tok, nil }

func (m *memStore) Save(tok *oauth2.Token) error {
	m.tok = tok
	m.saves++
	return nil
}

// fakeFlow returns a fixed token without user interaction.
type fakeFlow struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeFlow) Run(_ context.Context, _ *oauth2.Config) (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

func newTokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeRegistration(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	body := fmt.Sprintf(`{"installed":{"client_id":"client-1","client_secret":"secret-1",`+
		`"auth_uri":"https://accounts.example.com/auth","token_uri":%q,"redirect_uris":["http://localhost"]}}`, tokenURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestAuthenticator_NoTokenNoRegistration(t *testing.T) {
	var results []string
	a := &Authenticator{
		Store:    &memStore{},
		Flow:     &fakeFlow{},
		Logger:   quietLogger(),
		OnResult: func(r string) { results = append(results, r) },
	}

	_, err := a.TokenSource(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRegistration))
	assert.Equal(t, []string{ResultFailure}, results)
}

func TestAuthenticator_ValidTokenWithoutRegistration(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "cached", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	flow := &fakeFlow{}
	a := &Authenticator{Store: &memStore{tok: tok}, Flow: flow, Logger: quietLogger()}

	ts, err := a.TokenSource(context.Background())
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "cached", got.AccessToken)
	assert.Zero(t, flow.calls)
}

func TestAuthenticator_ExpiredTokenWithoutRegistration(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	a := &Authenticator{Store: &memStore{tok: tok}, Flow: &fakeFlow{}, Logger: quietLogger()}

	_, err := a.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrNoRegistration)
}

func TestAuthenticator_ValidTokenWithMissingRegistration(t *testing.T) {
	var results []string
	tok := &oauth2.Token{AccessToken: "cached", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	flow := &fakeFlow{}
	a := &Authenticator{
		Store:            &memStore{tok: tok},
		RegistrationFile: "/nonexistent/client_secret.json",
		Flow:             flow,
		Logger:           quietLogger(),
		OnResult:         func(r string) { results = append(results, r) },
	}

	ts, err := a.TokenSource(context.Background())
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "cached", got.AccessToken)
	assert.Zero(t, flow.calls)
	assert.Equal(t, []string{ResultCached}, results)
}

func TestAuthenticator_ExpiredTokenWithMissingRegistration(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	flow := &fakeFlow{}
	a := &Authenticator{
		Store:            &memStore{tok: tok},
		RegistrationFile: filepath.Join(t.TempDir(), "missing.json"),
		Flow:             flow,
		Logger:           quietLogger(),
	}

	_, err := a.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Zero(t, flow.calls)
}

func TestAuthenticator_InteractiveFlowPersistsToken(t *testing.T) {
	srv := newTokenServer(t, "unused")
	store := &memStore{}
	flow := &fakeFlow{tok: &oauth2.Token{
		AccessToken:  "fresh",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}}
	var results []string

	a := &Authenticator{
		RegistrationFile: writeRegistration(t, srv.URL),
		Store:            store,
		Flow:             flow,
		Logger:           quietLogger(),
		OnResult:         func(r string) { results = append(results, r) },
	}

	ts, err := a.TokenSource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flow.calls)
	require.NotNil(t, store.tok)
	assert.Equal(t, "fresh", store.tok.AccessToken)
	assert.Equal(t, []string{ResultInteractive}, results)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
}

func TestAuthenticator_RefreshesAndPersists(t *testing.T) {
	srv := newTokenServer(t, "refreshed-access")
	store := &memStore{tok: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}}
	flow := &fakeFlow{}
	var results []string

	a := &Authenticator{
		RegistrationFile: writeRegistration(t, srv.URL),
		Store:            store,
		Flow:             flow,
		Logger:           quietLogger(),
		OnResult:         func(r string) { results = append(results, r) },
	}

	_, err := a.TokenSource(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flow.calls, "refresh should not need the interactive flow")
	assert.Equal(t, "refreshed-access", store.tok.AccessToken)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, []string{ResultRefreshed}, results)
}

func TestAuthenticator_FlowError(t *testing.T) {
	srv := newTokenServer(t, "unused")
	a := &Authenticator{
		RegistrationFile: writeRegistration(t, srv.URL),
		Store:            &memStore{},
		Flow:             &fakeFlow{err: errors.New("user declined")},
		Logger:           quietLogger(),
	}

	_, err := a.TokenSource(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user declined")
}

func TestLoadRegistration(t *testing.T) {
	path := writeRegistration(t, "https://oauth2.example.com/token")

	conf, err := LoadRegistration(path, DefaultOAuthScopes)
	require.NoError(t, err)
	assert.Equal(t, "client-1", conf.ClientID)
	assert.Equal(t, "secret-1", conf.ClientSecret)
	assert.Equal(t, "https://oauth2.example.com/token", conf.Endpoint.TokenURL)
	assert.Equal(t, DefaultOAuthScopes, conf.Scopes)

	_, err = LoadRegistration(filepath.Join(t.TempDir(), "missing.json"), DefaultOAuthScopes)
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewHTTPClient(t *testing.T) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc", TokenType: "Bearer"})

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := NewHTTPClient(context.Background(), ts)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer abc", gotAuth)
}
