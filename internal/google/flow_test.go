package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestBrowserFlow_Run(t *testing.T) {
	var gotCode, gotVerifier string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotCode = r.Form.Get("code")
		gotVerifier = r.Form.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "granted",
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	conf := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenSrv.URL,
		},
		Scopes: DefaultOAuthScopes,
	}

	flow := &BrowserFlow{
		Prompt: io.Discard,
		Logger: quietLogger(),
		OpenURL: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			redirect := q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&code=auth-code"
			go func() {
				resp, err := http.Get(redirect)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := flow.Run(ctx, conf)
	require.NoError(t, err)
	assert.Equal(t, "granted", tok.AccessToken)
	assert.Equal(t, "auth-code", gotCode)
	assert.NotEmpty(t, gotVerifier, "PKCE verifier must be sent")
	assert.Empty(t, conf.RedirectURL, "caller config must not be mutated")
}

func TestBrowserFlow_StateMismatch(t *testing.T) {
	conf := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://unused.example.com"},
	}

	flow := &BrowserFlow{
		Prompt: io.Discard,
		Logger: quietLogger(),
		OpenURL: func(authURL string) error {
			u, _ := url.Parse(authURL)
			redirect := u.Query().Get("redirect_uri") + "?state=forged&code=x"
			go func() {
				resp, err := http.Get(redirect)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := flow.Run(ctx, conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestBrowserFlow_Canceled(t *testing.T) {
	conf := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://unused.example.com"},
	}
	flow := &BrowserFlow{Prompt: io.Discard, Logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := flow.Run(ctx, conf)
	assert.Error(t, err)
}
