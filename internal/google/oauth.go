package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoRegistration is returned when an interactive authorization is needed
// but no registration file is known.
var ErrNoRegistration = errors.New("cannot authenticate: no client registration file known")

// ErrInvalidRegistration is returned when the registration file cannot be
// read or parsed.
var ErrInvalidRegistration = errors.New("invalid client registration file")

// Auth results reported through Authenticator.OnResult.
const (
	ResultCached      = "cached"
	ResultRefreshed   = "refreshed"
	ResultInteractive = "interactive"
	ResultFailure     = "failure"
)

// LoadRegistration reads the client registration file downloaded from the
// Google Cloud Console and returns the OAuth2 config for the given scopes.
func LoadRegistration(path string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRegistration, path, err)
	}

	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRegistration, path, err)
	}
	return conf, nil
}

// Authenticator produces a token source for the Drive API from the token file,
// the registration file and, as a last resort, an interactive flow.
type Authenticator struct {
	// RegistrationFile is the client ID/secret JSON. May be empty as long as the
	// stored token stays valid.
	RegistrationFile string

	// Scopes requested during interactive authorization.
	Scopes []string

	Store  TokenStore
	Flow   Flow
	Logger *slog.Logger

	// OnResult, when set, is called once per TokenSource call with one of the
	// Result* values.
	OnResult func(result string)
}

// TokenSource returns a token source backed by the stored credential. When no
// credential is stored, or it is expired and cannot be refreshed, it runs the
// interactive flow and persists the new credential, overwriting the token file.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	logger := a.logger()
	// Refreshes happen long after this call returns.
	refreshCtx := context.WithoutCancel(ctx)

	if a.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	tok, err := a.Store.Load()
	if err != nil {
		logger.Warn("ignoring unreadable token file", slog.String("error", err.Error()))
		tok = nil
	}

	// A broken registration only matters once a refresh or the interactive
	// flow needs it; a valid cached token is still usable.
	var conf *oauth2.Config
	var regErr error
	if a.RegistrationFile != "" {
		conf, regErr = LoadRegistration(a.RegistrationFile, a.scopes())
		if regErr != nil && tok.Valid() {
			logger.Warn("using cached token, registration file unusable", slog.String("error", regErr.Error()))
		}
	}

	if tok != nil {
		switch {
		case conf != nil:
			wasValid := tok.Valid()
			ts := newPersistingTokenSource(conf.TokenSource(refreshCtx, tok), a.Store, tok, logger)
			_, err := ts.Token()
			if err == nil {
				if wasValid {
					a.report(ResultCached)
				} else {
					a.report(ResultRefreshed)
				}
				return ts, nil
			}
			logger.Warn("cached token invalid", slog.String("error", err.Error()))
		case tok.Valid():
			a.report(ResultCached)
			return oauth2.StaticTokenSource(tok), nil
		case regErr == nil:
			logger.Warn("cached token expired and no registration file to refresh it")
		}
	}

	if conf == nil {
		a.report(ResultFailure)
		if regErr != nil {
			return nil, regErr
		}
		return nil, ErrNoRegistration
	}
	if a.Flow == nil {
		a.report(ResultFailure)
		return nil, fmt.Errorf("interactive authorization required but no flow is configured")
	}

	tok, err = a.Flow.Run(ctx, conf)
	if err != nil {
		a.report(ResultFailure)
		return nil, fmt.Errorf("interactive authorization failed: %w", err)
	}
	if err := a.Store.Save(tok); err != nil {
		a.report(ResultFailure)
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	a.report(ResultInteractive)
	return newPersistingTokenSource(conf.TokenSource(refreshCtx, tok), a.Store, tok, logger), nil
}

func (a *Authenticator) scopes() []string {
	if len(a.Scopes) > 0 {
		return ExpandScopes(a.Scopes)
	}
	return DefaultOAuthScopes
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Authenticator) report(result string) {
	if a.OnResult != nil {
		a.OnResult(result)
	}
}

// persistingTokenSource writes every refreshed token back to the store.
type persistingTokenSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	store  TokenStore
	last   string
	logger *slog.Logger
}

func newPersistingTokenSource(src oauth2.TokenSource, store TokenStore, initial *oauth2.Token, logger *slog.Logger) *persistingTokenSource {
	return &persistingTokenSource{
		src:    src,
		store:  store,
		last:   initial.AccessToken,
		logger: logger,
	}
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			// The refreshed token is still usable for this process.
			p.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
		} else {
			p.logger.Debug("persisted refreshed token", slog.Time("expiry", tok.Expiry))
		}
		p.last = tok.AccessToken
	}

	return tok, nil
}

// NewHTTPClient returns an HTTP client authorized by ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
// on long resumable uploads.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)

	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}

	return client
}
