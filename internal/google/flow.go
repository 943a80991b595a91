package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

const (
	// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
	stateTokenBytes = 16

	// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
	callbackPath = "/"

	// callbackShutdownTimeout is how long to wait for the callback server to drain.
	callbackShutdownTimeout = 5 * time.Second
)

// Flow obtains a fresh credential through user interaction.
type Flow interface {
	Run(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error)
}

// BrowserFlow runs the authorization code flow with PKCE against a loopback
// redirect: it binds 127.0.0.1 on a random port, sends the user to the
// consent page and blocks until Google redirects back with a code.
type BrowserFlow struct {
	// OpenURL launches a browser. When nil or failing, the URL is printed to Prompt.
	OpenURL func(string) error

	// Prompt receives the authorization URL when no browser could be opened.
	// Defaults to os.Stderr.
	Prompt io.Writer

	Logger *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Run performs the interactive authorization. No timeout is applied here;
// cancel ctx to abort the wait.
func (f *BrowserFlow) Run(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	logger := f.logger()

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind localhost listener: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	state, err := generateState()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: callbackShutdownTimeout,
	}
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sendResult(resultCh, callbackResult{err: fmt.Errorf("callback server error: %w", serveErr)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
		}
	}()

	cfg := *conf
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	logger.Info("waiting for browser authorization", slog.Int("port", port))
	f.launch(authURL, logger)

	var code string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-ctx.Done():
		return nil, fmt.Errorf("browser authorization canceled: %w", ctx.Err())
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	logger.Info("authorization granted", slog.Time("expiry", tok.Expiry))
	return tok, nil
}

func (f *BrowserFlow) launch(authURL string, logger *slog.Logger) {
	prompt := f.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}

	if f.OpenURL != nil {
		err := f.OpenURL(authURL)
		if err == nil {
			return
		}
		logger.Warn("failed to open browser, printing URL", slog.String("error", err.Error()))
	}

	fmt.Fprintf(prompt, "Open this URL in your browser to authorize drivebkup:\n%s\n", authURL)
}

func (f *BrowserFlow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("OAuth2 state mismatch")})
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("authorization failed: %s", errParam)})
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("callback missing authorization code")})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	sendResult(resultCh, callbackResult{code: code})
}

// sendResult never blocks: only the first callback outcome matters.
func sendResult(ch chan<- callbackResult, res callbackResult) {
	select {
	case ch <- res:
	default:
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
