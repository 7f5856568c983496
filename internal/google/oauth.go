package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// DefaultAuthTimeout bounds how long the loopback listener waits for the
// browser redirect.
const DefaultAuthTimeout = 5 * time.Minute

// Authorizer obtains a brand new credential for the given scopes.
type Authorizer interface {
	Authorize(ctx context.Context, scopes ScopeSet) (*Credential, error)
}

// Refresher exchanges a credential's refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, c *Credential) (*Credential, error)
}

// LoadClientConfig reads the OAuth client secret file downloaded from the
// Google Cloud console. A missing or unparseable file is a *SetupError.
func LoadClientConfig(path string, scopes ScopeSet) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SetupError{Path: path}
		}
		return nil, &SetupError{Path: path, Err: err}
	}
	conf, err := googleoauth.ConfigFromJSON(data, scopes.Slice()...)
	if err != nil {
		return nil, &SetupError{Path: path, Err: err}
	}
	return conf, nil
}

// LocalServerAuthorizer runs the installed-app flow: it listens on a
// loopback port, asks the user to open the consent URL and exchanges the
// returned authorization code for a token.
type LocalServerAuthorizer struct {
	// ClientSecretFile is the path of the OAuth client JSON.
	ClientSecretFile string

	// Timeout bounds the wait for the redirect (default DefaultAuthTimeout).
	Timeout time.Duration

	// Prompt presents the consent URL to the user.
	Prompt func(ctx context.Context, authURL string) error

	// HTTPClient, when set, is used for the code exchange.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewLocalServerAuthorizer returns an authorizer that prints the consent
// URL to out.
func NewLocalServerAuthorizer(clientSecretFile string, out io.Writer) *LocalServerAuthorizer {
	return &LocalServerAuthorizer{
		ClientSecretFile: clientSecretFile,
		Timeout:          DefaultAuthTimeout,
		Prompt: func(_ context.Context, authURL string) error {
			_, err := fmt.Fprintf(out, "Open this URL in your browser to authorize access to Gmail:\n\n  %s\n\n", authURL)
			return err
		},
		Logger: slog.Default(),
	}
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer.
func (a *LocalServerAuthorizer) Authorize(ctx context.Context, scopes ScopeSet) (*Credential, error) {
	conf, err := LoadClientConfig(a.ClientSecretFile, scopes)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	conf.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger().Debug("callback listener stopped", "error", err)
		}
	}()
	defer srv.Close()

	a.logger().Debug("waiting for OAuth redirect", "redirect_url", conf.RedirectURL, "scopes", scopes.String())

	if a.Prompt != nil {
		if err := a.Prompt(ctx, authURL); err != nil {
			return nil, fmt.Errorf("failed to present authorization URL: %w", err)
		}
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", waitCtx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	tok, err := conf.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	cred := &Credential{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		TokenURI:     conf.Endpoint.TokenURL,
		Scopes:       scopes,
	}
	return cred.withToken(tok), nil
}

func (a *LocalServerAuthorizer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// callbackHandler accepts the first redirect carrying the expected state
// and reports its code (or error) on results.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	report := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			report(callbackResult{err: errors.New("authorization redirect carried an unexpected state")})
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied: "+html.EscapeString(e), http.StatusForbidden)
			report(callbackResult{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			report(callbackResult{err: errors.New("authorization redirect carried no code")})
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		report(callbackResult{code: code})
	})
}

// OAuthRefresher refreshes credentials against the token endpoint recorded
// in the credential itself.
type OAuthRefresher struct {
	// HTTPClient, when set, is used for the refresh request.
	HTTPClient *http.Client
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, c *Credential) (*Credential, error) {
	if !c.HasRefreshToken() {
		return nil, errors.New("no refresh token available")
	}

	tokenURL := c.TokenURI
	if tokenURL == "" {
		tokenURL = googleoauth.Endpoint.TokenURL
	}
	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleoauth.Endpoint.AuthURL,
			TokenURL: tokenURL,
		},
		Scopes: c.Scopes.Slice(),
	}

	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	// Force the token source to hit the endpoint even when oauth2's own
	// expiry check would still consider the token usable.
	stale := c.Token()
	stale.Expiry = time.Unix(1, 0)

	tok, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return c.withToken(tok), nil
}
