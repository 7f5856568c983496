package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenSource returns a static token source for c. Acquire has already
// made sure the token is valid for the rest of the invocation.
func TokenSource(c *Credential) oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.Token())
}

// NewHTTPClient returns an HTTP client that authenticates with c.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(ctx context.Context, c *Credential) (*http.Client, error) {
	if c == nil || c.AccessToken == "" {
		return nil, fmt.Errorf("no valid Google OAuth token available")
	}

	client := oauth2.NewClient(ctx, TokenSource(c))

	// Force HTTP/1.1 by disabling HTTP/2
	transport := client.Transport.(*oauth2.Transport)
	transport.Base = &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}

	return client, nil
}
