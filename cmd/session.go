package cmd

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/option"

	"github.com/teemow/gmailcli/internal/config"
	"github.com/teemow/gmailcli/internal/gmail"
	"github.com/teemow/gmailcli/internal/google"
)

// keyringService names the keyring entry used by the keyring token backend.
const keyringService = "gmailcli"

// tokenStore opens the configured token backend and returns it with a
// human readable location.
func (s *session) tokenStore() (google.TokenStore, string, error) {
	switch s.cfg.TokenBackend {
	case config.BackendKeyring:
		ring, err := google.OpenKeyring(keyringService, s.cfg.Dir)
		if err != nil {
			return nil, "", err
		}
		return google.NewKeyringTokenStore(ring), fmt.Sprintf("keyring %s/%s", keyringService, google.KeyringItemKey), nil
	default:
		return google.NewFileTokenStore(s.cfg.TokenFile), s.cfg.TokenFile, nil
	}
}

// credentialManager wires the token store, refresher and browser flow. The
// consent URL is written to prompt.
func (s *session) credentialManager(store google.TokenStore, prompt io.Writer) *google.Manager {
	authorizer := google.NewLocalServerAuthorizer(s.cfg.ClientSecretFile, prompt)
	authorizer.Timeout = s.cfg.AuthTimeout
	authorizer.Logger = s.logger

	return google.NewManager(store, &google.OAuthRefresher{}, authorizer,
		google.WithExpiryLeeway(s.cfg.ExpiryLeeway),
		google.WithLogger(s.logger),
		google.WithMetrics(s.metrics()),
	)
}

// mailbox acquires a credential covering mode and returns a Mailbox backed
// by the Gmail API.
func (s *session) mailbox(ctx context.Context, mode google.Mode, prompt io.Writer) (*gmail.Mailbox, error) {
	store, _, err := s.tokenStore()
	if err != nil {
		return nil, err
	}

	cred, err := s.credentialManager(store, prompt).Acquire(ctx, google.ScopesFor(mode))
	if err != nil {
		return nil, err
	}

	httpClient, err := google.NewHTTPClient(ctx, cred)
	if err != nil {
		return nil, err
	}
	client, err := gmail.NewClient(ctx, s.metrics(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gmail.NewMailbox(client,
		gmail.WithLogger(s.logger),
		gmail.WithMetrics(s.metrics()),
	), nil
}
