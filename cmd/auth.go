package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailcli/internal/google"
)

func newAuthCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or refresh the stored Gmail authorization",
	}
	cmd.AddCommand(newAuthStatusCmd(s))
	cmd.AddCommand(newAuthLoginCmd(s))
	return cmd
}

func newAuthStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential without contacting Google",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, location, err := s.tokenStore()
			if err != nil {
				return err
			}
			st := authStatus{
				location:     location,
				backend:      s.cfg.TokenBackend,
				clientSecret: s.cfg.ClientSecretFile,
				now:          time.Now(),
				leeway:       s.cfg.ExpiryLeeway,
			}
			if _, err := os.Stat(s.cfg.ClientSecretFile); err == nil {
				st.clientSecretFound = true
			}

			st.cred, err = store.Load()
			if errors.Is(err, google.ErrCorruptRecord) {
				st.corrupt = err
			} else if err != nil {
				return err
			}
			return st.print(cmd.OutOrStdout())
		},
	}
}

func newAuthLoginCmd(s *session) *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Make sure a usable credential is stored, authorizing if needed",
		Long: `Acquire a credential for reading (or, with --send, for sending) mail.
A valid stored credential is kept, an expired one is refreshed and a missing
or insufficient one triggers the browser consent flow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := google.ModeRead
			if send {
				mode = google.ModeSend
			}

			store, location, err := s.tokenStore()
			if err != nil {
				return err
			}
			acq, err := s.credentialManager(store, cmd.ErrOrStderr()).Run(cmd.Context(), google.ScopesFor(mode))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Credential: %s (%s)\n", acq.Route(), location)
			fmt.Fprintf(out, "Path:       %s\n", acq.PathString())
			fmt.Fprintf(out, "Scopes:     %s\n", strings.Join(acq.Credential.Scopes.Slice(), ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "Also request permission to send mail")
	return cmd
}

// authStatus is the offline view printed by "auth status".
type authStatus struct {
	location          string
	backend           string
	clientSecret      string
	clientSecretFound bool

	cred    *google.Credential
	corrupt error

	now    time.Time
	leeway time.Duration
}

func (st authStatus) print(w io.Writer) error {
	var b strings.Builder

	found := "missing"
	if st.clientSecretFound {
		found = "present"
	}
	fmt.Fprintf(&b, "Client secret: %s (%s)\n", st.clientSecret, found)
	fmt.Fprintf(&b, "Token store:   %s (%s)\n", st.location, st.backend)

	switch {
	case st.corrupt != nil:
		fmt.Fprintf(&b, "Token:         unreadable, the next command will re-authorize (%v)\n", st.corrupt)
	case st.cred == nil:
		b.WriteString("Token:         none stored, the next command will open the consent flow\n")
	default:
		c := st.cred
		fmt.Fprintf(&b, "Scopes:        %s\n", strings.Join(c.Scopes.Slice(), ", "))
		switch {
		case c.Expiry.IsZero():
			b.WriteString("Expiry:        none\n")
		case c.Expired(st.now, st.leeway):
			fmt.Fprintf(&b, "Expiry:        %s (expired)\n", c.Expiry.Local().Format(time.RFC3339))
		default:
			fmt.Fprintf(&b, "Expiry:        %s (valid for %s)\n",
				c.Expiry.Local().Format(time.RFC3339), c.Expiry.Sub(st.now).Round(time.Second))
		}
		refresh := "no"
		if c.HasRefreshToken() {
			refresh = "yes"
		}
		fmt.Fprintf(&b, "Refresh token: %s\n", refresh)

		for _, mode := range []google.Mode{google.ModeRead, google.ModeSend} {
			missing := google.MissingScopes(c.Scopes, google.ScopesFor(mode))
			if missing.IsEmpty() {
				fmt.Fprintf(&b, "%-15s ok\n", mode.String()+":")
			} else {
				fmt.Fprintf(&b, "%-15s missing %s\n", mode.String()+":", strings.Join(missing.Slice(), ", "))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
