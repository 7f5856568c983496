package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailcli/internal/gmail"
	"github.com/teemow/gmailcli/internal/google"
)

type sendOptions struct {
	to, cc, bcc string
	subject     string
	body        string
	replyTo     string
	dryRun      bool
	json        bool
}

func newSendCmd(s *session) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a plain-text message or a reply",
		Long: `Send a plain-text message. The body is taken from --body or, when the
flag is not given, read from standard input.

With --reply-to the message answers an existing message: the recipient
defaults to the original sender, the subject gets a "Re: " prefix and the
reply is placed in the original thread.

--dry-run prints the message instead of sending it. A dry-run reply still
fetches the original message, so it needs read access to the mailbox.

Examples:
  gmailcli send --to someone@example.com -s "Hello" -b "Hi there"
  echo "Thanks!" | gmailcli send --reply-to 18c2f0a1b2c3d4e5
  gmailcli send --to someone@example.com -s "Draft" --dry-run < body.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("body") {
				body, err := readBody(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				opts.body = body
			}

			req := gmail.SendRequest{
				To:      opts.to,
				Cc:      opts.cc,
				Bcc:     opts.bcc,
				Subject: opts.subject,
				Body:    opts.body,
				ReplyTo: opts.replyTo,
				DryRun:  opts.dryRun,
			}

			ctx := cmd.Context()
			var mailbox *gmail.Mailbox
			switch {
			case opts.dryRun && opts.replyTo == "":
				// Nothing to fetch and nothing to submit.
				mailbox = gmail.NewMailbox(nil, gmail.WithLogger(s.logger), gmail.WithMetrics(s.metrics()))
			case opts.dryRun:
				// The original is read to resolve the reply; nothing is sent.
				var err error
				if mailbox, err = s.mailbox(ctx, google.ModeRead, cmd.ErrOrStderr()); err != nil {
					return err
				}
			default:
				var err error
				if mailbox, err = s.mailbox(ctx, google.ModeSend, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			result, err := mailbox.Send(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, result)
			}
			return printSendResult(out, result)
		},
	}

	cmd.Flags().StringVar(&opts.to, "to", "", "Recipient address(es), comma separated")
	cmd.Flags().StringVar(&opts.cc, "cc", "", "Cc address(es), comma separated")
	cmd.Flags().StringVar(&opts.bcc, "bcc", "", "Bcc address(es), comma separated")
	cmd.Flags().StringVarP(&opts.subject, "subject", "s", "", "Message subject")
	cmd.Flags().StringVarP(&opts.body, "body", "b", "", "Message body (read from stdin when omitted)")
	cmd.Flags().StringVar(&opts.replyTo, "reply-to", "", "ID of the message to reply to")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the message instead of sending it (a reply still fetches the original)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output in JSON format")

	return cmd
}

// readBody reads the message body from in. A hint goes to hint when in is
// an interactive terminal.
func readBody(in io.Reader, hint io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprintln(hint, "Reading message body from stdin (end with Ctrl-D):")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading message body: %w", err)
	}
	return string(data), nil
}

func printSendResult(w io.Writer, r *gmail.SendResult) error {
	var b strings.Builder
	if !r.DryRun {
		fmt.Fprintf(&b, "Message sent (id: %s, thread: %s)\n", r.ID, r.ThreadID)
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("Dry run, message not sent.\n")
	if p := r.Preview; p != nil {
		fmt.Fprintf(&b, "To:      %s\n", p.To)
		if p.Cc != "" {
			fmt.Fprintf(&b, "Cc:      %s\n", p.Cc)
		}
		if p.Bcc != "" {
			fmt.Fprintf(&b, "Bcc:     %s\n", p.Bcc)
		}
		fmt.Fprintf(&b, "Subject: %s\n", p.Subject)
		if r.ThreadID != "" {
			fmt.Fprintf(&b, "Thread:  %s\n", r.ThreadID)
		}
		b.WriteString(strings.Repeat("-", separatorWidth))
		b.WriteString("\n")
		b.WriteString(p.Body)
		if !strings.HasSuffix(p.Body, "\n") {
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
