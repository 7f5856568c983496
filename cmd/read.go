package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailcli/internal/gmail"
	"github.com/teemow/gmailcli/internal/google"
)

type readOptions struct {
	count      int
	unreadOnly bool
	query      string
	id         string
	labels     bool
	json       bool
}

func newReadCmd(s *session) *cobra.Command {
	var opts readOptions

	cmd := &cobra.Command{
		Use:   "read",
		Short: "List messages, read a message or list labels",
		Long: `List recent messages matching a Gmail search query, print a single
message by id, or list the mailbox labels.

Examples:
  gmailcli read -n 20 -u
  gmailcli read -q "from:someone@example.com"
  gmailcli read -i 18c2f0a1b2c3d4e5
  gmailcli read --labels`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.count <= 0 {
				return errors.New("--count must be positive")
			}

			ctx := cmd.Context()
			mailbox, err := s.mailbox(ctx, google.ModeRead, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case opts.labels:
				labels, err := mailbox.Labels(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(out, labels)
				}
				return printLabels(out, labels)

			case opts.id != "":
				msg, err := mailbox.Read(ctx, opts.id)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(out, msg)
				}
				return printMessage(out, msg)

			default:
				msgs, err := mailbox.List(ctx, gmail.ListOptions{
					Query:      opts.query,
					Count:      int64(opts.count),
					UnreadOnly: opts.unreadOnly,
				})
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(out, msgs)
				}
				return printList(out, msgs)
			}
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", gmail.DefaultCount, "Number of messages to list")
	cmd.Flags().BoolVarP(&opts.unreadOnly, "unread", "u", false, "Show only unread messages")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Gmail search query (e.g. 'from:someone@example.com')")
	cmd.Flags().StringVarP(&opts.id, "id", "i", "", "Read a specific message by ID")
	cmd.Flags().BoolVarP(&opts.labels, "labels", "l", false, "List available labels")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output in JSON format")

	return cmd
}

const separatorWidth = 60

// printList writes one line per message: unread marker, short id, sender
// and subject in fixed-width columns.
func printList(w io.Writer, msgs []*gmail.Message) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "No messages found.")
		return err
	}
	for _, m := range msgs {
		marker := " "
		if m.Unread() {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s  %s  %s\n", marker, truncate(m.ID, 12), column(m.From, 30), column(m.Subject, 50)); err != nil {
			return err
		}
	}
	return nil
}

func printMessage(w io.Writer, m *gmail.Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From:    %s\n", m.From)
	fmt.Fprintf(&b, "To:      %s\n", m.To)
	if m.Cc != "" {
		fmt.Fprintf(&b, "Cc:      %s\n", m.Cc)
	}
	fmt.Fprintf(&b, "Date:    %s\n", m.Date)
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	fmt.Fprintf(&b, "Labels:  %s\n", strings.Join(m.LabelIDs, ", "))
	b.WriteString(strings.Repeat("-", separatorWidth))
	b.WriteString("\n")
	b.WriteString(m.Body)
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func printLabels(w io.Writer, labels []gmail.Label) error {
	for _, l := range labels {
		if _, err := fmt.Fprintf(w, "%-30s (id: %s)\n", l.Name, l.ID); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// column truncates s to n runes and pads it to exactly n.
func column(s string, n int) string {
	s = truncate(s, n)
	if pad := n - len([]rune(s)); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}
