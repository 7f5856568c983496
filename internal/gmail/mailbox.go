package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/teemow/gmailcli/internal/instrumentation"
	"github.com/teemow/gmailcli/internal/logging"
)

// DefaultCount is the listing size when none is given.
const DefaultCount = 10

// Mailbox implements the read and send workflows on top of an API.
type Mailbox struct {
	api     API
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// MailboxOption configures a Mailbox.
type MailboxOption func(*Mailbox)

// WithLogger sets the logger used instead of slog.Default.
func WithLogger(logger *slog.Logger) MailboxOption {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) MailboxOption {
	return func(m *Mailbox) {
		m.metrics = metrics
	}
}

// NewMailbox creates a Mailbox backed by api.
func NewMailbox(api API, opts ...MailboxOption) *Mailbox {
	m := &Mailbox{
		api:    api,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListOptions selects messages for List.
type ListOptions struct {
	Query      string
	Count      int64
	UnreadOnly bool
}

// BuildQuery prefixes query with is:unread when unreadOnly is set.
func BuildQuery(query string, unreadOnly bool) string {
	query = strings.TrimSpace(query)
	if unreadOnly {
		return strings.TrimSpace("is:unread " + query)
	}
	return query
}

// List returns metadata for the newest matching messages, fetched one after
// another in listing order.
func (m *Mailbox) List(ctx context.Context, opts ListOptions) ([]*Message, error) {
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}
	query := BuildQuery(opts.Query, opts.UnreadOnly)

	ids, err := m.api.ListMessageIDs(ctx, query, count)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		raw, err := m.api.GetMessage(ctx, id, FormatMetadata)
		if err != nil {
			return nil, fmt.Errorf("fetching message %s: %w", id, err)
		}
		msg, _ := Decode(raw)
		if msg.ID == "" {
			msg.ID = id
		}
		msgs = append(msgs, msg)
	}

	m.logger.Debug("listed messages",
		logging.Operation(instrumentation.OperationListMessages),
		slog.Int("count", len(msgs)))
	return msgs, nil
}

// Read fetches and decodes one full message. Malformed body data is logged
// and replaced, never fatal.
func (m *Mailbox) Read(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, errors.New("message id is required")
	}

	raw, err := m.api.GetMessage(ctx, id, FormatFull)
	if err != nil {
		return nil, fmt.Errorf("reading message %s: %w", id, err)
	}

	msg, err := Decode(raw)
	if err != nil {
		m.logger.Warn("message body contained malformed data", logging.MessageID(id), logging.Err(err))
	}
	if msg.ID == "" {
		msg.ID = id
	}
	return msg, nil
}

// Labels returns all labels sorted by name.
func (m *Mailbox) Labels(ctx context.Context) ([]Label, error) {
	raw, err := m.api.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}

	labels := make([]Label, 0, len(raw))
	for _, l := range raw {
		if l == nil {
			continue
		}
		labels = append(labels, Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Name < labels[j].Name
	})
	return labels, nil
}

// SendRequest is a user request to send a new message or a reply.
type SendRequest struct {
	To      string
	Cc      string
	Bcc     string
	Subject string
	Body    string
	// ReplyTo is the id of the message being answered.
	ReplyTo string
	DryRun  bool
}

// Send composes and submits a message. For replies the original is fetched
// and ResolveReply fills recipient, subject, threading headers and thread id.
// A dry run encodes the message and returns a preview without submitting it.
func (m *Mailbox) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	out := &OutgoingMessage{
		To:      req.To,
		Cc:      req.Cc,
		Bcc:     req.Bcc,
		Subject: req.Subject,
		Body:    req.Body,
	}
	mode := instrumentation.SendModeNew

	if req.ReplyTo != "" {
		mode = instrumentation.SendModeReply

		raw, err := m.api.GetMessage(ctx, req.ReplyTo, FormatMetadata)
		if err != nil {
			return nil, fmt.Errorf("fetching message %s to reply to: %w", req.ReplyTo, err)
		}
		original, _ := Decode(raw)
		reply := ResolveReply(original, req.Subject, req.To)
		reply.Apply(out)

		m.logger.Debug("resolved reply",
			logging.MessageID(req.ReplyTo),
			logging.UserHash(reply.To),
			slog.String("thread_id", reply.ThreadID),
			slog.Bool("threaded_headers", reply.InReplyTo != ""))
	}

	if strings.TrimSpace(out.To) == "" {
		return nil, errors.New("recipient is required (use --to or --reply-to)")
	}

	encoded, err := Encode(out)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		preview, err := m.preview(encoded.Raw)
		if err != nil {
			return nil, err
		}
		preview.ThreadID = out.ThreadID
		return &SendResult{ThreadID: out.ThreadID, Mode: mode, DryRun: true, Preview: preview}, nil
	}

	sent, err := m.api.Send(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	m.metrics.RecordMessageSent(ctx, mode)
	m.logger.Info("message sent", logging.MessageID(sent.Id), slog.String("mode", mode))

	return &SendResult{ID: sent.Id, ThreadID: sent.ThreadId, Mode: mode}, nil
}

// preview decodes an encoded envelope back into a Message.
func (m *Mailbox) preview(raw string) (*Message, error) {
	parsed, err := ParseRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("rendering preview: %w", err)
	}
	msg, _ := Decode(parsed)
	return msg, nil
}
