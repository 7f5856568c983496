package gmail

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gmailcli/internal/instrumentation"
)

// defaultUser addresses the authenticated account.
const defaultUser = "me"

// maxPageSize is the largest page messages.list accepts.
const maxPageSize = 500

// API is the subset of the Gmail REST API the CLI consumes.
type API interface {
	// ListMessageIDs returns up to limit message ids matching query, newest first.
	ListMessageIDs(ctx context.Context, query string, limit int64) ([]string, error)
	GetMessage(ctx context.Context, id string, format Format) (*gmail.Message, error)
	ListLabels(ctx context.Context) ([]*gmail.Label, error)
	// Send submits msg and returns the stored message with its id and thread id.
	Send(ctx context.Context, msg *gmail.Message) (*gmail.Message, error)
}

// RemoteCallError wraps every failure reported by the Gmail API. The
// underlying *googleapi.Error stays reachable through errors.As.
type RemoteCallError struct {
	Op  string
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("gmail %s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Client wraps the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	user    string
	metrics *instrumentation.Metrics
}

var _ API = (*Client)(nil)

// NewClient creates a Gmail client. Authentication comes from opts, usually
// option.WithHTTPClient with an OAuth client. metrics may be nil.
func NewClient(ctx context.Context, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{
		svc:     svc.Users,
		user:    defaultUser,
		metrics: metrics,
	}, nil
}

// observe runs call inside a client span and records its outcome.
func (c *Client) observe(ctx context.Context, op string, call func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := instrumentation.StartGmailAPISpan(ctx, op, attrs...)
	defer span.End()

	start := time.Now()
	err := call(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		err = &RemoteCallError{Op: op, Err: err}
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGmailAPIOperation(ctx, op, status, time.Since(start))
	return err
}

// ListMessageIDs pages through messages.list until limit ids are collected or
// the result set ends.
func (c *Client) ListMessageIDs(ctx context.Context, query string, limit int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for int64(len(ids)) < limit {
		pageSize := limit - int64(len(ids))
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		var res *gmail.ListMessagesResponse
		err := c.observe(ctx, instrumentation.OperationListMessages, func(ctx context.Context) error {
			req := c.svc.Messages.List(c.user).MaxResults(pageSize).Context(ctx)
			if query != "" {
				req = req.Q(query)
			}
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// GetMessage fetches one message. FormatMetadata restricts headers to
// MetadataHeaders.
func (c *Client) GetMessage(ctx context.Context, id string, format Format) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGetMessage, func(ctx context.Context) error {
		req := c.svc.Messages.Get(c.user, id).Format(string(format)).Context(ctx)
		if format == FormatMetadata {
			req = req.MetadataHeaders(MetadataHeaders...)
		}
		var err error
		msg, err = req.Do()
		return err
	}, attribute.String(instrumentation.SpanAttrMessageID, id))
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListLabels returns every label of the account.
func (c *Client) ListLabels(ctx context.Context) ([]*gmail.Label, error) {
	var labels []*gmail.Label
	err := c.observe(ctx, instrumentation.OperationListLabels, func(ctx context.Context) error {
		res, err := c.svc.Labels.List(c.user).Context(ctx).Do()
		if err != nil {
			return err
		}
		labels = res.Labels
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// Send submits an encoded message.
func (c *Client) Send(ctx context.Context, msg *gmail.Message) (*gmail.Message, error) {
	var sent *gmail.Message
	err := c.observe(ctx, instrumentation.OperationSendMessage, func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Messages.Send(c.user, msg).Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrThreadID, msg.ThreadId))
	if err != nil {
		return nil, err
	}
	return sent, nil
}
