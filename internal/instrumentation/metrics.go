package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrRoute     = "route"
	attrMode      = "mode"
)

// Metrics records the CLI's observability metrics. A zero or nil Metrics
// is a valid no-op recorder.
type Metrics struct {
	// Credential metrics
	credentialAcquisitionsTotal metric.Int64Counter
	oauthAuthTotal              metric.Int64Counter
	oauthTokenRefreshTotal      metric.Int64Counter

	// Gmail API metrics
	gmailAPIOperationsTotal   metric.Int64Counter
	gmailAPIOperationDuration metric.Float64Histogram

	messagesSentTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.credentialAcquisitionsTotal, err = meter.Int64Counter(
		"credential_acquisitions_total",
		metric.WithDescription("Total number of credential acquisitions by route and result"),
		metric.WithUnit("{acquisition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_acquisitions_total counter: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of interactive OAuth authorizations"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.gmailAPIOperationsTotal, err = meter.Int64Counter(
		"gmail_api_operations_total",
		metric.WithDescription("Total number of Gmail API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operations_total counter: %w", err)
	}

	m.gmailAPIOperationDuration, err = meter.Float64Histogram(
		"gmail_api_operation_duration_seconds",
		metric.WithDescription("Gmail API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operation_duration_seconds histogram: %w", err)
	}

	m.messagesSentTotal, err = meter.Int64Counter(
		"messages_sent_total",
		metric.WithDescription("Total number of messages handed to the Gmail API for delivery"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages_sent_total counter: %w", err)
	}

	return m, nil
}

// RecordCredentialAcquisition records a finished credential acquisition.
// route is one of the Acquisition* constants; status is success or error.
func (m *Metrics) RecordCredentialAcquisition(ctx context.Context, route, status string) {
	if m == nil || m.credentialAcquisitionsTotal == nil {
		return
	}
	m.credentialAcquisitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrRoute, route),
		attribute.String(attrStatus, status),
	))
}

// RecordOAuthAuth records an interactive authorization with its result.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a refresh attempt with its result.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordGmailAPIOperation records a Gmail API call.
//
// Parameters:
//   - operation: one of the Operation* constants
//   - status: "success" or "error"
//   - duration: time taken by the call
func (m *Metrics) RecordGmailAPIOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gmailAPIOperationsTotal == nil || m.gmailAPIOperationDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gmailAPIOperationsTotal.Add(ctx, 1, attrs)
	m.gmailAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMessageSent counts a message accepted by the API. mode is
// SendModeNew or SendModeReply.
func (m *Metrics) RecordMessageSent(ctx context.Context, mode string) {
	if m == nil || m.messagesSentTotal == nil {
		return
	}
	m.messagesSentTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrMode, mode)))
}
