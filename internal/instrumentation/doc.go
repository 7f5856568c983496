// Package instrumentation provides OpenTelemetry instrumentation for gmailcli.
//
// Instrumentation is off by default. When enabled it records:
//
// Credential Metrics:
//   - credential_acquisitions_total: acquisitions by route (cached, refreshed, reauthorized) and status
//   - oauth_auth_total: interactive authorizations by result
//   - oauth_token_refresh_total: token refresh attempts by result
//
// Gmail API Metrics:
//   - gmail_api_operations_total: API calls by operation and status
//   - gmail_api_operation_duration_seconds: API call durations
//   - messages_sent_total: messages accepted for delivery by mode (new, reply)
//
// Spans are created for credential acquisition (credential.acquire, with one
// event per state transition) and for every Gmail API call (gmail.<operation>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp, stdout or none (default: none)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - PROMETHEUS_TEXTFILE: file the prometheus exporter writes on exit,
//     suitable for the node exporter textfile collector
//
// Stdout exporters write to stderr so command output stays parseable.
package instrumentation
