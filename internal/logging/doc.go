// Package logging provides structured logging utilities for gmailcli.
//
// Logs go to stderr through log/slog so stdout carries only command
// output. The default level is warn; pass --log-level debug to see every
// credential state transition.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "messages.list")
//	logger.Info("listed messages", logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("reply resolved", logging.UserHash(reply.To))
//	logger.Debug("credential ready", slog.String("access_token", logging.SanitizeToken(tok)))
//
// # Security Considerations
//
//   - Recipient addresses are hashed so log lines can be correlated without PII
//   - Tokens are never logged directly
package logging
