// Package cmd implements the command-line interface for gmailcli.
//
// This package provides the following commands:
//   - read: List messages, read a single message or list labels (default)
//   - send: Send a plain-text message or a threaded reply
//   - auth status: Show the stored credential without network access
//   - auth login: Acquire a credential, refreshing or re-authorizing as needed
//   - version: Display version information
//
// The read command is the default command when no subcommand is specified.
package cmd
