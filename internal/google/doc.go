// Package google manages the OAuth credential used to call the Gmail API.
//
// The Manager runs an explicit state machine over a stored credential:
//
//	start -> loaded -> valid
//	start -> loaded -> expired -> valid                      (refresh)
//	start -> loaded -> scope_insufficient -> reauthorization_required -> valid
//	start -> no_credential -> reauthorization_required -> valid
//	... -> expired -> refresh_failed -> reauthorization_required -> valid
//
// Scopes are checked before expiry. A credential missing a required scope is
// discarded and never refreshed, because a refresh token cannot be widened to
// new scopes. Any credential obtained by refresh or re-authorization is saved
// through the TokenStore before Acquire returns.
//
// Credentials are stored as JSON (FileTokenStore) or in the OS keyring
// (KeyringTokenStore). New credentials come from the LocalServerAuthorizer,
// which runs the installed-app flow against a loopback redirect.
package google
