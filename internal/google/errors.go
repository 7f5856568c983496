package google

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCorruptRecord is returned by a TokenStore when a stored credential
// exists but cannot be parsed.
var ErrCorruptRecord = errors.New("corrupt credential record")

// SetupError reports a missing or unusable OAuth client configuration.
// It is not retried; the message tells the user how to fix it.
type SetupError struct {
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no usable OAuth client configuration at %s", e.Path)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	b.WriteString("\n\nSetup instructions:\n")
	b.WriteString("1. Go to https://console.cloud.google.com/apis/credentials\n")
	b.WriteString("2. Create an OAuth 2.0 Client ID (Desktop app)\n")
	b.WriteString("3. Download the JSON and save it as:\n")
	fmt.Fprintf(&b, "   %s", e.Path)
	return b.String()
}

func (e *SetupError) Unwrap() error { return e.Err }

// AuthorizationError reports that a usable credential could not be obtained
// during this invocation.
type AuthorizationError struct {
	// Stage is the step that failed, e.g. "grant" or "scope check".
	Stage string
	Err   error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed (%s): %v", e.Stage, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
