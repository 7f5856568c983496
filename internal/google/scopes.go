package google

import (
	"sort"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Mode selects which operations the credential must cover.
type Mode int

const (
	// ModeRead covers listing and reading messages and labels.
	ModeRead Mode = iota
	// ModeSend covers sending, which also reads when replying.
	ModeSend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeSend:
		return "send"
	default:
		return "unknown"
	}
}

// ScopeSet is an immutable, sorted, de-duplicated set of OAuth scopes.
// The zero value is the empty set.
type ScopeSet struct {
	scopes []string
}

// NewScopeSet builds a set from the given scopes, dropping blanks and duplicates.
func NewScopeSet(scopes ...string) ScopeSet {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return ScopeSet{scopes: out}
}

// ParseScopeSet parses a space separated scope string as returned by the
// token endpoint.
func ParseScopeSet(s string) ScopeSet {
	return NewScopeSet(strings.Fields(s)...)
}

// Contains reports whether scope is in the set.
func (s ScopeSet) Contains(scope string) bool {
	i := sort.SearchStrings(s.scopes, scope)
	return i < len(s.scopes) && s.scopes[i] == scope
}

// Union returns a new set holding the scopes of both sets.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	return NewScopeSet(append(s.Slice(), other.scopes...)...)
}

// Slice returns a copy of the scopes in sorted order.
func (s ScopeSet) Slice() []string {
	out := make([]string, len(s.scopes))
	copy(out, s.scopes)
	return out
}

// Len returns the number of scopes.
func (s ScopeSet) Len() int { return len(s.scopes) }

// IsEmpty reports whether the set has no scopes.
func (s ScopeSet) IsEmpty() bool { return len(s.scopes) == 0 }

func (s ScopeSet) String() string { return strings.Join(s.scopes, " ") }

// IsSufficient reports whether granted covers every scope in required.
func IsSufficient(granted, required ScopeSet) bool {
	return MissingScopes(granted, required).IsEmpty()
}

// MissingScopes returns required minus granted.
func MissingScopes(granted, required ScopeSet) ScopeSet {
	var missing []string
	for _, s := range required.scopes {
		if !granted.Contains(s) {
			missing = append(missing, s)
		}
	}
	return NewScopeSet(missing...)
}

var (
	readScopes = NewScopeSet(gmail.GmailReadonlyScope)
	sendScopes = NewScopeSet(gmail.GmailReadonlyScope, gmail.GmailSendScope)
)

// ScopesFor returns the scopes a credential needs for the given mode.
func ScopesFor(mode Mode) ScopeSet {
	if mode == ModeSend {
		return sendScopes
	}
	return readScopes
}
