package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/gmailcli/internal/instrumentation"
	"github.com/teemow/gmailcli/internal/logging"
)

// State is a step of credential acquisition.
type State int

const (
	StateStart State = iota
	StateNoCredential
	StateLoaded
	StateScopeInsufficient
	StateExpired
	StateValid
	StateRefreshFailed
	StateReauthorizationRequired
)

var stateNames = map[State]string{
	StateStart:                   "start",
	StateNoCredential:            "no_credential",
	StateLoaded:                  "loaded",
	StateScopeInsufficient:       "scope_insufficient",
	StateExpired:                 "expired",
	StateValid:                   "valid",
	StateRefreshFailed:           "refresh_failed",
	StateReauthorizationRequired: "reauthorization_required",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultExpiryLeeway treats tokens this close to expiry as expired.
const DefaultExpiryLeeway = time.Minute

// maxTransitions guards against a transition table that never reaches
// StateValid.
const maxTransitions = 16

// Acquisition is the outcome of a completed acquisition.
type Acquisition struct {
	Credential *Credential

	// Path lists the visited states, ending in StateValid.
	Path []State

	// Changed is true when the credential was refreshed or newly granted.
	Changed bool
}

// Route summarizes how the credential was obtained: "cached", "refreshed"
// or "reauthorized".
func (a *Acquisition) Route() string {
	for _, s := range a.Path {
		if s == StateReauthorizationRequired {
			return instrumentation.AcquisitionReauthorized
		}
	}
	if a.Changed {
		return instrumentation.AcquisitionRefreshed
	}
	return instrumentation.AcquisitionCached
}

// PathString renders the visited states as "start -> loaded -> valid".
func (a *Acquisition) PathString() string {
	names := make([]string, len(a.Path))
	for i, s := range a.Path {
		names[i] = s.String()
	}
	return strings.Join(names, " -> ")
}

// acquisition is the mutable state threaded through the transitions.
type acquisition struct {
	required ScopeSet
	// previous remembers scopes held by a discarded credential so a new
	// grant does not silently drop them.
	previous ScopeSet
	cred     *Credential
	changed  bool
}

type transition func(ctx context.Context, a *acquisition) (State, error)

// Manager produces usable credentials: it loads the stored one, checks
// scopes and expiry, refreshes or re-authorizes as needed and persists any
// new credential.
type Manager struct {
	store      TokenStore
	refresher  Refresher
	authorizer Authorizer

	leeway  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	transitions map[State]transition
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExpiryLeeway sets how close to expiry a token counts as expired.
func WithExpiryLeeway(d time.Duration) ManagerOption {
	return func(m *Manager) { m.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager.
func NewManager(store TokenStore, refresher Refresher, authorizer Authorizer, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		refresher:  refresher,
		authorizer: authorizer,
		leeway:     DefaultExpiryLeeway,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.transitions = map[State]transition{
		StateStart:                   m.load,
		StateNoCredential:            reauthorize,
		StateLoaded:                  m.inspect,
		StateScopeInsufficient:       discard,
		StateExpired:                 m.refresh,
		StateRefreshFailed:           discard,
		StateReauthorizationRequired: m.authorize,
	}
	return m
}

// Acquire returns a credential that covers required and is not expired.
func (m *Manager) Acquire(ctx context.Context, required ScopeSet) (*Credential, error) {
	a, err := m.Run(ctx, required)
	if err != nil {
		return nil, err
	}
	return a.Credential, nil
}

// Run drives the state machine to StateValid and reports the path taken.
func (m *Manager) Run(ctx context.Context, required ScopeSet) (*Acquisition, error) {
	ctx, span := instrumentation.StartSpan(ctx, "credential.acquire",
		attribute.String(instrumentation.SpanAttrScopes, required.String()))
	defer span.End()

	logger := logging.WithOperation(m.logger, "credential.acquire")

	a := &acquisition{required: required}
	state := StateStart
	path := []State{state}

	for state != StateValid {
		if len(path) > maxTransitions {
			err := fmt.Errorf("credential acquisition did not settle after %d transitions", maxTransitions)
			instrumentation.SetSpanError(span, err)
			return nil, err
		}
		step, ok := m.transitions[state]
		if !ok {
			return nil, fmt.Errorf("no transition defined for state %s", state)
		}
		next, err := step(ctx, a)
		if err != nil {
			instrumentation.SetSpanError(span, err)
			m.metrics.RecordCredentialAcquisition(ctx, routeOf(path, a.changed), instrumentation.StatusError)
			logger.Debug("credential acquisition failed",
				logging.State(state.String()),
				logging.Err(err),
				logging.TraceID(instrumentation.GetTraceID(ctx)))
			return nil, err
		}
		logger.Debug("credential transition", slog.String("from", state.String()), slog.String("to", next.String()))
		instrumentation.AddSpanEvent(span, next.String())
		state = next
		path = append(path, state)
	}

	if a.changed {
		if err := m.store.Save(a.cred); err != nil {
			// The credential is still usable for this invocation.
			logger.Warn("failed to persist credential", logging.Err(err))
		}
	}

	result := &Acquisition{Credential: a.cred, Path: path, Changed: a.changed}
	m.metrics.RecordCredentialAcquisition(ctx, result.Route(), instrumentation.StatusSuccess)
	instrumentation.SetSpanSuccess(span)
	logger.Debug("credential ready",
		slog.String("route", result.Route()),
		logging.Scopes(a.cred.Scopes.String()),
		slog.String("access_token", logging.SanitizeToken(a.cred.AccessToken)))
	return result, nil
}

func routeOf(path []State, changed bool) string {
	return (&Acquisition{Path: path, Changed: changed}).Route()
}

func (m *Manager) load(_ context.Context, a *acquisition) (State, error) {
	cred, err := m.store.Load()
	if errors.Is(err, ErrCorruptRecord) {
		m.logger.Warn("stored credential is unreadable, re-authorizing", logging.Err(err))
		return StateNoCredential, nil
	}
	if err != nil {
		return StateStart, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return StateNoCredential, nil
	}
	a.cred = cred
	return StateLoaded, nil
}

// inspect checks scopes before expiry: a credential with the wrong scopes
// is never refreshed.
func (m *Manager) inspect(_ context.Context, a *acquisition) (State, error) {
	if missing := MissingScopes(a.cred.Scopes, a.required); !missing.IsEmpty() {
		m.logger.Info("stored credential lacks required scopes", logging.Scopes(missing.String()))
		return StateScopeInsufficient, nil
	}
	if a.cred.Expired(m.now(), m.leeway) {
		return StateExpired, nil
	}
	return StateValid, nil
}

func (m *Manager) refresh(ctx context.Context, a *acquisition) (State, error) {
	if !a.cred.HasRefreshToken() {
		a.previous = a.cred.Scopes
		a.cred = nil
		return StateReauthorizationRequired, nil
	}
	refreshed, err := m.refresher.Refresh(ctx, a.cred)
	if err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		m.logger.Warn("token refresh failed, re-authorizing", logging.Err(err))
		return StateRefreshFailed, nil
	}
	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	a.cred = refreshed
	a.changed = true
	if !IsSufficient(refreshed.Scopes, a.required) {
		return StateScopeInsufficient, nil
	}
	return StateValid, nil
}

// discard drops the current credential so its refresh token is not reused.
func discard(_ context.Context, a *acquisition) (State, error) {
	if a.cred != nil {
		a.previous = a.previous.Union(a.cred.Scopes)
		a.cred = nil
	}
	return StateReauthorizationRequired, nil
}

func reauthorize(_ context.Context, _ *acquisition) (State, error) {
	return StateReauthorizationRequired, nil
}

func (m *Manager) authorize(ctx context.Context, a *acquisition) (State, error) {
	scopes := a.required.Union(a.previous)
	cred, err := m.authorizer.Authorize(ctx, scopes)
	if err != nil {
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		var setupErr *SetupError
		if errors.As(err, &setupErr) {
			return StateReauthorizationRequired, setupErr
		}
		return StateReauthorizationRequired, &AuthorizationError{Stage: "grant", Err: err}
	}
	if missing := MissingScopes(cred.Scopes, a.required); !missing.IsEmpty() {
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return StateReauthorizationRequired, &AuthorizationError{
			Stage: "scope check",
			Err:   fmt.Errorf("granted credential is missing scopes: %s", missing),
		}
	}
	m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	a.cred = cred
	a.changed = true
	return StateValid, nil
}
