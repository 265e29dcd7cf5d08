package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/idx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// AuthClient is the authentication service as the controller uses it.
// *authsdk.SDKClient satisfies it.
type AuthClient interface {
	TokenRefresher
	PasswordGrant(ctx context.Context, username, password string) (*authsdk.TokenResponse, error)
	MFAOTPGrant(ctx context.Context, challenge authsdk.MFARequiredError, method, code string) (*authsdk.TokenResponse, error)
	GetProfile(ctx context.Context, accessToken string) (*authsdk.PrincipalResponse, error)
	RevokeToken(ctx context.Context, token string) error
}

// LogoutReason says why a session ended.
type LogoutReason string

const (
	LogoutExplicit      LogoutReason = "explicit"
	LogoutIdle          LogoutReason = "idle"
	LogoutRefreshFailed LogoutReason = "refresh_failed"
)

// Config tunes a Controller.
type Config struct {
	IdleTime    time.Duration
	WarningTime time.Duration

	RefreshTimeout time.Duration
	RefreshSkew    time.Duration

	// LoginAttemptsPerMinute throttles Login locally. Zero disables it.
	LoginAttemptsPerMinute int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to discarding.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// WithMetrics records session metrics to m.
func WithMetrics(m *Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithNotifier sets where user-visible notifications go.
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithActivity attaches an external activity source to every idle monitor
// the controller starts.
func WithActivity(ch <-chan struct{}) Option { return func(c *Controller) { c.activity = ch } }

// Controller is the application-facing entry point: it logs users in and
// out, answers permission questions, and sends authorized requests.
type Controller struct {
	cfg      Config
	store    *CredentialStore
	auth     AuthClient
	tokens   *TokenManager
	notifier Notifier
	metrics  *Metrics
	log      *slog.Logger
	limiter  *rate.Limiter
	activity <-chan struct{}

	mu   sync.Mutex // guards idle
	idle *IdleMonitor
}

// NewController wires a controller around store. doer sends application
// requests; auth talks to the authentication service.
func NewController(store *CredentialStore, auth AuthClient, doer HTTPDoer, cfg Config, opts ...Option) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		cfg:      cfg,
		store:    store,
		auth:     auth,
		notifier: nopNotifier{},
		log:      slogx.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "session")
	if cfg.LoginAttemptsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.LoginAttemptsPerMinute)), cfg.LoginAttemptsPerMinute)
	}

	c.tokens = NewTokenManager(store, auth, doer, TokenConfig{
		RefreshTimeout: cfg.RefreshTimeout,
		RefreshSkew:    cfg.RefreshSkew,
		Now:            cfg.Now,
	}, c.log, c.metrics)
	c.tokens.OnRefreshFailure(c.onRefreshFailure)
	return c
}

// Tokens exposes the token manager for callers that need Authorize or Refresh.
func (c *Controller) Tokens() *TokenManager { return c.tokens }

// Login authenticates with a username and password and starts a session.
// Nothing is installed unless it succeeds.
func (c *Controller) Login(ctx context.Context, username, password string) (Snapshot, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.login("throttled")
		return Snapshot{}, ErrTooManyAttempts
	}

	resp, err := c.auth.PasswordGrant(ctx, username, password)
	if err != nil {
		err = classifyLoginError(err)
		c.metrics.login(loginResult(err))
		c.log.InfoContext(ctx, "login failed", "username", username, "error", err)
		return Snapshot{}, err
	}
	return c.establish(ctx, resp)
}

// CompleteMFA answers an MFA challenge returned by Login.
func (c *Controller) CompleteMFA(ctx context.Context, challenge *authsdk.MFARequiredError, method, code string) (Snapshot, error) {
	if challenge == nil {
		return Snapshot{}, fmt.Errorf("%w: no MFA challenge", ErrAuthenticationFailed)
	}
	resp, err := c.auth.MFAOTPGrant(ctx, *challenge, method, code)
	if err != nil {
		err = classifyLoginError(err)
		c.metrics.login(loginResult(err))
		return Snapshot{}, err
	}
	return c.establish(ctx, resp)
}

func (c *Controller) establish(ctx context.Context, resp *authsdk.TokenResponse) (Snapshot, error) {
	if err := resp.Validate(); err != nil {
		c.metrics.login("failure")
		return Snapshot{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	var principal Principal
	if resp.Principal != nil {
		principal = PrincipalFromResponse(resp.Principal)
	} else {
		profile, err := c.auth.GetProfile(ctx, resp.AccessToken)
		if err != nil {
			err = classifyLoginError(err)
			c.metrics.login(loginResult(err))
			return Snapshot{}, err
		}
		principal = PrincipalFromResponse(profile)
	}

	c.stopIdle()
	snap := c.store.Install(ctx, credentialsFromResponse(resp, c.cfg.Now()), principal)
	c.startIdle(snap.SessionID)

	c.metrics.login("success")
	c.metrics.loggedIn()
	c.log.InfoContext(ctx, "logged in", "session_id", snap.SessionID, "user_id", principal.ID)
	return snap, nil
}

func classifyLoginError(err error) error {
	var mfa *authsdk.MFARequiredError
	if errors.As(err, &mfa) {
		return fmt.Errorf("%w: %w", ErrMFARequired, mfa)
	}
	if errors.Is(err, authsdk.ErrTransport) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	var oauthErr *authsdk.OAuth2Error
	if errors.As(err, &oauthErr) && oauthErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrTooManyAttempts, err)
	}
	return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, ErrMFARequired):
		return "mfa_required"
	case errors.Is(err, ErrTooManyAttempts):
		return "throttled"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	default:
		return "failure"
	}
}

// Restore rehydrates a persisted session at start-up.
func (c *Controller) Restore(ctx context.Context) bool {
	snap, ok := c.store.Load(ctx)
	if !ok {
		return false
	}
	c.stopIdle()
	c.startIdle(snap.SessionID)
	c.metrics.loggedIn()
	c.log.InfoContext(ctx, "session restored", "session_id", snap.SessionID, "user_id", snap.Principal.ID)
	return true
}

// Logout ends the session, revoking the refresh credential on a best-effort
// basis. Unless silent, the user is told they have been signed out.
func (c *Controller) Logout(ctx context.Context, silent bool) {
	c.stopIdle()
	prev, ok := c.store.Clear(ctx)
	if !ok {
		return
	}
	c.metrics.loggedOut(LogoutExplicit)
	c.log.InfoContext(ctx, "logged out", "session_id", prev.SessionID)

	if prev.Credentials.Refresh != "" {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.tokens.cfg.RefreshTimeout)
		if err := c.auth.RevokeToken(rctx, prev.Credentials.Refresh); err != nil {
			c.log.WarnContext(ctx, "revoke refresh token failed", "session_id", prev.SessionID, "error", err)
		}
		cancel()
	}

	if !silent {
		c.notifier.Notify(Notification{
			Kind:     KindLoggedOut,
			Severity: SeveritySuccess,
			Message:  "You have been signed out.",
		})
	}
}

// Detach stops idle monitoring without ending the session, for process
// shutdown. The persisted session can be restored later.
func (c *Controller) Detach() { c.stopIdle() }

func (c *Controller) onRefreshFailure(ctx context.Context, id idx.ID, cause error) {
	if !c.endSession(ctx, id, LogoutRefreshFailed) {
		return
	}
	c.notifier.Notify(Notification{
		Kind:     KindSessionExpired,
		Severity: SeverityWarning,
		Message:  "Your session has expired, please sign in again.",
	})
}

// endSession clears session id if it is still current and stops its monitor.
func (c *Controller) endSession(ctx context.Context, id idx.ID, reason LogoutReason) bool {
	if _, ok := c.store.ClearSession(ctx, id); !ok {
		return false
	}
	c.stopIdle()
	c.metrics.loggedOut(reason)
	c.log.InfoContext(ctx, "session ended", "session_id", id, "reason", reason)
	return true
}

func (c *Controller) startIdle(id idx.ID) {
	if c.cfg.IdleTime <= 0 {
		return
	}

	var m *IdleMonitor
	m = NewIdleMonitor(IdleConfig{
		IdleTime:    c.cfg.IdleTime,
		WarningTime: c.cfg.WarningTime,
		Activity:    c.activity,
		OnWarning: func(deadline time.Time) {
			c.notifier.Notify(Notification{
				Kind:     KindIdleWarning,
				Severity: SeverityWarning,
				Message:  "You will be signed out soon due to inactivity.",
				Deadline: deadline,
			})
		},
		OnExpired: func() {
			c.mu.Lock()
			current := c.idle == m
			if current {
				c.idle = nil
			}
			c.mu.Unlock()
			if current {
				c.endSession(context.Background(), id, LogoutIdle)
			}
		},
	})

	c.mu.Lock()
	c.idle = m
	c.mu.Unlock()
	m.Start()
}

func (c *Controller) stopIdle() {
	c.mu.Lock()
	m := c.idle
	c.idle = nil
	c.mu.Unlock()
	if m != nil {
		m.Stop()
	}
}

func (c *Controller) currentIdle() *IdleMonitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// RecordActivity tells the idle monitor the user did something.
func (c *Controller) RecordActivity() {
	if m := c.currentIdle(); m != nil {
		m.Touch()
	}
}

// ExtendSession dismisses an idle warning and restarts the idle timer.
func (c *Controller) ExtendSession() {
	if m := c.currentIdle(); m != nil {
		m.Extend()
	}
}

// IdleState reports the idle state of the current session; false if there
// is no monitored session.
func (c *Controller) IdleState() (IdleState, bool) {
	m := c.currentIdle()
	if m == nil {
		return IdleExpired, false
	}
	return m.State(), true
}

// IsAuthenticated reports whether a session is held.
func (c *Controller) IsAuthenticated() bool { return c.store.IsAuthenticated() }

// Principal returns a copy of the current principal.
func (c *Controller) Principal() (Principal, bool) { return c.store.Principal() }

// Can reports whether the current principal holds ref now.
func (c *Controller) Can(ref CapabilityRef) bool {
	snap := c.store.load()
	if snap == nil {
		return false
	}
	return HasCapability(&snap.Principal, ref, c.cfg.Now())
}

// CanAll reports whether the current principal holds every ref now.
func (c *Controller) CanAll(refs ...CapabilityRef) bool {
	snap := c.store.load()
	if snap == nil {
		return false
	}
	return HasAllCapabilities(&snap.Principal, c.cfg.Now(), refs...)
}

// CanAny reports whether the current principal holds at least one ref now.
func (c *Controller) CanAny(refs ...CapabilityRef) bool {
	snap := c.store.load()
	if snap == nil {
		return false
	}
	return HasAnyCapability(&snap.Principal, c.cfg.Now(), refs...)
}

// IsInRole reports whether the current principal has the named role.
func (c *Controller) IsInRole(name string) bool {
	snap := c.store.load()
	if snap == nil {
		return false
	}
	return IsInRole(&snap.Principal, name)
}

// Request checks required capabilities locally, then sends req with the
// session credential. A missing capability fails with ErrAccessDenied
// without touching the network.
func (c *Controller) Request(ctx context.Context, req *http.Request, required ...CapabilityRef) (*http.Response, error) {
	snap := c.store.load()
	if snap == nil {
		return nil, ErrNotAuthenticated
	}

	now := c.cfg.Now()
	var missing []string
	for _, ref := range required {
		if !HasCapability(&snap.Principal, ref, now) {
			missing = append(missing, ref.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrAccessDenied, strings.Join(missing, ", "))
	}

	ctx = slogx.WithSessionID(ctx, snap.SessionID.String())
	return c.tokens.Do(ctx, req)
}

// RefreshProfile re-fetches the principal and replaces it wholesale. An
// expired credential is refreshed and the fetch retried once.
func (c *Controller) RefreshProfile(ctx context.Context) (Principal, error) {
	for attempt := 0; ; attempt++ {
		snap := c.store.load()
		if snap == nil {
			return Principal{}, ErrNotAuthenticated
		}

		profile, err := c.auth.GetProfile(ctx, snap.Credentials.Access)
		if err == nil {
			p := PrincipalFromResponse(profile)
			if err := c.store.ReplacePrincipal(ctx, snap.SessionID, p); err != nil {
				return Principal{}, err
			}
			return p, nil
		}

		if errors.Is(err, authsdk.ErrTransport) {
			return Principal{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		var oauthErr *authsdk.OAuth2Error
		if !errors.As(err, &oauthErr) {
			return Principal{}, err
		}
		switch outcomeOf(oauthErr) {
		case OutcomeDenied:
			return Principal{}, fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case OutcomeExpired:
			if attempt > 0 {
				return Principal{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
			}
			if err := c.tokens.refreshAfter(ctx, snap.Credentials.Access); err != nil {
				return Principal{}, err
			}
		default:
			return Principal{}, err
		}
	}
}

// outcomeOf classifies an already-parsed error response.
func outcomeOf(e *authsdk.OAuth2Error) Outcome {
	h := http.Header{}
	h.Set("WWW-Authenticate", `Bearer error="`+e.Code+`"`)
	return Classify(&http.Response{StatusCode: e.StatusCode, Header: h})
}
