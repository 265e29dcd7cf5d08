package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/idx"
	"github.com/aussiebroadwan/labsession/pkg/jwtx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// HTTPDoer sends requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenRefresher exchanges a refresh credential for a new pair.
type TokenRefresher interface {
	RefreshGrant(ctx context.Context, refreshToken string) (*authsdk.TokenResponse, error)
}

// TokenConfig tunes the TokenManager.
type TokenConfig struct {
	// RefreshTimeout bounds one refresh call, independent of any caller.
	RefreshTimeout time.Duration
	// RefreshSkew refreshes ahead of ExpiresAt by this much. Zero disables
	// proactive refresh.
	RefreshSkew time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// RefreshFailureFunc is told which session's refresh failed. It is expected
// to end that session.
type RefreshFailureFunc func(ctx context.Context, sessionID idx.ID, cause error)

// RequestOption modifies a single Do call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	skipRefresh bool
}

// SkipRefresh makes an expired credential fail the request with
// ErrSessionExpired instead of triggering a refresh.
func SkipRefresh() RequestOption {
	return func(o *requestOptions) { o.skipRefresh = true }
}

// TokenManager attaches the held credential to outbound requests and
// refreshes it when the server says it has expired. However many requests
// see the same expiry, only one refresh call is made.
type TokenManager struct {
	store     *CredentialStore
	refresher TokenRefresher
	doer      HTTPDoer
	cfg       TokenConfig
	log       *slog.Logger
	metrics   *Metrics

	flight    singleflight.Group
	onFailure RefreshFailureFunc
}

const refreshKey = "refresh"

// NewTokenManager wires a TokenManager. metrics and logger may be nil.
func NewTokenManager(
	store *CredentialStore,
	refresher TokenRefresher,
	doer HTTPDoer,
	cfg TokenConfig,
	logger *slog.Logger,
	metrics *Metrics,
) *TokenManager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slogx.Discard()
	}
	return &TokenManager{
		store:     store,
		refresher: refresher,
		doer:      doer,
		cfg:       cfg,
		log:       logger.With("component", "token_manager"),
		metrics:   metrics,
	}
}

// OnRefreshFailure registers the hook run when a refresh fails. It runs
// once per failed refresh call, not once per waiting request.
func (m *TokenManager) OnRefreshFailure(fn RefreshFailureFunc) {
	m.onFailure = fn
}

// Credentials returns the credential pair currently held.
func (m *TokenManager) Credentials() (CredentialPair, bool) { return m.store.Credentials() }

// Authorize returns a clone of req carrying the current access credential.
// With no credential held any Authorization header is removed.
func (m *TokenManager) Authorize(req *http.Request) *http.Request {
	creds, _ := m.store.Credentials()
	r := req.Clone(req.Context())
	setBearer(r, creds.Access)
	return r
}

func setBearer(r *http.Request, access string) {
	if access == "" {
		r.Header.Del("Authorization")
		return
	}
	r.Header.Set("Authorization", "Bearer "+access)
}

type phase int

const (
	phaseSend phase = iota
	phaseReplay
)

// Do sends req with the current credential. If the server reports the
// credential expired, Do refreshes it (sharing the refresh with any other
// request in the same position) and replays req exactly once.
//
// Success and unrelated failures return the response, which the caller
// must close. Authorization problems return an error and no response.
func (m *TokenManager) Do(ctx context.Context, req *http.Request, opts ...RequestOption) (*http.Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	base, err := replayable(ctx, req)
	if err != nil {
		return nil, err
	}

	if creds, ok := m.store.Credentials(); ok && !o.skipRefresh && m.dueForRefresh(creds) {
		if err := m.refreshAfter(ctx, creds.Access); err != nil {
			return nil, err
		}
	}

	p := phaseSend
	for {
		creds, authenticated := m.store.Credentials()

		attempt, err := rewind(ctx, base)
		if err != nil {
			return nil, err
		}
		setBearer(attempt, creds.Access)

		resp, err := m.doer.Do(attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}

		outcome := Classify(resp)
		m.metrics.outcome(outcome)

		switch outcome {
		case OutcomeSuccess, OutcomeFailure:
			return resp, nil

		case OutcomeDenied:
			return nil, fmt.Errorf("%w: %w", ErrAccessDenied, consumeError(resp))

		case OutcomeExpired:
			cause := consumeError(resp)
			switch {
			case !authenticated:
				return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, cause)
			case p == phaseReplay || o.skipRefresh:
				return nil, fmt.Errorf("%w: %w", ErrSessionExpired, cause)
			}

			if err := m.refreshAfter(ctx, creds.Access); err != nil {
				return nil, err
			}
			m.metrics.replay()
			slogx.FromContext(ctx).DebugContext(ctx, "replaying request after refresh",
				"method", req.Method, "path", req.URL.Path)
			p = phaseReplay
		}
	}
}

func (m *TokenManager) dueForRefresh(creds CredentialPair) bool {
	if m.cfg.RefreshSkew <= 0 || creds.ExpiresAt.IsZero() || creds.Refresh == "" {
		return false
	}
	return !m.cfg.Now().Before(creds.ExpiresAt.Add(-m.cfg.RefreshSkew))
}

// Refresh exchanges the refresh credential now, joining a refresh that is
// already in flight if there is one.
func (m *TokenManager) Refresh(ctx context.Context) error {
	return m.shared(ctx, "")
}

// refreshAfter refreshes unless the access credential has moved on from
// stale, in which case another request already refreshed it.
func (m *TokenManager) refreshAfter(ctx context.Context, stale string) error {
	if cur, ok := m.store.Credentials(); ok && cur.Access != stale {
		return nil
	}
	return m.shared(ctx, stale)
}

func (m *TokenManager) shared(ctx context.Context, stale string) error {
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return nil, m.refresh(fctx, stale)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.metrics.refreshWaiter()
		}
		return res.Err
	}
}

// refresh performs the network call. It runs inside the single flight.
func (m *TokenManager) refresh(ctx context.Context, stale string) error {
	snap := m.store.load()
	if snap == nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNotAuthenticated)
	}
	if stale != "" && snap.Credentials.Access != stale {
		return nil
	}
	if snap.Credentials.Refresh == "" {
		return m.fail(ctx, snap.SessionID, ErrNoRefreshCredential)
	}

	log := m.log.With("session_id", snap.SessionID)
	started := m.cfg.Now()

	resp, err := m.refresher.RefreshGrant(ctx, snap.Credentials.Refresh)
	if err != nil {
		return m.fail(ctx, snap.SessionID, err)
	}
	if err := resp.Validate(); err != nil {
		return m.fail(ctx, snap.SessionID, fmt.Errorf("%w: %w", authsdk.ErrMalformedResponse, err))
	}

	creds := credentialsFromResponse(resp, m.cfg.Now())
	if _, err := m.store.Rotate(ctx, snap.SessionID, creds); err != nil {
		// Logged out while the call was in flight.
		log.InfoContext(ctx, "discarding refreshed credentials for ended session")
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.metrics.refresh("success")
	log.DebugContext(ctx, "credentials refreshed",
		"rotated", resp.RefreshToken != "",
		"expires_at", creds.ExpiresAt,
		"took", m.cfg.Now().Sub(started))
	return nil
}

func (m *TokenManager) fail(ctx context.Context, sessionID idx.ID, cause error) error {
	m.metrics.refresh("failure")
	m.log.WarnContext(ctx, "credential refresh failed", "session_id", sessionID, "error", cause)
	if m.onFailure != nil {
		m.onFailure(ctx, sessionID, cause)
	}
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}

// credentialsFromResponse builds a pair from a token response. Expiry comes
// from expires_in, or failing that the exp claim of a JWT access token.
func credentialsFromResponse(resp *authsdk.TokenResponse, now time.Time) CredentialPair {
	creds := CredentialPair{Access: resp.AccessToken, Refresh: resp.RefreshToken}
	if resp.ExpiresIn > 0 {
		creds.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else {
		creds.ExpiresAt = jwtx.UnverifiedExpiry(resp.AccessToken)
	}
	return creds
}

// replayable returns a copy of req whose body can be read more than once.
func replayable(ctx context.Context, req *http.Request) (*http.Request, error) {
	base := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return base, nil
	}

	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("session: buffer request body: %w", err)
	}
	base.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	base.ContentLength = int64(len(buf))
	return base, nil
}

func rewind(ctx context.Context, base *http.Request) (*http.Request, error) {
	r := base.Clone(ctx)
	if base.GetBody != nil {
		body, err := base.GetBody()
		if err != nil {
			return nil, fmt.Errorf("session: rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

// consumeError reads and closes the body of a rejected response, returning
// the typed error it carries.
func consumeError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	err := authsdk.ParseErrorResponse(resp, body)
	if err == nil {
		err = errors.New(resp.Status)
	}
	return err
}
