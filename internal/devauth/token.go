package devauth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/cryptox"
	"github.com/aussiebroadwan/labsession/pkg/idx"
	"github.com/aussiebroadwan/labsession/pkg/jwtx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

const (
	// MaxMFAAttempts is the maximum number of failed MFA attempts allowed per challenge.
	MaxMFAAttempts = 5

	DefaultMFATTL = 5 * time.Minute

	AMRPassword = "pwd"
	AMRMFA      = "mfa"
	AMRRefresh  = "refresh"
)

var (
	ErrInvalidClient   = errors.New("invalid_client")
	ErrInvalidRefresh  = errors.New("invalid_refresh_token")
	ErrInvalidGrant    = errors.New("invalid_grant")
	ErrTooManyAttempts = errors.New("too_many_attempts")
)

type refreshRecord struct {
	UserID    string
	ClientID  string
	SessionID string
	AMR       []string
	ExpiresAt time.Time
	Revoked   bool
}

type mfaChallenge struct {
	UserID    string
	ClientID  string
	SessionID string
	Attempts  int
	ExpiresAt time.Time
}

// TokenService issues EdDSA access tokens and rotating opaque refresh tokens
// for users in a Directory. Refresh tokens are held by fingerprint only.
type TokenService struct {
	Directory  *Directory
	Signer     jwtx.Signer
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	MFATTL     time.Duration
	// ClientIDs restricts which clients may request tokens. Empty allows any.
	ClientIDs []string
	// InlinePrincipal includes the principal in token responses.
	InlinePrincipal bool
	Now             func() time.Time

	mu      sync.Mutex
	refresh map[string]*refreshRecord // by fingerprint
	mfa     map[string]*mfaChallenge  // by fingerprint
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) checkClient(clientID string) error {
	if clientID == "" {
		return ErrInvalidClient
	}
	if len(s.ClientIDs) > 0 && !slices.Contains(s.ClientIDs, clientID) {
		return ErrInvalidClient
	}
	return nil
}

// PasswordGrant implements the resource-owner password grant. Users with a
// TOTP secret get an MFA challenge instead of tokens.
func (s *TokenService) PasswordGrant(ctx context.Context, clientID, username, password string) (*authsdk.TokenResponse, error) {
	l := slogx.FromContext(ctx)
	if err := s.checkClient(clientID); err != nil {
		return nil, err
	}

	u, err := s.Directory.Authenticate(username, password)
	if err != nil {
		l.Info("password grant failed", slog.String("username", username))
		return nil, err
	}

	sessionID := idx.New().String()
	if u.MFASecret != "" {
		token, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.mfaChallenges()[cryptox.FingerprintToken(token)] = &mfaChallenge{
			UserID:    u.ID,
			ClientID:  clientID,
			SessionID: sessionID,
			ExpiresAt: s.now().Add(s.mfaTTL()),
		}
		s.mu.Unlock()
		return nil, &authsdk.MFARequiredError{MFAToken: token, Methods: []string{"totp"}}
	}

	return s.issue(u, clientID, sessionID, []string{AMRPassword})
}

// ExchangeMFAOTP completes a password grant that was answered with an MFA
// challenge.
func (s *TokenService) ExchangeMFAOTP(ctx context.Context, clientID, mfaToken, method, otpCode string) (*authsdk.TokenResponse, error) {
	l := slogx.FromContext(ctx)
	fp := cryptox.FingerprintToken(mfaToken)

	s.mu.Lock()
	ch, ok := s.mfaChallenges()[fp]
	if !ok || s.now().After(ch.ExpiresAt) || ch.ClientID != clientID {
		s.mu.Unlock()
		return nil, ErrInvalidGrant
	}
	if ch.Attempts >= MaxMFAAttempts {
		delete(s.mfa, fp)
		s.mu.Unlock()
		l.Warn("MFA challenge exceeded max attempts", "attempts", ch.Attempts)
		return nil, ErrTooManyAttempts
	}
	challenge := *ch
	s.mu.Unlock()

	if method != "totp" {
		return nil, ErrInvalidGrant
	}

	u, err := s.Directory.UserByID(challenge.UserID)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if u.MFASecret == "" || !totp.Validate(otpCode, u.MFASecret) {
		s.mu.Lock()
		if ch, ok := s.mfa[fp]; ok {
			ch.Attempts++
		}
		s.mu.Unlock()
		l.Warn("MFA validation failed", "method", method)
		return nil, ErrInvalidGrant
	}

	s.mu.Lock()
	delete(s.mfa, fp)
	s.mu.Unlock()
	return s.issue(u, clientID, challenge.SessionID, []string{AMRPassword, AMRMFA})
}

// ExchangeRefreshToken rotates a refresh token: the presented one is revoked
// and a new pair is issued for the same session.
func (s *TokenService) ExchangeRefreshToken(ctx context.Context, clientID, refreshOpaque string) (*authsdk.TokenResponse, error) {
	fp := cryptox.FingerprintToken(refreshOpaque)

	s.mu.Lock()
	rt, ok := s.refreshTokens()[fp]
	if !ok || rt.Revoked || !s.now().Before(rt.ExpiresAt) {
		s.mu.Unlock()
		return nil, ErrInvalidRefresh
	}
	if rt.ClientID != clientID {
		s.mu.Unlock()
		return nil, ErrInvalidClient
	}
	rt.Revoked = true
	record := *rt
	s.mu.Unlock()

	u, err := s.Directory.UserByID(record.UserID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	amr := slices.Clone(record.AMR)
	if !slices.Contains(amr, AMRRefresh) {
		amr = append(amr, AMRRefresh)
	}
	slogx.FromContext(ctx).Debug("refresh token rotated", "session_id", record.SessionID)
	return s.issue(u, clientID, record.SessionID, amr)
}

// RevokeRefreshToken revokes a single refresh token. Unknown tokens are not
// an error.
func (s *TokenService) RevokeRefreshToken(_ context.Context, refreshOpaque string) {
	fp := cryptox.FingerprintToken(refreshOpaque)
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.refreshTokens()[fp]; ok {
		rt.Revoked = true
	}
}

// RevokeUserSessions revokes every refresh token held for userID and
// returns how many were live.
func (s *TokenService) RevokeUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rt := range s.refreshTokens() {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			n++
		}
	}
	return n
}

// DeleteExpired drops expired or revoked refresh tokens and expired MFA
// challenges, returning how many records were removed.
func (s *TokenService) DeleteExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for fp, rt := range s.refresh {
		if rt.Revoked || !now.Before(rt.ExpiresAt) {
			delete(s.refresh, fp)
			n++
		}
	}
	for fp, ch := range s.mfa {
		if now.After(ch.ExpiresAt) {
			delete(s.mfa, fp)
			n++
		}
	}
	return n
}

// Outstanding counts the refresh tokens and MFA challenges still held.
func (s *TokenService) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh) + len(s.mfa)
}

func (s *TokenService) issue(u User, clientID, sessionID string, amr []string) (*authsdk.TokenResponse, error) {
	now := s.now()
	access, err := s.signAccess(u, clientID, sessionID, amr, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.refreshTokens()[cryptox.FingerprintToken(refreshOpaque)] = &refreshRecord{
		UserID:    u.ID,
		ClientID:  clientID,
		SessionID: sessionID,
		AMR:       amr,
		ExpiresAt: now.Add(s.refreshTTL()),
	}
	s.mu.Unlock()

	caps := u.activeCapabilities(now)
	resp := &authsdk.TokenResponse{
		AccessToken:  access,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTTL().Seconds()),
		Scope:        strings.Join(caps, " "),
	}
	if s.InlinePrincipal {
		resp.Principal = u.principal()
	}
	return resp, nil
}

func (s *TokenService) signAccess(u User, clientID, sessionID string, amr []string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,
		sessionID,
		u.activeCapabilities(now),
		u.Roles,
		amr,
		s.accessTTL(),
		s.Issuer,
		[]string{clientID},
		u.Username,
		u.DisplayName,
		now,
	)
	return s.Signer.Sign(claims)
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

func (s *TokenService) mfaTTL() time.Duration {
	if s.MFATTL > 0 {
		return s.MFATTL
	}
	return DefaultMFATTL
}

// refreshTokens and mfaChallenges lazily allocate; callers hold s.mu.
func (s *TokenService) refreshTokens() map[string]*refreshRecord {
	if s.refresh == nil {
		s.refresh = map[string]*refreshRecord{}
	}
	return s.refresh
}

func (s *TokenService) mfaChallenges() map[string]*mfaChallenge {
	if s.mfa == nil {
		s.mfa = map[string]*mfaChallenge{}
	}
	return s.mfa
}
