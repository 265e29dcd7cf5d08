// Package devauth is a small in-memory authentication backend for local
// development and integration tests. It speaks the same wire protocol the
// session controller expects: password, refresh and MFA grants, revocation,
// a profile endpoint and a capability-gated probe resource.
package devauth

import (
	"log/slog"
	"time"

	"github.com/aussiebroadwan/labsession/pkg/httpx"
	"github.com/aussiebroadwan/labsession/pkg/jwtx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

const DefaultIssuer = "labsession-dev"

type Config struct {
	Issuer     string
	ClientID   string // empty accepts any client
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// InlinePrincipal returns the principal with every token response.
	InlinePrincipal bool

	TokenLimit           httpx.RateLimitConfig
	HousekeepingInterval time.Duration
	Version              string

	// Now defaults to time.Now. Tests move it forward to expire tokens.
	Now func() time.Time
}

// Server bundles the directory, token service and router.
type Server struct {
	Directory *Directory
	Tokens    *TokenService
	Router    *Router
	Verifier  *jwtx.EdDSAVerifier

	housekeeping *Housekeeping
}

func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slogx.Discard()
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TokenLimit.RequestsPerWindow == 0 {
		cfg.TokenLimit = httpx.StrictLimit
	}

	dir, err := NewDirectory()
	if err != nil {
		return nil, err
	}
	signer, err := jwtx.GenerateSignerEdDSA("dev-" + time.Now().UTC().Format("20060102"))
	if err != nil {
		return nil, err
	}

	tokens := &TokenService{
		Directory:       dir,
		Signer:          signer,
		Issuer:          cfg.Issuer,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		InlinePrincipal: cfg.InlinePrincipal,
		Now:             cfg.Now,
	}
	if cfg.ClientID != "" {
		tokens.ClientIDs = []string{cfg.ClientID}
	}

	verifier := jwtx.NewVerifierEdDSA(signer.KID(), signer.PublicKey(), cfg.Issuer, nil)
	verifier.Now = cfg.Now

	router := NewRouter(dir, tokens, verifier, cfg.Version, cfg.TokenLimit, logger)
	router.ApplyRoutes()

	return &Server{
		Directory:    dir,
		Tokens:       tokens,
		Router:       router,
		Verifier:     verifier,
		housekeeping: NewHousekeeping(tokens, logger, cfg.HousekeepingInterval),
	}, nil
}

// Start launches background housekeeping.
func (s *Server) Start() { s.housekeeping.Start() }

func (s *Server) Stop() { s.housekeeping.Stop() }
