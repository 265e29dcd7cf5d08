package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/labsession/internal/devauth"
	"github.com/aussiebroadwan/labsession/pkg/httpx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// DevServer runs the development authentication backend over HTTP.
type DevServer struct {
	cfg    Config
	logger *slog.Logger

	auth   *devauth.Server
	server *http.Server

	// TOTPSecret is the seeded MFA user's secret, for enrolling an authenticator.
	TOTPSecret string
}

func NewDevServer(cfg Config) (*DevServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slogx.New(slogx.Config{
		Service: "labsession-devauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	auth, err := devauth.New(devauth.Config{
		ClientID:             cfg.ClientID,
		AccessTTL:            cfg.DevAuthAccessTTL,
		InlinePrincipal:      cfg.DevAuthInlinePrincipal,
		TokenLimit:           httpx.ParseRateLimitFromEnv("TOKEN", httpx.StrictLimit),
		HousekeepingInterval: cfg.DevAuthHousekeepingInterval,
		Version:              BuildVersion,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dev auth: %w", err)
	}

	secret, err := devauth.SeedDemo(auth.Directory, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to seed demo users: %w", err)
	}

	return &DevServer{
		cfg:    cfg,
		logger: logger,
		auth:   auth,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.DevAuthPort),
			Handler:           auth.Router,
			ReadHeaderTimeout: 3 * time.Second,
		},
		TOTPSecret: secret,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *DevServer) Run(ctx context.Context) error {
	s.auth.Start()
	defer s.auth.Stop()

	s.logger.Info("dev auth server starting", "port", s.cfg.DevAuthPort, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful server shutdown failed", "error", err)
		if err := s.server.Close(); err != nil {
			s.logger.Error("error closing server", "error", err)
		}
		return err
	}
	s.logger.Info("dev auth server stopped")
	return nil
}
