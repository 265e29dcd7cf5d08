package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/internal/app"
)

// errNotPermitted makes `can` exit non-zero without printing usage.
var errNotPermitted = errors.New("not permitted")

type rootOptions struct {
	dbFile  string
	baseURL string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "labsession",
		Short: "labsession - lab workstation session client",
		Long: `labsession signs a user in to the lab authentication service, keeps the
session's credentials fresh, ends idle sessions, and answers permission
questions for scripts and other tools.

Configuration comes from the environment:
  LABSESSION_BASE_URL        auth service (default: http://localhost:8080)
  LABSESSION_CLIENT_ID       OAuth2 client id (default: labsession-cli)
  LABSESSION_DATABASE_FILE   session database (default: <user config dir>/labsession/session.db)
  LABSESSION_IDLE_TIME       idle logout, e.g. 15m (default: 15m)
  LABSESSION_WARNING_TIME    warning before idle logout (default: 1m)
  LOG_LEVEL, LOG_FORMAT      logging (default: info, text)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.dbFile, "db", "", "session database file (overrides LABSESSION_DATABASE_FILE)")
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "", "auth service base URL (overrides LABSESSION_BASE_URL)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newCanCmd(opts),
		newRequestCmd(opts),
		newWatchCmd(opts),
		newDevServerCmd(),
		newVersionCmd(),
	)
	return root
}

// config loads the environment and applies flag overrides.
func (o *rootOptions) config() (app.Config, error) {
	cfg := app.LoadConfig()
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	switch {
	case o.dbFile != "":
		cfg.DatabaseFile = o.dbFile
	case cfg.DatabaseFile == "":
		dir, err := os.UserConfigDir()
		if err != nil {
			return cfg, fmt.Errorf("locating session database: %w", err)
		}
		dir = filepath.Join(dir, "labsession")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return cfg, err
		}
		cfg.DatabaseFile = filepath.Join(dir, "session.db")
	}
	return cfg, nil
}

// open builds the application and restores any persisted session.
func (o *rootOptions) open(ctx context.Context, appOpts ...app.Option) (*app.Application, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	application, err := app.New(cfg, appOpts...)
	if err != nil {
		return nil, err
	}
	application.Start(ctx)
	return application, nil
}
