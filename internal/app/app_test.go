package app_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/labsession/internal/app"
	"github.com/aussiebroadwan/labsession/internal/devauth"
	"github.com/aussiebroadwan/labsession/pkg/session"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// A session logged in by one process is restored by the next one.
func TestApplicationPersistsSession(t *testing.T) {
	srv, err := devauth.New(devauth.Config{ClientID: "labsession-cli"}, nil)
	require.NoError(t, err)
	_, err = devauth.SeedDemo(srv.Directory, time.Now())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)

	cfg := app.LoadConfig()
	cfg.BaseURL = ts.URL
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "session.db")

	ctx := context.Background()
	notes := session.NewChannelNotifier(4)

	first, err := app.New(cfg, app.WithLogger(slogx.Discard()), app.WithNotifier(notes))
	require.NoError(t, err)
	require.False(t, first.Start(ctx))
	_, err = first.Controller().Login(ctx, "jdoe", devauth.DemoPassword)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := app.New(cfg, app.WithLogger(slogx.Discard()), app.WithNotifier(notes))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	require.True(t, second.Start(ctx))

	p, ok := second.Controller().Principal()
	require.True(t, ok)
	require.Equal(t, "jdoe", p.Username)

	second.Controller().Logout(ctx, false)
	require.Equal(t, session.KindLoggedOut, (<-notes.C).Kind)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := app.LoadConfig()
	cfg.ClientID = ""
	_, err := app.New(cfg, app.WithLogger(slogx.Discard()))
	require.ErrorContains(t, err, "invalid configuration")
}
