package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/labsession/internal/devauth"
	"github.com/aussiebroadwan/labsession/pkg/session"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"login", "logout", "whoami", "can", "request", "watch", "dev-server", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
	require.NotNil(t, root.PersistentFlags().Lookup("db"))
	require.NotNil(t, root.PersistentFlags().Lookup("url"))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "labsession ")
	require.Contains(t, out, "Go version:")
}

func TestCanRejectsBadCapability(t *testing.T) {
	_, err := run(t, "", "can", "id:abc")
	require.Error(t, err)
}

func TestSessionCommands(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	srv, err := devauth.New(devauth.Config{ClientID: "labsession-cli"}, nil)
	require.NoError(t, err)
	_, err = devauth.SeedDemo(srv.Directory, time.Now())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)

	flags := []string{"--url", ts.URL, "--db", filepath.Join(t.TempDir(), "session.db")}
	cli := func(stdin string, args ...string) (string, error) {
		return run(t, stdin, append(args, flags...)...)
	}

	_, err = cli("", "whoami")
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	out, err := cli("jdoe\n"+devauth.DemoPassword+"\n", "login")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as")

	out, err = cli("", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "technician")
	require.Contains(t, out, "results:approve")

	out, err = cli("", "can", "results:read", "code:results:approve")
	require.NoError(t, err)
	require.Equal(t, "yes\n", out)

	_, err = cli("", "can", "reports:sign")
	require.ErrorIs(t, err, errNotPermitted)

	out, err = cli("", "can", "--any", "reports:sign", "results:read")
	require.NoError(t, err)
	require.Equal(t, "yes\n", out)

	out, err = cli("", "request", "GET", ts.URL+"/v1/probe?capability=results:read", "--require", "results:read")
	require.NoError(t, err)
	require.Contains(t, out, "200")

	_, err = cli("", "request", "GET", ts.URL+"/v1/probe?capability=reports:sign", "--require", "reports:sign")
	require.ErrorIs(t, err, session.ErrAccessDenied)

	out, err = cli("", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Signed out")

	out, err = cli("", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Not signed in")
}
