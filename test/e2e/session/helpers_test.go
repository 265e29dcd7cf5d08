//go:build e2e

package session_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/labsession/internal/app"
	"github.com/aussiebroadwan/labsession/internal/devauth"
	"github.com/aussiebroadwan/labsession/pkg/session"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

const testImageName = "labsession-devauth-test:latest"

// TestMain builds the image once for the whole suite and removes it after.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building labsession Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up labsession Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/labsession/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// setupDevAuthContainer starts the dev auth service and returns its base URL.
func setupDevAuthContainer(t *testing.T, env map[string]string) string {
	t.Helper()
	ctx := context.Background()

	containerEnv := map[string]string{
		"ENV":                      "test",
		"LOG_LEVEL":                "info",
		"LOG_FORMAT":               "json",
		"RATELIMIT_TOKEN_REQUESTS": "1000",
		"RATELIMIT_TOKEN_BURST":    "1000",
	}
	for k, v := range env {
		containerEnv[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          containerEnv,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// newApplication builds a client application against baseURL with a fresh
// session database. Notifications are delivered to the returned channel.
func newApplication(t *testing.T, baseURL string) (*app.Application, *session.ChannelNotifier) {
	t.Helper()

	cfg := app.LoadConfig()
	cfg.BaseURL = baseURL
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "session.db")
	cfg.RefreshSkew = 0

	notes := session.NewChannelNotifier(8)
	application, err := app.New(cfg, app.WithLogger(slogx.Discard()), app.WithNotifier(notes))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	application.Start(context.Background())
	return application, notes
}

func login(t *testing.T, ctrl *session.Controller, username string) session.Snapshot {
	t.Helper()
	snap, err := ctrl.Login(context.Background(), username, devauth.DemoPassword)
	require.NoError(t, err)
	require.NotEmpty(t, snap.Credentials.Access)
	require.NotEmpty(t, snap.Credentials.Refresh)
	return snap
}
