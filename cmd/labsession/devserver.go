package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/internal/app"
	"github.com/aussiebroadwan/labsession/internal/devauth"
)

func newDevServerCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run the development authentication service",
		Long: `Run an in-memory authentication service seeded with demo users:

  jdoe     technician, results:read, results:approve (expires in 8h)
  drsmith  pathologist, second factor required

Both use the password "` + devauth.DemoPassword + `".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if cmd.Flags().Changed("port") {
				cfg.DevAuthPort = port
			}

			srv, err := app.NewDevServer(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drsmith TOTP secret: %s\n", srv.TOTPSecret)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port (overrides DEVAUTH_PORT)")
	return cmd
}
