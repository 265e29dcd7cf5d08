package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/pkg/session"
)

func newWhoamiCmd(root *rootOptions) *cobra.Command {
	var asJSON, refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user, roles and active permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			ctrl := application.Controller()
			p, ok := ctrl.Principal()
			if !ok {
				return session.ErrNotAuthenticated
			}
			if refresh {
				if p, err = ctrl.RefreshProfile(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}

			fmt.Fprintf(out, "%s (%s)\n", displayName(p), p.Username)
			if p.Email != "" {
				fmt.Fprintf(out, "Email: %s\n", p.Email)
			}
			roles := make([]string, 0, len(p.Roles))
			for _, r := range p.Roles {
				roles = append(roles, r.Name)
			}
			fmt.Fprintf(out, "Roles: %s\n", strings.Join(roles, ", "))

			now := time.Now()
			grants := session.ActiveGrants(&p, now)
			slices.SortFunc(grants, func(a, b session.Grant) int { return strings.Compare(a.Code, b.Code) })

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nCODE\tNAME\tEXPIRES")
			for _, g := range grants {
				expires := "-"
				if g.Temporary && g.ExpiresAt != nil {
					expires = g.ExpiresAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.Code, g.Name, expires)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the principal as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch the profile from the auth service first")
	return cmd
}
