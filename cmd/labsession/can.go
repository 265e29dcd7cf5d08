package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/pkg/session"
)

func newCanCmd(root *rootOptions) *cobra.Command {
	var anyOf bool

	cmd := &cobra.Command{
		Use:   "can CAPABILITY...",
		Short: "Check whether the signed-in user holds capabilities",
		Long: `Check capabilities against the signed-in user. Each argument is a
permission code, or one of id:N, code:X or name:X. Exits non-zero unless all
capabilities are held (or any, with --any).`,
		Example: `  labsession can results:approve
  labsession can --any reports:sign id:42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args)
			if err != nil {
				return err
			}

			application, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			ctrl := application.Controller()
			if !ctrl.IsAuthenticated() {
				return session.ErrNotAuthenticated
			}

			ok := ctrl.CanAll(refs...)
			if anyOf {
				ok = ctrl.CanAny(refs...)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no")
				return errNotPermitted
			}
			fmt.Fprintln(cmd.OutOrStdout(), "yes")
			return nil
		},
	}
	cmd.Flags().BoolVar(&anyOf, "any", false, "succeed when any capability is held")
	return cmd
}

func parseRefs(args []string) ([]session.CapabilityRef, error) {
	refs := make([]session.CapabilityRef, 0, len(args))
	for _, a := range args {
		ref, err := session.ParseCapabilityRef(a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
