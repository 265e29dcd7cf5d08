package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/session"
)

func newLoginCmd(root *rootOptions) *cobra.Command {
	var username, password, otp string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Long: `Sign in with a username and password. Missing values are read from
stdin, one per line. Accounts with a second factor are asked for a TOTP code
unless --otp is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if username == "" {
				if username, err = prompt(out, in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(out, in, "Password: "); err != nil {
					return err
				}
			}

			application, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer application.Close()
			ctrl := application.Controller()

			snap, err := ctrl.Login(ctx, username, password)
			var challenge *authsdk.MFARequiredError
			if errors.Is(err, session.ErrMFARequired) && errors.As(err, &challenge) {
				if otp == "" {
					if otp, err = prompt(out, in, "Authenticator code: "); err != nil {
						return err
					}
				}
				snap, err = ctrl.CompleteMFA(ctx, challenge, "totp", otp)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Signed in as %s (%s)\n", displayName(snap.Principal), snap.Principal.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prefer stdin)")
	cmd.Flags().StringVar(&otp, "otp", "", "TOTP code for accounts with a second factor")
	return cmd
}

func newLogoutCmd(root *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revoke the refresh credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			ctrl := application.Controller()
			if !ctrl.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			ctrl.Logout(cmd.Context(), quiet)
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not emit a logout notification")
	return cmd
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func displayName(p session.Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}
