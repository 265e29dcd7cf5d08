package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newRequestCmd(root *rootOptions) *cobra.Command {
	var (
		require []string
		body    string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD URL",
		Short: "Send an authenticated request to a protected resource",
		Long: `Send an HTTP request carrying the session credential. An expired
credential is refreshed once and the request replayed. Capabilities listed
with --require are checked locally before anything is sent.`,
		Example: `  labsession request GET http://localhost:8080/v1/profile
  labsession request GET 'http://localhost:8080/v1/probe?capability=results:approve' --require results:approve`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(require)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var reader io.Reader
			if body != "" {
				reader = strings.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(args[0]), args[1], reader)
			if err != nil {
				return err
			}
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, expected Name: value", h)
				}
				req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}

			application, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			resp, err := application.Controller().Request(ctx, req, refs...)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Status)
			if _, err := io.Copy(out, resp.Body); err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("request failed: %s", resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&require, "require", nil, "capabilities the request needs (checked locally)")
	cmd.Flags().StringVarP(&body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header, Name: value")
	return cmd
}
