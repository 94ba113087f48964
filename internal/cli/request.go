package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/samvad-hq/restkit/internal/app"
	"github.com/samvad-hq/restkit/pkg/httpclient"
)

func newRequestCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send a request through a profile",
		Long: `Send a request through a named profile.

Profile headers, per-call headers (-H) and query parameters (-q) are merged
before sending. --data accepts JSON or YAML objects and arrays, which are
sent as JSON; any other value is sent verbatim. With --envelope the body is
read as a {status, data, error} envelope: data is printed and an error member
or ERROR status fails the command.`,
		Example: `  restkit request GET /users -p api -q page=2
  restkit request POST /users -p api -d '{"name":"n"}' -H x-trace=1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			profile, _ := flags.GetString("profile")
			data, _ := flags.GetString("data")
			timeout, _ := flags.GetDuration("timeout")
			verbose, _ := flags.GetBool("verbose")
			envelope, _ := flags.GetBool("envelope")

			headers, err := kvFlag(flags, "header")
			if err != nil {
				return err
			}
			params, err := kvFlag(flags, "query")
			if err != nil {
				return err
			}

			call := app.Call{
				Profile: profile,
				Method:  args[0],
				Path:    args[1],
				Headers: headers,
				Params:  params,
				Data:    parseData(data),
				Timeout: timeout,
			}

			return withApp(open, func(a *app.App) error {
				resp, err := a.Do(cmd.Context(), call)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "%s %s\n", resp.Proto(), resp.Status())
				if verbose {
					printHeaders(cmd, resp.Header())
				}
				if envelope {
					return printEnvelope(cmd, resp)
				}
				if body := resp.Body(); len(body) > 0 {
					_, _ = fmt.Fprintln(out, strings.TrimRight(string(body), "\n"))
				}
				if resp.IsError() {
					return fmt.Errorf("request failed with status %d", resp.StatusCode())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("profile", "p", "", "Profile id (defaults to default_profile)")
	cmd.Flags().StringArrayP("header", "H", nil, "Request header key=value (repeatable)")
	cmd.Flags().StringArrayP("query", "q", nil, "Query parameter key=value (repeatable)")
	cmd.Flags().StringP("data", "d", "", "Request body")
	cmd.Flags().Duration("timeout", 0, "Per-request timeout (defaults to the profile timeout)")
	cmd.Flags().BoolP("verbose", "v", false, "Print response headers")
	cmd.Flags().Bool("envelope", false, "Decode a {status, data, error} response envelope")
	return cmd
}

func printEnvelope(cmd *cobra.Command, resp *resty.Response) error {
	env, err := httpclient.ParseResponse[any](resp)
	if err != nil {
		return err
	}
	if err := env.Err(); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if env.Data != nil {
		raw, err := json.MarshalIndent(env.Data, "", "  ")
		if err != nil {
			return fmt.Errorf("encode data: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	}
	if resp.IsError() {
		return fmt.Errorf("request failed with status %d", resp.StatusCode())
	}
	return nil
}

func printHeaders(cmd *cobra.Command, h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, strings.Join(h[k], ", "))
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
}
