package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/restkit/internal/app"
)

func newTokenCommand(open OpenFunc) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored bearer tokens",
		Long: `Manage the bearer tokens read by profiles that send is-authorization.

Tokens are stored under the profile's token_storage key, either in the
persistent store or in the session store of the running process.`,
	}
	tokenCmd.AddCommand(
		&cobra.Command{
			Use:   "set PROFILE TOKEN",
			Short: "Store the token of a profile",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(open, func(a *app.App) error {
					if err := a.SetToken(args[0], args[1]); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get PROFILE",
			Short: "Print the token of a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(open, func(a *app.App) error {
					token, ok, err := a.Token(args[0])
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("no token stored for profile %q", args[0])
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "rm PROFILE",
			Aliases: []string{"remove"},
			Short:   "Remove the token of a profile",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(open, func(a *app.App) error {
					if err := a.RemoveToken(args[0]); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
					return nil
				})
			},
		},
	)
	return tokenCmd
}
