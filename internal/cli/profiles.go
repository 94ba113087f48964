package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/restkit/internal/app"
	"github.com/samvad-hq/restkit/pkg/httpclient"
)

func newProfilesCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(open, func(a *app.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tBASE URL\tTIMEOUT\tTOKEN STORAGE")
				for _, p := range a.Profiles().All() {
					timeout := httpclient.RequestTimeout
					if p.Timeout() > 0 {
						timeout = p.Timeout()
					}
					ts := httpclient.ResolveTokenStorage(p.TokenStorage)
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s:%s\n", p.ID, p.BaseURL, timeout, ts.StorageType, ts.StorageKey)
				}
				return w.Flush()
			})
		},
	}
}
