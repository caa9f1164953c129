package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagewire/pkg/router"
)

type routeEntry struct {
	ID           string   `json:"id"`
	Route        string   `json:"route"`
	Name         string   `json:"name"`
	AccessGroups []string `json:"access_groups"`
}

func routesCmd(opts Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List registered pages",
		Long: `List every registered page with its id, route and access groups,
in the order they are announced to the relay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := router.New()
			if opts.Register != nil {
				opts.Register(r)
			}

			entries := make([]routeEntry, 0, r.Registry().Len())
			for _, info := range r.Registry().Catalogue() {
				groups := info.AccessGroups
				if groups == nil {
					groups = []string{}
				}
				entries = append(entries, routeEntry{
					ID:           info.ID,
					Route:        info.Route,
					Name:         info.Name,
					AccessGroups: groups,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No pages registered.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROUTE\tNAME\tACCESS\tID")
			for _, e := range entries {
				access := "public"
				if len(e.AccessGroups) > 0 {
					access = strings.Join(e.AccessGroups, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Route, e.Name, access, e.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
