package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagewire/internal/errors"
)

type codeEntry struct {
	Code     string          `json:"code"`
	Category errors.Category `json:"category"`
	Message  string          `json:"message"`
	Detail   string          `json:"detail,omitempty"`
}

func errorsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "errors [code]",
		Short: "List error codes",
		Long: `List every error code pagewire reports, or describe a single code.

Codes are grouped by prefix: P protocol, A application, R registration,
T transport, C config and X command line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := errors.GetAllCodes()
			if len(args) == 1 {
				if _, ok := errors.GetTemplate(args[0]); !ok {
					return errors.Newf(errors.CategoryCLI, "unknown error code %q", args[0]).
						WithSuggestion("Run 'pagewire errors' to list every code.")
				}
				codes = args
			}

			entries := make([]codeEntry, 0, len(codes))
			for _, code := range codes {
				tmpl, _ := errors.GetTemplate(code)
				entries = append(entries, codeEntry{
					Code:     code,
					Category: tmpl.Category,
					Message:  tmpl.Message,
					Detail:   tmpl.Detail,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 1 {
				e := entries[0]
				fmt.Fprintf(out, "%s (%s): %s\n", e.Code, e.Category, e.Message)
				if e.Detail != "" {
					fmt.Fprintf(out, "\n  %s\n", e.Detail)
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tCATEGORY\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Code, e.Category, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
