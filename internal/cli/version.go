package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/version"
)

func cmdVersion() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Verbose())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			}
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed version information")

	return cmd
}
