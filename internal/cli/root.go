package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/config"
)

var (
	output  string
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "ordergate",
	Short: "Order visibility policy service and tooling",
}

func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json|yaml")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(cmdInit(), cmdServe(), cmdDecide(), cmdToken(), cmdKeys(), cmdFixtures(), cmdRoutes(), cmdVersion())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Show help",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().Help()
		},
	})
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "Use -h for help, for example: ordergate decide --caller anonymous --method PATCH --operation shop_complete_checkout")
	}
}
