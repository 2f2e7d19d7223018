package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/identity"
)

func cmdKeys() *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Signing key management",
	}
	c.AddCommand(cmdKeysNew())
	return c
}

func defaultKeysDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keys"), nil
}

func cmdKeysNew() *cobra.Command {
	var (
		dir        string
		setDefault bool
	)
	c := &cobra.Command{
		Use:   "new",
		Short: "Generate a new ES384 signing key as JWK and print its thumbprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				d, err := defaultKeysDir()
				if err != nil {
					return err
				}
				dir = d
			}
			path, tp, err := identity.GenerateSigningKey(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nThumbprint: %s\n", path, tp)

			if !setDefault {
				return nil
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg.Identity.JWKFile = path
			cfg.Identity.HMACSecret = ""
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", cfgPath)
			return nil
		},
	}
	c.Flags().StringVar(&dir, "dir", "", "output directory (default <config dir>/keys)")
	c.Flags().BoolVar(&setDefault, "set-default", false, "make the new key the configured signing key")
	return c
}
