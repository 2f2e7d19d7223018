package cli

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/identity"
)

func cmdInit() *cobra.Command {
	var (
		storeKind string
		dsn       string
		withJWK   bool
		force     bool
	)

	c := &cobra.Command{
		Use:   "init",
		Short: "Create ~/.ordergate/config.yaml and a signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if !force && (cfg.Identity.HMACSecret != "" || cfg.Identity.JWKFile != "") {
				return fmt.Errorf("%s already has a signing key, use --force to replace it", cfgPath)
			}
			cfg.Store.Kind = storeKind
			cfg.Store.DSN = dsn

			if withJWK {
				dir, err := defaultKeysDir()
				if err != nil {
					return err
				}
				path, thumb, err := identity.GenerateSigningKey(dir)
				if err != nil {
					return err
				}
				cfg.Identity.JWKFile, cfg.Identity.HMACSecret = path, ""
				fmt.Fprintf(cmd.OutOrStdout(), "Signing key: %s (thumbprint %s)\n", path, thumb)
			} else {
				secret, err := newSecret()
				if err != nil {
					return err
				}
				cfg.Identity.HMACSecret, cfg.Identity.JWKFile = secret, ""
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config: %s\n", cfgPath)
			return nil
		},
	}
	c.Flags().StringVar(&storeKind, "store", config.StoreFS, "order store: memory|fs|postgres|sqlite")
	c.Flags().StringVar(&dsn, "dsn", "", "database DSN for the postgres and sqlite stores")
	c.Flags().BoolVar(&withJWK, "jwk", false, "sign tokens with a generated ES384 JWK instead of an HMAC secret")
	c.Flags().BoolVar(&force, "force", false, "replace an existing signing key")
	return c
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
