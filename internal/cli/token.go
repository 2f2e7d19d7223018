package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/di"
)

func cmdToken() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Access token helpers",
	}
	c.AddCommand(cmdTokenMint())
	return c
}

type mintedToken struct {
	Token     string    `json:"token"`
	Caller    string    `json:"caller"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cmdTokenMint() *cobra.Command {
	var (
		caller callerFlags
		ttl    time.Duration
	)
	c := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token with the configured signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ids, err := di.ProvideIdentity(cfg.Identity)
			if err != nil {
				return err
			}
			who, err := caller.spec(cmd).Caller()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Identity.TokenTTL
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			tok, err := ids.Mint(who, ttl)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), mintedToken{
				Token:     tok,
				Caller:    who.String(),
				ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
			})
		},
	}
	caller.bind(c)
	c.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default identity.token_ttl)")
	return c
}
