package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/fixtures"
	"github.com/TwigBush/ordergate/internal/server"
)

// reportFixtures logs what was loaded. The admin token is a credential: it
// goes to stdout, and only for the demo set.
func reportFixtures(w io.Writer, res *fixtures.Result, demo bool) {
	slog.Info("fixtures loaded", "orders", len(res.Orders), "admins", len(res.Tokens))
	if demo && res.AdminToken != "" {
		fmt.Fprintf(w, "Demo admin token: %s\n", res.AdminToken)
	}
}

func cmdServe() *cobra.Command {
	var (
		addr         string
		opsAddr      string
		fixtureFiles []string
		demo         bool
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the orders API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, os.Stderr)
			if err != nil {
				return err
			}
			defer app.Close()
			slog.SetDefault(app.Logger)

			if demo || len(fixtureFiles) > 0 {
				res, err := applyFixtures(ctx, app, fixtureFiles)
				if err != nil {
					return err
				}
				reportFixtures(cmd.OutOrStdout(), res, demo)
			}

			h, err := app.Router()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.ListenAddr
			}
			ls := []server.Listener{{Name: "api", Addr: addr, Handler: h}}
			if opsAddr != "" {
				ls = append(ls, server.Listener{Name: "ops", Addr: opsAddr, Handler: server.BuildOpsRouter(app.Hub)})
			}
			return server.Serve(ctx, ls...)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "API listen address (default listen_addr)")
	c.Flags().StringVar(&opsAddr, "ops-addr", "", "optional internal address for health, version and the decision stream")
	c.Flags().StringSliceVar(&fixtureFiles, "fixtures", nil, "fixture YAML file to load before serving, repeatable")
	c.Flags().BoolVar(&demo, "demo", false, "load the built-in demo fixtures before serving")
	return c
}
