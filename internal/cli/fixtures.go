package cli

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/di"
	"github.com/TwigBush/ordergate/internal/fixtures"
)

func cmdFixtures() *cobra.Command {
	c := &cobra.Command{
		Use:   "fixtures",
		Short: "Load demo or test data into the configured store",
	}
	c.AddCommand(cmdFixturesLoad())
	return c
}

// loadFixtureSet reads files, or the embedded default set when none are given.
func loadFixtureSet(files []string) (*fixtures.Set, error) {
	if len(files) == 0 {
		return fixtures.Default()
	}
	rs := make([]io.Reader, 0, len(files))
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		rs = append(rs, fh)
	}
	return fixtures.Load(rs...)
}

type loadedFixtures struct {
	Orders map[string]string `json:"orders"`
	Tokens map[string]string `json:"tokens"`
}

func applyFixtures(ctx context.Context, app *di.App, files []string) (*fixtures.Result, error) {
	set, err := loadFixtureSet(files)
	if err != nil {
		return nil, err
	}
	return fixtures.Apply(ctx, set, app.Store, app.Linker, app.Identity, app.Config.Identity.TokenTTL)
}

func cmdFixturesLoad() *cobra.Command {
	var files []string
	c := &cobra.Command{
		Use:   "load",
		Short: "Apply fixture files (default: the built-in demo set) and print admin tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := applyFixtures(cmd.Context(), app, files)
			if err != nil {
				return err
			}
			out := loadedFixtures{Orders: map[string]string{}, Tokens: res.Tokens}
			refs := make([]string, 0, len(res.Orders))
			for ref := range res.Orders {
				refs = append(refs, ref)
			}
			sort.Strings(refs)
			for _, ref := range refs {
				out.Orders[ref] = res.Orders[ref].Token
			}
			return printOut(cmd.OutOrStdout(), out)
		},
	}
	c.Flags().StringSliceVarP(&files, "file", "f", nil, "fixture YAML file, repeatable")
	return c
}
