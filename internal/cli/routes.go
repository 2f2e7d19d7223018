package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/routes"
)

func cmdRoutes() *cobra.Command {
	c := &cobra.Command{
		Use:   "routes",
		Short: "Inspect the API route table",
	}
	c.AddCommand(cmdRoutesList(), cmdRoutesResolve())
	return c
}

func cmdRoutesList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List routes with their operation names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOut(cmd.OutOrStdout(), routes.Sorted(routes.Default()))
		},
	}
}

type resolvedRoute struct {
	RouteName string `json:"route_name"`
}

func cmdRoutesResolve() *cobra.Command {
	var (
		resource string
		subs     []string
	)
	c := &cobra.Command{
		Use:   "resolve <item|collection|subresource>",
		Short: "Resolve the route name for a resource and operation type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := routes.OperationType(strings.ToLower(args[0]))
			switch typ {
			case routes.Item, routes.Collection, routes.Subresource:
			default:
				return fmt.Errorf("unknown operation type %q", args[0])
			}
			ids := make(map[string]string, len(subs))
			for _, s := range subs {
				k, v, _ := strings.Cut(s, "=")
				ids[k] = v
			}
			name, err := routes.NewResolver(routes.Default()).RouteName(resource, typ, ids)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), resolvedRoute{RouteName: name})
		},
	}
	c.Flags().StringVar(&resource, "resource", routes.ResourceOrder, "resource type")
	c.Flags().StringSliceVar(&subs, "identifier", nil, "subresource identifier as key=Resource, repeatable")
	return c
}
