package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TwigBush/ordergate/internal/handlers"
	"github.com/TwigBush/ordergate/internal/policy"
)

func cmdDecide() *cobra.Command {
	var (
		caller    callerFlags
		method    string
		operation string
		cartID    int64
		file      string
	)

	c := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate the order visibility policy locally",
		Long: "Evaluate the order visibility policy for one caller and request.\n" +
			"The request comes from flags, or from a JSON/YAML file with -f.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req handlers.DecisionRequest
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				// JSON is valid YAML
				if err := yaml.Unmarshal(b, &req); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			} else {
				req = handlers.DecisionRequest{
					Caller:    caller.spec(cmd),
					Method:    method,
					Operation: policy.Operation(operation),
				}
				if cmd.Flags().Changed("cart-customer-id") {
					id := cartID
					req.CartCustomerID = &id
				}
			}

			d, err := handlers.Evaluate(policy.NewOrderVisibility(), req)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), handlers.DecisionResponse{Decision: d, Explain: d.String()})
		},
	}
	caller.bind(c)
	c.Flags().StringVar(&method, "method", "GET", "HTTP method of the request")
	c.Flags().StringVar(&operation, "operation", "", "route operation name, for example shop_select_payment_method")
	c.Flags().Int64Var(&cartID, "cart-customer-id", 0, "customer correlated with the visitor's cart")
	c.Flags().StringVarP(&file, "file", "f", "", "read the decision request from a JSON or YAML file")
	return c
}
