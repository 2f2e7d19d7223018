package cli

import (
	"github.com/spf13/cobra"

	"github.com/TwigBush/ordergate/internal/policy"
)

// callerFlags binds --caller, --customer-id and --role.
type callerFlags struct {
	kind       string
	customerID int64
	roles      []string
}

func (f *callerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "caller", "anonymous", "caller kind: anonymous|shop|admin")
	cmd.Flags().Int64Var(&f.customerID, "customer-id", 0, "customer id of a shop user, or the correlated customer of an anonymous caller")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "caller role, repeatable (admin needs ROLE_API_ACCESS)")
}

func (f *callerFlags) spec(cmd *cobra.Command) policy.CallerSpec {
	s := policy.CallerSpec{Kind: policy.CallerKind(f.kind), Roles: f.roles}
	if cmd.Flags().Changed("customer-id") {
		id := f.customerID
		s.CustomerID = &id
	}
	return s
}
