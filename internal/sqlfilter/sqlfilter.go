// Package sqlfilter compiles visibility predicates into SQL WHERE fragments.
package sqlfilter

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/TwigBush/ordergate/internal/policy"
)

// Columns names the SQL expressions each predicate primitive reads.
type Columns struct {
	Customer     string // order's customer foreign key
	CustomerUser string // customer's user foreign key, reachable through a LEFT JOIN
	State        string
}

var DefaultColumns = Columns{
	Customer:     "o.customer_id",
	CustomerUser: "c.user_id",
	State:        "o.state",
}

// Compile returns a boolean SQL expression with '?' placeholders and its
// arguments in placeholder order.
func Compile(p policy.Predicate, cols Columns) (string, []any, error) {
	var sb strings.Builder
	var args []any
	if err := compile(&sb, &args, p, cols); err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

// CompileFor compiles and rebinds placeholders for the sqlx bind type of
// driverName ("postgres" gets $1, $2, ...).
func CompileFor(driverName string, p policy.Predicate, cols Columns) (string, []any, error) {
	where, args, err := Compile(p, cols)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.BindType(driverName), where), args, nil
}

func compile(sb *strings.Builder, args *[]any, p policy.Predicate, cols Columns) error {
	switch p.Op {
	case policy.OpTrue:
		sb.WriteString("1 = 1")
	case policy.OpCustomerIsNull:
		sb.WriteString(cols.Customer + " IS NULL")
	case policy.OpCustomerEquals:
		sb.WriteString(cols.Customer + " = ?")
		*args = append(*args, int64(p.Customer))
	case policy.OpCustomerUserIsNull:
		sb.WriteString(cols.CustomerUser + " IS NULL")
	case policy.OpStateEquals:
		sb.WriteString(cols.State + " = ?")
		*args = append(*args, p.State)
	case policy.OpAnd, policy.OpOr:
		if len(p.Args) == 0 {
			return fmt.Errorf("sqlfilter: %s without operands", p.Op)
		}
		sep := " AND "
		if p.Op == policy.OpOr {
			sep = " OR "
		}
		sb.WriteString("(")
		for i, a := range p.Args {
			if i > 0 {
				sb.WriteString(sep)
			}
			if err := compile(sb, args, a, cols); err != nil {
				return err
			}
		}
		sb.WriteString(")")
	default:
		return fmt.Errorf("sqlfilter: unsupported predicate op %q", p.Op)
	}
	return nil
}
