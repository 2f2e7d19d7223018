package handlers

import (
	"net/http"

	"github.com/TwigBush/ordergate/internal/httpx"
	"github.com/TwigBush/ordergate/internal/mw"
	"github.com/TwigBush/ordergate/internal/policy"
)

type DecisionRequest struct {
	Caller         policy.CallerSpec `json:"caller" yaml:"caller"`
	Method         string            `json:"method" yaml:"method"`
	Operation      policy.Operation  `json:"operation" yaml:"operation"`
	CartCustomerID *int64            `json:"cart_customer_id,omitempty" yaml:"cart_customer_id,omitempty"`
}

type DecisionResponse struct {
	Decision policy.Decision `json:"decision"`
	Explain  string          `json:"explain"`
}

// Evaluate runs the policy for an explicit request, e.g. when debugging a
// storefront integration.
func Evaluate(checker policy.Checker, req DecisionRequest) (policy.Decision, error) {
	c, err := req.Caller.Caller()
	if err != nil {
		return policy.Decision{}, err
	}
	m := policy.ParseMethod(req.Method)
	if m == policy.MethodGet {
		cart := policy.NoCartCustomer
		if req.CartCustomerID != nil {
			cart = policy.CartCustomerOf(policy.CustomerID(*req.CartCustomerID))
		}
		return checker.DecideForRead(c, cart), nil
	}
	return checker.DecideForWrite(c, m, req.Operation), nil
}

type DecisionsHandler struct {
	policy policy.Checker
}

func NewDecisionsHandler(checker policy.Checker) *DecisionsHandler {
	return &DecisionsHandler{policy: checker}
}

func (h *DecisionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Method == "" {
		httpx.WriteError(w, http.StatusBadRequest, "method is required")
		return
	}
	d, err := Evaluate(h.policy, req)
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, DecisionResponse{Decision: d, Explain: d.String()})
}

// RequireAPIAdmin lets only admin callers with ROLE_API_ACCESS through.
func RequireAPIAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := mw.RequestContextFrom(r).Caller
		if c.Kind != policy.KindAdminUser || !c.Roles.Has(policy.RoleAPIAccess) {
			httpx.WriteError(w, http.StatusForbidden, MsgAccessDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}
