// Package routes declares the API route table and resolves route names the
// way API clients and IRI generators look them up.
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/TwigBush/ordergate/internal/policy"
)

type OperationType string

const (
	Item        OperationType = "item"
	Collection  OperationType = "collection"
	Subresource OperationType = "subresource"
)

const ResourceOrder = "Order"

var ErrNoRoute = errors.New("no route")

// NoRouteError keeps the message format API clients already match on.
type NoRouteError struct {
	Type     OperationType
	Resource string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf(`No %s route associated with the type "%s".`, e.Type, e.Resource)
}

func (e *NoRouteError) Is(target error) bool { return target == ErrNoRoute }

type Route struct {
	Name      string           `json:"name" yaml:"name"`
	Method    string           `json:"method" yaml:"method"`
	Pattern   string           `json:"pattern" yaml:"pattern"`
	Resource  string           `json:"resource" yaml:"resource"`
	Type      OperationType    `json:"type" yaml:"type"`
	Operation policy.Operation `json:"operation" yaml:"operation"`
	// Identifiers names the path parameters a subresource route is reached
	// through, e.g. token and itemId.
	Identifiers []string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
}

// Default is the order API.
func Default() []Route {
	return []Route{
		{Name: "shop_get_order", Method: http.MethodGet, Pattern: "/orders/{token}", Resource: ResourceOrder, Type: Item, Operation: "shop_get_order"},
		{Name: "shop_create_cart", Method: http.MethodPost, Pattern: "/orders", Resource: ResourceOrder, Type: Collection, Operation: "shop_create_cart"},
		{Name: "admin_list_orders", Method: http.MethodGet, Pattern: "/orders", Resource: ResourceOrder, Type: Collection, Operation: "admin_list_orders"},
		{Name: "shop_add_item", Method: http.MethodPost, Pattern: "/orders/{token}/items", Resource: ResourceOrder, Type: Subresource, Operation: "shop_add_item", Identifiers: []string{"token"}},
		{Name: "shop_remove_item", Method: http.MethodDelete, Pattern: "/orders/{token}/items/{itemId}", Resource: ResourceOrder, Type: Subresource, Operation: "shop_remove_item", Identifiers: []string{"token", "itemId"}},
		{Name: "shop_select_payment_method", Method: http.MethodPatch, Pattern: "/orders/{token}/payments/{paymentId}", Resource: ResourceOrder, Type: Subresource, Operation: policy.OpSelectPaymentMethod, Identifiers: []string{"token", "paymentId"}},
		{Name: "shop_complete_checkout", Method: http.MethodPatch, Pattern: "/orders/{token}/complete", Resource: ResourceOrder, Type: Item, Operation: "shop_complete_checkout"},
		{Name: "admin_delete_order", Method: http.MethodDelete, Pattern: "/orders/{token}", Resource: ResourceOrder, Type: Item, Operation: "admin_delete_order"},
	}
}

type Resolver struct {
	routes []Route
}

func NewResolver(routes []Route) *Resolver {
	return &Resolver{routes: append([]Route(nil), routes...)}
}

func (r *Resolver) Routes() []Route { return append([]Route(nil), r.routes...) }

// RouteName returns the first route registered for resource and typ. For
// subresources the route's identifiers must be exactly the keys of
// subresourceResources.
func (r *Resolver) RouteName(resource string, typ OperationType, subresourceResources map[string]string) (string, error) {
	for _, rt := range r.routes {
		if rt.Resource != resource || rt.Type != typ {
			continue
		}
		if typ == Subresource && !sameKeys(rt.Identifiers, subresourceResources) {
			continue
		}
		return rt.Name, nil
	}
	return "", &NoRouteError{Type: typ, Resource: resource}
}

func sameKeys(ids []string, m map[string]string) bool {
	if len(ids) != len(m) {
		return false
	}
	for _, id := range ids {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the routes ordered by pattern then method, for listings.
func Sorted(routes []Route) []Route {
	out := append([]Route(nil), routes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern == out[j].Pattern {
			return out[i].Method < out[j].Method
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}
