package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TwigBush/ordergate/internal/audit"
	"github.com/TwigBush/ordergate/internal/handlers"
	"github.com/TwigBush/ordergate/internal/mw"
	"github.com/TwigBush/ordergate/internal/orders"
	"github.com/TwigBush/ordergate/internal/policy"
	"github.com/TwigBush/ordergate/internal/routes"
	"github.com/TwigBush/ordergate/internal/visitor"
)

type Options struct {
	AllowedOrigins []string
}

type Deps struct {
	Store   orders.Store
	Policy  policy.Checker
	Routes  *routes.Resolver
	Callers mw.CallerResolver
	Carts   visitor.Lookup
	Hub     *audit.Hub
}

// BuildRouter mounts every route of d.Routes. A route name without a
// handler is a configuration error.
func BuildRouter(d Deps, opts Options, extra ...func(http.Handler) http.Handler) (http.Handler, error) {
	if d.Store == nil || d.Callers == nil {
		return nil, fmt.Errorf("router needs an order store and a caller resolver")
	}
	if d.Routes == nil {
		d.Routes = routes.NewResolver(routes.Default())
	}
	if d.Policy == nil {
		d.Policy = policy.NewOrderVisibility()
	}
	if d.Hub == nil {
		d.Hub = audit.NewHub()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// baseline
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", visitor.CartTokenHeader},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	for _, m := range extra {
		r.Use(m)
	}

	// tracing + logger
	r.Use(mw.Trace())
	r.Use(mw.Logger(mw.LogOpts{
		SkipPaths:     []string{"/healthz", "/version", "/events"},
		RedactHeaders: []string{"Authorization", visitor.CartTokenHeader},
	}))

	r.Get("/healthz", handlers.Health)
	r.Get("/version", handlers.Version)

	oh := handlers.NewOrdersHandler(d.Store, d.Policy, d.Hub)
	bind := map[string]func(policy.Operation) http.HandlerFunc{
		"shop_get_order":             oh.Get,
		"shop_create_cart":           oh.CreateCart,
		"admin_list_orders":          oh.List,
		"shop_add_item":              oh.AddItem,
		"shop_remove_item":           oh.RemoveItem,
		"shop_select_payment_method": oh.SelectPaymentMethod,
		"shop_complete_checkout":     oh.Complete,
		"admin_delete_order":         oh.Delete,
	}

	var mountErr error
	r.Group(func(api chi.Router) {
		api.Use(mw.NoStore)
		api.Use(mw.Identify(d.Callers, d.Carts))

		for _, rt := range d.Routes.Routes() {
			h, ok := bind[rt.Name]
			if !ok {
				mountErr = fmt.Errorf("route %s has no handler", rt.Name)
				return
			}
			api.Method(rt.Method, rt.Pattern, h(rt.Operation))
		}

		api.Group(func(admin chi.Router) {
			admin.Use(handlers.RequireAPIAdmin)
			admin.Method(http.MethodPost, "/decisions", handlers.NewDecisionsHandler(d.Policy))
			admin.Method(http.MethodGet, "/events", d.Hub)
		})
	})
	if mountErr != nil {
		return nil, mountErr
	}
	return r, nil
}
