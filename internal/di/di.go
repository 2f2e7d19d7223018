// Package di wires configured components into a running ordergate.
package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/TwigBush/ordergate/internal/audit"
	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/identity"
	"github.com/TwigBush/ordergate/internal/orders"
	"github.com/TwigBush/ordergate/internal/policy"
	"github.com/TwigBush/ordergate/internal/routes"
	"github.com/TwigBush/ordergate/internal/server"
	"github.com/TwigBush/ordergate/internal/visitor"
)

func ProvideLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ProvideStore opens the configured order store. SQL stores are migrated;
// the returned closer is never nil.
func ProvideStore(ctx context.Context, c config.StoreConfig) (orders.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Kind {
	case config.StoreMemory, "":
		return orders.NewMemoryStore(), noop, nil
	case config.StoreFS:
		s, err := orders.NewFileStore(c.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StorePostgres, config.StoreSQLite:
		s, err := orders.OpenSQL(c.Kind, c.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", c.Kind)
}

func ProvideIdentity(c config.IdentityConfig) (*identity.Provider, error) {
	var (
		keys identity.Keys
		err  error
	)
	if c.JWKFile != "" {
		keys, err = identity.LoadJWK(c.JWKFile)
	} else {
		keys, err = identity.HMACKeys([]byte(c.HMACSecret))
	}
	if err != nil {
		return nil, err
	}
	return identity.NewProvider(keys, c.Issuer), nil
}

func ProvideVisitor(c config.VisitorConfig) (visitor.Lookup, visitor.Linker, error) {
	return visitor.Provide(visitor.Config{
		Kind:      c.Kind,
		RedisAddr: c.RedisAddr,
		FGA: visitor.OpenFGAConfig{
			APIURL:   c.FGAAPIURL,
			StoreID:  c.FGAStoreID,
			APIToken: c.FGAAPIToken,
			ModelID:  c.FGAModelID,
		},
		CacheSize: c.CacheSize,
		CacheTTL:  c.CacheTTL,
	})
}

// App holds every long-lived component built from a Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    orders.Store
	Identity *identity.Provider
	Carts    visitor.Lookup
	Linker   visitor.Linker
	Policy   policy.Checker
	Routes   *routes.Resolver
	Hub      *audit.Hub

	closers []func() error
}

// Build validates cfg and constructs the App. Callers must Close it.
func Build(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{
		Config: cfg,
		Logger: ProvideLogger(cfg.Log, logOut),
		Policy: policy.NewOrderVisibility(),
		Routes: routes.NewResolver(routes.Default()),
		Hub:    audit.NewHub(),
	}

	store, closeStore, err := ProvideStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	if a.Identity, err = ProvideIdentity(cfg.Identity); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("identity: %w", err)
	}
	if a.Carts, a.Linker, err = ProvideVisitor(cfg.Visitor); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("visitor: %w", err)
	}
	return a, nil
}

func (a *App) Router() (http.Handler, error) {
	return server.BuildRouter(server.Deps{
		Store:   a.Store,
		Policy:  a.Policy,
		Routes:  a.Routes,
		Callers: a.Identity,
		Carts:   a.Carts,
		Hub:     a.Hub,
	}, server.Options{AllowedOrigins: a.Config.CORS.AllowedOrigins})
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
