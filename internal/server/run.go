package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/TwigBush/ordergate/internal/audit"
	"github.com/TwigBush/ordergate/internal/handlers"
)

const shutdownTimeout = 5 * time.Second

// Listener is one named HTTP endpoint served by Serve.
type Listener struct {
	Name    string
	Addr    string
	Handler http.Handler
}

// BuildOpsRouter serves health, version and the unauthenticated decision
// stream. Bind it to an internal address only.
func BuildOpsRouter(hub *audit.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handlers.Health)
	r.Get("/version", handlers.Version)
	r.Method(http.MethodGet, "/events", hub)
	return r
}

// Serve runs every listener until ctx is cancelled or one of them fails,
// then shuts all of them down gracefully.
func Serve(ctx context.Context, ls ...Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range ls {
		l := l
		g.Go(func() error { return run(gctx, l) })
	}
	return g.Wait()
}

func run(ctx context.Context, l Listener) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	return runOn(ctx, ln, l)
}

func runOn(ctx context.Context, ln net.Listener, l Listener) error {
	srv := &http.Server{Handler: l.Handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "server", l.Name, "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		ctx2, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down", "server", l.Name)
		return srv.Shutdown(ctx2)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
