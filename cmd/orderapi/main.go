package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/di"
	"github.com/TwigBush/ordergate/internal/server"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath(), "config file path")
	opsAddr := flag.String("ops", "", "internal ops addr (health, version, decision stream)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	app, err := di.Build(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()
	slog.SetDefault(app.Logger)

	api, err := app.Router()
	if err != nil {
		log.Fatal(err)
	}
	ls := []server.Listener{{Name: "api", Addr: cfg.ListenAddr, Handler: api}}
	if *opsAddr != "" {
		ls = append(ls, server.Listener{Name: "ops", Addr: *opsAddr, Handler: server.BuildOpsRouter(app.Hub)})
	}
	if err := server.Serve(ctx, ls...); err != nil {
		slog.Error("server stopped", "err", err)
		app.Close()
		os.Exit(1)
	}
}
