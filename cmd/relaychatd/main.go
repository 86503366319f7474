// Command relaychatd is the TCP chat server binary: it loads config,
// builds the storage adapter, event bus, and command handler, then accepts
// connections and hands each to internal/session. A minimal chi-mounted
// /healthz and /readyz round out the operational surface, following
// marmos91-dittofs's cobra-rooted `start` command style.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/relaychat/server/internal/auth"
	"github.com/relaychat/server/internal/command"
	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/event"
	"github.com/relaychat/server/internal/logging"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/store/adapter"
	"github.com/relaychat/server/internal/store/memstore"
	"github.com/relaychat/server/internal/store/sqlstore"
	"github.com/relaychat/server/internal/store/txops"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "relaychatd",
		Short: "RelayChat TCP chat server",
		RunE:  runServe,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	store, err := openStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	bus := event.NewBus(cfg.Event.SubscriberBufferSize)
	ops := txops.New(store)
	verifier := auth.NewVerifier([]byte(cfg.Auth.JWTSigningKey))
	handler := command.NewHandler(ops, bus, verifier, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- serveTCP(ctx, cfg.Server.ListenAddr, handler, log) }()
	go func() { errCh <- serveHealth(ctx, cfg.Server.HealthAddr, log) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	bus.Close()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (adapter.Adapter, error) {
	if cfg.Database.Driver == "mysql" {
		st := sqlstore.New(cfg.Database.DSN, log)
		if err := st.Open(ctx); err != nil {
			return nil, fmt.Errorf("relaychatd: opening storage: %w", err)
		}
		return st, nil
	}
	return memstore.New(), nil
}

func serveTCP(ctx context.Context, addr string, handler *command.Handler, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relaychatd: listen %s: %w", addr, err)
	}
	log.Info("tcp listener started", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relaychatd: accept: %w", err)
		}
		go session.New(nc, handler, log).Run(ctx)
	}
}

func serveHealth(ctx context.Context, addr string, log *slog.Logger) error {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("health endpoint started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relaychatd: health server: %w", err)
	}
	return nil
}
