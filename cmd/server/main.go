package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dobble-backend/internal/bus"
	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/config"
	"github.com/DoyleJ11/dobble-backend/internal/engine"
	"github.com/DoyleJ11/dobble-backend/internal/httpapi"
	"github.com/DoyleJ11/dobble-backend/internal/hub"
	"github.com/DoyleJ11/dobble-backend/internal/logging"
	"github.com/DoyleJ11/dobble-backend/internal/results"
	"github.com/DoyleJ11/dobble-backend/internal/server"
	"github.com/DoyleJ11/dobble-backend/internal/session"
	"github.com/DoyleJ11/dobble-backend/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "dobble-server",
	Short:         "Multiplayer symbol matching game server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			EnvFiles:   []string{".env"},
			ConfigFile: cfgFile,
			Flags:      cmd.Flags(),
		})
		if err != nil {
			return err
		}

		log, err := logging.New(cfg.LogLevel, cfg.LogDev)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, log)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (toml, yaml or json)")
	f.String("tcp-addr", ":8080", "game protocol listen address")
	f.String("http-addr", ":8081", "admin API and websocket listen address")
	f.String("catalog", "cards.json", "card catalog file")
	f.Int("min-players", 2, "players needed to start a match")
	f.Bool("auto-restart", true, "start the next match when one ends")
	f.String("log-level", "info", "debug, info, warn or error")
	f.Bool("log-dev", false, "human readable logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		log.Error("catalog unusable", zap.String("path", cfg.Catalog), zap.Error(err))
		return err
	}
	log.Info("catalog loaded", zap.String("path", cfg.Catalog), zap.Int("cards", cat.Len()))

	var sinks []results.Sink
	var closers []func() error
	defer func() {
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
	}()

	if cfg.DatabaseURL != "" {
		rec, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		sinks = append(sinks, rec)
		closers = append(closers, rec.Close)
		log.Info("recording match results to database")
	}
	if cfg.NATSURL != "" {
		pub, nc, err := bus.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		closers = append(closers, nc.Drain)
		log.Info("publishing match results", zap.String("subject", pub.Subject(0)))
	}

	dispatcher := results.NewDispatcher(cfg.ResultsBuffer, log.Named("results"), sinks...)

	h := hub.NewHub(ctx, hub.Options{
		Catalog:     cat,
		Rules:       engine.Rules{MinPlayers: cfg.MinPlayers},
		AutoRestart: cfg.AutoRestart,
		Sink:        dispatcher,
		Logger:      log.Named("lobby"),
	})
	defer h.Shutdown()

	sess := session.NewHandler(h, session.Config{
		JoinTimeout:   cfg.JoinTimeout,
		IdleTimeout:   cfg.IdleTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		OutboxSize:    cfg.OutboxSize,
		SendRejection: cfg.SendRejection,
	}, log.Named("session"))

	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.TCPAddr, err)
	}
	tcp := server.New(sess, log.Named("tcp"))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, sess, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return tcp.Serve(gctx, ln) })
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped", zap.Error(err))
	return err
}
