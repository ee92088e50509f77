package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/logging"
)

func main() {
	var opts botOptions
	var logDev bool

	cmd := &cobra.Command{
		Use:           "dobblebot",
		Short:         "Headless player that joins a lobby and guesses the shared symbol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New("info", logDev)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cat, err := catalog.Load(opts.catalog)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b := &bot{opts: opts, cat: cat, log: log.With(zap.String("bot", opts.name))}
			return b.run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "localhost:8080", "server address")
	f.StringVar(&opts.catalog, "catalog", "cards.json", "card catalog file, must match the server's")
	f.Int32Var(&opts.lobby, "lobby", 0, "lobby id to join")
	f.StringVar(&opts.name, "name", "bot", "player name")
	f.DurationVar(&opts.delay, "delay", 500*time.Millisecond, "think time before each guess")
	f.BoolVar(&opts.loop, "loop", false, "keep playing after a match ends")
	f.BoolVar(&logDev, "log-dev", true, "human readable logs")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
