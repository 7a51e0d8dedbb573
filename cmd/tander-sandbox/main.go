// tander-sandbox runs a self-contained TANDER backend on localhost:
// seeded accounts, REST and the STOMP push endpoint. Point the client
// at it with --api/--ws for demos and end-to-end testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/logging"
	"github.com/tanderapp/tander/internal/sandbox"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:8080", "listen address")
	limitFlag := flag.Int("limit", 0, "daily like limit per account (0 = unlimited)")
	secretFlag := flag.String("secret", "", "token signing secret (development default when empty)")
	noSeedFlag := flag.Bool("no-seed", false, "start with an empty world instead of the demo cast")
	logFlag := flag.String("log", "tander-sandbox.log", "JSON log file, teed with stderr")
	flag.Parse()

	log, err := logging.New(*logFlag, "sandbox")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	srv := sandbox.NewServer(sandbox.Options{
		Addr:       *addrFlag,
		Secret:     *secretFlag,
		DailyLimit: *limitFlag,
		Seed:       !*noSeedFlag,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- srv.Start() }()

	select {
	case err := <-errs:
		if err != nil {
			log.Fatal("sandbox failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
	}
}
