// cmd/heartline/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/heartline/internal/app"
	"github.com/keshon/heartline/internal/cleanup"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/pkg/jobmgr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, foundEnv, err := config.Load()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.Log
	if !foundEnv {
		log.Info().Msg("no .env file found, using process environment")
	}

	jobs := jobmgr.NewManager(func(ev jobmgr.Event) {
		log.Info().Str("job", ev.Name).Str("state", string(ev.State)).AnErr("err", ev.Err).Msg("job")
	})
	sched := cleanup.NewScheduler(a.Engine.Cleanup, jobs, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.Info().Dur("interval", cfg.CleanupInterval).Msg("heartline running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := sched.Stop(); err != nil && !errors.Is(err, jobmgr.ErrNotRunning) {
		log.Warn().Err(err).Msg("stop scheduler")
	}
	jobs.StopAll()
	log.Info().Msg("heartline exited cleanly")
	return nil
}
