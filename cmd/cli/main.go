// cmd/cli/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keshon/heartline/internal/app"
	"github.com/keshon/heartline/internal/cleanup"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/engine"
	"github.com/keshon/heartline/pkg/cmd"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr, nil)
		os.Exit(2)
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}

	reg := commands(a.Engine, a.Log, cmd.WithLogger(a.Log))
	err = reg.Dispatch(ctx, os.Args[1], &cmd.Invocation{Args: os.Args[2:], Out: os.Stdout})
	a.Close()
	if errors.Is(err, cmd.ErrUnknownCommand) {
		usage(os.Stderr, reg)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func usage(w io.Writer, reg *cmd.Registry) {
	fmt.Fprintln(w, "usage: heartline-cli <command> [args]")
	if reg == nil {
		reg = commands(nil, zerolog.Nop())
	}
	reg.Usage(w)
}

func commands(e *engine.Engine, log zerolog.Logger, mws ...cmd.Middleware) *cmd.Registry {
	reg := cmd.NewRegistry(mws...)
	reg.Register(
		cmd.Func("cleanup", "expire stale, duplicate and excess loops now", func(ctx context.Context, inv *cmd.Invocation) error {
			return runCleanup(ctx, e, log, inv)
		}),
		cmd.Func("context", "print the persona context for a user", func(ctx context.Context, inv *cmd.Invocation) error {
			userID, err := oneArg(inv, "context <user>")
			if err != nil {
				return err
			}
			pc, err := e.BuildPersonaContext(ctx, userID)
			fmt.Fprint(inv.Out, pc.Text())
			return err
		}),
		cmd.Func("loops", "list a user's loops", func(ctx context.Context, inv *cmd.Invocation) error {
			userID, err := oneArg(inv, "loops <user>")
			if err != nil {
				return err
			}
			loops, err := e.Presence.Loops().List(ctx, userID)
			if err != nil {
				return err
			}
			for _, l := range loops {
				fmt.Fprintf(inv.Out, "%s  %-9s %-20s %.2f  %s\n", l.ID, l.Status, l.Category, l.Salience, l.Topic)
			}
			return nil
		}),
		cmd.Func("people", "list the people a user has talked about", func(ctx context.Context, inv *cmd.Invocation) error {
			userID, err := oneArg(inv, "people <user>")
			if err != nil {
				return err
			}
			people, err := e.People.ListPeople(ctx, userID)
			if err != nil {
				return err
			}
			for _, p := range people {
				fmt.Fprintf(inv.Out, "%-20s %-12s mentions=%d\n", p.PersonName, p.Closeness, p.MentionCount)
			}
			return nil
		}),
		cmd.Func("say", "feed one message as a user and print what changed", func(ctx context.Context, inv *cmd.Invocation) error {
			if len(inv.Args) < 2 {
				return errors.New("usage: say <user> <message...>")
			}
			turn, err := e.HandleMessage(ctx, inv.Args[0], strings.Join(inv.Args[1:], " "))
			if perr := printJSON(inv.Out, turn); perr != nil {
				return perr
			}
			return err
		}),
		cmd.Func("users", "list users that own loops", func(ctx context.Context, inv *cmd.Invocation) error {
			users, err := e.Presence.Loops().Users(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintln(inv.Out, u)
			}
			return nil
		}),
	)
	return reg
}

func runCleanup(ctx context.Context, e *engine.Engine, log zerolog.Logger, inv *cmd.Invocation) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(inv.Out)
	user := fs.String("user", "", "clean only this user")
	maxAge := fs.Int("max-age-days", 0, "override maximum loop age")
	maxActive := fs.Int("max-active", 0, "override active loop cap")
	maxSurfaced := fs.Int("max-surfaced", 0, "override surfaced loop cap")
	if err := fs.Parse(inv.Args); err != nil {
		return err
	}
	opts := &cleanup.Options{
		MaxLoopAgeDays:   *maxAge,
		MaxActiveLoops:   *maxActive,
		MaxSurfacedLoops: *maxSurfaced,
	}

	if *user != "" {
		res := e.Cleanup.RunScheduledCleanup(ctx, *user, opts)
		if err := printJSON(inv.Out, res); err != nil {
			return err
		}
		if !res.Success {
			return errors.New("cleanup finished with errors")
		}
		return nil
	}

	sched := cleanup.NewScheduler(e.Cleanup, nil, log)
	sum, err := sched.TriggerNow(ctx, opts)
	if perr := printJSON(inv.Out, sum); perr != nil {
		return perr
	}
	return err
}

func oneArg(inv *cmd.Invocation, usage string) (string, error) {
	if len(inv.Args) != 1 || strings.TrimSpace(inv.Args[0]) == "" {
		return "", errors.New("usage: " + usage)
	}
	return inv.Args[0], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
