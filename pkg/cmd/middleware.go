package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Middleware wraps a command (e.g. logging, timeouts).
type Middleware func(Command) Command

// Apply applies middlewares in order; the last in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for _, mw := range mws {
		c = mw(c)
	}
	return c
}

// WithLogger logs every run with its duration and error.
func WithLogger(log zerolog.Logger) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)
			ev := log.Info()
			if err != nil {
				ev = log.Error().Err(err)
			}
			ev.Str("command", c.Name()).Strs("args", inv.Args).Dur("took", time.Since(start)).Msg("command finished")
			return err
		})
	}
}

// WithTimeout bounds each run. A zero d leaves the context alone.
func WithTimeout(d time.Duration) Middleware {
	return func(c Command) Command {
		if d <= 0 {
			return c
		}
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return c.Run(ctx, inv)
		})
	}
}
