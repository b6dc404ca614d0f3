// Package cmd provides a transport-agnostic command core: a command is something
// with a name, description, and Run(ctx, invocation). How it is dispatched
// (CLI subcommand, scheduled job, HTTP) is up to the caller.
package cmd

import (
	"context"
	"io"
)

// Invocation carries the input a runner passes: arguments, an output stream
// and an opaque payload for adapter state.
type Invocation struct {
	Args []string
	Out  io.Writer
	Data any
}

// Command is the universal contract: identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Func builds a Command from a function.
func Func(name, description string, run func(ctx context.Context, inv *Invocation) error) Command {
	return &funcCommand{name: name, description: description, run: run}
}

type funcCommand struct {
	name        string
	description string
	run         func(ctx context.Context, inv *Invocation) error
}

func (f *funcCommand) Name() string        { return f.name }
func (f *funcCommand) Description() string { return f.description }
func (f *funcCommand) Run(ctx context.Context, inv *Invocation) error {
	return f.run(ctx, inv)
}
