package cmd

import "context"

// wrapped keeps a command's name and description but swaps its Run.
type wrapped struct {
	Command
	run func(ctx context.Context, inv *Invocation) error
}

func (w wrapped) Run(ctx context.Context, inv *Invocation) error {
	return w.run(ctx, inv)
}

// Wrap returns c with run in place of c.Run. Middleware builds on it.
func Wrap(c Command, run func(ctx context.Context, inv *Invocation) error) Command {
	if run == nil {
		return c
	}
	return wrapped{Command: c, run: run}
}
