package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for a name nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

// Registry stores commands by name and applies shared middleware on registration.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	mws      []Middleware
}

// NewRegistry returns an empty registry. mws wrap every registered command.
func NewRegistry(mws ...Middleware) *Registry {
	return &Registry{commands: make(map[string]Command), mws: mws}
}

// Register adds commands, replacing any with the same name.
func (r *Registry) Register(cs ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		r.commands[c.Name()] = Apply(c, r.mws...)
	}
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// GetAll returns all registered commands, sorted by name.
func (r *Registry) GetAll() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Dispatch runs the named command.
func (r *Registry) Dispatch(ctx context.Context, name string, inv *Invocation) error {
	c := r.Get(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return c.Run(ctx, inv)
}

// Usage writes one line per command.
func (r *Registry) Usage(w io.Writer) {
	for _, c := range r.GetAll() {
		fmt.Fprintf(w, "  %-10s %s\n", c.Name(), c.Description())
	}
}
