package util

import (
	"context"
	"sync"
)

// Parallel runs fn over inputs on at most workerLimit goroutines. The first
// error cancels the context handed to fn and is returned; inputs not yet
// started are skipped. A cancelled parent yields ctx.Err().
func Parallel[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	workerLimit = max(1, min(workerLimit, len(inputs)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	tasks := make(chan T)

	for range workerLimit {
		wg.Go(func() {
			for item := range tasks {
				if err := fn(ctx, item); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
			}
		})
	}

feed:
	for _, item := range inputs {
		select {
		case <-ctx.Done():
			break feed
		case tasks <- item:
		}
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
