package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

/* Group runs background tasks bound to a shared base context
 * Tasks recover from panics and log their errors; Shutdown cancels and drains them
 */
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewGroup creates a group whose tasks outlive any request context
func NewGroup(logger zerolog.Logger) *Group {
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn in a goroutine; a non-zero timeout bounds the task
func (g *Group) Go(taskName string, timeout time.Duration, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx := g.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				g.logger.Error().
					Str("task", taskName).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			g.logger.Error().Err(err).Str("task", taskName).Msg("background task failed")
		}
	}()
}

// Shutdown cancels the base context and waits for tasks to return or ctx to end
func (g *Group) Shutdown(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every running task returns
func (g *Group) Wait() {
	g.wg.Wait()
}
