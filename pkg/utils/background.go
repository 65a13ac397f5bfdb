package utils

import (
	"context"
	"log/slog"
	"sync"
)

// Group runs detached background work (webhook follow-ups, greetings)
// so that shutdown can wait for it. A panic in one task is logged and
// does not take the process down.
type Group struct {
	ctx context.Context
	log *slog.Logger
	wg  sync.WaitGroup
}

// NewGroup binds tasks to ctx. Cancel ctx to ask running tasks to stop.
func NewGroup(ctx context.Context, log *slog.Logger) *Group {
	if log == nil {
		log = slog.Default()
	}
	return &Group{ctx: ctx, log: log}
}

// Go starts fn in its own goroutine.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				g.log.Error("background task panicked", "task", name, "panic", p)
			}
		}()
		fn(g.ctx)
	}()
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() { g.wg.Wait() }
