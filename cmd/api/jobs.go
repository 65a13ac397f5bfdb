package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"contact-automation/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// jobRunner runs periodic jobs. With redis configured each tick takes a
// lease first, so only one replica runs a given job at a time.
type jobRunner struct {
	log *slog.Logger
	rdb *redis.Client
	bg  *utils.Group

	once  sync.Once
	owner string
	done  chan struct{}
}

func (j *jobRunner) init() {
	j.once.Do(func() {
		j.owner = uuid.NewString()
		j.done = make(chan struct{})
	})
}

func (j *jobRunner) every(name string, interval time.Duration, fn func(ctx context.Context) (int, error)) {
	j.init()
	j.bg.Go("job:"+name, func(ctx context.Context) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-j.done:
				return
			case <-t.C:
				j.tick(ctx, name, interval, fn)
			}
		}
	})
}

func (j *jobRunner) tick(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) (int, error)) {
	log := j.log.With("job", name)
	if j.rdb != nil {
		key := "lease:job:" + name
		ok, err := utils.AcquireLease(ctx, j.rdb, key, j.owner, interval)
		if err != nil {
			log.Warn("job lease failed", "err", err)
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := utils.ReleaseLease(context.WithoutCancel(ctx), j.rdb, key, j.owner); err != nil {
				log.Warn("job lease release failed", "err", err)
			}
		}()
	}

	n, err := fn(ctx)
	if err != nil {
		log.Error("job failed", "err", err, "processed", n)
		return
	}
	if n > 0 {
		log.Info("job done", "processed", n)
	}
}

// stop ends every ticker loop; a tick already running finishes.
func (j *jobRunner) stop() {
	j.init()
	close(j.done)
}
