package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/identity-authority/internal/logging"
)

// background runs work detached from the request that started it. Wait
// blocks until every started job has returned.
type background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     logging.Logger
}

func (b *background) Go(ctx context.Context, name string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		jobCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		if err := fn(jobCtx); err != nil {
			b.log.Warn(ctx, "background job failed", "job", name, "err", err)
		}
	}()
}

func (b *background) Wait() { b.wg.Wait() }
