// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/youngkin/heyload/api"
	"golang.org/x/sync/errgroup"
)

// Requester sends a single request. *Dispatcher is the production
// implementation.
type Requester interface {
	Dispatch(ctx context.Context, spec api.RequestSpec) Outcome
}

// Executor runs n concurrent dispatches of spec, calling fold once per
// Outcome. fold is never called concurrently, so it can update shared state
// without further locking. Execute returns the wall span from the release of
// the first dispatch to the completion of the last.
//
// WorkerPool and Batched are interchangeable: callers only see Outcomes.
type Executor interface {
	Execute(ctx context.Context, n int, spec api.RequestSpec, fold func(Outcome)) time.Duration
}

// NewExecutor returns the Executor for the given dispatch model.
func NewExecutor(model string, r Requester, maxWorkers, batchSize int) (Executor, error) {
	switch model {
	case api.PoolModel, "":
		return &WorkerPool{Requester: r, MaxWorkers: maxWorkers}, nil
	case api.BatchModel:
		return &Batched{Requester: r, BatchSize: batchSize}, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfig, "unknown dispatch model %q", model)
}

// WorkerPool runs each dispatch on a worker for its full duration. The pool
// has one worker per dispatch unless MaxWorkers caps it, in which case
// dispatches queue for a free worker and the measured span reflects that.
type WorkerPool struct {
	Requester  Requester
	MaxWorkers int
}

// Execute implements Executor.
func (p *WorkerPool) Execute(ctx context.Context, n int, spec api.RequestSpec, fold func(Outcome)) time.Duration {
	if n <= 0 {
		return 0
	}
	size := n
	if p.MaxWorkers > 0 && size > p.MaxWorkers {
		size = p.MaxWorkers
	}

	jobs := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	// Workers block on startC so they're all running before the first
	// request goes out, keeping start skew out of the measurement.
	startC := make(chan struct{})
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(size)
	for i := 0; i < size; i++ {
		g.Go(func() error {
			<-startC
			for range jobs {
				o := p.Requester.Dispatch(ctx, spec)
				mu.Lock()
				fold(o)
				mu.Unlock()
			}
			return nil
		})
	}

	start := time.Now()
	close(startC)
	// The group only bounds and joins the workers. Failures travel in
	// Outcomes, so no worker returns an error.
	_ = g.Wait()
	return time.Since(start)
}

// Batched issues dispatches in groups of BatchSize. Every request in a batch
// is in flight at once and the whole batch is gathered before the next one
// starts. A BatchSize of zero sends all n in a single batch.
type Batched struct {
	Requester Requester
	BatchSize int
}

// Execute implements Executor.
func (b *Batched) Execute(ctx context.Context, n int, spec api.RequestSpec, fold func(Outcome)) time.Duration {
	if n <= 0 {
		return 0
	}
	size := b.BatchSize
	if size <= 0 || size > n {
		size = n
	}

	start := time.Now()
	for remaining := n; remaining > 0; remaining -= size {
		if remaining < size {
			size = remaining
		}
		resultC := make(chan Outcome, size)
		for i := 0; i < size; i++ {
			go func() {
				resultC <- b.Requester.Dispatch(ctx, spec)
			}()
		}
		batch := make([]Outcome, 0, size)
		for i := 0; i < size; i++ {
			batch = append(batch, <-resultC)
		}
		for _, o := range batch {
			fold(o)
		}
	}
	return time.Since(start)
}
