// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

// StressProgress is a snapshot of a stress run taken at a batch boundary.
type StressProgress struct {
	Elapsed    time.Duration
	Deadline   time.Duration
	Batches    int
	Total      int
	Successful int
	Failed     int
	// RunningRPS is Total / Elapsed, a smoothed average rather than a peak
	RunningRPS float64
}

// StressRunner keeps issuing batches of concurrent requests until a wall
// clock deadline passes.
type StressRunner struct {
	// Executor runs each batch
	Executor  Executor
	Spec      api.RequestSpec
	Duration  time.Duration
	BatchSize int
	// OnBatch, if set, is called after every batch. It's outside of the
	// measured batch span.
	OnBatch func(StressProgress)
}

// Run issues batches while the elapsed time is below the deadline. The
// deadline is only checked between batches so the result's duration may
// overshoot it by up to one batch; in-flight requests are never preempted.
// A canceled ctx ends the run at the next batch boundary.
func (s *StressRunner) Run(ctx context.Context) api.StressResult {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	agg := NewAggregate(0)
	var (
		elapsed time.Duration
		batches int
		peakRPS float64
	)

	start := time.Now()
	for elapsed < s.Duration {
		if ctx.Err() != nil {
			log.Info().Dur("elapsed", elapsed).Msg("StressRunner canceled")
			break
		}
		span := s.Executor.Execute(ctx, batchSize, s.Spec, agg.Record)
		// The single authoritative clock read for this batch, used for both
		// the deadline check and progress.
		elapsed = time.Since(start)
		batches++

		if rps := Throughput(batchSize, span); rps > peakRPS {
			peakRPS = rps
		}
		if s.OnBatch != nil {
			successes, total := agg.Counts()
			s.OnBatch(StressProgress{
				Elapsed:    elapsed,
				Deadline:   s.Duration,
				Batches:    batches,
				Total:      total,
				Successful: successes,
				Failed:     total - successes,
				RunningRPS: Throughput(total, elapsed),
			})
		}
	}

	successes, total := agg.Counts()
	res := api.StressResult{
		RequestedDurationS: s.Duration.Seconds(),
		DurationS:          elapsed.Seconds(),
		BatchSize:          batchSize,
		Batches:            batches,
		TotalRequests:      total,
		Successful:         successes,
		Failed:             total - successes,
		SuccessRate:        SuccessRate(successes, total),
		AvgRPS:             Throughput(total, elapsed),
		PeakRPS:            peakRPS,
	}
	if sample := agg.Latencies(); len(sample) > 0 {
		stats := Summarize(sample)
		res.Latency = &stats
		res.Sample = sample
	}
	log.Info().Int("batches", batches).Int("totalRqsts", total).Dur("elapsed", elapsed).Msg("StressRunner complete")
	return res
}
