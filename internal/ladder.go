// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

// LevelRunner drives exactly N concurrent dispatches for a single
// concurrency level.
type LevelRunner struct {
	Executor Executor
	Spec     api.RequestSpec
}

// Run issues level dispatches, waits for all of them and summarizes the
// Outcomes.
func (lr *LevelRunner) Run(ctx context.Context, level int) api.LevelResult {
	agg := NewAggregate(level)
	span := lr.Executor.Execute(ctx, level, lr.Spec, agg.Record)

	successes, total := agg.Counts()
	sample := agg.Latencies()
	return api.LevelResult{
		Level:       level,
		Requests:    total,
		Successes:   successes,
		Failures:    total - successes,
		WallTimeS:   span.Seconds(),
		RPS:         Throughput(total, span),
		SuccessRate: SuccessRate(successes, total),
		Latency:     Summarize(sample),
		Sample:      sample,
	}
}

// Ladder runs a LevelRunner over an increasing list of concurrency levels,
// one level at a time.
type Ladder struct {
	Runner *LevelRunner
	Levels []int
	// Settle is slept between levels
	Settle time.Duration
	// OnLevel, if set, is called after each level completes
	OnLevel func(api.LevelResult)
}

// Run executes each level in order. The returned results match Levels
// one-to-one unless ctx is canceled, in which case the levels completed so
// far are returned along with ctx's error.
func (l *Ladder) Run(ctx context.Context) ([]api.LevelResult, error) {
	if err := ValidateLevels(l.Levels); err != nil {
		return nil, err
	}

	results := make([]api.LevelResult, 0, len(l.Levels))
	for i, level := range l.Levels {
		if i > 0 && l.Settle > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(l.Settle):
			}
		}
		if ctx.Err() != nil {
			log.Info().Int("completedLevels", len(results)).Msg("Ladder canceled")
			return results, ctx.Err()
		}

		log.Debug().Int("level", level).Msg("Ladder starting level")
		res := l.Runner.Run(ctx, level)
		log.Info().Int("level", level).Float64("rps", res.RPS).Float64("successRate", res.SuccessRate).
			Msg("Ladder level complete")
		results = append(results, res)
		if l.OnLevel != nil {
			l.OnLevel(res)
		}
	}
	return results, nil
}

// ValidateLevels checks that levels is non-empty, positive and strictly
// increasing.
func ValidateLevels(levels []int) error {
	if len(levels) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no concurrency levels")
	}
	for i, lvl := range levels {
		if lvl <= 0 {
			return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("concurrency level %d must be positive", lvl))
		}
		if i > 0 && lvl <= levels[i-1] {
			return errors.Wrap(ErrInvalidConfig,
				fmt.Sprintf("concurrency levels must be strictly increasing, %d follows %d", lvl, levels[i-1]))
		}
	}
	return nil
}
