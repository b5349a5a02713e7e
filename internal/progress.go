// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
	"github.com/youngkin/heyload/api"
)

// Progress renders progress bars for the ladder and stress suites. A nil
// *Progress is valid and renders nothing.
type Progress struct {
	p    *mpb.Progress
	bars []*mpb.Bar
}

// NewProgress returns a Progress writing to out.
func NewProgress(out io.Writer) *Progress {
	return &Progress{p: mpb.New(mpb.WithOutput(out), mpb.WithWidth(48))}
}

// LadderHook returns a Ladder.OnLevel callback that advances a bar by one per
// completed level.
func (pr *Progress) LadderHook(levels []int) func(api.LevelResult) {
	if pr == nil || len(levels) == 0 {
		return nil
	}
	bar := pr.p.AddBar(int64(len(levels)),
		mpb.PrependDecorators(
			decor.Name("load levels ", decor.WC{W: 14, C: decor.DidentRight}),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	pr.bars = append(pr.bars, bar)
	return func(api.LevelResult) {
		bar.Increment()
	}
}

// StressHook returns a StressRunner.OnBatch callback that tracks elapsed time
// against the deadline.
func (pr *Progress) StressHook(deadline time.Duration) func(StressProgress) {
	if pr == nil || deadline <= 0 {
		return nil
	}
	total := deadline.Milliseconds()
	// rps is written by the runner and read by the render goroutine
	var rps uint64
	bar := pr.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name("stress ", decor.WC{W: 14, C: decor.DidentRight}),
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("%8.1f rqsts/sec", math.Float64frombits(atomic.LoadUint64(&rps)))
			}),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	pr.bars = append(pr.bars, bar)
	return func(sp StressProgress) {
		atomic.StoreUint64(&rps, math.Float64bits(sp.RunningRPS))
		current := sp.Elapsed.Milliseconds()
		if current > total {
			current = total
		}
		bar.SetCurrent(current)
	}
}

// Wait completes any bar that didn't reach its total, e.g., on cancellation,
// and waits for rendering to finish.
func (pr *Progress) Wait() {
	if pr == nil {
		return
	}
	for _, bar := range pr.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	pr.p.Wait()
}
