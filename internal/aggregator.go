// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/youngkin/heyload/api"
)

// Aggregate accumulates Outcomes for a level or a stress run. Only the
// counts and the latency values are retained. It is safe for concurrent use.
type Aggregate struct {
	mu        sync.Mutex
	total     int
	successes int
	classes   map[ErrorClass]int
	latencies []time.Duration
}

// NewAggregate returns an empty Aggregate sized for capacity Outcomes.
func NewAggregate(capacity int) *Aggregate {
	if capacity < 0 {
		capacity = 0
	}
	return &Aggregate{
		classes:   make(map[ErrorClass]int),
		latencies: make([]time.Duration, 0, capacity),
	}
}

// Record folds o into the running totals.
func (a *Aggregate) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if o.Success {
		a.successes++
	} else {
		a.classes[o.Class]++
	}
	if o.HasLatency {
		a.latencies = append(a.latencies, o.Latency)
	}
}

// Counts returns the number of successful and total Outcomes recorded.
func (a *Aggregate) Counts() (successes, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successes, a.total
}

// Failures returns the number of failed Outcomes by ErrorClass.
func (a *Aggregate) Failures() map[ErrorClass]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[ErrorClass]int, len(a.classes))
	for k, v := range a.classes {
		out[k] = v
	}
	return out
}

// Latencies returns a copy of the latency sample.
func (a *Aggregate) Latencies() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]time.Duration, len(a.latencies))
	copy(out, a.latencies)
	return out
}

// Stats summarizes the latency sample.
func (a *Aggregate) Stats() api.LatencyStats {
	return Summarize(a.Latencies())
}

// Summarize computes min, max, mean and nearest-rank percentiles for sample.
// sample isn't modified. An empty sample produces "no data" (nil) values.
func Summarize(sample []time.Duration) api.LatencyStats {
	stats := api.LatencyStats{Count: len(sample)}
	if len(sample) == 0 {
		return stats
	}

	sorted := make([]time.Duration, len(sample))
	copy(sorted, sample)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	stats.MinMs = millis(sorted[0])
	stats.MaxMs = millis(sorted[len(sorted)-1])
	mean := float64(sum) / float64(len(sorted)) / float64(time.Millisecond)
	stats.MeanMs = &mean
	stats.MedianMs = millis(Percentile(sorted, 0.50))
	stats.P95Ms = millis(Percentile(sorted, 0.95))
	stats.P99Ms = millis(Percentile(sorted, 0.99))
	return stats
}

// Percentile returns the nearest-rank percentile p, in [0,1], of sorted,
// which must be in ascending order. The index is floor(p*n) clamped to
// [0, n-1]. Zero is returned for an empty slice; callers that need to
// distinguish "no data" must check the length themselves.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// SuccessRate returns 100 * successes / total, or 0 when total is 0.
func SuccessRate(successes, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := 100 * float64(successes) / float64(total)
	return math.Max(0, math.Min(100, rate))
}

// Throughput returns n / span in requests per second, or 0 for a
// non-positive span.
func Throughput(n int, span time.Duration) float64 {
	if span <= 0 {
		return 0
	}
	return float64(n) / span.Seconds()
}

func millis(d time.Duration) *float64 {
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
