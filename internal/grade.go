// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/youngkin/heyload/api"
)

// Grader maps throughput and latency onto the labels configured in
// api.Thresholds.
type Grader struct {
	Thresholds api.Thresholds
}

// ValidateThresholds checks that the tiers are ordered and labeled.
func ValidateThresholds(t api.Thresholds) error {
	if t.ThroughputFloor == "" || t.LatencyCeiling == "" {
		return errors.Wrap(ErrInvalidConfig, "thresholds need a throughput_floor and a latency_ceiling label")
	}
	for i, tier := range t.Throughput {
		if tier.Label == "" {
			return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("throughput tier %d has no label", i))
		}
		if i > 0 && tier.MinRPS >= t.Throughput[i-1].MinRPS {
			return errors.Wrap(ErrInvalidConfig, "throughput tiers must be ordered by descending min_rps")
		}
	}
	for i, tier := range t.Latency {
		if tier.Label == "" {
			return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("latency tier %d has no label", i))
		}
		if i > 0 && tier.BelowMs <= t.Latency[i-1].BelowMs {
			return errors.Wrap(ErrInvalidConfig, "latency tiers must be ordered by ascending below_ms")
		}
	}
	return nil
}

// throughputRank returns 0 for the best tier and len(tiers) for the floor.
func (g Grader) throughputRank(rps float64) int {
	for i, tier := range g.Thresholds.Throughput {
		if rps >= tier.MinRPS {
			return i
		}
	}
	return len(g.Thresholds.Throughput)
}

func (g Grader) throughputLabel(rank int) string {
	if rank < len(g.Thresholds.Throughput) {
		return g.Thresholds.Throughput[rank].Label
	}
	return g.Thresholds.ThroughputFloor
}

// latencyRank returns 0 for the best tier and len(tiers) for the ceiling.
func (g Grader) latencyRank(meanMs float64) int {
	for i, tier := range g.Thresholds.Latency {
		if meanMs < tier.BelowMs {
			return i
		}
	}
	return len(g.Thresholds.Latency)
}

func (g Grader) latencyLabel(rank int) string {
	if rank < len(g.Thresholds.Latency) {
		return g.Thresholds.Latency[rank].Label
	}
	return g.Thresholds.LatencyCeiling
}

// Throughput returns the label for rps.
func (g Grader) Throughput(rps float64) string {
	return g.throughputLabel(g.throughputRank(rps))
}

// Latency returns the label for a mean latency, api.NotApplicable if there's
// no data.
func (g Grader) Latency(meanMs *float64) string {
	if meanMs == nil {
		return api.NotApplicable
	}
	return g.latencyLabel(g.latencyRank(*meanMs))
}

// Overall returns the worst throughput and latency tiers found in grades,
// ignoring api.NotApplicable entries.
func (g Grader) Overall(grades []api.SuiteGrade) api.SuiteGrade {
	tRank, lRank := -1, -1
	tRanks := make(map[string]int)
	for i, tier := range g.Thresholds.Throughput {
		tRanks[tier.Label] = i
	}
	tRanks[g.Thresholds.ThroughputFloor] = len(g.Thresholds.Throughput)
	lRanks := make(map[string]int)
	for i, tier := range g.Thresholds.Latency {
		lRanks[tier.Label] = i
	}
	lRanks[g.Thresholds.LatencyCeiling] = len(g.Thresholds.Latency)

	for _, sg := range grades {
		if r, ok := tRanks[sg.Throughput]; ok && r > tRank {
			tRank = r
		}
		if r, ok := lRanks[sg.Latency]; ok && r > lRank {
			lRank = r
		}
	}

	overall := api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable}
	if tRank >= 0 {
		overall.Throughput = g.throughputLabel(tRank)
	}
	if lRank >= 0 {
		overall.Latency = g.latencyLabel(lRank)
	}
	return overall
}

// ReportBuilder collects suite outputs and grades them into a Report.
type ReportBuilder struct {
	grader Grader
	runID  string
	start  time.Time
	suites map[string]api.SuiteReport
	order  []string
}

// NewReportBuilder returns a builder for a run that started at start.
func NewReportBuilder(t api.Thresholds, start time.Time) *ReportBuilder {
	return &ReportBuilder{
		grader: Grader{Thresholds: t},
		runID:  uuid.New().String(),
		start:  start,
		suites: make(map[string]api.SuiteReport),
	}
}

func (b *ReportBuilder) add(s api.SuiteReport) {
	if _, ok := b.suites[s.Name]; !ok {
		b.order = append(b.order, s.Name)
	}
	b.suites[s.Name] = s
}

// AddLadder adds a ladder run, graded on its final (highest) level.
func (b *ReportBuilder) AddLadder(levels []api.LevelResult) {
	grade := api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable}
	if len(levels) > 0 {
		last := levels[len(levels)-1]
		grade.Throughput = b.grader.Throughput(last.RPS)
		grade.Latency = b.grader.Latency(last.Latency.MeanMs)
	}
	if levels == nil {
		levels = []api.LevelResult{}
	}
	b.add(api.SuiteReport{Name: api.LadderSuite, Levels: levels, Grade: grade})
}

// AddStress adds a stress run, graded on its average throughput and mean
// latency. A run that dispatched nothing is graded n/a.
func (b *ReportBuilder) AddStress(res api.StressResult) {
	grade := api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable}
	if res.TotalRequests > 0 {
		grade.Throughput = b.grader.Throughput(res.AvgRPS)
	}
	if res.Latency != nil {
		grade.Latency = b.grader.Latency(res.Latency.MeanMs)
	}
	b.add(api.SuiteReport{Name: api.StressSuite, Stress: &res, Grade: grade})
}

// AddEndpoints adds an endpoint suite, graded on the mean of the endpoint
// mean latencies. Sequential requests say nothing about throughput.
func (b *ReportBuilder) AddEndpoints(results map[string]api.EndpointResult) {
	if results == nil {
		results = map[string]api.EndpointResult{}
	}
	var sum float64
	var n int
	for _, r := range results {
		if r.Latency.MeanMs != nil {
			sum += *r.Latency.MeanMs
			n++
		}
	}
	grade := api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable}
	if n > 0 {
		mean := sum / float64(n)
		grade.Latency = b.grader.Latency(&mean)
	}
	b.add(api.SuiteReport{Name: api.EndpointSuite, Endpoints: results, Grade: grade})
}

// Build returns the graded report as of now.
func (b *ReportBuilder) Build(now time.Time) api.Report {
	grades := make([]api.SuiteGrade, 0, len(b.order))
	suites := make(map[string]api.SuiteReport, len(b.suites))
	for _, name := range b.order {
		grades = append(grades, b.suites[name].Grade)
		suites[name] = b.suites[name]
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	return api.Report{
		RunID:        b.runID,
		Timestamp:    now,
		TotalElapsed: now.Sub(b.start),
		Suites:       suites,
		SuiteOrder:   order,
		Grade:        b.grader.Overall(grades),
	}
}
