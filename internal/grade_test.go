// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/heyload/api"
)

func fp(f float64) *float64 {
	return &f
}

func TestGrader(t *testing.T) {
	g := Grader{Thresholds: api.DefaultThresholds()}

	throughput := []struct {
		rps      float64
		expected string
	}{
		{rps: 10000, expected: "ultra"},
		{rps: 5000, expected: "ultra"},
		{rps: 4999.9, expected: "high"},
		{rps: 1000, expected: "high"},
		{rps: 999, expected: "standard"},
		{rps: 0, expected: "standard"},
	}
	for _, tc := range throughput {
		assert.Equal(t, tc.expected, g.Throughput(tc.rps), "rps %f", tc.rps)
	}

	latency := []struct {
		meanMs   *float64
		expected string
	}{
		{meanMs: fp(0), expected: "excellent"},
		{meanMs: fp(19.99), expected: "excellent"},
		{meanMs: fp(20), expected: "good"},
		{meanMs: fp(49), expected: "good"},
		{meanMs: fp(50), expected: "acceptable"},
		{meanMs: fp(99.9), expected: "acceptable"},
		{meanMs: fp(100), expected: "slow"},
		{meanMs: nil, expected: api.NotApplicable},
	}
	for _, tc := range latency {
		assert.Equal(t, tc.expected, g.Latency(tc.meanMs))
	}
}

func TestGraderOverall(t *testing.T) {
	g := Grader{Thresholds: api.DefaultThresholds()}

	tests := []struct {
		testName string
		grades   []api.SuiteGrade
		expected api.SuiteGrade
	}{
		{
			testName: "worst tier wins",
			grades: []api.SuiteGrade{
				{Throughput: "ultra", Latency: "excellent"},
				{Throughput: "standard", Latency: "good"},
				{Throughput: "high", Latency: "acceptable"},
			},
			expected: api.SuiteGrade{Throughput: "standard", Latency: "acceptable"},
		},
		{
			testName: "n/a is ignored",
			grades: []api.SuiteGrade{
				{Throughput: api.NotApplicable, Latency: "slow"},
				{Throughput: "high", Latency: api.NotApplicable},
			},
			expected: api.SuiteGrade{Throughput: "high", Latency: "slow"},
		},
		{
			testName: "nothing to grade",
			grades:   []api.SuiteGrade{{Throughput: api.NotApplicable, Latency: api.NotApplicable}},
			expected: api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable},
		},
		{
			testName: "no suites",
			grades:   nil,
			expected: api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable},
		},
	}
	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			assert.Equal(t, tc.expected, g.Overall(tc.grades))
		})
	}
}

func TestValidateThresholds(t *testing.T) {
	require.NoError(t, ValidateThresholds(api.DefaultThresholds()))

	unordered := api.DefaultThresholds()
	unordered.Throughput[0], unordered.Throughput[1] = unordered.Throughput[1], unordered.Throughput[0]
	assert.True(t, errors.Is(ValidateThresholds(unordered), ErrInvalidConfig))

	unorderedLatency := api.DefaultThresholds()
	unorderedLatency.Latency[0].BelowMs = 500
	assert.True(t, errors.Is(ValidateThresholds(unorderedLatency), ErrInvalidConfig))

	noFloor := api.DefaultThresholds()
	noFloor.ThroughputFloor = ""
	assert.True(t, errors.Is(ValidateThresholds(noFloor), ErrInvalidConfig))
}

func TestReportBuilder(t *testing.T) {
	start := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewReportBuilder(api.DefaultThresholds(), start)

	b.AddEndpoints(map[string]api.EndpointResult{
		"GET /health": {Method: "GET", Path: "/health", Requests: 10, Latency: api.LatencyStats{Count: 10, MeanMs: fp(10)}},
		"GET /api/x":  {Method: "GET", Path: "/api/x", Requests: 10, Latency: api.LatencyStats{Count: 10, MeanMs: fp(40)}},
	})
	b.AddLadder([]api.LevelResult{
		{Level: 10, RPS: 8000, Latency: api.LatencyStats{Count: 10, MeanMs: fp(5)}},
		{Level: 50, RPS: 1200, Latency: api.LatencyStats{Count: 50, MeanMs: fp(60)}},
	})
	b.AddStress(api.StressResult{TotalRequests: 300, AvgRPS: 300})

	report := b.Build(start.Add(3 * time.Second))

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, start.Add(3*time.Second), report.Timestamp)
	assert.Equal(t, 3*time.Second, report.TotalElapsed)
	assert.Equal(t, []string{api.EndpointSuite, api.LadderSuite, api.StressSuite}, report.SuiteOrder)

	// mean of endpoint means is 25ms
	assert.Equal(t, api.SuiteGrade{Throughput: api.NotApplicable, Latency: "good"}, report.Suites[api.EndpointSuite].Grade)
	// graded on the final level
	assert.Equal(t, api.SuiteGrade{Throughput: "high", Latency: "acceptable"}, report.Suites[api.LadderSuite].Grade)
	assert.Equal(t, api.SuiteGrade{Throughput: "standard", Latency: api.NotApplicable}, report.Suites[api.StressSuite].Grade)
	assert.Equal(t, api.SuiteGrade{Throughput: "standard", Latency: "acceptable"}, report.Grade)
}

func TestReportBuilderEmptySuites(t *testing.T) {
	b := NewReportBuilder(api.DefaultThresholds(), time.Now())
	b.AddLadder(nil)
	b.AddEndpoints(nil)

	report := b.Build(time.Now())
	assert.NotNil(t, report.Suites[api.LadderSuite].Levels)
	assert.NotNil(t, report.Suites[api.EndpointSuite].Endpoints)
	assert.Equal(t, api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable}, report.Grade)
}

func TestReportBuilderEmptyStress(t *testing.T) {
	b := NewReportBuilder(api.DefaultThresholds(), time.Now())
	b.AddLadder([]api.LevelResult{{Level: 10, RPS: 9000, Latency: api.LatencyStats{Count: 10, MeanMs: fp(5)}}})
	// zero duration stress run, no batches
	b.AddStress(api.StressResult{BatchSize: 100})

	report := b.Build(time.Now())
	assert.Equal(t, api.SuiteGrade{Throughput: api.NotApplicable, Latency: api.NotApplicable},
		report.Suites[api.StressSuite].Grade)
	assert.Equal(t, api.SuiteGrade{Throughput: "ultra", Latency: "excellent"}, report.Grade)
}

func TestReportBuilderRunIDsDiffer(t *testing.T) {
	a := NewReportBuilder(api.DefaultThresholds(), time.Now()).Build(time.Now())
	b := NewReportBuilder(api.DefaultThresholds(), time.Now()).Build(time.Now())
	assert.NotEqual(t, a.RunID, b.RunID)
}
