// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// Suite names used as top level keys in the persisted report.
const (
	EndpointSuite = "api_tests"
	LadderSuite   = "load_tests"
	StressSuite   = "stress_tests"
)

// NotApplicable is the grade given when there's nothing to grade, e.g., a
// suite that produced no latency data.
const NotApplicable = "n/a"

// LatencyStats summarizes a latency sample in milliseconds. Every field other
// than Count is nil when the sample is empty. A nil value means "no data" and
// is serialized as null; it is never coerced to zero since zero is a
// legitimate latency.
type LatencyStats struct {
	// Count is the number of latency observations
	Count  int      `json:"count"`
	MinMs  *float64 `json:"min_ms"`
	MaxMs  *float64 `json:"max_ms"`
	MeanMs *float64 `json:"mean_ms"`
	// MedianMs, P95Ms and P99Ms are nearest-rank percentiles
	MedianMs *float64 `json:"median_ms"`
	P95Ms    *float64 `json:"p95_ms"`
	P99Ms    *float64 `json:"p99_ms"`
}

// HasData reports whether the sample contained at least one latency.
func (l LatencyStats) HasData() bool {
	return l.Count > 0 && l.MeanMs != nil
}

// LevelResult is the outcome of one concurrency level of a ladder run.
type LevelResult struct {
	// Level is the number of simultaneous requests
	Level int `json:"level"`
	// Requests is the number of requests issued, always equal to Level
	Requests int `json:"total_requests"`
	// Successes and Failures add up to Requests
	Successes int `json:"successful"`
	Failures  int `json:"failed"`
	// WallTimeS is the wall clock span from the first dispatch to the last
	// completion, in seconds
	WallTimeS float64 `json:"duration_s"`
	// RPS is Requests / WallTimeS
	RPS float64 `json:"rps"`
	// SuccessRate is a percentage in [0,100]
	SuccessRate float64      `json:"success_rate"`
	Latency     LatencyStats `json:"latency"`
	// Sample holds the raw latencies behind Latency. It isn't persisted.
	Sample []time.Duration `json:"-"`
}

// StressResult is the outcome of a sustained load run.
type StressResult struct {
	// RequestedDurationS is the configured deadline in seconds
	RequestedDurationS float64 `json:"requested_duration_s"`
	// DurationS is the actual elapsed time. It can exceed
	// RequestedDurationS by up to one batch.
	DurationS     float64 `json:"duration_s"`
	BatchSize     int     `json:"batch_size"`
	Batches       int     `json:"batches"`
	TotalRequests int     `json:"total_requests"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	// AvgRPS is TotalRequests / DurationS
	AvgRPS float64 `json:"avg_rps"`
	// PeakRPS is the highest per batch throughput observed
	PeakRPS float64 `json:"peak_rps"`
	// Latency is omitted when no request produced a latency
	Latency *LatencyStats `json:"latency,omitempty"`
	// Sample holds the raw latencies behind Latency. It isn't persisted.
	Sample []time.Duration `json:"-"`
}

// EndpointResult summarizes sequential requests made to one endpoint.
type EndpointResult struct {
	Name        string       `json:"name,omitempty"`
	Method      string       `json:"method"`
	Path        string       `json:"path"`
	Requests    int          `json:"requests"`
	Errors      int          `json:"errors"`
	SuccessRate float64      `json:"success_rate"`
	Latency     LatencyStats `json:"latency"`
}

// SuiteGrade is the grade assigned to a single suite. Either field can be
// NotApplicable.
type SuiteGrade struct {
	Throughput string `json:"throughput"`
	Latency    string `json:"latency"`
}

// SuiteReport holds the output of one suite. Exactly one of Levels, Stress or
// Endpoints is populated.
type SuiteReport struct {
	Name      string
	Levels    []LevelResult
	Stress    *StressResult
	Endpoints map[string]EndpointResult
	Grade     SuiteGrade
}

// MarshalJSON serializes only the populated payload: an ordered array of
// LevelResult, a single StressResult or an endpoint keyed object.
func (s SuiteReport) MarshalJSON() ([]byte, error) {
	switch {
	case s.Stress != nil:
		return json.Marshal(s.Stress)
	case s.Endpoints != nil:
		return json.Marshal(s.Endpoints)
	case s.Levels != nil:
		return json.Marshal(s.Levels)
	}
	return []byte("[]"), nil
}

// Report is the graded result of a complete run.
type Report struct {
	RunID     string
	Timestamp time.Time
	// TotalElapsed is the wall time of the whole run, probe included
	TotalElapsed time.Duration
	// Suites is keyed by suite name
	Suites map[string]SuiteReport
	// SuiteOrder is the order the suites ran in
	SuiteOrder []string
	// Grade is the overall grade, the worst tier across suites
	Grade SuiteGrade
}

var reservedKeys = map[string]bool{
	"run_id": true, "timestamp": true, "total_elapsed_s": true, "grade": true, "grades": true,
}

// IsReservedKey reports whether name can't be used as a suite name because
// it collides with a top level report field.
func IsReservedKey(name string) bool {
	return reservedKeys[name]
}

// MarshalJSON flattens the suites into top level keys next to the run fields.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Suites)+len(reservedKeys))
	grades := make(map[string]SuiteGrade, len(r.Suites))
	for name, suite := range r.Suites {
		if IsReservedKey(name) {
			return nil, fmt.Errorf("suite name %q collides with a report field", name)
		}
		out[name] = suite
		grades[name] = suite.Grade
	}
	out["run_id"] = r.RunID
	out["timestamp"] = r.Timestamp.Format(time.RFC3339)
	out["total_elapsed_s"] = r.TotalElapsed.Seconds()
	out["grade"] = r.Grade
	out["grades"] = grades
	return json.Marshal(out)
}
