// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api provides the public datastructures that can be used to
// create a runtime configuration file and to consume the report produced
// by a run.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Dispatch models accepted by LoadTestConfig.DispatchModel.
const (
	// PoolModel occupies one worker per in-flight request for the full
	// request duration.
	PoolModel = "pool"
	// BatchModel issues fixed-size batches of requests that are all awaited
	// together before the next batch starts.
	BatchModel = "batch"
)

// Duration is a time.Duration that is expressed in configuration files as a
// string such as "500ms", "10s" or "5m".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is also used when
// decoding JSON strings and environment variables.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration: %q must be of the form xms, xs or xm where x is a number", string(text))
	}
	*d = Duration(dur)
	return nil
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration: %s is neither a string nor an integer", string(b))
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// RequestSpec contains the information needed to send a request to a
// given path on the target.
type RequestSpec struct {
	// Name is an optional human readable label, e.g., "Health Check"
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Method is the HTTP Method, GET if empty
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	// Path is appended to the target URL
	Path string `json:"path" yaml:"path"`
	// Body is an optional request body. When present it is sent
	// with a Content-Type of application/json.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
	// Timeout bounds a single dispatch. LoadTestConfig.RequestTimeout
	// is used when it's zero.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Key identifies a RequestSpec in endpoint keyed reports, e.g., "GET /health".
func (r RequestSpec) Key() string {
	method := r.Method
	if method == "" {
		method = "GET"
	}
	return method + " " + r.Path
}

// LadderConfig configures the escalating concurrency suite.
type LadderConfig struct {
	// Enabled turns the suite on
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	// Levels are the concurrency levels, run in order. They must be
	// strictly increasing.
	Levels []int `json:"levels" yaml:"levels" env:"LEVELS"`
	// Settle is an optional pause between levels
	Settle Duration `json:"settle,omitempty" yaml:"settle,omitempty" env:"SETTLE"`
	// Request is what each concurrent unit sends
	Request RequestSpec `json:"request" yaml:"request"`
}

// StressConfig configures the sustained load suite.
type StressConfig struct {
	// Enabled turns the suite on
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	// Duration is how long batches keep being issued. The run can overshoot
	// it by up to one batch.
	Duration Duration `json:"duration" yaml:"duration" env:"DURATION"`
	// BatchSize is the number of concurrent requests in each batch
	BatchSize int `json:"batch_size" yaml:"batch_size" env:"BATCH_SIZE"`
	// Request is what each request in a batch sends
	Request RequestSpec `json:"request" yaml:"request"`
}

// EndpointConfig configures the per endpoint latency suite.
type EndpointConfig struct {
	// Enabled turns the suite on
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	// RequestsPerEndpoint is the number of sequential requests made to
	// each endpoint
	RequestsPerEndpoint int `json:"requests_per_endpoint" yaml:"requests_per_endpoint" env:"REQUESTS"`
	// Endpoints is the set of endpoints to measure
	Endpoints []RequestSpec `json:"endpoints" yaml:"endpoints"`
}

// ThroughputTier assigns Label to a throughput of at least MinRPS.
type ThroughputTier struct {
	MinRPS float64 `json:"min_rps" yaml:"min_rps"`
	Label  string  `json:"label" yaml:"label"`
}

// LatencyTier assigns Label to a mean latency strictly below BelowMs.
type LatencyTier struct {
	BelowMs float64 `json:"below_ms" yaml:"below_ms"`
	Label   string  `json:"label" yaml:"label"`
}

// Thresholds are the grading SLA targets. Tiers are evaluated in order and the
// first match wins; the Floor/Ceiling labels apply when nothing matches.
type Thresholds struct {
	// Throughput tiers must be ordered by descending MinRPS
	Throughput []ThroughputTier `json:"throughput" yaml:"throughput"`
	// ThroughputFloor is the label used below the last throughput tier
	ThroughputFloor string `json:"throughput_floor" yaml:"throughput_floor"`
	// Latency tiers must be ordered by ascending BelowMs
	Latency []LatencyTier `json:"latency" yaml:"latency"`
	// LatencyCeiling is the label used at or above the last latency tier
	LatencyCeiling string `json:"latency_ceiling" yaml:"latency_ceiling"`
}

// DefaultThresholds returns the stock grading tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Throughput: []ThroughputTier{
			{MinRPS: 5000, Label: "ultra"},
			{MinRPS: 1000, Label: "high"},
		},
		ThroughputFloor: "standard",
		Latency: []LatencyTier{
			{BelowMs: 20, Label: "excellent"},
			{BelowMs: 50, Label: "good"},
			{BelowMs: 100, Label: "acceptable"},
		},
		LatencyCeiling: "slow",
	}
}

// OutputConfig controls where and how the report is written.
type OutputConfig struct {
	// ReportFile is the JSON report location. A timestamped file in the
	// working directory is used if it's empty.
	ReportFile string `json:"report_file,omitempty" yaml:"report_file,omitempty" env:"REPORT_FILE"`
	// TextReportFile is where the plain text report is saved. It's derived
	// from ReportFile if it's empty.
	TextReportFile string `json:"text_report_file,omitempty" yaml:"text_report_file,omitempty" env:"TEXT_REPORT_FILE"`
	// Detail is 'short' or 'long'. 'long' adds the latency distribution.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty" env:"DETAIL"`
}

// LoadTestConfig contains all the information needed to configure
// and execute a load test run
type LoadTestConfig struct {
	// TargetURL is the base URL of the service under test, e.g.,
	// http://localhost:8000
	TargetURL string `json:"target_url" yaml:"target_url" env:"TARGET_URL"`
	// HealthPath is probed once before any suite runs
	HealthPath string `json:"health_path" yaml:"health_path" env:"HEALTH_PATH"`
	// ProbeTimeout bounds the health probe
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// RequestTimeout is the default per dispatch timeout
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// PenaltyLatency is recorded for dispatches that fail without a
	// response. It defaults to the dispatch timeout.
	PenaltyLatency Duration `json:"penalty_latency,omitempty" yaml:"penalty_latency,omitempty" env:"PENALTY_LATENCY"`
	// DispatchModel is 'pool' or 'batch'
	DispatchModel string `json:"dispatch_model" yaml:"dispatch_model" env:"DISPATCH_MODEL"`
	// MaxWorkers caps the worker pool size. Zero means the pool grows to
	// the concurrency level.
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty" env:"MAX_WORKERS"`

	Endpoints  EndpointConfig `json:"api_tests" yaml:"api_tests" envPrefix:"API_"`
	Ladder     LadderConfig   `json:"load_tests" yaml:"load_tests" envPrefix:"LADDER_"`
	Stress     StressConfig   `json:"stress_tests" yaml:"stress_tests" envPrefix:"STRESS_"`
	Thresholds Thresholds     `json:"thresholds" yaml:"thresholds"`
	Output     OutputConfig   `json:"output" yaml:"output" envPrefix:"OUTPUT_"`
}
