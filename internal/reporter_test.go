// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/heyload/api"
)

var (
	update           = flag.Bool("update", false, "update .golden files")
	goldenFileDir    = "testdata"
	goldenFileSuffix = ".golden"
)

func fixedReport() api.Report {
	stats := api.LatencyStats{Count: 10, MinMs: fp(1), MaxMs: fp(9), MeanMs: fp(5), MedianMs: fp(5), P95Ms: fp(9), P99Ms: fp(9)}
	return api.Report{
		RunID:        "run-1",
		Timestamp:    time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		TotalElapsed: 1500 * time.Millisecond,
		Suites: map[string]api.SuiteReport{
			api.LadderSuite: {
				Name: api.LadderSuite,
				Levels: []api.LevelResult{{
					Level: 10, Requests: 10, Successes: 9, Failures: 1,
					WallTimeS: 0.5, RPS: 20, SuccessRate: 90, Latency: stats,
					Sample: msSlice(1, 2, 3, 4, 5, 5, 6, 7, 8, 9),
				}},
				Grade: api.SuiteGrade{Throughput: "standard", Latency: "excellent"},
			},
			api.StressSuite: {
				Name:   api.StressSuite,
				Stress: &api.StressResult{BatchSize: 100},
				Grade:  api.SuiteGrade{Throughput: "standard", Latency: api.NotApplicable},
			},
		},
		SuiteOrder: []string{api.LadderSuite, api.StressSuite},
		Grade:      api.SuiteGrade{Throughput: "standard", Latency: "excellent"},
	}
}

func TestWriteReport(t *testing.T) {
	testName := "TestWriteReport"
	fileName := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, WriteReport(fileName, fixedReport()))
	actual, err := os.ReadFile(fileName)
	require.NoError(t, err)

	if *update {
		updateGoldenFile(t, testName, string(actual))
	}
	expected := readGoldenFile(t, testName)
	assert.Equal(t, strings.TrimSpace(string(expected)), strings.TrimSpace(string(actual)))
}

func TestWriteReportNullLatency(t *testing.T) {
	rep := fixedReport()
	rep.Suites[api.LadderSuite].Levels[0].Latency = api.LatencyStats{}

	fileName := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(fileName, rep))
	contents, err := os.ReadFile(fileName)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(contents, &decoded))
	levels := decoded[api.LadderSuite].([]interface{})
	latency := levels[0].(map[string]interface{})["latency"].(map[string]interface{})
	// "no data" is null, never zero
	assert.Contains(t, latency, "mean_ms")
	assert.Nil(t, latency["mean_ms"])
	assert.Nil(t, latency["p99_ms"])
}

func TestWriteReportFailure(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "missing", "dir", "report.json")
	err := WriteReport(fileName, fixedReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReportWrite))
}

func TestDefaultReportFile(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "performance_test_results_20240309_140507.json", DefaultReportFile(ts))
}

func TestTextReportFile(t *testing.T) {
	tests := []struct {
		testName string
		jsonFile string
		expected string
	}{
		{testName: "default name", jsonFile: "performance_test_results_20240309_140507.json",
			expected: "performance_test_report_20240309_140507.txt"},
		{testName: "default name in dir", jsonFile: filepath.Join("out", "performance_test_results_20240309_140507.json"),
			expected: filepath.Join("out", "performance_test_report_20240309_140507.txt")},
		{testName: "custom name", jsonFile: filepath.Join("out", "run.json"), expected: filepath.Join("out", "run.txt")},
		{testName: "no extension", jsonFile: "run", expected: "run.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			assert.Equal(t, tc.expected, TextReportFile(tc.jsonFile))
		})
	}
}

func TestWriteTextReport(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, WriteTextReport(fileName, fixedReport(), Short, api.DefaultThresholds()))

	contents, err := os.ReadFile(fileName)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "Run Summary:")
	assert.NotContains(t, string(contents), "\x1b[")

	err = WriteTextReport(filepath.Join(t.TempDir(), "missing", "report.txt"), fixedReport(), Short, api.DefaultThresholds())
	assert.True(t, errors.Is(err, ErrReportWrite))
}

func TestReporterPrint(t *testing.T) {
	rep := fixedReport()
	rep.Suites[api.EndpointSuite] = api.SuiteReport{
		Name: api.EndpointSuite,
		Endpoints: map[string]api.EndpointResult{
			"GET /health": {Method: "GET", Path: "/health", Requests: 100, SuccessRate: 100,
				Latency: api.LatencyStats{Count: 100, MeanMs: fp(75), MedianMs: fp(70), P95Ms: fp(90), P99Ms: fp(99), MinMs: fp(60), MaxMs: fp(99)}},
			"POST /api/items": {Method: "POST", Path: "/api/items", Requests: 100, Errors: 100},
		},
		Grade: api.SuiteGrade{Throughput: api.NotApplicable, Latency: "acceptable"},
	}
	rep.SuiteOrder = append([]string{api.EndpointSuite}, rep.SuiteOrder...)

	tests := []struct {
		testName    string
		detail      ReportDetail
		contains    []string
		notContains []string
	}{
		{
			testName: "short",
			detail:   Short,
			contains: []string{
				"Run Summary:", "run-1", "2020-01-02 03:04:05", "1.50",
				"Endpoint Latency (ms):", "GET /health", "POST /api/items", "75.00",
				"Concurrent Load:", "20.00", "90.00",
				"Stress Run:", "0 x 100", "no data",
				"Recommendations:", "Consider implementing response caching",
				"Optimize connection pooling for higher throughput",
			},
			notContains: []string{"Latency Distribution"},
		},
		{
			testName: "long",
			detail:   Long,
			contains: []string{"Level 10 Latency Distribution (ms):", "Concurrent Load:"},
			// the stress run has no sample to distribute
			notContains: []string{"Stress Latency Distribution"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			var buf bytes.Buffer
			r := Reporter{Out: &buf, Detail: tc.detail, Thresholds: api.DefaultThresholds()}
			require.NoError(t, r.Print(rep))

			out := buf.String()
			for _, s := range tc.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tc.notContains {
				assert.NotContains(t, out, s)
			}
			// endpoint, ladder, stress
			assert.Less(t, strings.Index(out, "Endpoint Latency"), strings.Index(out, "Concurrent Load"))
			assert.Less(t, strings.Index(out, "Concurrent Load"), strings.Index(out, "Stress Run"))
		})
	}
}

func TestRecommendations(t *testing.T) {
	fast := api.Report{Suites: map[string]api.SuiteReport{
		api.EndpointSuite: {Endpoints: map[string]api.EndpointResult{"GET /": {Latency: api.LatencyStats{Count: 1, MeanMs: fp(10)}}}},
		api.LadderSuite:   {Levels: []api.LevelResult{{Level: 10, RPS: 500}, {Level: 100, RPS: 5000}}},
	}}
	assert.Empty(t, Recommendations(fast))

	slow := api.Report{Suites: map[string]api.SuiteReport{
		api.EndpointSuite: {Endpoints: map[string]api.EndpointResult{"GET /": {Latency: api.LatencyStats{Count: 1, MeanMs: fp(51)}}}},
		api.LadderSuite:   {Levels: []api.LevelResult{{Level: 10, RPS: 999}}},
	}}
	assert.Len(t, Recommendations(slow), 2)
}

func TestParseReportDetail(t *testing.T) {
	assert.Equal(t, Short, ParseReportDetail("short"))
	assert.Equal(t, Short, ParseReportDetail("SHORT"))
	assert.Equal(t, Long, ParseReportDetail("long"))
	assert.Equal(t, Long, ParseReportDetail(""))
}

func updateGoldenFile(t *testing.T, testName string, contents string) {
	gf := filepath.Join(goldenFileDir, testName+goldenFileSuffix)
	t.Log("update golden file")
	if err := os.WriteFile(gf, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to update golden file: %s", err)
	}
}

func readGoldenFile(t *testing.T, testName string) []byte {
	gf := filepath.Join(goldenFileDir, testName+goldenFileSuffix)
	gfc, err := os.ReadFile(gf)
	if err != nil {
		t.Fatalf("failed reading golden file: %s", err)
	}
	return gfc
}
