// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

// ReportDetail specifies how much of the report is printed. 'Short' prints
// the summary tables, 'Long' adds latency distributions.
type ReportDetail int

const (
	// Short specifies only high level report stats will be produced
	Short ReportDetail = iota
	// Long indicates detailed reporting stats will be produced
	Long
)

// ParseReportDetail converts 'short' or 'long' to a ReportDetail. Anything
// other than 'short' is Long.
func ParseReportDetail(s string) ReportDetail {
	if strings.EqualFold(s, "short") {
		return Short
	}
	return Long
}

const distributionBins = 10

var (
	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	naStyle   = lipgloss.NewStyle().Faint(true)
)

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func formatMs(ms *float64) string {
	if ms == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *ms)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Reporter prints a human readable rendition of a Report.
type Reporter struct {
	Out        io.Writer
	Detail     ReportDetail
	Thresholds api.Thresholds
	// Plain disables grade colouring, e.g., when writing to a file
	Plain bool
}

func (r Reporter) gradeFunc(label string) string {
	t := r.Thresholds
	switch {
	case r.Plain:
		return label
	case label == api.NotApplicable:
		return naStyle.Render(label)
	case (len(t.Throughput) > 0 && label == t.Throughput[0].Label) ||
		(len(t.Latency) > 0 && label == t.Latency[0].Label):
		return goodStyle.Render(label)
	case label == t.ThroughputFloor || label == t.LatencyCeiling:
		return badStyle.Render(label)
	}
	return warnStyle.Render(label)
}

func (r Reporter) funcs() template.FuncMap {
	return template.FuncMap{
		"formatFloat":   formatFloat,
		"formatMs":      formatMs,
		"formatSeconds": formatSeconds,
		"formatTime":    formatTime,
		"grade":         r.gradeFunc,
		"distribution": func(sample []time.Duration) []HistogramBin {
			return LatencyDistribution(sample, distributionBins)
		},
		"bar": func(count int64, total int) string {
			if total == 0 {
				return ""
			}
			return strings.Repeat("*", int(count*40/int64(total)))
		},
	}
}

var runSummTmplt = `
Run Summary:
	             Run ID: {{ .RunID }}
	               Date: {{ formatTime .Timestamp }}
	Run Duration (secs): {{ formatSeconds .TotalElapsed }}
	   Throughput Grade: {{ grade .Grade.Throughput }}
	      Latency Grade: {{ grade .Grade.Latency }}
`

var endpointTmplt = `
Endpoint Latency (ms):         Requests   Errors   Success%   Mean       Median     P95        P99        Min        Max {{ range $key, $ep := .Endpoints }}
	{{ printf "%-24s" $key }} {{ printf "%8d" $ep.Requests }}   {{ printf "%6d" $ep.Errors }}   {{ printf "%8s" (formatFloat $ep.SuccessRate) }}   {{ printf "%-8s" (formatMs $ep.Latency.MeanMs) }}   {{ printf "%-8s" (formatMs $ep.Latency.MedianMs) }}   {{ printf "%-8s" (formatMs $ep.Latency.P95Ms) }}   {{ printf "%-8s" (formatMs $ep.Latency.P99Ms) }}   {{ printf "%-8s" (formatMs $ep.Latency.MinMs) }}   {{ formatMs $ep.Latency.MaxMs }}{{ end }}
	Latency Grade: {{ grade .Grade.Latency }}
`

var ladderTmplt = `
Concurrent Load:
	   Level   Rqsts/sec     Secs   Success%   Mean(ms)   P95(ms)    P99(ms) {{ range .Levels }}
	{{ printf "%8d" .Level }}   {{ printf "%9s" (formatFloat .RPS) }}   {{ printf "%6s" (formatFloat .WallTimeS) }}   {{ printf "%8s" (formatFloat .SuccessRate) }}   {{ printf "%-8s" (formatMs .Latency.MeanMs) }}   {{ printf "%-8s" (formatMs .Latency.P95Ms) }}   {{ formatMs .Latency.P99Ms }}{{ end }}
	Throughput Grade: {{ grade .Grade.Throughput }}
	   Latency Grade: {{ grade .Grade.Latency }}
`

var stressTmplt = `
Stress Run:{{ with .Stress }}
	 Duration (secs): {{ formatFloat .DurationS }} (requested {{ formatFloat .RequestedDurationS }})
	         Batches: {{ .Batches }} x {{ .BatchSize }}
	     Total Rqsts: {{ .TotalRequests }}
	      Successful: {{ .Successful }}
	          Failed: {{ .Failed }}
	        Success%: {{ formatFloat .SuccessRate }}
	   Avg Rqsts/sec: {{ formatFloat .AvgRPS }}
	  Peak Rqsts/sec: {{ formatFloat .PeakRPS }}{{ if .Latency }}
	Latency (ms):   Mean {{ formatMs .Latency.MeanMs }}   Median {{ formatMs .Latency.MedianMs }}   P95 {{ formatMs .Latency.P95Ms }}   P99 {{ formatMs .Latency.P99Ms }}{{ else }}
	Latency (ms):   no data{{ end }}{{ end }}
	Throughput Grade: {{ grade .Grade.Throughput }}
	   Latency Grade: {{ grade .Grade.Latency }}
`

// distributionTmplt expects a struct with a Title and a Sample
var distributionTmplt = `
{{ .Title }} Latency Distribution (ms):{{ $total := len .Sample }}{{ range distribution .Sample }}
	{{ printf "%10.3f" .FromMs }} - {{ printf "%10.3f" .ToMs }}  {{ printf "%8d" .Count }}  {{ bar .Count $total }}{{ end }}
`

var recommendationsTmplt = `
Recommendations:{{ range . }}
	- {{ . }}{{ else }}
	- none{{ end }}
`

// Print writes the report to r.Out.
func (r Reporter) Print(rep api.Report) error {
	if err := r.execute("runSummary", runSummTmplt, rep); err != nil {
		return err
	}
	for _, name := range rep.SuiteOrder {
		suite := rep.Suites[name]
		var err error
		switch {
		case suite.Endpoints != nil:
			err = r.execute("endpoints", endpointTmplt, suite)
		case suite.Stress != nil:
			err = r.execute("stress", stressTmplt, suite)
			if err == nil && r.Detail == Long && len(suite.Stress.Sample) > 0 {
				err = r.printDistribution("Stress", suite.Stress.Sample)
			}
		default:
			err = r.execute("ladder", ladderTmplt, suite)
			if err == nil && r.Detail == Long && len(suite.Levels) > 0 {
				last := suite.Levels[len(suite.Levels)-1]
				err = r.printDistribution(fmt.Sprintf("Level %d", last.Level), last.Sample)
			}
		}
		if err != nil {
			return err
		}
	}
	return r.execute("recommendations", recommendationsTmplt, Recommendations(rep))
}

func (r Reporter) printDistribution(title string, sample []time.Duration) error {
	return r.execute("distribution", distributionTmplt, struct {
		Title  string
		Sample []time.Duration
	}{title, sample})
}

func (r Reporter) execute(name, text string, data interface{}) error {
	tmplt, err := template.New(name).Funcs(r.funcs()).Parse(text)
	if err != nil {
		log.Error().Err(err).Msgf("error parsing %s template", name)
		return errors.Wrapf(err, "parsing %s template", name)
	}
	if err = tmplt.Execute(r.Out, data); err != nil {
		log.Error().Err(err).Msgf("error executing %s template", name)
		return errors.Wrapf(err, "executing %s template", name)
	}
	return nil
}

// Recommendations returns tuning suggestions based on the report.
func Recommendations(rep api.Report) []string {
	var recs []string
	if suite, ok := rep.Suites[api.EndpointSuite]; ok {
		var sum float64
		var n int
		for _, ep := range suite.Endpoints {
			if ep.Latency.MeanMs != nil {
				sum += *ep.Latency.MeanMs
				n++
			}
		}
		if n > 0 && sum/float64(n) > 50 {
			recs = append(recs, "Consider implementing response caching")
		}
	}
	if suite, ok := rep.Suites[api.LadderSuite]; ok && len(suite.Levels) > 0 {
		if suite.Levels[len(suite.Levels)-1].RPS < 1000 {
			recs = append(recs, "Optimize connection pooling for higher throughput")
		}
	}
	return recs
}

// DefaultReportFile returns the timestamped report file name used when none
// is configured.
func DefaultReportFile(t time.Time) string {
	return fmt.Sprintf("performance_test_results_%s.json", t.Format("20060102_150405"))
}

// TextReportFile returns the name of the text report written alongside the
// JSON report jsonFile, e.g., performance_test_report_20240309_140507.txt
// next to performance_test_results_20240309_140507.json.
func TextReportFile(jsonFile string) string {
	dir, base := filepath.Split(jsonFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if strings.HasPrefix(base, "performance_test_results_") {
		base = "performance_test_report_" + strings.TrimPrefix(base, "performance_test_results_")
	}
	return filepath.Join(dir, base+".txt")
}

// WriteTextReport persists the uncoloured text rendition of rep to fileName.
// Failures wrap ErrReportWrite.
func WriteTextReport(fileName string, rep api.Report, detail ReportDetail, t api.Thresholds) error {
	var buf bytes.Buffer
	r := Reporter{Out: &buf, Detail: detail, Thresholds: t, Plain: true}
	if err := r.Print(rep); err != nil {
		return errors.Wrapf(ErrReportWrite, "rendering text report: %s", err)
	}
	if err := os.WriteFile(fileName, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(ErrReportWrite, "writing %s: %s", fileName, err)
	}
	log.Info().Str("file", fileName).Msg("Text report written")
	return nil
}

// WriteReport persists rep as indented JSON to fileName. Failures wrap
// ErrReportWrite and leave rep untouched.
func WriteReport(fileName string, rep api.Report) error {
	contents, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrReportWrite, "marshaling report: %s", err)
	}
	if err = os.WriteFile(fileName, contents, 0644); err != nil {
		return errors.Wrapf(ErrReportWrite, "writing %s: %s", fileName, err)
	}
	log.Info().Str("file", fileName).Msg("Report written")
	return nil
}
