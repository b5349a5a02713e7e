// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/youngkin/heyload/api"
	"github.com/youngkin/heyload/internal"
)

type runOptions struct {
	ConfigFile  string
	TargetURL   string
	OutPath     string
	TextPath    string
	Detail      string
	MetricsAddr string
	NoProgress  bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run --config <ConfigFileLocation> [options...]",
		Short: "Probe the target, run the enabled suites and report the results",
		Example: `  heyload run --config heyload.yaml
  HEYLOAD_TARGET_URL=http://localhost:8000 heyload run --config heyload.json --detail short`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadTest(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "path and filename containing the runtime configuration, JSON or YAML")
	cmd.Flags().StringVar(&opts.TargetURL, "url", "", "target base URL, overrides target_url")
	cmd.Flags().StringVar(&opts.OutPath, "output", "", "JSON report file, default performance_test_results_<timestamp>.json")
	cmd.Flags().StringVar(&opts.TextPath, "text-output", "", "text report file, default derived from the JSON report file")
	cmd.Flags().StringVar(&opts.Detail, "detail", "", "what level of report detail is desired, 'short' or 'long'")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address during the run, e.g., :9090")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "don't render progress bars")
	return cmd
}

func runLoadTest(cmd *cobra.Command, opts runOptions) error {
	log.Info().Msgf("heyload started with config from %s", opts.ConfigFile)

	config, err := internal.LoadConfig(opts.ConfigFile, func(c *api.LoadTestConfig) {
		if opts.TargetURL != "" {
			c.TargetURL = opts.TargetURL
		}
		if opts.OutPath != "" {
			c.Output.ReportFile = opts.OutPath
		}
		if opts.TextPath != "" {
			c.Output.TextReportFile = opts.TextPath
		}
		if opts.Detail != "" {
			c.Output.Detail = opts.Detail
		}
	})
	if err != nil {
		return errors.Wrap(err, "error loading configuration")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	metrics := internal.NewMetrics()
	if opts.MetricsAddr != "" {
		stop := serveMetrics(opts.MetricsAddr, metrics.Handler())
		defer stop()
	}

	var progress *internal.Progress
	if !opts.NoProgress {
		progress = internal.NewProgress(cmd.ErrOrStderr())
	}

	harness := internal.NewHarness(config, metrics, progress)
	report, err := harness.Run(ctx)
	if errors.Is(err, internal.ErrTargetUnreachable) {
		return err
	}

	reporter := internal.Reporter{
		Out:        cmd.OutOrStdout(),
		Detail:     internal.ParseReportDetail(config.Output.Detail),
		Thresholds: config.Thresholds,
	}
	if perr := reporter.Print(report); perr != nil {
		log.Error().Err(perr).Msg("error printing report")
	}
	if err != nil {
		return err
	}
	log.Info().Msg("heyload: DONE")
	return nil
}

// serveMetrics serves h on addr and returns a func that shuts it down.
func serveMetrics(addr string, h http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving Prometheus metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}
