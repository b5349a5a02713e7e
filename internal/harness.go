// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

// Harness runs the configured suites against a single target and produces a
// graded Report.
type Harness struct {
	Config api.LoadTestConfig
	// Client is shared by every dispatch. NewHarness sizes its pool from the
	// configuration.
	Client *http.Client
	// Observer, if set, sees every dispatch, e.g., *Metrics
	Observer Observer
	// Progress, if set, renders ladder and stress progress bars
	Progress *Progress
}

// NewHarness returns a Harness for config with a connection pool large enough
// for its highest concurrency.
func NewHarness(config api.LoadTestConfig, obs Observer, progress *Progress) *Harness {
	maxConns := config.Stress.BatchSize
	if n := len(config.Ladder.Levels); n > 0 && config.Ladder.Levels[n-1] > maxConns {
		maxConns = config.Ladder.Levels[n-1]
	}
	if config.MaxWorkers > 0 && config.MaxWorkers < maxConns {
		maxConns = config.MaxWorkers
	}
	return &Harness{
		Config:   config,
		Client:   NewHTTPClient(maxConns),
		Observer: obs,
		Progress: progress,
	}
}

// Run probes the target and, if it's reachable, runs the enabled suites in
// order: endpoints, ladder, stress. A canceled ctx stops the run at the next
// suite, level or batch boundary and whatever completed is still reported.
//
// The report is saved as JSON and as plain text. An error wrapping
// ErrTargetUnreachable means nothing ran and the Report is empty. An error
// wrapping ErrReportWrite comes with a complete Report.
func (h *Harness) Run(ctx context.Context) (api.Report, error) {
	cfg := h.Config
	start := time.Now()

	probe, err := Probe(ctx, h.Client, JoinURL(cfg.TargetURL, cfg.HealthPath), cfg.ProbeTimeout.Std())
	if err != nil {
		log.Error().Err(err).Msg("Harness: target unreachable, no suites will run")
		return api.Report{}, err
	}
	log.Info().Int("status", probe.Status).Dur("latency", probe.Latency).Msg("Harness: target reachable")

	d := NewDispatcher(cfg.TargetURL, h.Client, cfg.RequestTimeout.Std(), cfg.PenaltyLatency.Std(), h.Observer)
	builder := NewReportBuilder(cfg.Thresholds, start)

	if err = h.runSuites(ctx, d, builder); err != nil {
		log.Warn().Err(err).Msg("Harness: run ended early, reporting partial results")
	}
	h.Progress.Wait()

	report := builder.Build(time.Now())
	fileName := cfg.Output.ReportFile
	if fileName == "" {
		fileName = DefaultReportFile(start)
	}
	if err = WriteReport(fileName, report); err != nil {
		log.Error().Err(err).Msg("Harness: report not persisted")
		return report, err
	}
	textFile := cfg.Output.TextReportFile
	if textFile == "" {
		textFile = TextReportFile(fileName)
	}
	if err = WriteTextReport(textFile, report, ParseReportDetail(cfg.Output.Detail), cfg.Thresholds); err != nil {
		log.Error().Err(err).Msg("Harness: text report not persisted")
		return report, err
	}
	return report, nil
}

// runSuites returns ctx's error if it's canceled part way through. Suites
// that started are always added to builder.
func (h *Harness) runSuites(ctx context.Context, d *Dispatcher, builder *ReportBuilder) error {
	cfg := h.Config

	if cfg.Endpoints.Enabled {
		er := EndpointRunner{Requester: d, Endpoints: cfg.Endpoints.Endpoints, Requests: cfg.Endpoints.RequestsPerEndpoint}
		results, err := er.Run(ctx)
		builder.AddEndpoints(results)
		if err != nil {
			return err
		}
	}

	if cfg.Ladder.Enabled {
		// Each level is released in one go, so the batch model gets a single
		// batch per level.
		exec, err := NewExecutor(cfg.DispatchModel, d, cfg.MaxWorkers, 0)
		if err != nil {
			return err
		}
		ladder := Ladder{
			Runner:  &LevelRunner{Executor: exec, Spec: cfg.Ladder.Request},
			Levels:  cfg.Ladder.Levels,
			Settle:  cfg.Ladder.Settle.Std(),
			OnLevel: h.Progress.LadderHook(cfg.Ladder.Levels),
		}
		levels, err := ladder.Run(ctx)
		builder.AddLadder(levels)
		if err != nil {
			return err
		}
	}

	if cfg.Stress.Enabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exec, err := NewExecutor(cfg.DispatchModel, d, cfg.MaxWorkers, cfg.Stress.BatchSize)
		if err != nil {
			return err
		}
		sr := StressRunner{
			Executor:  exec,
			Spec:      cfg.Stress.Request,
			Duration:  cfg.Stress.Duration.Std(),
			BatchSize: cfg.Stress.BatchSize,
			OnBatch:   h.Progress.StressHook(cfg.Stress.Duration.Std()),
		}
		builder.AddStress(sr.Run(ctx))
		return ctx.Err()
	}
	return nil
}
