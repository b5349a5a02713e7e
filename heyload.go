// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel int

	cmd := &cobra.Command{
		Use:   "heyload",
		Short: "heyload measures the latency and throughput of an HTTP service under concurrent load",
		Long: `heyload probes a target, then runs up to three suites against it:

  api_tests     sequential requests to each configured endpoint
  load_tests    an escalating ladder of simultaneous requests
  stress_tests  back to back batches of requests for a fixed duration

The results are graded, printed and persisted as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}
	cmd.PersistentFlags().IntVar(&logLevel, "loglevel", int(zerolog.WarnLevel),
		"log level, 0 for debug, 1 info, 2 warn, 3 error, 4 fatal")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newMockCmd())
	return cmd
}

func setupLogging(level int) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
}

// signalContext returns a context that's canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			log.Debug().Msg("heyload: SIGTERM caught")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}
