// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/youngkin/heyload/internal/mocktarget"
)

func newMockCmd() *cobra.Command {
	var (
		port    string
		seed    int64
		noDelay bool
		tlsOpts mocktarget.TLSOptions
	)

	cmd := &cobra.Command{
		Use:   "mock [--port <port>]",
		Short: "Serve a mock target that heyload can be pointed at",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (tlsOpts.ServerPEM == "") != (tlsOpts.KeyFile == "") {
				return errors.New("--srvpem and --key must be provided together")
			}
			cfg := mocktarget.DefaultConfig()
			if noDelay {
				cfg = mocktarget.Config{}
			}
			cfg.Seed = seed

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return mocktarget.New(cfg).ListenAndServe(ctx, ":"+port, tlsOpts)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8000", "port to listen on")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for simulated latencies, 0 seeds from the clock")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "answer immediately instead of simulating processing time")
	cmd.Flags().StringVar(&tlsOpts.Host, "host", "", "DNS resolvable host name, used with TLS")
	cmd.Flags().StringVar(&tlsOpts.ServerPEM, "srvpem", "", "the server's PEM file, enables TLS")
	cmd.Flags().StringVar(&tlsOpts.KeyFile, "key", "", "the server's private key PEM file")
	cmd.Flags().StringVar(&tlsOpts.ClientPEM, "clientpem", "", "if set, clients must present a certificate signed by this PEM")
	return cmd
}
