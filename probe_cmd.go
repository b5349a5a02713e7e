// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/youngkin/heyload/internal"
)

func newProbeCmd() *cobra.Command {
	var (
		target  string
		path    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe --url <url>",
		Short: "Check that the target answers its health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(target) == "" {
				return errors.New("--url is required")
			}
			url := internal.JoinURL(target, path)
			res, err := internal.Probe(cmd.Context(), internal.NewHTTPClient(1), url, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reachable, status %d in %s\n", url, res.Status, res.Latency)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "target base URL, e.g., http://localhost:8000")
	cmd.Flags().StringVar(&path, "path", "/health", "health endpoint path")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}
