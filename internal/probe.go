// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProbeResult describes the target's answer to the health probe.
type ProbeResult struct {
	Reachable bool
	// Status is the HTTP status returned, zero if unreachable
	Status  int
	Latency time.Duration
}

// Probe makes a single GET request to url bounded by timeout. Any HTTP
// response, whatever its status, means the target is reachable. A
// transport failure returns an error wrapping ErrTargetUnreachable.
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) (ProbeResult, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{}, errors.Wrapf(ErrTargetUnreachable, "invalid probe url %s: %s", url, err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return ProbeResult{}, errors.Wrapf(ErrTargetUnreachable, "%s: %s", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	res := ProbeResult{Reachable: true, Status: resp.StatusCode, Latency: time.Since(start)}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Probe: target answered with a non-200 status")
	}
	return res, nil
}
